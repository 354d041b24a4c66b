package printapi

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peachy-go/pkg/audio"
	"peachy-go/pkg/config"
	perrors "peachy-go/pkg/errors"
	"peachy-go/pkg/geometry"
	"peachy-go/pkg/history"
	"peachy-go/pkg/layer"
	"peachy-go/pkg/log"
	"peachy-go/pkg/machine"
)

type stuckZAxis struct {
	started, stopped atomic.Int32
}

func (z *stuckZAxis) Start() error                                  { z.started.Add(1); return nil }
func (z *stuckZAxis) Stop() error                                   { z.stopped.Add(1); return nil }
func (z *stuckZAxis) CurrentHeight() float64                        { return 0 }
func (z *stuckZAxis) SetDripCallback(func(drips int, height float64)) {}

type fakeRecorder struct {
	mu       sync.Mutex
	started  []string
	outcomes map[int64]history.Outcome
	snaps    map[int64]machine.Snapshot
	startErr error
}

func (r *fakeRecorder) StartJob(_ context.Context, name string, _ bool) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return 0, r.startErr
	}
	r.started = append(r.started, name)
	return int64(len(r.started)), nil
}

func (r *fakeRecorder) FinishJob(_ context.Context, id int64, snap machine.Snapshot, outcome history.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = make(map[int64]history.Outcome)
		r.snaps = make(map[int64]machine.Snapshot)
	}
	r.outcomes[id] = outcome
	r.snaps[id] = snap
	return nil
}

func testConfig() *config.PrinterConfig {
	cfg := config.DefaultPrinterConfig()
	cfg.Print.PrintSubLayers = false
	return cfg
}

func square(z float64) layer.Layer {
	p := func(x, y float64) geometry.Point { return geometry.P(x, y, z) }
	return layer.New(z,
		layer.Move(p(1, 1), 100),
		layer.Draw(p(1, 1), p(2, 1), 100),
		layer.Draw(p(2, 1), p(2, 2), 100),
	)
}

func TestPrintLayersCompletes(t *testing.T) {
	rec := &audio.Recorder{}
	hist := &fakeRecorder{}
	var updates atomic.Int32
	api := New(testConfig(), Toolchain{Audio: rec},
		WithHistory(hist),
		WithLogger(log.Nop()),
		WithObserver(machine.ObserverFunc(func(machine.Snapshot) { updates.Add(1) })),
	)

	require.NoError(t, api.PrintLayers(context.Background(), "job", layer.FromSlice(square(0), square(0.01)), false))
	require.NoError(t, api.Wait())

	snap := api.GetStatus()
	assert.Equal(t, machine.StatusComplete, snap.Status)
	assert.Equal(t, 2, snap.CurrentLayer)
	assert.NotEmpty(t, rec.Chunks)
	assert.True(t, rec.Closed)
	assert.Positive(t, updates.Load())

	assert.Equal(t, []string{"job"}, hist.started)
	assert.Equal(t, history.OutcomeCompleted, hist.outcomes[1])
	assert.Equal(t, 2, hist.snaps[1].CurrentLayer)
}

func TestDryRunSkipsAudioAndZAxis(t *testing.T) {
	rec := &audio.Recorder{}
	z := &stuckZAxis{}
	api := New(testConfig(), Toolchain{Audio: rec, ZAxis: z}, WithLogger(log.Nop()))

	require.NoError(t, api.PrintLayers(context.Background(), "dry", layer.FromSlice(square(1)), true))
	require.NoError(t, api.Wait())

	assert.Equal(t, machine.StatusComplete, api.GetStatus().Status)
	assert.Empty(t, rec.Chunks)
	assert.False(t, rec.Closed)
	assert.Zero(t, z.started.Load())
}

func TestBusyAndStop(t *testing.T) {
	z := &stuckZAxis{}
	hist := &fakeRecorder{}
	api := New(testConfig(), Toolchain{ZAxis: z}, WithHistory(hist), WithLogger(log.Nop()))

	require.NoError(t, api.PrintLayers(context.Background(), "first", layer.FromSlice(square(5)), false))
	require.Eventually(t, func() bool { return api.GetStatus().WaitingForDrips }, 2*time.Second, time.Millisecond)

	err := api.PrintLayers(context.Background(), "second", layer.FromSlice(square(0)), true)
	assert.ErrorIs(t, err, ErrBusy)

	api.Stop()
	require.NoError(t, api.Wait())
	assert.NotEqual(t, machine.StatusComplete, api.GetStatus().Status)
	assert.EqualValues(t, 1, z.stopped.Load())
	assert.Equal(t, history.OutcomeCancelled, hist.outcomes[1])

	// A finished print frees the API for the next one.
	require.NoError(t, api.PrintLayers(context.Background(), "third", layer.FromSlice(square(0)), true))
	require.NoError(t, api.Wait())
	assert.Equal(t, []string{"first", "third"}, hist.started)
}

func TestContextCancelStopsPrint(t *testing.T) {
	api := New(testConfig(), Toolchain{ZAxis: &stuckZAxis{}}, WithLogger(log.Nop()))
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, api.PrintLayers(ctx, "job", layer.FromSlice(square(5)), false))
	cancel()

	done := make(chan error, 1)
	go func() { done <- api.Wait() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("print did not stop after cancel")
	}
}

func TestStopBeforePrinting(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New("test")
	logger.SetWriter(&buf)
	logger.SetColorize(false)

	api := New(nil, Toolchain{}, WithLogger(logger))
	api.Stop()
	assert.Contains(t, buf.String(), "Stopped before printing")

	assert.ErrorIs(t, api.ChangeSource(layer.Empty), ErrIdle)
	assert.Equal(t, machine.Snapshot{}, api.GetStatus())
	assert.NoError(t, api.Wait())
}

func TestChangeSource(t *testing.T) {
	z := &stuckZAxis{}
	api := New(testConfig(), Toolchain{ZAxis: z}, WithLogger(log.Nop()))
	require.NoError(t, api.PrintLayers(context.Background(), "job", layer.FromSlice(square(5)), false))
	require.Eventually(t, func() bool { return api.GetStatus().WaitingForDrips }, 2*time.Second, time.Millisecond)

	require.NoError(t, api.ChangeSource(layer.Empty))
	api.Stop()
	require.NoError(t, api.Wait())
}

func TestVerify(t *testing.T) {
	cfg := testConfig()
	cfg.Print.PrintSubLayers = true
	cfg.Print.SubLayerHeight = 0.01
	hist := &fakeRecorder{}
	api := New(cfg, Toolchain{Audio: &audio.Recorder{}, ZAxis: &stuckZAxis{}}, WithHistory(hist), WithLogger(log.Nop()))

	report, err := api.Verify(context.Background(), "check", layer.FromSlice(square(0), square(0.02)))
	require.NoError(t, err)
	require.NoError(t, report.Err)

	assert.Equal(t, machine.StatusComplete, report.Status.Status)
	// One sub-layer is inserted between the two layers.
	assert.Equal(t, 3, report.Status.CurrentLayer)
	assert.Positive(t, report.Laser.OnFrames)
	assert.Positive(t, report.Laser.Toggles)
	assert.Equal(t, 9, report.Path.Motions)
	// Each layer travels back to (1,1) and draws two unit edges.
	assert.InDelta(t, 6+3*math.Sqrt2, report.Path.Distance, 0.01)
	assert.Equal(t, history.OutcomeCompleted, hist.outcomes[1])
}

func TestPrintFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "part.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`layers:
  - z: 0
    commands:
      - move: {end: [1, 1], speed: 5}
      - draw: {start: [1, 1], end: [2, 1], speed: 5}
`), 0o644))

	api := New(testConfig(), Toolchain{}, WithLogger(log.Nop()))
	require.NoError(t, api.PrintFile(context.Background(), path, true))
	require.NoError(t, api.Wait())
	assert.Equal(t, 1, api.GetStatus().CurrentLayer)

	err := api.PrintFile(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), true)
	assert.True(t, perrors.Is(err, perrors.ErrLayerSource), "got %v", err)

	report, err := api.VerifyFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Path.Motions)
}

func TestHistoryStartFailureDoesNotBlockPrint(t *testing.T) {
	hist := &fakeRecorder{startErr: errors.New("disk full")}
	api := New(testConfig(), Toolchain{}, WithHistory(hist), WithLogger(log.Nop()))
	require.NoError(t, api.PrintLayers(context.Background(), "job", layer.FromSlice(square(0)), true))
	require.NoError(t, api.Wait())
	assert.Empty(t, hist.outcomes)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, history.OutcomeError, Outcome(machine.Snapshot{Status: machine.StatusComplete}, errors.New("x")))
	assert.Equal(t, history.OutcomeCompleted, Outcome(machine.Snapshot{Status: machine.StatusComplete}, nil))
	assert.Equal(t, history.OutcomeCancelled, Outcome(machine.Snapshot{Status: machine.StatusRunning}, nil))
}
