// Package printapi assembles controllers from configuration and exposes the
// print, verify, stop and status operations used by the CLI and the status
// server.
package printapi

import (
	"context"
	stderrors "errors"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"peachy-go/pkg/config"
	"peachy-go/pkg/controller"
	"peachy-go/pkg/dryrun"
	"peachy-go/pkg/errors"
	"peachy-go/pkg/history"
	"peachy-go/pkg/layer"
	"peachy-go/pkg/log"
	"peachy-go/pkg/machine"
)

var (
	// ErrBusy is returned when a print is started while another is running.
	ErrBusy = stderrors.New("printapi: a print is already running")
	// ErrIdle is returned by operations that need a print.
	ErrIdle = stderrors.New("printapi: no print has been started")
)

// Toolchain holds the devices used for real prints. A nil Laser or Path is
// replaced by the dry-run stand-ins; a nil Audio discards samples; a nil
// ZAxis prints without waiting. Audio is closed at the end of every print.
type Toolchain struct {
	Laser        controller.LaserControl
	Path         controller.PathToAudio
	Audio        controller.AudioWriter
	ZAxis        controller.ZAxis
	ZAxisControl controller.ZAxisControl
}

// Recorder stores job history.
type Recorder interface {
	StartJob(ctx context.Context, name string, dryRun bool) (int64, error)
	FinishJob(ctx context.Context, id int64, snap machine.Snapshot, outcome history.Outcome) error
}

// Option configures an API.
type Option func(*API)

// WithObserver adds an observer notified of every status change of every
// print.
func WithObserver(o machine.Observer) Option {
	return func(a *API) { a.observers = append(a.observers, o) }
}

// WithHistory records each print as a job.
func WithHistory(r Recorder) Option {
	return func(a *API) { a.history = r }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(a *API) { a.log = l }
}

// WithTracer sets the tracer handed to controllers.
func WithTracer(t trace.Tracer) Option {
	return func(a *API) { a.tracer = t }
}

// API runs one print at a time.
type API struct {
	cfg       *config.PrinterConfig
	tools     Toolchain
	observers machine.Observers
	history   Recorder
	log       *log.Logger
	tracer    trace.Tracer

	mu   sync.Mutex
	job  *job
	busy bool
}

// job is one started print.
type job struct {
	ctrl   *controller.Controller
	laser  *dryrun.Laser
	path   *dryrun.Path
	closed chan struct{} // closed after history is written
}

// New returns an API for cfg. A nil cfg uses the defaults.
func New(cfg *config.PrinterConfig, tools Toolchain, opts ...Option) *API {
	if cfg == nil {
		cfg = config.DefaultPrinterConfig()
	}
	a := &API{cfg: cfg, tools: tools}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = log.GetLogger("printapi")
	}
	return a
}

// PrintLayers starts printing src and returns once the print is running.
// name identifies the job in the history. A dry run uses no audio sink and
// no z-axis and never aborts on errors.
func (a *API) PrintLayers(ctx context.Context, name string, src layer.Source, dryRun bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.job != nil {
		select {
		case <-a.job.closed:
		default:
			return ErrBusy
		}
	}

	j := &job{closed: make(chan struct{})}
	collab := controller.Collaborators{Laser: a.tools.Laser, Path: a.tools.Path}
	if collab.Laser == nil {
		j.laser = dryrun.NewLaser()
		collab.Laser = j.laser
	}
	if collab.Path == nil {
		j.path = dryrun.NewPath(a.cfg.Laser.SampleRate, a.cfg.Laser.MaxDeflection)
		collab.Path = j.path
	}
	if !dryRun {
		collab.Audio = a.tools.Audio
		collab.ZAxis = a.tools.ZAxis
		collab.ZAxisControl = a.tools.ZAxisControl
	}

	observers := append(machine.Observers(nil), a.observers...)
	ctrl, err := controller.New(collab, src, controller.Config{
		MaxLeadDistance: a.cfg.Print.MaxLeadDistance,
		AbortOnError:    a.cfg.Print.AbortOnError && !dryRun,
		PollInterval:    a.cfg.Print.PollInterval,
		Observer:        observers,
		Logger:          a.log.Named("controller"),
		Tracer:          a.tracer,
	})
	if err != nil {
		return err
	}
	j.ctrl = ctrl

	var jobID int64
	if a.history != nil {
		if jobID, err = a.history.StartJob(ctx, name, dryRun); err != nil {
			a.log.WithError(err).Warn("Could not record job %q", name)
			jobID = 0
		}
	}

	if err := ctrl.Start(ctx); err != nil {
		return err
	}
	a.job = j
	a.log.WithFields(log.Fields{"job": name, "dry_run": dryRun}).Info("Print started")

	go a.finish(j, jobID)
	return nil
}

// finish waits for the controller and records the outcome.
func (a *API) finish(j *job, jobID int64) {
	defer close(j.closed)
	j.ctrl.Wait()

	snap := j.ctrl.Status()
	outcome := Outcome(snap, j.ctrl.Err())
	a.log.WithFields(log.Fields{"layers": snap.CurrentLayer, "errors": len(snap.Errors)}).Info("Print %s", outcome)

	if a.history == nil || jobID == 0 {
		return
	}
	if err := a.history.FinishJob(context.Background(), jobID, snap, outcome); err != nil {
		a.log.WithError(err).Warn("Could not record job outcome")
	}
}

// Outcome classifies a finished print.
func Outcome(snap machine.Snapshot, err error) history.Outcome {
	switch {
	case err != nil:
		return history.OutcomeError
	case snap.Status == machine.StatusComplete:
		return history.OutcomeCompleted
	default:
		return history.OutcomeCancelled
	}
}

// PrintFile loads a YAML layer file and prints it, inserting sub-layers when
// the configuration enables them.
func (a *API) PrintFile(ctx context.Context, path string, dryRun bool) error {
	src, err := a.openFile(path)
	if err != nil {
		return err
	}
	return a.PrintLayers(ctx, path, src, dryRun)
}

func (a *API) openFile(path string) (layer.Source, error) {
	layers, err := layer.LoadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrLayerSource, "load layer file")
	}
	return a.withSubLayers(layers), nil
}

func (a *API) withSubLayers(src layer.Source) layer.Source {
	if !a.cfg.Print.PrintSubLayers {
		return src
	}
	return layer.NewSubLayerSource(src, a.cfg.Print.SubLayerHeight)
}

// Report is the result of a verification run.
type Report struct {
	Status machine.Snapshot
	Laser  dryrun.LaserStats
	Path   dryrun.PathStats
	Err    error
}

// Verify dry-runs src to completion with the stand-in laser and path and
// reports what they saw.
func (a *API) Verify(ctx context.Context, name string, src layer.Source) (Report, error) {
	v := New(a.cfg, Toolchain{}, WithLogger(a.log), WithTracer(a.tracer))
	v.observers = a.observers
	v.history = a.history
	if err := v.PrintLayers(ctx, name, a.withSubLayers(src), true); err != nil {
		return Report{}, err
	}
	v.Wait()

	j := v.current()
	return Report{
		Status: j.ctrl.Status(),
		Laser:  j.laser.Stats(),
		Path:   j.path.Stats(),
		Err:    j.ctrl.Err(),
	}, nil
}

// VerifyFile verifies a YAML layer file.
func (a *API) VerifyFile(ctx context.Context, path string) (Report, error) {
	layers, err := layer.LoadFile(path)
	if err != nil {
		return Report{}, errors.Wrap(err, errors.ErrLayerSource, "load layer file")
	}
	return a.Verify(ctx, path, layers)
}

func (a *API) current() *job {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.job
}

// Stop stops the current print. Without one it only logs a warning.
func (a *API) Stop() {
	j := a.current()
	if j == nil {
		a.log.Warn("Stopped before printing")
		return
	}
	j.ctrl.Stop()
}

// ChangeSource switches the current print to src.
func (a *API) ChangeSource(src layer.Source) error {
	j := a.current()
	if j == nil {
		return ErrIdle
	}
	j.ctrl.ChangeSource(src)
	return nil
}

// GetStatus returns the status of the current or last print. Before the
// first print it returns the zero Snapshot.
func (a *API) GetStatus() machine.Snapshot {
	j := a.current()
	if j == nil {
		return machine.Snapshot{}
	}
	return j.ctrl.Status()
}

// Wait blocks until the current print has finished and its history has been
// written, and returns the error that ended it early, if any.
func (a *API) Wait() error {
	j := a.current()
	if j == nil {
		return nil
	}
	<-j.closed
	return j.ctrl.Err()
}
