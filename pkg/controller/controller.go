// Package controller runs a print: it pulls layers, waits for the z-axis,
// turns motion commands into audio and reports status until it terminates.
package controller

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"peachy-go/pkg/audio"
	"peachy-go/pkg/errors"
	"peachy-go/pkg/geometry"
	"peachy-go/pkg/layer"
	"peachy-go/pkg/log"
	"peachy-go/pkg/machine"
	"peachy-go/pkg/pool"
)

// ErrAlreadyStarted is returned by a second call to Start.
var ErrAlreadyStarted = stderrors.New("controller: already started")

// DefaultPollInterval is how long the z-axis wait sleeps between refreshes.
const DefaultPollInterval = time.Millisecond

// State is the lifecycle state of a controller.
type State int32

const (
	Created State = iota
	Starting
	Running
	ShuttingDown
	Terminated
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting_down"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config tunes a controller. The zero value is usable.
type Config struct {
	// MaxLeadDistance is how far (mm) the measured height may run ahead of a
	// layer's target before an error is recorded. Zero disables the check.
	MaxLeadDistance float64

	// AbortOnError stops the print when the lead distance is exceeded.
	AbortOnError bool

	// PollInterval bounds each sleep of the z-axis wait.
	PollInterval time.Duration

	// Observer receives a snapshot on every status change.
	Observer machine.Observer

	Logger *log.Logger
	Tracer trace.Tracer
}

// Controller executes layers from a source against its collaborators on its
// own goroutine. Stop, ChangeSource and Status may be called from any
// goroutine at any time.
type Controller struct {
	collab Collaborators
	audio  AudioWriter
	cfg    Config
	log    *log.Logger
	tracer trace.Tracer

	machine *machine.State
	status  *machine.Status

	// mu guards source; abort is only set together with a source swap.
	mu     sync.Mutex
	source layer.Source
	abort  atomic.Bool

	shutdown  atomic.Bool
	running   atomic.Bool
	started   atomic.Bool
	lifecycle atomic.Int32

	stopOnce sync.Once
	stopCh   chan struct{}
	termOnce sync.Once
	done     chan struct{}

	errMu sync.Mutex
	err   error
}

// New returns a controller in the Created state.
func New(c Collaborators, source layer.Source, cfg Config) (*Controller, error) {
	if c.Laser == nil {
		return nil, errors.New(errors.ErrController, "laser control is required")
	}
	if c.Path == nil {
		return nil, errors.New(errors.ErrController, "path transform is required")
	}
	if source == nil {
		source = layer.Empty
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = log.GetLogger("controller")
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("peachy-go/controller")
	}

	sink := c.Audio
	if sink == nil {
		sink = audio.Discard
	}

	return &Controller{
		collab:  c,
		audio:   sink,
		cfg:     cfg,
		log:     cfg.Logger,
		tracer:  cfg.Tracer,
		machine: machine.NewState(geometry.Origin, 0),
		status:  machine.NewStatus(cfg.Observer),
		source:  source,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start runs the print on a new goroutine and returns immediately.
// Cancelling ctx has the same effect as Stop.
func (c *Controller) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	c.lifecycle.CompareAndSwap(int32(Created), int32(Starting))
	c.running.Store(true)

	go func() {
		select {
		case <-ctx.Done():
			c.Stop()
		case <-c.done:
		}
	}()
	go c.run(ctx)
	return nil
}

// Stop requests shutdown. It does not block and may be called repeatedly.
func (c *Controller) Stop() {
	c.shutdown.Store(true)
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.lifecycle.CompareAndSwap(int32(Starting), int32(ShuttingDown))
	c.lifecycle.CompareAndSwap(int32(Running), int32(ShuttingDown))
}

// ChangeSource replaces the layer source. The remaining commands of the
// layer in progress are skipped once; later layers come from src.
func (c *Controller) ChangeSource(src layer.Source) {
	if src == nil {
		src = layer.Empty
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.source = src
	c.abort.Store(true)
}

// Status returns a snapshot of the print status.
func (c *Controller) Status() machine.Snapshot {
	return c.status.Snapshot()
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	return State(c.lifecycle.Load())
}

// Running reports whether the print loop has been started and not yet
// terminated.
func (c *Controller) Running() bool {
	return c.running.Load()
}

// Done is closed once the controller has terminated.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the controller has terminated.
func (c *Controller) Wait() {
	<-c.done
}

// Err returns the error that ended the print early, if any.
func (c *Controller) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Position returns the final machine position and speed once the controller
// has terminated. ok is false while it is still running.
func (c *Controller) Position() (p geometry.Point, speed float64, ok bool) {
	select {
	case <-c.done:
		return c.machine.Position(), c.machine.Speed(), true
	default:
		return geometry.Point{}, 0, false
	}
}

func (c *Controller) run(ctx context.Context) {
	defer close(c.done)

	ctx, span := c.tracer.Start(ctx, "controller.run")
	defer span.End()

	exhausted := false
	defer func() {
		if r := recover(); r != nil {
			c.fail(errors.FromPanic(r))
		}
		if err := c.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		c.terminate(exhausted)
	}()

	if z := c.collab.ZAxis; z != nil {
		z.SetDripCallback(c.status.DripUpdate)
		if err := z.Start(); err != nil {
			c.fail(errors.ZAxisError("start", err))
			return
		}
	}
	c.lifecycle.CompareAndSwap(int32(Starting), int32(Running))
	c.log.Info("print started")

	var err error
	exhausted, err = c.loop(ctx)
	if err != nil {
		c.fail(err)
	}
}

// loop prints layers until the source is exhausted, shutdown is requested or
// a collaborator fails. It reports true only for exhaustion.
func (c *Controller) loop(ctx context.Context) (bool, error) {
	exec := executor{c: c}
	for {
		if c.shutdown.Load() {
			return false, nil
		}
		l, ok, err := c.nextLayer()
		if err != nil {
			return false, err
		}
		if !ok {
			return true, nil
		}
		if err := c.printLayer(ctx, exec, l); err != nil {
			return false, err
		}
	}
}

func (c *Controller) nextLayer() (l layer.Layer, ok bool, err error) {
	c.mu.Lock()
	src := c.source
	c.abort.Store(false)
	c.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrap(errors.FromPanic(r), errors.ErrLayerSource, "layer source panicked")
		}
	}()
	l, ok = src.Next()
	return l, ok, nil
}

func (c *Controller) printLayer(ctx context.Context, exec executor, l layer.Layer) error {
	_, span := c.tracer.Start(ctx, "controller.layer", trace.WithAttributes(
		attribute.Float64("layer.z", l.Z),
		attribute.Int("layer.commands", len(l.Commands)),
	))
	defer span.End()

	ready, err := c.waitForZ(l.Z)
	if err != nil || !ready {
		return err
	}
	c.checkLead(l.Z)

	executed := 0
	for _, cmd := range l.Commands {
		if c.shutdown.Load() {
			return nil
		}
		if c.abort.CompareAndSwap(true, false) {
			span.SetAttributes(attribute.Bool("layer.aborted", true))
			c.log.WithField("z", l.Z).Info("layer aborted after %d of %d commands", executed, len(l.Commands))
			break
		}
		if err := cmd.Accept(exec); err != nil {
			span.RecordError(err)
			return err
		}
		executed++
	}

	c.status.LayerCompleted()
	c.log.WithFields(log.Fields{"z": l.Z, "commands": executed}).Debug("layer complete")
	return nil
}

// waitForZ blocks until the z-axis has reached target, keeping the audio
// stream fed with zero-motion refreshes. It returns false when shutdown was
// requested before the height was reached.
func (c *Controller) waitForZ(target float64) (bool, error) {
	z := c.collab.ZAxis
	if z == nil {
		return true, nil
	}

	waiting := false
	for z.CurrentHeight() < target {
		if c.shutdown.Load() {
			return false, nil
		}
		if !waiting {
			waiting = true
			c.status.WaitingStarted()
			c.log.WithField("target", target).Debug("waiting for drips")
			if ctl := c.collab.ZAxisControl; ctl != nil {
				if err := ctl.MoveUp(); err != nil {
					return false, errors.ZAxisControlError("move up", err)
				}
			}
		}
		c.collab.Laser.SetLaserOff()
		if err := c.moveTo(c.machine.Position(), c.machine.Speed()); err != nil {
			return false, err
		}
		if !c.pause() {
			return false, nil
		}
	}

	if waiting {
		c.status.WaitingStopped()
		if ctl := c.collab.ZAxisControl; ctl != nil {
			if err := ctl.Stop(); err != nil {
				return false, errors.ZAxisControlError("stop", err)
			}
		}
	}
	return true, nil
}

// pause sleeps for one poll interval. It returns false if Stop was called.
func (c *Controller) pause() bool {
	t := time.NewTimer(c.cfg.PollInterval)
	defer t.Stop()
	select {
	case <-c.stopCh:
		return false
	case <-t.C:
		return true
	}
}

func (c *Controller) checkLead(target float64) {
	z := c.collab.ZAxis
	if z == nil || c.cfg.MaxLeadDistance <= 0 {
		return
	}
	lead := z.CurrentHeight() - target
	if lead <= c.cfg.MaxLeadDistance {
		return
	}
	msg := fmt.Sprintf("Drips are leading the print by %.2fmm on layer at %.2fmm", lead, target)
	c.log.Warn(msg)
	c.status.ErrorAdded(msg)
	if c.cfg.AbortOnError {
		c.Stop()
	}
}

// moveTo runs one motion through the path, laser and audio pipeline and
// records the new position only once the samples are written.
func (c *Controller) moveTo(to geometry.Point, speed float64) error {
	path, err := c.collab.Path.Process(c.machine.Position(), to, speed)
	if err != nil {
		return errors.PathError(err)
	}
	samples, err := c.collab.Laser.Modulate(path)
	pool.PutPath(path)
	if err != nil {
		return errors.LaserError("modulate", err)
	}
	err = c.audio.WriteChunk(samples)
	pool.PutSamples(samples)
	if err != nil {
		return errors.AudioError("write", err)
	}
	c.machine.Set(to, speed)
	return nil
}

func (c *Controller) fail(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()

	c.log.WithError(err).Error("print failed")
	c.status.ErrorAdded(err.Error())
}

// terminate releases every resource exactly once. Each cleanup step is
// isolated so a failure in one never skips the others.
func (c *Controller) terminate(exhausted bool) {
	c.termOnce.Do(func() {
		c.Stop()
		c.lifecycle.Store(int32(ShuttingDown))

		if z := c.collab.ZAxis; z != nil {
			c.cleanup("z-axis stop", errors.ErrZAxis, z.Stop)
		}
		if ctl := c.collab.ZAxisControl; ctl != nil {
			c.cleanup("z-axis control stop", errors.ErrZAxisControl, ctl.Stop)
		}
		c.cleanup("audio close", errors.ErrAudio, c.audio.Close)

		if exhausted {
			c.status.Completed()
			c.log.Info("print complete")
		} else {
			c.log.Info("print stopped")
		}
		c.running.Store(false)
		c.lifecycle.Store(int32(Terminated))
	})
}

func (c *Controller) cleanup(step string, code errors.ErrorCode, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.Wrap(errors.FromPanic(r), code, step+" panicked")
			c.log.WithError(err).Error("cleanup failed")
			c.status.ErrorAdded(err.Error())
		}
	}()
	if err := fn(); err != nil {
		werr := errors.Wrap(err, code, step+" failed")
		c.log.WithError(werr).Error("cleanup failed")
		c.status.ErrorAdded(werr.Error())
	}
}

// executor dispatches commands for the controller goroutine.
type executor struct {
	c *Controller
}

func (e executor) Draw(cmd layer.LateralDraw) error {
	if e.c.machine.Position() != cmd.Start {
		e.c.collab.Laser.SetLaserOff()
		if err := e.c.moveTo(cmd.Start, cmd.Speed); err != nil {
			return err
		}
	}
	e.c.collab.Laser.SetLaserOn()
	return e.c.moveTo(cmd.End, cmd.Speed)
}

func (e executor) Move(cmd layer.LateralMove) error {
	e.c.collab.Laser.SetLaserOff()
	return e.c.moveTo(cmd.End, cmd.Speed)
}
