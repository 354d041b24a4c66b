// Package zaxis turns drip events into print height and drives the valve
// that makes the resin rise.
package zaxis

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"peachy-go/pkg/errors"
	"peachy-go/pkg/log"
)

// DripSource reports drips by calling onDrip once per detected drip until
// ctx is cancelled.
type DripSource interface {
	Run(ctx context.Context, onDrip func()) error
}

// SimulatedDrips emits one drip per Interval.
type SimulatedDrips struct {
	Interval time.Duration
}

// Run emits drips until ctx is done.
func (s SimulatedDrips) Run(ctx context.Context, onDrip func()) error {
	if s.Interval <= 0 {
		return fmt.Errorf("zaxis: simulated drip interval must be positive, got %v", s.Interval)
	}
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			onDrip()
		}
	}
}

// DripZAxis derives height from a drip count: initial + drips / dripsPerMM.
type DripZAxis struct {
	source     DripSource
	dripsPerMM float64
	initial    float64
	log        *log.Logger

	height atomic.Uint64

	mu       sync.Mutex
	drips    int
	callback func(drips int, height float64)
	cancel   context.CancelFunc
	group    *errgroup.Group
}

// NewDripZAxis returns a z-axis fed by source. dripsPerMM must be positive.
func NewDripZAxis(source DripSource, dripsPerMM, initialHeight float64, logger *log.Logger) (*DripZAxis, error) {
	if source == nil {
		return nil, errors.New(errors.ErrZAxis, "drip source is required")
	}
	if dripsPerMM <= 0 {
		return nil, errors.New(errors.ErrZAxis, fmt.Sprintf("drips per mm must be positive, got %g", dripsPerMM))
	}
	if logger == nil {
		logger = log.GetLogger("zaxis")
	}
	z := &DripZAxis{source: source, dripsPerMM: dripsPerMM, initial: initialHeight, log: logger}
	z.height.Store(math.Float64bits(initialHeight))
	return z, nil
}

// Start begins counting drips on a background goroutine.
func (z *DripZAxis) Start() error {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.cancel != nil {
		return errors.New(errors.ErrZAxis, "already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return z.source.Run(ctx, z.onDrip)
	})
	z.cancel = cancel
	z.group = g
	z.log.WithFields(log.Fields{"drips_per_mm": z.dripsPerMM, "initial": z.initial}).Debug("drip counting started")
	return nil
}

// Stop halts the drip source and waits for it to return. Stopping a z-axis
// that is not running is a no-op.
func (z *DripZAxis) Stop() error {
	z.mu.Lock()
	cancel, g := z.cancel, z.group
	z.cancel, z.group = nil, nil
	z.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	if err := g.Wait(); err != nil && !stderrors.Is(err, context.Canceled) {
		return errors.ZAxisError("drip source", err)
	}
	return nil
}

// CurrentHeight returns the height in mm.
func (z *DripZAxis) CurrentHeight() float64 {
	return math.Float64frombits(z.height.Load())
}

// Drips returns the number of drips counted so far.
func (z *DripZAxis) Drips() int {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.drips
}

// SetDripCallback registers fn to be called after every drip.
func (z *DripZAxis) SetDripCallback(fn func(drips int, height float64)) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.callback = fn
}

func (z *DripZAxis) onDrip() {
	z.mu.Lock()
	z.drips++
	drips := z.drips
	h := z.initial + float64(drips)/z.dripsPerMM
	z.height.Store(math.Float64bits(h))
	fn := z.callback
	z.mu.Unlock()

	if fn != nil {
		fn(drips, h)
	}
}
