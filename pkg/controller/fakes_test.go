package controller

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"peachy-go/pkg/audio"
	"peachy-go/pkg/geometry"
)

type fakeLaser struct {
	mu       sync.Mutex
	events   []string
	on       bool
	panicMsg string
}

func (l *fakeLaser) SetLaserOn() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = true
	l.events = append(l.events, "on")
}

func (l *fakeLaser) SetLaserOff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.on = false
	l.events = append(l.events, "off")
}

func (l *fakeLaser) Modulate(p audio.Path) (audio.Samples, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.panicMsg != "" {
		panic(l.panicMsg)
	}
	out := make(audio.Samples, len(p))
	for i, d := range p {
		if l.on {
			out[i] = audio.Frame{Left: d.X, Right: d.Y}
		}
	}
	return out, nil
}

func (l *fakeLaser) isOn() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

type move struct {
	from, to geometry.Point
	speed    float64
}

type fakePath struct {
	mu    sync.Mutex
	moves []move
	err   error
}

func (p *fakePath) Process(from, to geometry.Point, speed float64) (audio.Path, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.moves = append(p.moves, move{from, to, speed})
	return audio.Path{{X: from.X, Y: from.Y}, {X: to.X, Y: to.Y}}, nil
}

func (p *fakePath) recorded() []move {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]move(nil), p.moves...)
}

type fakeAudio struct {
	chunks   atomic.Int64
	closes   atomic.Int64
	writeErr error
	closeErr error
	// onWrite runs on the controller goroutine after each chunk, with the
	// running chunk count.
	onWrite func(n int64)
}

func (a *fakeAudio) WriteChunk(audio.Samples) error {
	if a.writeErr != nil {
		return a.writeErr
	}
	n := a.chunks.Add(1)
	if a.onWrite != nil {
		a.onWrite(n)
	}
	return nil
}

func (a *fakeAudio) Close() error {
	a.closes.Add(1)
	return a.closeErr
}

type fakeZAxis struct {
	heightBits atomic.Uint64
	starts     atomic.Int64
	stops      atomic.Int64
	startErr   error
	stopPanic  bool

	mu       sync.Mutex
	callback func(int, float64)
}

func newFakeZAxis(height float64) *fakeZAxis {
	z := &fakeZAxis{}
	z.setHeight(height)
	return z
}

func (z *fakeZAxis) setHeight(h float64) { z.heightBits.Store(math.Float64bits(h)) }

func (z *fakeZAxis) CurrentHeight() float64 { return math.Float64frombits(z.heightBits.Load()) }

func (z *fakeZAxis) Start() error {
	z.starts.Add(1)
	return z.startErr
}

func (z *fakeZAxis) Stop() error {
	z.stops.Add(1)
	if z.stopPanic {
		panic("stop exploded")
	}
	return nil
}

func (z *fakeZAxis) SetDripCallback(fn func(int, float64)) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.callback = fn
}

func (z *fakeZAxis) drip(n int, h float64) {
	z.mu.Lock()
	fn := z.callback
	z.mu.Unlock()
	if fn != nil {
		fn(n, h)
	}
}

type fakeControl struct {
	moveUps atomic.Int64
	stops   atomic.Int64
	moveErr error
}

func (c *fakeControl) MoveUp() error {
	c.moveUps.Add(1)
	return c.moveErr
}

func (c *fakeControl) Stop() error {
	c.stops.Add(1)
	return nil
}

var errDevice = errors.New("device unplugged")
