// Package dryrun provides laser and path collaborators that exercise a print
// without real hardware. They produce plausible samples and keep counters so
// a verify run can report what the print would have done.
package dryrun

import (
	"math"
	"sync"

	"peachy-go/pkg/audio"
	"peachy-go/pkg/geometry"
	"peachy-go/pkg/pool"
)

// maxPathPoints bounds the interpolated path of a single motion.
const maxPathPoints = 4096

// Laser records on/off state and turns a path into frames: full deflection
// while on, silence while off.
type Laser struct {
	mu    sync.Mutex
	on    bool
	stats LaserStats
}

// LaserStats summarises laser activity.
type LaserStats struct {
	Toggles   int
	OnFrames  int
	OffFrames int
}

// NewLaser returns a laser that starts off.
func NewLaser() *Laser { return &Laser{} }

func (l *Laser) SetLaserOn() { l.set(true) }

func (l *Laser) SetLaserOff() { l.set(false) }

func (l *Laser) set(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.on != on {
		l.stats.Toggles++
	}
	l.on = on
}

// Modulate returns one frame per path point.
func (l *Laser) Modulate(p audio.Path) (audio.Samples, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := pool.GetSamples(len(p))
	if l.on {
		for i, d := range p {
			out[i] = audio.Frame{Left: d.X, Right: d.Y}
		}
		l.stats.OnFrames += len(p)
	} else {
		l.stats.OffFrames += len(p)
	}
	return out, nil
}

// On reports whether the laser is on.
func (l *Laser) On() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}

// Stats returns the counters so far.
func (l *Laser) Stats() LaserStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Path interpolates straight motions at a fixed sample rate and normalises
// x and y into [-1, 1] using MaxDeflection as the half-width of the build area.
type Path struct {
	SampleRate    float64
	MaxDeflection float64

	mu    sync.Mutex
	stats PathStats
}

// PathStats summarises motions.
type PathStats struct {
	Motions  int
	Distance float64
	Points   int
}

// NewPath returns a path transform. Non-positive arguments fall back to
// 1000 samples per second and a 50mm half-width.
func NewPath(sampleRate, maxDeflection float64) *Path {
	if sampleRate <= 0 {
		sampleRate = 1000
	}
	if maxDeflection <= 0 {
		maxDeflection = 50
	}
	return &Path{SampleRate: sampleRate, MaxDeflection: maxDeflection}
}

// Process returns the deflections for moving from from to to at speed (mm/s).
// A zero-length or zero-speed motion yields just its endpoints.
func (p *Path) Process(from, to geometry.Point, speed float64) (audio.Path, error) {
	dist := from.LateralDistance(to)

	n := 2
	if dist > 0 && speed > 0 {
		n = int(math.Ceil(dist/speed*p.SampleRate)) + 1
	}
	if n < 2 {
		n = 2
	}
	if n > maxPathPoints {
		n = maxPathPoints
	}

	out := pool.GetPath(n)
	for i := 0; i < n; i++ {
		f := float64(i) / float64(n-1)
		out[i] = audio.Deflection{
			X: p.normalise(from.X + (to.X-from.X)*f),
			Y: p.normalise(from.Y + (to.Y-from.Y)*f),
		}
	}

	p.mu.Lock()
	p.stats.Motions++
	p.stats.Distance += dist
	p.stats.Points += n
	p.mu.Unlock()
	return out, nil
}

func (p *Path) normalise(v float64) float64 {
	return math.Max(-1, math.Min(1, v/p.MaxDeflection))
}

// Stats returns the counters so far.
func (p *Path) Stats() PathStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
