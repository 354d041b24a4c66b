package controller

import (
	"peachy-go/pkg/audio"
	"peachy-go/pkg/geometry"
)

// LaserControl switches the laser and modulates motion paths into samples.
// SetLaserOn and SetLaserOff are fire-and-forget. Modulate must not keep
// path; the controller recycles it once Modulate returns.
type LaserControl interface {
	SetLaserOn()
	SetLaserOff()
	Modulate(path audio.Path) (audio.Samples, error)
}

// PathToAudio turns a straight motion into a deflection path.
type PathToAudio interface {
	Process(from, to geometry.Point, speed float64) (audio.Path, error)
}

// AudioWriter is the sink for modulated samples. WriteChunk is called for
// every motion, including zero-motion refreshes while waiting for the z-axis.
// The chunk is recycled after WriteChunk returns, so sinks that keep samples
// must copy them.
type AudioWriter interface {
	WriteChunk(samples audio.Samples) error
	Close() error
}

// ZAxis reports the height of the print surface. The drip callback is
// invoked from the z-axis goroutine.
type ZAxis interface {
	Start() error
	Stop() error
	CurrentHeight() float64
	SetDripCallback(fn func(drips int, height float64))
}

// ZAxisControl raises the print surface, typically by opening a drip valve.
type ZAxisControl interface {
	MoveUp() error
	Stop() error
}

// Collaborators are the devices a controller drives. Laser and Path are
// required. A nil Audio writes to audio.Discard; a nil ZAxis disables
// z-axis waits; ZAxisControl is optional.
type Collaborators struct {
	Laser        LaserControl
	Path         PathToAudio
	Audio        AudioWriter
	ZAxis        ZAxis
	ZAxisControl ZAxisControl
}
