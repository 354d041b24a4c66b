// Package audio holds the value types exchanged between the path transform,
// the laser modulator and the audio sink.
package audio

// Deflection is one normalised mirror position in a path, each axis in [-1, 1].
type Deflection struct {
	X, Y float64
}

// Path is a sequence of deflections produced by the path transform.
type Path []Deflection

// Frame is one stereo sample.
type Frame struct {
	Left, Right float64
}

// Samples is a chunk of modulated audio ready for the sink.
type Samples []Frame

// Discard is a sink that accepts and drops every chunk. It is used for dry
// runs and when no sound device is configured.
var Discard = discard{}

type discard struct{}

func (discard) WriteChunk(Samples) error { return nil }
func (discard) Close() error             { return nil }

// Recorder is a sink that keeps every chunk it is given. It is safe for use
// by a single writer.
type Recorder struct {
	Chunks []Samples
	Closed bool
}

// WriteChunk appends a copy of s.
func (r *Recorder) WriteChunk(s Samples) error {
	r.Chunks = append(r.Chunks, append(Samples(nil), s...))
	return nil
}

// Close marks the recorder closed.
func (r *Recorder) Close() error {
	r.Closed = true
	return nil
}

// Frames returns the total number of frames written.
func (r *Recorder) Frames() int {
	n := 0
	for _, c := range r.Chunks {
		n += len(c)
	}
	return n
}
