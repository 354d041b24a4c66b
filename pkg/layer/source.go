package layer

import "sync"

// Source produces layers on demand. Next returns false once the source is
// exhausted; exhaustion is terminal and is not an error.
type Source interface {
	Next() (Layer, bool)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func() (Layer, bool)

// Next calls f.
func (f SourceFunc) Next() (Layer, bool) { return f() }

// SliceSource yields a fixed list of layers in order.
type SliceSource struct {
	mu     sync.Mutex
	layers []Layer
	next   int
}

// FromSlice returns a source over layers.
func FromSlice(layers ...Layer) *SliceSource {
	return &SliceSource{layers: layers}
}

// Next returns the next layer.
func (s *SliceSource) Next() (Layer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.layers) {
		return Layer{}, false
	}
	l := s.layers[s.next]
	s.next++
	return l, true
}

// Remaining returns how many layers have not been pulled yet.
func (s *SliceSource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.layers) - s.next
}

// Empty is a source that is exhausted from the start.
var Empty Source = SourceFunc(func() (Layer, bool) { return Layer{}, false })
