package layer

import "math"

// SubLayerSource fills the gap between consecutive layers with copies of the
// upcoming layer at intermediate heights, spaced by Height. Sub-layers keep the
// laser curing while the resin rises between two widely spaced slices.
type SubLayerSource struct {
	upstream Source
	height   float64

	started bool
	lastZ   float64
	pending []Layer
}

// NewSubLayerSource wraps upstream. A non-positive height disables sub-layers.
func NewSubLayerSource(upstream Source, height float64) *SubLayerSource {
	return &SubLayerSource{upstream: upstream, height: height}
}

// Next returns the next sub-layer or layer.
func (s *SubLayerSource) Next() (Layer, bool) {
	if len(s.pending) > 0 {
		l := s.pending[0]
		s.pending = s.pending[1:]
		s.lastZ = l.Z
		return l, true
	}

	l, ok := s.upstream.Next()
	if !ok {
		return Layer{}, false
	}
	if !s.started || s.height <= 0 {
		s.started = true
		s.lastZ = l.Z
		return l, true
	}

	// Epsilon keeps float noise from emitting a sub-layer right at l.Z.
	const epsilon = 1e-9
	for z := s.lastZ + s.height; z < l.Z-epsilon; z += s.height {
		s.pending = append(s.pending, l.AtHeight(round(z)))
	}
	s.pending = append(s.pending, l)
	return s.Next()
}

func round(z float64) float64 {
	return math.Round(z*1e6) / 1e6
}
