package machine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"peachy-go/pkg/geometry"
)

func TestStateDefaults(t *testing.T) {
	s := NewState(geometry.Origin, 0)
	assert.Equal(t, geometry.Origin, s.Position())
	assert.Zero(t, s.Speed())
}

func TestStateLastSetWins(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewState(geometry.Origin, 0)
		n := rapid.IntRange(1, 20).Draw(t, "n")
		var last geometry.Point
		var lastSpeed float64
		for i := 0; i < n; i++ {
			last = geometry.P(
				rapid.Float64Range(-100, 100).Draw(t, "x"),
				rapid.Float64Range(-100, 100).Draw(t, "y"),
				rapid.Float64Range(0, 50).Draw(t, "z"),
			)
			lastSpeed = rapid.Float64Range(0, 500).Draw(t, "speed")
			s.Set(last, lastSpeed)
		}
		if s.Position() != last || s.Speed() != lastSpeed {
			t.Fatalf("state %v, want %v @ %g", s, last, lastSpeed)
		}
	})
}
