package dryrun

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peachy-go/pkg/audio"
	"peachy-go/pkg/geometry"
)

func TestLaserModulate(t *testing.T) {
	l := NewLaser()
	path := audio.Path{{X: 0.5, Y: -0.5}, {X: 1, Y: 1}}

	off, err := l.Modulate(path)
	require.NoError(t, err)
	assert.Equal(t, audio.Samples{{}, {}}, off)

	l.SetLaserOn()
	l.SetLaserOn()
	on, err := l.Modulate(path)
	require.NoError(t, err)
	assert.Equal(t, audio.Samples{{Left: 0.5, Right: -0.5}, {Left: 1, Right: 1}}, on)
	assert.True(t, l.On())

	l.SetLaserOff()
	assert.Equal(t, LaserStats{Toggles: 2, OnFrames: 2, OffFrames: 2}, l.Stats())
}

func TestPathInterpolates(t *testing.T) {
	p := NewPath(10, 10)

	// 5mm at 5mm/s is one second, ten samples plus the endpoint.
	out, err := p.Process(geometry.P(0, 0, 0), geometry.P(5, 0, 0), 5)
	require.NoError(t, err)
	require.Len(t, out, 11)
	assert.Equal(t, audio.Deflection{X: 0, Y: 0}, out[0])
	assert.InDelta(t, 0.5, out[10].X, 1e-9)

	stats := p.Stats()
	assert.Equal(t, 1, stats.Motions)
	assert.InDelta(t, 5, stats.Distance, 1e-9)
	assert.Equal(t, 11, stats.Points)
}

func TestPathZeroMotion(t *testing.T) {
	p := NewPath(0, 0)
	out, err := p.Process(geometry.P(1, 1, 0), geometry.P(1, 1, 0), 0)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestPathClampsAndCaps(t *testing.T) {
	p := NewPath(1e6, 1)
	out, err := p.Process(geometry.P(0, 0, 0), geometry.P(100, -100, 0), 1)
	require.NoError(t, err)
	assert.Len(t, out, maxPathPoints)
	last := out[len(out)-1]
	assert.Equal(t, 1.0, last.X)
	assert.Equal(t, -1.0, last.Y)
}
