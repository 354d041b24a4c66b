package layer

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peachy-go/pkg/geometry"
)

type recordingHandler struct {
	calls []string
}

func (h *recordingHandler) Draw(cmd LateralDraw) error {
	h.calls = append(h.calls, "draw")
	return nil
}

func (h *recordingHandler) Move(cmd LateralMove) error {
	h.calls = append(h.calls, "move")
	return nil
}

func TestAcceptDispatches(t *testing.T) {
	h := &recordingHandler{}
	cmds := []Command{
		Move(geometry.P(1, 0, 0), 5),
		Draw(geometry.P(1, 0, 0), geometry.P(2, 0, 0), 5),
	}
	for _, c := range cmds {
		require.NoError(t, c.Accept(h))
	}
	assert.Equal(t, []string{"move", "draw"}, h.calls)
	assert.Equal(t, geometry.P(2, 0, 0), cmds[1].Endpoint())
	assert.Equal(t, 5.0, cmds[0].Rate())
}

func TestAtHeight(t *testing.T) {
	l := New(0.1,
		Move(geometry.P(1, 1, 0.1), 5),
		Draw(geometry.P(1, 1, 0.1), geometry.P(2, 2, 0.1), 3),
	)
	sub := l.AtHeight(0.05)

	assert.Equal(t, 0.05, sub.Z)
	assert.Equal(t, Move(geometry.P(1, 1, 0.05), 5), sub.Commands[0])
	assert.Equal(t, Draw(geometry.P(1, 1, 0.05), geometry.P(2, 2, 0.05), 3), sub.Commands[1])
	assert.Equal(t, 0.1, l.Commands[0].Endpoint().Z, "original untouched")
}

func TestSliceSource(t *testing.T) {
	src := FromSlice(New(0), New(0.1))
	assert.Equal(t, 2, src.Remaining())

	l, ok := src.Next()
	require.True(t, ok)
	assert.Equal(t, 0.0, l.Z)

	l, ok = src.Next()
	require.True(t, ok)
	assert.Equal(t, 0.1, l.Z)

	_, ok = src.Next()
	assert.False(t, ok)
	_, ok = src.Next()
	assert.False(t, ok, "exhaustion is terminal")
}

func TestEmpty(t *testing.T) {
	_, ok := Empty.Next()
	assert.False(t, ok)
}

func drain(s Source) []float64 {
	var zs []float64
	for {
		l, ok := s.Next()
		if !ok {
			return zs
		}
		zs = append(zs, l.Z)
	}
}

func TestSubLayerSource(t *testing.T) {
	src := NewSubLayerSource(FromSlice(
		New(0, Move(geometry.P(1, 0, 0), 5)),
		New(0.03, Move(geometry.P(2, 0, 0.03), 5)),
		New(0.035, Move(geometry.P(3, 0, 0.035), 5)),
	), 0.01)

	var layers []Layer
	for {
		l, ok := src.Next()
		if !ok {
			break
		}
		layers = append(layers, l)
	}

	var zs []float64
	for _, l := range layers {
		zs = append(zs, l.Z)
	}
	assert.Equal(t, []float64{0, 0.01, 0.02, 0.03, 0.035}, zs)
	assert.Equal(t, geometry.P(2, 0, 0.01), layers[1].Commands[0].Endpoint())
}

func TestSubLayerSourceDisabled(t *testing.T) {
	src := NewSubLayerSource(FromSlice(New(0), New(1)), 0)
	assert.Equal(t, []float64{0, 1}, drain(src))
}

const sample = `
layers:
  - z: 0.0
    commands:
      - move: {end: [1, 1], speed: 5}
      - draw: {start: [1, 1, 0], end: [2, 1, 0], speed: 5}
  - z: 0.1
    commands: []
`

func TestDecode(t *testing.T) {
	layers, err := Decode(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, layers, 2)

	assert.Equal(t, []Command{
		Move(geometry.P(1, 1, 0), 5),
		Draw(geometry.P(1, 1, 0), geometry.P(2, 1, 0), 5),
	}, layers[0].Commands)
	assert.Equal(t, 0.1, layers[1].Z)
	assert.Empty(t, layers[1].Commands)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"both", "layers: [{z: 0, commands: [{move: {end: [1,1]}, draw: {start: [0,0], end: [1,1]}}]}]", "both move and draw"},
		{"neither", "layers: [{z: 0, commands: [{}]}]", "neither move nor draw"},
		{"bad point", "layers: [{z: 0, commands: [{move: {end: [1]}}]}]", "expected 2 or 3 coordinates"},
		{"bad yaml", "layers: [", "decode yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDecodeEmpty(t *testing.T) {
	layers, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, layers)
}

func TestLoadFile(t *testing.T) {
	path := t.TempDir() + "/part.yaml"
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	src, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, src.Remaining())

	_, err = LoadFile(path + ".missing")
	assert.Error(t, err)
}
