package layer

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"peachy-go/pkg/geometry"
)

// fileLayers is the on-disk layer file format.
//
//	layers:
//	  - z: 0.0
//	    commands:
//	      - move: {end: [1, 1, 0], speed: 5}
//	      - draw: {start: [1, 1, 0], end: [2, 1, 0], speed: 5}
type fileLayers struct {
	Layers []fileLayer `yaml:"layers"`
}

type fileLayer struct {
	Z        float64       `yaml:"z"`
	Commands []fileCommand `yaml:"commands"`
}

type fileCommand struct {
	Move *fileMotion `yaml:"move,omitempty"`
	Draw *fileMotion `yaml:"draw,omitempty"`
}

type fileMotion struct {
	Start []float64 `yaml:"start,omitempty"`
	End   []float64 `yaml:"end"`
	Speed float64   `yaml:"speed"`
}

// LoadFile reads a YAML layer file.
func LoadFile(path string) (*SliceSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("layer: open %s: %w", path, err)
	}
	defer f.Close()

	layers, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("layer: %s: %w", path, err)
	}
	return FromSlice(layers...), nil
}

// Decode parses layers from YAML.
func Decode(r io.Reader) ([]Layer, error) {
	var doc fileLayers
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	layers := make([]Layer, 0, len(doc.Layers))
	for i, fl := range doc.Layers {
		l := Layer{Z: fl.Z, Commands: make([]Command, 0, len(fl.Commands))}
		for j, fc := range fl.Commands {
			cmd, err := fc.command(fl.Z)
			if err != nil {
				return nil, fmt.Errorf("layer %d command %d: %w", i, j, err)
			}
			l.Commands = append(l.Commands, cmd)
		}
		layers = append(layers, l)
	}
	return layers, nil
}

func (fc fileCommand) command(z float64) (Command, error) {
	switch {
	case fc.Move != nil && fc.Draw != nil:
		return nil, fmt.Errorf("both move and draw set")
	case fc.Move != nil:
		end, err := toPoint(fc.Move.End, z)
		if err != nil {
			return nil, fmt.Errorf("end: %w", err)
		}
		return Move(end, fc.Move.Speed), nil
	case fc.Draw != nil:
		start, err := toPoint(fc.Draw.Start, z)
		if err != nil {
			return nil, fmt.Errorf("start: %w", err)
		}
		end, err := toPoint(fc.Draw.End, z)
		if err != nil {
			return nil, fmt.Errorf("end: %w", err)
		}
		return Draw(start, end, fc.Draw.Speed), nil
	default:
		return nil, fmt.Errorf("neither move nor draw set")
	}
}

// toPoint accepts [x, y] (taking z from the layer) or [x, y, z].
func toPoint(v []float64, z float64) (geometry.Point, error) {
	switch len(v) {
	case 2:
		return geometry.P(v[0], v[1], z), nil
	case 3:
		return geometry.P(v[0], v[1], v[2]), nil
	default:
		return geometry.Point{}, fmt.Errorf("expected 2 or 3 coordinates, got %d", len(v))
	}
}
