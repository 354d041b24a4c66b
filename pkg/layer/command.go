// Package layer describes what the printer draws: layers of ordered motion
// commands, and the pull-based sources that produce them.
package layer

import (
	"fmt"

	"peachy-go/pkg/geometry"
)

// Handler executes commands. Implementations must handle every command
// variant, which keeps dispatch exhaustive at compile time.
type Handler interface {
	Draw(cmd LateralDraw) error
	Move(cmd LateralMove) error
}

// Command is one motion within a layer. The set of implementations is closed
// to this package.
type Command interface {
	// Accept dispatches the command to the matching Handler method.
	Accept(h Handler) error
	// Endpoint is where the machine ends up once the command has executed.
	Endpoint() geometry.Point
	// Rate is the requested motion speed.
	Rate() float64

	isCommand()
}

// LateralDraw moves from Start to End with the laser on.
type LateralDraw struct {
	Start geometry.Point
	End   geometry.Point
	Speed float64
}

func (c LateralDraw) Accept(h Handler) error   { return h.Draw(c) }
func (c LateralDraw) Endpoint() geometry.Point { return c.End }
func (c LateralDraw) Rate() float64            { return c.Speed }
func (LateralDraw) isCommand()                 {}

func (c LateralDraw) String() string {
	return fmt.Sprintf("draw %v -> %v @ %g", c.Start, c.End, c.Speed)
}

// LateralMove moves to End with the laser off.
type LateralMove struct {
	End   geometry.Point
	Speed float64
}

func (c LateralMove) Accept(h Handler) error   { return h.Move(c) }
func (c LateralMove) Endpoint() geometry.Point { return c.End }
func (c LateralMove) Rate() float64            { return c.Speed }
func (LateralMove) isCommand()                 {}

func (c LateralMove) String() string {
	return fmt.Sprintf("move -> %v @ %g", c.End, c.Speed)
}

// Draw builds a LateralDraw.
func Draw(start, end geometry.Point, speed float64) LateralDraw {
	return LateralDraw{Start: start, End: end, Speed: speed}
}

// Move builds a LateralMove.
func Move(end geometry.Point, speed float64) LateralMove {
	return LateralMove{End: end, Speed: speed}
}

// Layer is one z slice of the print.
type Layer struct {
	Z        float64
	Commands []Command
}

// New builds a layer at height z.
func New(z float64, commands ...Command) Layer {
	return Layer{Z: z, Commands: commands}
}

// AtHeight returns a copy of l moved to height z. Every command endpoint is
// moved along with it.
func (l Layer) AtHeight(z float64) Layer {
	out := Layer{Z: z, Commands: make([]Command, 0, len(l.Commands))}
	for _, cmd := range l.Commands {
		switch c := cmd.(type) {
		case LateralDraw:
			out.Commands = append(out.Commands, Draw(c.Start.WithZ(z), c.End.WithZ(z), c.Speed))
		case LateralMove:
			out.Commands = append(out.Commands, Move(c.End.WithZ(z), c.Speed))
		}
	}
	return out
}
