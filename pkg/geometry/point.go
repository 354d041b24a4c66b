// Package geometry holds the coordinate value types shared by the layer model,
// the machine state and the path-to-audio boundary.
package geometry

import (
	"fmt"
	"math"
)

// Point is a position in printer space, in millimeters.
type Point struct {
	X float64
	Y float64
	Z float64
}

// Origin is the machine home position.
var Origin = Point{}

// P is shorthand for building a Point.
func P(x, y, z float64) Point {
	return Point{X: x, Y: y, Z: z}
}

// WithZ returns a copy of p at height z.
func (p Point) WithZ(z float64) Point {
	p.Z = z
	return p
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y, Z: p.Z - q.Z}
}

// Distance returns the euclidean distance between p and q.
func (p Point) Distance(q Point) float64 {
	d := p.Sub(q)
	return math.Sqrt(d.X*d.X + d.Y*d.Y + d.Z*d.Z)
}

// XY returns the lateral components of p.
func (p Point) XY() (float64, float64) {
	return p.X, p.Y
}

// String formats the point as (x, y, z).
func (p Point) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", p.X, p.Y, p.Z)
}

// LateralDistance returns the distance between p and q ignoring z.
func (p Point) LateralDistance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}
