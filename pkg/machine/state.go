// Package machine tracks where the printer is and how the print is going.
package machine

import (
	"fmt"

	"peachy-go/pkg/geometry"
)

// State is the position and speed after the last fully executed motion.
// It is owned by the controller goroutine and is not safe for concurrent use.
type State struct {
	position geometry.Point
	speed    float64
}

// NewState returns a state at p with the given speed.
func NewState(p geometry.Point, speed float64) *State {
	return &State{position: p, speed: speed}
}

// Position returns the current position.
func (s *State) Position() geometry.Point { return s.position }

// Speed returns the speed of the last motion.
func (s *State) Speed() float64 { return s.speed }

// Set overwrites position and speed. No validation is done.
func (s *State) Set(p geometry.Point, speed float64) {
	s.position = p
	s.speed = speed
}

func (s *State) String() string {
	return fmt.Sprintf("%v @ %g", s.position, s.speed)
}
