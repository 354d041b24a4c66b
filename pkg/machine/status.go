package machine

import (
	"sync"
	"time"
)

// StatusCode is the coarse progress of a print.
type StatusCode string

const (
	StatusStarting StatusCode = "Starting"
	StatusRunning  StatusCode = "Running"
	StatusComplete StatusCode = "Complete"
)

const errorTimeFormat = "2006-01-02 15:04:05"

// Error is a timestamped message recorded during a print.
type Error struct {
	Timestamp time.Time
	Message   string
}

func (e Error) String() string {
	return e.Timestamp.Format(errorTimeFormat) + " - " + e.Message
}

// Snapshot is a point-in-time copy of a Status.
type Snapshot struct {
	StartTime       time.Time     `json:"start_time"`
	ElapsedTime     time.Duration `json:"elapsed_time"`
	CurrentLayer    int           `json:"current_layer"`
	Status          StatusCode    `json:"status"`
	Errors          []string      `json:"errors"`
	WaitingForDrips bool          `json:"waiting_for_drips"`
	Height          float64       `json:"height"`
	Drips           int           `json:"drips"`
}

// Observer receives a snapshot after every status mutation. OnStatus is called
// synchronously from the mutating goroutine; it must not block or panic.
type Observer interface {
	OnStatus(Snapshot)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Snapshot)

// OnStatus calls f.
func (f ObserverFunc) OnStatus(s Snapshot) { f(s) }

// Observers fans a snapshot out to several observers in order.
type Observers []Observer

// OnStatus notifies every non-nil observer.
func (o Observers) OnStatus(s Snapshot) {
	for _, obs := range o {
		if obs != nil {
			obs.OnStatus(s)
		}
	}
}

// Status is the shared, observable record of a print's progress. All methods
// are safe for concurrent use. Once Completed has been called every other
// mutation is ignored.
type Status struct {
	mu       sync.Mutex
	observer Observer
	now      func() time.Time

	start     time.Time
	finished  time.Time
	layers    int
	errors    []Error
	waiting   bool
	height    float64
	drips     int
	completed bool
}

// NewStatus returns a status whose start time is now. observer may be nil.
func NewStatus(observer Observer) *Status {
	return newStatusAt(observer, time.Now)
}

func newStatusAt(observer Observer, now func() time.Time) *Status {
	return &Status{observer: observer, now: now, start: now()}
}

// DripUpdate records the latest drip count and height.
func (s *Status) DripUpdate(drips int, height float64) {
	s.update(func() {
		s.drips = drips
		s.height = height
	})
}

// LayerCompleted increments the completed layer count.
func (s *Status) LayerCompleted() {
	s.update(func() { s.layers++ })
}

// ErrorAdded appends a timestamped error.
func (s *Status) ErrorAdded(message string) {
	s.update(func() {
		s.errors = append(s.errors, Error{Timestamp: s.now(), Message: message})
	})
}

// WaitingStarted marks the print as waiting for drips.
func (s *Status) WaitingStarted() {
	s.update(func() { s.waiting = true })
}

// WaitingStopped clears the waiting flag.
func (s *Status) WaitingStopped() {
	s.update(func() { s.waiting = false })
}

// Completed marks the print complete. It is terminal.
func (s *Status) Completed() {
	s.update(func() {
		s.completed = true
		s.finished = s.now()
	})
}

// IsComplete reports whether Completed has been called.
func (s *Status) IsComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// Errors returns a copy of the recorded errors in insertion order.
func (s *Status) Errors() []Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Error(nil), s.errors...)
}

// Snapshot returns a copy of the current status.
func (s *Status) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// update applies fn under the lock and pushes a snapshot outside it.
func (s *Status) update(fn func()) {
	s.mu.Lock()
	if s.completed {
		s.mu.Unlock()
		return
	}
	fn()
	snap := s.snapshotLocked()
	observer := s.observer
	s.mu.Unlock()

	if observer != nil {
		observer.OnStatus(snap)
	}
}

func (s *Status) snapshotLocked() Snapshot {
	end := s.finished
	if !s.completed {
		end = s.now()
	}
	errs := make([]string, len(s.errors))
	for i, e := range s.errors {
		errs[i] = e.String()
	}
	return Snapshot{
		StartTime:       s.start,
		ElapsedTime:     end.Sub(s.start),
		CurrentLayer:    s.layers,
		Status:          s.codeLocked(),
		Errors:          errs,
		WaitingForDrips: s.waiting,
		Height:          s.height,
		Drips:           s.drips,
	}
}

// codeLocked derives the coarse status. Completion wins over the
// no-progress heuristic so an empty print never reports Starting at the end.
func (s *Status) codeLocked() StatusCode {
	switch {
	case s.completed:
		return StatusComplete
	case s.drips == 0 && s.layers == 0:
		return StatusStarting
	default:
		return StatusRunning
	}
}
