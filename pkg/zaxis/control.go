package zaxis

import (
	"fmt"
	"io"
	"sync"

	"peachy-go/pkg/errors"
	"peachy-go/pkg/log"
	"peachy-go/pkg/serial"
)

type valveState int

const (
	valveUnknown valveState = iota
	valveOpen
	valveClosed
)

func (s valveState) String() string {
	switch s {
	case valveOpen:
		return "open"
	case valveClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SerialControl opens and closes the drip valve by writing command strings to
// a serial device. A command is only sent when the valve state changes.
type SerialControl struct {
	mu     sync.Mutex
	w      io.Writer
	on     string
	off    string
	state  valveState
	log    *log.Logger
	closer io.Closer
}

// NewSerialControl writes onCommand and offCommand to w.
func NewSerialControl(w io.Writer, onCommand, offCommand string, logger *log.Logger) *SerialControl {
	if logger == nil {
		logger = log.GetLogger("zaxis")
	}
	c := &SerialControl{w: w, on: onCommand, off: offCommand, log: logger}
	if closer, ok := w.(io.Closer); ok {
		c.closer = closer
	}
	return c
}

// OpenSerialControl opens the serial port in cfg for valve control.
func OpenSerialControl(cfg serial.Config, onCommand, offCommand string, logger *log.Logger) (*SerialControl, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrZAxisControl, fmt.Sprintf("open valve port %s", cfg.Device))
	}
	return NewSerialControl(port, onCommand, offCommand, logger), nil
}

// MoveUp opens the valve.
func (c *SerialControl) MoveUp() error {
	return c.set(valveOpen, c.on)
}

// Stop closes the valve.
func (c *SerialControl) Stop() error {
	return c.set(valveClosed, c.off)
}

func (c *SerialControl) set(state valveState, cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == state {
		return nil
	}
	if _, err := io.WriteString(c.w, cmd); err != nil {
		c.state = valveUnknown
		return fmt.Errorf("zaxis: write %q: %w", cmd, err)
	}
	c.state = state
	c.log.WithField("command", cmd).Debug("valve %s", state)
	return nil
}

// Close releases the underlying device if it can be closed.
func (c *SerialControl) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
