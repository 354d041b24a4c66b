package config

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Section provides access to a config section with access tracking.
type Section struct {
	name    string
	options map[string]string

	mu       sync.RWMutex
	accessed map[string]struct{}
}

func newSection(name string, options map[string]string) *Section {
	opts := make(map[string]string, len(options))
	for k, v := range options {
		opts[strings.ToLower(k)] = v
	}
	return &Section{
		name:     name,
		options:  opts,
		accessed: make(map[string]struct{}),
	}
}

// GetName returns the section name.
func (s *Section) GetName() string {
	return s.name
}

func (s *Section) markAccessed(option string) {
	s.mu.Lock()
	s.accessed[strings.ToLower(option)] = struct{}{}
	s.mu.Unlock()
}

// GetUnusedOptions returns the options that were never read, sorted.
func (s *Section) GetUnusedOptions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []string
	for opt := range s.options {
		if _, ok := s.accessed[opt]; !ok {
			result = append(result, opt)
		}
	}
	sort.Strings(result)
	return result
}

// HasOption checks if an option exists in this section.
func (s *Section) HasOption(option string) bool {
	_, ok := s.options[strings.ToLower(option)]
	return ok
}

// lookup returns the raw value of option and marks it accessed. With no
// value and no fallback it reports a missing option.
func (s *Section) lookup(option string, hasFallback bool) (string, bool, error) {
	v, ok := s.options[strings.ToLower(option)]
	if ok || hasFallback {
		s.markAccessed(option)
	}
	if !ok && !hasFallback {
		return "", false, errMissingOption(s.name, option)
	}
	return strings.TrimSpace(v), ok, nil
}

// Get returns a string option value, or the fallback if given and missing.
func (s *Section) Get(option string, fallback ...string) (string, error) {
	v, ok, err := s.lookup(option, len(fallback) > 0)
	if err != nil {
		return "", err
	}
	if !ok {
		return fallback[0], nil
	}
	return v, nil
}

// GetInt returns an integer option value.
func (s *Section) GetInt(option string, fallback ...int) (int, error) {
	v, ok, err := s.lookup(option, len(fallback) > 0)
	if err != nil {
		return 0, err
	}
	if !ok {
		return fallback[0], nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, errInvalidValue(s.name, option, v, "integer")
	}
	return i, nil
}

// GetFloat returns a float64 option value.
func (s *Section) GetFloat(option string, fallback ...float64) (float64, error) {
	v, ok, err := s.lookup(option, len(fallback) > 0)
	if err != nil {
		return 0, err
	}
	if !ok {
		return fallback[0], nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errInvalidValue(s.name, option, v, "float")
	}
	return f, nil
}

// FloatBounds specifies bounds for GetFloatWithBounds.
type FloatBounds struct {
	MinVal *float64 // minimum value (>=)
	MaxVal *float64 // maximum value (<=)
	Above  *float64 // must be above this value (>)
}

// Float returns a pointer to v, for building FloatBounds.
func Float(v float64) *float64 { return &v }

// GetFloatWithBounds returns a float64 option value with bounds checking.
func (s *Section) GetFloatWithBounds(option string, bounds FloatBounds, fallback ...float64) (float64, error) {
	v, err := s.GetFloat(option, fallback...)
	if err != nil {
		return 0, err
	}
	format := func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
	if bounds.MinVal != nil && v < *bounds.MinVal {
		return 0, errOutOfRange(s.name, option, v, "must have minimum of "+format(*bounds.MinVal))
	}
	if bounds.MaxVal != nil && v > *bounds.MaxVal {
		return 0, errOutOfRange(s.name, option, v, "must have maximum of "+format(*bounds.MaxVal))
	}
	if bounds.Above != nil && v <= *bounds.Above {
		return 0, errOutOfRange(s.name, option, v, "must be above "+format(*bounds.Above))
	}
	return v, nil
}

// GetBool returns a boolean option value.
// Accepts: 1, true, yes, on (true) and 0, false, no, off (false).
func (s *Section) GetBool(option string, fallback ...bool) (bool, error) {
	v, ok, err := s.lookup(option, len(fallback) > 0)
	if err != nil {
		return false, err
	}
	if !ok {
		return fallback[0], nil
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, errInvalidValue(s.name, option, v, "boolean (true/false/yes/no/on/off/1/0)")
	}
}

// GetDuration returns an option given as a number of the given unit, such as
// "wait_poll_interval_ms: 5" read with time.Millisecond.
func (s *Section) GetDuration(option string, unit time.Duration, fallback ...time.Duration) (time.Duration, error) {
	v, ok, err := s.lookup(option, len(fallback) > 0)
	if err != nil {
		return 0, err
	}
	if !ok {
		return fallback[0], nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, errInvalidValue(s.name, option, v, "non-negative number")
	}
	return time.Duration(f * float64(unit)), nil
}
