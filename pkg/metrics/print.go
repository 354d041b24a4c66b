package metrics

import (
	"sync"
	"time"

	"peachy-go/pkg/machine"
)

// PrintMetrics exports print status as Prometheus metrics. It implements
// machine.Observer so it can be attached to a print's status.
type PrintMetrics struct {
	Registry *Registry

	Layers        *Gauge
	Drips         *Gauge
	Height        *Gauge
	Waiting       *Gauge
	Errors        *Gauge
	Complete      *Gauge
	Updates       *Counter
	LayerDuration *Histogram

	mu        sync.Mutex
	lastLayer int
	lastAt    time.Time
	now       func() time.Time
}

// NewPrintMetrics registers the print metrics on a fresh registry.
func NewPrintMetrics() *PrintMetrics {
	m := &PrintMetrics{
		Registry:      NewRegistry(),
		Layers:        NewGauge("peachy_layers_completed", "Layers completed in the current print"),
		Drips:         NewGauge("peachy_drips", "Drips counted by the z-axis"),
		Height:        NewGauge("peachy_height_mm", "Current z height in millimetres"),
		Waiting:       NewGauge("peachy_waiting_for_drips", "1 while the print waits for the z-axis"),
		Errors:        NewGauge("peachy_errors", "Errors recorded in the current print"),
		Complete:      NewGauge("peachy_print_complete", "1 once the print has terminated"),
		Updates:       NewCounter("peachy_status_updates_total", "Status updates observed"),
		LayerDuration: NewHistogram("peachy_layer_duration_seconds", "Time between completed layers", DefaultBuckets()),
		now:           time.Now,
	}
	for _, metric := range []Metric{m.Layers, m.Drips, m.Height, m.Waiting, m.Errors, m.Complete, m.Updates, m.LayerDuration} {
		m.Registry.MustRegister(metric)
	}
	return m
}

// OnStatus updates the metrics from a status snapshot.
func (m *PrintMetrics) OnStatus(s machine.Snapshot) {
	m.Updates.Inc(nil)
	m.Layers.Set(nil, float64(s.CurrentLayer))
	m.Drips.Set(nil, float64(s.Drips))
	m.Height.Set(nil, s.Height)
	m.Waiting.SetBool(nil, s.WaitingForDrips)
	m.Errors.Set(nil, float64(len(s.Errors)))
	m.Complete.SetBool(nil, s.Status == machine.StatusComplete)

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	switch {
	case m.lastAt.IsZero() || s.CurrentLayer < m.lastLayer:
		// First snapshot of a print.
		m.lastAt = now
	case s.CurrentLayer > m.lastLayer:
		m.LayerDuration.Observe(nil, now.Sub(m.lastAt).Seconds())
		m.lastAt = now
	}
	m.lastLayer = s.CurrentLayer
}

// Gather renders the print metrics.
func (m *PrintMetrics) Gather() string {
	return m.Registry.Gather()
}
