// Unit tests for Prometheus metrics implementation
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"strings"
	"sync"
	"testing"
)

// TestCounterBasic tests basic counter operations
func TestCounterBasic(t *testing.T) {
	c := NewCounter("test_counter", "A test counter")

	if v := c.Get(nil); v != 0 {
		t.Errorf("expected initial value 0, got %d", v)
	}
	c.Inc(nil)
	c.Add(nil, 10)
	if v := c.Get(nil); v != 11 {
		t.Errorf("expected value 11, got %d", v)
	}
	if c.Type() != TypeCounter || c.Type().String() != "counter" {
		t.Errorf("unexpected type %v", c.Type())
	}
}

// TestCounterWithLabels tests counter with labels
func TestCounterWithLabels(t *testing.T) {
	c := NewCounter("requests_total", "Total requests")

	get := Labels{"method": "GET"}
	post := Labels{"method": "POST"}
	c.Inc(get)
	c.Inc(get)
	c.Inc(post)

	if v := c.Get(get); v != 2 {
		t.Errorf("expected GET count 2, got %d", v)
	}
	if v := c.Get(post); v != 1 {
		t.Errorf("expected POST count 1, got %d", v)
	}
	if v := c.Get(Labels{"method": "PUT"}); v != 0 {
		t.Errorf("expected PUT count 0, got %d", v)
	}
}

// TestCounterConcurrency tests counter thread safety
func TestCounterConcurrency(t *testing.T) {
	c := NewCounter("concurrent_counter", "Test concurrent access")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.Inc(nil)
			}
		}()
	}
	wg.Wait()

	if v := c.Get(nil); v != 50000 {
		t.Errorf("expected 50000, got %d", v)
	}
}

// TestGaugeBasic tests basic gauge operations
func TestGaugeBasic(t *testing.T) {
	g := NewGauge("test_gauge", "A test gauge")

	g.Set(nil, 42.5)
	if v := g.Get(nil); v != 42.5 {
		t.Errorf("expected 42.5, got %f", v)
	}
	g.Add(nil, -2.5)
	if v := g.Get(nil); v != 40 {
		t.Errorf("expected 40, got %f", v)
	}
	g.SetBool(nil, true)
	if v := g.Get(nil); v != 1 {
		t.Errorf("expected 1, got %f", v)
	}
	g.SetBool(nil, false)
	if v := g.Get(nil); v != 0 {
		t.Errorf("expected 0, got %f", v)
	}
}

// TestHistogramBasic tests histogram bucket counting
func TestHistogramBasic(t *testing.T) {
	h := NewHistogram("test_histogram", "A test histogram", []float64{10, 1, 5})

	for _, v := range []float64{0.5, 1, 3, 7, 20} {
		h.Observe(nil, v)
	}

	snap := h.Snapshot(nil)
	if snap.Count != 5 {
		t.Errorf("expected count 5, got %d", snap.Count)
	}
	if snap.Sum != 31.5 {
		t.Errorf("expected sum 31.5, got %f", snap.Sum)
	}
	want := map[float64]uint64{1: 2, 5: 3, 10: 4}
	for bound, n := range want {
		if snap.Buckets[bound] != n {
			t.Errorf("bucket le=%g: expected %d, got %d", bound, n, snap.Buckets[bound])
		}
	}

	empty := h.Snapshot(Labels{"x": "y"})
	if empty.Count != 0 || len(empty.Buckets) != 0 {
		t.Errorf("expected empty snapshot, got %+v", empty)
	}
}

// TestRegistry tests registration and duplicate detection
func TestRegistry(t *testing.T) {
	r := NewRegistry()
	c := NewCounter("a_total", "A")
	if err := r.Register(c); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(NewGauge("a_total", "dup")); err == nil {
		t.Error("expected duplicate registration error")
	}
	if r.Get("a_total") != c {
		t.Error("Get returned the wrong metric")
	}
	if r.Get("missing") != nil {
		t.Error("expected nil for unknown metric")
	}

	defer func() {
		if recover() == nil {
			t.Error("MustRegister should panic on duplicates")
		}
	}()
	r.MustRegister(c)
}

// TestRegistryGather tests Prometheus text output
func TestRegistryGather(t *testing.T) {
	r := NewRegistry()
	c := NewCounter("jobs_total", "Jobs run")
	g := NewGauge("height_mm", "Height")
	h := NewHistogram("layer_seconds", "Layer time", []float64{1})
	r.MustRegister(c)
	r.MustRegister(g)
	r.MustRegister(h)

	c.Inc(Labels{"outcome": "completed"})
	c.Inc(Labels{"outcome": "cancelled"})
	g.Set(nil, 1.25)
	h.Observe(nil, 0.5)
	h.Observe(nil, 2)

	out := r.Gather()
	expected := []string{
		"# HELP jobs_total Jobs run\n# TYPE jobs_total counter\n",
		"jobs_total{outcome=\"cancelled\"} 1\njobs_total{outcome=\"completed\"} 1\n",
		"# TYPE height_mm gauge\nheight_mm 1.25\n",
		"layer_seconds_bucket{le=\"1\"} 1\n",
		"layer_seconds_bucket{le=\"+Inf\"} 2\n",
		"layer_seconds_sum 2.5\n",
		"layer_seconds_count 2\n",
	}
	for _, want := range expected {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "jobs_total") > strings.Index(out, "height_mm") {
		t.Error("metrics should be written in registration order")
	}
}

// TestLabelsString tests label formatting and escaping
func TestLabelsString(t *testing.T) {
	if s := Labels(nil).String(); s != "" {
		t.Errorf("expected empty string, got %q", s)
	}
	l := Labels{"b": "2", "a": "say \"hi\"\n\\"}
	want := `{a="say \"hi\"\n\\",b="2"}`
	if s := l.String(); s != want {
		t.Errorf("expected %s, got %s", want, s)
	}
	if l.key() != (Labels{"a": l["a"], "b": "2"}).key() {
		t.Error("key should not depend on map order")
	}
}

func BenchmarkCounterInc(b *testing.B) {
	c := NewCounter("bench_counter", "")
	for i := 0; i < b.N; i++ {
		c.Inc(nil)
	}
}

func BenchmarkRegistryGather(b *testing.B) {
	m := NewPrintMetrics()
	for i := 0; i < b.N; i++ {
		_ = m.Gather()
	}
}
