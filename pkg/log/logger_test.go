// Structured logging tests
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newTestLogger(prefix string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := New(prefix)
	logger.SetWriter(&buf)
	logger.SetLevel(DEBUG)
	logger.SetColorize(false)
	return logger, &buf
}

func TestLoggerBasic(t *testing.T) {
	logger, buf := newTestLogger("test")

	logger.Info("layer %d at %.2fmm", 3, 0.3)

	output := buf.String()
	if !strings.Contains(output, "[INFO ]") {
		t.Errorf("expected INFO level, got: %s", output)
	}
	if !strings.Contains(output, "test:") {
		t.Errorf("expected prefix 'test:', got: %s", output)
	}
	if !strings.Contains(output, "layer 3 at 0.30mm") {
		t.Errorf("expected formatted message, got: %s", output)
	}
}

func TestLoggerLevels(t *testing.T) {
	logger, buf := newTestLogger("test")
	logger.SetLevel(WARN)

	logger.Debug("debug message")
	logger.Info("info message")
	if buf.Len() != 0 {
		t.Errorf("expected DEBUG and INFO to be filtered, got: %s", buf.String())
	}

	logger.Warn("warn message")
	logger.Error("error message")
	out := buf.String()
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Errorf("expected WARN and ERROR to pass, got: %s", out)
	}
}

func TestNamedSharesOutput(t *testing.T) {
	root, buf := newTestLogger("peachy")
	child := root.Named("controller")

	root.SetLevel(ERROR)
	child.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("child should follow root level, got: %s", buf.String())
	}

	root.SetLevel(DEBUG)
	child.Debug("visible")
	if !strings.Contains(buf.String(), "controller: visible") {
		t.Errorf("expected child prefix, got: %s", buf.String())
	}
}

func TestLoggerJSONWithFields(t *testing.T) {
	logger, buf := newTestLogger("test")
	logger.SetFormat(FormatJSON)

	logger.With(Fields{"job": "part.yaml"}).
		WithField("layer", 2).
		WithFields(Fields{"z": 0.2}).
		Info("layer done")

	var entry jsonEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v, output: %s", err, buf.String())
	}
	if entry.Level != "INFO" || entry.Logger != "test" || entry.Message != "layer done" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if len(entry.Fields) != 3 {
		t.Errorf("expected 3 fields, got %v", entry.Fields)
	}
	if entry.Fields["job"] != "part.yaml" {
		t.Errorf("expected persistent field, got %v", entry.Fields)
	}
}

func TestLoggerTextFieldsSorted(t *testing.T) {
	logger, buf := newTestLogger("test")

	logger.WithFields(Fields{"b": 2, "a": 1}).Warn("sorted")

	if !strings.Contains(buf.String(), "{a=1, b=2}") {
		t.Errorf("expected sorted fields, got: %s", buf.String())
	}
}

func TestLoggerWithError(t *testing.T) {
	logger, buf := newTestLogger("test")
	logger.SetFormat(FormatJSON)

	logger.WithError(errors.New("sink closed")).Error("write failed")

	var entry jsonEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if entry.Fields["error"] != "sink closed" {
		t.Errorf("expected error field, got: %v", entry.Fields)
	}
}

func TestLoggerCaller(t *testing.T) {
	logger, buf := newTestLogger("test")
	logger.SetCaller(true)

	logger.Info("caller test")
	logger.WithField("k", "v").Info("entry caller test")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	for _, line := range lines {
		if !strings.Contains(line, "logger_test.go:") {
			t.Errorf("expected caller info 'logger_test.go:', got: %s", line)
		}
	}
}

func TestNop(t *testing.T) {
	Nop().Error("nothing %d", 1)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"DEBUG", DEBUG},
		{"debug", DEBUG},
		{"INFO", INFO},
		{"warn", WARN},
		{"WARNING", WARN},
		{"error", ERROR},
		{"invalid", INFO},
		{"", INFO},
	}

	for _, tt := range tests {
		if result := ParseLevel(tt.input); result != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, expected %v", tt.input, result, tt.expected)
		}
	}
}

func TestParseFormat(t *testing.T) {
	if f, ok := ParseFormat("JSON"); !ok || f != FormatJSON {
		t.Errorf("ParseFormat(JSON) = %v, %v", f, ok)
	}
	if _, ok := ParseFormat("xml"); ok {
		t.Error("xml should not parse")
	}
}

func TestConfigureFromEnv(t *testing.T) {
	t.Setenv("PEACHY_LOG_LEVEL", "error")
	t.Setenv("PEACHY_LOG_FORMAT", "json")

	logger, buf := newTestLogger("env")
	ConfigureFromEnv(logger)

	if logger.GetLevel() != ERROR {
		t.Errorf("level = %v, want ERROR", logger.GetLevel())
	}
	logger.Error("boom")
	if !json.Valid(bytes.TrimSpace(buf.Bytes())) {
		t.Errorf("expected JSON output, got: %s", buf.String())
	}
}

func TestGetLogger(t *testing.T) {
	logger := GetLogger("mycomponent")
	if logger.prefix != "mycomponent" {
		t.Errorf("expected prefix 'mycomponent', got %q", logger.prefix)
	}
	if logger.out != Default().out {
		t.Error("component logger should share the default output")
	}
}

func BenchmarkLoggerJSON(b *testing.B) {
	var buf bytes.Buffer
	logger := New("bench")
	logger.SetWriter(&buf)
	logger.SetFormat(FormatJSON)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		logger.WithField("layer", i).Info("benchmark message")
	}
}

func BenchmarkLoggerFiltered(b *testing.B) {
	logger := New("bench")
	logger.SetWriter(&bytes.Buffer{})
	logger.SetLevel(ERROR)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("this should be filtered")
	}
}
