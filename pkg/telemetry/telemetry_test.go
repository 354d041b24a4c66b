package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peachy-go/pkg/log"
)

func TestOptionsFromEnv(t *testing.T) {
	tests := []struct {
		env      string
		endpoint string
		insecure bool
	}{
		{"", "", false},
		{"collector:4318", "collector:4318", false},
		{"http://localhost:4318/", "localhost:4318", true},
		{"https://otel.example.com", "otel.example.com", false},
	}
	for _, tt := range tests {
		t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", tt.env)
		t.Setenv("OTEL_SERVICE_NAME", "svc")
		opts := OptionsFromEnv()
		assert.Equal(t, tt.endpoint, opts.Endpoint, tt.env)
		assert.Equal(t, tt.insecure, opts.Insecure, tt.env)
		assert.Equal(t, "svc", opts.ServiceName)
	}
}

func TestSetupDisabled(t *testing.T) {
	p, err := Setup(context.Background(), Options{}, log.Nop())
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.NotNil(t, p.Tracer("x"))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestSetupEnabled(t *testing.T) {
	p, err := Setup(context.Background(), Options{Endpoint: "127.0.0.1:1", Insecure: true}, log.Nop())
	require.NoError(t, err)
	assert.True(t, p.Enabled())

	_, span := p.Tracer("test").Start(context.Background(), "span")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	// Nothing listens on the endpoint, so the flush may fail; shutdown must
	// still return.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = p.Shutdown(ctx)
}
