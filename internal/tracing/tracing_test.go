package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConfigFromEnv(t *testing.T) {
	env := map[string]string{}
	getenv := func(k string) string { return env[k] }

	assert.False(t, ConfigFromEnv("testrunner", "dev", "", getenv).Enabled)
	assert.True(t, ConfigFromEnv("testrunner", "dev", "http://localhost:4318", getenv).Enabled)

	env[EndpointEnv] = "http://collector:4318"
	assert.True(t, ConfigFromEnv("testrunner", "dev", "", getenv).Enabled)
}

func TestDisabledProviderIsNoop(t *testing.T) {
	p, err := Init(context.Background(), Config{ServiceName: "testrunner"})
	require.NoError(t, err)

	_, span := p.Tracer().Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, p.Shutdown(context.Background()))

	var nilProvider *Provider
	_, span = nilProvider.Tracer().Start(context.Background(), "noop")
	assert.False(t, span.IsRecording())
	assert.NoError(t, nilProvider.Shutdown(context.Background()))
}

func TestHTTPMiddleware(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	p := NewWithExporter("testrunner", exp)

	h := HTTPMiddleware(p)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/jobs", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, w.Header().Get("traceparent"))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /jobs", spans[0].Name)
	assert.Contains(t, spans[0].Attributes, attribute.Int("http.status_code", http.StatusNotFound))
	assert.Contains(t, spans[0].Attributes, attribute.Bool("error", true))
}
