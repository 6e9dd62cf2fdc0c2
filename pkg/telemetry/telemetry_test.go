package telemetry

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(Config{}, nil)
	require.NoError(t, err)
	require.NotNil(t, tel.Tracer)
	require.NotNil(t, tel.Meter)
	require.Empty(t, tel.MetricsAddr())
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_ServesMetrics(t *testing.T) {
	tel, err := New(Config{
		Enabled:     true,
		ServiceName: "gojostm-test",
		MetricsAddr: "127.0.0.1:0",
	}, zap.NewNop())
	require.NoError(t, err)
	defer func() { require.NoError(t, tel.Shutdown(context.Background())) }()

	counter, err := tel.Meter.Int64Counter("gojostm.test.events")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	_, span := tel.Tracer.Start(context.Background(), "test")
	require.True(t, span.SpanContext().IsValid())
	span.End()

	resp, err := http.Get("http://" + tel.MetricsAddr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "gojostm_test_events")
	require.Contains(t, string(body), "go_goroutines")
}

func TestNew_BadAddr(t *testing.T) {
	_, err := New(Config{Enabled: true, MetricsAddr: "not an address"}, zap.NewNop())
	require.Error(t, err)
}
