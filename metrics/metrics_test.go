// Copyright © 2024 The rapidls authors

package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservePass(t *testing.T) {
	m := New(nil)

	m.ObservePass(OutcomeDiagnostics, 20*time.Millisecond, 3)
	m.ObservePass(OutcomeClean, 10*time.Millisecond, 0)
	m.ObservePass(OutcomeFailed, time.Second, 7)
	m.ObservePass(OutcomeDiagnostics, time.Millisecond, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PassesTotal.WithLabelValues(OutcomeDiagnostics)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PassesTotal.WithLabelValues(OutcomeClean)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PassesTotal.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DiagnosticsLast), "failed passes publish nothing")
	assert.Equal(t, 3, testutil.CollectAndCount(m.PassDuration))
}

func TestOpenDocuments(t *testing.T) {
	m := New(nil)
	m.SetOpenDocuments(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OpenDocuments))
	m.SetOpenDocuments(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.OpenDocuments))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObservePass(OutcomeClean, time.Millisecond, 0)
	m.SetOpenDocuments(1)
}

func TestServer(t *testing.T) {
	m := New(nil)
	m.ObservePass(OutcomeDiagnostics, 5*time.Millisecond, 2)

	srv := NewServer("127.0.0.1:0", m)
	addr, err := srv.Start()
	require.NoError(t, err)
	defer srv.Stop(context.Background()) //nolint:errcheck // test cleanup

	get := func(path string) (int, string) {
		resp, err := http.Get("http://" + addr + path)
		require.NoError(t, err)
		defer resp.Body.Close() //nolint:errcheck // test cleanup
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	code, body := get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `rapidls_analysis_passes_total{outcome="diagnostics"} 1`)
	assert.Contains(t, body, "rapidls_diagnostics_published 2")

	code, body = get("/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok\n", body)

	require.NoError(t, srv.Stop(context.Background()))
}
