package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	r := NewRecorder()

	r.ObserveQuery("SUCCESS", false, 120*time.Millisecond)
	r.ObserveQuery("SUCCESS", true, 2*time.Millisecond)
	r.ObserveQuery("FAILED", false, 30*time.Millisecond)
	r.IncProviderCall("openai", "timeout")
	r.IncCacheEvent(CacheHit)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.queries.WithLabelValues("SUCCESS", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.queries.WithLabelValues("SUCCESS", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.queries.WithLabelValues("FAILED", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.providerCalls.WithLabelValues("openai", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheEvents.WithLabelValues(CacheHit)))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder

	assert.NotPanics(t, func() {
		r.ObserveQuery("SUCCESS", false, time.Second)
		r.ObserveStage(StageRetrieve, time.Second)
		r.ObserveRetrieved(3)
		r.IncProviderCall("ollama", "ok")
		r.IncCacheEvent(CacheMiss)
		r.AsyncStarted()
		r.AsyncFinished()
	})
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.ObserveStage(StageGenerate, 40*time.Millisecond)

	server := httptest.NewServer(r.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "rag_stage_latency_ms")
	assert.Contains(t, string(body), "go_goroutines")
}
