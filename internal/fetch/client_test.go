package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faustostangler/FL2-sub000/internal/config"
	"github.com/faustostangler/FL2-sub000/internal/monitoring"
	"github.com/faustostangler/FL2-sub000/internal/pacer"
)

func testPacer() *pacer.Pacer {
	return pacer.New(pacer.Options{
		Probe:       func(time.Duration) (float64, error) { return 0, nil },
		Rand:        func() float64 { return 0 },
		CPUInterval: time.Millisecond,
	})
}

func newTestClient(metrics *monitoring.Collector, cfg config.HTTPConfig) *Client {
	if cfg.TimeoutSecs == 0 {
		cfg.TimeoutSecs = 2
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = []string{"agent-a", "agent-b"}
		cfg.Referers = []string{"https://ref.example/"}
		cfg.Languages = []string{"pt-BR"}
	}
	return NewClient(cfg, metrics, testPacer())
}

func TestFetchSuccessAccountsBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		assert.Equal(t, "https://ref.example/", r.Header.Get("Referer"))
		assert.Equal(t, "pt-BR", r.Header.Get("Accept-Language"))
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	metrics := monitoring.NewCollector()
	c := newTestClient(metrics, config.HTTPConfig{})

	body, sess, err := c.Fetch(context.Background(), nil, srv.URL, "w1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "hello world", string(body))
	assert.Equal(t, uint64(11), metrics.NetworkBytes())
	assert.Equal(t, uint64(11), metrics.WorkerBytes("w1"))
}

func TestFetchRetriesUntilSuccess(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	metrics := monitoring.NewCollector()
	c := newTestClient(metrics, config.HTTPConfig{})

	body, _, err := c.Fetch(context.Background(), nil, srv.URL, "")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), hits.Load())
	// Bytes are accounted only for the successful attempt.
	assert.Equal(t, uint64(2), metrics.NetworkBytes())
	assert.Equal(t, uint64(2), metrics.Snapshot(0).Failures)
}

func TestFetchWithLimitExhausts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(monitoring.NewCollector(), config.HTTPConfig{})
	_, _, err := c.FetchWithLimit(context.Background(), nil, srv.URL, "", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attempts exhausted")
}

func TestFetchBadScheme(t *testing.T) {
	c := newTestClient(nil, config.HTTPConfig{})
	_, _, err := c.Fetch(context.Background(), nil, "ftp://example.com/x", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")
}

func TestFetchContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient(nil, config.HTTPConfig{})
	_, _, err := c.Fetch(ctx, nil, "https://example.com/", "")
	assert.Error(t, err)
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(nil, config.HTTPConfig{ProbeURL: srv.URL})
	assert.True(t, c.Probe(context.Background()))

	srv.Close()
	assert.False(t, c.Probe(context.Background()))
}

func TestSessionHeaderRotationIsDeterministicWithInjectedRand(t *testing.T) {
	cfg := config.HTTPConfig{
		UserAgents: []string{"ua0", "ua1", "ua2"},
		Referers:   []string{"r0", "r1"},
		Languages:  []string{"l0"},
	}
	next := 0
	c := NewClient(cfg, nil, testPacer(), Options{RandIntN: func(n int) int {
		v := next % n
		next++
		return v
	}})

	s := c.NewSession()
	assert.Equal(t, "ua0", s.headers.Get("User-Agent"))
	assert.Equal(t, "r1", s.headers.Get("Referer"))
	assert.Equal(t, "l0", s.headers.Get("Accept-Language"))
}
