package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	healthcheck "github.com/gwatkins2090/portfolio/internal/health"
)

func TestInitContent_RemoteCheckerUsesCountQuery(t *testing.T) {
	var (
		mu      sync.Mutex
		queries []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.URL.Query().Get("query"))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":3}`))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.ContentBaseURL = server.URL

	deps, err := initContent(cfg, nil, log.WithField("test", "content"))
	require.NoError(t, err)

	check := deps.checker.Check(context.Background())
	require.Equal(t, healthcheck.StatusHealthy, check.Status, check.Message)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{`count(*[_type == "artwork"])`}, queries)
}

func TestInitContent_RemoteCheckerReportsOutage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.ContentBaseURL = server.URL

	deps, err := initContent(cfg, nil, log.WithField("test", "content"))
	require.NoError(t, err)
	require.Equal(t, healthcheck.StatusUnhealthy, deps.checker.Check(context.Background()).Status)
}

func TestInitContent_FallbackIsDegraded(t *testing.T) {
	deps, err := initContent(DefaultConfig(), nil, log.WithField("test", "content"))
	require.NoError(t, err)
	require.Equal(t, healthcheck.StatusDegraded, deps.checker.Check(context.Background()).Status)
	require.NotNil(t, deps.catalog)
}
