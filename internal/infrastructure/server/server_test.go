package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/sysparam"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/testutil"
)

const mailManifest = `
name: mail
api_version: 50012
command: /opt/mail/bin/mail
modules:
  - name: entry
    abilities: [Main]
`

func newTestServer(t *testing.T) (*Server, *testutil.Spawner) {
	t.Helper()
	dir := t.TempDir()

	bundles := filepath.Join(dir, "bundles")
	require.NoError(t, os.MkdirAll(bundles, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bundles, "mail.yaml"), []byte(mailManifest), 0o644))
	params := filepath.Join(dir, "params.yaml")
	require.NoError(t, os.WriteFile(params, []byte("max_process_cache_num: 1\n"), 0o644))

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.GRPC.Port = "0"
	cfg.Params.File = params
	cfg.Params.Watch = false
	cfg.Bundles.Dir = bundles
	cfg.RateLimit.Enabled = false

	spawner := testutil.NewSpawner()
	srv, err := New(cfg, WithLogger(logging.NewNop()), WithBackend(spawner, testutil.NewKiller(spawner)))
	require.NoError(t, err)
	return srv, spawner
}

func request(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServerWiring(t *testing.T) {
	srv, spawner := newTestServer(t)
	defer srv.Close()

	assert.True(t, srv.Cache().QueryEnabled())
	assert.Equal(t, 1, srv.Cache().Capacity())

	w := request(t, srv.Handler(), http.MethodPost, "/abilities", `{"bundle":"mail","module":"entry","ability":"Main"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(tracing.HeaderTraceID))
	var launched struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &launched))
	assert.Equal(t, 1, spawner.Spawned())

	w = request(t, srv.Handler(), http.MethodDelete, "/abilities/"+launched.Token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, srv.Cache().Len())

	w = request(t, srv.Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "appmgr_process_cache_size 1")
	assert.Contains(t, w.Body.String(), "appmgr_launches_total")
}

func TestSpawnBreakerRejectsFailingBundle(t *testing.T) {
	srv, spawner := newTestServer(t)
	defer srv.Close()

	spawner.SetErr(errors.New("exec format error"))
	body := `{"bundle":"mail","module":"entry","ability":"Main"}`
	for i := 0; i < 5; i++ {
		w := request(t, srv.Handler(), http.MethodPost, "/abilities", body)
		require.Equal(t, http.StatusBadGateway, w.Code)
	}
	assert.Equal(t, resilience.StateOpen, srv.SpawnGuard().State("mail"))

	spawner.SetErr(nil)
	w := request(t, srv.Handler(), http.MethodPost, "/abilities", body)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), resilience.ErrCircuitOpen.Error())
	assert.Equal(t, 5, spawner.Spawned())
}

func TestCapacityRefreshFromParams(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	require.NoError(t, srv.Params().Set(sysparam.KeyMaxProcessCacheNum, 4))
	assert.Equal(t, 1, srv.Cache().Capacity(), "capacity changes only on refresh")

	w := request(t, srv.Handler(), http.MethodPost, "/cache/refresh", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 4, srv.Cache().Capacity())
}

func TestCacheRefreshSeesParamsWrittenElsewhere(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	other, err := sysparam.Open(srv.Params().Path())
	require.NoError(t, err)
	require.NoError(t, other.Set(sysparam.KeyMaxProcessCacheNum, 3))
	assert.Equal(t, 1, srv.Cache().Capacity())

	w := request(t, srv.Handler(), http.MethodPost, "/cache/refresh", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, srv.Cache().Capacity())
	assert.Equal(t, 3, srv.Params().MaxProcessCacheNum())
}

func TestHealthStatusFollowsLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	status, err := srv.HealthStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status)

	require.NoError(t, srv.Close())
	status, err = srv.HealthStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status)
}

func TestRunStopsOnCancel(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
