package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/sysparam"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/shared/types"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestParamSetAndGet(t *testing.T) {
	params := filepath.Join(t.TempDir(), "params.yaml")

	out, err := run(t, "--params", params, "param", "set", sysparam.KeyMaxProcessCacheNum, "3")
	require.NoError(t, err)
	assert.Equal(t, "max_process_cache_num=3\n", out)

	out, err = run(t, "--params", params, "param", "get", sysparam.KeyMaxProcessCacheNum)
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)

	out, err = run(t, "--params", params, "param", "get")
	require.NoError(t, err)
	assert.Contains(t, out, "max_process_cache_num=3")

	store, err := sysparam.Open(params)
	require.NoError(t, err)
	assert.Equal(t, 3, store.MaxProcessCacheNum())
}

func TestParamUnknownKey(t *testing.T) {
	params := filepath.Join(t.TempDir(), "params.yaml")

	_, err := run(t, "--params", params, "param", "set", "nope", "1")
	assert.ErrorIs(t, err, sysparam.ErrUnknownKey)
}

func newAPI(t *testing.T) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/processes", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"processes": []types.ProcessInfo{{
				ID:        "proc_01",
				Name:      "mail",
				PID:       1001,
				State:     types.StateCached,
				CreatedAt: time.Now(),
			}},
		})
	})
	mux.HandleFunc("/cache", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"enabled":  true,
			"capacity": 2,
			"size":     1,
			"queue":    []types.ProcessInfo{{ID: "proc_01", Name: "mail", PID: 1001, State: types.StateCached}},
		})
	})
	mux.HandleFunc("/cache/refresh", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		json.NewEncoder(w).Encode(map[string]any{"enabled": false, "capacity": 0, "size": 0})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestPs(t *testing.T) {
	addr := newAPI(t)

	out, err := run(t, "--addr", addr, "ps")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "mail")
	assert.Contains(t, out, "cached")

	out, err = run(t, "--addr", addr, "ps", "--json")
	require.NoError(t, err)
	var procs []types.ProcessInfo
	require.NoError(t, json.Unmarshal([]byte(out), &procs))
	require.Len(t, procs, 1)
	assert.Equal(t, 1001, procs[0].PID)
}

func TestCacheCommands(t *testing.T) {
	addr := newAPI(t)

	out, err := run(t, "--addr", addr, "cache", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "enabled: true")
	assert.Contains(t, out, "capacity: 2")
	assert.Contains(t, out, "proc_01")

	out, err = run(t, "--addr", addr, "cache", "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "enabled: false")
}
