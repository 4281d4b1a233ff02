package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/monitoring"
	fakes "github.com/GriffinCanCode/AgentOS/appmgr/internal/testutil"
)

func TestSpawnGuardOpensPerBundle(t *testing.T) {
	mock := clock.NewMock()
	spawner := fakes.NewSpawner()
	metrics := monitoring.NewMetrics()
	guard := NewSpawnGuard(spawner, Settings{Failures: 2, Timeout: time.Minute, Clock: mock}).
		WithMetrics(metrics)

	mail := fakes.NewBundle("mail")
	notes := fakes.NewBundle("notes")
	ctx := context.Background()

	spawner.SetErr(errors.New("exec format error"))
	for i := 0; i < 2; i++ {
		_, err := guard.Spawn(ctx, mail, nil)
		require.Error(t, err)
	}
	assert.Equal(t, StateOpen, guard.State("mail"))
	assert.Equal(t, []string{"mail"}, guard.Open())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SpawnBreaker.WithLabelValues("open")))

	spawner.SetErr(nil)
	_, err := guard.Spawn(ctx, mail, nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, spawner.Spawned())

	pid, err := guard.Spawn(ctx, notes, nil)
	require.NoError(t, err)
	assert.Equal(t, fakes.FirstPID, pid)
	assert.Equal(t, StateClosed, guard.State("notes"))
}

func TestSpawnGuardClosesAfterCooldown(t *testing.T) {
	mock := clock.NewMock()
	spawner := fakes.NewSpawner()
	guard := NewSpawnGuard(spawner, Settings{Failures: 1, Timeout: time.Second, Clock: mock})
	mail := fakes.NewBundle("mail")

	spawner.SetErr(errors.New("missing binary"))
	_, err := guard.Spawn(context.Background(), mail, nil)
	require.Error(t, err)
	require.Equal(t, StateOpen, guard.State("mail"))

	spawner.SetErr(nil)
	mock.Add(2 * time.Second)

	pid, err := guard.Spawn(context.Background(), mail, nil)
	require.NoError(t, err)
	assert.Equal(t, fakes.FirstPID, pid)
	assert.Equal(t, StateClosed, guard.State("mail"))
	assert.Empty(t, guard.Open())
}

func TestSpawnGuardIgnoresCanceledContext(t *testing.T) {
	spawner := fakes.NewSpawner()
	guard := NewSpawnGuard(spawner, Settings{Failures: 1, Clock: clock.NewMock()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := guard.Spawn(ctx, fakes.NewBundle("mail"), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, spawner.Spawned())
	assert.Equal(t, StateClosed, guard.State("mail"))
}
