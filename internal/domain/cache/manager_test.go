package cache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/shared/types"
)

type mockOwner struct {
	mock.Mock
}

func (o *mockOwner) KillProcessByPid(pid int) int {
	return o.Called(pid).Int(0)
}

func (o *mockOwner) NotifyCacheStateChanged(p *types.Process) {
	o.Called(p)
}

type capacity struct {
	n atomic.Int64
}

func newCapacity(n int) *capacity {
	c := &capacity{}
	c.n.Store(int64(n))
	return c
}

func (c *capacity) MaxProcessCacheNum() int { return int(c.n.Load()) }

func newProcess(name string, pid int) *types.Process {
	p := types.NewProcess(name, name, pid, time.Unix(0, 0))
	p.APIVersion = 50012
	p.SetState(types.StateBackground, time.Unix(0, 0))
	return p
}

func withAbility(p *types.Process) *types.Process {
	p.AddAbility(&types.Ability{Token: id.NewAbilityToken(), Module: "entry", Name: "Main"})
	return p
}

func newTestManager(t *testing.T, n int) (*Manager, *mockOwner) {
	t.Helper()
	owner := new(mockOwner)
	return NewManager(owner, newCapacity(n)), owner
}

func TestQueryEnabled(t *testing.T) {
	tests := []struct {
		capacity int
		want     bool
	}{
		{0, false},
		{-3, false},
		{1, true},
		{4, true},
	}

	for _, tt := range tests {
		m, _ := newTestManager(t, tt.capacity)
		assert.Equal(t, tt.want, m.QueryEnabled(), "capacity %d", tt.capacity)
		assert.GreaterOrEqual(t, m.Capacity(), 0)
	}
}

func TestIsSupportedByApp(t *testing.T) {
	m, _ := newTestManager(t, 2)

	tests := []struct {
		name       string
		apiVersion uint32
		support    types.SupportState
		want       bool
	}{
		{"encoded 1200 strips to 0", 1200, types.SupportUnspecified, false},
		{"below minimum", 11, types.Support, false},
		{"exactly minimum unspecified", 12, types.SupportUnspecified, true},
		{"exactly minimum support", 12, types.Support, true},
		{"encoded 50012 support", 50012, types.Support, true},
		{"opted out", 50014, types.NotSupport, false},
		{"encoded 40099", 40099, types.SupportUnspecified, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProcess("app", 100)
			p.APIVersion = tt.apiVersion
			p.SupportCache = tt.support
			assert.Equal(t, tt.want, m.IsSupportedByApp(p))
		})
	}

	assert.False(t, m.IsSupportedByApp(nil))
}

func TestPendTwoWithinCapacity(t *testing.T) {
	m, owner := newTestManager(t, 2)
	a, b := newProcess("a", 101), newProcess("b", 102)

	require.True(t, m.TryPend(a))
	require.True(t, m.TryPend(b))

	assert.True(t, m.IsCached(a))
	assert.True(t, m.IsCached(b))
	assert.Equal(t, 2, m.Len())
	owner.AssertNotCalled(t, "KillProcessByPid", mock.Anything)
}

func TestPendPastCapacityEvictsOldest(t *testing.T) {
	m, owner := newTestManager(t, 2)
	a, b, c := newProcess("a", 101), newProcess("b", 102), newProcess("c", 103)
	owner.On("KillProcessByPid", 101).Return(0).Once()

	require.True(t, m.TryPend(a))
	require.True(t, m.TryPend(b))
	require.True(t, m.TryPend(c))

	assert.False(t, m.IsCached(a))
	assert.True(t, m.IsCached(b))
	assert.True(t, m.IsCached(c))

	snap := m.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "b", snap[0].Name)
	assert.Equal(t, "c", snap[1].Name)
	owner.AssertExpectations(t)
}

func TestCapacityOneEvictsExistingOccupant(t *testing.T) {
	m, owner := newTestManager(t, 1)
	old, fresh := newProcess("old", 201), newProcess("new", 202)
	owner.On("KillProcessByPid", 201).Return(0).Once()

	require.True(t, m.TryPend(old))
	require.True(t, m.TryPend(fresh))

	assert.False(t, m.IsCached(old))
	assert.True(t, m.IsCached(fresh))
	assert.Equal(t, 1, m.Len())
	assert.True(t, old.Killing(), "victims are marked before their kill is requested")
	assert.False(t, fresh.Killing())
	owner.AssertExpectations(t)
}

func TestCheckAndCacheWithAbilities(t *testing.T) {
	m, owner := newTestManager(t, 2)
	a := withAbility(newProcess("a", 101))

	require.True(t, m.TryPend(a))
	assert.True(t, m.CheckAndCache(a))

	assert.Equal(t, types.StateBackground, a.State())
	assert.True(t, m.IsCached(a))
	owner.AssertNotCalled(t, "NotifyCacheStateChanged", mock.Anything)
}

func TestCheckAndCacheEmpty(t *testing.T) {
	m, owner := newTestManager(t, 2)
	a := newProcess("a", 101)
	owner.On("NotifyCacheStateChanged", a).Return().Once()

	require.True(t, m.TryPend(a))
	assert.True(t, m.CheckAndCache(a))

	assert.Equal(t, types.StateCached, a.State())
	owner.AssertNumberOfCalls(t, "NotifyCacheStateChanged", 1)
}

func TestCheckAndCacheAbilitiesLeaveLater(t *testing.T) {
	m, owner := newTestManager(t, 2)
	a := newProcess("a", 101)
	tok := id.NewAbilityToken()
	a.AddAbility(&types.Ability{Token: tok, Module: "entry", Name: "Main"})
	owner.On("NotifyCacheStateChanged", a).Return().Once()

	require.True(t, m.TryPend(a))
	require.True(t, m.CheckAndCache(a))
	assert.NotEqual(t, types.StateCached, a.State())

	a.RemoveAbility(tok)
	require.True(t, m.CheckAndCache(a))
	assert.Equal(t, types.StateCached, a.State())
	owner.AssertExpectations(t)
}

func TestCheckAndCacheNotPended(t *testing.T) {
	m, owner := newTestManager(t, 2)
	a := newProcess("a", 101)

	assert.False(t, m.CheckAndCache(a))
	assert.False(t, m.CheckAndCache(nil))
	assert.Equal(t, types.StateBackground, a.State())
	owner.AssertNotCalled(t, "NotifyCacheStateChanged", mock.Anything)
}

func TestReuse(t *testing.T) {
	m, owner := newTestManager(t, 2)
	a := newProcess("a", 101)
	owner.On("NotifyCacheStateChanged", a).Return().Once()

	require.True(t, m.TryPend(a))
	m.Reuse(a)

	assert.False(t, m.IsCached(a))
	assert.Equal(t, types.StateReady, a.State())
	assert.Equal(t, 0, m.Len())
	owner.AssertNotCalled(t, "KillProcessByPid", mock.Anything)
	owner.AssertExpectations(t)
}

func TestReuseNotCachedIsNoop(t *testing.T) {
	m, owner := newTestManager(t, 2)
	a := newProcess("a", 101)

	m.Reuse(a)
	m.Reuse(nil)

	assert.Equal(t, types.StateBackground, a.State())
	owner.AssertNotCalled(t, "NotifyCacheStateChanged", mock.Anything)
}

func TestOnProcessKilledTwice(t *testing.T) {
	m, _ := newTestManager(t, 2)
	a, b := newProcess("a", 101), newProcess("b", 102)
	require.True(t, m.TryPend(a))
	require.True(t, m.TryPend(b))

	m.OnProcessKilled(a)
	assert.False(t, m.IsCached(a))
	assert.Equal(t, 1, m.Len())

	assert.NotPanics(t, func() { m.OnProcessKilled(a) })
	assert.Equal(t, 1, m.Len())
	assert.True(t, m.IsCached(b))
	assert.Equal(t, types.StateBackground, a.State())
}

func TestDisabledCacheIsPassThrough(t *testing.T) {
	m, owner := newTestManager(t, 0)
	a := newProcess("a", 101)

	assert.False(t, m.QueryEnabled())
	assert.False(t, m.TryPend(a))
	assert.False(t, m.IsCached(a))
	assert.False(t, m.CheckAndCache(a))
	m.Reuse(a)
	m.OnProcessKilled(a)

	assert.Equal(t, 0, m.Len())
	assert.Equal(t, types.StateBackground, a.State())
	owner.AssertNotCalled(t, "KillProcessByPid", mock.Anything)
	owner.AssertNotCalled(t, "NotifyCacheStateChanged", mock.Anything)
}

func TestTryPendRejections(t *testing.T) {
	m, _ := newTestManager(t, 4)

	resident := newProcess("resident", 1)
	resident.KeepAlive = true
	assert.False(t, m.TryPend(resident))
	assert.False(t, m.IsCached(resident))

	assert.False(t, m.TryPend(nil))

	a := newProcess("a", 101)
	require.True(t, m.TryPend(a))
	assert.False(t, m.TryPend(a), "duplicate pend must be refused")
	assert.Equal(t, 1, m.Len())
}

func TestTryPendDoesNotScreenSupport(t *testing.T) {
	m, _ := newTestManager(t, 2)
	legacy := newProcess("legacy", 101)
	legacy.APIVersion = 9
	legacy.SupportCache = types.NotSupport

	assert.False(t, m.IsSupportedByApp(legacy))
	assert.True(t, m.TryPend(legacy), "eligibility is screened by the caller")
}

func TestKillFailureStillEvicts(t *testing.T) {
	metrics := monitoring.NewMetrics()
	m, owner := newTestManager(t, 1)
	m.WithMetrics(metrics)
	a, b := newProcess("a", 101), newProcess("b", 102)
	owner.On("KillProcessByPid", 101).Return(-3).Once()

	require.True(t, m.TryPend(a))
	require.True(t, m.TryPend(b))

	assert.False(t, m.IsCached(a))
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheEvictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheKillFailures))
	owner.AssertExpectations(t)
}

func TestRefreshCapacityDoesNotShrink(t *testing.T) {
	owner := new(mockOwner)
	params := newCapacity(3)
	m := NewManager(owner, params)

	a, b, c, d := newProcess("a", 101), newProcess("b", 102), newProcess("c", 103), newProcess("d", 104)
	require.True(t, m.TryPend(a))
	require.True(t, m.TryPend(b))
	require.True(t, m.TryPend(c))

	params.n.Store(1)
	m.RefreshCapacity()

	assert.Equal(t, 1, m.Capacity())
	assert.Equal(t, 3, m.Len(), "refresh alone never evicts")
	owner.AssertNotCalled(t, "KillProcessByPid", mock.Anything)

	owner.On("KillProcessByPid", 101).Return(0).Once()
	owner.On("KillProcessByPid", 102).Return(0).Once()
	owner.On("KillProcessByPid", 103).Return(0).Once()
	require.True(t, m.TryPend(d))

	assert.Equal(t, 1, m.Len())
	assert.True(t, m.IsCached(d))
	owner.AssertExpectations(t)
}

func TestRefreshCapacityToZeroDisables(t *testing.T) {
	owner := new(mockOwner)
	params := newCapacity(2)
	m := NewManager(owner, params)
	a := newProcess("a", 101)
	require.True(t, m.TryPend(a))

	params.n.Store(0)
	m.RefreshCapacity()

	assert.False(t, m.QueryEnabled())
	assert.False(t, m.TryPend(newProcess("b", 102)))
	assert.True(t, m.IsCached(a), "membership survives until the next admission")
}

// storedCapacity only exposes a new value after Reload, like a file store
type storedCapacity struct {
	mu      sync.Mutex
	onDisk  int
	loaded  int
	reloads int
	err     error
}

func (c *storedCapacity) MaxProcessCacheNum() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

func (c *storedCapacity) Reload() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reloads++
	if c.err != nil {
		return c.err
	}
	c.loaded = c.onDisk
	return nil
}

func (c *storedCapacity) write(n int) {
	c.mu.Lock()
	c.onDisk = n
	c.mu.Unlock()
}

func TestRefreshCapacityReloadsSource(t *testing.T) {
	params := &storedCapacity{onDisk: 1}
	m := NewManager(new(mockOwner), params)
	assert.Equal(t, 1, m.Capacity())

	params.write(4)
	assert.Equal(t, 1, m.Capacity())

	m.RefreshCapacity()
	assert.Equal(t, 4, m.Capacity())
	assert.Equal(t, 2, params.reloads)
}

func TestRefreshCapacityKeepsValueOnReloadError(t *testing.T) {
	params := &storedCapacity{onDisk: 2}
	m := NewManager(new(mockOwner), params)

	params.write(5)
	params.err = assert.AnError
	m.RefreshCapacity()

	assert.Equal(t, 2, m.Capacity())
}

func TestCachedStateUsesClock(t *testing.T) {
	mockClock := clock.NewMock()
	mockClock.Set(time.Unix(5000, 0))

	m, owner := newTestManager(t, 2)
	m.WithClock(mockClock)
	a := newProcess("a", 101)
	owner.On("NotifyCacheStateChanged", a).Return()

	require.True(t, m.TryPend(a))
	require.True(t, m.CheckAndCache(a))

	assert.Equal(t, time.Unix(5000, 0), a.Info().StateChangedAt)
}

func TestConcurrentPendKeepsBound(t *testing.T) {
	const capacityN, workers, perWorker = 3, 8, 50

	owner := new(mockOwner)
	owner.On("KillProcessByPid", mock.Anything).Return(0)
	m := NewManager(owner, newCapacity(capacityN))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				p := newProcess("p", w*1000+i)
				m.TryPend(p)
				assert.LessOrEqual(t, m.Len(), capacityN)
				if i%3 == 0 {
					m.OnProcessKilled(p)
				}
			}
		}(w)
	}
	wg.Wait()

	snap := m.Snapshot()
	assert.LessOrEqual(t, len(snap), capacityN)

	seen := make(map[id.ProcessID]bool)
	for _, info := range snap {
		assert.False(t, seen[info.ID], "duplicate entry %s", info.ID)
		seen[info.ID] = true
	}
}
