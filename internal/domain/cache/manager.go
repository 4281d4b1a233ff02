package cache

import (
	"slices"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/shared/types"
)

const (
	// MinAPIVersion is the lowest target API level allowed to be cached
	MinAPIVersion = 12
	// apiVersionModulus strips the major-version multiplier from encoded API versions
	apiVersionModulus = 100
)

// Owner is the process lifecycle owner the cache reports to
type Owner interface {
	// KillProcessByPid requests termination; non-zero means failure
	KillProcessByPid(pid int) int
	// NotifyCacheStateChanged reports a state the cache wrote on a process
	NotifyCacheStateChanged(p *types.Process)
}

// CapacitySource provides the persisted cache capacity
type CapacitySource interface {
	MaxProcessCacheNum() int
}

// Reloader is implemented by capacity sources backed by storage that
// other processes can change. RefreshCapacity reloads them first.
type Reloader interface {
	Reload() error
}

// Manager keeps a bounded FIFO of warm background processes
type Manager struct {
	mu       sync.Mutex
	queue    []*types.Process // Protected by mu, oldest first
	capacity int              // Protected by mu

	owner   Owner
	params  CapacitySource
	clock   clock.Clock
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewManager creates a cache manager and reads the initial capacity
func NewManager(owner Owner, params CapacitySource) *Manager {
	m := &Manager{
		owner:  owner,
		params: params,
		clock:  clock.New(),
		logger: zap.NewNop(),
	}
	m.capacity = m.readCapacity()
	return m
}

// WithLogger sets the logger
func (m *Manager) WithLogger(logger *zap.Logger) *Manager {
	m.logger = logger
	return m
}

// WithMetrics adds metrics tracking to the manager
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	m.metrics.SetCache(m.Len(), m.Capacity())
	return m
}

// WithClock replaces the clock used for state timestamps
func (m *Manager) WithClock(c clock.Clock) *Manager {
	m.clock = c
	return m
}

// QueryEnabled reports whether process caching is configured on
func (m *Manager) QueryEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capacity > 0
}

// IsSupportedByApp reports whether the application allows its process to be cached
func (m *Manager) IsSupportedByApp(p *types.Process) bool {
	if p == nil {
		return false
	}
	if p.APIVersion%apiVersionModulus < MinAPIVersion {
		return false
	}
	return p.SupportCache != types.NotSupport
}

// TryPend admits a process whose last ability is going away. The caller
// screens IsSupportedByApp; keep-alive processes are refused here. When
// the queue grows past capacity the oldest entries are evicted and killed.
func (m *Manager) TryPend(p *types.Process) bool {
	if p == nil {
		return false
	}

	m.mu.Lock()
	if m.capacity <= 0 || m.containsLocked(p) {
		m.mu.Unlock()
		return false
	}
	if p.KeepAlive {
		m.mu.Unlock()
		m.metrics.RecordPend(false)
		return false
	}

	m.queue = append(m.queue, p)
	victims := m.shrinkLocked()
	size, capacity := len(m.queue), m.capacity
	m.mu.Unlock()

	m.metrics.RecordPend(true)
	m.metrics.SetCache(size, capacity)
	m.logger.Debug("process pended",
		zap.String("process", p.Name),
		zap.Int("pid", p.PID),
		zap.Int("size", size),
	)

	m.kill(victims)
	return true
}

// CheckAndCache marks a pended process cached once all its abilities are
// gone. A pended process that still hosts abilities returns true and is
// left as it is.
func (m *Manager) CheckAndCache(p *types.Process) bool {
	if p == nil {
		return false
	}

	m.mu.Lock()
	if m.capacity <= 0 || !m.containsLocked(p) {
		m.mu.Unlock()
		return false
	}
	if !p.HasEmptyAbilitySet() {
		m.mu.Unlock()
		return true
	}
	p.SetState(types.StateCached, m.clock.Now())
	m.mu.Unlock()

	m.metrics.RecordCacheState(string(types.StateCached))
	m.logger.Info("process cached", zap.String("process", p.Name), zap.Int("pid", p.PID))
	m.owner.NotifyCacheStateChanged(p)
	return true
}

// IsCached reports whether the process is in the queue
func (m *Manager) IsCached(p *types.Process) bool {
	if p == nil {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.containsLocked(p)
}

// OnProcessKilled drops a dead process from the queue
func (m *Manager) OnProcessKilled(p *types.Process) {
	if p == nil {
		return
	}

	m.mu.Lock()
	if m.capacity <= 0 || !m.containsLocked(p) {
		m.mu.Unlock()
		return
	}
	m.removeLocked(p)
	size, capacity := len(m.queue), m.capacity
	m.mu.Unlock()

	m.metrics.SetCache(size, capacity)
	m.logger.Debug("cached process died", zap.String("process", p.Name), zap.Int("pid", p.PID))
}

// Reuse takes a cached process out of the queue to host a new launch
func (m *Manager) Reuse(p *types.Process) {
	if p == nil {
		return
	}

	m.mu.Lock()
	if m.capacity <= 0 || !m.containsLocked(p) {
		m.mu.Unlock()
		return
	}
	m.removeLocked(p)
	p.SetState(types.StateReady, m.clock.Now())
	size, capacity := len(m.queue), m.capacity
	m.mu.Unlock()

	m.metrics.IncReuses()
	m.metrics.RecordCacheState(string(types.StateReady))
	m.metrics.SetCache(size, capacity)
	m.logger.Info("cached process reused", zap.String("process", p.Name), zap.Int("pid", p.PID))
	m.owner.NotifyCacheStateChanged(p)
}

// RefreshCapacity re-reads the capacity from its source. An over-full
// queue is not shrunk until the next TryPend.
func (m *Manager) RefreshCapacity() {
	capacity := m.readCapacity()

	m.mu.Lock()
	prev := m.capacity
	m.capacity = capacity
	size := len(m.queue)
	m.mu.Unlock()

	m.metrics.SetCache(size, capacity)
	if prev != capacity {
		m.logger.Info("process cache capacity changed",
			zap.Int("from", prev),
			zap.Int("to", capacity),
			zap.Int("size", size),
		)
	}
}

// Capacity returns the current capacity
func (m *Manager) Capacity() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capacity
}

// Len returns the number of queued processes
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Snapshot returns the queued processes oldest first
func (m *Manager) Snapshot() []types.ProcessInfo {
	m.mu.Lock()
	queue := slices.Clone(m.queue)
	m.mu.Unlock()

	infos := make([]types.ProcessInfo, 0, len(queue))
	for _, p := range queue {
		infos = append(infos, p.Info())
	}
	return infos
}

func (m *Manager) readCapacity() int {
	if m.params == nil {
		return 0
	}
	if r, ok := m.params.(Reloader); ok {
		if err := r.Reload(); err != nil {
			m.logger.Warn("failed to reload cache capacity", zap.Error(err))
		}
	}
	return max(m.params.MaxProcessCacheNum(), 0)
}

// must hold lock
func (m *Manager) containsLocked(p *types.Process) bool {
	return slices.Contains(m.queue, p)
}

// must hold lock
func (m *Manager) removeLocked(p *types.Process) {
	m.queue = slices.DeleteFunc(m.queue, func(q *types.Process) bool { return q == p })
}

// shrinkLocked pops the oldest entries until the queue fits and marks
// them killing before the lock is released (must hold lock)
func (m *Manager) shrinkLocked() []*types.Process {
	var victims []*types.Process
	for len(m.queue) > m.capacity {
		m.queue[0].MarkKilling()
		victims = append(victims, m.queue[0])
		m.queue[0] = nil
		m.queue = m.queue[1:]
	}
	return victims
}

// kill requests termination of evicted processes. Failures are logged
// only; the victims are already out of the queue.
func (m *Manager) kill(victims []*types.Process) {
	for _, p := range victims {
		code := m.owner.KillProcessByPid(p.PID)
		failed := code != 0
		m.metrics.RecordEviction(failed)

		if failed {
			m.logger.Warn("failed to kill evicted process",
				zap.String("process", p.Name),
				zap.Int("pid", p.PID),
				zap.Int("code", code),
			)
			continue
		}
		m.logger.Info("evicted cached process", zap.String("process", p.Name), zap.Int("pid", p.PID))
	}
}
