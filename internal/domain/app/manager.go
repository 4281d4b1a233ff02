package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/osproc"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/shared/types"
)

// launchAttempts bounds host lookups per launch
const launchAttempts = 2

// Launch start paths
const (
	PathCold = "cold" // new process spawned
	PathWarm = "warm" // cached process reused
	PathHot  = "hot"  // process already running
)

// Spawner starts bundle processes. onExit must be called from another
// goroutine once the process has exited.
type Spawner interface {
	Spawn(ctx context.Context, b *types.Bundle, onExit func(pid int, err error)) (int, error)
}

// Killer terminates processes by pid
type Killer interface {
	Kill(pid int) error
}

// BundleSource resolves installed bundles
type BundleSource interface {
	Get(name string) (*types.Bundle, error)
}

// ProcessCache is the warm process cache the manager drives
type ProcessCache interface {
	IsSupportedByApp(p *types.Process) bool
	TryPend(p *types.Process) bool
	CheckAndCache(p *types.Process) bool
	IsCached(p *types.Process) bool
	OnProcessKilled(p *types.Process)
	Reuse(p *types.Process)
}

// LaunchRequest names the ability to start
type LaunchRequest struct {
	Bundle  string `json:"bundle" binding:"required"`
	Module  string `json:"module" binding:"required"`
	Ability string `json:"ability" binding:"required"`
}

// LaunchResult describes a started ability
type LaunchResult struct {
	Token    id.AbilityToken   `json:"token"`
	Path     string            `json:"path"`
	Duration time.Duration     `json:"duration_ns"`
	Process  types.ProcessInfo `json:"process"`
}

// TerminateResult describes what happened to the hosting process
type TerminateResult struct {
	Process types.ProcessInfo `json:"process"`
	Cached  bool              `json:"cached"`
	Killed  bool              `json:"killed"`
}

// Manager owns application process records and their lifecycle
type Manager struct {
	mu        sync.RWMutex
	processes map[id.ProcessID]*types.Process    // Protected by mu
	byPID     map[int]*types.Process             // Protected by mu
	byName    map[string]*types.Process          // Protected by mu
	abilities map[id.AbilityToken]*types.Process // Protected by mu
	closed    bool                               // Protected by mu

	spawner Spawner
	killer  Killer
	bundles BundleSource
	cache   ProcessCache
	starts  singleflight.Group
	hub     *Hub
	restart RestartPolicy

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	clock   clock.Clock
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewManager creates a process manager. A cache must be attached with
// WithCache before launching.
func NewManager(spawner Spawner, killer Killer, bundles BundleSource) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		processes: make(map[id.ProcessID]*types.Process),
		byPID:     make(map[int]*types.Process),
		byName:    make(map[string]*types.Process),
		abilities: make(map[id.AbilityToken]*types.Process),
		spawner:   spawner,
		killer:    killer,
		bundles:   bundles,
		hub:       NewHub(nil),
		restart:   DefaultRestartPolicy(),
		ctx:       ctx,
		cancel:    cancel,
		clock:     clock.New(),
		logger:    zap.NewNop(),
	}
}

// WithCache attaches the warm process cache
func (m *Manager) WithCache(cache ProcessCache) *Manager {
	m.cache = cache
	return m
}

// WithMetrics adds metrics tracking to the manager
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	m.hub.metrics = metrics
	return m
}

// WithLogger sets the logger
func (m *Manager) WithLogger(logger *zap.Logger) *Manager {
	m.logger = logger
	return m
}

// WithClock replaces the clock used for timestamps and launch latency
func (m *Manager) WithClock(c clock.Clock) *Manager {
	m.clock = c
	return m
}

// WithRestartPolicy sets the resident process restart policy
func (m *Manager) WithRestartPolicy(p RestartPolicy) *Manager {
	m.restart = p
	return m
}

// Hub returns the state event hub
func (m *Manager) Hub() *Hub {
	return m.hub
}

// Launch starts an ability, reusing a running or cached process of the
// bundle when there is one.
func (m *Manager) Launch(ctx context.Context, req LaunchRequest) (*LaunchResult, error) {
	start := m.clock.Now()

	b, err := m.bundles.Get(req.Bundle)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBundleNotFound, req.Bundle)
	}
	if !b.HasModule(req.Module) {
		return nil, fmt.Errorf("%w: %s/%s", ErrModuleNotFound, req.Bundle, req.Module)
	}

	ability := &types.Ability{
		Token:  id.NewAbilityToken(),
		Module: req.Module,
		Name:   req.Ability,
		State:  types.AbilityForeground,
	}

	// A host picked without the lock can be evicted or killed before the
	// ability is attached; pick again, which then starts a fresh process.
	var (
		p    *types.Process
		path string
	)
	for attempt := 1; ; attempt++ {
		p, path, err = m.hostFor(ctx, b)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		if m.hostingLocked(p) {
			p.AddAbility(ability)
			m.abilities[ability.Token] = p
			m.mu.Unlock()
			break
		}
		m.mu.Unlock()
		if attempt == launchAttempts {
			return nil, fmt.Errorf("%w: %s exited during launch", ErrProcessNotFound, p.Name)
		}
	}

	m.setState(p, types.StateForeground)

	elapsed := m.clock.Since(start)
	m.metrics.RecordLaunch(path, elapsed)
	m.logger.Info("ability launched",
		zap.String("bundle", b.Name),
		zap.String("ability", req.Ability),
		zap.Int("pid", p.PID),
		zap.String("path", path),
		zap.Duration("duration", elapsed),
	)

	return &LaunchResult{
		Token:    ability.Token,
		Path:     path,
		Duration: elapsed,
		Process:  p.Info(),
	}, nil
}

// hostFor picks the process that will host a new ability of b
func (m *Manager) hostFor(ctx context.Context, b *types.Bundle) (*types.Process, string, error) {
	m.mu.RLock()
	p := m.byName[b.Process()]
	closed := m.closed
	m.mu.RUnlock()

	if closed {
		return nil, "", ErrClosed
	}
	if p != nil && !p.Killing() {
		if !m.cache.IsCached(p) {
			return p, PathHot, nil
		}
		m.cache.Reuse(p)
		if !p.Killing() {
			return p, PathWarm, nil
		}
		// evicted between IsCached and Reuse; start a new process
	}

	v, err, _ := m.starts.Do(b.Process(), func() (any, error) {
		return m.startProcess(ctx, b, 0)
	})
	if err != nil {
		return nil, "", err
	}
	return v.(*types.Process), PathCold, nil
}

// hostingLocked reports whether p can take a new ability (must hold lock)
func (m *Manager) hostingLocked(p *types.Process) bool {
	return m.processes[p.ID] == p && !p.Killing()
}

// startProcess spawns a process for b and registers its record. The
// lock is held across the spawn so an early exit cannot race the
// registration.
func (m *Manager) startProcess(ctx context.Context, b *types.Bundle, restarts int) (*types.Process, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if existing := m.byName[b.Process()]; existing != nil {
		if !existing.Killing() {
			m.mu.Unlock()
			return existing, nil
		}
		m.retireLocked(existing)
	}

	pid, err := m.spawner.Spawn(ctx, b, m.ProcessDied)
	m.metrics.RecordSpawn(err == nil)
	if err != nil {
		m.mu.Unlock()
		m.logger.Error("failed to spawn process", zap.String("bundle", b.Name), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", ErrSpawnFailed, b.Name, err)
	}

	p := types.NewProcess(b.Process(), b.Name, pid, m.clock.Now())
	p.KeepAlive = b.KeepAlive
	p.APIVersion = b.APIVersion
	p.SupportCache, _ = types.ParseSupportState(b.SupportCache)
	p.SetRestarts(restarts)
	for _, mod := range b.Modules {
		p.AddModule(mod.Name)
	}

	m.processes[p.ID] = p
	m.byPID[pid] = p
	m.byName[p.Name] = p
	count := len(m.processes)
	m.mu.Unlock()

	m.metrics.SetProcessesRunning(count)
	m.setState(p, types.StateReady)
	return p, nil
}

// Foreground brings an ability to the foreground
func (m *Manager) Foreground(token id.AbilityToken) (types.ProcessInfo, error) {
	p, err := m.hostOf(token)
	if err != nil {
		return types.ProcessInfo{}, err
	}
	p.SetAbilityState(token, types.AbilityForeground)
	m.setState(p, types.StateForeground)
	return p.Info(), nil
}

// Background moves an ability to the background. The process follows
// once none of its abilities is in the foreground.
func (m *Manager) Background(token id.AbilityToken) (types.ProcessInfo, error) {
	p, err := m.hostOf(token)
	if err != nil {
		return types.ProcessInfo{}, err
	}
	p.SetAbilityState(token, types.AbilityBackground)
	if !p.HasForegroundAbility() {
		m.setState(p, types.StateBackground)
	}
	return p.Info(), nil
}

// Terminate ends an ability. When it is the last one hosted by a process
// that supports caching, the process is parked in the cache; otherwise an
// empty non-resident process is killed.
func (m *Manager) Terminate(token id.AbilityToken) (*TerminateResult, error) {
	p, err := m.hostOf(token)
	if err != nil {
		return nil, err
	}

	pended := false
	if p.AbilityCount() == 1 && m.cache.IsSupportedByApp(p) {
		pended = m.cache.TryPend(p)
	}

	m.mu.Lock()
	p.RemoveAbility(token)
	delete(m.abilities, token)
	kill := !pended && p.HasEmptyAbilitySet() && !p.KeepAlive
	if kill {
		m.retireLocked(p)
	}
	m.mu.Unlock()

	result := &TerminateResult{}
	switch {
	case pended:
		m.setState(p, types.StateBackground)
		result.Cached = m.cache.CheckAndCache(p) && p.State() == types.StateCached
	case kill:
		if code := m.KillProcessByPid(p.PID); code == 0 {
			result.Killed = true
		}
	case !p.HasForegroundAbility():
		m.setState(p, types.StateBackground)
	}

	result.Process = p.Info()
	return result, nil
}

// ProcessDied handles the exit of a process, whatever the cause
func (m *Manager) ProcessDied(pid int, exitErr error) {
	m.mu.Lock()
	p, ok := m.byPID[pid]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.byPID, pid)
	delete(m.processes, p.ID)
	if m.byName[p.Name] == p {
		delete(m.byName, p.Name)
	}
	for _, token := range p.ClearAbilities() {
		delete(m.abilities, token)
	}
	count := len(m.processes)
	attempt := m.restart.next(p, m.clock.Now())
	restart := p.KeepAlive && !m.closed && m.restart.allows(attempt)
	if restart {
		m.wg.Add(1)
	}
	m.mu.Unlock()

	m.cache.OnProcessKilled(p)
	p.SetState(types.StateTerminated, m.clock.Now())

	m.metrics.SetProcessesRunning(count)
	m.metrics.RecordDeath(p.KeepAlive)
	m.logger.Info("process died",
		zap.String("process", p.Name),
		zap.Int("pid", pid),
		zap.Bool("keep_alive", p.KeepAlive),
		zap.NamedError("exit", exitErr),
	)
	m.publish(EventProcessDied, p)

	switch {
	case restart:
		go m.restartProcess(p, attempt)
	case p.KeepAlive:
		m.logger.Error("resident process not restarted",
			zap.String("process", p.Name),
			zap.Int("restarts", p.Restarts()),
		)
	}
}

// KillProcessByPid asks the killer to terminate pid. It returns 0 on
// success and a negative code otherwise. Until the exit is reported the
// record stays listed but no longer hosts new launches.
func (m *Manager) KillProcessByPid(pid int) int {
	m.mu.RLock()
	p := m.byPID[pid]
	m.mu.RUnlock()
	if p != nil {
		m.retire(p)
	}

	code := osproc.Code(m.killer.Kill(pid))
	if code == 0 {
		return 0
	}

	if p != nil {
		m.mu.Lock()
		if m.byPID[pid] == p {
			p.ClearKilling()
			if m.byName[p.Name] == nil {
				m.byName[p.Name] = p
			}
		}
		m.mu.Unlock()
	}
	m.logger.Warn("kill failed", zap.Int("pid", pid), zap.Int("code", code))
	return code
}

// retire marks p killing and stops name lookups from returning it, so
// the next launch of its bundle starts a new process
func (m *Manager) retire(p *types.Process) {
	m.mu.Lock()
	m.retireLocked(p)
	m.mu.Unlock()
}

// must hold lock
func (m *Manager) retireLocked(p *types.Process) {
	p.MarkKilling()
	if m.byName[p.Name] == p {
		delete(m.byName, p.Name)
	}
}

// NotifyCacheStateChanged publishes a state written by the cache
func (m *Manager) NotifyCacheStateChanged(p *types.Process) {
	m.publish(EventCacheStateChanged, p)
}

// Kill terminates a process by record id
func (m *Manager) Kill(pid id.ProcessID) error {
	m.mu.RLock()
	p, ok := m.processes[pid]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrProcessNotFound, pid)
	}

	if code := m.KillProcessByPid(p.PID); code != 0 {
		return fmt.Errorf("%w: %s (pid %d): code %d", ErrKillFailed, p.Name, p.PID, code)
	}
	return nil
}

// Get returns a snapshot of a process record
func (m *Manager) Get(pid id.ProcessID) (types.ProcessInfo, bool) {
	m.mu.RLock()
	p, ok := m.processes[pid]
	m.mu.RUnlock()
	if !ok {
		return types.ProcessInfo{}, false
	}
	return p.Info(), true
}

// Lookup returns the live record hosting pid
func (m *Manager) Lookup(pid int) (*types.Process, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.byPID[pid]
	return p, ok
}

// List returns process snapshots ordered by creation, optionally filtered by state
func (m *Manager) List(state *types.AppState) []types.ProcessInfo {
	m.mu.RLock()
	procs := make([]*types.Process, 0, len(m.processes))
	for _, p := range m.processes {
		procs = append(procs, p)
	}
	m.mu.RUnlock()

	infos := make([]types.ProcessInfo, 0, len(procs))
	for _, p := range procs {
		info := p.Info()
		if state == nil || info.State == *state {
			infos = append(infos, info)
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Stats returns manager statistics
func (m *Manager) Stats() types.Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := types.Stats{
		TotalProcesses: len(m.processes),
		Abilities:      len(m.abilities),
	}
	for _, p := range m.processes {
		switch p.State() {
		case types.StateForeground:
			stats.ForegroundProcesses++
		case types.StateBackground:
			stats.BackgroundProcesses++
		case types.StateCached:
			stats.CachedProcesses++
		}
	}
	return stats
}

// Close stops resident restarts and waits for pending ones
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

func (m *Manager) hostOf(token id.AbilityToken) (*types.Process, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.abilities[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAbilityNotFound, token)
	}
	return p, nil
}

func (m *Manager) setState(p *types.Process, state types.AppState) {
	if p.SetState(state, m.clock.Now()) {
		m.publish(EventStateChanged, p)
	}
}

func (m *Manager) publish(kind EventKind, p *types.Process) {
	m.hub.Publish(StateEvent{
		Kind:    kind,
		Process: p.Info(),
		Time:    m.clock.Now(),
	})
}
