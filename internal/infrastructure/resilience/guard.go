package resilience

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/appmgr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/shared/types"
)

// Spawner starts bundle processes
type Spawner interface {
	Spawn(ctx context.Context, b *types.Bundle, onExit func(pid int, err error)) (int, error)
}

// SpawnGuard wraps a Spawner with one circuit breaker per bundle, so a
// bundle whose binary keeps failing to start is rejected without touching
// the host until its cooldown passes.
type SpawnGuard struct {
	next     Spawner
	settings Settings
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewSpawnGuard creates a guard around next. Every bundle gets a breaker
// built from settings; MaxRequests is forced to one trial spawn and
// OnStateChange is replaced by the guard's logging and metrics.
func NewSpawnGuard(next Spawner, settings Settings) *SpawnGuard {
	settings.MaxRequests = 1
	settings.OnStateChange = nil
	return &SpawnGuard{
		next:     next,
		settings: settings.withDefaults(),
		logger:   zap.NewNop(),
		breakers: make(map[string]*Breaker),
	}
}

// WithLogger sets the logger used for breaker transitions
func (g *SpawnGuard) WithLogger(logger *zap.Logger) *SpawnGuard {
	g.logger = logger
	return g
}

// WithMetrics attaches metrics
func (g *SpawnGuard) WithMetrics(metrics *monitoring.Metrics) *SpawnGuard {
	g.metrics = metrics
	return g
}

// Spawn starts b through its bundle's breaker. A canceled ctx is returned
// as is and does not count against the bundle.
func (g *SpawnGuard) Spawn(ctx context.Context, b *types.Bundle, onExit func(pid int, err error)) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var pid int
	err := g.breaker(b.Name).Execute(func() error {
		var err error
		pid, err = g.next.Spawn(ctx, b, onExit)
		return err
	})
	if err == ErrCircuitOpen || err == ErrTooManyRequests {
		return 0, fmt.Errorf("%s: %w", b.Name, err)
	}
	return pid, err
}

// State returns the breaker state for a bundle
func (g *SpawnGuard) State(bundle string) State {
	g.mu.Lock()
	b, ok := g.breakers[bundle]
	g.mu.Unlock()
	if !ok {
		return StateClosed
	}
	return b.State()
}

// Open returns the bundles whose breaker is not closed, sorted by name
func (g *SpawnGuard) Open() []string {
	g.mu.Lock()
	breakers := make([]*Breaker, 0, len(g.breakers))
	for _, b := range g.breakers {
		breakers = append(breakers, b)
	}
	g.mu.Unlock()

	var open []string
	for _, b := range breakers {
		if b.State() != StateClosed {
			open = append(open, b.Name())
		}
	}
	sort.Strings(open)
	return open
}

func (g *SpawnGuard) breaker(bundle string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	if b, ok := g.breakers[bundle]; ok {
		return b
	}
	settings := g.settings
	settings.OnStateChange = g.transitioned
	b := New(bundle, settings)
	g.breakers[bundle] = b
	return b
}

func (g *SpawnGuard) transitioned(bundle string, from, to State) {
	g.logger.Warn("spawn breaker state changed",
		zap.String("bundle", bundle),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
	g.metrics.RecordBreakerState(to.String())
}
