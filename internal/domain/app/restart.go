package app

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/appmgr/internal/shared/types"
)

// spawnAttempts bounds spawn attempts per restart
const spawnAttempts = 3

// RestartPolicy controls how resident processes are brought back after
// they die. MaxRestarts caps consecutive restarts; a process that ran for
// StableAfter before dying starts counting again from one.
type RestartPolicy struct {
	MaxRestarts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	StableAfter     time.Duration
}

// DefaultRestartPolicy returns the policy used when none is configured
func DefaultRestartPolicy() RestartPolicy {
	return RestartPolicy{
		MaxRestarts:     5,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		StableAfter:     10 * time.Minute,
	}
}

func (r RestartPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.InitialInterval
	b.MaxInterval = r.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// delay returns the wait before the n-th consecutive restart
func (r RestartPolicy) delay(n int) time.Duration {
	b := r.backOff()
	d := b.NextBackOff()
	for i := 0; i < n; i++ {
		d = b.NextBackOff()
	}
	return d
}

// allows reports whether the n-th consecutive restart is permitted
func (r RestartPolicy) allows(n int) bool {
	return n <= r.MaxRestarts
}

// next returns the consecutive restart number a replacement for dead would carry
func (r RestartPolicy) next(dead *types.Process, diedAt time.Time) int {
	if r.StableAfter > 0 && diedAt.Sub(dead.CreatedAt) >= r.StableAfter {
		return 1
	}
	return dead.Restarts() + 1
}

// restartProcess brings a dead resident process back as its attempt-th
// consecutive restart. The caller adds to m.wg before starting it.
func (m *Manager) restartProcess(dead *types.Process, attempt int) {
	defer m.wg.Done()

	select {
	case <-m.ctx.Done():
		return
	case <-m.clock.After(m.restart.delay(attempt - 1)):
	}

	var p *types.Process
	op := func() error {
		b, err := m.bundles.Get(dead.Bundle)
		if err != nil {
			return backoff.Permanent(err)
		}
		p, err = m.startProcess(m.ctx, b, attempt)
		if errors.Is(err, ErrClosed) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		m.logger.Warn("restart attempt failed",
			zap.String("process", dead.Name),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(m.restart.backOff(), spawnAttempts-1), m.ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		m.logger.Error("failed to restart resident process",
			zap.String("process", dead.Name),
			zap.Error(err),
		)
		return
	}

	m.metrics.IncRestarts()
	m.logger.Info("resident process restarted",
		zap.String("process", p.Name),
		zap.Int("pid", p.PID),
		zap.Int("restarts", attempt),
	)
	m.publish(EventProcessRestarted, p)
}
