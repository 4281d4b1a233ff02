package osproc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/GriffinCanCode/AgentOS/appmgr/internal/shared/types"
)

// ErrNoCommand is returned when a bundle has nothing to execute
var ErrNoCommand = errors.New("bundle has no command")

// Spawner starts bundle processes on the host
type Spawner struct {
	logger *zap.Logger
	env    []string
}

// NewSpawner creates a spawner. Children inherit the current environment
// plus env.
func NewSpawner(logger *zap.Logger, env ...string) *Spawner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Spawner{logger: logger, env: env}
}

// Spawn starts the bundle's command in its own process group and calls
// onExit from a separate goroutine once it exits. ctx only bounds the
// start; the process outlives it.
func (s *Spawner) Spawn(ctx context.Context, b *types.Bundle, onExit func(pid int, err error)) (int, error) {
	if b.Command == "" {
		return 0, fmt.Errorf("%w: %s", ErrNoCommand, b.Name)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	cmd := exec.Command(b.Command, b.Args...)
	cmd.Env = append(os.Environ(), s.env...)
	cmd.Env = append(cmd.Env, "APPMGR_BUNDLE="+b.Name, "APPMGR_PROCESS="+b.Process())
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start %s: %w", b.Command, err)
	}
	pid := cmd.Process.Pid
	s.logger.Debug("process started", zap.String("bundle", b.Name), zap.Int("pid", pid))

	go func() {
		err := cmd.Wait()
		s.logger.Debug("process exited", zap.String("bundle", b.Name), zap.Int("pid", pid), zap.Error(err))
		if onExit != nil {
			onExit(pid, err)
		}
	}()

	return pid, nil
}

// Killer terminates host processes
type Killer struct {
	signal unix.Signal
}

// NewKiller creates a killer sending SIGKILL
func NewKiller() *Killer {
	return &Killer{signal: unix.SIGKILL}
}

// Kill sends the kill signal to pid
func (k *Killer) Kill(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d: %w", pid, unix.EINVAL)
	}
	if err := unix.Kill(pid, k.signal); err != nil {
		return fmt.Errorf("kill %d: %w", pid, err)
	}
	return nil
}

// Code converts a kill error into a result code: 0 on success, the
// negated errno when one is available, -1 otherwise.
func Code(err error) int {
	if err == nil {
		return 0
	}
	var errno unix.Errno
	if errors.As(err, &errno) && errno != 0 {
		return -int(errno)
	}
	return -1
}
