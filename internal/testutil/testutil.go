// Package testutil provides fakes of the host process backend for tests.
package testutil

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/AgentOS/appmgr/internal/shared/types"
)

// FirstPID is the pid handed out by the first successful Spawn
const FirstPID = 1001

// Spawner is a fake host spawner handing out sequential pids
type Spawner struct {
	mu    sync.Mutex
	next  int
	calls int
	err   error
	exits map[int]func(int, error)
}

// NewSpawner creates a fake spawner
func NewSpawner() *Spawner {
	return &Spawner{exits: make(map[int]func(int, error))}
}

// Spawn records the call and returns the next pid
func (s *Spawner) Spawn(_ context.Context, _ *types.Bundle, onExit func(int, error)) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	pid := FirstPID + s.next
	s.next++
	s.exits[pid] = onExit
	return pid, nil
}

// Exit simulates the process with pid exiting
func (s *Spawner) Exit(pid int) {
	s.mu.Lock()
	onExit := s.exits[pid]
	delete(s.exits, pid)
	s.mu.Unlock()

	if onExit != nil {
		onExit(pid, nil)
	}
}

// Spawned returns the number of Spawn calls
func (s *Spawner) Spawned() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// SetErr makes subsequent spawns fail with err
func (s *Spawner) SetErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Killer is a fake killer. A successful kill makes the spawner report
// the exit before Kill returns.
type Killer struct {
	mu      sync.Mutex
	spawner *Spawner
	killed  []int
	fail    map[int]error
	linger  bool
}

// NewKiller creates a fake killer wired to spawner
func NewKiller(spawner *Spawner) *Killer {
	return &Killer{spawner: spawner, fail: make(map[int]error)}
}

// Kill records pid and simulates its exit unless a failure is set
func (k *Killer) Kill(pid int) error {
	k.mu.Lock()
	k.killed = append(k.killed, pid)
	err := k.fail[pid]
	linger := k.linger
	k.mu.Unlock()

	if err != nil {
		return err
	}
	if !linger {
		k.spawner.Exit(pid)
	}
	return nil
}

// Linger makes successful kills leave the exit to an explicit
// Spawner.Exit, as a process that takes time to die would
func (k *Killer) Linger() {
	k.mu.Lock()
	k.linger = true
	k.mu.Unlock()
}

// Fail makes kills of pid return err
func (k *Killer) Fail(pid int, err error) {
	k.mu.Lock()
	k.fail[pid] = err
	k.mu.Unlock()
}

// Kills returns the pids passed to Kill in order
func (k *Killer) Kills() []int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]int(nil), k.killed...)
}

// Capacity is a fixed cache capacity source
type Capacity int

// MaxProcessCacheNum returns the capacity
func (c Capacity) MaxProcessCacheNum() int { return int(c) }

// NewBundle returns a valid cacheable bundle with one "entry" module
func NewBundle(name string) *types.Bundle {
	return &types.Bundle{
		Name:       name,
		APIVersion: 50012,
		Command:    "/bin/" + name,
		Modules:    []types.Module{{Name: "entry", Abilities: []string{"Main"}}},
	}
}
