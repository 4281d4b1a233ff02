package types

import (
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/appmgr/internal/shared/id"
)

// AppState represents application process lifecycle states
type AppState string

const (
	StateCreate     AppState = "create"
	StateReady      AppState = "ready"
	StateForeground AppState = "foreground"
	StateBackground AppState = "background"
	StateCached     AppState = "cached"
	StateTerminated AppState = "terminated"
)

// SupportState is the process cache support an application declares
type SupportState string

const (
	SupportUnspecified SupportState = ""
	Support            SupportState = "support"
	NotSupport         SupportState = "not_support"
)

// ParseSupportState accepts the manifest spellings of SupportState
func ParseSupportState(s string) (SupportState, bool) {
	switch SupportState(s) {
	case SupportUnspecified, Support, NotSupport:
		return SupportState(s), true
	case "unspecified":
		return SupportUnspecified, true
	}
	return SupportUnspecified, false
}

// AbilityState represents the visibility of a single ability
type AbilityState string

const (
	AbilityForeground AbilityState = "foreground"
	AbilityBackground AbilityState = "background"
)

// Ability is one live ability hosted by a process
type Ability struct {
	Token  id.AbilityToken `json:"token"`
	Module string          `json:"module"`
	Name   string          `json:"name"`
	State  AbilityState    `json:"state"`
}

// Process is the record of one running application process. The manager
// that owns it hands out pointers; the record guards its own mutable fields.
type Process struct {
	ID           id.ProcessID
	Name         string
	Bundle       string
	PID          int
	KeepAlive    bool
	APIVersion   uint32
	SupportCache SupportState
	CreatedAt    time.Time

	mu             sync.RWMutex
	state          AppState
	stateChangedAt time.Time
	restarts       int
	killing        bool
	modules        map[string]map[id.AbilityToken]*Ability // Protected by mu
}

// NewProcess creates a process record in the create state
func NewProcess(name, bundle string, pid int, now time.Time) *Process {
	return &Process{
		ID:             id.NewProcessID(),
		Name:           name,
		Bundle:         bundle,
		PID:            pid,
		CreatedAt:      now,
		state:          StateCreate,
		stateChangedAt: now,
		modules:        make(map[string]map[id.AbilityToken]*Ability),
	}
}

// State returns the current application state
func (p *Process) State() AppState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// SetState changes the application state and reports whether it changed
func (p *Process) SetState(state AppState, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == state {
		return false
	}
	p.state = state
	p.stateChangedAt = now
	return true
}

// Restarts returns how many times this process was restarted
func (p *Process) Restarts() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.restarts
}

// SetRestarts records the restart count carried over from a previous record
func (p *Process) SetRestarts(n int) {
	p.mu.Lock()
	p.restarts = n
	p.mu.Unlock()
}

// MarkKilling records that a kill was requested. Such a record still
// exists until the exit is reported but must not host new abilities.
func (p *Process) MarkKilling() {
	p.mu.Lock()
	p.killing = true
	p.mu.Unlock()
}

// ClearKilling withdraws MarkKilling after a failed kill
func (p *Process) ClearKilling() {
	p.mu.Lock()
	p.killing = false
	p.mu.Unlock()
}

// Killing reports whether a kill was requested
func (p *Process) Killing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.killing
}

// AddModule registers an ability container with no abilities
func (p *Process) AddModule(module string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.modules[module]; !ok {
		p.modules[module] = make(map[id.AbilityToken]*Ability)
	}
}

// AddAbility attaches an ability to a module, creating the module if needed
func (p *Process) AddAbility(a *Ability) {
	p.mu.Lock()
	defer p.mu.Unlock()

	abilities, ok := p.modules[a.Module]
	if !ok {
		abilities = make(map[id.AbilityToken]*Ability)
		p.modules[a.Module] = abilities
	}
	abilities[a.Token] = a
}

// RemoveAbility detaches an ability and reports whether it was present
func (p *Process) RemoveAbility(token id.AbilityToken) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, abilities := range p.modules {
		if _, ok := abilities[token]; ok {
			delete(abilities, token)
			return true
		}
	}
	return false
}

// SetAbilityState changes the state of a hosted ability
func (p *Process) SetAbilityState(token id.AbilityToken, state AbilityState) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, abilities := range p.modules {
		if a, ok := abilities[token]; ok {
			a.State = state
			return true
		}
	}
	return false
}

// AbilityCount returns the number of live abilities across all modules
func (p *Process) AbilityCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := 0
	for _, abilities := range p.modules {
		n += len(abilities)
	}
	return n
}

// HasEmptyAbilitySet reports whether every module holds zero abilities
func (p *Process) HasEmptyAbilitySet() bool {
	return p.AbilityCount() == 0
}

// HasForegroundAbility reports whether any hosted ability is in foreground
func (p *Process) HasForegroundAbility() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, abilities := range p.modules {
		for _, a := range abilities {
			if a.State == AbilityForeground {
				return true
			}
		}
	}
	return false
}

// ClearAbilities drops every ability and returns their tokens
func (p *Process) ClearAbilities() []id.AbilityToken {
	p.mu.Lock()
	defer p.mu.Unlock()

	var tokens []id.AbilityToken
	for module, abilities := range p.modules {
		for token := range abilities {
			tokens = append(tokens, token)
		}
		p.modules[module] = make(map[id.AbilityToken]*Ability)
	}
	return tokens
}

// ProcessInfo is a read-only snapshot of a process record
type ProcessInfo struct {
	ID             id.ProcessID `json:"id"`
	Name           string       `json:"name"`
	Bundle         string       `json:"bundle"`
	PID            int          `json:"pid"`
	KeepAlive      bool         `json:"keep_alive"`
	APIVersion     uint32       `json:"api_version"`
	SupportCache   SupportState `json:"support_process_cache,omitempty"`
	State          AppState     `json:"state"`
	CreatedAt      time.Time    `json:"created_at"`
	StateChangedAt time.Time    `json:"state_changed_at"`
	Restarts       int          `json:"restarts"`
	Killing        bool         `json:"killing,omitempty"`
	Abilities      []Ability    `json:"abilities"`
}

// Info returns a snapshot of the record, abilities sorted by token
func (p *Process) Info() ProcessInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()

	abilities := make([]Ability, 0)
	for _, mod := range p.modules {
		for _, a := range mod {
			abilities = append(abilities, *a)
		}
	}
	sort.Slice(abilities, func(i, j int) bool {
		return abilities[i].Token < abilities[j].Token
	})

	return ProcessInfo{
		ID:             p.ID,
		Name:           p.Name,
		Bundle:         p.Bundle,
		PID:            p.PID,
		KeepAlive:      p.KeepAlive,
		APIVersion:     p.APIVersion,
		SupportCache:   p.SupportCache,
		State:          p.state,
		CreatedAt:      p.CreatedAt,
		StateChangedAt: p.stateChangedAt,
		Restarts:       p.restarts,
		Killing:        p.killing,
		Abilities:      abilities,
	}
}

// Stats contains process manager statistics
type Stats struct {
	TotalProcesses      int `json:"total_processes"`
	ForegroundProcesses int `json:"foreground_processes"`
	BackgroundProcesses int `json:"background_processes"`
	CachedProcesses     int `json:"cached_processes"`
	Abilities           int `json:"abilities"`
}
