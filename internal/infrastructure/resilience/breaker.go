package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State is the position of a breaker in its closed, open, half-open cycle
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

var stateNames = map[State]string{
	StateClosed:   "closed",
	StateHalfOpen: "half-open",
	StateOpen:     "open",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Settings configures a breaker. Zero fields take the defaults applied by
// New, so one Settings value can serve as a template for many breakers.
type Settings struct {
	// Failures trips the default ReadyToTrip after that many consecutive failures
	Failures uint32
	// MaxRequests is how many trial calls a half-open breaker lets through
	MaxRequests uint32
	// Interval clears closed-state counts periodically; zero keeps them
	Interval time.Duration
	// Timeout is how long an open breaker rejects calls
	Timeout time.Duration
	// ReadyToTrip overrides the Failures rule
	ReadyToTrip func(counts Counts) bool
	// OnStateChange runs with the breaker lock held
	OnStateChange func(name string, from State, to State)
	// Clock drives timeouts; the wall clock when nil
	Clock clock.Clock
}

func (s Settings) withDefaults() Settings {
	if s.Failures == 0 {
		s.Failures = 5
	}
	if s.MaxRequests == 0 {
		s.MaxRequests = 1
	}
	if s.Timeout == 0 {
		s.Timeout = 30 * time.Second
	}
	if s.ReadyToTrip == nil {
		failures := s.Failures
		s.ReadyToTrip = func(counts Counts) bool {
			return counts.ConsecutiveFailures >= failures
		}
	}
	if s.Clock == nil {
		s.Clock = clock.New()
	}
	return s
}

// Counts are the outcomes recorded in the breaker's current window
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

func (c *Counts) success() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) failure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// Breaker stops calling a failing operation until a timeout passes
type Breaker struct {
	name     string
	settings Settings

	mu     sync.Mutex
	state  State
	window uint64    // Bumped on every reset; stale outcomes are dropped
	counts Counts    // Outcomes within window
	until  time.Time // End of window, zero when it never ends
}

// New creates a closed breaker
func New(name string, settings Settings) *Breaker {
	b := &Breaker{name: name, settings: settings.withDefaults()}
	b.reset(b.settings.Clock.Now())
	return b
}

func (b *Breaker) Name() string {
	return b.name
}

// State returns the state after applying any elapsed timeout
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tick(b.settings.Clock.Now())
	return b.state
}

// Counts returns the outcomes recorded in the current window
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.counts
}

// Execute runs req unless the breaker rejects it. A panic in req counts as
// a failure and is re-raised.
func (b *Breaker) Execute(req func() error) (err error) {
	window, err := b.admit()
	if err != nil {
		return err
	}

	ok := false
	defer func() { b.settle(window, ok) }()

	err = req()
	ok = err == nil
	return err
}

// admit reserves a call in the current window
func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tick(b.settings.Clock.Now())
	switch {
	case b.state == StateOpen:
		return 0, ErrCircuitOpen
	case b.state == StateHalfOpen && b.counts.Requests >= b.settings.MaxRequests:
		return 0, ErrTooManyRequests
	}
	b.counts.Requests++
	return b.window, nil
}

// settle records the outcome of a call admitted in window
func (b *Breaker) settle(window uint64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.settings.Clock.Now()
	b.tick(now)
	if window != b.window {
		return
	}

	if ok {
		b.counts.success()
		if b.state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.MaxRequests {
			b.moveTo(StateClosed, now)
		}
		return
	}

	switch b.state {
	case StateHalfOpen:
		b.moveTo(StateOpen, now)
	case StateClosed:
		b.counts.failure()
		if b.settings.ReadyToTrip(b.counts) {
			b.moveTo(StateOpen, now)
		}
	}
}

// tick reopens an expired closed window or half-opens an expired open one
func (b *Breaker) tick(now time.Time) {
	if b.until.IsZero() || !now.After(b.until) {
		return
	}
	if b.state == StateOpen {
		b.moveTo(StateHalfOpen, now)
		return
	}
	b.reset(now)
}

func (b *Breaker) moveTo(to State, now time.Time) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.reset(now)

	if fn := b.settings.OnStateChange; fn != nil {
		fn(b.name, from, to)
	}
}

func (b *Breaker) reset(now time.Time) {
	b.window++
	b.counts = Counts{}

	b.until = time.Time{}
	switch {
	case b.state == StateOpen:
		b.until = now.Add(b.settings.Timeout)
	case b.state == StateClosed && b.settings.Interval > 0:
		b.until = now.Add(b.settings.Interval)
	}
}
