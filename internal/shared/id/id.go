// Package id generates the identifiers used by the process manager.
//
// Process records and ability tokens are prefixed ULIDs:
//   - proc_<ulid>: one application process record
//   - abl_<ulid>:  one live ability hosted by a process
//
// ULIDs sort by creation time, so listings ordered by id are also ordered
// by launch time.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ProcessID identifies a process record
type ProcessID string

// AbilityToken identifies a live ability instance
type AbilityToken string

const (
	ProcessPrefix = "proc"
	AbilityPrefix = "abl"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the shared generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand with monotonic
// ordering inside the same millisecond.
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewProcessID generates a new process record id
func NewProcessID() ProcessID {
	return ProcessID(Default().GenerateWithPrefix(ProcessPrefix))
}

// NewAbilityToken generates a new ability token
func NewAbilityToken() AbilityToken {
	return AbilityToken(Default().GenerateWithPrefix(AbilityPrefix))
}

func (id ProcessID) String() string    { return string(id) }
func (t AbilityToken) String() string { return string(t) }

// Valid reports whether s is "<prefix>_<ulid>"
func Valid(s, prefix string) bool {
	rest, ok := strings.CutPrefix(s, prefix+"_")
	if !ok {
		return false
	}
	_, err := ulid.Parse(rest)
	return err == nil
}

// Timestamp extracts the creation time from a prefixed id
func Timestamp(s string) (time.Time, error) {
	_, rest, found := strings.Cut(s, "_")
	if !found {
		rest = s
	}
	parsed, err := ulid.Parse(rest)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
