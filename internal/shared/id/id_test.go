package id

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUnique(t *testing.T) {
	gen := NewGenerator()

	a := gen.Generate()
	b := gen.Generate()

	assert.NotEqual(t, a.String(), b.String())
	assert.Len(t, a.String(), 26)
}

func TestMonotonicOrdering(t *testing.T) {
	gen := NewGenerator()

	prev := gen.Generate().String()
	for i := 0; i < 100; i++ {
		next := gen.Generate().String()
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestTypedIDs(t *testing.T) {
	pid := NewProcessID()
	tok := NewAbilityToken()

	assert.True(t, strings.HasPrefix(pid.String(), "proc_"))
	assert.True(t, strings.HasPrefix(tok.String(), "abl_"))
	assert.True(t, Valid(pid.String(), ProcessPrefix))
	assert.True(t, Valid(tok.String(), AbilityPrefix))
	assert.False(t, Valid(tok.String(), ProcessPrefix))
	assert.False(t, Valid("proc_not-a-ulid", ProcessPrefix))
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	pid := NewProcessID()

	ts, err := Timestamp(pid.String())
	require.NoError(t, err)
	assert.True(t, ts.After(before))

	_, err = Timestamp("proc_garbage")
	assert.Error(t, err)
}

func TestConcurrentGeneration(t *testing.T) {
	const workers, perWorker = 8, 200

	var (
		mu   sync.Mutex
		seen = make(map[ProcessID]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				pid := NewProcessID()
				mu.Lock()
				seen[pid] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}
