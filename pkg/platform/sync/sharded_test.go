package sync

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShardFor_StableAndBounded(t *testing.T) {
	assert.Equal(t, uint32(0), shardFor(""))
	for _, k := range []string{"consent:UNDEFINED/c-1", "authorisation:UNDEFINED/a-1", "x"} {
		assert.Equal(t, shardFor(k), shardFor(k))
		assert.Less(t, shardFor(k), uint32(shardCount))
	}
}

func TestWithLock_SerialisesSameKey(t *testing.T) {
	m := NewShardedMutex()
	counter := 0
	var wg sync.WaitGroup
	for range 200 {
		wg.Go(func() {
			_ = m.WithLock("consent:UNDEFINED/c-1", func() error {
				counter++
				return nil
			})
		})
	}
	wg.Wait()
	assert.Equal(t, 200, counter)
}

func TestWithLock_ReturnsErrorAndReleases(t *testing.T) {
	m := NewShardedMutex()
	boom := errors.New("boom")

	assert.ErrorIs(t, m.WithLock("k", func() error { return boom }), boom)

	m.Lock("k")
	m.Unlock("k")
}
