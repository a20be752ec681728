package inbox

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexabus/gwbus/message"
)

func mustMessage(t *testing.T, payload string) *message.Message {
	t.Helper()
	m, err := message.New([]byte(payload), nil)
	require.NoError(t, err)
	return m
}

func TestMemory_FIFO(t *testing.T) {
	q := NewMemory()
	for i := 0; i < 100; i++ {
		require.NoError(t, q.Enqueue(mustMessage(t, string(rune('a'+i%26)))))
	}

	var seen []string
	for i := 0; i < 100; i++ {
		m, ok := q.Next()
		require.True(t, ok)
		seen = append(seen, string(m.Content()))
		assert.Equal(t, string(rune('a'+i%26)), seen[i])
		m.Release()
	}
	assert.Len(t, seen, 100)
}

func TestMemory_NextBlocksUntilEnqueue(t *testing.T) {
	q := NewMemory()
	done := make(chan *message.Message, 1)

	go func() {
		m, ok := q.Next()
		if ok {
			done <- m
		} else {
			done <- nil
		}
	}()

	select {
	case <-done:
		t.Fatal("Next returned before any message was enqueued")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, q.Enqueue(mustMessage(t, "x")))

	select {
	case m := <-done:
		require.NotNil(t, m)
		assert.Equal(t, "x", string(m.Content()))
	case <-time.After(time.Second):
		t.Fatal("Next never woke up")
	}
}

func TestMemory_StopUnblocksNextWithoutDelivering(t *testing.T) {
	q := NewMemory()
	require.NoError(t, q.Enqueue(mustMessage(t, "queued-before-stop")))

	q.Stop()

	m, ok := q.Next()
	assert.False(t, ok)
	assert.Nil(t, m)

	// Enqueue after stop is rejected; ownership stays with the caller.
	late := mustMessage(t, "too-late")
	err := q.Enqueue(late)
	assert.ErrorIs(t, err, ErrStopped)
	late.Release()

	require.NoError(t, q.Close())
}

func TestMemory_CloseDrainsResidual(t *testing.T) {
	q := NewMemory()
	require.NoError(t, q.Enqueue(mustMessage(t, "a")))
	require.NoError(t, q.Enqueue(mustMessage(t, "b")))
	q.Stop()

	// Close must not panic or block even though two messages never
	// reached Next.
	require.NoError(t, q.Close())
}

func TestMemory_ConcurrentProducers(t *testing.T) {
	q := NewMemory()
	const perProducer = 500

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < perProducer; i++ {
			_ = q.Enqueue(mustMessage(t, "t1"))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < perProducer; i++ {
			_ = q.Enqueue(mustMessage(t, "t2"))
		}
	}()
	wg.Wait()

	count := 0
	for count < 2*perProducer {
		m, ok := q.Next()
		require.True(t, ok)
		m.Release()
		count++
	}
	assert.Equal(t, 2*perProducer, count)
}
