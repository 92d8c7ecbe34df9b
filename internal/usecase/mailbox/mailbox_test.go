package mailbox

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain[T any](t *testing.T, m *Mailbox[T]) []T {
	t.Helper()
	var got []T
	timeout := time.After(5 * time.Second)
	for {
		select {
		case v, ok := <-m.Out():
			if !ok {
				return got
			}
			got = append(got, v)
		case <-timeout:
			t.Fatal("mailbox never closed")
			return got
		}
	}
}

func TestMailbox_PreservesOrderWithoutReader(t *testing.T) {
	m := New[int]()
	for i := range 10000 {
		require.True(t, m.Put(i))
	}
	m.Close()

	got := drain(t, m)
	require.Len(t, got, 10000)
	for i, v := range got {
		if v != i {
			t.Fatalf("position %d holds %d", i, v)
		}
	}
}

func TestMailbox_PutAfterClose(t *testing.T) {
	m := New[string]()
	m.Put("a")
	m.Close()
	assert.False(t, m.Put("b"))
	assert.Equal(t, []string{"a"}, drain(t, m))
}

func TestMailbox_AbortDiscards(t *testing.T) {
	m := New[int]()
	for i := range 100 {
		m.Put(i)
	}
	m.Abort()
	m.Abort()

	got := drain(t, m)
	assert.LessOrEqual(t, len(got), 1, "at most the value already handed to the pump")
	assert.False(t, m.Put(1))
}

func TestMailbox_ConcurrentProducers(t *testing.T) {
	m := New[int]()
	var wg sync.WaitGroup
	for p := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 500 {
				m.Put(p*1000 + i)
			}
		}()
	}

	done := make(chan []int)
	go func() {
		var got []int
		for v := range m.Out() {
			got = append(got, v)
		}
		done <- got
	}()
	wg.Wait()
	m.Close()

	got := <-done
	assert.Len(t, got, 8*500)

	// Each producer's values stay in their own order.
	last := map[int]int{}
	for _, v := range got {
		p, i := v/1000, v%1000
		if prev, ok := last[p]; ok {
			assert.Greater(t, i, prev)
		}
		last[p] = i
	}
}

func TestMailbox_Len(t *testing.T) {
	m := New[int]()
	defer m.Abort()
	m.Put(1)
	m.Put(2)
	assert.Eventually(t, func() bool { return m.Len() <= 2 }, time.Second, 10*time.Millisecond)
}
