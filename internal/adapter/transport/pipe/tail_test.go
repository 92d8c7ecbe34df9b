package pipe

import (
	"strings"
	"sync"
	"testing"
)

func TestTailBufferKeepsEverythingUnderLimit(t *testing.T) {
	b := newTailBuffer(64)
	_, _ = b.Write([]byte("one\n"))
	_, _ = b.Write([]byte("two\n"))

	if got := b.String(); got != "one\ntwo" {
		t.Errorf("String() = %q, want %q", got, "one\ntwo")
	}
	if b.Dropped() != 0 {
		t.Errorf("Dropped() = %d, want 0", b.Dropped())
	}
}

func TestTailBufferDropsOldestAndCutsPartialLine(t *testing.T) {
	b := newTailBuffer(10)
	_, _ = b.Write([]byte("first line\n"))
	_, _ = b.Write([]byte("ab\ncd\n"))

	// buffer holds "ine\nab\ncd\n"
	got := b.String()
	if got != "ab\ncd" {
		t.Errorf("String() = %q, want %q", got, "ab\ncd")
	}
	if b.Dropped() != 7 {
		t.Errorf("Dropped() = %d, want 7", b.Dropped())
	}
}

func TestTailBufferConcurrentWrites(t *testing.T) {
	b := newTailBuffer(1024)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = b.Write([]byte("x\n"))
			}
		}()
	}
	wg.Wait()

	if n := strings.Count(b.String(), "x"); n != 512 {
		t.Errorf("kept %d lines, want 512", n)
	}
	if b.Dropped() != 1600-1024 {
		t.Errorf("Dropped() = %d, want %d", b.Dropped(), 1600-1024)
	}
}

func TestTailBufferKeepsWholeLineWhenDropEndsOnBoundary(t *testing.T) {
	b := newTailBuffer(3)
	_, _ = b.Write([]byte("ab\n"))
	_, _ = b.Write([]byte("cd\n"))

	if got := b.String(); got != "cd" {
		t.Errorf("String() = %q, want %q", got, "cd")
	}
}
