package csp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOExecutor_PreservesOrder(t *testing.T) {
	exec := NewFIFOExecutor()
	defer exec.Close()

	const n = 100
	results := make(chan int, n)
	for i := 0; i < n; i++ {
		i := i
		exec.Schedule(func() { results <- i })
	}

	for i := 0; i < n; i++ {
		select {
		case got := <-results:
			require.Equal(t, i, got)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for callback %d", i)
		}
	}
}

func TestFIFOExecutor_CloseDropsLateSchedules(t *testing.T) {
	exec := NewFIFOExecutor()
	exec.Close()

	ran := false
	exec.Schedule(func() { ran = true })
	time.Sleep(10 * time.Millisecond)
	assert.False(t, ran)
}

func TestInlineExecutor_RunsSynchronously(t *testing.T) {
	var exec InlineExecutor
	ran := false
	exec.Schedule(func() { ran = true })
	assert.True(t, ran)
}

func TestDefaultExecutor_IsSharedSingleton(t *testing.T) {
	a := DefaultExecutor()
	b := DefaultExecutor()
	assert.Same(t, a, b)
}
