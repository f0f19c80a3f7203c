package csp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture_CompleteOnce(t *testing.T) {
	f := NewFuture(InlineExecutor{})
	require.True(t, f.Complete(42))
	require.False(t, f.Complete(43))
	require.False(t, f.CompleteError(ErrCanceled))

	o, ok := f.Result()
	require.True(t, ok)
	assert.Equal(t, 42, o.Value)
	assert.NoError(t, o.Err)
}

func TestFuture_CompleteErrorOnce(t *testing.T) {
	f := NewFuture(InlineExecutor{})
	require.True(t, f.CompleteError(ErrTimeout))
	require.False(t, f.Complete("late"))

	o, ok := f.Result()
	require.True(t, ok)
	assert.ErrorIs(t, o.Err, ErrTimeout)
}

func TestFuture_Await_AlreadySettled(t *testing.T) {
	f := NewFuture(InlineExecutor{})
	f.Complete("hello")

	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

func TestFuture_Await_BlocksUntilSettled(t *testing.T) {
	f := NewFuture(InlineExecutor{})
	done := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		f.Complete("later")
		close(done)
	}()

	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "later", v)
	<-done
}

func TestFuture_Await_ContextCanceled(t *testing.T) {
	f := NewFuture(InlineExecutor{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFuture_OnComplete_AlreadySettled(t *testing.T) {
	f := NewFuture(NewFIFOExecutor())
	f.Complete(7)

	received := make(chan Outcome, 1)
	f.OnComplete(func(o Outcome) { received <- o })

	select {
	case o := <-received:
		assert.Equal(t, 7, o.Value)
	case <-time.After(time.Second):
		t.Fatal("callback never ran")
	}
}

func TestFuture_OnComplete_DispatchedThroughExecutor(t *testing.T) {
	exec := NewFIFOExecutor()
	defer exec.Close()
	f := NewFuture(exec)

	ran := make(chan struct{})
	f.OnComplete(func(Outcome) { close(ran) })
	f.Complete(nil)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("callback never ran")
	}
}

func TestFuture_ToChannel(t *testing.T) {
	f := NewFuture(NewFIFOExecutor())
	f.Complete("via-channel")

	out := f.ToChannel()
	select {
	case o := <-out:
		assert.Equal(t, "via-channel", o.Value)
	case <-time.After(time.Second):
		t.Fatal("ToChannel never delivered")
	}
	_, open := <-out
	assert.False(t, open)
}

func TestReadFuture_TypedAwait(t *testing.T) {
	inner := NewFuture(InlineExecutor{})
	inner.Complete(123)
	rf := &ReadFuture[int]{f: inner}

	v, err := rf.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 123, v)
}

func TestWriteFuture_TypedAwait(t *testing.T) {
	inner := NewFuture(InlineExecutor{})
	inner.Complete(nil)
	wf := &WriteFuture{f: inner}

	require.NoError(t, wf.Await(context.Background()))
}
