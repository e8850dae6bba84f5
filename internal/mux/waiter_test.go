package mux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaiterQueue_FIFO(t *testing.T) {
	q := newWaiterQueue()

	ch1 := q.push()
	ch2 := q.push()
	ch3 := q.push()

	require.True(t, q.popAndDeliver(commandResponse{lines: []string{"one"}}))
	require.True(t, q.popAndDeliver(commandResponse{lines: []string{"two"}}))
	require.True(t, q.popAndDeliver(commandResponse{lines: []string{"three"}}))

	assert.Equal(t, []string{"one"}, (<-ch1).lines)
	assert.Equal(t, []string{"two"}, (<-ch2).lines)
	assert.Equal(t, []string{"three"}, (<-ch3).lines)
}

func TestWaiterQueue_PopOnEmptyReturnsFalse(t *testing.T) {
	q := newWaiterQueue()
	assert.False(t, q.popAndDeliver(commandResponse{}))
}

func TestWaiterQueue_Remove(t *testing.T) {
	q := newWaiterQueue()
	ch1 := q.push()
	ch2 := q.push()

	q.remove(ch1)

	require.True(t, q.popAndDeliver(commandResponse{lines: []string{"for-two"}}))
	assert.Equal(t, []string{"for-two"}, (<-ch2).lines)

	// ch1 was removed, so nothing further should be delivered to it; a
	// subsequent pop on the now-empty queue reports false.
	assert.False(t, q.popAndDeliver(commandResponse{}))
}

func TestWaiterQueue_RemoveNonHeadEntry(t *testing.T) {
	q := newWaiterQueue()
	ch1 := q.push()
	ch2 := q.push()
	ch3 := q.push()

	q.remove(ch2)

	require.True(t, q.popAndDeliver(commandResponse{lines: []string{"a"}}))
	assert.Equal(t, []string{"a"}, (<-ch1).lines)

	require.True(t, q.popAndDeliver(commandResponse{lines: []string{"c"}}))
	assert.Equal(t, []string{"c"}, (<-ch3).lines)
}

func TestWaiterQueue_DeliverToAbandonedWaiterDoesNotBlock(t *testing.T) {
	q := newWaiterQueue()
	ch := q.push()
	// Fill the one-shot buffer so the waiter looks exactly like a timed-out
	// caller that stopped reading from ch without removing it first;
	// popAndDeliver must still not block forever.
	ch <- commandResponse{lines: []string{"already-delivered"}}

	done := make(chan struct{})
	go func() {
		q.popAndDeliver(commandResponse{lines: []string{"late"}})
		close(done)
	}()
	<-done
}

func TestWaiterQueue_ErrorResponse(t *testing.T) {
	q := newWaiterQueue()
	ch := q.push()
	require.True(t, q.popAndDeliver(commandResponse{err: assert.AnError}))
	resp := <-ch
	assert.ErrorIs(t, resp.err, assert.AnError)
}
