package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueDrainsAllPushedTasks(t *testing.T) {
	q := New(2, time.Millisecond)
	var count int64
	const n = 50
	for i := 0; i < n; i++ {
		q.Push(func(ctx context.Context) { atomic.AddInt64(&count, 1) })
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt64(&count) == n }, 150*time.Millisecond, time.Millisecond)
	cancel()
	<-done
}

func TestQueueLenReflectsPendingTasks(t *testing.T) {
	q := New(0, time.Millisecond)
	assert.Equal(t, 0, q.Len())
	q.Push(func(ctx context.Context) {})
	q.Push(func(ctx context.Context) {})
	assert.Equal(t, 2, q.Len())
}
