package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteNeverInline(t *testing.T) {
	s := newTestServer(t, 1, 1, nil)
	startServer(t, s)
	w := s.Workers()[0]

	inline := make(chan bool, 1)
	done := make(chan struct{})
	w.Execute(func() {
		ran := false
		w.Execute(func() {
			ran = true
			close(done)
		})
		inline <- ran
	})
	assert.False(t, <-inline)
	<-done
}

func TestExecuteOrder(t *testing.T) {
	s := newTestServer(t, 1, 1, nil)
	w := s.Workers()[0]

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		w.Execute(func() { got = append(got, i) })
	}
	assert.Equal(t, 100, w.QueueLen())
	startServer(t, s)
	onLane(t, w, func() {})

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestTaskIsolation(t *testing.T) {
	s := newTestServer(t, 1, 2, nil)
	startServer(t, s)
	w0, w1 := s.Workers()[0], s.Workers()[1]

	ran := make(chan int32, 2)
	w0.Execute(func() { panic("task failure") })
	w0.Execute(func() { ran <- 0 })
	w1.Execute(func() { ran <- 1 })

	seen := map[int32]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-ran:
			seen[id] = true
		case <-time.After(time.Second):
			t.Fatal("task after panic did not run")
		}
	}
	assert.True(t, seen[0] && seen[1])
}

func TestSweepExpiresPendingCalls(t *testing.T) {
	s := newTestServer(t, 1, 1, nil)
	startServer(t, s)
	w := s.Workers()[0]

	errs := make(chan error, 2)
	onLane(t, w, func() {
		now := time.Now()
		w.pending[1] = &pendingCall{deadline: now.Add(-time.Millisecond), callback: func(_ any, err error) { errs <- err }}
		w.pending[2] = &pendingCall{deadline: now.Add(time.Hour), callback: func(_ any, err error) { errs <- err }}
		w.inflight.Add(2)
		w.sweep(now)
	})

	require.Len(t, errs, 1)
	assert.ErrorIs(t, <-errs, ErrCallTimeout)
	assert.Equal(t, int32(1), w.inflight.Load())

	require.NoError(t, s.Shutdown(time.Second))
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(time.Second):
		t.Fatal("pending call not failed at stop")
	}
}

func TestInitRunsOncePerPlacement(t *testing.T) {
	rec := &recorder{}
	s := newTestServer(t, 1, 1, nil)
	w := s.Workers()[0]
	require.NoError(t, s.AddServiceTo(w, newCalculator("a", rec)))
	startServer(t, s)
	onLane(t, w, func() { w.initAll() })

	assert.Equal(t, []string{"init"}, rec.snapshot())
}

func TestTaskQueueClose(t *testing.T) {
	q := newTaskQueue()
	assert.True(t, q.push(func() {}))
	assert.True(t, q.push(func() {}))
	assert.Equal(t, 2, q.close())
	assert.False(t, q.push(func() {}))

	_, ok := q.pop()
	assert.False(t, ok)
	assert.Zero(t, q.close())
}
