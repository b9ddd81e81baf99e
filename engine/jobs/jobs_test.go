package jobs

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDispatchRunsEveryIndex(t *testing.T) {
	s := NewScheduler(WithWorkers(4))
	defer s.Close()

	var seen [64]atomic.Int32
	l := s.Dispatch(func(i int) { seen[i].Add(1) }, len(seen))
	s.Wait(l)

	require.True(t, l.Done())
	for i := range seen {
		require.Equal(t, int32(1), seen[i].Load(), "index %d", i)
	}
}

func TestDispatchZeroIsDone(t *testing.T) {
	s := NewScheduler(WithWorkers(1))
	defer s.Close()

	l := s.Dispatch(func(int) { t.Fatal("must not run") }, 0)
	require.True(t, l.Done())
}

func TestDependentDispatchWaitsForDeps(t *testing.T) {
	s := NewScheduler(WithWorkers(2))
	defer s.Close()

	release := make(chan struct{})
	var first atomic.Bool
	a := s.Dispatch(func(int) {
		<-release
		first.Store(true)
	}, 1)

	var sawFirst atomic.Bool
	b := s.Dispatch(func(int) { sawFirst.Store(first.Load()) }, 1, a)

	time.Sleep(10 * time.Millisecond)
	require.False(t, b.Done())

	close(release)
	s.Wait(b)
	require.True(t, sawFirst.Load())
}

func TestPanickingJobCompletesLabel(t *testing.T) {
	s := NewScheduler(WithWorkers(1))
	defer s.Close()

	l := s.Dispatch(func(int) { panic("boom") }, 3)
	done := make(chan struct{})
	go func() {
		l.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("label never completed")
	}
}

func TestCloseCompletesQueuedWork(t *testing.T) {
	s := NewScheduler(WithWorkers(1))

	release := make(chan struct{})
	running := make(chan struct{})
	busy := s.Dispatch(func(int) {
		close(running)
		<-release
	}, 1)
	<-running

	var ran atomic.Int32
	queued := s.Dispatch(func(int) { ran.Add(1) }, 8)
	dependent := s.Dispatch(func(int) { ran.Add(1) }, 2, queued)
	require.False(t, queued.Done())

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()

	waited := make(chan struct{})
	go func() {
		s.Wait(queued, dependent)
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait blocked on work abandoned by Close")
	}

	close(release)
	s.Wait(busy)
	<-closed
	require.Zero(t, ran.Load())
	require.True(t, s.Dispatch(func(int) { ran.Add(1) }, 4).Done())
	require.Zero(t, ran.Load())
}
