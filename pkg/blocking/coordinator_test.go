package blocking

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// park blocks gate g on a new goroutine and waits until it is parked.
func park(t *testing.T, g *Gate, reports *atomic.Int32) <-chan struct{} {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		g.Block(func() { reports.Add(1) })
	}()
	require.Eventually(t, g.Blocked, time.Second, time.Millisecond)
	return done
}

func TestGate_BlockAndResume(t *testing.T) {
	c := NewCoordinator()
	g := c.Gate(1)
	assert.False(t, g.Resume(), "not parked")

	var reports atomic.Int32
	done := park(t, g, &reports)
	assert.Equal(t, []int64{1}, c.Blocked())

	assert.True(t, g.Resume())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("thread did not resume")
	}
	assert.False(t, g.Blocked())
	assert.Equal(t, int32(1), reports.Load())
}

func TestGate_ScheduleRunsOnParkedThreadAndReparks(t *testing.T) {
	c := NewCoordinator()
	g := c.Gate(1)
	var reports atomic.Int32
	done := park(t, g, &reports)

	ran := make(chan struct{})
	require.NoError(t, g.Schedule(func() func() {
		close(ran)
		return nil
	}))
	<-ran

	assert.True(t, g.Blocked())
	assert.Equal(t, int32(1), reports.Load(), "work does not report a second stop")

	g.Resume()
	<-done
}

func TestGate_ReplyNoLongerCountsAsOutstanding(t *testing.T) {
	c := NewCoordinator()
	g := c.Gate(1)
	var reports atomic.Int32
	done := park(t, g, &reports)

	// Each reply schedules the next unit, as a controller answering at
	// once would.
	var runs atomic.Int32
	errs := make(chan error, 1)
	var work func() func()
	work = func() func() {
		n := runs.Add(1)
		return func() {
			if n == 100 {
				errs <- nil
				return
			}
			if err := g.Schedule(work); err != nil {
				errs <- err
			}
		}
	}
	require.NoError(t, g.Schedule(work))

	select {
	case err := <-errs:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduled work stalled")
	}
	assert.Equal(t, int32(100), runs.Load())

	g.Resume()
	<-done
}

func TestGate_SingleOutstandingWork(t *testing.T) {
	c := NewCoordinator()
	g := c.Gate(1)
	assert.ErrorIs(t, g.Schedule(func() func() { return nil }), ErrNotBlocked)

	var reports atomic.Int32
	done := park(t, g, &reports)

	release := make(chan struct{})
	started := make(chan struct{})
	replied := make(chan struct{})
	first := func() func() {
		close(started)
		<-release
		return func() { close(replied) }
	}
	require.NoError(t, g.Schedule(first))
	<-started

	secondRan := false
	assert.ErrorIs(t, g.Schedule(func() func() {
		secondRan = true
		return nil
	}), ErrBusy)

	close(release)
	<-replied
	assert.False(t, secondRan)

	third := make(chan struct{})
	require.NoError(t, g.Schedule(func() func() {
		close(third)
		return nil
	}))
	<-third

	g.Resume()
	<-done
}

func TestCoordinator_ReleaseUnblocksAll(t *testing.T) {
	c := NewCoordinator()
	var reports atomic.Int32
	var dones []<-chan struct{}
	for id := int64(1); id <= 3; id++ {
		dones = append(dones, park(t, c.Gate(id), &reports))
	}
	assert.Equal(t, []int64{1, 2, 3}, c.Blocked())

	c.Release()
	c.Release()
	for _, d := range dones {
		select {
		case <-d:
		case <-time.After(time.Second):
			t.Fatal("thread still blocked after release")
		}
	}
	assert.Empty(t, c.Blocked())

	// Later blocks return immediately without reporting.
	c.Gate(4).Block(func() { reports.Add(1) })
	assert.Equal(t, int32(3), reports.Load())
	assert.ErrorIs(t, c.Gate(1).Schedule(func() func() { return nil }), ErrReleased)
}

func TestCoordinator_ResumeAll(t *testing.T) {
	c := NewCoordinator()
	var reports atomic.Int32
	d1 := park(t, c.Gate(1), &reports)
	d2 := park(t, c.Gate(2), &reports)

	c.ResumeAll()
	<-d1
	<-d2
	assert.False(t, c.Released())
}

func TestCoordinator_SendLockSerializes(t *testing.T) {
	c := NewCoordinator()
	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.WithSendLock(func() error {
				n := active.Add(1)
				if n > maxActive.Load() {
					maxActive.Store(n)
				}
				time.Sleep(time.Millisecond)
				active.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestCoordinator_Forget(t *testing.T) {
	c := NewCoordinator()
	g := c.Gate(7)
	assert.Same(t, g, c.Gate(7))
	c.Forget(7)
	assert.NotSame(t, g, c.Gate(7))
}
