// Package blocking parks traced threads while the controller inspects them.
//
// A blocked thread waits on its Gate. The controller can resume it, or hand it
// one unit of work to run on its own stack, after which it parks again.
package blocking

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
)

var (
	// ErrBusy is returned when a thread still has scheduled work outstanding.
	ErrBusy = errors.New("thread is already running scheduled work")

	// ErrNotBlocked is returned when work is scheduled on a running thread.
	ErrNotBlocked = errors.New("thread is not blocked")

	// ErrReleased is returned once the coordinator has been released.
	ErrReleased = errors.New("coordinator released")
)

// Coordinator owns the gates of every traced thread and the transport send
// lock.
type Coordinator struct {
	released atomic.Bool

	mu    sync.Mutex
	gates map[int64]*Gate

	sendMu sync.Mutex
}

// NewCoordinator creates a coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{gates: make(map[int64]*Gate)}
}

// Gate returns the gate for thread id, creating it on first use.
func (c *Coordinator) Gate(id int64) *Gate {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.gates[id]
	if !ok {
		g = &Gate{c: c, id: id, wake: make(chan struct{}, 1)}
		c.gates[id] = g
	}
	return g
}

// Forget drops the gate of an exited thread.
func (c *Coordinator) Forget(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.gates, id)
}

func (c *Coordinator) snapshot() []*Gate {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Gate, 0, len(c.gates))
	for _, g := range c.gates {
		out = append(out, g)
	}
	return out
}

// Blocked returns the IDs of parked threads in ascending order.
func (c *Coordinator) Blocked() []int64 {
	var ids []int64
	for _, g := range c.snapshot() {
		if g.Blocked() {
			ids = append(ids, g.id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ResumeAll wakes every parked thread. Release order is unspecified.
func (c *Coordinator) ResumeAll() {
	for _, g := range c.snapshot() {
		g.Resume()
	}
}

// Release resumes every thread and makes later Block calls return at once.
// It is safe to call more than once.
func (c *Coordinator) Release() {
	c.released.Store(true)
	c.ResumeAll()
}

// Released reports whether Release was called.
func (c *Coordinator) Released() bool {
	return c.released.Load()
}

// WithSendLock runs fn while holding the transport send lock.
func (c *Coordinator) WithSendLock(fn func() error) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return fn()
}

// Gate is the wait primitive of one thread.
type Gate struct {
	c    *Coordinator
	id   int64
	wake chan struct{}

	mu      sync.Mutex
	blocked bool
	resume  bool
	work    func() func()
}

// ID returns the thread id.
func (g *Gate) ID() int64 {
	return g.id
}

// Blocked reports whether the thread is parked.
func (g *Gate) Blocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.blocked
}

func (g *Gate) signal() {
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

// Block parks the calling goroutine until it is resumed. report runs once
// after the thread is marked blocked, so a controller reacting to it can
// already schedule work. Scheduled work runs on the calling goroutine and the
// thread parks again afterwards without calling report. The reply returned by
// the work runs after the work is cleared, so the controller may schedule
// again as soon as it sees the reply.
func (g *Gate) Block(report func()) {
	if g.c.Released() {
		return
	}

	g.mu.Lock()
	select {
	case <-g.wake:
	default:
	}
	g.blocked = true
	g.resume = false
	g.mu.Unlock()

	if report != nil {
		report()
	}

	for {
		g.mu.Lock()
		if w := g.work; w != nil {
			g.mu.Unlock()
			reply := w()
			g.mu.Lock()
			g.work = nil
			g.mu.Unlock()
			if reply != nil {
				reply()
			}
			continue
		}
		if g.resume || g.c.Released() {
			g.blocked = false
			g.resume = false
			g.mu.Unlock()
			return
		}
		g.mu.Unlock()
		<-g.wake
	}
}

// Resume wakes the thread. It reports false when the thread is not parked.
func (g *Gate) Resume() bool {
	g.mu.Lock()
	if !g.blocked {
		g.mu.Unlock()
		return false
	}
	g.resume = true
	g.mu.Unlock()
	g.signal()
	return true
}

// Schedule hands fn to the parked thread. At most one unit of work may be
// outstanding; fn's reply, if any, no longer counts as outstanding.
func (g *Gate) Schedule(fn func() (reply func())) error {
	if g.c.Released() {
		return ErrReleased
	}
	g.mu.Lock()
	if !g.blocked {
		g.mu.Unlock()
		return ErrNotBlocked
	}
	if g.work != nil {
		g.mu.Unlock()
		return ErrBusy
	}
	g.work = fn
	g.mu.Unlock()
	g.signal()
	return nil
}
