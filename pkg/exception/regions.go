package exception

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRegionTimeout is returned when the controller does not answer a handler
// region request in time.
var ErrRegionTimeout = errors.New("handler region request timed out")

// Wildcard is the handler expression that catches everything.
const Wildcard = "*"

// Region is a span of lines guarded by exception handlers.
type Region struct {
	Start    int
	End      int
	Handlers []string
}

// Contains reports whether line falls inside the region.
func (r Region) Contains(line int) bool {
	return line >= r.Start && line <= r.End
}

// RegionCache stores handler regions per file. Missing files are requested
// from the controller once; concurrent fetches share the request.
type RegionCache struct {
	request func(file string) error
	timeout time.Duration

	mu      sync.Mutex
	regions map[string][]Region
	waiting map[string]chan struct{}
}

// NewRegionCache creates a cache that calls request to ask the controller for
// a file's regions and waits up to timeout for Put.
func NewRegionCache(request func(file string) error, timeout time.Duration) *RegionCache {
	return &RegionCache{
		request: request,
		timeout: timeout,
		regions: make(map[string][]Region),
		waiting: make(map[string]chan struct{}),
	}
}

// Get returns the cached regions for file.
func (c *RegionCache) Get(file string) ([]Region, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.regions[file]
	return r, ok
}

// Put stores the regions for file and wakes any fetch waiting on it.
func (c *RegionCache) Put(file string, regions []Region) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regions[file] = regions
	if ch, ok := c.waiting[file]; ok {
		close(ch)
		delete(c.waiting, file)
	}
}

// Fetch returns the regions for file, requesting them if needed.
func (c *RegionCache) Fetch(ctx context.Context, file string) ([]Region, error) {
	c.mu.Lock()
	if r, ok := c.regions[file]; ok {
		c.mu.Unlock()
		return r, nil
	}
	ch, inFlight := c.waiting[file]
	if !inFlight {
		ch = make(chan struct{})
		c.waiting[file] = ch
	}
	c.mu.Unlock()

	if !inFlight {
		if err := c.request(file); err != nil {
			c.forget(file, ch)
			return nil, err
		}
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-ch:
		r, _ := c.Get(file)
		return r, nil
	case <-timer.C:
		c.forget(file, ch)
		return nil, ErrRegionTimeout
	case <-ctx.Done():
		c.forget(file, ch)
		return nil, ctx.Err()
	}
}

func (c *RegionCache) forget(file string, ch chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.waiting[file] == ch {
		delete(c.waiting, file)
	}
}

// Clear drops every cached file.
func (c *RegionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regions = make(map[string][]Region)
}
