package testutil

import (
	"fmt"
	"sync"
	"time"
)

// StubClock is a manually driven clock for sidecar timestamps, remote
// modification times and sync run records. Safe for concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d, so that later writes look newer.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// NowMillis returns the current stub time in epoch milliseconds, the unit
// remote modification times are stored in.
func (c *StubClock) NowMillis() int64 {
	return c.Now().UnixMilli()
}

// StubIDGenerator hands out "<prefix>-1", "<prefix>-2", and so on. The
// prefix keeps generated IDs distinct from the fixed IDs tests seed.
type StubIDGenerator struct {
	prefix string

	mu   sync.Mutex
	next int
}

// NewStubIDGenerator creates a generator; an empty prefix means "id".
func NewStubIDGenerator(prefix string) *StubIDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &StubIDGenerator{prefix: prefix}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%s-%d", g.prefix, g.next)
}
