package replay

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

const (
	// DefaultCheckpointInterval is how many steps separate two checkpoints
	DefaultCheckpointInterval = 64
	// DefaultCheckpointCacheSize bounds how many checkpoints are retained
	DefaultCheckpointCacheSize = 32
)

// Checkpoint is a deep copy of the replay state after applying the entry at
// StepIdx. Restoring from it and replaying forward yields the same state as
// replaying from before-start.
type Checkpoint struct {
	StepIdx int
	State   *State
}

// String returns a human-readable representation of the checkpoint
func (c *Checkpoint) String() string {
	return fmt.Sprintf("Checkpoint{Step: %d, Frames: %d, Objects: %d}",
		c.StepIdx, c.State.Stack.Depth(), c.State.Heap.Len())
}

// checkpointCache keeps the most recently used checkpoints keyed by step.
type checkpointCache struct {
	interval int
	cache    *lru.Cache
}

func newCheckpointCache(interval, size int) (*checkpointCache, error) {
	if interval <= 0 || size <= 0 {
		return &checkpointCache{}, nil
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("checkpoint cache: %w", err)
	}
	return &checkpointCache{interval: interval, cache: cache}, nil
}

func (c *checkpointCache) enabled() bool {
	return c.cache != nil
}

// due reports whether step should be captured
func (c *checkpointCache) due(step int) bool {
	if !c.enabled() || step < 0 || (step+1)%c.interval != 0 {
		return false
	}
	return !c.cache.Contains(step)
}

func (c *checkpointCache) add(step int, s *State) {
	c.cache.Add(step, &Checkpoint{StepIdx: step, State: s.Clone()})
}

// nearest returns the latest checkpoint at or before target
func (c *checkpointCache) nearest(target int) (*Checkpoint, bool) {
	if !c.enabled() {
		return nil, false
	}
	best := -1
	for _, k := range c.cache.Keys() {
		step := k.(int)
		if step <= target && step > best {
			best = step
		}
	}
	if best < 0 {
		return nil, false
	}
	v, ok := c.cache.Get(best)
	if !ok {
		return nil, false
	}
	return v.(*Checkpoint), true
}

func (c *checkpointCache) len() int {
	if !c.enabled() {
		return 0
	}
	return c.cache.Len()
}
