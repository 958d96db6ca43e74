package chain

import (
	"context"
	"fmt"
	"sync"
)

// BlockCounter is the subset of Client used by HeightClock.
type BlockCounter interface {
	GetBlockCount(ctx context.Context) (uint64, error)
}

// HeightClock reports the current block height as the registry's logical
// time. Heights never go backwards: a node that lags behind a previously
// observed height yields the last observed value.
type HeightClock struct {
	counter BlockCounter

	mu   sync.Mutex
	last uint64
}

// NewHeightClock wraps a block counter.
func NewHeightClock(counter BlockCounter) *HeightClock {
	return &HeightClock{counter: counter}
}

// Now returns the current block height.
func (c *HeightClock) Now(ctx context.Context) (uint64, error) {
	count, err := c.counter.GetBlockCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("get block count: %w", err)
	}
	height := uint64(0)
	if count > 0 {
		height = count - 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if height < c.last {
		return c.last, nil
	}
	c.last = height
	return height, nil
}
