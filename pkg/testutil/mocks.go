// Package testutil provides common testing utilities and mock implementations.
package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/R3E-Network/sustainability_layer/internal/app/domain/certificate"
)

// ManualClock is a block-height clock controlled by the test.
type ManualClock struct {
	mu     sync.Mutex
	height uint64
	err    error
}

// NewManualClock starts the clock at height.
func NewManualClock(height uint64) *ManualClock {
	return &ManualClock{height: height}
}

// Now returns the current height, or the configured failure.
func (c *ManualClock) Now(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	return c.height, nil
}

// Set moves the clock to height.
func (c *ManualClock) Set(height uint64) {
	c.mu.Lock()
	c.height = height
	c.mu.Unlock()
}

// Advance moves the clock forward by delta and returns the new height.
func (c *ManualClock) Advance(delta uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height += delta
	return c.height
}

// Fail makes subsequent Now calls return err. A nil err clears the failure.
func (c *ManualClock) Fail(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

// ErrMockFailure is returned by mocks configured to fail.
var ErrMockFailure = errors.New("mock failure")

// MockStatsSource returns fixed certificate stats and records the heights it
// was queried at.
type MockStatsSource struct {
	mu      sync.Mutex
	stats   certificate.Stats
	err     error
	queries []uint64
}

// NewMockStatsSource returns a source reporting stats.
func NewMockStatsSource(stats certificate.Stats) *MockStatsSource {
	return &MockStatsSource{stats: stats}
}

// Stats implements the sweeper's stats source.
func (m *MockStatsSource) Stats(_ context.Context, now uint64) (certificate.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, now)
	if m.err != nil {
		return certificate.Stats{}, m.err
	}
	return m.stats, nil
}

// Fail makes subsequent Stats calls return err.
func (m *MockStatsSource) Fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Queries returns the heights Stats was called with.
func (m *MockStatsSource) Queries() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint64(nil), m.queries...)
}
