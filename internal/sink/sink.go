// Package sink delivers the rolling transcript window to the external
// translation sink.
//
// The sink contract is full-replace: every delivery carries the complete
// window and the consumer discards what it had. The sink is never asked to
// append, which eliminates drift between transcript and sink state.
package sink

import (
	"context"
	"sync"

	"caption-ingress-engine/internal/models"
)

// Sink receives full replacements of the transcript window.
type Sink interface {
	// Replace swaps the sink's entire buffer for blocks.
	Replace(ctx context.Context, sessionID string, blocks []models.CommittedBlock) error
	// Close releases transport resources.
	Close() error
}

// Memory is an in-process sink that records the last replacement. Used in
// tests and as a stand-in when no transport is configured.
type Memory struct {
	mu       sync.Mutex
	last     []models.CommittedBlock
	replaces int
}

// NewMemory returns an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

// Replace records blocks as the sink's current buffer.
func (m *Memory) Replace(_ context.Context, _ string, blocks []models.CommittedBlock) error {
	out := make([]models.CommittedBlock, len(blocks))
	copy(out, blocks)
	m.mu.Lock()
	m.last = out
	m.replaces++
	m.mu.Unlock()
	return nil
}

// Close implements Sink.
func (m *Memory) Close() error { return nil }

// Last returns the most recent replacement.
func (m *Memory) Last() []models.CommittedBlock {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Replaces returns how many replacements were delivered.
func (m *Memory) Replaces() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replaces
}
