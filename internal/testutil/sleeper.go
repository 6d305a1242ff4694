package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/vk/pipegrid/internal/registry"
)

// MockSleeperModule is a shared, self-contained module for concurrency
// tests. Its "sleep" function takes a text input "id", sleeps, records when
// it ran and returns the id.
type MockSleeperModule struct {
	mu             sync.Mutex
	executionTimes map[string]*ExecutionRecord
	sleepDuration  time.Duration
}

// NewMockSleeperModule creates a new sleeper module for testing.
func NewMockSleeperModule(sleep time.Duration) *MockSleeperModule {
	return &MockSleeperModule{
		executionTimes: make(map[string]*ExecutionRecord),
		sleepDuration:  sleep,
	}
}

// Register registers the "sleep" function.
func (m *MockSleeperModule) Register(r *registry.Registry) {
	r.RegisterFunc("sleep", "Sleeps, then returns the 'id' input.", func(ctx context.Context, in registry.Inputs) (any, error) {
		id, err := in.Text("id")
		if err != nil {
			return nil, err
		}

		start := time.Now()
		select {
		case <-time.After(m.sleepDuration):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		end := time.Now()

		m.mu.Lock()
		m.executionTimes[id] = &ExecutionRecord{Start: start, End: end}
		m.mu.Unlock()
		return id, nil
	})
}

// Record returns the execution record of id, or nil when it never finished.
func (m *MockSleeperModule) Record(id string) *ExecutionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.executionTimes[id]
}

// Len returns how many calls finished.
func (m *MockSleeperModule) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.executionTimes)
}
