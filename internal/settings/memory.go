package settings

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is the in-memory settings store for tests
type MemoryStore struct {
	mu  sync.Mutex
	row *ScheduleSettings
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns a copy of the row, or nil when nothing was saved
func (m *MemoryStore) Get(_ context.Context) (*ScheduleSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.row == nil {
		return nil, nil
	}
	copied := *m.row
	copied.Universe = append([]string(nil), m.row.Universe...)
	return &copied, nil
}

// Save validates and stores the user-editable fields, preserving the
// last-run marker like the persisted store does
func (m *MemoryStore) Save(_ context.Context, s *ScheduleSettings) error {
	s.normalize()
	if err := s.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *s
	copied.Universe = append([]string(nil), s.Universe...)
	copied.UpdatedAt = time.Now()
	if m.row != nil {
		copied.LastRunDate = m.row.LastRunDate
	}
	m.row = &copied
	return nil
}

// MarkRan records the last-run marker
func (m *MemoryStore) MarkRan(_ context.Context, date string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.row == nil {
		return fmt.Errorf("no schedule settings row to mark")
	}
	m.row.LastRunDate = date
	m.row.UpdatedAt = time.Now()
	return nil
}
