package notification

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemoryStorage is an in-memory implementation of the Storage interface.
// Suitable for development and testing.
type MemoryStorage struct {
	records map[string]*Record
	mu      sync.RWMutex
}

// NewMemoryStorage creates a new in-memory record storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records: make(map[string]*Record),
	}
}

func (s *MemoryStorage) Create(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		return errors.New("record ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return errors.New("record already exists")
	}
	s.records[rec.ID] = copyRecord(rec)
	return nil
}

func (s *MemoryStorage) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[id]
	if !exists {
		return nil, ErrRecordNotFound
	}
	return copyRecord(rec), nil
}

func (s *MemoryStorage) Update(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; !exists {
		return ErrRecordNotFound
	}
	s.records[rec.ID] = copyRecord(rec)
	return nil
}

func (s *MemoryStorage) ClaimPending(ctx context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[id]
	if !exists {
		return false, ErrRecordNotFound
	}
	if rec.Status != StatusPending {
		return false, nil
	}
	rec.Status = StatusSent
	rec.DispatchedAt = &now
	rec.UpdatedAt = now
	return true, nil
}

func (s *MemoryStorage) UpdateTarget(ctx context.Context, id string, target TargetEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[id]
	if !exists {
		return ErrRecordNotFound
	}
	t := rec.Target(target.DeviceID)
	if t == nil {
		return ErrTargetNotFound
	}
	*t = target
	rec.UpdatedAt = target.UpdatedAt
	return nil
}

func (s *MemoryStorage) ListDue(ctx context.Context, now time.Time, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []Record
	for _, rec := range s.records {
		if rec.Due(now) {
			due = append(due, *copyRecord(rec))
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *MemoryStorage) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, rec := range s.records {
		if rec.OwnerID == ownerID {
			out = append(out, *copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if offset > len(out) {
		return []Record{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyRecord(rec *Record) *Record {
	out := *rec
	if rec.Targets != nil {
		out.Targets = make([]TargetEntry, len(rec.Targets))
		copy(out.Targets, rec.Targets)
	}
	if rec.Errors != nil {
		out.Errors = make([]DeliveryError, len(rec.Errors))
		copy(out.Errors, rec.Errors)
	}
	if rec.Content.Data != nil {
		out.Content.Data = make(map[string]string, len(rec.Content.Data))
		for k, v := range rec.Content.Data {
			out.Content.Data[k] = v
		}
	}
	if rec.Content.Actions != nil {
		out.Content.Actions = make([]Action, len(rec.Content.Actions))
		copy(out.Content.Actions, rec.Content.Actions)
	}
	return &out
}
