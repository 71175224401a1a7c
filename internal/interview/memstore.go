package interview

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStatusStore is the in-process StatusStore used by tests and the
// memory:// backend. It mirrors the durable stores' conditional-create
// semantics exactly.
type MemoryStatusStore struct {
	mu      sync.Mutex
	records map[string]FileRecord
}

func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{records: map[string]FileRecord{}}
}

func (s *MemoryStatusStore) Create(ctx context.Context, rec FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.Key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, rec.Key)
	}
	s.records[rec.Key] = rec
	return nil
}

func (s *MemoryStatusStore) Get(ctx context.Context, key string) (FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return FileRecord{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return rec, nil
}

func (s *MemoryStatusStore) Update(ctx context.Context, key string, update RecordUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if update.Status != "" {
		rec.ProcessingStatus = update.Status
	}
	if update.AudioExtractionAttempts != nil {
		rec.AudioExtractionAttempts = *update.AudioExtractionAttempts
	}
	if update.SDHSTransferAttempts != nil {
		rec.SDHSTransferAttempts = *update.SDHSTransferAttempts
	}
	s.records[key] = rec
	return nil
}

func (s *MemoryStatusStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	delete(s.records, key)
	return nil
}

func (s *MemoryStatusStore) Scan(ctx context.Context, statuses ...ProcessingStatus) ([]FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[ProcessingStatus]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}
	out := make([]FileRecord, 0, len(s.records))
	for _, rec := range s.records {
		if len(wanted) > 0 && !wanted[rec.ProcessingStatus] {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// MemoryAuditStore is the in-process AuditStore counterpart.
type MemoryAuditStore struct {
	mu      sync.Mutex
	records map[string]FileRecord
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{records: map[string]FileRecord{}}
}

func (s *MemoryAuditStore) Archive(ctx context.Context, rec FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.Key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateArchive, rec.Key)
	}
	s.records[rec.Key] = rec
	return nil
}

// Archived returns the archived record, for tests and admin inspection.
func (s *MemoryAuditStore) Archived(key string) (FileRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	return rec, ok
}

// StaticProjectStore serves a fixed project list; the memory:// projects
// backend and tests use it.
type StaticProjectStore struct {
	Projects []Project
}

func (s *StaticProjectStore) ActiveProjects(ctx context.Context) ([]Project, error) {
	out := make([]Project, 0, len(s.Projects))
	for _, p := range s.Projects {
		if p.Active() {
			out = append(out, p)
		}
	}
	return out, nil
}
