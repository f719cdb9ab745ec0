package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"novaupdate/internal/domain"
	"novaupdate/internal/service/s3"
)

// Тестовые in-memory реализации хранилищ и объектного стора

type fakeVersionStore struct {
	mu       sync.Mutex
	versions map[uuid.UUID]*domain.Version
}

func newFakeVersionStore() *fakeVersionStore {
	return &fakeVersionStore{versions: make(map[uuid.UUID]*domain.Version)}
}

func (s *fakeVersionStore) Create(_ context.Context, version *domain.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.versions {
		if existing.VersionNumber == version.VersionNumber {
			return fmt.Errorf("%w: version %s already exists", domain.ErrConflict, version.VersionNumber)
		}
	}
	now := time.Now()
	version.CreatedAt = now
	version.UpdatedAt = now
	copied := *version
	s.versions[version.ID] = &copied
	return nil
}

func (s *fakeVersionStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.versions[id]
	if !ok {
		return nil, fmt.Errorf("%w: version %s", domain.ErrNotFound, id)
	}
	copied := *v
	return &copied, nil
}

func (s *fakeVersionStore) GetByNumber(_ context.Context, versionNumber string) (*domain.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.versions {
		if v.VersionNumber == versionNumber {
			copied := *v
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("%w: version %s", domain.ErrNotFound, versionNumber)
}

func (s *fakeVersionStore) List(_ context.Context, channel *domain.Channel, activeOnly bool) ([]domain.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Version
	for _, v := range s.versions {
		if channel != nil && v.Channel != *channel {
			continue
		}
		if activeOnly && !v.IsActive {
			continue
		}
		out = append(out, *v)
	}
	return out, nil
}

func (s *fakeVersionStore) Update(_ context.Context, version *domain.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.versions[version.ID]; !ok {
		return fmt.Errorf("%w: version %s", domain.ErrNotFound, version.ID)
	}
	version.UpdatedAt = time.Now()
	copied := *version
	s.versions[version.ID] = &copied
	return nil
}

func (s *fakeVersionStore) SetActive(_ context.Context, id uuid.UUID, active bool) (*domain.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.versions[id]
	if !ok {
		return nil, fmt.Errorf("%w: version %s", domain.ErrNotFound, id)
	}
	v.IsActive = active
	v.UpdatedAt = time.Now()
	copied := *v
	return &copied, nil
}

func (s *fakeVersionStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.versions[id]; !ok {
		return fmt.Errorf("%w: version %s", domain.ErrNotFound, id)
	}
	delete(s.versions, id)
	return nil
}

func (s *fakeVersionStore) add(v domain.Version) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	copied := v
	s.versions[v.ID] = &copied
	return v.ID
}

type fakeDeltaStore struct {
	mu      sync.Mutex
	nextID  int64
	deltas  []*domain.DifferentialUpdate
	creates int
}

func newFakeDeltaStore() *fakeDeltaStore {
	return &fakeDeltaStore{}
}

func (s *fakeDeltaStore) Create(_ context.Context, delta *domain.DifferentialUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	delta.ID = s.nextID
	delta.CreatedAt = time.Now()
	s.creates++
	copied := *delta
	s.deltas = append(s.deltas, &copied)
	return nil
}

func (s *fakeDeltaStore) GetByPair(_ context.Context, fromVersion, toVersion string) (*domain.DifferentialUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for i := len(s.deltas) - 1; i >= 0; i-- {
		d := s.deltas[i]
		if d.FromVersion == fromVersion && d.ToVersion == toVersion && d.ExpiresAt.After(now) {
			copied := *d
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("%w: delta %s -> %s", domain.ErrNotFound, fromVersion, toVersion)
}

func (s *fakeDeltaStore) DeleteExpired(_ context.Context, now time.Time) ([]domain.DifferentialUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []*domain.DifferentialUpdate
	var deleted []domain.DifferentialUpdate
	for _, d := range s.deltas {
		if !d.ExpiresAt.After(now) {
			deleted = append(deleted, *d)
		} else {
			kept = append(kept, d)
		}
	}
	s.deltas = kept
	return deleted, nil
}

func (s *fakeDeltaStore) createCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates
}

type fakeDownloadStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*domain.DownloadRecord
}

func newFakeDownloadStore() *fakeDownloadStore {
	return &fakeDownloadStore{records: make(map[uuid.UUID]*domain.DownloadRecord)}
}

func (s *fakeDownloadStore) Create(_ context.Context, record *domain.DownloadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record.StartedAt = time.Now()
	copied := *record
	s.records[record.ID] = &copied
	return nil
}

func (s *fakeDownloadStore) Finish(_ context.Context, id uuid.UUID, status string, bytesServed int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok || r.Status != domain.DownloadStarted {
		return fmt.Errorf("%w: download record %s is not in progress", domain.ErrNotFound, id)
	}
	now := time.Now()
	r.Status = status
	r.BytesServed = bytesServed
	r.FinishedAt = &now
	return nil
}

func (s *fakeDownloadStore) StatsForTarget(_ context.Context, targetRef string) (*domain.DownloadStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &domain.DownloadStats{TargetRef: targetRef}
	for _, r := range s.records {
		if r.TargetRef != targetRef {
			continue
		}
		stats.Total++
		switch r.Status {
		case domain.DownloadCompleted:
			stats.Completed++
		case domain.DownloadFailed:
			stats.Failed++
		case domain.DownloadAborted:
			stats.Aborted++
		case domain.DownloadStarted:
			stats.InProgress++
		}
	}
	return stats, nil
}

type fakeObject struct {
	io.ReadCloser
	length      int64
	contentType string
}

func (o *fakeObject) ContentLength() int64 { return o.length }
func (o *fakeObject) ContentType() string  { return o.contentType }

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	getErr  error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (s *fakeStorage) UploadBytes(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]byte, len(data))
	copy(copied, data)
	s.objects[key] = copied
	return nil
}

func (s *fakeStorage) GetObject(_ context.Context, key string) (s3.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.getErr != nil {
		return nil, s.getErr
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return &fakeObject{
		ReadCloser:  io.NopCloser(bytes.NewReader(data)),
		length:      int64(len(data)),
		contentType: "application/octet-stream",
	}, nil
}

func (s *fakeStorage) GetObjectRange(_ context.Context, key string, start, end int64) (s3.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.getErr != nil {
		return nil, s.getErr
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	if start < 0 || end >= int64(len(data)) || start > end {
		return nil, fmt.Errorf("invalid range [%d, %d] for object of %d bytes", start, end, len(data))
	}
	slice := data[start : end+1]
	return &fakeObject{
		ReadCloser:  io.NopCloser(bytes.NewReader(slice)),
		length:      int64(len(slice)),
		contentType: "application/octet-stream",
	}, nil
}

func (s *fakeStorage) DeleteObject(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, key)
	return nil
}

func (s *fakeStorage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.objects)
}

func (s *fakeStorage) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.objects[key]
	return ok
}
