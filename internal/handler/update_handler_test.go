package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novaupdate/internal/config"
	"novaupdate/internal/domain"
	"novaupdate/internal/service"
	"novaupdate/internal/service/s3"
)

// Тестовые реализации хранилищ для поднятия хендлеров без базы и S3

type stubVersionStore struct {
	mu       sync.Mutex
	versions map[uuid.UUID]*domain.Version
}

func newStubVersionStore() *stubVersionStore {
	return &stubVersionStore{versions: make(map[uuid.UUID]*domain.Version)}
}

func (s *stubVersionStore) add(v domain.Version) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	copied := v
	s.versions[v.ID] = &copied
	return v.ID
}

func (s *stubVersionStore) Create(_ context.Context, v *domain.Version) error {
	s.add(*v)
	return nil
}

func (s *stubVersionStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[id]
	if !ok {
		return nil, fmt.Errorf("%w: version %s", domain.ErrNotFound, id)
	}
	copied := *v
	return &copied, nil
}

func (s *stubVersionStore) GetByNumber(_ context.Context, number string) (*domain.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.versions {
		if v.VersionNumber == number {
			copied := *v
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("%w: version %s", domain.ErrNotFound, number)
}

func (s *stubVersionStore) List(_ context.Context, channel *domain.Channel, activeOnly bool) ([]domain.Version, error) {
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

func (s *stubVersionStore) Update(_ context.Context, v *domain.Version) error {
	s.add(*v)
	return nil
}

func (s *stubVersionStore) SetActive(_ context.Context, id uuid.UUID, active bool) (*domain.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[id]
	if !ok {
		return nil, fmt.Errorf("%w: version %s", domain.ErrNotFound, id)
	}
	v.IsActive = active
	copied := *v
	return &copied, nil
}

func (s *stubVersionStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.versions, id)
	return nil
}

type stubDeltaStore struct {
	mu     sync.Mutex
	deltas []domain.DifferentialUpdate
}

func (s *stubDeltaStore) Create(_ context.Context, d *domain.DifferentialUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ID = int64(len(s.deltas) + 1)
	d.CreatedAt = time.Now()
	s.deltas = append(s.deltas, *d)
	return nil
}

func (s *stubDeltaStore) GetByPair(_ context.Context, from, to string) (*domain.DifferentialUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.deltas) - 1; i >= 0; i-- {
		d := s.deltas[i]
		if d.FromVersion == from && d.ToVersion == to && d.ExpiresAt.After(time.Now()) {
			return &d, nil
		}
	}
	return nil, fmt.Errorf("%w: delta %s -> %s", domain.ErrNotFound, from, to)
}

func (s *stubDeltaStore) DeleteExpired(_ context.Context, _ time.Time) ([]domain.DifferentialUpdate, error) {
	return nil, nil
}

type stubDownloadStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*domain.DownloadRecord
}

func newStubDownloadStore() *stubDownloadStore {
	return &stubDownloadStore{records: make(map[uuid.UUID]*domain.DownloadRecord)}
}

func (s *stubDownloadStore) Create(_ context.Context, r *domain.DownloadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.StartedAt = time.Now()
	copied := *r
	s.records[r.ID] = &copied
	return nil
}

func (s *stubDownloadStore) Finish(_ context.Context, id uuid.UUID, status string, bytesServed int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok || r.Status != domain.DownloadStarted {
		return fmt.Errorf("%w: download record %s is not in progress", domain.ErrNotFound, id)
	}
	r.Status = status
	r.BytesServed = bytesServed
	return nil
}

func (s *stubDownloadStore) StatsForTarget(_ context.Context, targetRef string) (*domain.DownloadStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &domain.DownloadStats{TargetRef: targetRef}
	for _, r := range s.records {
		if r.TargetRef != targetRef {
			continue
		}
		stats.Total++
		if r.Status == domain.DownloadCompleted {
			stats.Completed++
		}
	}
	return stats, nil
}

func (s *stubDownloadStore) single() *domain.DownloadRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		copied := *r
		return &copied
	}
	return nil
}

type stubObject struct {
	io.ReadCloser
	length int64
}

func (o *stubObject) ContentLength() int64 { return o.length }
func (o *stubObject) ContentType() string  { return "application/octet-stream" }

type stubStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newStubStorage() *stubStorage {
	return &stubStorage{objects: make(map[string][]byte)}
}

func (s *stubStorage) UploadBytes(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
	return nil
}

func (s *stubStorage) GetObject(_ context.Context, key string) (s3.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return &stubObject{ReadCloser: io.NopCloser(bytes.NewReader(data)), length: int64(len(data))}, nil
}

func (s *stubStorage) GetObjectRange(_ context.Context, key string, start, end int64) (s3.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	if start < 0 || end >= int64(len(data)) || start > end {
		return nil, fmt.Errorf("invalid range")
	}
	slice := data[start : end+1]
	return &stubObject{ReadCloser: io.NopCloser(bytes.NewReader(slice)), length: int64(len(slice))}, nil
}

func (s *stubStorage) DeleteObject(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

type updateFixture struct {
	router    *chi.Mux
	versions  *stubVersionStore
	deltas    *stubDeltaStore
	downloads *stubDownloadStore
	storage   *stubStorage
}

func newUpdateFixture(t *testing.T) *updateFixture {
	t.Helper()

	versions := newStubVersionStore()
	deltas := &stubDeltaStore{}
	downloads := newStubDownloadStore()
	storage := newStubStorage()

	catalogService := service.NewCatalogService(versions, storage, "https://updates.example.com")
	compatibilityService := service.NewCompatibilityService(versions)
	deltaService := service.NewDeltaService(deltas, versions, storage, config.DeltaConfig{
		MaxRatio:               0.5,
		GenerateTimeoutSeconds: 30,
		ExpiryHours:            24,
		BlockSize:              64,
	})
	downloadService := service.NewDownloadService(downloads, storage)

	h := NewUpdateHandler(catalogService, compatibilityService, deltaService, downloadService)

	r := chi.NewRouter()
	r.Route("/v1/updates", func(r chi.Router) {
		r.Get("/latest", h.GetLatest)
		r.Get("/check", h.CheckForUpdate)
		r.Get("/metadata/{version}", h.GetMetadata)
		r.Get("/compatibility/{version}", h.CheckCompatibility)
		r.Get("/delta/{from}/{to}", h.GetDelta)
		r.Get("/delta/{from}/{to}/download", h.DownloadDelta)
		r.Get("/download/{version}", h.DownloadVersion)
	})

	return &updateFixture{
		router:    r,
		versions:  versions,
		deltas:    deltas,
		downloads: downloads,
		storage:   storage,
	}
}

func (f *updateFixture) addVersion(t *testing.T, number string, active bool, artifact []byte) domain.Version {
	t.Helper()

	v := domain.Version{
		VersionNumber: number,
		Channel:       domain.ChannelStable,
		IsActive:      active,
		FileKey:       "update_artifacts/" + number + "/pkg.zip",
		FileName:      "pkg.zip",
		SizeBytes:     int64(len(artifact)),
		Checksum:      s3.Checksum(artifact),
		ReleasedAt:    time.Now(),
	}
	v.ID = f.versions.add(v)
	require.NoError(t, f.storage.UploadBytes(v.FileKey, artifact))
	return v
}

func (f *updateFixture) get(path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestGetLatestEndpoint(t *testing.T) {
	f := newUpdateFixture(t)
	f.addVersion(t, "1.0.0", true, []byte("old"))
	f.addVersion(t, "1.2.0", true, []byte("new"))
	f.addVersion(t, "2.0.0", false, []byte("draft"))

	rec := f.get("/v1/updates/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.Version
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "1.2.0", got.VersionNumber)
}

func TestCheckEndpoint(t *testing.T) {
	f := newUpdateFixture(t)
	f.addVersion(t, "1.2.0", true, []byte("new"))

	rec := f.get("/v1/updates/check?currentVersion=1.0.0", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result domain.UpdateCheckResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.UpdateAvailable)
	assert.Equal(t, "1.2.0", result.LatestVersion)

	rec = f.get("/v1/updates/check", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.get("/v1/updates/check?currentVersion=junk", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetadataEndpoint(t *testing.T) {
	f := newUpdateFixture(t)
	f.addVersion(t, "1.2.0", true, []byte("new"))
	f.addVersion(t, "2.0.0", false, []byte("draft"))

	rec := f.get("/v1/updates/metadata/1.2.0", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Деактивированная версия для клиентов не существует
	rec = f.get("/v1/updates/metadata/2.0.0", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.get("/v1/updates/metadata/9.9.9", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.get("/v1/updates/metadata/garbage", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompatibilityEndpoint(t *testing.T) {
	f := newUpdateFixture(t)
	v := domain.Version{
		VersionNumber: "2.0.0",
		Channel:       domain.ChannelStable,
		IsActive:      true,
		SupportedOS:   []string{"linux"},
	}
	f.versions.add(v)

	rec := f.get("/v1/updates/compatibility/2.0.0?clientVersion=1.0.0&osName=linux", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result domain.CompatibilityResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.CanProceed)

	rec = f.get("/v1/updates/compatibility/2.0.0?clientVersion=1.0.0&osName=windows", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.CanProceed)

	rec = f.get("/v1/updates/compatibility/2.0.0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadVersionFull(t *testing.T) {
	f := newUpdateFixture(t)
	artifact := []byte("0123456789abcdef")
	v := f.addVersion(t, "1.2.0", true, artifact)

	rec := f.get("/v1/updates/download/1.2.0", map[string]string{"X-Client-ID": "client-a"})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, artifact, rec.Body.Bytes())
	assert.Equal(t, v.Checksum, rec.Header().Get("X-Checksum"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "pkg.zip")

	// Передача зафиксирована в журнале как завершенная
	record := f.downloads.single()
	require.NotNil(t, record)
	assert.Equal(t, domain.DownloadCompleted, record.Status)
	assert.Equal(t, int64(len(artifact)), record.BytesServed)
	assert.Equal(t, "client-a", record.ClientID)
}

func TestDownloadVersionRange(t *testing.T) {
	f := newUpdateFixture(t)
	artifact := []byte("0123456789abcdef")
	v := f.addVersion(t, "1.2.0", true, artifact)

	rec := f.get("/v1/updates/download/1.2.0", map[string]string{"Range": "bytes=4-7"})
	require.Equal(t, http.StatusPartialContent, rec.Code)

	assert.Equal(t, "4567", rec.Body.String())
	assert.Equal(t, "bytes 4-7/16", rec.Header().Get("Content-Range"))
	assert.Equal(t, "4", rec.Header().Get("Content-Length"))
	// Контрольная сумма всегда относится к целому артефакту
	assert.Equal(t, v.Checksum, rec.Header().Get("X-Checksum"))

	record := f.downloads.single()
	require.NotNil(t, record)
	require.NotNil(t, record.RangeStart)
	assert.Equal(t, int64(4), *record.RangeStart)
	assert.Equal(t, int64(4), record.BytesServed)
}

func TestDownloadVersionMalformedRangeServesFull(t *testing.T) {
	f := newUpdateFixture(t)
	artifact := []byte("0123456789abcdef")
	f.addVersion(t, "1.2.0", true, artifact)

	// Некорректный Range не ошибка: уходит полный артефакт
	rec := f.get("/v1/updates/download/1.2.0", map[string]string{"Range": "bytes=oops"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, artifact, rec.Body.Bytes())

	// Диапазон за пределами артефакта тоже приводит к полной отдаче
	rec = f.get("/v1/updates/download/1.2.0", map[string]string{"Range": "bytes=0-99999"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, artifact, rec.Body.Bytes())
}

func TestDownloadVersionInactive(t *testing.T) {
	f := newUpdateFixture(t)
	f.addVersion(t, "2.0.0", false, []byte("draft"))

	rec := f.get("/v1/updates/download/2.0.0", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeltaEndpoints(t *testing.T) {
	f := newUpdateFixture(t)
	oldData := bytes.Repeat([]byte("abcdefgh"), 512)
	newData := append(append([]byte{}, oldData...), []byte("tail")...)
	f.addVersion(t, "1.0.0", true, oldData)
	f.addVersion(t, "1.1.0", true, newData)

	rec := f.get("/v1/updates/delta/1.0.0/1.1.0", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var delta domain.DifferentialUpdate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &delta))
	assert.False(t, delta.FallbackToFull)
	assert.NotEmpty(t, delta.Checksum)

	rec = f.get("/v1/updates/delta/1.0.0/1.1.0/download", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, delta.Checksum, rec.Header().Get("X-Checksum"))
	assert.Equal(t, int(delta.DeltaSizeBytes), rec.Body.Len())

	// Дельта несуществующей пары не генерируется на пути скачивания
	rec = f.get("/v1/updates/delta/1.1.0/1.0.0/download", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
