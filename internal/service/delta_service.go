package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"novaupdate/internal/config"
	"novaupdate/internal/diff"
	"novaupdate/internal/domain"
	"novaupdate/internal/service/s3"
)

// DeltaStore — хранилище записей о дифференциальных обновлениях
type DeltaStore interface {
	Create(ctx context.Context, delta *domain.DifferentialUpdate) error
	GetByPair(ctx context.Context, fromVersion, toVersion string) (*domain.DifferentialUpdate, error)
	DeleteExpired(ctx context.Context, now time.Time) ([]domain.DifferentialUpdate, error)
}

// DeltaService генерирует и отдает дифференциальные патчи между версиями
type DeltaService struct {
	deltas   DeltaStore
	versions VersionStore
	s3Client s3.Storage
	cfg      config.DeltaConfig

	// Генерация для одной пары (from, to) выполняется не более одного раза
	// одновременно: параллельные вызовы разделяют общее вычисление
	group singleflight.Group
}

func NewDeltaService(deltas DeltaStore, versions VersionStore, s3Client s3.Storage, cfg config.DeltaConfig) *DeltaService {
	return &DeltaService{
		deltas:   deltas,
		versions: versions,
		s3Client: s3Client,
		cfg:      cfg,
	}
}

// Generate возвращает дельту для пары версий, при необходимости вычисляя ее.
// Идемпотентна: существующая неистекшая дельта возвращается как есть.
func (s *DeltaService) Generate(ctx context.Context, fromVersion, toVersion string) (*domain.DifferentialUpdate, error) {
	if _, err := parseVersion(fromVersion); err != nil {
		return nil, err
	}
	if _, err := parseVersion(toVersion); err != nil {
		return nil, err
	}
	if fromVersion == toVersion {
		return nil, fmt.Errorf("%w: delta endpoints must differ", domain.ErrBadInput)
	}

	key := fromVersion + "->" + toVersion
	result, err, shared := s.group.Do(key, func() (interface{}, error) {
		return s.generateOnce(fromVersion, toVersion)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Printf("[Delta] Shared in-flight computation for %s", key)
	}

	return result.(*domain.DifferentialUpdate), nil
}

// generateOnce выполняет собственно генерацию. Работает на собственном
// контексте с таймаутом: вычисление разделяется между вызывающими через
// singleflight, и отмена первого запроса не должна обрывать остальных.
func (s *DeltaService) generateOnce(fromVersion, toVersion string) (*domain.DifferentialUpdate, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GenerateTimeout())
	defer cancel()

	// Повторная проверка кеша уже внутри singleflight
	if delta, err := s.deltas.GetByPair(ctx, fromVersion, toVersion); err == nil {
		log.Printf("[Delta] Returning cached delta %s -> %s", fromVersion, toVersion)
		return delta, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	from, err := s.versions.GetByNumber(ctx, fromVersion)
	if err != nil {
		return nil, err
	}
	to, err := s.versions.GetByNumber(ctx, toVersion)
	if err != nil {
		return nil, err
	}
	// Целевая версия должна быть доступна клиентам; исходная может быть
	// уже деактивирована — у клиента она всё равно установлена
	if !to.IsActive {
		return nil, fmt.Errorf("%w: version %s is not active", domain.ErrNotFound, toVersion)
	}

	started := time.Now()
	log.Printf("[Delta] Generating delta %s -> %s", fromVersion, toVersion)

	delta, genErr := s.computeDelta(ctx, from, to)
	if genErr != nil {
		// Любой сбой вычисления, включая таймаут, превращается в запись
		// fallback-to-full: клиент уходит на полное скачивание, частичных
		// артефактов не остается
		log.Printf("[Delta] Generation failed for %s -> %s, falling back to full download: %v",
			fromVersion, toVersion, genErr)
		delta = s.fallbackDelta(from, to)
	}

	if err := s.deltas.Create(ctx, delta); err != nil {
		// Запись не сохранилась — не оставляем осиротевший артефакт
		if delta.FileKey != "" {
			if delErr := s.s3Client.DeleteObject(delta.FileKey); delErr != nil {
				log.Printf("[Delta] Warning: failed to delete orphaned delta artifact %s: %v", delta.FileKey, delErr)
			}
		}
		return nil, err
	}

	log.Printf("[Delta] Finished %s -> %s in %v (fallback=%v, %d/%d bytes)",
		fromVersion, toVersion, time.Since(started), delta.FallbackToFull,
		delta.DeltaSizeBytes, delta.FullSizeBytes)

	return delta, nil
}

// computeDelta загружает оба артефакта, строит патч-документ и выгружает его
func (s *DeltaService) computeDelta(ctx context.Context, from, to *domain.Version) (*domain.DifferentialUpdate, error) {
	oldData, err := s.loadArtifact(ctx, from.FileKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact of %s: %w", from.VersionNumber, err)
	}
	newData, err := s.loadArtifact(ctx, to.FileKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact of %s: %w", to.VersionNumber, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	oldManifest, err := diff.ExtractManifest(oldData, from.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract manifest of %s: %w", from.VersionNumber, err)
	}
	newManifest, err := diff.ExtractManifest(newData, to.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to extract manifest of %s: %w", to.VersionNumber, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := diff.BuildPatchDocument(from.VersionNumber, to.VersionNumber, oldManifest, newManifest, s.cfg.BlockSize)
	if err != nil {
		return nil, err
	}

	encoded, err := doc.Encode()
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullSize := to.SizeBytes
	deltaSize := int64(len(encoded))

	// Дельта размером с пакет не экономит трафик — помечаем fallback
	// и не сохраняем артефакт
	if fullSize > 0 && float64(deltaSize) >= s.cfg.MaxRatio*float64(fullSize) {
		log.Printf("[Delta] Delta %s -> %s of %d bytes exceeds %.0f%% of full package %d bytes",
			from.VersionNumber, to.VersionNumber, deltaSize, s.cfg.MaxRatio*100, fullSize)
		return s.fallbackDelta(from, to), nil
	}

	checksum := s3.Checksum(encoded)
	fileKey := fmt.Sprintf("update_deltas/%s_%s/%s.patch", from.VersionNumber, to.VersionNumber, checksum)

	if err := s.s3Client.UploadBytes(fileKey, encoded); err != nil {
		return nil, fmt.Errorf("%w: failed to upload delta artifact: %v", domain.ErrStorage, err)
	}

	return &domain.DifferentialUpdate{
		FromVersionID:    from.ID,
		ToVersionID:      to.ID,
		FromVersion:      from.VersionNumber,
		ToVersion:        to.VersionNumber,
		DeltaSizeBytes:   deltaSize,
		FullSizeBytes:    fullSize,
		CompressionRatio: float64(deltaSize) / float64(fullSize),
		Checksum:         checksum,
		FileKey:          fileKey,
		ChangedFiles:     doc.Changes,
		FallbackToFull:   false,
		ExpiresAt:        time.Now().UTC().Add(s.cfg.Expiry()),
	}, nil
}

// fallbackDelta строит запись "дельта нецелесообразна" без артефакта
func (s *DeltaService) fallbackDelta(from, to *domain.Version) *domain.DifferentialUpdate {
	return &domain.DifferentialUpdate{
		FromVersionID:  from.ID,
		ToVersionID:    to.ID,
		FromVersion:    from.VersionNumber,
		ToVersion:      to.VersionNumber,
		FullSizeBytes:  to.SizeBytes,
		FallbackToFull: true,
		ExpiresAt:      time.Now().UTC().Add(s.cfg.Expiry()),
	}
}

// GetDeliverable возвращает дельту, пригодную к отдаче клиенту.
// Генерация и доставка разделены: этот путь никогда не вычисляет дельту.
// Для fallback-записей артефакта нет — клиент обязан скачать полный пакет.
func (s *DeltaService) GetDeliverable(ctx context.Context, fromVersion, toVersion string) (*domain.DifferentialUpdate, error) {
	delta, err := s.deltas.GetByPair(ctx, fromVersion, toVersion)
	if err != nil {
		return nil, err
	}
	if !delta.Deliverable(time.Now()) {
		return nil, fmt.Errorf("%w: no deliverable delta for %s -> %s", domain.ErrNotFound, fromVersion, toVersion)
	}

	return delta, nil
}

// PurgeExpired удаляет истекшие дельты и их артефакты.
// Дельты воспроизводимы, поэтому хранение ограничено сроком жизни.
func (s *DeltaService) PurgeExpired(ctx context.Context) error {
	deleted, err := s.deltas.DeleteExpired(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("failed to purge expired deltas: %w", err)
	}

	for _, delta := range deleted {
		if delta.FileKey == "" {
			continue
		}
		if err := s.s3Client.DeleteObject(delta.FileKey); err != nil {
			log.Printf("[Delta] Warning: failed to delete expired delta artifact %s: %v", delta.FileKey, err)
		}
	}

	if len(deleted) > 0 {
		log.Printf("[Delta] Purged %d expired deltas", len(deleted))
	}

	return nil
}

// loadArtifact читает артефакт версии целиком
func (s *DeltaService) loadArtifact(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.s3Client.GetObject(ctx, key)
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, err
	}
	return data, nil
}
