package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"novaupdate/internal/domain"
)

type DeltaRepository struct {
	db *sqlx.DB
}

func NewDeltaRepository(db *sqlx.DB) *DeltaRepository {
	return &DeltaRepository{db: db}
}

// Create сохраняет запись о дельте. Запись неизменяема: обновлений нет,
// повторная генерация той же пары возможна только после истечения срока
// и очистки старой записи.
func (r *DeltaRepository) Create(ctx context.Context, delta *domain.DifferentialUpdate) error {
	query := `
        INSERT INTO differential_updates (
            from_version_id, to_version_id, from_version, to_version,
            delta_size_bytes, full_size_bytes, compression_ratio,
            checksum, file_key, changed_files, fallback_to_full, expires_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING id, created_at`

	err := r.db.QueryRowContext(
		ctx,
		query,
		delta.FromVersionID,
		delta.ToVersionID,
		delta.FromVersion,
		delta.ToVersion,
		delta.DeltaSizeBytes,
		delta.FullSizeBytes,
		delta.CompressionRatio,
		delta.Checksum,
		delta.FileKey,
		delta.ChangedFiles,
		delta.FallbackToFull,
		delta.ExpiresAt,
	).Scan(&delta.ID, &delta.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create differential update: %w", err)
	}

	return nil
}

// GetByPair возвращает неистекшую дельту для пары версий
func (r *DeltaRepository) GetByPair(ctx context.Context, fromVersion, toVersion string) (*domain.DifferentialUpdate, error) {
	var delta domain.DifferentialUpdate
	query := `
        SELECT * FROM differential_updates
        WHERE from_version = $1 AND to_version = $2 AND expires_at > CURRENT_TIMESTAMP
        ORDER BY created_at DESC
        LIMIT 1`

	err := r.db.GetContext(ctx, &delta, query, fromVersion, toVersion)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: delta %s -> %s", domain.ErrNotFound, fromVersion, toVersion)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get differential update: %w", err)
	}

	return &delta, nil
}

// CountForVersion возвращает количество дельт, ссылающихся на версию
func (r *DeltaRepository) CountForVersion(ctx context.Context, versionID uuid.UUID) (int64, error) {
	var count int64
	query := `
        SELECT COUNT(*) FROM differential_updates
        WHERE from_version_id = $1 OR to_version_id = $1`

	if err := r.db.GetContext(ctx, &count, query, versionID); err != nil {
		return 0, fmt.Errorf("failed to count deltas for version: %w", err)
	}

	return count, nil
}

// DeleteExpired удаляет истекшие дельты и возвращает удаленные записи,
// чтобы вызывающий мог убрать их артефакты из хранилища
func (r *DeltaRepository) DeleteExpired(ctx context.Context, now time.Time) ([]domain.DifferentialUpdate, error) {
	var deleted []domain.DifferentialUpdate
	query := `
        DELETE FROM differential_updates
        WHERE expires_at <= $1
        RETURNING *`

	if err := r.db.SelectContext(ctx, &deleted, query, now); err != nil {
		return nil, fmt.Errorf("failed to delete expired deltas: %w", err)
	}

	return deleted, nil
}

// DeleteForVersion удаляет все дельты, ссылающиеся на версию, и возвращает их
func (r *DeltaRepository) DeleteForVersion(ctx context.Context, versionID uuid.UUID) ([]domain.DifferentialUpdate, error) {
	var deleted []domain.DifferentialUpdate
	query := `
        DELETE FROM differential_updates
        WHERE from_version_id = $1 OR to_version_id = $1
        RETURNING *`

	if err := r.db.SelectContext(ctx, &deleted, query, versionID); err != nil {
		return nil, fmt.Errorf("failed to delete deltas for version: %w", err)
	}

	return deleted, nil
}
