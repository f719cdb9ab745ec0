package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"novaupdate/internal/domain"
)

// Код ошибки Postgres для нарушения уникальности
const pgUniqueViolation = "23505"

type VersionRepository struct {
	db *sqlx.DB
}

func NewVersionRepository(db *sqlx.DB) *VersionRepository {
	return &VersionRepository{db: db}
}

func (r *VersionRepository) Create(ctx context.Context, version *domain.Version) error {
	query := `
        INSERT INTO versions (
            id, version_number, channel, is_mandatory, is_active,
            release_notes, min_client_version, min_runtime_version,
            supported_os, supported_arch,
            file_key, file_name, size_bytes, checksum, released_at, created_by
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
        RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(
		ctx,
		query,
		version.ID,
		version.VersionNumber,
		version.Channel,
		version.IsMandatory,
		version.IsActive,
		version.ReleaseNotes,
		version.MinClientVersion,
		version.MinRuntimeVersion,
		version.SupportedOS,
		version.SupportedArch,
		version.FileKey,
		version.FileName,
		version.SizeBytes,
		version.Checksum,
		version.ReleasedAt,
		version.CreatedBy,
	).Scan(&version.CreatedAt, &version.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
			return fmt.Errorf("%w: version %s already exists", domain.ErrConflict, version.VersionNumber)
		}
		return fmt.Errorf("failed to create version: %w", err)
	}

	return nil
}

func (r *VersionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Version, error) {
	var version domain.Version
	query := `SELECT * FROM versions WHERE id = $1`

	err := r.db.GetContext(ctx, &version, query, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: version %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version by id: %w", err)
	}

	return &version, nil
}

func (r *VersionRepository) GetByNumber(ctx context.Context, versionNumber string) (*domain.Version, error) {
	var version domain.Version
	query := `SELECT * FROM versions WHERE version_number = $1`

	err := r.db.GetContext(ctx, &version, query, versionNumber)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: version %s", domain.ErrNotFound, versionNumber)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version by number: %w", err)
	}

	return &version, nil
}

// List возвращает версии каталога. Каталог читается напрямую из базы при
// каждом запросе: решения о совместимости и дельтах не терпят устаревших
// данных об активации.
func (r *VersionRepository) List(ctx context.Context, channel *domain.Channel, activeOnly bool) ([]domain.Version, error) {
	query := `SELECT * FROM versions WHERE 1=1`
	args := []interface{}{}

	if channel != nil {
		args = append(args, *channel)
		query += fmt.Sprintf(" AND channel = $%d", len(args))
	}
	if activeOnly {
		query += " AND is_active = true"
	}
	query += " ORDER BY released_at DESC"

	var versions []domain.Version
	err := r.db.SelectContext(ctx, &versions, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}

	return versions, nil
}

func (r *VersionRepository) Update(ctx context.Context, version *domain.Version) error {
	query := `
        UPDATE versions
        SET is_mandatory = $1,
            release_notes = $2,
            min_client_version = $3,
            min_runtime_version = $4,
            supported_os = $5,
            supported_arch = $6,
            updated_at = CURRENT_TIMESTAMP
        WHERE id = $7
        RETURNING updated_at`

	err := r.db.QueryRowContext(
		ctx,
		query,
		version.IsMandatory,
		version.ReleaseNotes,
		version.MinClientVersion,
		version.MinRuntimeVersion,
		version.SupportedOS,
		version.SupportedArch,
		version.ID,
	).Scan(&version.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: version %s", domain.ErrNotFound, version.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update version: %w", err)
	}

	return nil
}

// SetActive переключает видимость версии для клиентов.
// Изменение видно всем читателям сразу после коммита.
func (r *VersionRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) (*domain.Version, error) {
	query := `
        UPDATE versions
        SET is_active = $1, updated_at = CURRENT_TIMESTAMP
        WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, active, id)
	if err != nil {
		return nil, fmt.Errorf("failed to set version active state: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("%w: version %s", domain.ErrNotFound, id)
	}

	return r.GetByID(ctx, id)
}

// Delete удаляет версию. Версия, на которую ссылаются дельты, не удаляется:
// сначала зависимые дельты, иначе конфликт.
func (r *VersionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var dependents int64
	countQuery := `
        SELECT COUNT(*) FROM differential_updates
        WHERE from_version_id = $1 OR to_version_id = $1`
	if err := tx.GetContext(ctx, &dependents, countQuery, id); err != nil {
		return fmt.Errorf("failed to count dependent deltas: %w", err)
	}
	if dependents > 0 {
		return fmt.Errorf("%w: version is referenced by %d differential updates", domain.ErrConflict, dependents)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM versions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete version: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: version %s", domain.ErrNotFound, id)
	}

	return tx.Commit()
}
