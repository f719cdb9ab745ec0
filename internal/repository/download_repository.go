package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"novaupdate/internal/domain"
)

type DownloadRepository struct {
	db *sqlx.DB
}

func NewDownloadRepository(db *sqlx.DB) *DownloadRepository {
	return &DownloadRepository{db: db}
}

// Create регистрирует начало передачи
func (r *DownloadRepository) Create(ctx context.Context, record *domain.DownloadRecord) error {
	query := `
        INSERT INTO download_records (
            id, client_id, client_ip, user_agent,
            target_type, target_ref, range_start, range_end, status
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING started_at`

	err := r.db.QueryRowContext(
		ctx,
		query,
		record.ID,
		record.ClientID,
		record.ClientIP,
		record.UserAgent,
		record.TargetType,
		record.TargetRef,
		record.RangeStart,
		record.RangeEnd,
		record.Status,
	).Scan(&record.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create download record: %w", err)
	}

	return nil
}

// Finish дозаполняет запись при завершении или обрыве передачи.
// Обновляется только собственная запись передачи — журнал append-only.
func (r *DownloadRepository) Finish(ctx context.Context, id uuid.UUID, status string, bytesServed int64) error {
	query := `
        UPDATE download_records
        SET status = $1, bytes_served = $2, finished_at = CURRENT_TIMESTAMP
        WHERE id = $3 AND status = $4`

	result, err := r.db.ExecContext(ctx, query, status, bytesServed, id, domain.DownloadStarted)
	if err != nil {
		return fmt.Errorf("failed to finish download record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: download record %s is not in progress", domain.ErrNotFound, id)
	}

	return nil
}

// StatsForTarget агрегирует журнал скачиваний по одной цели
func (r *DownloadRepository) StatsForTarget(ctx context.Context, targetRef string) (*domain.DownloadStats, error) {
	var stats domain.DownloadStats
	query := `
        SELECT
            $1::text AS target_ref,
            COUNT(*) AS total,
            COUNT(*) FILTER (WHERE status = 'completed') AS completed,
            COUNT(*) FILTER (WHERE status = 'failed') AS failed,
            COUNT(*) FILTER (WHERE status = 'aborted') AS aborted,
            COUNT(*) FILTER (WHERE status = 'started') AS in_progress
        FROM download_records
        WHERE target_ref = $1`

	if err := r.db.GetContext(ctx, &stats, query, targetRef); err != nil {
		return nil, fmt.Errorf("failed to get download stats: %w", err)
	}

	return &stats, nil
}
