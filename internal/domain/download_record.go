package domain

import (
	"time"

	"github.com/google/uuid"
)

// Статусы записи о скачивании
const (
	DownloadStarted   = "started"
	DownloadCompleted = "completed"
	DownloadFailed    = "failed"
	DownloadAborted   = "aborted"
)

// Типы целей скачивания
const (
	TargetVersion = "version"
	TargetDelta   = "delta"
)

// DownloadRecord представляет одну попытку скачивания. Создается при старте
// передачи и дозаполняется при завершении — append-only журнал, записи
// никогда не перезаписываются другими запросами.
type DownloadRecord struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	ClientID    string     `json:"client_id" db:"client_id"`
	ClientIP    string     `json:"client_ip" db:"client_ip"`
	UserAgent   string     `json:"user_agent" db:"user_agent"`
	TargetType  string     `json:"target_type" db:"target_type"`
	TargetRef   string     `json:"target_ref" db:"target_ref"`
	RangeStart  *int64     `json:"range_start,omitempty" db:"range_start"`
	RangeEnd    *int64     `json:"range_end,omitempty" db:"range_end"`
	BytesServed int64      `json:"bytes_served" db:"bytes_served"`
	Status      string     `json:"status" db:"status"`
	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// DownloadStats агрегирует попытки скачивания по статусам для одной цели
type DownloadStats struct {
	TargetRef  string `json:"target_ref" db:"target_ref"`
	Total      int64  `json:"total" db:"total"`
	Completed  int64  `json:"completed" db:"completed"`
	Failed     int64  `json:"failed" db:"failed"`
	Aborted    int64  `json:"aborted" db:"aborted"`
	InProgress int64  `json:"in_progress" db:"in_progress"`
}
