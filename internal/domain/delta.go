package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Типы изменений файлов внутри пакета
const (
	ChangeAdded     = "added"
	ChangeRemoved   = "removed"
	ChangeModified  = "modified"
	ChangeUnchanged = "unchanged"
)

// FileChange описывает изменение одного файла между двумя версиями пакета
type FileChange struct {
	Path        string `json:"path"`
	ChangeType  string `json:"change_type"`
	OldChecksum string `json:"old_checksum,omitempty"`
	NewChecksum string `json:"new_checksum,omitempty"`
	SizeBytes   int64  `json:"size_bytes"`
}

// FileChangeList хранится в JSONB колонке
type FileChangeList []FileChange

func (l FileChangeList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

func (l *FileChangeList) Scan(src interface{}) error {
	if src == nil {
		*l = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into FileChangeList", src)
	}
	return json.Unmarshal(b, l)
}

// DifferentialUpdate представляет дифференциальный патч между парой версий.
// Запись неизменяема после создания и адресуется контрольной суммой.
type DifferentialUpdate struct {
	ID               int64          `json:"id" db:"id"`
	FromVersionID    uuid.UUID      `json:"-" db:"from_version_id"`
	ToVersionID      uuid.UUID      `json:"-" db:"to_version_id"`
	FromVersion      string         `json:"from_version" db:"from_version"`
	ToVersion        string         `json:"to_version" db:"to_version"`
	DeltaSizeBytes   int64          `json:"delta_size_bytes" db:"delta_size_bytes"`
	FullSizeBytes    int64          `json:"full_size_bytes" db:"full_size_bytes"`
	CompressionRatio float64        `json:"compression_ratio" db:"compression_ratio"`
	Checksum         string         `json:"checksum" db:"checksum"`
	FileKey          string         `json:"-" db:"file_key"`
	ChangedFiles     FileChangeList `json:"changed_files" db:"changed_files"`
	FallbackToFull   bool           `json:"fallback_to_full" db:"fallback_to_full"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
	ExpiresAt        time.Time      `json:"expires_at" db:"expires_at"`
}

// Expired сообщает, истек ли срок хранения дельты
func (d *DifferentialUpdate) Expired(now time.Time) bool {
	return now.After(d.ExpiresAt)
}

// Deliverable сообщает, можно ли отдавать дельту клиенту.
// Дельта с fallback_to_full не имеет пригодного артефакта.
func (d *DifferentialUpdate) Deliverable(now time.Time) bool {
	return !d.FallbackToFull && d.FileKey != "" && !d.Expired(now)
}
