package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Version представляет одну запись каталога — выпускаемую сборку приложения
type Version struct {
	ID                uuid.UUID      `json:"id" db:"id"`
	VersionNumber     string         `json:"version_number" db:"version_number"`
	Channel           Channel        `json:"channel" db:"channel"`
	IsMandatory       bool           `json:"is_mandatory" db:"is_mandatory"`
	IsActive          bool           `json:"is_active" db:"is_active"`
	ReleaseNotes      string         `json:"release_notes" db:"release_notes"`
	MinClientVersion  string         `json:"min_client_version" db:"min_client_version"`
	MinRuntimeVersion string         `json:"min_runtime_version" db:"min_runtime_version"`
	SupportedOS       pq.StringArray `json:"supported_os" db:"supported_os"`
	SupportedArch     pq.StringArray `json:"supported_arch" db:"supported_arch"`
	FileKey           string         `json:"-" db:"file_key"`
	FileName          string         `json:"file_name" db:"file_name"`
	SizeBytes         int64          `json:"size_bytes" db:"size_bytes"`
	Checksum          string         `json:"checksum" db:"checksum"`
	ReleasedAt        time.Time      `json:"released_at" db:"released_at"`
	CreatedBy         string         `json:"created_by" db:"created_by"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// SupportsOS проверяет поддержку операционной системы.
// Пустой список означает отсутствие ограничений.
func (v *Version) SupportsOS(osName string) bool {
	if len(v.SupportedOS) == 0 {
		return true
	}
	for _, os := range v.SupportedOS {
		if os == osName {
			return true
		}
	}
	return false
}

// SupportsArch проверяет поддержку архитектуры процессора
func (v *Version) SupportsArch(arch string) bool {
	if len(v.SupportedArch) == 0 {
		return true
	}
	for _, a := range v.SupportedArch {
		if a == arch {
			return true
		}
	}
	return false
}

// VersionUpdate содержит редактируемые поля версии. Указатели отличают
// "не менять" от "установить пустое значение".
type VersionUpdate struct {
	IsMandatory       *bool    `json:"is_mandatory,omitempty"`
	ReleaseNotes      *string  `json:"release_notes,omitempty"`
	MinClientVersion  *string  `json:"min_client_version,omitempty"`
	MinRuntimeVersion *string  `json:"min_runtime_version,omitempty"`
	SupportedOS       []string `json:"supported_os,omitempty"`
	SupportedArch     []string `json:"supported_arch,omitempty"`
}

// UpdateCheckResult представляет ответ на запрос проверки обновления
type UpdateCheckResult struct {
	UpdateAvailable bool   `json:"update_available"`
	LatestVersion   string `json:"latest_version,omitempty"`
	IsMandatory     bool   `json:"is_mandatory"`
	DownloadURL     string `json:"download_url,omitempty"`
	Checksum        string `json:"checksum,omitempty"`
	SizeBytes       int64  `json:"size_bytes,omitempty"`
	ReleaseNotes    string `json:"release_notes,omitempty"`
}
