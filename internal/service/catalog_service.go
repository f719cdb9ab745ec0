package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"novaupdate/internal/domain"
	"novaupdate/internal/service/s3"
)

// Максимальный размер загружаемого артефакта
const maxArtifactSize = 2 * 1024 * 1024 * 1024 // 2GB

// VersionStore — хранилище каталога версий. Интерфейс позволяет подменять
// реляционное хранилище на in-memory в тестах.
type VersionStore interface {
	Create(ctx context.Context, version *domain.Version) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Version, error)
	GetByNumber(ctx context.Context, versionNumber string) (*domain.Version, error)
	List(ctx context.Context, channel *domain.Channel, activeOnly bool) ([]domain.Version, error)
	Update(ctx context.Context, version *domain.Version) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*domain.Version, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// CatalogService представляет сервис каталога версий
type CatalogService struct {
	versions VersionStore
	s3Client s3.Storage
	baseURL  string
}

func NewCatalogService(versions VersionStore, s3Client s3.Storage, baseURL string) *CatalogService {
	return &CatalogService{
		versions: versions,
		s3Client: s3Client,
		baseURL:  baseURL,
	}
}

// CreateVersionInput — метаданные публикуемой версии
type CreateVersionInput struct {
	VersionNumber     string
	Channel           domain.Channel
	IsMandatory       bool
	IsActive          bool
	ReleaseNotes      string
	MinClientVersion  string
	MinRuntimeVersion string
	SupportedOS       []string
	SupportedArch     []string
	Approved          bool
	CreatedBy         string
}

// CreateVersion публикует версию: выгружает артефакт в хранилище, считает
// контрольную сумму и создает запись каталога
func (s *CatalogService) CreateVersion(
	ctx context.Context,
	input CreateVersionInput,
	file multipart.File,
	header *multipart.FileHeader,
) (*domain.Version, error) {

	if file == nil || header == nil {
		return nil, fmt.Errorf("%w: artifact file is required", domain.ErrBadInput)
	}
	if header.Size > maxArtifactSize {
		return nil, fmt.Errorf("%w: artifact exceeds %d bytes", domain.ErrBadInput, int64(maxArtifactSize))
	}

	if _, err := parseVersion(input.VersionNumber); err != nil {
		return nil, err
	}
	if !input.Channel.Valid() {
		return nil, fmt.Errorf("%w: unknown release channel %q", domain.ErrBadInput, input.Channel)
	}
	if input.MinClientVersion != "" {
		if _, err := parseVersion(input.MinClientVersion); err != nil {
			return nil, err
		}
	}

	// Публикация в канал с обязательным одобрением требует явного флага
	props, _ := input.Channel.Properties()
	if props.RequiresApproval && !input.Approved {
		return nil, fmt.Errorf("%w: channel %s requires approval", domain.ErrConflict, input.Channel)
	}

	// Читаем артефакт и считаем контрольную сумму до каких-либо записей
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	checksum := s3.Checksum(data)
	fileKey := fmt.Sprintf("update_artifacts/%s/%s", input.VersionNumber, header.Filename)

	if err := s.s3Client.UploadBytes(fileKey, data); err != nil {
		return nil, fmt.Errorf("%w: failed to upload artifact: %v", domain.ErrStorage, err)
	}

	version := &domain.Version{
		ID:                uuid.New(),
		VersionNumber:     input.VersionNumber,
		Channel:           input.Channel,
		IsMandatory:       input.IsMandatory,
		IsActive:          input.IsActive,
		ReleaseNotes:      input.ReleaseNotes,
		MinClientVersion:  input.MinClientVersion,
		MinRuntimeVersion: input.MinRuntimeVersion,
		SupportedOS:       input.SupportedOS,
		SupportedArch:     input.SupportedArch,
		FileKey:           fileKey,
		FileName:          header.Filename,
		SizeBytes:         int64(len(data)),
		Checksum:          checksum,
		ReleasedAt:        time.Now().UTC(),
		CreatedBy:         input.CreatedBy,
	}

	if err := s.versions.Create(ctx, version); err != nil {
		// Откатываем выгрузку, чтобы не оставлять осиротевший артефакт
		if delErr := s.s3Client.DeleteObject(fileKey); delErr != nil {
			log.Printf("[Catalog] Warning: failed to delete orphaned artifact %s: %v", fileKey, delErr)
		}
		return nil, err
	}

	log.Printf("[Catalog] Published version %s (%s, %d bytes, checksum %s)",
		version.VersionNumber, version.Channel, version.SizeBytes, version.Checksum)

	return version, nil
}

// GetLatest возвращает наивысшую активную версию, опционально в рамках канала
func (s *CatalogService) GetLatest(ctx context.Context, channel *domain.Channel) (*domain.Version, error) {
	if channel != nil && !channel.Valid() {
		return nil, fmt.Errorf("%w: unknown release channel %q", domain.ErrBadInput, *channel)
	}

	versions, err := s.versions.List(ctx, channel, true)
	if err != nil {
		return nil, err
	}

	latest := pickLatest(versions)
	if latest == nil {
		return nil, fmt.Errorf("%w: no active versions available", domain.ErrNotFound)
	}

	return latest, nil
}

// GetByID возвращает версию по идентификатору записи каталога
func (s *CatalogService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Version, error) {
	return s.versions.GetByID(ctx, id)
}

// GetByNumber возвращает версию по точному номеру
func (s *CatalogService) GetByNumber(ctx context.Context, versionNumber string) (*domain.Version, error) {
	if _, err := parseVersion(versionNumber); err != nil {
		return nil, err
	}
	return s.versions.GetByNumber(ctx, versionNumber)
}

// CheckForUpdate сравнивает версию клиента с последней доступной.
// Обязательность собирается по всем промежуточным релизам: если между
// клиентом и последней версией есть хоть одна обязательная, обновление
// обязательно — недостаточно смотреть только на флаг последней.
func (s *CatalogService) CheckForUpdate(ctx context.Context, clientVersion string, channel *domain.Channel) (*domain.UpdateCheckResult, error) {
	client, err := parseVersion(clientVersion)
	if err != nil {
		return nil, err
	}
	if channel != nil && !channel.Valid() {
		return nil, fmt.Errorf("%w: unknown release channel %q", domain.ErrBadInput, *channel)
	}

	versions, err := s.versions.List(ctx, channel, true)
	if err != nil {
		return nil, err
	}

	latest := pickLatest(versions)
	if latest == nil {
		return &domain.UpdateCheckResult{UpdateAvailable: false}, nil
	}

	latestSemver, err := parseVersion(latest.VersionNumber)
	if err != nil {
		return nil, err
	}

	if !latestSemver.GreaterThan(client) {
		return &domain.UpdateCheckResult{UpdateAvailable: false, LatestVersion: latest.VersionNumber}, nil
	}

	mandatory := false
	for i := range versions {
		v, err := parseVersion(versions[i].VersionNumber)
		if err != nil {
			log.Printf("[Catalog] Warning: skipping version with invalid number %q", versions[i].VersionNumber)
			continue
		}
		if !v.GreaterThan(client) {
			continue
		}
		if versions[i].IsMandatory {
			mandatory = true
			break
		}
		if versions[i].MinClientVersion != "" {
			min, err := parseVersion(versions[i].MinClientVersion)
			if err == nil && client.LessThan(min) {
				mandatory = true
				break
			}
		}
	}

	return &domain.UpdateCheckResult{
		UpdateAvailable: true,
		LatestVersion:   latest.VersionNumber,
		IsMandatory:     mandatory,
		DownloadURL:     fmt.Sprintf("%s/v1/updates/download/%s", s.baseURL, latest.VersionNumber),
		Checksum:        latest.Checksum,
		SizeBytes:       latest.SizeBytes,
		ReleaseNotes:    latest.ReleaseNotes,
	}, nil
}

// ListVersions возвращает версии для административного интерфейса
func (s *CatalogService) ListVersions(ctx context.Context, channel *domain.Channel) ([]domain.Version, error) {
	if channel != nil && !channel.Valid() {
		return nil, fmt.Errorf("%w: unknown release channel %q", domain.ErrBadInput, *channel)
	}
	return s.versions.List(ctx, channel, false)
}

// UpdateVersion применяет частичное редактирование метаданных версии
func (s *CatalogService) UpdateVersion(ctx context.Context, id uuid.UUID, update domain.VersionUpdate) (*domain.Version, error) {
	version, err := s.versions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.IsMandatory != nil {
		version.IsMandatory = *update.IsMandatory
	}
	if update.ReleaseNotes != nil {
		version.ReleaseNotes = *update.ReleaseNotes
	}
	if update.MinClientVersion != nil {
		if *update.MinClientVersion != "" {
			if _, err := parseVersion(*update.MinClientVersion); err != nil {
				return nil, err
			}
		}
		version.MinClientVersion = *update.MinClientVersion
	}
	if update.MinRuntimeVersion != nil {
		version.MinRuntimeVersion = *update.MinRuntimeVersion
	}
	if update.SupportedOS != nil {
		version.SupportedOS = update.SupportedOS
	}
	if update.SupportedArch != nil {
		version.SupportedArch = update.SupportedArch
	}

	if err := s.versions.Update(ctx, version); err != nil {
		return nil, err
	}

	return version, nil
}

// SetActive переключает доступность версии для клиентов
func (s *CatalogService) SetActive(ctx context.Context, id uuid.UUID, active bool) (*domain.Version, error) {
	return s.versions.SetActive(ctx, id, active)
}

// DeleteVersion удаляет версию каталога и ее артефакт. Версии с зависимыми
// дельтами не удаляются — репозиторий вернет конфликт.
func (s *CatalogService) DeleteVersion(ctx context.Context, id uuid.UUID) error {
	version, err := s.versions.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.versions.Delete(ctx, id); err != nil {
		return err
	}

	// Запись удалена, артефакт больше никому не доступен через каталог
	if err := s.s3Client.DeleteObject(version.FileKey); err != nil {
		log.Printf("[Catalog] Warning: failed to delete artifact %s: %v", version.FileKey, err)
	}

	log.Printf("[Catalog] Deleted version %s", version.VersionNumber)
	return nil
}

// pickLatest выбирает наивысшую версию по семантическому порядку.
// Записи с неразборчивым номером пропускаются с предупреждением.
func pickLatest(versions []domain.Version) *domain.Version {
	var latest *domain.Version
	var latestParsed *semver.Version

	for i := range versions {
		v, err := parseVersion(versions[i].VersionNumber)
		if err != nil {
			log.Printf("[Catalog] Warning: skipping version with invalid number %q", versions[i].VersionNumber)
			continue
		}
		if latest == nil || v.GreaterThan(latestParsed) {
			latest = &versions[i]
			latestParsed = v
		}
	}
	return latest
}
