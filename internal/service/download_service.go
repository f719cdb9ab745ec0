package service

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"novaupdate/internal/domain"
	"novaupdate/internal/service/s3"
)

// DownloadStore — журнал попыток скачивания
type DownloadStore interface {
	Create(ctx context.Context, record *domain.DownloadRecord) error
	Finish(ctx context.Context, id uuid.UUID, status string, bytesServed int64) error
	StatsForTarget(ctx context.Context, targetRef string) (*domain.DownloadStats, error)
}

// DownloadService отдает артефакты с поддержкой докачки и ведет журнал передач
type DownloadService struct {
	downloads DownloadStore
	s3Client  s3.Storage
}

func NewDownloadService(downloads DownloadStore, s3Client s3.Storage) *DownloadService {
	return &DownloadService{
		downloads: downloads,
		s3Client:  s3Client,
	}
}

// Begin регистрирует начало передачи и возвращает идентификатор записи
func (s *DownloadService) Begin(ctx context.Context, record *domain.DownloadRecord) error {
	record.ID = uuid.New()
	record.Status = domain.DownloadStarted

	if err := s.downloads.Create(ctx, record); err != nil {
		return err
	}

	log.Printf("[Download] Started %s transfer of %s for client %s (%s)",
		record.TargetType, record.TargetRef, record.ClientID, record.ClientIP)
	return nil
}

// Finish финализирует запись передачи. Вызывается и при штатном завершении,
// и при обрыве соединения клиентом — запись не остается "в процессе".
func (s *DownloadService) Finish(ctx context.Context, id uuid.UUID, status string, bytesServed int64) {
	if err := s.downloads.Finish(ctx, id, status, bytesServed); err != nil {
		log.Printf("[Download] Warning: failed to finalize record %s: %v", id, err)
	}
}

// Open открывает артефакт целиком
func (s *DownloadService) Open(ctx context.Context, key string) (s3.Object, error) {
	obj, err := s.s3Client.GetObject(ctx, key)
	if err != nil {
		// Клиент должен отличать "версия удалена" от временного сбоя:
		// недоступный артефакт — это NotFound, а не 500
		return nil, fmt.Errorf("%w: artifact unavailable: %v", domain.ErrNotFound, err)
	}
	return obj, nil
}

// OpenRange открывает байтовый диапазон артефакта
func (s *DownloadService) OpenRange(ctx context.Context, key string, start, end int64) (s3.Object, error) {
	obj, err := s.s3Client.GetObjectRange(ctx, key, start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: artifact unavailable: %v", domain.ErrNotFound, err)
	}
	return obj, nil
}

// Stats возвращает агрегированную статистику скачиваний цели
func (s *DownloadService) Stats(ctx context.Context, targetRef string) (*domain.DownloadStats, error) {
	return s.downloads.StatsForTarget(ctx, targetRef)
}
