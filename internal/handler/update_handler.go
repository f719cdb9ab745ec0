package handler

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"novaupdate/internal/auth"
	"novaupdate/internal/domain"
	"novaupdate/internal/service"
)

type UpdateHandler struct {
	catalogService       *service.CatalogService
	compatibilityService *service.CompatibilityService
	deltaService         *service.DeltaService
	downloadService      *service.DownloadService
}

func NewUpdateHandler(
	catalogService *service.CatalogService,
	compatibilityService *service.CompatibilityService,
	deltaService *service.DeltaService,
	downloadService *service.DownloadService,
) *UpdateHandler {
	return &UpdateHandler{
		catalogService:       catalogService,
		compatibilityService: compatibilityService,
		deltaService:         deltaService,
		downloadService:      downloadService,
	}
}

// channelFromQuery извлекает необязательный параметр канала
func channelFromQuery(r *http.Request) *domain.Channel {
	raw := r.URL.Query().Get("channel")
	if raw == "" {
		return nil
	}
	ch := domain.Channel(raw)
	return &ch
}

// GetLatest возвращает метаданные последней активной версии
func (h *UpdateHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	version, err := h.catalogService.GetLatest(r.Context(), channelFromQuery(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, version)
}

// CheckForUpdate отвечает на запрос "есть ли обновление"
func (h *UpdateHandler) CheckForUpdate(w http.ResponseWriter, r *http.Request) {
	currentVersion := r.URL.Query().Get("currentVersion")
	if currentVersion == "" {
		http.Error(w, "currentVersion query parameter is required", http.StatusBadRequest)
		return
	}

	result, err := h.catalogService.CheckForUpdate(r.Context(), currentVersion, channelFromQuery(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetMetadata возвращает полные метаданные версии без скачивания
func (h *UpdateHandler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	version, err := h.catalogService.GetByNumber(r.Context(), chi.URLParam(r, "version"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !version.IsActive {
		http.Error(w, "version not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, version)
}

// CheckCompatibility вычисляет вердикт совместимости для окружения клиента
func (h *UpdateHandler) CheckCompatibility(w http.ResponseWriter, r *http.Request) {
	clientVersion := r.URL.Query().Get("clientVersion")
	if clientVersion == "" {
		http.Error(w, "clientVersion query parameter is required", http.StatusBadRequest)
		return
	}

	env := domain.ClientEnvironment{
		ClientVersion:  clientVersion,
		RuntimeVersion: r.URL.Query().Get("runtimeVersion"),
		OSName:         r.URL.Query().Get("osName"),
		OSVersion:      r.URL.Query().Get("osVersion"),
		Arch:           r.URL.Query().Get("arch"),
	}

	result, err := h.compatibilityService.Evaluate(r.Context(), chi.URLParam(r, "version"), env)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetDelta возвращает описание дифференциального обновления, при
// необходимости запуская генерацию. Параллельные запросы одной пары
// разделяют общее вычисление.
func (h *UpdateHandler) GetDelta(w http.ResponseWriter, r *http.Request) {
	from := chi.URLParam(r, "from")
	to := chi.URLParam(r, "to")

	delta, err := h.deltaService.Generate(r.Context(), from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, delta)
}

// DownloadDelta отдает артефакт дельты. Никогда не генерирует дельту:
// отсутствующая или fallback-дельта — это 404, клиент идет за полным пакетом.
func (h *UpdateHandler) DownloadDelta(w http.ResponseWriter, r *http.Request) {
	from := chi.URLParam(r, "from")
	to := chi.URLParam(r, "to")

	delta, err := h.deltaService.GetDeliverable(r.Context(), from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.serveArtifact(w, r, artifactInfo{
		targetType:  domain.TargetDelta,
		targetRef:   fmt.Sprintf("%s->%s", from, to),
		fileKey:     delta.FileKey,
		fileName:    fmt.Sprintf("%s_%s.patch", from, to),
		sizeBytes:   delta.DeltaSizeBytes,
		checksum:    delta.Checksum,
		contentType: "application/octet-stream",
	})
}

// DownloadVersion отдает полный артефакт версии
func (h *UpdateHandler) DownloadVersion(w http.ResponseWriter, r *http.Request) {
	version, err := h.catalogService.GetByNumber(r.Context(), chi.URLParam(r, "version"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !version.IsActive {
		http.Error(w, "version not found", http.StatusNotFound)
		return
	}

	contentType := "application/octet-stream"
	h.serveArtifact(w, r, artifactInfo{
		targetType:  domain.TargetVersion,
		targetRef:   version.VersionNumber,
		fileKey:     version.FileKey,
		fileName:    version.FileName,
		sizeBytes:   version.SizeBytes,
		checksum:    version.Checksum,
		contentType: contentType,
	})
}

type artifactInfo struct {
	targetType  string
	targetRef   string
	fileKey     string
	fileName    string
	sizeBytes   int64
	checksum    string
	contentType string
}

// serveArtifact отдает артефакт с поддержкой докачки по Range заголовку.
// Контрольная сумма всегда относится к целому артефакту, даже при отдаче
// частичного диапазона.
func (h *UpdateHandler) serveArtifact(w http.ResponseWriter, r *http.Request, info artifactInfo) {
	startTime := time.Now()
	log.Printf("[Download] Начало запроса на скачивание %s %s", info.targetType, info.targetRef)

	// Подготавливаем имя файла для Content-Disposition
	encodedFileName := url.QueryEscape(info.fileName)
	asciiName := strings.ReplaceAll(info.fileName, `"`, `\"`)
	contentDisposition := fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, asciiName, encodedFileName)

	// Устанавливаем базовые заголовки
	w.Header().Set("Content-Type", info.contentType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Disposition", contentDisposition)
	w.Header().Set("X-Checksum", info.checksum)
	w.Header().Set("ETag", fmt.Sprintf(`"%s"`, info.checksum))
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	// Обработка Range запроса. Некорректный заголовок не является ошибкой:
	// отдаем полный артефакт, клиент сможет повторить с исправленным диапазоном
	var start, end int64
	partial := false
	rangeHeader := r.Header.Get("Range")
	if rangeHeader != "" {
		log.Printf("[Download] Получен Range запрос: %s", rangeHeader)
		ranges, err := parseRange(rangeHeader, info.sizeBytes)
		if err != nil || len(ranges) != 1 {
			log.Printf("[Download] Некорректный Range %q, отдаем полный артефакт: %v", rangeHeader, err)
		} else {
			start = ranges[0][0]
			end = ranges[0][1]
			partial = true
		}
	}
	if !partial {
		start = 0
		end = info.sizeBytes - 1
	}

	// Регистрируем попытку скачивания до начала передачи
	record := &domain.DownloadRecord{
		ClientID:   auth.ClientID(r),
		ClientIP:   auth.ClientIP(r),
		UserAgent:  r.UserAgent(),
		TargetType: info.targetType,
		TargetRef:  info.targetRef,
	}
	if partial {
		record.RangeStart = &start
		record.RangeEnd = &end
	}
	if err := h.downloadService.Begin(r.Context(), record); err != nil {
		log.Printf("[Download] Ошибка регистрации скачивания: %v", err)
		http.Error(w, "failed to register download", http.StatusInternalServerError)
		return
	}

	// Открываем данные из хранилища с использованием Range
	reader, err := h.downloadService.OpenRange(r.Context(), info.fileKey, start, end)
	if err != nil {
		log.Printf("[Download] Ошибка получения данных артефакта: %v", err)
		h.downloadService.Finish(context.Background(), record.ID, domain.DownloadFailed, 0)
		writeDomainError(w, err)
		return
	}
	defer reader.Close()

	if partial {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, info.sizeBytes))
		w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
		log.Printf("[Download] Отдаем частичный контент: %d-%d/%d", start, end, info.sizeBytes)
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.Header().Set("Content-Length", strconv.FormatInt(info.sizeBytes, 10))
		log.Printf("[Download] Отдаем полный артефакт: %d байт", info.sizeBytes)
		w.WriteHeader(http.StatusOK)
	}

	// Отправляем данные клиенту через буфер
	buf := make([]byte, 32*1024)
	var written int64
	status := domain.DownloadCompleted

	for {
		n, err := reader.Read(buf)
		if n > 0 {
			nw, ew := w.Write(buf[:n])
			if nw > 0 {
				written += int64(nw)
			}
			if ew != nil {
				// Клиент оборвал соединение — запись финализируется
				// как aborted, а не остается "в процессе"
				log.Printf("[Download] Ошибка записи (обрыв клиента): %v", ew)
				status = domain.DownloadAborted
				break
			}
			if nw != n {
				log.Printf("[Download] Короткая запись: %d < %d", nw, n)
				status = domain.DownloadAborted
				break
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("[Download] Ошибка при чтении артефакта: %v", err)
			status = domain.DownloadFailed
			break
		}

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}

	// Контекст запроса при обрыве уже отменен, финализируем на фоновом
	h.downloadService.Finish(context.Background(), record.ID, status, written)

	duration := time.Since(startTime)
	log.Printf("[Download] Завершено со статусом %s. Отправлено %d байт за %v", status, written, duration)
}

// parseRange разбирает заголовок Range вида bytes=start-end
func parseRange(rangeHeader string, fileSize int64) ([][2]int64, error) {
	if !strings.HasPrefix(rangeHeader, "bytes=") {
		return nil, fmt.Errorf("invalid range format")
	}

	rangeHeader = strings.TrimPrefix(rangeHeader, "bytes=")
	var ranges [][2]int64

	for _, r := range strings.Split(rangeHeader, ",") {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}

		parts := strings.Split(r, "-")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid range format")
		}

		var start, end int64
		var err error

		if parts[0] == "" {
			// Suffix range: -N
			end, err = strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return nil, err
			}
			start = fileSize - end
			end = fileSize - 1
		} else {
			// Standard range: N-M
			start, err = strconv.ParseInt(parts[0], 10, 64)
			if err != nil {
				return nil, err
			}

			if parts[1] == "" {
				// Range: N-
				end = fileSize - 1
			} else {
				end, err = strconv.ParseInt(parts[1], 10, 64)
				if err != nil {
					return nil, err
				}
			}
		}

		if start < 0 || end < 0 || start > end || end >= fileSize {
			return nil, fmt.Errorf("invalid range values")
		}

		ranges = append(ranges, [2]int64{start, end})
	}

	return ranges, nil
}
