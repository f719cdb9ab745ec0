package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"novaupdate/internal/auth"
	"novaupdate/internal/domain"
	"novaupdate/internal/service"
)

// Максимальный размер multipart формы при публикации версии
const maxUploadForm = 2 << 30 // 2GB

type AdminHandler struct {
	catalogService  *service.CatalogService
	downloadService *service.DownloadService
	adminToken      string
}

func NewAdminHandler(catalogService *service.CatalogService, downloadService *service.DownloadService, adminToken string) *AdminHandler {
	return &AdminHandler{
		catalogService:  catalogService,
		downloadService: downloadService,
		adminToken:      adminToken,
	}
}

// CreateVersion публикует новую версию: артефакт плюс метаданные в multipart форме
func (h *AdminHandler) CreateVersion(w http.ResponseWriter, r *http.Request) {
	admin, err := auth.VerifyAdmin(r, h.adminToken)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxUploadForm); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["artifact"]
	if len(files) == 0 {
		http.Error(w, "No artifact uploaded", http.StatusBadRequest)
		return
	}
	fileHeader := files[0]

	file, err := fileHeader.Open()
	if err != nil {
		log.Printf("[Admin] Error opening artifact: %v", err)
		http.Error(w, "Failed to process artifact", http.StatusInternalServerError)
		return
	}
	defer file.Close()

	input := service.CreateVersionInput{
		VersionNumber:     r.FormValue("version_number"),
		Channel:           domain.Channel(r.FormValue("channel")),
		IsMandatory:       r.FormValue("is_mandatory") == "true",
		IsActive:          r.FormValue("is_active") == "true",
		ReleaseNotes:      r.FormValue("release_notes"),
		MinClientVersion:  r.FormValue("min_client_version"),
		MinRuntimeVersion: r.FormValue("min_runtime_version"),
		SupportedOS:       splitList(r.FormValue("supported_os")),
		SupportedArch:     splitList(r.FormValue("supported_arch")),
		Approved:          r.FormValue("approved") == "true",
		CreatedBy:         admin,
	}
	if input.Channel == "" {
		input.Channel = domain.ChannelStable
	}

	version, err := h.catalogService.CreateVersion(r.Context(), input, file, fileHeader)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, version)
}

// ListVersions возвращает все версии, включая неактивные
func (h *AdminHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.VerifyAdmin(r, h.adminToken); err != nil {
		log.Printf("[Admin] Authorization failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	versions, err := h.catalogService.ListVersions(r.Context(), channelFromQuery(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, versions)
}

// UpdateVersion применяет частичное редактирование метаданных
func (h *AdminHandler) UpdateVersion(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.VerifyAdmin(r, h.adminToken); err != nil {
		log.Printf("[Admin] Authorization failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid version ID", http.StatusBadRequest)
		return
	}

	var update domain.VersionUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	version, err := h.catalogService.UpdateVersion(r.Context(), id, update)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, version)
}

// SetActive переключает доступность версии клиентам
func (h *AdminHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.VerifyAdmin(r, h.adminToken); err != nil {
		log.Printf("[Admin] Authorization failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid version ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	version, err := h.catalogService.SetActive(r.Context(), id, req.Active)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, version)
}

// DeleteVersion удаляет версию. Версии с зависимыми дельтами не удаляются
func (h *AdminHandler) DeleteVersion(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.VerifyAdmin(r, h.adminToken); err != nil {
		log.Printf("[Admin] Authorization failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid version ID", http.StatusBadRequest)
		return
	}

	if err := h.catalogService.DeleteVersion(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DownloadStats возвращает статистику скачиваний версии
func (h *AdminHandler) DownloadStats(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.VerifyAdmin(r, h.adminToken); err != nil {
		log.Printf("[Admin] Authorization failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "Invalid version ID", http.StatusBadRequest)
		return
	}

	version, err := h.catalogService.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	stats, err := h.downloadService.Stats(r.Context(), version.VersionNumber)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// splitList разбирает список значений, разделенных запятыми
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
