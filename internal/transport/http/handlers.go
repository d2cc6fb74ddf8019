package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"xmedia/internal/encode"
	"xmedia/internal/jobs"
	"xmedia/internal/media"
	"xmedia/internal/store"

	"github.com/gorilla/mux"
)

type mediaUseCases interface {
	UploadVideoHLS(ctx context.Context, r io.Reader, filename string) (media.Media, error)
	UploadImage(ctx context.Context, r io.Reader, filename string) (media.Media, error)
	VideoStatus(ctx context.Context, id string) (store.VideoStatus, error)
	RecentStatuses(ctx context.Context, limit int) ([]store.VideoStatus, error)
}

type blobResolver interface {
	ObjectURL(key string) string
}

type janitor interface {
	Run(ctx context.Context, before time.Time) (int64, int, error)
}

type Handler struct {
	media         mediaUseCases
	blobs         blobResolver
	janitor       janitor
	uploadDir     string
	retentionDays int
}

func NewHandler(m mediaUseCases, blobs blobResolver, jan janitor, uploadDir string, retentionDays int) *Handler {
	return &Handler{
		media:         m,
		blobs:         blobs,
		janitor:       jan,
		uploadDir:     uploadDir,
		retentionDays: retentionDays,
	}
}

type uploadResponse struct {
	Result media.Media `json:"result"`
}

type statusResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	Message   *string `json:"message,omitempty"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

type listStatusResponse struct {
	VideoStatuses []statusResponse `json:"video_statuses"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type cleanupRequest struct {
	RetentionDays int `json:"retention_days"`
}

type cleanupResponse struct {
	DeletedJobs    int64 `json:"deleted_jobs"`
	DeletedObjects int   `json:"deleted_objects"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) UploadVideoHLS(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("video")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "video file is required"})
		return
	}
	defer file.Close()

	result, err := h.media.UploadVideoHLS(r.Context(), file, header.Filename)
	if err != nil {
		writeUploadError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{Result: result})
}

func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "image file is required"})
		return
	}
	defer file.Close()

	result, err := h.media.UploadImage(r.Context(), file, header.Filename)
	if err != nil {
		writeUploadError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{Result: result})
}

func (h *Handler) VideoStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	v, err := h.media.VideoStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "video status not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load video status"})
		return
	}
	writeJSON(w, http.StatusOK, buildStatusResponse(v))
}

func (h *Handler) ListVideoStatus(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			limit = v
		}
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	items, err := h.media.RecentStatuses(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load video statuses"})
		return
	}
	resp := listStatusResponse{VideoStatuses: make([]statusResponse, 0, len(items))}
	for _, v := range items {
		resp.VideoStatuses = append(resp.VideoStatuses, buildStatusResponse(v))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ServeManifest resolves the deterministic manifest URL against the blob
// store. Until the job reaches success the manifest does not exist and the
// route answers 404, which clients read as "still processing".
func (h *Handler) ServeManifest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	h.redirectArtifact(w, r, id, "master.m3u8")
}

func (h *Handler) ServeSegment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	variant := vars["variant"]
	segment := vars["segment"]
	if !safePathPart(variant) || !safePathPart(segment) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
		return
	}
	h.redirectArtifact(w, r, id, variant+"/"+segment)
}

func (h *Handler) redirectArtifact(w http.ResponseWriter, r *http.Request, id, rel string) {
	v, err := h.media.VideoStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "video not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load video status"})
		return
	}
	switch v.Status {
	case jobs.StatusSuccess:
		http.Redirect(w, r, h.blobs.ObjectURL(encode.ObjectKey(id, rel)), http.StatusFound)
	case jobs.StatusFailed:
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "video encode failed"})
	default:
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "video is still processing"})
	}
}

func (h *Handler) ServeImage(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if !safePathPart(name) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
		return
	}
	http.ServeFile(w, r, filepath.Join(h.uploadDir, filepath.Base(name)))
}

func (h *Handler) AdminCleanup(w http.ResponseWriter, r *http.Request) {
	retentionDays := h.retentionDays
	if r.Body != nil {
		var req cleanupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.RetentionDays > 0 {
			retentionDays = req.RetentionDays
		}
	}
	if retentionDays <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "retention_days is required"})
		return
	}
	before := time.Now().AddDate(0, 0, -retentionDays)
	deletedJobs, deletedObjects, err := h.janitor.Run(r.Context(), before)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "cleanup failed"})
		return
	}
	writeJSON(w, http.StatusOK, cleanupResponse{
		DeletedJobs:    deletedJobs,
		DeletedObjects: deletedObjects,
	})
}

func buildStatusResponse(v store.VideoStatus) statusResponse {
	resp := statusResponse{
		ID:        v.ID,
		Name:      v.Name,
		Status:    v.Status,
		CreatedAt: v.CreatedAt.Format(time.RFC3339),
		UpdatedAt: v.UpdatedAt.Format(time.RFC3339),
	}
	if v.Message.Valid {
		msg := v.Message.String
		resp.Message = &msg
	}
	return resp
}

func writeUploadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, media.ErrTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "file too large"})
	case errors.Is(err, media.ErrUnsupportedType):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unsupported file type"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "upload failed"})
	}
}

func safePathPart(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, "/\\")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
