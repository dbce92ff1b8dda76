package video

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/screen3/screen3/internal/auth"
	"github.com/screen3/screen3/internal/httputil"
	"github.com/screen3/screen3/internal/validate"
)

const multipartMemory = 32 << 20

// videoExtensions covers container types missing from minimal mime tables.
var videoExtensions = map[string]string{
	"video/mp4":        "mp4",
	"video/quicktime":  "mov",
	"video/webm":       "webm",
	"video/x-matroska": "mkv",
	"video/x-msvideo":  "avi",
}

type messageResponse struct {
	Message string `json:"message"`
}

// uploadExtension picks a safe file extension from the client file name,
// falling back to the part's content type and then mp4.
func uploadExtension(header *multipart.FileHeader) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(header.Filename), "."))
	if isSafeExtension(ext) {
		return ext
	}
	if mediaType, _, err := mime.ParseMediaType(header.Header.Get("Content-Type")); err == nil {
		if ext, ok := videoExtensions[mediaType]; ok {
			return ext
		}
		if sub, ok := strings.CutPrefix(mediaType, "video/"); ok {
			if exts, err := mime.ExtensionsByType(mediaType); err == nil {
				for _, ext := range exts {
					if ext = strings.TrimPrefix(ext, "."); isSafeExtension(ext) {
						return ext
					}
				}
			}
			if isSafeExtension(sub) {
				return sub
			}
		}
	}
	return "mp4"
}

func isSafeExtension(ext string) bool {
	if ext == "" || len(ext) > 8 {
		return false
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func (h *Handler) saveUpload(file multipart.File, ext string) (string, error) {
	dir, err := filepath.Abs(h.tempDir)
	if err != nil {
		return "", fmt.Errorf("resolve temp dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}

	path := filepath.Join(dir, "video"+uuid.NewString()+"."+ext)
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close upload file: %w", err)
	}
	return path, nil
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "video exceeds upload limit")
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	errs := validate.Errors{}
	id := strings.TrimSpace(r.FormValue("id"))
	if id == "" {
		errs.Add("id", "id is required")
	}
	file, header, err := r.FormFile("video")
	if err != nil {
		errs.Add("video", "video file is required")
	}
	if !errs.Empty() {
		if file != nil {
			file.Close()
		}
		httputil.WriteValidationError(w, errs)
		return
	}
	defer file.Close()

	if _, err := uuid.Parse(id); err != nil {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}

	creatorID := auth.UserIDFromContext(r.Context())
	owns, err := h.store.Owns(r.Context(), id, creatorID)
	if err != nil {
		writeStoreError(w, err, "failed to load video")
		return
	}
	if !owns {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}

	path, err := h.saveUpload(file, uploadExtension(header))
	if err != nil {
		slog.Error("upload: failed to store source file", "video_id", id, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to store video")
		return
	}

	if h.pipeline == nil {
		slog.Warn("upload: no pipeline configured, discarding source", "video_id", id)
		os.Remove(path)
	} else {
		h.pipeline.Launch(id, creatorID, path)
	}

	httputil.WriteJSON(w, http.StatusAccepted, messageResponse{Message: "processing"})
}
