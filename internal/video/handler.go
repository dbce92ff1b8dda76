package video

import (
	"context"
	"net/http"

	"github.com/screen3/screen3/internal/auth"
	"github.com/screen3/screen3/internal/database"
	"github.com/screen3/screen3/internal/events"
)

// Launcher starts post-upload processing for a stored source file.
type Launcher interface {
	Launch(videoID, creatorID, sourcePath string)
}

type Handler struct {
	db             database.DBTX
	store          *Store
	pipeline       Launcher
	events         events.Publisher
	tempDir        string
	maxUploadBytes int64
}

func NewHandler(db DB, tempDir string, maxUploadBytes int64) *Handler {
	return &Handler{
		db:             db,
		store:          NewStore(db),
		tempDir:        tempDir,
		maxUploadBytes: maxUploadBytes,
	}
}

func (h *Handler) Store() *Store {
	return h.store
}

func (h *Handler) SetPipeline(l Launcher) {
	h.pipeline = l
}

func (h *Handler) SetPublisher(p events.Publisher) {
	h.events = p
}

func (h *Handler) principal(ctx context.Context) (auth.Principal, error) {
	return auth.LoadPrincipal(ctx, h.db, auth.UserIDFromContext(ctx))
}

func (h *Handler) emit(e events.Event) {
	if h.events != nil {
		h.events.Emit(e)
	}
}

func principalError(w http.ResponseWriter, err error) {
	writeStoreError(w, err, "failed to load user")
}
