package video

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/screen3/screen3/internal/auth"
	"github.com/screen3/screen3/internal/events"
	"github.com/screen3/screen3/internal/httputil"
	"github.com/screen3/screen3/internal/validate"
)

type videoInput struct {
	SpaceID           *string  `json:"spaceId"`
	Title             *string  `json:"title"`
	Bucket            *string  `json:"bucket"`
	StorageID         *string  `json:"storageId"`
	Description       *string  `json:"description"`
	Duration          *float64 `json:"duration"`
	URL               *string  `json:"url"`
	VideoThumbnailURL *string  `json:"videoThumbnailUrl"`
	ImageThumbnailURL *string  `json:"imageThumbnailUrl"`
	Tags              *[]Tag   `json:"tags"`
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func (in *videoInput) normalize() {
	for _, p := range []*string{in.SpaceID, in.Title, in.Bucket, in.StorageID, in.Description, in.URL, in.VideoThumbnailURL, in.ImageThumbnailURL} {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
	if in.Tags != nil {
		for i := range *in.Tags {
			tag := &(*in.Tags)[i]
			tag.Title = strings.TrimSpace(tag.Title)
			if tag.ID == "" {
				tag.ID = uuid.NewString()
			}
		}
	}
}

func (in *videoInput) validate(requireStorageID bool) validate.Errors {
	errs := validate.Errors{}
	if requireStorageID && str(in.StorageID) == "" {
		errs.Add("storageId", "storageId is required")
	}
	errs.Add("storageId", validate.StorageID(str(in.StorageID)))
	errs.Add("title", validate.Title(str(in.Title)))
	errs.Add("description", validate.Description(str(in.Description)))
	for field, p := range map[string]*string{"url": in.URL, "videoThumbnailUrl": in.VideoThumbnailURL, "imageThumbnailUrl": in.ImageThumbnailURL} {
		if p != nil && *p != "" {
			errs.Add(field, validate.URI(*p, field))
		}
	}
	if in.Duration != nil && *in.Duration < 0 {
		errs.Add("duration", "duration must not be negative")
	}
	if in.Tags != nil {
		if len(*in.Tags) > validate.MaxTagsPerVideo {
			errs.Add("tags", "too many tags")
		}
		for i, tag := range *in.Tags {
			field := "tags." + strconv.Itoa(i)
			errs.Add(field+".title", validate.TagTitle(tag.Title))
			errs.Add(field+".color", validate.HexColor(tag.Color))
		}
	}
	return errs
}

func (in *videoInput) patch() Patch {
	return Patch{
		SpaceID:           in.SpaceID,
		Title:             in.Title,
		Bucket:            in.Bucket,
		StorageID:         in.StorageID,
		Description:       in.Description,
		Duration:          in.Duration,
		URL:               in.URL,
		VideoThumbnailURL: in.VideoThumbnailURL,
		ImageThumbnailURL: in.ImageThumbnailURL,
		Tags:              in.Tags,
	}
}

func writeStoreError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, ErrNotFound):
		httputil.WriteError(w, http.StatusNotFound, "video not found")
	case errors.Is(err, auth.ErrUserNotFound):
		httputil.WriteError(w, http.StatusUnauthorized, "user not found")
	default:
		slog.Error("video: "+message, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, message)
	}
}

func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	var in videoInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	in.normalize()
	if errs := in.validate(true); !errs.Empty() {
		httputil.WriteValidationError(w, errs)
		return
	}

	p, err := h.principal(r.Context())
	if err != nil {
		principalError(w, err)
		return
	}

	nv := NewVideo{
		SpaceID:           str(in.SpaceID),
		Creator:           Creator{ID: p.ID, Name: p.FullName},
		Bucket:            str(in.Bucket),
		StorageID:         str(in.StorageID),
		Title:             str(in.Title),
		Description:       str(in.Description),
		URL:               str(in.URL),
		VideoThumbnailURL: str(in.VideoThumbnailURL),
		ImageThumbnailURL: str(in.ImageThumbnailURL),
	}
	if in.Duration != nil {
		nv.Duration = *in.Duration
	}
	if in.Tags != nil {
		nv.Tags = *in.Tags
	}

	v, err := h.store.Create(r.Context(), nv)
	if err != nil {
		writeStoreError(w, err, "failed to save video")
		return
	}

	h.emit(events.VideoStored{VideoID: v.ID, CreatorID: v.Creator.ID, Title: v.Title})
	httputil.WriteJSON(w, http.StatusCreated, v)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}

	var in videoInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	in.normalize()
	if errs := in.validate(false); !errs.Empty() {
		httputil.WriteValidationError(w, errs)
		return
	}

	v, err := h.store.Update(r.Context(), id, auth.UserIDFromContext(r.Context()), in.patch())
	if err != nil {
		writeStoreError(w, err, "failed to update video")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

func queryTags(q url.Values) []string {
	var tags []string
	for _, key := range []string{"tags", "tags[]"} {
		for _, raw := range q[key] {
			for _, t := range strings.Split(raw, ",") {
				if t = strings.TrimSpace(t); t != "" {
					tags = append(tags, t)
				}
			}
		}
	}
	return tags
}

// parseDate accepts RFC 3339 timestamps or plain dates. A plain end date
// covers the whole day.
func parseDate(raw string, end bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, err
	}
	if end {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func parseListFilter(q url.Values) (ListFilter, validate.Errors) {
	errs := validate.Errors{}
	f := ListFilter{Tags: queryTags(q)}
	var err error
	if f.From, err = parseDate(q.Get("date[start]"), false); err != nil {
		errs.Add("date.start", "date.start must be a date or RFC 3339 timestamp")
	}
	if f.To, err = parseDate(q.Get("date[end]"), true); err != nil {
		errs.Add("date.end", "date.end must be a date or RFC 3339 timestamp")
	}
	return f, errs
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, errs := parseListFilter(q)
	if !errs.Empty() {
		httputil.WriteValidationError(w, errs)
		return
	}

	var videos []SimpleVideo
	var err error
	if q.Get("category") == "shared" {
		var p auth.Principal
		if p, err = h.principal(r.Context()); err != nil {
			principalError(w, err)
			return
		}
		videos, err = h.store.FindShared(r.Context(), p, filter)
	} else {
		videos, err = h.store.FindMine(r.Context(), auth.UserIDFromContext(r.Context()), filter)
	}
	if err != nil {
		writeStoreError(w, err, "failed to list videos")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, videos)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}

	p, err := h.principal(r.Context())
	if err != nil {
		principalError(w, err)
		return
	}

	v, err := h.store.Show(r.Context(), id, p)
	if err != nil {
		writeStoreError(w, err, "failed to load video")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}
