package video

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/screen3/screen3/internal/auth"
	"github.com/screen3/screen3/internal/httputil"
	"github.com/screen3/screen3/internal/validate"
)

type accessRef struct {
	ID     string             `json:"id"`
	Access CollaboratorAccess `json:"access"`
}

type emailRef struct {
	Email  string             `json:"email"`
	Access CollaboratorAccess `json:"access"`
}

type collaboratorsRequest struct {
	Users  []accessRef         `json:"users"`
	Emails []emailRef          `json:"emails"`
	Spaces []accessRef         `json:"spaces"`
	Guests *CollaboratorAccess `json:"guests"`
}

func (req *collaboratorsRequest) validate() validate.Errors {
	errs := validate.Errors{}
	checkRefs := func(field string, refs []accessRef) {
		for i, ref := range refs {
			prefix := field + "." + strconv.Itoa(i)
			if _, err := uuid.Parse(ref.ID); err != nil {
				errs.Add(prefix+".id", "id must be a uuid")
			}
			errs.Add(prefix+".access", validate.Access(string(ref.Access)))
		}
	}
	checkRefs("users", req.Users)
	checkRefs("spaces", req.Spaces)
	for i, e := range req.Emails {
		prefix := "emails." + strconv.Itoa(i)
		errs.Add(prefix+".email", validate.Email(e.Email))
		errs.Add(prefix+".access", validate.Access(string(e.Access)))
	}
	if req.Guests != nil {
		errs.Add("guests", validate.Access(string(*req.Guests)))
	}
	return errs
}

// resolveNames maps each id to the display name returned by query.
func (h *Handler) resolveNames(ctx context.Context, query string, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	rows, err := h.db.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}

func refIDs(refs []accessRef) []string {
	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		ids = append(ids, r.ID)
	}
	return ids
}

func named(field string, refs []accessRef, names map[string]string, errs validate.Errors) []NamedCollaborator {
	out := make([]NamedCollaborator, 0, len(refs))
	for i, r := range refs {
		name, ok := names[r.ID]
		if !ok {
			errs.Add(fmt.Sprintf("%s.%d.id", field, i), field+" entry not found")
			continue
		}
		out = append(out, NamedCollaborator{ID: r.ID, Name: name, Access: r.Access})
	}
	return out
}

func (h *Handler) SetCollaborators(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}

	var req collaboratorsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for i := range req.Users {
		req.Users[i].ID = strings.ToLower(strings.TrimSpace(req.Users[i].ID))
	}
	for i := range req.Spaces {
		req.Spaces[i].ID = strings.ToLower(strings.TrimSpace(req.Spaces[i].ID))
	}
	for i := range req.Emails {
		req.Emails[i].Email = strings.ToLower(strings.TrimSpace(req.Emails[i].Email))
	}
	if errs := req.validate(); !errs.Empty() {
		httputil.WriteValidationError(w, errs)
		return
	}

	ctx := r.Context()
	creatorID := auth.UserIDFromContext(ctx)

	owns, err := h.store.Owns(ctx, id, creatorID)
	if err != nil {
		writeStoreError(w, err, "failed to update collaborators")
		return
	}
	if !owns {
		httputil.WriteError(w, http.StatusNotFound, "video not found")
		return
	}

	userNames, err := h.resolveNames(ctx,
		`SELECT id::text, firstname || ' ' || lastname FROM users WHERE id::text = ANY($1)`,
		refIDs(req.Users))
	if err != nil {
		writeStoreError(w, fmt.Errorf("resolve users: %w", err), "failed to update collaborators")
		return
	}
	spaceNames, err := h.resolveNames(ctx,
		`SELECT id::text, name FROM spaces WHERE id::text = ANY($1)`,
		refIDs(req.Spaces))
	if err != nil {
		writeStoreError(w, fmt.Errorf("resolve spaces: %w", err), "failed to update collaborators")
		return
	}

	errs := validate.Errors{}
	c := Collaborators{
		Users:  named("users", req.Users, userNames, errs),
		Spaces: named("spaces", req.Spaces, spaceNames, errs),
		Emails: make([]EmailCollaborator, 0, len(req.Emails)),
		Guests: AccessView,
	}
	if !errs.Empty() {
		httputil.WriteValidationError(w, errs)
		return
	}
	for _, e := range req.Emails {
		c.Emails = append(c.Emails, EmailCollaborator{Email: e.Email, Access: e.Access})
	}
	if req.Guests != nil {
		c.Guests = *req.Guests
	}

	v, err := h.store.SetCollaborators(ctx, id, creatorID, c)
	if err != nil {
		writeStoreError(w, err, "failed to update collaborators")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}
