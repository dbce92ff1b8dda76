package space

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/screen3/screen3/internal/auth"
	"github.com/screen3/screen3/internal/httputil"
	"github.com/screen3/screen3/internal/validate"
)

type addMemberRequest struct {
	Email string `json:"email"`
}

type memberResponse struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	spaceID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(spaceID); err != nil {
		httputil.WriteError(w, http.StatusNotFound, "space not found")
		return
	}

	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if msg := validate.Email(email); msg != "" {
		httputil.WriteValidationError(w, map[string]string{"email": msg})
		return
	}

	var role string
	err := h.db.QueryRow(r.Context(),
		`SELECT role FROM space_members WHERE space_id = $1 AND user_id = $2`,
		spaceID, userID,
	).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httputil.WriteError(w, http.StatusNotFound, "space not found")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "failed to verify membership")
		return
	}
	if role != RoleOwner {
		httputil.WriteError(w, http.StatusForbidden, "only the owner can add members")
		return
	}

	resp := memberResponse{Email: email, Role: RoleMember}
	if err := h.db.QueryRow(r.Context(),
		`SELECT id FROM users WHERE email = $1`, email,
	).Scan(&resp.UserID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httputil.WriteError(w, http.StatusNotFound, "user not found")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "failed to look up user")
		return
	}

	if _, err := h.db.Exec(r.Context(),
		`INSERT INTO space_members (space_id, user_id, role) VALUES ($1, $2, 'member')`,
		spaceID, resp.UserID,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			httputil.WriteError(w, http.StatusConflict, "user is already a member")
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "failed to add member")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, resp)
}
