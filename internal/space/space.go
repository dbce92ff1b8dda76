package space

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/screen3/screen3/internal/auth"
	"github.com/screen3/screen3/internal/httputil"
	"github.com/screen3/screen3/internal/validate"
)

type spaceResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	OwnerID   string `json:"ownerId"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
}

type spaceListItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	MemberCount int64  `json:"memberCount"`
}

type createSpaceRequest struct {
	Name string `json:"name"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req createSpaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	name := strings.TrimSpace(req.Name)
	errs := validate.Errors{}
	if name == "" {
		errs.Add("name", "space name is required")
	}
	errs.Add("name", validate.SpaceName(name))
	if !errs.Empty() {
		httputil.WriteValidationError(w, errs)
		return
	}

	resp := spaceResponse{Name: name, OwnerID: userID, Role: RoleOwner}
	var createdAt time.Time
	err := h.db.QueryRow(r.Context(),
		`WITH s AS (
		     INSERT INTO spaces (name, owner_id) VALUES ($1, $2) RETURNING id, created_at
		 ), m AS (
		     INSERT INTO space_members (space_id, user_id, role) SELECT id, $2, 'owner' FROM s
		 )
		 SELECT id, created_at FROM s`,
		name, userID,
	).Scan(&resp.ID, &createdAt)
	if err != nil {
		slog.Error("space: failed to create", "user_id", userID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to create space")
		return
	}
	resp.CreatedAt = createdAt.Format(time.RFC3339)

	httputil.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	rows, err := h.db.Query(r.Context(),
		`SELECT s.id, s.name, sm.role,
		        (SELECT COUNT(*) FROM space_members WHERE space_id = s.id) AS member_count
		 FROM spaces s
		 JOIN space_members sm ON sm.space_id = s.id
		 WHERE sm.user_id = $1
		 ORDER BY s.name`,
		userID,
	)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list spaces")
		return
	}
	defer rows.Close()

	items := make([]spaceListItem, 0)
	for rows.Next() {
		var item spaceListItem
		if err := rows.Scan(&item.ID, &item.Name, &item.Role, &item.MemberCount); err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "failed to scan space")
			return
		}
		items = append(items, item)
	}

	httputil.WriteJSON(w, http.StatusOK, items)
}
