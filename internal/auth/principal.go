package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/screen3/screen3/internal/database"
	"github.com/screen3/screen3/internal/httputil"
)

var ErrUserNotFound = errors.New("user not found")

// Principal is the authenticated caller as seen by access checks.
type Principal struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	FullName string   `json:"fullName"`
	Type     string   `json:"type"`
	SpaceIDs []string `json:"spaceIds"`
}

func LoadPrincipal(ctx context.Context, db database.DBTX, userID string) (Principal, error) {
	var p Principal
	var firstname, lastname string
	err := db.QueryRow(ctx,
		"SELECT id, email, firstname, lastname, type FROM users WHERE id = $1", userID,
	).Scan(&p.ID, &p.Email, &firstname, &lastname, &p.Type)
	if errors.Is(err, pgx.ErrNoRows) {
		return Principal{}, ErrUserNotFound
	}
	if err != nil {
		return Principal{}, fmt.Errorf("load user: %w", err)
	}
	p.FullName = fullName(firstname, lastname)

	rows, err := db.Query(ctx, "SELECT space_id FROM space_members WHERE user_id = $1", userID)
	if err != nil {
		return Principal{}, fmt.Errorf("load spaces: %w", err)
	}
	defer rows.Close()

	p.SpaceIDs = []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return Principal{}, fmt.Errorf("scan space: %w", err)
		}
		p.SpaceIDs = append(p.SpaceIDs, id)
	}
	if err := rows.Err(); err != nil {
		return Principal{}, fmt.Errorf("iterate spaces: %w", err)
	}
	return p, nil
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, err := LoadPrincipal(r.Context(), h.db, UserIDFromContext(r.Context()))
	if errors.Is(err, ErrUserNotFound) {
		httputil.WriteError(w, http.StatusUnauthorized, "user not found")
		return
	}
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}
