// Package space manages team workspaces that videos can be shared with.
package space

import (
	"github.com/screen3/screen3/internal/database"
)

const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

type Handler struct {
	db database.DBTX
}

func NewHandler(db database.DBTX) *Handler {
	return &Handler{db: db}
}
