package auth

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mssola/useragent"
	"github.com/screen3/screen3/internal/httputil"
)

type sessionItem struct {
	ID        string    `json:"id"`
	Device    string    `json:"device"`
	Country   string    `json:"country"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	rows, err := h.db.Query(r.Context(),
		`SELECT token_id, device, country, created_at, expires_at FROM refresh_tokens
		 WHERE user_id = $1 AND revoked = false AND expires_at > now()
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	defer rows.Close()

	items := []sessionItem{}
	for rows.Next() {
		var s sessionItem
		if err := rows.Scan(&s.ID, &s.Device, &s.Country, &s.CreatedAt, &s.ExpiresAt); err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, "failed to list sessions")
			return
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) describeClient(r *http.Request) (device, country string) {
	if r == nil {
		return "", ""
	}
	device = deviceLabel(r.UserAgent())
	if h.locator != nil {
		country, _ = h.locator.Lookup(ClientIP(r))
	}
	return device, country
}

// deviceLabel renders a user agent as "Browser on OS", e.g. "Firefox on Linux".
func deviceLabel(userAgent string) string {
	if userAgent == "" {
		return ""
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		name, _ := ua.Browser()
		return "bot " + name
	}
	browser, _ := ua.Browser()
	label := browser
	if os := ua.OSInfo().Name; os != "" {
		label += " on " + os
	}
	if ua.Mobile() {
		label += " (mobile)"
	}
	return strings.TrimSpace(label)
}

// ClientIP returns the first X-Forwarded-For hop, falling back to the
// connection address without its port.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
