package validate

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
)

// Text field length limits.
const (
	MaxTitleLength       = 500
	MaxDescriptionLength = 5000
	MaxTagTitleLength    = 50
	MaxNameLength        = 100
	MaxSpaceNameLength   = 100
	MaxStorageIDLength   = 200
	MaxTagsPerVideo      = 50
)

var hexColor = regexp.MustCompile(`^#[A-Fa-f0-9]{6}`)

func checkLen(value string, max int, field string) string {
	if len(value) > max {
		return fmt.Sprintf("%s must be %d characters or fewer", field, max)
	}
	return ""
}

func Title(s string) string       { return checkLen(s, MaxTitleLength, "title") }
func Description(s string) string { return checkLen(s, MaxDescriptionLength, "description") }
func TagTitle(s string) string    { return checkLen(s, MaxTagTitleLength, "tag title") }
func Name(s string) string        { return checkLen(s, MaxNameLength, "name") }
func SpaceName(s string) string   { return checkLen(s, MaxSpaceNameLength, "space name") }
func StorageID(s string) string   { return checkLen(s, MaxStorageIDLength, "storageId") }

// URI accepts absolute http(s) URLs only.
func URI(s, field string) string {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Sprintf("%s must be a valid URI", field)
	}
	return ""
}

func HexColor(s string) string {
	if !hexColor.MatchString(s) {
		return "color must be a hex color (e.g. #ff0000)"
	}
	return ""
}

func Email(s string) string {
	if _, err := mail.ParseAddress(s); err != nil {
		return "invalid email address"
	}
	return ""
}

// Access accepts the collaborator access levels.
func Access(s string) string {
	switch s {
	case "comment", "view", "none":
		return ""
	}
	return "access must be one of comment, view, none"
}

// Errors collects field-level messages. Empty messages are ignored so
// callers can pass helper results straight through.
type Errors map[string]string

func (e Errors) Add(field, msg string) {
	if msg == "" {
		return
	}
	if _, exists := e[field]; exists {
		return
	}
	e[field] = msg
}

func (e Errors) Empty() bool { return len(e) == 0 }
