package video

import (
	"fmt"
	"time"
)

type CollaboratorAccess string

const (
	AccessComment CollaboratorAccess = "comment"
	AccessView    CollaboratorAccess = "view"
	AccessNone    CollaboratorAccess = "none"
)

func (a CollaboratorAccess) Valid() bool {
	switch a {
	case AccessComment, AccessView, AccessNone:
		return true
	}
	return false
}

type Tag struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Color string `json:"color"`
}

type Creator struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TranscriptSegment is one segment of a verbose_json transcription.
type TranscriptSegment struct {
	ID    int     `json:"id"`
	Seek  int     `json:"seek"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type NamedCollaborator struct {
	ID     string             `json:"id"`
	Name   string             `json:"name"`
	Access CollaboratorAccess `json:"access"`
}

type EmailCollaborator struct {
	Email  string             `json:"email"`
	Access CollaboratorAccess `json:"access"`
}

type Collaborators struct {
	Spaces []NamedCollaborator `json:"spaces"`
	Users  []NamedCollaborator `json:"users"`
	Emails []EmailCollaborator `json:"emails"`
	Guests CollaboratorAccess  `json:"guests"`
}

type Video struct {
	ID                string              `json:"id"`
	SpaceID           string              `json:"spaceId,omitempty"`
	Creator           Creator             `json:"creator"`
	Bucket            string              `json:"bucket,omitempty"`
	StorageID         string              `json:"storageId,omitempty"`
	Title             string              `json:"title,omitempty"`
	Description       string              `json:"description,omitempty"`
	CommentsCount     int                 `json:"commentsCount"`
	Tags              []Tag               `json:"tags"`
	Duration          float64             `json:"duration"`
	ImageThumbnailURL string              `json:"imageThumbnailUrl,omitempty"`
	URL               string              `json:"url,omitempty"`
	VideoThumbnailURL string              `json:"videoThumbnailUrl,omitempty"`
	Summary           string              `json:"summary,omitempty"`
	Transcription     []TranscriptSegment `json:"transcription,omitempty"`
	Collaborators     Collaborators       `json:"collaborators"`
	CreatedAt         time.Time           `json:"createdAt"`
}

// SimpleVideo is the list projection of a Video.
type SimpleVideo struct {
	ID                string    `json:"id"`
	Title             string    `json:"title,omitempty"`
	Bucket            string    `json:"bucket,omitempty"`
	StorageID         string    `json:"storageId,omitempty"`
	Description       string    `json:"description,omitempty"`
	VideoThumbnailURL string    `json:"videoThumbnailUrl,omitempty"`
	ImageThumbnailURL string    `json:"imageThumbnailUrl,omitempty"`
	URL               string    `json:"url,omitempty"`
	Duration          float64   `json:"duration"`
	CreatedAt         time.Time `json:"createdAt"`
}

type NewVideo struct {
	SpaceID           string
	Creator           Creator
	Bucket            string
	StorageID         string
	Title             string
	Description       string
	Duration          float64
	URL               string
	VideoThumbnailURL string
	ImageThumbnailURL string
	Tags              []Tag
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	SpaceID           *string
	Title             *string
	Bucket            *string
	StorageID         *string
	Description       *string
	Duration          *float64
	URL               *string
	VideoThumbnailURL *string
	ImageThumbnailURL *string
	Summary           *string
	Tags              *[]Tag
	Transcription     *[]TranscriptSegment
}

func (p Patch) Empty() bool {
	return p == Patch{}
}

// ListFilter narrows a video listing. To is inclusive.
type ListFilter struct {
	Tags []string
	From *time.Time
	To   *time.Time
}

// DefaultPlaybackURL is the Theta HLS manifest for a storage id.
func DefaultPlaybackURL(storageID string) string {
	return fmt.Sprintf("https://media.thetavideoapi.com/%s/master.m3u8", storageID)
}
