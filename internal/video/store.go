package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/screen3/screen3/internal/auth"
	"github.com/screen3/screen3/internal/database"
)

var ErrNotFound = errors.New("video not found")

// DB is a DBTX that can also open transactions.
type DB interface {
	database.DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	return &Store{db: db}
}

const videoColumns = `v.id, COALESCE(v.space_id, ''), v.creator_id, v.creator_name,
	COALESCE(v.bucket, ''), COALESCE(v.storage_id, ''), COALESCE(v.title, ''), COALESCE(v.description, ''),
	v.comments_count, v.tags, v.duration, COALESCE(v.image_thumbnail_url, ''), COALESCE(v.url, ''),
	COALESCE(v.video_thumbnail_url, ''), COALESCE(v.summary, ''), COALESCE(v.transcription, '[]'::jsonb),
	v.guest_access, v.created_at`

const simpleColumns = `v.id, COALESCE(v.title, ''), COALESCE(v.bucket, ''), COALESCE(v.storage_id, ''),
	COALESCE(v.description, ''), COALESCE(v.video_thumbnail_url, ''), COALESCE(v.image_thumbnail_url, ''),
	COALESCE(v.url, ''), v.duration, v.created_at`

// sharedWith matches collaborator rows granting the caller access. It
// expects the user id, e-mail and space ids as $1, $2 and $3.
const sharedWith = `EXISTS (
	SELECT 1 FROM video_collaborators c
	WHERE c.video_id = v.id AND c.access <> 'none'
	  AND ((c.kind = 'user' AND c.ref = $1)
	    OR (c.kind = 'email' AND c.ref = $2)
	    OR (c.kind = 'space' AND c.ref = ANY($3))))`

func scanVideo(row pgx.Row) (Video, error) {
	var v Video
	var tags, transcription []byte
	var guests string
	err := row.Scan(&v.ID, &v.SpaceID, &v.Creator.ID, &v.Creator.Name,
		&v.Bucket, &v.StorageID, &v.Title, &v.Description,
		&v.CommentsCount, &tags, &v.Duration, &v.ImageThumbnailURL, &v.URL,
		&v.VideoThumbnailURL, &v.Summary, &transcription,
		&guests, &v.CreatedAt)
	if err != nil {
		return Video{}, err
	}
	v.Tags = []Tag{}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &v.Tags); err != nil {
			return Video{}, fmt.Errorf("decode tags: %w", err)
		}
	}
	if len(transcription) > 0 {
		if err := json.Unmarshal(transcription, &v.Transcription); err != nil {
			return Video{}, fmt.Errorf("decode transcription: %w", err)
		}
	}
	v.Collaborators = Collaborators{
		Spaces: []NamedCollaborator{},
		Users:  []NamedCollaborator{},
		Emails: []EmailCollaborator{},
		Guests: CollaboratorAccess(guests),
	}
	return v, nil
}

func (s *Store) Create(ctx context.Context, in NewVideo) (Video, error) {
	if in.URL == "" && in.StorageID != "" {
		in.URL = DefaultPlaybackURL(in.StorageID)
	}
	if in.Tags == nil {
		in.Tags = []Tag{}
	}
	tags, err := json.Marshal(in.Tags)
	if err != nil {
		return Video{}, fmt.Errorf("encode tags: %w", err)
	}

	v, err := scanVideo(s.db.QueryRow(ctx,
		`INSERT INTO videos AS v (space_id, creator_id, creator_name, bucket, storage_id, title, description,
		     tags, duration, url, video_thumbnail_url, image_thumbnail_url, guest_access)
		 VALUES (NULLIF($1, ''), $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), NULLIF($7, ''),
		     $8, $9, NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''), 'view')
		 RETURNING `+videoColumns,
		in.SpaceID, in.Creator.ID, in.Creator.Name, in.Bucket, in.StorageID, in.Title, in.Description,
		string(tags), in.Duration, in.URL, in.VideoThumbnailURL, in.ImageThumbnailURL,
	))
	if err != nil {
		return Video{}, fmt.Errorf("insert video: %w", err)
	}
	return v, nil
}

func patchClauses(p Patch) ([]string, []any, error) {
	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if p.SpaceID != nil {
		add("space_id", *p.SpaceID)
	}
	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.Bucket != nil {
		add("bucket", *p.Bucket)
	}
	if p.StorageID != nil {
		add("storage_id", *p.StorageID)
	}
	if p.Description != nil {
		add("description", *p.Description)
	}
	if p.Duration != nil {
		add("duration", *p.Duration)
	}
	if p.URL != nil {
		add("url", *p.URL)
	}
	if p.VideoThumbnailURL != nil {
		add("video_thumbnail_url", *p.VideoThumbnailURL)
	}
	if p.ImageThumbnailURL != nil {
		add("image_thumbnail_url", *p.ImageThumbnailURL)
	}
	if p.Summary != nil {
		add("summary", *p.Summary)
	}
	if p.Tags != nil {
		tags := *p.Tags
		if tags == nil {
			tags = []Tag{}
		}
		b, err := json.Marshal(tags)
		if err != nil {
			return nil, nil, fmt.Errorf("encode tags: %w", err)
		}
		add("tags", string(b))
	}
	if p.Transcription != nil {
		b, err := json.Marshal(*p.Transcription)
		if err != nil {
			return nil, nil, fmt.Errorf("encode transcription: %w", err)
		}
		add("transcription", string(b))
	}
	return sets, args, nil
}

// Update applies p to the video id owned by creatorID and returns the
// result. An empty patch only reads the record.
func (s *Store) Update(ctx context.Context, id, creatorID string, p Patch) (Video, error) {
	sets, args, err := patchClauses(p)
	if err != nil {
		return Video{}, err
	}

	var row pgx.Row
	if len(sets) == 0 {
		row = s.db.QueryRow(ctx,
			`SELECT `+videoColumns+` FROM videos v WHERE v.id = $1 AND v.creator_id = $2`,
			id, creatorID,
		)
	} else {
		args = append(args, id, creatorID)
		query := fmt.Sprintf(
			`UPDATE videos AS v SET %s, updated_at = now() WHERE v.id = $%d AND v.creator_id = $%d RETURNING `+videoColumns,
			strings.Join(sets, ", "), len(args)-1, len(args),
		)
		row = s.db.QueryRow(ctx, query, args...)
	}

	v, err := scanVideo(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Video{}, ErrNotFound
	}
	if err != nil {
		return Video{}, fmt.Errorf("update video: %w", err)
	}
	if err := s.loadCollaborators(ctx, &v); err != nil {
		return Video{}, err
	}
	return v, nil
}

// Owns reports whether creatorID created the video id.
func (s *Store) Owns(ctx context.Context, id, creatorID string) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM videos WHERE id = $1 AND creator_id = $2)`,
		id, creatorID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check owner: %w", err)
	}
	return ok, nil
}

// Show returns the video when p is its creator or a collaborator.
func (s *Store) Show(ctx context.Context, id string, p auth.Principal) (Video, error) {
	v, err := scanVideo(s.db.QueryRow(ctx,
		`SELECT `+videoColumns+` FROM videos v
		 WHERE v.id = $4 AND (v.creator_id::text = $1 OR `+sharedWith+`)`,
		p.ID, p.Email, spaceIDs(p), id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Video{}, ErrNotFound
	}
	if err != nil {
		return Video{}, fmt.Errorf("show video: %w", err)
	}
	if err := s.loadCollaborators(ctx, &v); err != nil {
		return Video{}, err
	}
	return v, nil
}

func (s *Store) FindMine(ctx context.Context, creatorID string, f ListFilter) ([]SimpleVideo, error) {
	return s.find(ctx, `v.creator_id = $1`, []any{creatorID}, f)
}

// FindShared lists videos created by someone else and shared with p.
func (s *Store) FindShared(ctx context.Context, p auth.Principal, f ListFilter) ([]SimpleVideo, error) {
	return s.find(ctx, `v.creator_id::text <> $1 AND `+sharedWith, []any{p.ID, p.Email, spaceIDs(p)}, f)
}

func (s *Store) find(ctx context.Context, where string, args []any, f ListFilter) ([]SimpleVideo, error) {
	conds := []string{where}
	if len(f.Tags) > 0 {
		args = append(args, f.Tags)
		conds = append(conds, fmt.Sprintf(
			`EXISTS (SELECT 1 FROM jsonb_array_elements(v.tags) t WHERE t->>'id' = ANY($%d))`, len(args)))
	}
	if f.From != nil {
		args = append(args, *f.From)
		conds = append(conds, fmt.Sprintf(`v.created_at >= $%d`, len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		conds = append(conds, fmt.Sprintf(`v.created_at <= $%d`, len(args)))
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+simpleColumns+` FROM videos v WHERE `+strings.Join(conds, " AND ")+` ORDER BY v.created_at DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	videos := []SimpleVideo{}
	for rows.Next() {
		var v SimpleVideo
		if err := rows.Scan(&v.ID, &v.Title, &v.Bucket, &v.StorageID, &v.Description,
			&v.VideoThumbnailURL, &v.ImageThumbnailURL, &v.URL, &v.Duration, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return videos, nil
}

func (s *Store) loadCollaborators(ctx context.Context, v *Video) error {
	rows, err := s.db.Query(ctx,
		`SELECT kind, ref, name, access FROM video_collaborators WHERE video_id = $1 ORDER BY kind, name, ref`,
		v.ID,
	)
	if err != nil {
		return fmt.Errorf("load collaborators: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, ref, name, access string
		if err := rows.Scan(&kind, &ref, &name, &access); err != nil {
			return fmt.Errorf("scan collaborator: %w", err)
		}
		switch kind {
		case "user":
			v.Collaborators.Users = append(v.Collaborators.Users, NamedCollaborator{ID: ref, Name: name, Access: CollaboratorAccess(access)})
		case "space":
			v.Collaborators.Spaces = append(v.Collaborators.Spaces, NamedCollaborator{ID: ref, Name: name, Access: CollaboratorAccess(access)})
		case "email":
			v.Collaborators.Emails = append(v.Collaborators.Emails, EmailCollaborator{Email: ref, Access: CollaboratorAccess(access)})
		}
	}
	return rows.Err()
}

// SetCollaborators replaces the collaborator set of a video owned by
// creatorID. Names of users and spaces must already be resolved.
func (s *Store) SetCollaborators(ctx context.Context, id, creatorID string, c Collaborators) (Video, error) {
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE videos SET guest_access = $1, updated_at = now() WHERE id = $2 AND creator_id = $3`,
			string(c.Guests), id, creatorID,
		)
		if err != nil {
			return fmt.Errorf("update guest access: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		if _, err := tx.Exec(ctx, `DELETE FROM video_collaborators WHERE video_id = $1`, id); err != nil {
			return fmt.Errorf("clear collaborators: %w", err)
		}

		insert := func(kind, ref, name string, access CollaboratorAccess) error {
			_, err := tx.Exec(ctx,
				`INSERT INTO video_collaborators (video_id, kind, ref, name, access) VALUES ($1, $2, $3, $4, $5)
				 ON CONFLICT (video_id, kind, ref) DO UPDATE SET name = EXCLUDED.name, access = EXCLUDED.access`,
				id, kind, ref, name, string(access),
			)
			if err != nil {
				return fmt.Errorf("insert %s collaborator: %w", kind, err)
			}
			return nil
		}
		for _, u := range c.Users {
			if err := insert("user", u.ID, u.Name, u.Access); err != nil {
				return err
			}
		}
		for _, sp := range c.Spaces {
			if err := insert("space", sp.ID, sp.Name, sp.Access); err != nil {
				return err
			}
		}
		for _, e := range c.Emails {
			if err := insert("email", e.Email, "", e.Access); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Video{}, err
	}
	return s.Update(ctx, id, creatorID, Patch{})
}

func spaceIDs(p auth.Principal) []string {
	if p.SpaceIDs == nil {
		return []string{}
	}
	return p.SpaceIDs
}
