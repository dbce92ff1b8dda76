package video

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/screen3/screen3/internal/auth"
)

const (
	testVideoID   = "6f1f7a4e-4e0b-4c4f-9d0a-6f7d0d3b2a11"
	testCreatorID = "0b8a4d8e-0d57-4f2e-9a8c-25d7d6d0f0c3"
)

var videoColumnNames = []string{
	"id", "space_id", "creator_id", "creator_name", "bucket", "storage_id", "title", "description",
	"comments_count", "tags", "duration", "image_thumbnail_url", "url", "video_thumbnail_url",
	"summary", "transcription", "guest_access", "created_at",
}

var testCreatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func videoRows(id string) *pgxmock.Rows {
	return pgxmock.NewRows(videoColumnNames).AddRow(
		id, "", testCreatorID, "Alice Doe", "screen3", "video_abc", "Demo", "A demo",
		0, []byte(`[{"id":"t1","title":"work","color":"#ff0000"}]`), 42.5, "", DefaultPlaybackURL("video_abc"), "",
		"", []byte(`[]`), "view", testCreatedAt,
	)
}

func collaboratorRows(rows ...[4]string) *pgxmock.Rows {
	r := pgxmock.NewRows([]string{"kind", "ref", "name", "access"})
	for _, row := range rows {
		r.AddRow(row[0], row[1], row[2], row[3])
	}
	return r
}

func expectCollaborators(mock pgxmock.PgxPoolIface, id string, rows ...[4]string) {
	mock.ExpectQuery(`SELECT kind, ref, name, access FROM video_collaborators WHERE video_id`).
		WithArgs(id).
		WillReturnRows(collaboratorRows(rows...))
}

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("create pgxmock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewStore(mock), mock
}

func TestStoreCreate_DefaultsPlaybackURL(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO videos AS v`).
		WithArgs("", testCreatorID, "Alice Doe", "screen3", "video_abc", "Demo", "A demo",
			`[]`, 0.0, DefaultPlaybackURL("video_abc"), "", "").
		WillReturnRows(videoRows(testVideoID))

	v, err := store.Create(context.Background(), NewVideo{
		Creator:     Creator{ID: testCreatorID, Name: "Alice Doe"},
		Bucket:      "screen3",
		StorageID:   "video_abc",
		Title:       "Demo",
		Description: "A demo",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.ID != testVideoID || v.Creator.Name != "Alice Doe" {
		t.Errorf("unexpected video: %+v", v)
	}
	if len(v.Tags) != 1 || v.Tags[0].Color != "#ff0000" {
		t.Errorf("unexpected tags: %+v", v.Tags)
	}
	if v.Collaborators.Guests != AccessView || v.Collaborators.Users == nil {
		t.Errorf("unexpected collaborators: %+v", v.Collaborators)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet mock expectations: %v", err)
	}
}

func TestStoreUpdate_BuildsScopedUpdate(t *testing.T) {
	store, mock := newMockStore(t)

	title := "Renamed"
	duration := 10.0
	mock.ExpectQuery(`UPDATE videos AS v SET title = \$1, duration = \$2, updated_at = now\(\) WHERE v.id = \$3 AND v.creator_id = \$4 RETURNING`).
		WithArgs("Renamed", 10.0, testVideoID, testCreatorID).
		WillReturnRows(videoRows(testVideoID))
	expectCollaborators(mock, testVideoID,
		[4]string{"email", "bob@example.com", "", "comment"},
		[4]string{"user", "user-2", "Carol", "view"},
	)

	v, err := store.Update(context.Background(), testVideoID, testCreatorID, Patch{Title: &title, Duration: &duration})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v.Collaborators.Emails) != 1 || v.Collaborators.Emails[0].Email != "bob@example.com" {
		t.Errorf("unexpected emails: %+v", v.Collaborators.Emails)
	}
	if len(v.Collaborators.Users) != 1 || v.Collaborators.Users[0].Name != "Carol" {
		t.Errorf("unexpected users: %+v", v.Collaborators.Users)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet mock expectations: %v", err)
	}
}

func TestStoreUpdate_EmptyPatchReads(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM videos v WHERE v.id = \$1 AND v.creator_id = \$2`).
		WithArgs(testVideoID, testCreatorID).
		WillReturnRows(videoRows(testVideoID))
	expectCollaborators(mock, testVideoID)

	if _, err := store.Update(context.Background(), testVideoID, testCreatorID, Patch{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet mock expectations: %v", err)
	}
}

func TestStoreUpdate_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	summary := "notes"
	mock.ExpectQuery(`UPDATE videos AS v SET summary`).
		WithArgs("notes", testVideoID, "someone-else").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.Update(context.Background(), testVideoID, "someone-else", Patch{Summary: &summary})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreUpdate_EncodesTranscription(t *testing.T) {
	store, mock := newMockStore(t)

	segments := []TranscriptSegment{{ID: 0, Seek: 0, Start: 0, End: 1.5, Text: "hi"}}
	mock.ExpectQuery(`UPDATE videos AS v SET transcription = \$1`).
		WithArgs(`[{"id":0,"seek":0,"start":0,"end":1.5,"text":"hi"}]`, testVideoID, testCreatorID).
		WillReturnRows(videoRows(testVideoID))
	expectCollaborators(mock, testVideoID)

	if _, err := store.Update(context.Background(), testVideoID, testCreatorID, Patch{Transcription: &segments}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet mock expectations: %v", err)
	}
}

func TestStoreShow_UsesPrincipal(t *testing.T) {
	store, mock := newMockStore(t)

	p := auth.Principal{ID: "user-2", Email: "bob@example.com", SpaceIDs: []string{"space-1"}}
	mock.ExpectQuery(`WHERE v.id = \$4 AND \(v.creator_id::text = \$1 OR EXISTS`).
		WithArgs("user-2", "bob@example.com", []string{"space-1"}, testVideoID).
		WillReturnRows(videoRows(testVideoID))
	expectCollaborators(mock, testVideoID, [4]string{"space", "space-1", "Team", "view"})

	v, err := store.Show(context.Background(), testVideoID, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v.Collaborators.Spaces) != 1 || v.Collaborators.Spaces[0].Name != "Team" {
		t.Errorf("unexpected spaces: %+v", v.Collaborators.Spaces)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet mock expectations: %v", err)
	}
}

func TestStoreShow_NotVisible(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM videos v`).
		WithArgs("user-2", "bob@example.com", []string{}, testVideoID).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.Show(context.Background(), testVideoID, auth.Principal{ID: "user-2", Email: "bob@example.com"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func simpleRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "title", "bucket", "storage_id", "description",
		"video_thumbnail_url", "image_thumbnail_url", "url", "duration", "created_at"}).
		AddRow(testVideoID, "Demo", "screen3", "video_abc", "", "", "", "", 1.0, testCreatedAt)
}

func TestStoreFindMine_Filters(t *testing.T) {
	store, mock := newMockStore(t)

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC)
	mock.ExpectQuery(`WHERE v.creator_id = \$1 AND EXISTS \(SELECT 1 FROM jsonb_array_elements\(v.tags\) t WHERE t->>'id' = ANY\(\$2\)\) AND v.created_at >= \$3 AND v.created_at <= \$4 ORDER BY v.created_at DESC`).
		WithArgs(testCreatorID, []string{"t1", "t2"}, from, to).
		WillReturnRows(simpleRows())

	videos, err := store.FindMine(context.Background(), testCreatorID, ListFilter{Tags: []string{"t1", "t2"}, From: &from, To: &to})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(videos) != 1 || videos[0].Title != "Demo" {
		t.Errorf("unexpected videos: %+v", videos)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet mock expectations: %v", err)
	}
}

func TestStoreFindShared_ExcludesOwn(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`WHERE v.creator_id::text <> \$1 AND EXISTS`).
		WithArgs("user-2", "bob@example.com", []string{"space-1"}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "title", "bucket", "storage_id", "description",
			"video_thumbnail_url", "image_thumbnail_url", "url", "duration", "created_at"}))

	videos, err := store.FindShared(context.Background(),
		auth.Principal{ID: "user-2", Email: "bob@example.com", SpaceIDs: []string{"space-1"}}, ListFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if videos == nil || len(videos) != 0 {
		t.Errorf("expected empty non-nil list, got %#v", videos)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet mock expectations: %v", err)
	}
}

func TestStoreOwns(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM videos WHERE id = \$1 AND creator_id = \$2\)`).
		WithArgs(testVideoID, testCreatorID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := store.Owns(context.Background(), testVideoID, testCreatorID)
	if err != nil || !ok {
		t.Errorf("expected ownership, got %v %v", ok, err)
	}
}

func TestStoreSetCollaborators_ReplacesInTransaction(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE videos SET guest_access`).
		WithArgs("none", testVideoID, testCreatorID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`DELETE FROM video_collaborators WHERE video_id`).
		WithArgs(testVideoID).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`INSERT INTO video_collaborators`).
		WithArgs(testVideoID, "user", "user-2", "Carol Doe", "comment").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO video_collaborators`).
		WithArgs(testVideoID, "email", "bob@example.com", "", "view").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()
	mock.ExpectQuery(`SELECT .+ FROM videos v WHERE v.id = \$1 AND v.creator_id = \$2`).
		WithArgs(testVideoID, testCreatorID).
		WillReturnRows(videoRows(testVideoID))
	expectCollaborators(mock, testVideoID)

	_, err := store.SetCollaborators(context.Background(), testVideoID, testCreatorID, Collaborators{
		Users:  []NamedCollaborator{{ID: "user-2", Name: "Carol Doe", Access: AccessComment}},
		Emails: []EmailCollaborator{{Email: "bob@example.com", Access: AccessView}},
		Guests: AccessNone,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet mock expectations: %v", err)
	}
}

func TestStoreSetCollaborators_NotOwnerRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE videos SET guest_access`).
		WithArgs("view", testVideoID, "someone-else").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()
	mock.ExpectRollback()

	_, err := store.SetCollaborators(context.Background(), testVideoID, "someone-else", Collaborators{Guests: AccessView})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet mock expectations: %v", err)
	}
}
