// internal/database/db_test.go
package database

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

func TestDatabase(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	t.Run("UpsertAndGet", func(t *testing.T) {
		row := &SessionRow{
			SessionID:        "session-1",
			WorkingDirectory: "/home/user/project",
			State:            "active",
			CreatedAt:        time.Now().Add(-time.Hour),
			CheckpointCount:  2,
			TotalBytes:       4096,
		}
		if err := db.UpsertSession(row); err != nil {
			t.Fatalf("UpsertSession failed: %v", err)
		}

		got, err := db.GetSession("session-1")
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if got.WorkingDirectory != "/home/user/project" || got.CheckpointCount != 2 || got.TotalBytes != 4096 {
			t.Errorf("Unexpected row: %+v", got)
		}
		if got.ClosedAt != nil {
			t.Error("Expected nil closedAt for active session")
		}
	})

	t.Run("UpsertReplaces", func(t *testing.T) {
		closed := time.Now()
		row := &SessionRow{
			SessionID:        "session-1",
			WorkingDirectory: "/home/user/project",
			State:            "closed",
			CreatedAt:        time.Now().Add(-time.Hour),
			ClosedAt:         &closed,
			CheckpointCount:  3,
			TotalBytes:       8192,
		}
		if err := db.UpsertSession(row); err != nil {
			t.Fatal(err)
		}

		got, err := db.GetSession("session-1")
		if err != nil {
			t.Fatal(err)
		}
		if got.State != "closed" || got.ClosedAt == nil || got.CheckpointCount != 3 {
			t.Errorf("Expected replaced row, got %+v", got)
		}
	})

	t.Run("ListSessions", func(t *testing.T) {
		if err := db.UpsertSession(&SessionRow{
			SessionID:        "session-2",
			WorkingDirectory: "/tmp/other",
			State:            "active",
			CreatedAt:        time.Now(),
		}); err != nil {
			t.Fatal(err)
		}

		sessions, err := db.ListSessions()
		if err != nil {
			t.Fatalf("ListSessions failed: %v", err)
		}
		if len(sessions) != 2 {
			t.Errorf("Expected 2 sessions, got %d", len(sessions))
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		if _, err := db.GetSession("nope"); err != sql.ErrNoRows {
			t.Errorf("Expected sql.ErrNoRows, got %v", err)
		}
	})
}
