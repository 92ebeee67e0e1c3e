package logging

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// #region helpers
func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	_, err = db.Exec(`CREATE TABLE snapshot_log (
		snapshot_id   TEXT PRIMARY KEY,
		tick          INTEGER NOT NULL,
		trigger_type  TEXT NOT NULL,
		live_contexts INTEGER NOT NULL,
		degraded      INTEGER NOT NULL,
		created_at    TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

// #endregion helpers

// #region log-snapshot-tests
func TestLogSnapshot_Success(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	entry := SnapshotEntry{
		SnapshotID:   "snap-1",
		Tick:         4200,
		TriggerType:  "cadence",
		LiveContexts: 11,
		Degraded:     false,
		CreatedAt:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	id, err := LogSnapshot(db, entry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "snap-1" {
		t.Errorf("expected returned id 'snap-1', got %q", id)
	}

	var tick uint64
	var trigger string
	var degraded int
	db.QueryRow("SELECT tick, trigger_type, degraded FROM snapshot_log").Scan(&tick, &trigger, &degraded)
	if tick != 4200 {
		t.Errorf("expected tick 4200, got %d", tick)
	}
	if trigger != "cadence" {
		t.Errorf("expected trigger 'cadence', got %q", trigger)
	}
	if degraded != 0 {
		t.Errorf("expected degraded 0, got %d", degraded)
	}
}

func TestLogSnapshot_GeneratesID(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	before := time.Now().UTC()
	id, err := LogSnapshot(db, SnapshotEntry{Tick: 1, TriggerType: "shutdown", Degraded: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated snapshot id")
	}

	var createdAtStr string
	var degraded int
	db.QueryRow("SELECT created_at, degraded FROM snapshot_log").Scan(&createdAtStr, &degraded)
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		t.Fatalf("parse created_at: %v", err)
	}
	if createdAt.Before(before) {
		t.Error("expected auto-filled created_at to be >= test start time")
	}
	if degraded != 1 {
		t.Errorf("expected degraded 1, got %d", degraded)
	}
}

func TestLogSnapshot_Error(t *testing.T) {
	db := setupDB(t)
	db.Close() // close to force error

	_, err := LogSnapshot(db, SnapshotEntry{Tick: 1, TriggerType: "cadence"})
	if err == nil {
		t.Fatal("expected error on closed db")
	}
}

// #endregion log-snapshot-tests

// #region list-tests
func TestListSnapshots_NewestFirst(t *testing.T) {
	db := setupDB(t)
	defer db.Close()

	for i, trigger := range []string{"cadence", "cadence", "reconnect"} {
		_, err := LogSnapshot(db, SnapshotEntry{
			Tick:        uint64(i * 100),
			TriggerType: trigger,
			CreatedAt:   time.Date(2026, 3, 1, i, 0, 0, 0, time.UTC),
		})
		if err != nil {
			t.Fatalf("log %d: %v", i, err)
		}
	}

	entries, err := ListSnapshots(db, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].TriggerType != "reconnect" || entries[0].Tick != 200 {
		t.Errorf("expected newest row first, got %+v", entries[0])
	}
}

// #endregion list-tests
