// Package logging records snapshot provenance: one row per persisted
// field snapshot, so operators can reconstruct when and why learned
// state was written.
package logging

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// #region snapshot-entry
// SnapshotEntry is a single row in the snapshot_log table.
type SnapshotEntry struct {
	SnapshotID   string
	Tick         uint64
	TriggerType  string // "cadence" | "shutdown" | "reconnect" | "manual"
	LiveContexts int
	Degraded     bool
	CreatedAt    time.Time
}

// #endregion snapshot-entry

// #region log-snapshot
// LogSnapshot writes a provenance entry and returns the snapshot ID.
// An empty SnapshotID gets a fresh uuid.
func LogSnapshot(db *sql.DB, entry SnapshotEntry) (string, error) {
	if entry.SnapshotID == "" {
		entry.SnapshotID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO snapshot_log (snapshot_id, tick, trigger_type, live_contexts, degraded, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.SnapshotID,
		entry.Tick,
		entry.TriggerType,
		entry.LiveContexts,
		boolToInt(entry.Degraded),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("log snapshot: %w", err)
	}
	return entry.SnapshotID, nil
}

// #endregion log-snapshot

// #region list-snapshots
// ListSnapshots returns the most recent provenance rows, newest first.
func ListSnapshots(db *sql.DB, limit int) ([]SnapshotEntry, error) {
	rows, err := db.Query(
		`SELECT snapshot_id, tick, trigger_type, live_contexts, degraded, created_at
		 FROM snapshot_log ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var entries []SnapshotEntry
	for rows.Next() {
		var e SnapshotEntry
		var degraded int
		var createdStr string
		if err := rows.Scan(&e.SnapshotID, &e.Tick, &e.TriggerType, &e.LiveContexts, &degraded, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		e.Degraded = degraded != 0
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// #endregion list-snapshots

// #region helpers
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers
