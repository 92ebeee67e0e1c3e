// Package store persists the coherence field to SQLite: one row per
// visited context, the current mixing matrix, and a tick marker so a
// restart resumes exactly where the last snapshot left off.
package store

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/coherence-field/go-companion/internal/contextkey"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/field"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/mixer"
	"github.com/danielpatrickdp/coherence-field/go-companion/internal/sense"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS context_accumulators (
	context_index     INTEGER PRIMARY KEY,
	context_hash      TEXT NOT NULL,
	light             TEXT NOT NULL,
	noise             TEXT NOT NULL,
	proximity         TEXT NOT NULL,
	social            TEXT NOT NULL,
	interaction_count INTEGER NOT NULL,
	experience_score  REAL NOT NULL,
	habituation       BLOB NOT NULL,
	last_tick         INTEGER NOT NULL,
	updated_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS mixing_matrix (
	id           INTEGER PRIMARY KEY CHECK (id = 1),
	contexts     TEXT NOT NULL,
	weights      BLOB NOT NULL,
	computed_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS field_meta (
	id        INTEGER PRIMARY KEY CHECK (id = 1),
	tick      INTEGER NOT NULL,
	saved_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot_log (
	snapshot_id    TEXT PRIMARY KEY,
	tick           INTEGER NOT NULL,
	trigger_type   TEXT NOT NULL,
	live_contexts  INTEGER NOT NULL,
	degraded       INTEGER NOT NULL,
	created_at     TEXT NOT NULL
);
`

// #endregion schema

// #region store-struct
// Store manages persisted field state in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion close

// #region save-snapshot
// SaveSnapshot writes every visited accumulator, the tick marker, and,
// when m is non-nil, the mixing matrix in one transaction, so a reload
// can never observe half a snapshot or a matrix computed from different
// accumulators than the ones stored beside it.
func (s *Store) SaveSnapshot(snap *field.Snapshot, m *mixer.Matrix) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO context_accumulators
		 (context_index, context_hash, light, noise, proximity, social,
		  interaction_count, experience_score, habituation, last_tick, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(context_index) DO UPDATE SET
		  interaction_count = excluded.interaction_count,
		  experience_score  = excluded.experience_score,
		  habituation       = excluded.habituation,
		  last_tick         = excluded.last_tick,
		  updated_at        = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i := range snap.Cells {
		cell := &snap.Cells[i]
		if !cell.Visited {
			continue
		}
		key := contextkey.FromIndex(i)
		light, noise, proximity, social := key.BandNames()
		_, err = stmt.Exec(
			i, fmt.Sprintf("%08x", key.Hash()), light, noise, proximity, social,
			cell.Count, cell.Score, encodeHabituation(cell.Habituation), cell.LastTick, now,
		)
		if err != nil {
			return fmt.Errorf("upsert context %d: %w", i, err)
		}
	}

	_, err = tx.Exec(
		`INSERT INTO field_meta (id, tick, saved_at) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET tick = excluded.tick, saved_at = excluded.saved_at`,
		snap.Tick, now,
	)
	if err != nil {
		return fmt.Errorf("update meta: %w", err)
	}

	if m != nil {
		ctxJSON, err := json.Marshal(m.Contexts)
		if err != nil {
			return fmt.Errorf("marshal contexts: %w", err)
		}
		_, err = tx.Exec(
			`INSERT INTO mixing_matrix (id, contexts, weights, computed_at) VALUES (1, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			  contexts = excluded.contexts, weights = excluded.weights, computed_at = excluded.computed_at`,
			string(ctxJSON), encodeWeights(m.Weights), now,
		)
		if err != nil {
			return fmt.Errorf("save matrix: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// #endregion save-snapshot

// #region load-snapshot
// LoadSnapshot reads the persisted field in full. ok is false when the
// database holds no snapshot yet.
func (s *Store) LoadSnapshot() (field.Snapshot, bool, error) {
	var snap field.Snapshot

	var savedAt string
	err := s.db.QueryRow(`SELECT tick, saved_at FROM field_meta WHERE id = 1`).
		Scan(&snap.Tick, &savedAt)
	if err == sql.ErrNoRows {
		return snap, false, nil
	}
	if err != nil {
		return snap, false, fmt.Errorf("read meta: %w", err)
	}

	rows, err := s.db.Query(
		`SELECT context_index, interaction_count, experience_score, habituation, last_tick
		 FROM context_accumulators`)
	if err != nil {
		return snap, false, fmt.Errorf("read accumulators: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var idx int
		var cell field.Accumulator
		var habBlob []byte
		if err := rows.Scan(&idx, &cell.Count, &cell.Score, &habBlob, &cell.LastTick); err != nil {
			return snap, false, fmt.Errorf("scan row: %w", err)
		}
		if idx < 0 || idx >= contextkey.NumContexts {
			continue // stale row from an older vocabulary
		}
		cell.Habituation = decodeHabituation(habBlob)
		cell.Visited = true
		snap.Cells[idx] = cell
	}
	return snap, true, rows.Err()
}

// #endregion load-snapshot

// #region matrix
// LoadMatrix reads the persisted mixing matrix. ok is false when none
// has been computed yet.
func (s *Store) LoadMatrix() (*mixer.Matrix, bool, error) {
	var ctxJSON string
	var blob []byte
	err := s.db.QueryRow(`SELECT contexts, weights FROM mixing_matrix WHERE id = 1`).
		Scan(&ctxJSON, &blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read matrix: %w", err)
	}
	var contexts []int
	if err := json.Unmarshal([]byte(ctxJSON), &contexts); err != nil {
		return nil, false, fmt.Errorf("unmarshal contexts: %w", err)
	}
	weights := decodeWeights(blob)
	if len(weights) != len(contexts)*len(contexts) {
		return nil, false, fmt.Errorf("matrix shape mismatch: %d weights for %d contexts",
			len(weights), len(contexts))
	}
	return mixer.NewMatrix(contexts, weights), true, nil
}

// #endregion matrix

// #region encoding
func encodeHabituation(h [sense.NumStimulusKinds]uint16) []byte {
	buf := make([]byte, len(h)*2)
	for i, v := range h {
		binary.LittleEndian.PutUint16(buf[i*2:], v)
	}
	return buf
}

func decodeHabituation(b []byte) [sense.NumStimulusKinds]uint16 {
	var h [sense.NumStimulusKinds]uint16
	for i := range h {
		if i*2+2 <= len(b) {
			h[i] = binary.LittleEndian.Uint16(b[i*2:])
		}
	}
	return h
}

func encodeWeights(w []float32) []byte {
	buf := make([]byte, len(w)*4)
	for i, f := range w {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeWeights(b []byte) []float32 {
	w := make([]float32, len(b)/4)
	for i := range w {
		w[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return w
}

// #endregion encoding
