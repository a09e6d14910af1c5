package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/petrijr/weft/pkg/api"
)

// SQLiteEventStore stores run events in SQLite.
//
// It expects an *sql.DB that uses a SQLite driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteEventStore struct {
	db *sql.DB
}

// Ensure SQLiteEventStore implements EventStore.
var _ EventStore = (*SQLiteEventStore)(nil)

// NewSQLiteEventStore creates the run_events table if needed.
func NewSQLiteEventStore(db *sql.DB) (*SQLiteEventStore, error) {
	s := &SQLiteEventStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteEventStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS run_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			at INTEGER NOT NULL,
			type TEXT NOT NULL,
			pipeline TEXT NOT NULL DEFAULT '',
			stage TEXT NOT NULL DEFAULT '',
			stage_index INTEGER NOT NULL DEFAULT -1,
			detail TEXT NOT NULL DEFAULT '',
			payload BLOB
		);
		CREATE INDEX IF NOT EXISTS idx_run_events_run_id ON run_events(run_id, id);
	`)
	return err
}

func (s *SQLiteEventStore) AppendEvent(ctx context.Context, ev api.RunEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	payload, err := EncodeValue(ev.Payload)
	if err != nil {
		return fmt.Errorf("encode payload of %s event: %w", ev.Type, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_events (run_id, at, type, pipeline, stage, stage_index, detail, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.RunID,
		at.UnixNano(),
		string(ev.Type),
		ev.Pipeline,
		ev.Stage,
		ev.StageIndex,
		ev.Detail,
		payload,
	)
	return err
}

func (s *SQLiteEventStore) ListEvents(ctx context.Context, runID string) ([]api.RunEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, at, type, pipeline, stage, stage_index, detail, payload
		FROM run_events
		WHERE run_id = ?
		ORDER BY id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.RunEvent
	for rows.Next() {
		var (
			ev      api.RunEvent
			atN     int64
			typ     string
			payload []byte
		)
		if err := rows.Scan(&ev.RunID, &atN, &typ, &ev.Pipeline, &ev.Stage, &ev.StageIndex, &ev.Detail, &payload); err != nil {
			return nil, err
		}
		ev.At = time.Unix(0, atN)
		ev.Type = api.EventType(typ)
		if ev.Payload, err = DecodeValue[any](payload); err != nil {
			return nil, fmt.Errorf("decode payload of %s event: %w", typ, err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
