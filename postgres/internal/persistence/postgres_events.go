package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	corep "github.com/petrijr/weft/internal/persistence"
	"github.com/petrijr/weft/pkg/api"
)

// PostgresEventStore is an EventStore backed by PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver, e.g.:
//
//	import _ "github.com/jackc/pgx/v5/stdlib"
type PostgresEventStore struct {
	db *sql.DB
}

// Ensure PostgresEventStore implements EventStore.
var _ corep.EventStore = (*PostgresEventStore)(nil)

// NewPostgresEventStore initializes the required schema in the given
// database and returns a new PostgresEventStore.
func NewPostgresEventStore(db *sql.DB) (*PostgresEventStore, error) {
	s := &PostgresEventStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *PostgresEventStore) initSchema() error {
	_, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS run_events (
			id BIGSERIAL PRIMARY KEY,
			run_id TEXT NOT NULL,
			at BIGINT NOT NULL,
			type TEXT NOT NULL,
			pipeline TEXT NOT NULL DEFAULT '',
			stage TEXT NOT NULL DEFAULT '',
			stage_index INTEGER NOT NULL DEFAULT -1,
			detail TEXT NOT NULL DEFAULT '',
			payload BYTEA
		);
	`)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(`CREATE INDEX IF NOT EXISTS idx_run_events_run_id ON run_events(run_id, id)`)
	return err
}

func (p *PostgresEventStore) AppendEvent(ctx context.Context, ev api.RunEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	payload, err := corep.EncodeValue(ev.Payload)
	if err != nil {
		return fmt.Errorf("encode payload of %s event: %w", ev.Type, err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO run_events (run_id, at, type, pipeline, stage, stage_index, detail, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
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

func (p *PostgresEventStore) ListEvents(ctx context.Context, runID string) ([]api.RunEvent, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT run_id, at, type, pipeline, stage, stage_index, detail, payload
		FROM run_events
		WHERE run_id = $1
		ORDER BY id ASC
	`, runID)
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
		if ev.Payload, err = corep.DecodeValue[any](payload); err != nil {
			return nil, fmt.Errorf("decode payload of %s event: %w", typ, err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
