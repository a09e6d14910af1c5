// Package postgres records pipeline run events in PostgreSQL.
package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/petrijr/weft"
	pstore "github.com/petrijr/weft/postgres/internal/persistence"
)

// NewEventStore returns an EventStore using db, creating the run_events
// table if needed.
func NewEventStore(db *sql.DB) (weft.EventStore, error) {
	return pstore.NewPostgresEventStore(db)
}

// Open connects to dsn with the pgx driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

// NewFromConfig builds a weft.Service whose run events go to db.
func NewFromConfig(cfg *weft.FileConfig, db *sql.DB, stages ...weft.Stage) (*weft.Service, error) {
	store, err := NewEventStore(db)
	if err != nil {
		return nil, err
	}
	return weft.NewFromConfigWithEvents(cfg, store, stages...)
}
