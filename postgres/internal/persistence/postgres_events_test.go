package persistence

import (
	"context"
	"database/sql"
	"encoding/gob"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/petrijr/weft/pkg/api"
	"github.com/petrijr/weft/postgres/internal/testutil"
)

type pgSamplePayload struct {
	Msg string
	N   int
}

type PostgresEventStoreTestSuite struct {
	suite.Suite
	db    *sql.DB
	store *PostgresEventStore
	ctx   context.Context
}

func TestPostgresEventStoreSuite(t *testing.T) {
	gob.Register(pgSamplePayload{})

	db, err := sql.Open("pgx", testutil.GetPostgresEndpoint(t))
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewPostgresEventStore(db)
	if err != nil {
		t.Fatalf("NewPostgresEventStore failed: %v", err)
	}
	suite.Run(t, &PostgresEventStoreTestSuite{db: db, store: store, ctx: context.Background()})
}

func (p *PostgresEventStoreTestSuite) SetupTest() {
	_, err := p.db.Exec("TRUNCATE TABLE run_events")
	p.NoError(err, "TRUNCATE run_events failed")
}

func (p *PostgresEventStoreTestSuite) TestAppendAndList() {
	p.NoError(p.store.AppendEvent(p.ctx, api.RunEvent{RunID: "r1", Type: api.EventRunStarted, Pipeline: "codegen", StageIndex: -1}))
	p.NoError(p.store.AppendEvent(p.ctx, api.RunEvent{RunID: "r2", Type: api.EventRunStarted, StageIndex: -1}))
	p.NoError(p.store.AppendEvent(p.ctx, api.RunEvent{
		RunID:      "r1",
		Type:       api.EventStageFailed,
		Stage:      "commit",
		StageIndex: 4,
		Detail:     "boom",
		Payload:    pgSamplePayload{Msg: "hello", N: 42},
	}))

	events, err := p.store.ListEvents(p.ctx, "r1")
	p.NoError(err)
	p.Len(events, 2)
	p.Equal("codegen", events[0].Pipeline)
	p.Nil(events[0].Payload)
	p.Equal(api.EventStageFailed, events[1].Type)
	p.Equal("boom", events[1].Detail)
	p.Equal(pgSamplePayload{Msg: "hello", N: 42}, events[1].Payload)
}

func (p *PostgresEventStoreTestSuite) TestSchemaIsIdempotent() {
	_, err := NewPostgresEventStore(p.db)
	p.NoError(err)

	events, err := p.store.ListEvents(p.ctx, "missing")
	p.NoError(err)
	p.Empty(events)
}
