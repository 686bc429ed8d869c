package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/V4T54L/ctf-relay/internal/domain"
)

const (
	timelinesTable = "ctf_relay_timelines"
	eventsTable    = "ctf_relay_events"
)

// Schema creates the tables the sink writes to. Event ordering restarts after
// a device restart, so events are keyed by a serial id rather than ordering.
const Schema = `
CREATE TABLE IF NOT EXISTS ` + timelinesTable + ` (
	timeline_id UUID PRIMARY KEY,
	run_id      TEXT NOT NULL,
	name        TEXT NOT NULL,
	attrs       JSONB NOT NULL,
	received_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS ` + eventsTable + ` (
	id          BIGSERIAL PRIMARY KEY,
	timeline_id UUID NOT NULL,
	run_id      TEXT NOT NULL,
	name        TEXT NOT NULL,
	ordering    BIGINT NOT NULL,
	attrs       JSONB NOT NULL,
	received_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS ctf_relay_events_timeline_idx ON ` + eventsTable + ` (timeline_id, ordering);
`

// Sink writes records to PostgreSQL.
type Sink struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSink creates a Sink on an open database.
func NewSink(db *sql.DB, logger *slog.Logger) *Sink {
	return &Sink{db: db, logger: logger.With("component", "postgres_sink")}
}

// Open connects to the database at rawURL and ensures the schema exists.
func Open(ctx context.Context, rawURL string, logger *slog.Logger) (*Sink, error) {
	db, err := sql.Open("postgres", rawURL)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	logger.Info("connected to postgres")
	return NewSink(db, logger), nil
}

// Write stores a batch in one transaction. Timeline attributes are upserted;
// events are bulk loaded with COPY.
func (s *Sink) Write(ctx context.Context, records []domain.Record) error {
	txn, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer txn.Rollback() // no-op after Commit

	upsertQuery := `
		INSERT INTO ` + timelinesTable + ` (timeline_id, run_id, name, attrs, received_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (timeline_id) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			name = EXCLUDED.name,
			attrs = EXCLUDED.attrs,
			received_at = EXCLUDED.received_at;
	`

	// Timelines first: no other statement may run while COPY is in progress.
	events := 0
	for i := range records {
		r := &records[i]
		if r.Kind != domain.RecordTimeline {
			events++
			continue
		}
		attrs, err := json.Marshal(r.Attrs)
		if err != nil {
			return fmt.Errorf("failed to marshal attrs of '%s': %w", r.Name, err)
		}
		if _, err := txn.ExecContext(ctx, upsertQuery, r.TimelineID.String(), r.RunID, r.Name, string(attrs), r.ReceivedAt); err != nil {
			return err
		}
	}
	if events == 0 {
		return txn.Commit()
	}

	stmt, err := txn.PrepareContext(ctx, pq.CopyIn(eventsTable, "timeline_id", "run_id", "name", "ordering", "attrs", "received_at"))
	if err != nil {
		return err
	}
	for i := range records {
		r := &records[i]
		if r.Kind != domain.RecordEvent {
			continue
		}
		attrs, err := json.Marshal(r.Attrs)
		if err != nil {
			_ = stmt.Close()
			return fmt.Errorf("failed to marshal attrs of '%s': %w", r.Name, err)
		}
		if _, err := stmt.ExecContext(ctx, r.TimelineID.String(), r.RunID, r.Name, int64(r.Ordering), string(attrs), r.ReceivedAt); err != nil {
			_ = stmt.Close()
			return err
		}
	}
	// Flush the COPY buffer.
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return err
	}
	if err := stmt.Close(); err != nil {
		return err
	}

	return txn.Commit()
}

func (s *Sink) Close() error {
	return s.db.Close()
}
