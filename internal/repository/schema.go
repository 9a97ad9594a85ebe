package repository

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// Migrate creates the tables the engine needs. It is idempotent.
// embeddingDim sizes the pgvector column on Postgres.
func (s *Store) Migrate(ctx context.Context, embeddingDim int) error {
	var stmts []string
	if s.driver == DriverPostgres {
		stmts = postgresSchema(embeddingDim)
	} else {
		stmts = sqliteSchema()
	}
	stmts = append(stmts,
		`CREATE INDEX IF NOT EXISTS reservations_by_room_dates ON reservations(room_type, check_in, check_out);`,
		`CREATE INDEX IF NOT EXISTS knowledge_by_category ON knowledge_documents(category);`,
		`CREATE INDEX IF NOT EXISTS turn_logs_by_conversation ON turn_logs(conversation_id, turn_seq);`,
	)

	for _, st := range stmts {
		if _, err := s.db.ExecContext(ctx, st); err != nil {
			return errors.Wrap(err, "migrate")
		}
	}
	return nil
}

func postgresSchema(dim int) []string {
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		`CREATE TABLE IF NOT EXISTS room_availability (
			room_type TEXT NOT NULL,
			stay_date DATE NOT NULL,
			total_units INTEGER NOT NULL CHECK (total_units >= 0),
			remaining_units INTEGER NOT NULL CHECK (remaining_units >= 0 AND remaining_units <= total_units),
			version BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (room_type, stay_date)
		);`,
		`CREATE TABLE IF NOT EXISTS reservations (
			id TEXT PRIMARY KEY,
			idempotency_key TEXT NOT NULL UNIQUE,
			guest TEXT NOT NULL,
			room_type TEXT NOT NULL,
			check_in DATE NOT NULL,
			check_out DATE NOT NULL,
			party_size INTEGER NOT NULL,
			price_cents BIGINT NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS knowledge_documents (
			seq BIGSERIAL PRIMARY KEY,
			doc_id TEXT NOT NULL UNIQUE,
			category TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			keywords JSONB,
			embedding vector(%d),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`, dim),
		`CREATE TABLE IF NOT EXISTS turn_logs (
			id BIGSERIAL PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			turn_seq INTEGER NOT NULL,
			intent TEXT NOT NULL,
			error_kinds JSONB,
			reservation_id TEXT,
			degraded BOOLEAN NOT NULL DEFAULT FALSE,
			latency_ms BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
	}
}

func sqliteSchema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS room_availability (
			room_type TEXT NOT NULL,
			stay_date DATE NOT NULL,
			total_units INTEGER NOT NULL CHECK (total_units >= 0),
			remaining_units INTEGER NOT NULL CHECK (remaining_units >= 0 AND remaining_units <= total_units),
			version INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (room_type, stay_date)
		);`,
		`CREATE TABLE IF NOT EXISTS reservations (
			id TEXT PRIMARY KEY,
			idempotency_key TEXT NOT NULL UNIQUE,
			guest TEXT NOT NULL,
			room_type TEXT NOT NULL,
			check_in DATE NOT NULL,
			check_out DATE NOT NULL,
			party_size INTEGER NOT NULL,
			price_cents INTEGER NOT NULL,
			currency TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		// embeddings are stored in pgvector's text form and ranked in process
		`CREATE TABLE IF NOT EXISTS knowledge_documents (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			doc_id TEXT NOT NULL UNIQUE,
			category TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			keywords TEXT,
			embedding TEXT,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS turn_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			turn_seq INTEGER NOT NULL,
			intent TEXT NOT NULL,
			error_kinds TEXT,
			reservation_id TEXT,
			degraded BOOLEAN NOT NULL DEFAULT 0,
			latency_ms INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
	}
}
