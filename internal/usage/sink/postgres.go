package sink

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/synaptiq/model-gateway/internal/domain"
)

// Postgres writes usage records straight to a table, for deployments that
// prefer a direct write over a queue.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(databaseURL string) (*Postgres, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{db: db}, nil
}

func NewPostgresWithDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Enqueue(ctx context.Context, md domain.UsageMetadata) error {
	query := `
		INSERT INTO usage_records (request_id, user_id, conversation_id, model_id, provider, connection_type, tokens_in, tokens_out, duration_ms, source, success, error, estimated_cost, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := p.db.ExecContext(ctx, query,
		md.RequestID,
		md.UserID,
		md.ConversationID,
		md.ModelID,
		md.Provider,
		string(md.ConnectionType),
		md.TokensIn,
		md.TokensOut,
		md.DurationMs,
		md.Source,
		md.Success,
		md.Error,
		md.EstimatedCost,
		md.StartTime,
		md.EndTime,
	)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
