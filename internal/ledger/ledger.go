// Package ledger tracks campaign brief submissions in Postgres. The seen
// count tells callers whether a brief has been submitted before; reruns are
// allowed, the ledger only records them.
package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// Ledger records campaign run submissions.
type Ledger struct {
	db     *sql.DB
	logger zerolog.Logger
}

// New creates a run ledger and ensures its table exists.
func New(db *sql.DB, logger zerolog.Logger) (*Ledger, error) {
	l := &Ledger{db: db, logger: logger.With().Str("component", "ledger").Logger()}

	if err := l.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure campaign_runs table: %w", err)
	}

	return l, nil
}

func (l *Ledger) ensureTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS campaign_runs (
			brief_file TEXT PRIMARY KEY,
			campaign TEXT,
			last_run_id TEXT,
			first_seen_at TIMESTAMPTZ DEFAULT NOW(),
			last_seen_at TIMESTAMPTZ DEFAULT NOW(),
			seen_count INTEGER DEFAULT 1
		)
	`

	if _, err := l.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create campaign_runs table: %w", err)
	}

	l.logger.Debug().Msg("campaign_runs table ready")
	return nil
}

// Record upserts a submission for the given brief file and returns the total
// number of times it has been seen.
func (l *Ledger) Record(ctx context.Context, briefFile, campaign, runID string) (int, error) {
	query := `
		INSERT INTO campaign_runs (brief_file, campaign, last_run_id, first_seen_at, last_seen_at, seen_count)
		VALUES ($1, $2, $3, NOW(), NOW(), 1)
		ON CONFLICT (brief_file) DO UPDATE
		SET last_seen_at = NOW(),
		    seen_count = campaign_runs.seen_count + 1,
		    campaign = EXCLUDED.campaign,
		    last_run_id = EXCLUDED.last_run_id
		RETURNING seen_count
	`

	var seenCount int
	err := l.db.QueryRowContext(ctx, query, briefFile, campaign, runID).Scan(&seenCount)
	if err != nil {
		return 0, fmt.Errorf("failed to record campaign run: %w", err)
	}

	return seenCount, nil
}

// SeenCount returns how many times a brief file has been submitted, zero if
// never.
func (l *Ledger) SeenCount(ctx context.Context, briefFile string) (int, error) {
	query := `SELECT seen_count FROM campaign_runs WHERE brief_file = $1`

	var seenCount int
	err := l.db.QueryRowContext(ctx, query, briefFile).Scan(&seenCount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get seen count: %w", err)
	}

	return seenCount, nil
}
