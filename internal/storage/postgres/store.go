package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ammledger/internal/model"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS ledger_events (
	source            TEXT        NOT NULL,
	seq               BIGINT      NOT NULL,
	event             TEXT        NOT NULL,
	account           TEXT        NOT NULL,
	amount            NUMERIC(78, 0),
	locked_collateral NUMERIC(78, 0),
	old_factor        SMALLINT,
	new_factor        SMALLINT,
	topics            TEXT[]      NOT NULL,
	data              TEXT        NOT NULL,
	line              BIGINT,
	recorded_at       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (source, seq)
);

CREATE TABLE IF NOT EXISTS ledger_accounts (
	source            TEXT           NOT NULL,
	account           TEXT           NOT NULL,
	collateral        NUMERIC(78, 0) NOT NULL,
	loan_amount       NUMERIC(78, 0) NOT NULL,
	locked_collateral NUMERIC(78, 0) NOT NULL,
	loan_active       BOOLEAN        NOT NULL,
	updated_at        TIMESTAMPTZ    NOT NULL,
	PRIMARY KEY (source, account)
);

CREATE TABLE IF NOT EXISTS ledger_state (
	name       TEXT        PRIMARY KEY,
	last_seq   BIGINT      NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// Store provides Postgres persistence for ledger events and account snapshots.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the ledger tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// PutEventBatch inserts event records. Re-inserting a (source, seq) pair is a no-op.
func (s *Store) PutEventBatch(ctx context.Context, events []model.LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, ev := range events {
		recordedAt, err := parseTimestamp(ev.RecordedAt)
		if err != nil {
			return fmt.Errorf("event %d recorded_at: %w", ev.Seq, err)
		}
		batch.Queue(`
			INSERT INTO ledger_events (
				source, seq, event, account, amount, locked_collateral,
				old_factor, new_factor, topics, data, line, recorded_at
			) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (source, seq) DO NOTHING
		`,
			ev.Source,
			int64(ev.Seq),
			ev.Event,
			ev.Account,
			nullable(ev.Amount),
			nullable(ev.LockedCollateral),
			nullableFactor(ev.OldFactor),
			nullableFactor(ev.NewFactor),
			ev.Topics,
			ev.Data,
			int64(ev.Line),
			recordedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert ledger event: %w", err)
		}
	}
	return nil
}

// PutAccountSnapshots inserts or updates account snapshots keyed by (source, account).
func (s *Store) PutAccountSnapshots(ctx context.Context, snapshots []model.AccountSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		updatedAt, err := parseTimestamp(snap.UpdatedAt)
		if err != nil {
			return fmt.Errorf("account %s updated_at: %w", snap.Account, err)
		}
		batch.Queue(`
			INSERT INTO ledger_accounts (
				source, account, collateral, loan_amount, locked_collateral, loan_active, updated_at
			) VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6, $7)
			ON CONFLICT (source, account)
			DO UPDATE SET
				collateral = EXCLUDED.collateral,
				loan_amount = EXCLUDED.loan_amount,
				locked_collateral = EXCLUDED.locked_collateral,
				loan_active = EXCLUDED.loan_active,
				updated_at = EXCLUDED.updated_at
		`,
			snap.Source,
			snap.Account,
			snap.Collateral,
			snap.LoanAmount,
			snap.LockedCollateral,
			snap.LoanActive,
			updatedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range snapshots {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert account snapshot: %w", err)
		}
	}
	return nil
}

// LoadState returns the last stored event seq for a replay source name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var seq int64
	row := s.pool.QueryRow(ctx, `SELECT last_seq FROM ledger_state WHERE name=$1`, name)
	if err := row.Scan(&seq); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(seq), true, nil
}

// SaveState upserts the last stored event seq for a replay source name.
func (s *Store) SaveState(ctx context.Context, name string, seq uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ledger_state (name, last_seq, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_seq = EXCLUDED.last_seq, updated_at = now()
	`, name, int64(seq))
	return err
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func nullableFactor(value uint64) *int16 {
	if value == 0 {
		return nil
	}
	v := int16(value)
	return &v
}

func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
