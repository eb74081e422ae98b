// ==============================================================================
// POSTGRES JOURNAL - internal/journal/postgres.go
// ==============================================================================
package journal

import (
	"context"

	"github.com/jmoiron/sqlx"

	"cfdclient/internal/domain"
	"cfdclient/pkg/errors"
)

// PostgresStore persists the journal so local history survives restarts.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an existing database connection.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append upserts a record; replays of the same local id overwrite the row.
func (s *PostgresStore) Append(ctx context.Context, record domain.PendingTransaction) error {
	query := `
		INSERT INTO transaction_journal (
			local_id, kind, wallet_address, amount_matic, affiliate_code,
			phase, chain_tx_hash, state, note, error, attempted_at, completed_at
		) VALUES (
			:local_id, :kind, :wallet_address, :amount_matic, :affiliate_code,
			:phase, :chain_tx_hash, :state, :note, :error, :attempted_at, :completed_at
		)
		ON CONFLICT (local_id) DO UPDATE SET
			chain_tx_hash = EXCLUDED.chain_tx_hash,
			state = EXCLUDED.state,
			note = EXCLUDED.note,
			error = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at
	`

	_, err := s.db.NamedExecContext(ctx, query, record)
	if err != nil {
		return errors.Wrap(err, "failed to append journal record")
	}
	return nil
}

// List returns the address's records, newest first. An empty address lists
// everything.
func (s *PostgresStore) List(ctx context.Context, address string, limit int) ([]domain.PendingTransaction, error) {
	if limit <= 0 {
		limit = 50
	}

	var records []domain.PendingTransaction
	var err error
	if address == "" {
		query := `
			SELECT * FROM transaction_journal
			ORDER BY attempted_at DESC
			LIMIT $1
		`
		err = s.db.SelectContext(ctx, &records, query, limit)
	} else {
		query := `
			SELECT * FROM transaction_journal
			WHERE LOWER(wallet_address) = LOWER($1)
			ORDER BY attempted_at DESC
			LIMIT $2
		`
		err = s.db.SelectContext(ctx, &records, query, address, limit)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to list journal records")
	}
	return records, nil
}

var _ Store = (*PostgresStore)(nil)
