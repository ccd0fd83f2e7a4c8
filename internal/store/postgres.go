package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/quorumledger/internal/chain"
	"go.uber.org/zap"
)

// advisoryLockKey serialises writes to the node tables, including those from
// a second process started against the same database by mistake.
const advisoryLockKey = int64(2_024_061_117)

// PostgresStore persists node state to PostgreSQL. Ledgers are stored as
// their JSON text so opaque metadata round-trips byte for byte.
// The schema in migrations/ holds the state of a single node: every node
// needs its own database.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// Ping checks that the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// LoadProposals implements node.Store.
func (s *PostgresStore) LoadProposals(ctx context.Context) ([]chain.Ledger, error) {
	rows, err := s.pool.Query(ctx, "SELECT body FROM ledger_proposals ORDER BY seq ASC")
	if err != nil {
		return nil, fmt.Errorf("query proposals: %w", err)
	}
	bodies, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan proposals: %w", err)
	}

	out := make([]chain.Ledger, 0, len(bodies))
	for i, body := range bodies {
		l, err := decodeLedger([]byte(body))
		if err != nil {
			return nil, fmt.Errorf("decode proposal %d: %w", i, err)
		}
		out = append(out, *l)
	}
	return out, nil
}

// SaveProposals implements node.Store. Proposals only grow, so rows already
// present are kept and only the new tail is inserted; any rows beyond
// len(proposals) are removed. Everything happens in one transaction.
func (s *PostgresStore) SaveProposals(ctx context.Context, proposals []chain.Ledger) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var stored int
		if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM ledger_proposals").Scan(&stored); err != nil {
			return fmt.Errorf("count proposals: %w", err)
		}
		if stored > len(proposals) {
			if _, err := tx.Exec(ctx, "DELETE FROM ledger_proposals WHERE seq >= $1", len(proposals)); err != nil {
				return fmt.Errorf("trim proposals: %w", err)
			}
		}

		batch := &pgx.Batch{}
		for i := stored; i < len(proposals); i++ {
			body, err := json.Marshal(proposals[i])
			if err != nil {
				return fmt.Errorf("marshal proposal %d: %w", i, err)
			}
			batch.Queue("INSERT INTO ledger_proposals (seq, body) VALUES ($1, $2)", i, string(body))
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert proposals: %w", err)
		}
		s.logger.Debug("proposals persisted",
			zap.Int("inserted", batch.Len()),
			zap.Int("total", len(proposals)),
		)
		return nil
	})
}

// LoadLedger implements node.Store.
func (s *PostgresStore) LoadLedger(ctx context.Context) (*chain.Ledger, error) {
	var body string
	err := s.pool.QueryRow(ctx, "SELECT body FROM held_ledger WHERE id = 1").Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get held ledger: %w", err)
	}
	l, err := decodeLedger([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("decode held ledger: %w", err)
	}
	return l, nil
}

// SaveLedger implements node.Store. A nil ledger deletes the row.
func (s *PostgresStore) SaveLedger(ctx context.Context, l *chain.Ledger) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if l == nil {
			_, err := tx.Exec(ctx, "DELETE FROM held_ledger WHERE id = 1")
			return err
		}
		body, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("marshal held ledger: %w", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO held_ledger (id, body, updated_at) VALUES (1, $1, now())
			 ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, updated_at = now()`,
			string(body),
		)
		if err != nil {
			return fmt.Errorf("upsert held ledger: %w", err)
		}
		return nil
	})
}

// LoadParticipants implements node.Store.
func (s *PostgresStore) LoadParticipants(ctx context.Context) ([]chain.Identity, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT ip_address, uuid FROM participants ORDER BY ip_address, uuid")
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (chain.Identity, error) {
		var id chain.Identity
		err := row.Scan(&id.IPAddress, &id.UUID)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan participants: %w", err)
	}
	return ids, nil
}

// SaveParticipants implements node.Store. The registry never removes
// identities, so existing rows are left in place.
func (s *PostgresStore) SaveParticipants(ctx context.Context, ids []chain.Identity) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, id := range ids {
			batch.Queue(
				`INSERT INTO participants (ip_address, uuid) VALUES ($1, $2)
				 ON CONFLICT (ip_address, uuid) DO NOTHING`,
				id.IPAddress, id.UUID,
			)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert participants: %w", err)
		}
		return nil
	})
}

// inTx runs fn in a transaction holding the store's advisory lock.
func (s *PostgresStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Released automatically on commit or rollback.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
