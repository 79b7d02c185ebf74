package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresMigrations returns the schema for the Postgres store.
func PostgresMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id                  UUID PRIMARY KEY,
			coins               BIGINT NOT NULL CHECK (coins >= 0),
			level               INTEGER NOT NULL CHECK (level >= 1),
			xp                  BIGINT NOT NULL DEFAULT 0 CHECK (xp >= 0),
			streak_start        TIMESTAMPTZ NOT NULL,
			badge_tier          TEXT NOT NULL,
			last_check_in       TEXT NOT NULL DEFAULT '',
			longest_streak_days INTEGER NOT NULL DEFAULT 0,
			contract_stake      BIGINT,
			contract_reward     BIGINT,
			contract_start      TIMESTAMPTZ,
			contract_end        TIMESTAMPTZ,
			contract_active     BOOLEAN NOT NULL DEFAULT FALSE,
			version             BIGINT NOT NULL DEFAULT 0,
			created_at          TIMESTAMPTZ NOT NULL,
			updated_at          TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS coin_entries (
			id         UUID PRIMARY KEY,
			seq        BIGSERIAL NOT NULL,
			account_id UUID NOT NULL REFERENCES accounts(id),
			amount     BIGINT NOT NULL,
			balance    BIGINT NOT NULL,
			reason     TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`ALTER TABLE coin_entries ADD COLUMN IF NOT EXISTS seq BIGSERIAL`,
		`DROP INDEX IF EXISTS idx_coin_entries_account`,
		`CREATE INDEX IF NOT EXISTS idx_coin_entries_account_seq ON coin_entries (account_id, seq DESC)`,
	}
}

const pgAccountColumns = `id, coins, level, xp, streak_start, badge_tier, last_check_in,
	longest_streak_days, contract_stake, contract_reward, contract_start, contract_end,
	contract_active, version, created_at, updated_at`

// PostgresStore persists accounts in PostgreSQL. Updates lock the row with
// SELECT ... FOR UPDATE inside a serializable transaction.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed account store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the schema if missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range PostgresMigrations() {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}

// Create inserts a provisioned account and its opening journal lines.
func (s *PostgresStore) Create(ctx context.Context, acc Account) error {
	id, err := uuid.Parse(acc.ID)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return pgUnavailable(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	stake, reward, start, end, active := pgContractArgs(acc.Contract)
	if _, err := tx.Exec(ctx, `INSERT INTO accounts (`+pgAccountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		id, acc.Coins, acc.Level, acc.XP, acc.StreakStart.UTC(), acc.BadgeTier, acc.LastCheckIn,
		acc.LongestStreakDays, stake, reward, start, end, active, acc.Version,
		acc.CreatedAt.UTC(), acc.UpdatedAt.UTC()); err != nil {
		return err
	}
	if err := insertPgEntries(ctx, tx, id, stamp(acc.PendingEntries(), acc)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Get reads the committed account.
func (s *PostgresStore) Get(ctx context.Context, id string) (Account, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, ErrNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT `+pgAccountColumns+` FROM accounts WHERE id = $1`, accountID)
	return scanPgAccount(row)
}

// Update runs fn against the locked row and writes the result in the same transaction.
func (s *PostgresStore) Update(ctx context.Context, id string, fn Mutation) (Account, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, ErrNotFound
	}

	var out Account
	err = retry(ctx, func() (bool, error) {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return false, pgUnavailable(err)
		}
		defer tx.Rollback(ctx) // nolint:errcheck

		current, err := scanPgAccount(tx.QueryRow(ctx, `SELECT `+pgAccountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, accountID))
		if err != nil {
			return isSerializationError(err), err
		}
		next, write, err := apply(current, fn)
		if err != nil {
			return false, err
		}
		if !write {
			out = current
			return false, nil
		}

		stake, reward, start, end, active := pgContractArgs(next.Contract)
		cmd, err := tx.Exec(ctx, `UPDATE accounts SET
			coins = $1, level = $2, xp = $3, streak_start = $4, badge_tier = $5, last_check_in = $6,
			longest_streak_days = $7, contract_stake = $8, contract_reward = $9, contract_start = $10,
			contract_end = $11, contract_active = $12, version = $13, updated_at = $14
			WHERE id = $15 AND version = $16`,
			next.Coins, next.Level, next.XP, next.StreakStart.UTC(), next.BadgeTier, next.LastCheckIn,
			next.LongestStreakDays, stake, reward, start, end, active, next.Version,
			next.UpdatedAt, accountID, current.Version)
		if err != nil {
			return isSerializationError(err), err
		}
		if cmd.RowsAffected() == 0 {
			return true, nil
		}
		if err := insertPgEntries(ctx, tx, accountID, next.PendingEntries()); err != nil {
			return isSerializationError(err), err
		}
		if err := tx.Commit(ctx); err != nil {
			return isSerializationError(err), err
		}
		next.clearJournal()
		out = next
		return false, nil
	})
	if err != nil {
		return Account{}, err
	}
	return out, nil
}

// Entries lists journal lines, newest first.
func (s *PostgresStore) Entries(ctx context.Context, id string, limit int) ([]Entry, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	accountID, _ := uuid.Parse(id)
	rows, err := s.db.Query(ctx, `SELECT amount, balance, reason, created_at
		FROM coin_entries WHERE account_id = $1 ORDER BY seq DESC LIMIT $2`, accountID, clampLimit(limit))
	if err != nil {
		return nil, pgUnavailable(err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e := Entry{AccountID: id}
		if err := rows.Scan(&e.Amount, &e.Balance, &e.Reason, &e.CreatedAt); err != nil {
			return nil, pgUnavailable(err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, pgUnavailable(rows.Err())
}

func insertPgEntries(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, entries []Entry) error {
	for _, e := range entries {
		if _, err := tx.Exec(ctx, `INSERT INTO coin_entries (id, account_id, amount, balance, reason, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`, uuid.New(), accountID, e.Amount, e.Balance, e.Reason, e.CreatedAt.UTC()); err != nil {
			return err
		}
	}
	return nil
}

func scanPgAccount(row pgx.Row) (Account, error) {
	var (
		acc           Account
		id            uuid.UUID
		stake, reward *int64
		start, end    *time.Time
		active        bool
	)
	err := row.Scan(&id, &acc.Coins, &acc.Level, &acc.XP, &acc.StreakStart, &acc.BadgeTier, &acc.LastCheckIn,
		&acc.LongestStreakDays, &stake, &reward, &start, &end, &active, &acc.Version, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, pgUnavailable(err)
	}
	acc.ID = id.String()
	acc.StreakStart = acc.StreakStart.UTC()
	acc.CreatedAt = acc.CreatedAt.UTC()
	acc.UpdatedAt = acc.UpdatedAt.UTC()
	if stake != nil && start != nil && end != nil {
		c := &Contract{StakeAmount: *stake, Start: start.UTC(), End: end.UTC(), Active: active}
		if reward != nil {
			c.RewardAmount = *reward
		}
		acc.Contract = c
	}
	return acc, nil
}

func pgContractArgs(c *Contract) (stake, reward *int64, start, end *time.Time, active bool) {
	if c == nil {
		return nil, nil, nil, nil, false
	}
	s, r := c.StakeAmount, c.RewardAmount
	st, en := c.Start.UTC(), c.End.UTC()
	return &s, &r, &st, &en, c.Active
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}

// pgUnavailable reports connection loss and server shutdown as
// ErrStoreUnavailable. Other server errors, serialization failures included,
// are returned as they are.
func pgUnavailable(err error) error {
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return unavailable(err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && !strings.HasPrefix(pgErr.Code, "08") && !strings.HasPrefix(pgErr.Code, "57P") {
		return err
	}
	return unavailable(err)
}
