package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteMigrations returns the embedded-store schema, one statement per entry.
func SQLiteMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			id                  TEXT PRIMARY KEY,
			coins               INTEGER NOT NULL CHECK (coins >= 0),
			level               INTEGER NOT NULL CHECK (level >= 1),
			xp                  INTEGER NOT NULL DEFAULT 0 CHECK (xp >= 0),
			streak_start        TEXT NOT NULL,
			badge_tier          TEXT NOT NULL,
			last_check_in       TEXT NOT NULL DEFAULT '',
			longest_streak_days INTEGER NOT NULL DEFAULT 0,
			contract_stake      INTEGER,
			contract_reward     INTEGER,
			contract_start      TEXT,
			contract_end        TEXT,
			contract_active     INTEGER NOT NULL DEFAULT 0,
			version             INTEGER NOT NULL DEFAULT 0,
			created_at          TEXT NOT NULL,
			updated_at          TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS coin_entries (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id TEXT NOT NULL REFERENCES accounts(id),
			amount     INTEGER NOT NULL,
			balance    INTEGER NOT NULL,
			reason     TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_coin_entries_account ON coin_entries(account_id, id)`,
	}
}

const sqliteAccountColumns = `id, coins, level, xp, streak_start, badge_tier, last_check_in,
	longest_streak_days, contract_stake, contract_reward, contract_start, contract_end,
	contract_active, version, created_at, updated_at`

// SQLiteStore persists accounts in an embedded SQLite database. Writes are
// guarded by the version column.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore builds a store on an opened database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Migrate creates the schema if missing.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	for _, stmt := range SQLiteMigrations() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, acc Account) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer tx.Rollback() // nolint:errcheck

	stake, reward, start, end, active := sqliteContractArgs(acc.Contract)
	if _, err := tx.ExecContext(ctx, `INSERT INTO accounts (`+sqliteAccountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		acc.ID, acc.Coins, acc.Level, acc.XP, formatTime(acc.StreakStart), acc.BadgeTier, acc.LastCheckIn,
		acc.LongestStreakDays, stake, reward, start, end, active, acc.Version,
		formatTime(acc.CreatedAt), formatTime(acc.UpdatedAt)); err != nil {
		return err
	}
	if err := s.insertEntries(ctx, tx, stamp(acc.PendingEntries(), acc)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteAccountColumns+` FROM accounts WHERE id = ?`, id)
	return scanSQLiteAccount(row)
}

func (s *SQLiteStore) Update(ctx context.Context, id string, fn Mutation) (Account, error) {
	var out Account
	err := retry(ctx, func() (bool, error) {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return false, unavailable(err)
		}
		defer tx.Rollback() // nolint:errcheck

		current, err := scanSQLiteAccount(tx.QueryRowContext(ctx, `SELECT `+sqliteAccountColumns+` FROM accounts WHERE id = ?`, id))
		if err != nil {
			return isBusy(err), err
		}
		next, write, err := apply(current, fn)
		if err != nil {
			return false, err
		}
		if !write {
			out = current
			return false, nil
		}

		stake, reward, start, end, active := sqliteContractArgs(next.Contract)
		res, err := tx.ExecContext(ctx, `UPDATE accounts SET
			coins = ?, level = ?, xp = ?, streak_start = ?, badge_tier = ?, last_check_in = ?,
			longest_streak_days = ?, contract_stake = ?, contract_reward = ?, contract_start = ?,
			contract_end = ?, contract_active = ?, version = ?, updated_at = ?
			WHERE id = ? AND version = ?`,
			next.Coins, next.Level, next.XP, formatTime(next.StreakStart), next.BadgeTier, next.LastCheckIn,
			next.LongestStreakDays, stake, reward, start, end, active, next.Version,
			formatTime(next.UpdatedAt), id, current.Version)
		if err != nil {
			return isBusy(err), err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, err
		}
		if n == 0 {
			return true, nil
		}
		if err := s.insertEntries(ctx, tx, next.PendingEntries()); err != nil {
			return isBusy(err), err
		}
		if err := tx.Commit(); err != nil {
			return isBusy(err), err
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

func (s *SQLiteStore) Entries(ctx context.Context, id string, limit int) ([]Entry, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT account_id, amount, balance, reason, created_at
		FROM coin_entries WHERE account_id = ? ORDER BY id DESC LIMIT ?`, id, clampLimit(limit))
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			createdAt string
		)
		if err := rows.Scan(&e.AccountID, &e.Amount, &e.Balance, &e.Reason, &createdAt); err != nil {
			return nil, unavailable(err)
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, unavailable(rows.Err())
}

func (s *SQLiteStore) insertEntries(ctx context.Context, tx *sql.Tx, entries []Entry) error {
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `INSERT INTO coin_entries (account_id, amount, balance, reason, created_at)
			VALUES (?, ?, ?, ?, ?)`, e.AccountID, e.Amount, e.Balance, e.Reason, formatTime(e.CreatedAt)); err != nil {
			return err
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteAccount(row rowScanner) (Account, error) {
	var (
		acc                             Account
		streakStart, createdAt, updated string
		stake, reward                   sql.NullInt64
		start, end                      sql.NullString
		active                          bool
	)
	err := row.Scan(&acc.ID, &acc.Coins, &acc.Level, &acc.XP, &streakStart, &acc.BadgeTier, &acc.LastCheckIn,
		&acc.LongestStreakDays, &stake, &reward, &start, &end, &active, &acc.Version, &createdAt, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, unavailable(err)
	}
	if acc.StreakStart, err = parseTime(streakStart); err != nil {
		return Account{}, err
	}
	if acc.CreatedAt, err = parseTime(createdAt); err != nil {
		return Account{}, err
	}
	if acc.UpdatedAt, err = parseTime(updated); err != nil {
		return Account{}, err
	}
	if stake.Valid && start.Valid && end.Valid {
		c := &Contract{StakeAmount: stake.Int64, RewardAmount: reward.Int64, Active: active}
		if c.Start, err = parseTime(start.String); err != nil {
			return Account{}, err
		}
		if c.End, err = parseTime(end.String); err != nil {
			return Account{}, err
		}
		acc.Contract = c
	}
	return acc, nil
}

func sqliteContractArgs(c *Contract) (stake, reward sql.NullInt64, start, end sql.NullString, active bool) {
	if c == nil {
		return
	}
	stake = sql.NullInt64{Int64: c.StakeAmount, Valid: true}
	reward = sql.NullInt64{Int64: c.RewardAmount, Valid: true}
	start = sql.NullString{String: formatTime(c.Start), Valid: true}
	end = sql.NullString{String: formatTime(c.End), Valid: true}
	return stake, reward, start, end, c.Active
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	return t.UTC(), nil
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code() & 0xff
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}
