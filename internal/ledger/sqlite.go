package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/revobank/revobank/internal/infra"
	"github.com/revobank/revobank/internal/ledger/migrations"
)

const (
	sqliteAccountColumns     = `id, number, kind, balance, owner_id, created_at`
	sqliteTransactionColumns = `id, kind, amount, source_id, destination_id, status, description, reason, created_at`
)

// SQLiteStore persists accounts and the transaction log in a single SQLite file.
type SQLiteStore struct {
	sqlDB     *sql.DB
	numberGen NumberGenerator
	now       func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenSQLite opens a SQLite ledger store and applies embedded migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single writer connection keeps SQLite from returning SQLITE_BUSY under load.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := infra.ApplyMigrations(context.Background(), sqlDB, migrations.FS, "sqlite"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB, numberGen: RandomAccountNumber, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// CreateAccount inserts a zero-balance account, retrying on account number collisions.
func (s *SQLiteStore) CreateAccount(ctx context.Context, ownerID string, kind AccountKind) (Account, error) {
	var created Account
	err := withUniqueNumber(s.numberGen, func(number string) error {
		row := s.sqlDB.QueryRowContext(ctx, `INSERT INTO accounts (number, kind, balance, owner_id, created_at)
         VALUES (?, ?, 0, ?, ?) RETURNING `+sqliteAccountColumns,
			number, string(kind), ownerID, toMillis(s.now()))
		account, err := scanSQLiteAccount(row)
		if err != nil {
			if isUniqueViolation(err) {
				return errNumberTaken
			}
			return err
		}
		created = account
		return nil
	})
	return created, err
}

// GetAccount fetches an account by id.
func (s *SQLiteStore) GetAccount(ctx context.Context, id int64) (Account, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+sqliteAccountColumns+` FROM accounts WHERE id = ?`, id)
	account, err := scanSQLiteAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	return account, err
}

// ListAccounts returns the owner's accounts ordered by id.
func (s *SQLiteStore) ListAccounts(ctx context.Context, ownerID string) ([]Account, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+sqliteAccountColumns+` FROM accounts WHERE owner_id = ? ORDER BY id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Account, 0)
	for rows.Next() {
		account, err := scanSQLiteAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, account)
	}
	return out, rows.Err()
}

// UpdateAccountKind changes the product kind of an account.
func (s *SQLiteStore) UpdateAccountKind(ctx context.Context, id int64, kind AccountKind) (Account, error) {
	row := s.sqlDB.QueryRowContext(ctx, `UPDATE accounts SET kind = ? WHERE id = ? RETURNING `+sqliteAccountColumns, string(kind), id)
	account, err := scanSQLiteAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	return account, err
}

// Adjust applies delta in one guarded UPDATE.
func (s *SQLiteStore) Adjust(ctx context.Context, id, delta int64) (Account, error) {
	row := s.sqlDB.QueryRowContext(ctx, `UPDATE accounts SET balance = balance + ?2
         WHERE id = ?1 AND balance + ?2 >= 0 RETURNING `+sqliteAccountColumns, id, delta)
	account, err := scanSQLiteAccount(row)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Account{}, err
	}
	if _, err := s.GetAccount(ctx, id); err != nil {
		return Account{}, err
	}
	return Account{}, fmt.Errorf("account %d: %w", id, ErrInsufficientFunds)
}

// DeleteAccount removes an account whose balance is exactly zero.
func (s *SQLiteStore) DeleteAccount(ctx context.Context, id int64) error {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM accounts WHERE id = ? AND balance = 0`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 1 {
		return nil
	}
	if _, err := s.GetAccount(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("account %d: %w", id, ErrNonZeroBalance)
}

// Append stores a record. The timestamp never precedes the newest existing record so
// log order matches append order.
func (s *SQLiteStore) Append(ctx context.Context, tx Transaction) (Transaction, error) {
	row := s.sqlDB.QueryRowContext(ctx, `INSERT INTO transactions
         (kind, amount, source_id, destination_id, status, description, reason, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, MAX(?, COALESCE((SELECT MAX(created_at) FROM transactions), 0)))
         RETURNING `+sqliteTransactionColumns,
		string(tx.Kind), tx.Amount, nullableID(tx.SourceID), nullableID(tx.DestinationID),
		string(tx.Status), tx.Description, tx.Reason, toMillis(s.now()))
	return scanSQLiteTransaction(row)
}

// GetTransaction fetches one record by id.
func (s *SQLiteStore) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+sqliteTransactionColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanSQLiteTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, fmt.Errorf("transaction %d: %w", id, ErrNotFound)
	}
	return tx, err
}

// Query returns matching records, newest first.
func (s *SQLiteStore) Query(ctx context.Context, filter Filter) ([]Transaction, error) {
	var (
		conds []string
		args  []any
	)
	if len(filter.AccountIDs) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(filter.AccountIDs)), ", ")
		conds = append(conds, "(source_id IN ("+marks+") OR destination_id IN ("+marks+"))")
		for range 2 {
			for _, id := range filter.AccountIDs {
				args = append(args, id)
			}
		}
	}
	if !filter.Start.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, toMillis(filter.Start))
	}
	if !filter.End.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, toMillis(filter.End))
	}

	query := `SELECT ` + sqliteTransactionColumns + ` FROM transactions`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Transaction, 0)
	for rows.Next() {
		tx, err := scanSQLiteTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteAccount(row sqlScanner) (Account, error) {
	var (
		a         Account
		kind      string
		createdAt int64
	)
	if err := row.Scan(&a.ID, &a.Number, &kind, &a.Balance, &a.OwnerID, &createdAt); err != nil {
		return Account{}, err
	}
	a.Kind = AccountKind(kind)
	a.CreatedAt = fromMillis(createdAt)
	return a, nil
}

func scanSQLiteTransaction(row sqlScanner) (Transaction, error) {
	var (
		t            Transaction
		kind, status string
		source, dest sql.NullInt64
		createdAt    int64
	)
	if err := row.Scan(&t.ID, &kind, &t.Amount, &source, &dest, &status, &t.Description, &t.Reason, &createdAt); err != nil {
		return Transaction{}, err
	}
	t.Kind = TransactionKind(kind)
	t.Status = Status(status)
	t.SourceID = source.Int64
	t.DestinationID = dest.Int64
	t.CreatedAt = fromMillis(createdAt)
	return t, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
