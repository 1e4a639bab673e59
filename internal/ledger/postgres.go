package ledger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/revobank/revobank/internal/infra"
	"github.com/revobank/revobank/internal/ledger/migrations"
)

const (
	pgUniqueViolation = "23505"

	pgAccountColumns     = `id, number, kind, balance, owner_id, created_at`
	pgTransactionColumns = `id, kind, amount, source_id, destination_id, status, description, reason, created_at`
)

// PostgresStore persists accounts and the transaction log in PostgreSQL.
type PostgresStore struct {
	db        *pgxpool.Pool
	numberGen NumberGenerator
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db, numberGen: RandomAccountNumber}
}

// Migrate applies the embedded schema. Every statement is idempotent DDL.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	files, err := infra.MigrationFiles(migrations.FS, "postgres")
	if err != nil {
		return err
	}
	for _, file := range files {
		content, err := fs.ReadFile(migrations.FS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if _, err := s.db.Exec(ctx, infra.UpSection(string(content))); err != nil {
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
	}
	return nil
}

// CreateAccount inserts a zero-balance account, retrying on account number collisions.
func (s *PostgresStore) CreateAccount(ctx context.Context, ownerID string, kind AccountKind) (Account, error) {
	var created Account
	err := withUniqueNumber(s.numberGen, func(number string) error {
		row := s.db.QueryRow(ctx, `INSERT INTO accounts (number, kind, owner_id)
        VALUES ($1, $2, $3) RETURNING `+pgAccountColumns, number, string(kind), ownerID)
		account, err := scanAccount(row)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
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
func (s *PostgresStore) GetAccount(ctx context.Context, id int64) (Account, error) {
	row := s.db.QueryRow(ctx, `SELECT `+pgAccountColumns+` FROM accounts WHERE id = $1`, id)
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	return account, err
}

// ListAccounts returns the owner's accounts ordered by id.
func (s *PostgresStore) ListAccounts(ctx context.Context, ownerID string) ([]Account, error) {
	rows, err := s.db.Query(ctx, `SELECT `+pgAccountColumns+` FROM accounts WHERE owner_id = $1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, account)
	}
	return out, rows.Err()
}

// UpdateAccountKind changes the product kind of an account.
func (s *PostgresStore) UpdateAccountKind(ctx context.Context, id int64, kind AccountKind) (Account, error) {
	row := s.db.QueryRow(ctx, `UPDATE accounts SET kind = $2 WHERE id = $1 RETURNING `+pgAccountColumns, id, string(kind))
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	return account, err
}

// Adjust applies delta in a single guarded UPDATE so a negative balance is never written.
func (s *PostgresStore) Adjust(ctx context.Context, id, delta int64) (Account, error) {
	row := s.db.QueryRow(ctx, `UPDATE accounts SET balance = balance + $2
        WHERE id = $1 AND balance + $2 >= 0 RETURNING `+pgAccountColumns, id, delta)
	account, err := scanAccount(row)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Account{}, err
	}
	if _, err := s.GetAccount(ctx, id); err != nil {
		return Account{}, err
	}
	return Account{}, fmt.Errorf("account %d: %w", id, ErrInsufficientFunds)
}

// DeleteAccount removes an account whose balance is exactly zero.
func (s *PostgresStore) DeleteAccount(ctx context.Context, id int64) error {
	cmd, err := s.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1 AND balance = 0`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.GetAccount(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("account %d: %w", id, ErrNonZeroBalance)
}

// Append stores a transaction record; the database assigns id and timestamp.
func (s *PostgresStore) Append(ctx context.Context, tx Transaction) (Transaction, error) {
	row := s.db.QueryRow(ctx, `INSERT INTO transactions (kind, amount, source_id, destination_id, status, description, reason)
        VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING `+pgTransactionColumns,
		string(tx.Kind), tx.Amount, nullableID(tx.SourceID), nullableID(tx.DestinationID),
		string(tx.Status), tx.Description, tx.Reason)
	return scanTransaction(row)
}

// GetTransaction fetches one record by id.
func (s *PostgresStore) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	row := s.db.QueryRow(ctx, `SELECT `+pgTransactionColumns+` FROM transactions WHERE id = $1`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, fmt.Errorf("transaction %d: %w", id, ErrNotFound)
	}
	return tx, err
}

// Query returns matching records, newest first.
func (s *PostgresStore) Query(ctx context.Context, filter Filter) ([]Transaction, error) {
	var (
		conds []string
		args  []any
	)
	if len(filter.AccountIDs) > 0 {
		args = append(args, filter.AccountIDs)
		conds = append(conds, fmt.Sprintf("(source_id = ANY($%d) OR destination_id = ANY($%d))", len(args), len(args)))
	}
	if !filter.Start.IsZero() {
		args = append(args, filter.Start.UTC())
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.End.IsZero() {
		args = append(args, filter.End.UTC())
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	query := `SELECT ` + pgTransactionColumns + ` FROM transactions`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		a         Account
		kind      string
		createdAt time.Time
	)
	if err := row.Scan(&a.ID, &a.Number, &kind, &a.Balance, &a.OwnerID, &createdAt); err != nil {
		return Account{}, err
	}
	a.Kind = AccountKind(kind)
	a.CreatedAt = createdAt.UTC()
	return a, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		t            Transaction
		kind, status string
		source, dest *int64
		createdAt    time.Time
	)
	if err := row.Scan(&t.ID, &kind, &t.Amount, &source, &dest, &status, &t.Description, &t.Reason, &createdAt); err != nil {
		return Transaction{}, err
	}
	t.Kind = TransactionKind(kind)
	t.Status = Status(status)
	t.SourceID = derefID(source)
	t.DestinationID = derefID(dest)
	t.CreatedAt = createdAt.UTC()
	return t, nil
}

func nullableID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func derefID(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
