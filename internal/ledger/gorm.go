package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormAccount maps the accounts table.
type gormAccount struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Number    string `gorm:"size:10;not null;uniqueIndex"`
	Kind      string `gorm:"size:16;not null"`
	Balance   int64  `gorm:"not null;default:0"`
	OwnerID   string `gorm:"size:64;not null;index"`
	CreatedAt time.Time
}

func (*gormAccount) TableName() string {
	return "accounts"
}

// gormTransaction maps the transactions table.
type gormTransaction struct {
	ID            int64     `gorm:"primaryKey;autoIncrement"`
	Kind          string    `gorm:"size:16;not null"`
	Amount        int64     `gorm:"not null"`
	SourceID      *int64    `gorm:"index"`
	DestinationID *int64    `gorm:"index"`
	Status        string    `gorm:"size:16;not null"`
	Description   string    `gorm:"size:200"`
	Reason        string    `gorm:"size:200"`
	CreatedAt     time.Time `gorm:"index"`
}

func (*gormTransaction) TableName() string {
	return "transactions"
}

// GormStore persists the ledger through GORM; it is used with the MySQL driver.
type GormStore struct {
	db        *gorm.DB
	numberGen NumberGenerator
}

// NewGormStore wraps an open GORM handle. The handle should be opened with
// TranslateError so duplicate keys surface as gorm.ErrDuplicatedKey.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, numberGen: RandomAccountNumber}
}

// Migrate creates or updates the tables.
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&gormAccount{}, &gormTransaction{})
}

// CreateAccount inserts a zero-balance account, retrying on account number collisions.
func (s *GormStore) CreateAccount(ctx context.Context, ownerID string, kind AccountKind) (Account, error) {
	var created Account
	err := withUniqueNumber(s.numberGen, func(number string) error {
		row := gormAccount{Number: number, Kind: string(kind), OwnerID: ownerID, CreatedAt: time.Now().UTC()}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errNumberTaken
			}
			return err
		}
		created = row.toDomain()
		return nil
	})
	return created, err
}

// GetAccount fetches an account by id.
func (s *GormStore) GetAccount(ctx context.Context, id int64) (Account, error) {
	var row gormAccount
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Account{}, fmt.Errorf("account %d: %w", id, ErrNotFound)
		}
		return Account{}, err
	}
	return row.toDomain(), nil
}

// ListAccounts returns the owner's accounts ordered by id.
func (s *GormStore) ListAccounts(ctx context.Context, ownerID string) ([]Account, error) {
	var rows []gormAccount
	if err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Account, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// UpdateAccountKind changes the product kind of an account.
func (s *GormStore) UpdateAccountKind(ctx context.Context, id int64, kind AccountKind) (Account, error) {
	res := s.db.WithContext(ctx).Model(&gormAccount{}).Where("id = ?", id).Update("kind", string(kind))
	if res.Error != nil {
		return Account{}, res.Error
	}
	return s.GetAccount(ctx, id)
}

// Adjust reads the row FOR UPDATE and writes the new balance in one database transaction.
func (s *GormStore) Adjust(ctx context.Context, id, delta int64) (Account, error) {
	var updated gormAccount
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&updated, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("account %d: %w", id, ErrNotFound)
			}
			return err
		}
		if updated.Balance+delta < 0 {
			return fmt.Errorf("account %d: %w", id, ErrInsufficientFunds)
		}
		updated.Balance += delta
		return tx.Model(&updated).Update("balance", updated.Balance).Error
	})
	if err != nil {
		return Account{}, err
	}
	return updated.toDomain(), nil
}

// DeleteAccount removes an account whose balance is exactly zero.
func (s *GormStore) DeleteAccount(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Where("id = ? AND balance = 0", id).Delete(&gormAccount{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := s.GetAccount(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("account %d: %w", id, ErrNonZeroBalance)
}

// Append stores a record; the database assigns the id.
func (s *GormStore) Append(ctx context.Context, tx Transaction) (Transaction, error) {
	row := gormTransaction{
		Kind:          string(tx.Kind),
		Amount:        tx.Amount,
		SourceID:      nullableID(tx.SourceID),
		DestinationID: nullableID(tx.DestinationID),
		Status:        string(tx.Status),
		Description:   tx.Description,
		Reason:        tx.Reason,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Transaction{}, err
	}
	return row.toDomain(), nil
}

// GetTransaction fetches one record by id.
func (s *GormStore) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	var row gormTransaction
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Transaction{}, fmt.Errorf("transaction %d: %w", id, ErrNotFound)
		}
		return Transaction{}, err
	}
	return row.toDomain(), nil
}

// Query returns matching records, newest first.
func (s *GormStore) Query(ctx context.Context, filter Filter) ([]Transaction, error) {
	q := s.db.WithContext(ctx).Model(&gormTransaction{})
	if len(filter.AccountIDs) > 0 {
		q = q.Where("source_id IN ? OR destination_id IN ?", filter.AccountIDs, filter.AccountIDs)
	}
	if !filter.Start.IsZero() {
		q = q.Where("created_at >= ?", filter.Start.UTC())
	}
	if !filter.End.IsZero() {
		q = q.Where("created_at <= ?", filter.End.UTC())
	}

	var rows []gormTransaction
	if err := q.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (a gormAccount) toDomain() Account {
	return Account{
		ID:        a.ID,
		Number:    a.Number,
		Kind:      AccountKind(a.Kind),
		Balance:   a.Balance,
		OwnerID:   a.OwnerID,
		CreatedAt: a.CreatedAt.UTC(),
	}
}

func (t gormTransaction) toDomain() Transaction {
	return Transaction{
		ID:            t.ID,
		Kind:          TransactionKind(t.Kind),
		Amount:        t.Amount,
		SourceID:      derefID(t.SourceID),
		DestinationID: derefID(t.DestinationID),
		Status:        Status(t.Status),
		Description:   t.Description,
		Reason:        t.Reason,
		CreatedAt:     t.CreatedAt.UTC(),
	}
}
