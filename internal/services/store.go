package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/lesspay/internal/models"
)

// TransactionStore persists transactions. Save is the only mutation path for
// existing records and is a read-modify-write on the latest stored version.
type TransactionStore interface {
	Create(ctx context.Context, txn *models.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	GetByGatewayTxnID(ctx context.Context, gatewayTxnID string) (*models.Transaction, error)
	GetByGatewayRef(ctx context.Context, gatewayRef string) (*models.Transaction, error)
	GetByOrderID(ctx context.Context, orderID string) (*models.Transaction, error)
	FindNonTerminal(ctx context.Context) ([]models.Transaction, error)
	List(ctx context.Context, filter TransactionFilter) ([]models.Transaction, int64, error)
	Save(ctx context.Context, id uuid.UUID, mutate func(txn *models.Transaction) bool) (*models.Transaction, bool, error)
}

// TransactionFilter narrows List. Zero values mean "any".
type TransactionFilter struct {
	OwnerID        *uuid.UUID
	Status         models.PaymentStatus
	TransferStatus models.TransferStatus
	OrderID        string
	Limit          int
	Offset         int
}

// GormTransactionStore is the gorm-backed TransactionStore.
type GormTransactionStore struct {
	db *gorm.DB
}

func NewGormTransactionStore(db *gorm.DB) *GormTransactionStore {
	return &GormTransactionStore{db: db}
}

func (s *GormTransactionStore) Create(ctx context.Context, txn *models.Transaction) error {
	if txn.Status == "" {
		txn.Status = models.PaymentPending
	}
	if txn.TransferStatus == "" {
		txn.TransferStatus = models.TransferPending
	}
	return s.db.WithContext(ctx).Create(txn).Error
}

func (s *GormTransactionStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return s.first(ctx, "transaction", id.String(), "id = ?", id)
}

func (s *GormTransactionStore) GetByGatewayTxnID(ctx context.Context, gatewayTxnID string) (*models.Transaction, error) {
	return s.first(ctx, "transaction", gatewayTxnID, "gateway_txn_id = ?", gatewayTxnID)
}

// GetByGatewayRef looks up the gateway's own txn_id returned at link creation.
func (s *GormTransactionStore) GetByGatewayRef(ctx context.Context, gatewayRef string) (*models.Transaction, error) {
	return s.first(ctx, "transaction", gatewayRef, "gateway_ref = ?", gatewayRef)
}

func (s *GormTransactionStore) GetByOrderID(ctx context.Context, orderID string) (*models.Transaction, error) {
	return s.first(ctx, "transaction", orderID, "order_id = ?", orderID)
}

// FindNonTerminal returns every transaction still pending collection, oldest first.
func (s *GormTransactionStore) FindNonTerminal(ctx context.Context) ([]models.Transaction, error) {
	var txns []models.Transaction
	if err := s.db.WithContext(ctx).
		Where("status = ?", models.PaymentPending).
		Order("created_at asc").
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// List returns a page of transactions, newest first, and the total match count.
func (s *GormTransactionStore) List(ctx context.Context, filter TransactionFilter) ([]models.Transaction, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Transaction{})

	if filter.OwnerID != nil {
		query = query.Where("owner_id = ?", *filter.OwnerID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.TransferStatus != "" {
		query = query.Where("transfer_status = ?", filter.TransferStatus)
	}
	if filter.OrderID != "" {
		query = query.Where("order_id = ?", filter.OrderID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}

	var txns []models.Transaction
	if err := query.Order("created_at desc").Find(&txns).Error; err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

// Save re-reads the record inside a database transaction (row-locked on
// postgres), applies mutate and writes the full record only when mutate
// reports a change. It returns the latest record and whether this call wrote.
func (s *GormTransactionStore) Save(ctx context.Context, id uuid.UUID, mutate func(txn *models.Transaction) bool) (*models.Transaction, bool, error) {
	var (
		latest models.Transaction
		wrote  bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx
		if tx.Dialector.Name() == "postgres" {
			query = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := query.Where("id = ?", id).First(&latest).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "transaction", ID: id.String()}
			}
			return err
		}

		if !mutate(&latest) {
			return nil
		}
		if err := tx.Save(&latest).Error; err != nil {
			return err
		}
		wrote = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return &latest, wrote, nil
}

func (s *GormTransactionStore) first(ctx context.Context, resource, key string, query string, args ...any) (*models.Transaction, error) {
	var txn models.Transaction
	if err := s.db.WithContext(ctx).Where(query, args...).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: resource, ID: key}
		}
		return nil, err
	}
	return &txn, nil
}
