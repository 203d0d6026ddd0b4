package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/lesspay/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// every connection to :memory: is its own database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(&models.User{}, &models.Transaction{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func newTestStore(t *testing.T) *GormTransactionStore {
	t.Helper()
	return NewGormTransactionStore(newTestDB(t))
}

func seedTransaction(t *testing.T, store TransactionStore, gatewayTxnID string, status models.PaymentStatus) *models.Transaction {
	t.Helper()

	txn := &models.Transaction{
		OwnerID:        uuid.New(),
		Amount:         decimal.RequireFromString("250.00"),
		ReceiveAmount:  decimal.RequireFromString("245.00"),
		OrderID:        "ORD" + gatewayTxnID,
		RequestID:      uuid.NewString(),
		GatewayTxnID:   gatewayTxnID,
		GatewayRef:     "ref-" + gatewayTxnID,
		PaymentLink:    "https://pay.example.test/link?TransID=" + gatewayTxnID,
		ContactPhone:   "9876543210",
		Status:         status,
		TransferStatus: models.TransferPending,
	}
	if err := store.Create(context.Background(), txn); err != nil {
		t.Fatalf("seed transaction %s: %v", gatewayTxnID, err)
	}
	return txn
}

// fakeGateway answers status reads from a table of codes.
type fakeGateway struct {
	mu     sync.Mutex
	codes  map[string]string
	errs   map[string]error
	calls  atomic.Int64
	block  chan struct{}
	called chan string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		codes: map[string]string{},
		errs:  map[string]error{},
	}
}

func (g *fakeGateway) set(id, code string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.codes[id] = code
	delete(g.errs, id)
}

func (g *fakeGateway) fail(id string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs[id] = err
}

func (g *fakeGateway) FetchStatus(ctx context.Context, id string) (*StatusResult, error) {
	g.calls.Add(1)
	if g.called != nil {
		select {
		case g.called <- id:
		default:
		}
	}
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return nil, &GatewayRequestError{Op: "getPBLTransactionDetails", Err: ctx.Err()}
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err, ok := g.errs[id]; ok {
		return nil, err
	}
	code, ok := g.codes[id]
	if !ok {
		return nil, &GatewayRequestError{Op: "getPBLTransactionDetails", Err: errors.New("no status")}
	}
	return &StatusResult{
		Code: code,
		Raw:  []byte(`{"Payment_Status":"` + code + `","IPG_ID":"` + id + `"}`),
	}, nil
}

// recordingNotifier counts completion notifications.
type recordingNotifier struct {
	mu   sync.Mutex
	txns []models.Transaction
	err  error
}

func (n *recordingNotifier) NotifyPaymentCompleted(_ context.Context, txn models.Transaction) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.txns = append(n.txns, txn)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.txns)
}

func newTestReconciler(store TransactionStore, gateway StatusFetcher, notifier CompletionNotifier) *Reconciler {
	return NewReconciler(store, gateway, notifier, ReconcilerConfig{
		Interval:    20 * time.Millisecond,
		Concurrency: 4,
		CallTimeout: time.Second,
	}, zap.NewNop())
}
