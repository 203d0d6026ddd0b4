package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/example/lesspay/internal/models"
)

// ErrSweepRunning is returned by Run when the engine already has a sweep driver.
var ErrSweepRunning = errors.New("reconciler: sweep loop already running")

// StatusFetcher is the read side of the gateway.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, gatewayTxnID string) (*StatusResult, error)
}

// ReconcilerConfig tunes the engine.
type ReconcilerConfig struct {
	Interval    time.Duration
	Concurrency int
	CallTimeout time.Duration
}

// Reconciler keeps local transactions in step with the gateway. It is the only
// writer of Transaction.Status.
type Reconciler struct {
	store    TransactionStore
	gateway  StatusFetcher
	notifier CompletionNotifier
	cfg      ReconcilerConfig
	log      *zap.Logger

	running  atomic.Bool
	sweeping sync.Mutex
}

// NewReconciler builds a Reconciler. notifier may be nil.
func NewReconciler(store TransactionStore, gateway StatusFetcher, notifier CompletionNotifier, cfg ReconcilerConfig, log *zap.Logger) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	return &Reconciler{
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		cfg:      cfg,
		log:      log.Named("reconciler"),
	}
}

// SweepReport summarises one sweep.
type SweepReport struct {
	Scanned int  `json:"scanned"`
	Updated int  `json:"updated"`
	Failed  int  `json:"failed"`
	Skipped bool `json:"skipped,omitempty"`
}

// Reconcile refreshes one transaction on demand and returns its latest state.
// Gateway failures are returned to the caller.
func (r *Reconciler) Reconcile(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	txn, err := r.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, _, err := r.reconcile(ctx, txn)
	return updated, err
}

// Run drives Sweep every Interval until ctx is cancelled. Only one Run may be
// active per Reconciler.
func (r *Reconciler) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrSweepRunning
	}
	defer r.running.Store(false)

	r.log.Info("sweep loop started", zap.Duration("interval", r.cfg.Interval))
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("sweep loop stopped")
			return nil
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep reconciles every pending transaction. Per-transaction failures are
// logged and counted, never returned. If another sweep is in progress the
// call returns immediately with Skipped set.
func (r *Reconciler) Sweep(ctx context.Context) SweepReport {
	if !r.sweeping.TryLock() {
		r.log.Warn("previous sweep still running, skipping tick")
		return SweepReport{Skipped: true}
	}
	defer r.sweeping.Unlock()

	started := time.Now()
	pending, err := r.store.FindNonTerminal(ctx)
	if err != nil {
		r.log.Error("load pending transactions", zap.Error(err))
		return SweepReport{Failed: 1}
	}

	var updated, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for i := range pending {
		txn := &pending[i]
		g.Go(func() error {
			_, wrote, err := r.reconcile(gctx, txn)
			if err != nil {
				failed.Add(1)
				return nil
			}
			if wrote {
				updated.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report := SweepReport{
		Scanned: len(pending),
		Updated: int(updated.Load()),
		Failed:  int(failed.Load()),
	}
	r.log.Info("sweep finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("updated", report.Updated),
		zap.Int("failed", report.Failed),
		zap.Duration("took", time.Since(started)),
	)
	return report
}

// Callback is the gateway's payment notification. Its status is only a hint:
// the transaction is reconciled against a fresh gateway read.
type Callback struct {
	TranStatus string
	IPGID      string
	TranAmount string
	InvoiceNo  string
}

// HandleCallback routes a gateway notification through the same update path
// as polling.
func (r *Reconciler) HandleCallback(ctx context.Context, cb Callback) (*models.Transaction, error) {
	txn, err := r.lookupCallback(ctx, cb)
	if err != nil {
		return nil, err
	}

	if cb.TranAmount != "" {
		if amount, perr := decimal.NewFromString(cb.TranAmount); perr == nil && !amount.Equal(txn.Amount) {
			r.log.Warn("callback amount differs from transaction amount",
				zap.String("transaction_id", txn.ID.String()),
				zap.String("callback_amount", cb.TranAmount),
				zap.String("amount", txn.Amount.String()),
			)
		}
	}

	updated, _, err := r.reconcile(ctx, txn)
	return updated, err
}

// lookupCallback tries IPG_ID as the link TransID, then as the gateway txn_id,
// then falls back to the invoice number.
func (r *Reconciler) lookupCallback(ctx context.Context, cb Callback) (*models.Transaction, error) {
	if cb.IPGID == "" && cb.InvoiceNo == "" {
		return nil, &ValidationError{Field: "IPG_ID", Message: "callback does not identify a transaction"}
	}

	var lastErr error
	if cb.IPGID != "" {
		for _, lookup := range []func(context.Context, string) (*models.Transaction, error){
			r.store.GetByGatewayTxnID,
			r.store.GetByGatewayRef,
		} {
			txn, err := lookup(ctx, cb.IPGID)
			if err == nil || !IsNotFound(err) {
				return txn, err
			}
			lastErr = err
		}
	}
	if cb.InvoiceNo != "" {
		return r.store.GetByOrderID(ctx, cb.InvoiceNo)
	}
	return nil, lastErr
}

// reconcile applies the gateway's current status to txn. It reports whether
// this call wrote the record.
func (r *Reconciler) reconcile(ctx context.Context, txn *models.Transaction) (*models.Transaction, bool, error) {
	if txn.Status.IsTerminal() {
		return txn, false, nil
	}

	log := r.log.With(
		zap.String("transaction_id", txn.ID.String()),
		zap.String("gateway_txn_id", txn.GatewayTxnID),
	)

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	result, err := r.gateway.FetchStatus(callCtx, txn.GatewayTxnID)
	cancel()
	if err != nil {
		log.Warn("status fetch failed, leaving pending", zap.Error(err))
		return txn, false, err
	}

	next := DeriveStatus(result.Code)
	if next == txn.Status {
		return txn, false, nil
	}

	raw := datatypes.JSON(result.Raw)
	if !json.Valid(raw) {
		raw = nil
	}

	latest, wrote, err := r.store.Save(ctx, txn.ID, func(current *models.Transaction) bool {
		if !ApplyTransition(current, next) {
			return false
		}
		current.LastGatewayResponse = raw
		return true
	})
	if err != nil {
		log.Error("persist status change", zap.Error(err), zap.String("next", string(next)))
		return txn, false, err
	}

	if wrote {
		log.Info("transaction status changed",
			zap.String("status", string(latest.Status)),
			zap.String("gateway_code", result.Code),
		)
		if latest.Status == models.PaymentCompleted {
			r.notifyCompleted(ctx, *latest)
		}
	}

	return latest, wrote, nil
}

func (r *Reconciler) notifyCompleted(ctx context.Context, txn models.Transaction) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.NotifyPaymentCompleted(ctx, txn); err != nil {
		r.log.Warn("completion notification failed",
			zap.String("transaction_id", txn.ID.String()),
			zap.Error(err),
		)
	}
}
