package services

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/lesspay/internal/models"
)

// LinkGateway is the link-creation side of the gateway.
type LinkGateway interface {
	CreateSessionToken(ctx context.Context) (string, error)
	CreatePaymentLink(ctx context.Context, req LinkRequest, token string) (*LinkResult, error)
}

// LinkInput is a request for a new payment link.
type LinkInput struct {
	OwnerID       uuid.UUID
	Amount        decimal.Decimal
	ReceiveAmount decimal.Decimal
	Phone         string
	Email         string
}

// IssuedLink is returned to the caller once the transaction is stored.
type IssuedLink struct {
	PaymentLink   string    `json:"payment_link"`
	TransactionID uuid.UUID `json:"transaction_id"`
	OrderID       string    `json:"order_id"`
}

// LinkIssuer pairs a fresh gateway payment link with a pending transaction.
type LinkIssuer struct {
	gateway LinkGateway
	store   TransactionStore
	timeout time.Duration
	log     *zap.Logger
	now     func() time.Time
}

func NewLinkIssuer(gateway LinkGateway, store TransactionStore, timeout time.Duration, log *zap.Logger) *LinkIssuer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &LinkIssuer{
		gateway: gateway,
		store:   store,
		timeout: timeout,
		log:     log.Named("links"),
		now:     time.Now,
	}
}

// CreateLink acquires a session token, creates the link and stores a pending
// transaction. Nothing is stored unless the gateway issued a link.
func (l *LinkIssuer) CreateLink(ctx context.Context, in LinkInput) (*IssuedLink, error) {
	if err := validateLinkInput(in); err != nil {
		return nil, err
	}

	tokenCtx, cancel := context.WithTimeout(ctx, l.timeout)
	token, err := l.gateway.CreateSessionToken(tokenCtx)
	cancel()
	if err != nil {
		l.log.Warn("session token failed", zap.String("owner_id", in.OwnerID.String()), zap.Error(err))
		return nil, err
	}

	req := LinkRequest{
		Amount:    in.Amount,
		Phone:     strings.TrimSpace(in.Phone),
		Email:     strings.TrimSpace(in.Email),
		OrderID:   fmt.Sprintf("ORD%d", l.now().UnixMilli()),
		RequestID: uuid.NewString(),
	}

	linkCtx, cancel := context.WithTimeout(ctx, l.timeout)
	link, err := l.gateway.CreatePaymentLink(linkCtx, req, token)
	cancel()
	if err != nil {
		l.log.Warn("payment link failed",
			zap.String("owner_id", in.OwnerID.String()),
			zap.String("request_id", req.RequestID),
			zap.Error(err),
		)
		return nil, err
	}

	txn := &models.Transaction{
		OwnerID:        in.OwnerID,
		Amount:         in.Amount,
		ReceiveAmount:  in.ReceiveAmount,
		OrderID:        req.OrderID,
		RequestID:      req.RequestID,
		GatewayTxnID:   link.GatewayTxnID,
		GatewayRef:     link.GatewayRef,
		PaymentLink:    link.PaymentLink,
		ContactPhone:   req.Phone,
		ContactEmail:   req.Email,
		Status:         models.PaymentPending,
		TransferStatus: models.TransferPending,
	}
	if err := l.store.Create(ctx, txn); err != nil {
		l.log.Error("store issued link",
			zap.String("gateway_txn_id", link.GatewayTxnID),
			zap.String("request_id", req.RequestID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("store transaction: %w", err)
	}

	l.log.Info("payment link issued",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("gateway_txn_id", txn.GatewayTxnID),
		zap.String("amount", txn.Amount.String()),
	)

	return &IssuedLink{
		PaymentLink:   txn.PaymentLink,
		TransactionID: txn.ID,
		OrderID:       txn.OrderID,
	}, nil
}

func validateLinkInput(in LinkInput) error {
	if in.OwnerID == uuid.Nil {
		return &ValidationError{Field: "owner_id", Message: "is required"}
	}
	if !in.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be greater than zero"}
	}
	if in.Amount.Exponent() < -2 {
		return &ValidationError{Field: "amount", Message: "must have at most two decimal places"}
	}
	if in.ReceiveAmount.IsNegative() {
		return &ValidationError{Field: "receive_amount", Message: "must not be negative"}
	}
	if strings.TrimSpace(in.Phone) == "" {
		return &ValidationError{Field: "phone", Message: "is required"}
	}
	if email := strings.TrimSpace(in.Email); email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return &ValidationError{Field: "email", Message: "is not a valid address"}
		}
	}
	return nil
}
