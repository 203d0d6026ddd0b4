package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/lesspay/internal/models"
)

// Gateway Payment_Status codes with a defined meaning. Every other code,
// including 0 and 3 (declined, expired), resolves to failed.
const (
	GatewayCodeSuccess = 1
	GatewayCodePending = 2
)

// DeriveStatus maps a gateway Payment_Status code to a local status.
// Unknown or unparseable codes are failed: an ambiguous state is never success.
func DeriveStatus(code string) models.PaymentStatus {
	n, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil {
		return models.PaymentFailed
	}
	switch n {
	case GatewayCodeSuccess:
		return models.PaymentCompleted
	case GatewayCodePending:
		return models.PaymentPending
	default:
		return models.PaymentFailed
	}
}

// ApplyTransition moves txn to next. It returns false and leaves txn untouched
// when the current status is terminal or already equal to next.
func ApplyTransition(txn *models.Transaction, next models.PaymentStatus) bool {
	if txn.Status.IsTerminal() || txn.Status == next {
		return false
	}
	txn.Status = next
	if next.IsTerminal() {
		now := time.Now()
		txn.StatusChangedAt = &now
	}
	return true
}

// ApplyTransferTransition is ApplyTransition for the payout status.
func ApplyTransferTransition(txn *models.Transaction, next models.TransferStatus) bool {
	if txn.TransferStatus.IsTerminal() || txn.TransferStatus == next {
		return false
	}
	txn.TransferStatus = next
	if next.IsTerminal() {
		now := time.Now()
		txn.TransferChangedAt = &now
	}
	return true
}

// ParsePaymentStatus validates a textual payment status.
func ParsePaymentStatus(value string) (models.PaymentStatus, error) {
	switch s := models.PaymentStatus(strings.ToLower(strings.TrimSpace(value))); s {
	case models.PaymentPending, models.PaymentCompleted, models.PaymentFailed:
		return s, nil
	default:
		return "", &ValidationError{Field: "status", Message: fmt.Sprintf("unknown payment status %q", value)}
	}
}

// ParseTransferStatus validates a textual transfer status.
func ParseTransferStatus(value string) (models.TransferStatus, error) {
	switch s := models.TransferStatus(strings.ToLower(strings.TrimSpace(value))); s {
	case models.TransferPending, models.TransferCompleted, models.TransferFailed:
		return s, nil
	default:
		return "", &ValidationError{Field: "transfer_status", Message: fmt.Sprintf("unknown transfer status %q", value)}
	}
}
