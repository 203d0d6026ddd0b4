package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Transaction is a payment collection request paired with a gateway link.
type Transaction struct {
	BaseModel
	OwnerID             uuid.UUID       `gorm:"type:uuid;index;not null" json:"owner_id"`
	Amount              decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	ReceiveAmount       decimal.Decimal `gorm:"type:numeric(20,2)" json:"receive_amount"`
	OrderID             string          `gorm:"index" json:"order_id"`
	RequestID           string          `gorm:"uniqueIndex" json:"request_id"`
	GatewayTxnID        string          `gorm:"column:gateway_txn_id;uniqueIndex;not null" json:"gateway_txn_id"`
	GatewayRef          string          `gorm:"column:gateway_ref;index" json:"gateway_ref"`
	PaymentLink         string          `json:"payment_link"`
	ContactPhone        string          `json:"contact_phone"`
	ContactEmail        string          `json:"contact_email"`
	Status              PaymentStatus   `gorm:"type:varchar(16);index;not null;default:pending" json:"status"`
	TransferStatus      TransferStatus  `gorm:"type:varchar(16);index;not null;default:pending" json:"transfer_status"`
	LastGatewayResponse datatypes.JSON  `json:"last_gateway_response,omitempty"`
	StatusChangedAt     *time.Time      `json:"status_changed_at"`
	TransferChangedAt   *time.Time      `json:"transfer_changed_at"`
}
