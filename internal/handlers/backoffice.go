package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/lesspay/internal/models"
	"github.com/example/lesspay/internal/services"
	"github.com/example/lesspay/internal/utils"
)

// Sweeper runs one reconciliation pass.
type Sweeper interface {
	Sweep(ctx context.Context) services.SweepReport
}

// BackOfficeHandler serves settlement operations for staff.
type BackOfficeHandler struct {
	store   services.TransactionStore
	sweeper Sweeper
	log     *zap.Logger
}

func NewBackOfficeHandler(store services.TransactionStore, sweeper Sweeper, log *zap.Logger) *BackOfficeHandler {
	return &BackOfficeHandler{store: store, sweeper: sweeper, log: log.Named("backoffice")}
}

// ListTransactions lists transactions across all users.
func (h *BackOfficeHandler) ListTransactions(c *fiber.Ctx) error {
	page := utils.ParsePagination(c)
	filter := services.TransactionFilter{
		OrderID: c.Query("order_id"),
		Limit:   page.Limit,
		Offset:  page.Offset,
	}

	if value := c.Query("status"); value != "" {
		status, err := services.ParsePaymentStatus(value)
		if err != nil {
			return err
		}
		filter.Status = status
	}
	if value := c.Query("transfer_status"); value != "" {
		status, err := services.ParseTransferStatus(value)
		if err != nil {
			return err
		}
		filter.TransferStatus = status
	}
	if value := c.Query("owner_id"); value != "" {
		ownerID, err := uuid.Parse(value)
		if err != nil {
			return &services.ValidationError{Field: "owner_id", Message: "must be a uuid"}
		}
		filter.OwnerID = &ownerID
	}

	txns, total, err := h.store.List(c.UserContext(), filter)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    txns,
		"meta":    page.Meta(total),
	})
}

type transferStatusRequest struct {
	Status string `json:"status"`
}

// UpdateTransferStatus records the outcome of a payout. Completed and failed
// payouts are final.
func (h *BackOfficeHandler) UpdateTransferStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req transferStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	next, err := services.ParseTransferStatus(req.Status)
	if err != nil {
		return err
	}

	latest, wrote, err := h.store.Save(c.UserContext(), id, func(txn *models.Transaction) bool {
		return services.ApplyTransferTransition(txn, next)
	})
	if err != nil {
		return err
	}
	if !wrote && latest.TransferStatus != next {
		return fiber.NewError(fiber.StatusConflict, "transfer status is already "+string(latest.TransferStatus))
	}

	if wrote {
		h.log.Info("transfer status changed",
			zap.String("transaction_id", latest.ID.String()),
			zap.String("transfer_status", string(latest.TransferStatus)),
		)
	}

	return c.JSON(fiber.Map{"success": true, "data": latest})
}

// RunSweep runs one reconciliation sweep and returns its report.
func (h *BackOfficeHandler) RunSweep(c *fiber.Ctx) error {
	report := h.sweeper.Sweep(c.UserContext())
	status := fiber.StatusOK
	if report.Skipped {
		status = fiber.StatusConflict
	}
	return c.Status(status).JSON(fiber.Map{
		"success": !report.Skipped,
		"data":    report,
	})
}
