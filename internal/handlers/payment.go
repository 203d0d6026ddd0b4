package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/lesspay/internal/middleware"
	"github.com/example/lesspay/internal/models"
	"github.com/example/lesspay/internal/services"
)

// LinkCreator issues payment links.
type LinkCreator interface {
	CreateLink(ctx context.Context, in services.LinkInput) (*services.IssuedLink, error)
}

// TransactionReconciler refreshes a single transaction from the gateway.
type TransactionReconciler interface {
	Reconcile(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
}

// PaymentHandler serves payment link endpoints for authenticated users.
type PaymentHandler struct {
	db         *gorm.DB
	links      LinkCreator
	reconciler TransactionReconciler
	store      services.TransactionStore
}

func NewPaymentHandler(db *gorm.DB, links LinkCreator, reconciler TransactionReconciler, store services.TransactionStore) *PaymentHandler {
	return &PaymentHandler{
		db:         db,
		links:      links,
		reconciler: reconciler,
		store:      store,
	}
}

type createLinkRequest struct {
	Amount        decimal.Decimal  `json:"amount"`
	ReceiveAmount *decimal.Decimal `json:"receive_amount"`
	Phone         string           `json:"phone"`
	Email         string           `json:"email"`
}

// CreateLink issues a payment link on behalf of the caller. Contact details
// default to the caller's profile.
func (h *PaymentHandler) CreateLink(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req createLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	user, err := loadUser(c, h.db, userID)
	if err != nil {
		return err
	}

	in := services.LinkInput{
		OwnerID:       userID,
		Amount:        req.Amount,
		ReceiveAmount: req.Amount,
		Phone:         strings.TrimSpace(req.Phone),
		Email:         strings.TrimSpace(req.Email),
	}
	if req.ReceiveAmount != nil {
		in.ReceiveAmount = *req.ReceiveAmount
	}
	if in.Phone == "" {
		in.Phone = user.Phone
	}
	if in.Email == "" {
		in.Email = user.Email
	}

	issued, err := h.links.CreateLink(c.UserContext(), in)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    issued,
	})
}

// GetStatus reconciles the transaction against the gateway and returns the
// resulting state.
func (h *PaymentHandler) GetStatus(c *fiber.Ctx) error {
	txn, err := h.ownedTransaction(c)
	if err != nil {
		return err
	}

	latest, err := h.reconciler.Reconcile(c.UserContext(), txn.ID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"status":          latest.Status,
			"transfer_status": latest.TransferStatus,
			"details":         latest,
		},
	})
}

// GetTransaction returns the stored transaction without contacting the gateway.
func (h *PaymentHandler) GetTransaction(c *fiber.Ctx) error {
	txn, err := h.ownedTransaction(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": txn})
}

// ownedTransaction loads the :id transaction. Other users' transactions are
// reported as not found; admins see everything.
func (h *PaymentHandler) ownedTransaction(c *fiber.Ctx) (*models.Transaction, error) {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	txn, err := h.store.GetByID(c.UserContext(), id)
	if err != nil {
		return nil, err
	}
	if txn.OwnerID != userID && middleware.GetCurrentUserRole(c) != models.RoleAdmin {
		return nil, &services.NotFoundError{Resource: "transaction", ID: id.String()}
	}
	return txn, nil
}
