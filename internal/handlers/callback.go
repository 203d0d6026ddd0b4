package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/example/lesspay/internal/models"
	"github.com/example/lesspay/internal/services"
)

// CallbackProcessor applies gateway notifications.
type CallbackProcessor interface {
	HandleCallback(ctx context.Context, cb services.Callback) (*models.Transaction, error)
}

// CallbackHandler receives the gateway's payment notification webhook.
type CallbackHandler struct {
	processor CallbackProcessor
	log       *zap.Logger
}

func NewCallbackHandler(processor CallbackProcessor, log *zap.Logger) *CallbackHandler {
	return &CallbackHandler{processor: processor, log: log.Named("callback")}
}

// PaymentCallback acknowledges every well-formed notification. Processing
// failures are logged; the sweep picks the transaction up later.
func (h *CallbackHandler) PaymentCallback(c *fiber.Ctx) error {
	cb, err := parseCallback(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid callback body")
	}

	log := h.log.With(
		zap.String("ipg_id", cb.IPGID),
		zap.String("invoice_no", cb.InvoiceNo),
		zap.String("tran_status", cb.TranStatus),
	)
	log.Info("payment callback received")

	txn, err := h.processor.HandleCallback(c.UserContext(), cb)
	if err != nil {
		log.Warn("payment callback not applied", zap.Error(err))
	} else {
		log.Info("payment callback applied",
			zap.String("transaction_id", txn.ID.String()),
			zap.String("status", string(txn.Status)),
		)
	}

	return c.JSON(fiber.Map{"status": "success"})
}

// parseCallback accepts JSON or form bodies. JSON values may be strings or numbers.
func parseCallback(c *fiber.Ctx) (services.Callback, error) {
	if !strings.Contains(strings.ToLower(c.Get(fiber.HeaderContentType)), "json") {
		return services.Callback{
			TranStatus: strings.TrimSpace(c.FormValue("TRAN_STATUS")),
			IPGID:      strings.TrimSpace(c.FormValue("IPG_ID")),
			TranAmount: strings.TrimSpace(c.FormValue("TranAmount")),
			InvoiceNo:  strings.TrimSpace(c.FormValue("ME_InvNo")),
		}, nil
	}

	var body map[string]any
	dec := json.NewDecoder(bytes.NewReader(c.Body()))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return services.Callback{}, err
	}
	return services.Callback{
		TranStatus: callbackField(body, "TRAN_STATUS"),
		IPGID:      callbackField(body, "IPG_ID"),
		TranAmount: callbackField(body, "TranAmount"),
		InvoiceNo:  callbackField(body, "ME_InvNo"),
	}, nil
}

func callbackField(body map[string]any, key string) string {
	switch v := body[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
