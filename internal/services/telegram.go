package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/lesspay/internal/models"
)

const defaultTelegramAPI = "https://api.telegram.org"

// CompletionNotifier is told about every transaction that reaches completed.
// The reconciler calls it at most once per transition.
type CompletionNotifier interface {
	NotifyPaymentCompleted(ctx context.Context, txn models.Transaction) error
}

// TelegramService sends admin notifications to a Telegram chat.
type TelegramService struct {
	botToken    string
	adminChatID string
	apiBase     string
	httpClient  *http.Client
	log         *zap.Logger
}

// NewTelegramService creates a TelegramService. With an empty token or chat
// it silently does nothing.
func NewTelegramService(botToken, adminChatID string, log *zap.Logger) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		apiBase:     defaultTelegramAPI,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		log:         log.Named("telegram"),
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendToAdmin sends an HTML message to the admin chat.
func (s *TelegramService) SendToAdmin(ctx context.Context, text string) error {
	if s.botToken == "" || s.adminChatID == "" {
		s.log.Debug("telegram not configured, message dropped")
		return nil
	}

	body, err := json.Marshal(telegramMessage{
		ChatID:    s.adminChatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiBase, s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}

// NotifyPaymentCompleted tells the admin chat that a link was paid.
func (s *TelegramService) NotifyPaymentCompleted(ctx context.Context, txn models.Transaction) error {
	message := fmt.Sprintf(`<b>✅ PAYMENT RECEIVED</b>
<b>Transaction:</b> %s
<b>Order:</b> %s
<b>Gateway ID:</b> %s
<b>Amount:</b> %s
<b>Phone:</b> %s
━━━━━━━━━━━━━━━━━━`,
		txn.ID,
		txn.OrderID,
		txn.GatewayTxnID,
		FormatAmount(txn.Amount, "INR"),
		txn.ContactPhone,
	)

	return s.SendToAdmin(ctx, strings.TrimSpace(message))
}

// FormatAmount renders an amount with thousand separators and two decimals.
func FormatAmount(amount decimal.Decimal, currency string) string {
	if currency == "" {
		currency = "INR"
	}

	fixed := amount.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(digit)
	}

	sign := ""
	if amount.IsNegative() {
		sign = "-"
	}
	return fmt.Sprintf("%s%s.%s %s", sign, grouped.String(), frac, currency)
}
