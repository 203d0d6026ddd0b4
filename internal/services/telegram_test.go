package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/lesspay/internal/models"
)

func TestFormatAmount(t *testing.T) {
	cases := map[string]string{
		"0":          "0.00 INR",
		"12.5":       "12.50 INR",
		"1234.5":     "1,234.50 INR",
		"1234567.89": "1,234,567.89 INR",
		"-1000":      "-1,000.00 INR",
	}
	for in, want := range cases {
		if got := FormatAmount(decimal.RequireFromString(in), ""); got != want {
			t.Errorf("FormatAmount(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestNotifyPaymentCompletedSendsToAdminChat(t *testing.T) {
	var got telegramMessage
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	svc := NewTelegramService("bot-token", "42", zap.NewNop())
	svc.apiBase = srv.URL

	txn := models.Transaction{
		BaseModel:    models.BaseModel{ID: uuid.New()},
		OrderID:      "ORD1",
		GatewayTxnID: "TX1",
		Amount:       decimal.RequireFromString("1500"),
		ContactPhone: "9876543210",
	}
	if err := svc.NotifyPaymentCompleted(context.Background(), txn); err != nil {
		t.Fatalf("NotifyPaymentCompleted: %v", err)
	}

	if path != "/botbot-token/sendMessage" {
		t.Fatalf("path = %q", path)
	}
	if got.ChatID != "42" || got.ParseMode != "HTML" {
		t.Fatalf("message = %+v", got)
	}
	if !strings.Contains(got.Text, "1,500.00 INR") || !strings.Contains(got.Text, "TX1") {
		t.Fatalf("text = %q", got.Text)
	}
}

func TestSendToAdminNotConfigured(t *testing.T) {
	svc := NewTelegramService("", "", zap.NewNop())
	svc.apiBase = "http://127.0.0.1:0"
	if err := svc.SendToAdmin(context.Background(), "hello"); err != nil {
		t.Fatalf("unconfigured send returned %v", err)
	}
}

func TestSendToAdminReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	svc := NewTelegramService("bot-token", "42", zap.NewNop())
	svc.apiBase = srv.URL
	if err := svc.SendToAdmin(context.Background(), "hello"); err == nil {
		t.Fatal("expected an error for a 403 response")
	}
}
