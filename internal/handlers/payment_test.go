package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/lesspay/internal/models"
	"github.com/example/lesspay/internal/services"
)

type issuedLink struct {
	PaymentLink   string    `json:"payment_link"`
	TransactionID uuid.UUID `json:"transaction_id"`
}

func createLink(t *testing.T, s *testServer, token string, payload map[string]any) issuedLink {
	t.Helper()

	resp, body := s.do(t, http.MethodPost, "/api/payments/links", token, payload)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create link: %d %s", resp.StatusCode, body)
	}
	var link issuedLink
	if err := json.Unmarshal(decodeEnvelope(t, body).Data, &link); err != nil {
		t.Fatalf("decode link: %v", err)
	}
	return link
}

func TestCreateLinkDefaultsContactToProfile(t *testing.T) {
	s := newTestServer(t)
	ownerID, token := s.register(t, "hana@example.com", "9000000001")

	link := createLink(t, s, token, map[string]any{"amount": "1200.50"})
	if link.PaymentLink == "" || link.TransactionID == uuid.Nil {
		t.Fatalf("link = %+v", link)
	}

	txn, err := s.store.GetByID(context.Background(), link.TransactionID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if txn.OwnerID != ownerID || txn.Status != models.PaymentPending {
		t.Fatalf("txn = %+v", txn)
	}
	if txn.ContactPhone != "9000000001" || txn.ContactEmail != "hana@example.com" {
		t.Fatalf("contact = %s / %s", txn.ContactPhone, txn.ContactEmail)
	}
	if !txn.ReceiveAmount.Equal(txn.Amount) {
		t.Fatalf("receive amount %s, amount %s", txn.ReceiveAmount, txn.Amount)
	}
}

func TestCreateLinkFailures(t *testing.T) {
	s := newTestServer(t)
	_, token := s.register(t, "ivan@example.com", "9000000002")

	resp, body := s.do(t, http.MethodPost, "/api/payments/links", token, map[string]any{"amount": 0})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("zero amount: %d %s", resp.StatusCode, body)
	}

	s.gateway.linkErr = &services.GatewayRequestError{Op: "MswipePayment", StatusCode: 500, Err: errors.New("down")}
	resp, body = s.do(t, http.MethodPost, "/api/payments/links", token, map[string]any{"amount": 50})
	if resp.StatusCode != fiber.StatusBadGateway {
		t.Fatalf("gateway failure: %d %s", resp.StatusCode, body)
	}
	if env := decodeEnvelope(t, body); env.Error == nil || env.Error.Code != "gateway_error" {
		t.Fatalf("error body = %s", body)
	}

	_, total, err := s.store.List(context.Background(), services.TransactionFilter{})
	if err != nil || total != 0 {
		t.Fatalf("transactions stored after failures: %d, %v", total, err)
	}

	resp, _ = s.do(t, http.MethodPost, "/api/payments/links", "", map[string]any{"amount": 50})
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("anonymous create: %d", resp.StatusCode)
	}
}

func TestPaymentStatusReconciles(t *testing.T) {
	s := newTestServer(t)
	_, token := s.register(t, "jane@example.com", "9000000003")
	link := createLink(t, s, token, map[string]any{"amount": 99, "phone": "9111111111"})

	txn, err := s.store.GetByID(context.Background(), link.TransactionID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	path := "/api/payments/" + link.TransactionID.String() + "/status"

	resp, body := s.do(t, http.MethodGet, path, token, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status: %d %s", resp.StatusCode, body)
	}
	var data struct {
		Status         models.PaymentStatus  `json:"status"`
		TransferStatus models.TransferStatus `json:"transfer_status"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, body).Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Status != models.PaymentPending || data.TransferStatus != models.TransferPending {
		t.Fatalf("data = %+v", data)
	}

	s.gateway.setCode(txn.GatewayTxnID, "1")
	_, body = s.do(t, http.MethodGet, path, token, nil)
	if err := json.Unmarshal(decodeEnvelope(t, body).Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if data.Status != models.PaymentCompleted {
		t.Fatalf("status after gateway success = %s", data.Status)
	}

	resp, _ = s.do(t, http.MethodGet, "/api/payments/"+link.TransactionID.String(), token, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("get transaction: %d", resp.StatusCode)
	}
}

func TestPaymentStatusGatewayTimeout(t *testing.T) {
	s := newTestServer(t)
	_, token := s.register(t, "kim@example.com", "9000000004")
	link := createLink(t, s, token, map[string]any{"amount": 10})

	s.gateway.statusErr = &services.GatewayRequestError{Op: "getPBLTransactionDetails", Err: context.DeadlineExceeded}
	resp, body := s.do(t, http.MethodGet, "/api/payments/"+link.TransactionID.String()+"/status", token, nil)
	if resp.StatusCode != fiber.StatusGatewayTimeout {
		t.Fatalf("timeout: %d %s", resp.StatusCode, body)
	}

	txn, err := s.store.GetByID(context.Background(), link.TransactionID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if txn.Status != models.PaymentPending {
		t.Fatalf("status after timeout = %s", txn.Status)
	}
}

func TestPaymentStatusHidesOtherUsersTransactions(t *testing.T) {
	s := newTestServer(t)
	_, ownerToken := s.register(t, "leo@example.com", "9000000005")
	_, otherToken := s.register(t, "mia@example.com", "9000000006")
	link := createLink(t, s, ownerToken, map[string]any{"amount": 10})

	resp, _ := s.do(t, http.MethodGet, "/api/payments/"+link.TransactionID.String()+"/status", otherToken, nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("foreign status: %d", resp.StatusCode)
	}

	resp, _ = s.do(t, http.MethodGet, "/api/payments/not-a-uuid", ownerToken, nil)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("bad id: %d", resp.StatusCode)
	}

	resp, _ = s.do(t, http.MethodGet, "/api/payments/"+uuid.NewString(), ownerToken, nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("unknown id: %d", resp.StatusCode)
	}
}
