package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/lesspay/internal/middleware"
	"github.com/example/lesspay/internal/models"
	"github.com/example/lesspay/internal/services"
	"github.com/example/lesspay/internal/utils"
)

const testBackOfficeKey = "bo-secret"

// stubGateway stands in for the payment gateway on both the link and status side.
type stubGateway struct {
	mu        sync.Mutex
	codes     map[string]string
	statusErr error
	linkErr   error
}

func (g *stubGateway) CreateSessionToken(context.Context) (string, error) {
	return "tok", nil
}

func (g *stubGateway) CreatePaymentLink(_ context.Context, req services.LinkRequest, _ string) (*services.LinkResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.linkErr != nil {
		return nil, g.linkErr
	}
	id := "TX" + req.RequestID[:8]
	g.codes[id] = "2"
	return &services.LinkResult{
		GatewayTxnID: id,
		GatewayRef:   req.RequestID,
		PaymentLink:  "https://pbl.example.test/pay?TransID=" + id,
	}, nil
}

func (g *stubGateway) FetchStatus(_ context.Context, id string) (*services.StatusResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	code, ok := g.codes[id]
	if !ok {
		return nil, &services.GatewayRequestError{Op: "getPBLTransactionDetails", StatusCode: 404}
	}
	return &services.StatusResult{Code: code, Raw: json.RawMessage(`{"Payment_Status":"` + code + `"}`)}, nil
}

func (g *stubGateway) setCode(id, code string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.codes[id] = code
}

type testServer struct {
	app        *fiber.App
	db         *gorm.DB
	store      *services.GormTransactionStore
	gateway    *stubGateway
	reconciler *services.Reconciler
	tokens     *utils.TokenIssuer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&models.User{}, &models.Transaction{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log := zap.NewNop()
	gateway := &stubGateway{codes: map[string]string{}}
	store := services.NewGormTransactionStore(db)
	reconciler := services.NewReconciler(store, gateway, nil, services.ReconcilerConfig{CallTimeout: time.Second}, log)
	links := services.NewLinkIssuer(gateway, store, time.Second, log)
	tokens := utils.NewTokenIssuer("test-secret", time.Hour)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(log)})

	authHandler := NewAuthHandler(db, tokens)
	profileHandler := NewProfileHandler(db, store)
	paymentHandler := NewPaymentHandler(db, links, reconciler, store)
	callbackHandler := NewCallbackHandler(reconciler, log)
	backOfficeHandler := NewBackOfficeHandler(store, reconciler, log)
	adminHandler := NewAdminHandler(db)

	app.Post("/payment-callback", callbackHandler.PaymentCallback)
	app.Post("/api/auth/register", authHandler.Register)
	app.Post("/api/auth/login", authHandler.Login)

	bo := app.Group("/api/backoffice", middleware.BackOfficeAuth(testBackOfficeKey))
	bo.Get("/transactions", backOfficeHandler.ListTransactions)
	bo.Put("/transactions/:id/transfer-status", backOfficeHandler.UpdateTransferStatus)
	bo.Post("/sweep", backOfficeHandler.RunSweep)
	bo.Get("/stats", adminHandler.DashboardStats)
	bo.Get("/users", adminHandler.ListAllUsers)

	protected := app.Group("/api", middleware.AuthMiddleware(tokens))
	protected.Get("/profile", profileHandler.GetProfile)
	protected.Put("/profile", profileHandler.UpdateProfile)
	protected.Put("/profile/password", profileHandler.ChangePassword)
	protected.Put("/profile/bank", profileHandler.UpdateBankDetails)
	protected.Get("/profile/transactions", profileHandler.ListTransactions)
	protected.Post("/payments/links", paymentHandler.CreateLink)
	protected.Get("/payments/:id/status", paymentHandler.GetStatus)
	protected.Get("/payments/:id", paymentHandler.GetTransaction)

	return &testServer{
		app:        app,
		db:         db,
		store:      store,
		gateway:    gateway,
		reconciler: reconciler,
		tokens:     tokens,
	}
}

// register creates a user through the API and returns its id and token.
func (s *testServer) register(t *testing.T, email, phone string) (uuid.UUID, string) {
	t.Helper()

	resp, body := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"full_name": "Test User",
		"email":     email,
		"phone":     phone,
		"password":  "secret1",
	})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("register status %d: %s", resp.StatusCode, body)
	}

	var out struct {
		User  struct{ ID uuid.UUID } `json:"user"`
		Token string                 `json:"token"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	return out.User.ID, out.Token
}

func (s *testServer) do(t *testing.T, method, path, token string, payload any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.send(t, req)
}

func (s *testServer) backOffice(t *testing.T, method, path string, payload any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if payload != nil {
		raw, _ := json.Marshal(payload)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("ops:"+testBackOfficeKey)))
	return s.send(t, req)
}

func (s *testServer) send(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()

	resp, err := s.app.Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *errorBody      `json:"error"`
}

func decodeEnvelope(t *testing.T, body []byte) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	return env
}
