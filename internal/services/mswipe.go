package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	mswipeApplID      = "api"
	mswipeChannelID   = "pbl"
	mswipeVersion     = "VER4.0.0"
	mswipeMaxBodySize = 1 << 20
)

// MswipeConfig carries the merchant credentials and endpoint for the Pay By Link API.
type MswipeConfig struct {
	BaseURL  string
	UserID   string
	ClientID string
	Password string
	CustCode string
	Timeout  time.Duration
}

// MswipeClient talks to the Mswipe Pay By Link API. It holds no business state
// and does not cache session tokens.
type MswipeClient struct {
	cfg        MswipeConfig
	httpClient *http.Client
}

// NewMswipeClient builds a client; a zero timeout falls back to 15 seconds.
func NewMswipeClient(cfg MswipeConfig) *MswipeClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &MswipeClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// LinkRequest describes a payment link to create.
type LinkRequest struct {
	Amount    decimal.Decimal
	Phone     string
	Email     string
	OrderID   string
	RequestID string
}

// LinkResult is what the gateway assigned to a new link.
type LinkResult struct {
	GatewayTxnID string
	GatewayRef   string
	PaymentLink  string
}

// StatusResult is the gateway's current view of a transaction.
type StatusResult struct {
	Code string
	Raw  json.RawMessage
}

// looseString accepts a JSON string, number or bool and keeps its text form.
// The gateway is not consistent about quoting its status fields.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = looseString(strings.TrimSpace(str))
		return nil
	}
	*s = looseString(strings.TrimSpace(string(data)))
	return nil
}

func (s looseString) isTrue() bool {
	return strings.EqualFold(string(s), "true")
}

type mswipeTokenRequest struct {
	UserID    string `json:"userId"`
	ClientID  string `json:"clientId"`
	Password  string `json:"password"`
	ApplID    string `json:"applId"`
	ChannelID string `json:"channelId"`
}

type mswipeTokenResponse struct {
	Status looseString `json:"status"`
	Token  string      `json:"token"`
	Msg    string      `json:"msg"`
}

type mswipePaymentRequest struct {
	Amount        string `json:"amount"`
	MobileNo      string `json:"mobileno"`
	CustCode      string `json:"custcode"`
	UserID        string `json:"user_id"`
	SessionToken  string `json:"sessiontoken"`
	VersionNo     string `json:"versionno"`
	EmailID       string `json:"email_id"`
	InvoiceID     string `json:"invoice_id"`
	RequestID     string `json:"request_id"`
	ApplicationID string `json:"ApplicationId"`
	ChannelID     string `json:"ChannelId"`
	ClientID      string `json:"ClientId"`
}

type mswipePaymentResponse struct {
	Status          looseString `json:"status"`
	TxnID           looseString `json:"txn_id"`
	SMSLink         string      `json:"smslink"`
	ResponseMessage string      `json:"responsemessage"`
}

type mswipeStatusRequest struct {
	ID string `json:"id"`
}

type mswipeStatusResponse struct {
	Status looseString       `json:"Status"`
	Data   []json.RawMessage `json:"Data"`
}

type mswipeStatusRow struct {
	PaymentStatus looseString `json:"Payment_Status"`
}

// CreateSessionToken obtains a fresh session token with the merchant credentials.
func (c *MswipeClient) CreateSessionToken(ctx context.Context) (string, error) {
	const op = "CreatePBLAuthToken"

	var resp mswipeTokenResponse
	if err := c.post(ctx, op, mswipeTokenRequest{
		UserID:    c.cfg.UserID,
		ClientID:  c.cfg.ClientID,
		Password:  c.cfg.Password,
		ApplID:    mswipeApplID,
		ChannelID: mswipeChannelID,
	}, &resp); err != nil {
		return "", &GatewayAuthError{Op: op, Err: err}
	}

	if !resp.Status.isTrue() || resp.Token == "" {
		msg := resp.Msg
		if msg == "" {
			msg = "token not issued"
		}
		return "", &GatewayAuthError{Op: op, Err: errors.New(msg)}
	}

	return resp.Token, nil
}

// CreatePaymentLink asks the gateway for a new collection link. RequestID lets
// the gateway deduplicate retried calls.
func (c *MswipeClient) CreatePaymentLink(ctx context.Context, req LinkRequest, token string) (*LinkResult, error) {
	const op = "MswipePayment"

	var resp mswipePaymentResponse
	if err := c.post(ctx, op, mswipePaymentRequest{
		Amount:        req.Amount.StringFixed(2),
		MobileNo:      req.Phone,
		CustCode:      c.cfg.CustCode,
		UserID:        c.cfg.UserID,
		SessionToken:  token,
		VersionNo:     mswipeVersion,
		EmailID:       req.Email,
		InvoiceID:     req.OrderID,
		RequestID:     req.RequestID,
		ApplicationID: mswipeApplID,
		ChannelID:     mswipeChannelID,
		ClientID:      c.cfg.ClientID,
	}, &resp); err != nil {
		return nil, err
	}

	if !resp.Status.isTrue() {
		msg := resp.ResponseMessage
		if msg == "" {
			msg = "link not created"
		}
		return nil, &GatewayRequestError{Op: op, Err: errors.New(msg)}
	}

	result := &LinkResult{
		GatewayRef:   string(resp.TxnID),
		PaymentLink:  resp.SMSLink,
		GatewayTxnID: transIDFromLink(resp.SMSLink),
	}
	if result.GatewayTxnID == "" {
		result.GatewayTxnID = result.GatewayRef
	}
	if result.GatewayTxnID == "" || result.PaymentLink == "" {
		return nil, &GatewayRequestError{Op: op, Err: errors.New("response is missing transaction id or link")}
	}

	return result, nil
}

// FetchStatus reads the gateway's current status for a transaction. It never
// touches local state.
func (c *MswipeClient) FetchStatus(ctx context.Context, gatewayTxnID string) (*StatusResult, error) {
	const op = "getPBLTransactionDetails"

	var resp mswipeStatusResponse
	if err := c.post(ctx, op, mswipeStatusRequest{ID: gatewayTxnID}, &resp); err != nil {
		return nil, err
	}

	if !resp.Status.isTrue() || len(resp.Data) == 0 {
		return nil, &GatewayRequestError{Op: op, Err: fmt.Errorf("no status for transaction %s", gatewayTxnID)}
	}

	var row mswipeStatusRow
	if err := json.Unmarshal(resp.Data[0], &row); err != nil {
		return nil, &GatewayRequestError{Op: op, Err: fmt.Errorf("decode status row: %w", err)}
	}

	return &StatusResult{Code: string(row.PaymentStatus), Raw: resp.Data[0]}, nil
}

func (c *MswipeClient) post(ctx context.Context, op string, payload, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return &GatewayRequestError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/"+op, bytes.NewReader(body))
	if err != nil {
		return &GatewayRequestError{Op: op, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &GatewayRequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, mswipeMaxBodySize))
	if err != nil {
		return &GatewayRequestError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &GatewayRequestError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("body: %s", truncate(string(respBody), 256))}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &GatewayRequestError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// transIDFromLink extracts the TransID query parameter the status endpoint is keyed on.
func transIDFromLink(link string) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return ""
	}
	for key, values := range parsed.Query() {
		if strings.EqualFold(key, "TransID") && len(values) > 0 {
			return strings.TrimSpace(values[0])
		}
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
