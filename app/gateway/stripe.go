package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-permits/app/lifecycle"
)

type StripeConfig struct {
	SecretKey                 string
	WebhookSecret             string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
	BaseURL                   string
}

// StripeClient talks to Stripe payment intents. Card payments capture
// instantly; OXXO voucher payments settle hours later and surface through the
// same intent object.
type StripeClient struct {
	cfg    StripeConfig
	client *http.Client
}

func NewStripeClient(cfg StripeConfig) *StripeClient {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cfg.SignatureToleranceSeconds <= 0 {
		cfg.SignatureToleranceSeconds = 300
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.stripe.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &StripeClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type stripeIntent struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Amount  int64  `json:"amount"`
	Created int64  `json:"created"`
	LastErr *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"last_payment_error"`
}

func (c *StripeClient) GetPaymentStatus(ctx context.Context, referenceID string) (*PaymentStatus, error) {
	referenceID = strings.TrimSpace(referenceID)
	if referenceID == "" {
		return nil, errors.New("reference id is empty")
	}
	if strings.TrimSpace(c.cfg.SecretKey) == "" {
		return nil, errors.New("stripe secret key is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/v1/payment_intents/"+url.PathEscape(referenceID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrPaymentNotFound
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("stripe get payment intent failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var intent stripeIntent
	if err := json.Unmarshal(body, &intent); err != nil {
		return nil, err
	}

	return intentToPaymentStatus(&intent), nil
}

func intentToPaymentStatus(intent *stripeIntent) *PaymentStatus {
	result := &PaymentStatus{AmountCents: intent.Amount}

	switch intent.Status {
	case "succeeded":
		result.Status = lifecycle.GatewaySucceeded
		settled := time.Unix(intent.Created, 0).UTC()
		result.SettledAt = &settled
	case "canceled":
		result.Status = lifecycle.GatewayCanceled
	case "requires_action", "requires_confirmation":
		result.Status = lifecycle.GatewayRequiresAction
	case "requires_payment_method":
		// Stripe rolls a failed attempt back to requires_payment_method and
		// records the failure on last_payment_error.
		if intent.LastErr != nil {
			result.Status = lifecycle.GatewayFailed
		} else {
			result.Status = lifecycle.GatewayPending
		}
	default:
		result.Status = lifecycle.GatewayPending
	}

	if intent.LastErr != nil {
		result.FailureReason = strings.TrimSpace(intent.LastErr.Message)
		if result.FailureReason == "" {
			result.FailureReason = intent.LastErr.Code
		}
	}

	return result
}

func (c *StripeClient) VerifyAndParseWebhook(_ context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	if strings.TrimSpace(c.cfg.WebhookSecret) == "" {
		return nil, errors.New("stripe webhook secret is not configured")
	}
	if !verifySignature(payload, signature, c.cfg.WebhookSecret, c.cfg.SignatureToleranceSeconds) {
		return nil, errors.New("invalid stripe signature")
	}

	var event struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}

	var intent stripeIntent
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		return nil, err
	}

	result := &WebhookEvent{
		EventID:     strings.TrimSpace(event.ID),
		EventType:   event.Type,
		ReferenceID: strings.TrimSpace(intent.ID),
		AmountCents: intent.Amount,
	}

	switch event.Type {
	case "payment_intent.succeeded":
		result.Status = lifecycle.GatewaySucceeded
	case "payment_intent.payment_failed":
		result.Status = lifecycle.GatewayFailed
	case "payment_intent.canceled":
		result.Status = lifecycle.GatewayCanceled
	case "payment_intent.requires_action":
		result.Status = lifecycle.GatewayRequiresAction
	case "payment_intent.processing", "payment_intent.created":
		result.Status = lifecycle.GatewayPending
	default:
		return nil, fmt.Errorf("unhandled event type %q", event.Type)
	}

	if intent.LastErr != nil {
		result.FailureReason = strings.TrimSpace(intent.LastErr.Message)
	}

	return result, nil
}

func verifySignature(payload []byte, signatureHeader string, webhookSecret string, toleranceSeconds int64) bool {
	signatureHeader = strings.TrimSpace(signatureHeader)
	if signatureHeader == "" || strings.TrimSpace(webhookSecret) == "" {
		return false
	}

	parts := strings.Split(signatureHeader, ",")
	var ts string
	v1 := make([]string, 0, 1)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "t=") {
			ts = strings.TrimSpace(strings.TrimPrefix(part, "t="))
		}
		if strings.HasPrefix(part, "v1=") {
			v1 = append(v1, strings.TrimSpace(strings.TrimPrefix(part, "v1=")))
		}
	}
	if ts == "" || len(v1) == 0 {
		return false
	}

	tsUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	now := time.Now().Unix()
	if now-tsUnix > toleranceSeconds || tsUnix-now > toleranceSeconds {
		return false
	}

	signedPayload := []byte(ts + "." + string(payload))
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	_, _ = mac.Write(signedPayload)
	expected := mac.Sum(nil)

	for _, sig := range v1 {
		candidate, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(candidate, expected) {
			return true
		}
	}

	return false
}
