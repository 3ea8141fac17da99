package types

import (
	"errors"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type GetApplicationStatusRequest struct {
	Id string
}

func NewGetApplicationStatusRequestFromContext(ctx echo.Context) (*GetApplicationStatusRequest, error) {
	return &GetApplicationStatusRequest{Id: strings.TrimSpace(ctx.Param("id"))}, nil
}

func (r *GetApplicationStatusRequest) Validate() error {
	if r.Id == "" {
		return errors.New("application id is required")
	}
	if _, err := uuid.Parse(r.Id); err != nil {
		return errors.New("application id must be a uuid")
	}
	return nil
}

type HandleGatewayWebhookRequest struct {
	RequestId    string
	CallbackHash string
	Signature    string
	Payload      string
}

func NewHandleGatewayWebhookRequestFromContext(ctx echo.Context) (*HandleGatewayWebhookRequest, error) {
	hash := strings.TrimSpace(ctx.Param("hash"))
	requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
	signature := strings.TrimSpace(ctx.Request().Header.Get("Stripe-Signature"))
	if signature == "" {
		signature = strings.TrimSpace(ctx.Request().Header.Get("X-Gateway-Signature"))
	}

	rawBody, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return nil, err
	}

	return &HandleGatewayWebhookRequest{
		RequestId:    requestID,
		CallbackHash: hash,
		Signature:    signature,
		Payload:      string(rawBody),
	}, nil
}

func (r *HandleGatewayWebhookRequest) Validate() error {
	if r.CallbackHash == "" {
		return errors.New("callback hash is required")
	}
	if r.Signature == "" {
		return errors.New("gateway signature is required")
	}
	if strings.TrimSpace(r.Payload) == "" {
		return errors.New("payload is required")
	}
	return nil
}

func (r *HandleGatewayWebhookRequest) GetCallbackHash() string { return r.CallbackHash }
func (r *HandleGatewayWebhookRequest) GetSignature() string    { return r.Signature }
func (r *HandleGatewayWebhookRequest) GetPayload() string      { return r.Payload }

type ReportDocumentOutcomeRequest struct {
	ApplicationId string   `json:"-"`
	Success       bool     `json:"success"`
	DocumentRefs  []string `json:"document_refs"`
	Reason        string   `json:"reason"`
}

func NewReportDocumentOutcomeRequestFromContext(ctx echo.Context) (*ReportDocumentOutcomeRequest, error) {
	var body ReportDocumentOutcomeRequest
	if err := ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	body.ApplicationId = strings.TrimSpace(ctx.Param("id"))
	body.Reason = strings.TrimSpace(body.Reason)

	refs := make([]string, 0, len(body.DocumentRefs))
	for _, ref := range body.DocumentRefs {
		if trimmed := strings.TrimSpace(ref); trimmed != "" {
			refs = append(refs, trimmed)
		}
	}
	body.DocumentRefs = refs

	return &body, nil
}

func (r *ReportDocumentOutcomeRequest) Validate() error {
	if r.ApplicationId == "" {
		return errors.New("application id is required")
	}
	if r.Success && len(r.DocumentRefs) == 0 {
		return errors.New("document_refs are required on success")
	}
	if !r.Success && r.Reason == "" {
		return errors.New("reason is required on failure")
	}
	return nil
}

const (
	OverrideActionCancel       = "cancel"
	OverrideActionExpirePermit = "expire_permit"
)

type ManualOverrideRequest struct {
	ApplicationId string `json:"-"`
	Action        string `json:"action"`
	Operator      string `json:"operator"`
}

func NewManualOverrideRequestFromContext(ctx echo.Context) (*ManualOverrideRequest, error) {
	var body ManualOverrideRequest
	if err := ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	body.ApplicationId = strings.TrimSpace(ctx.Param("id"))
	body.Action = strings.ToLower(strings.TrimSpace(body.Action))
	body.Operator = strings.TrimSpace(body.Operator)

	return &body, nil
}

func (r *ManualOverrideRequest) Validate() error {
	if r.ApplicationId == "" {
		return errors.New("application id is required")
	}
	if r.Action != OverrideActionCancel && r.Action != OverrideActionExpirePermit {
		return errors.New("action must be cancel or expire_permit")
	}
	if r.Operator == "" {
		return errors.New("operator is required")
	}
	return nil
}

type ApplicationStatusResponse struct {
	Id                   string `json:"id"`
	Status               string `json:"status"`
	PaymentMethod        string `json:"payment_method"`
	AmountCents          int64  `json:"amount_cents"`
	Currency             string `json:"currency"`
	QueuePosition        *int32 `json:"queue_position,omitempty"`
	EstimatedWaitMinutes *int32 `json:"estimated_wait_minutes,omitempty"`
	RenewedFromId        string `json:"renewed_from_id,omitempty"`
	StatusUpdatedAt      string `json:"status_updated_at"`
}

type OverrideResponse struct {
	Id      string `json:"id"`
	Status  string `json:"status"`
	Applied bool   `json:"applied"`
	Reason  string `json:"reason,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
