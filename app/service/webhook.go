package service

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-permits/app/entity"
	"github.com/vibast-solutions/ms-go-permits/app/factory"
	"github.com/vibast-solutions/ms-go-permits/app/gateway"
	"github.com/vibast-solutions/ms-go-permits/app/lifecycle"
)

type handleWebhookRequest interface {
	GetCallbackHash() string
	GetSignature() string
	GetPayload() string
}

// WebhookService ingests gateway webhooks. The webhook is the primary update
// path; the reconciliation job is the safety net behind it.
type WebhookService struct {
	appRepo applicationRepository
	applier *FactApplier
	gateway gateway.Client
	logger  logrus.FieldLogger
}

func NewWebhookService(appRepo applicationRepository, applier *FactApplier, gatewayClient gateway.Client) *WebhookService {
	return &WebhookService{
		appRepo: appRepo,
		applier: applier,
		gateway: gatewayClient,
		logger:  factory.NewModuleLogger("webhook-service"),
	}
}

// HandleGatewayWebhook verifies, parses, and applies one webhook delivery.
// Duplicate deliveries are applied as accepted no-ops by the state machine;
// each one still appends an audit row.
func (s *WebhookService) HandleGatewayWebhook(ctx context.Context, req handleWebhookRequest) error {
	payload := []byte(req.GetPayload())
	signature := strings.TrimSpace(req.GetSignature())

	event, err := s.gateway.VerifyAndParseWebhook(ctx, payload, signature)
	if err != nil {
		s.logger.WithError(err).Warn("webhook_verification_failed")
		return ErrWebhookRejected
	}

	app, err := s.findApplication(ctx, event, strings.TrimSpace(req.GetCallbackHash()))
	if err != nil {
		return err
	}
	if app == nil {
		return ErrApplicationNotFound
	}

	fact := lifecycle.Fact{
		Type:          lifecycle.FactGatewayStatus,
		GatewayStatus: event.Status,
		AmountCents:   event.AmountCents,
		FailureReason: event.FailureReason,
		ObservedAt:    time.Now().UTC(),
		Source:        lifecycle.SourceWebhook,
	}

	payloadJSON := string(payload)
	_, _, err = s.applier.Apply(ctx, app, fact, &payloadJSON)
	return err
}

func (s *WebhookService) findApplication(ctx context.Context, event *gateway.WebhookEvent, callbackHash string) (*entity.Application, error) {
	if event.ReferenceID != "" {
		app, err := s.appRepo.FindByPaymentReference(ctx, event.ReferenceID)
		if err != nil {
			return nil, err
		}
		if app != nil {
			return app, nil
		}
	}
	if callbackHash != "" {
		return s.appRepo.FindByCallbackHash(ctx, callbackHash)
	}
	return nil, nil
}
