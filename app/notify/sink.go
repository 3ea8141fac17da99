package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-permits/app/factory"
	"github.com/vibast-solutions/ms-go-permits/app/lifecycle"
)

// Template kinds the portal's notification service understands.
const (
	TemplatePaymentFailed = "payment_failed"
	TemplatePermitReady   = "permit_ready"
)

// Sink receives notifications and alerts emitted as effects. Delivery
// mechanics (email, SMS, paging) are the sink's concern, not this core's.
type Sink interface {
	Notify(ctx context.Context, applicantRef, templateKind string, context map[string]string) error
	Alert(ctx context.Context, severity lifecycle.AlertSeverity, alertType string, metadata map[string]string) error
}

type HTTPSinkConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPSink posts notifications and alerts to the notifications service.
type HTTPSink struct {
	cfg    HTTPSinkConfig
	client *http.Client
	logger logrus.FieldLogger
}

func NewHTTPSink(cfg HTTPSinkConfig) *HTTPSink {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	return &HTTPSink{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: factory.NewModuleLogger("notify-sink"),
	}
}

func (s *HTTPSink) Notify(ctx context.Context, applicantRef, templateKind string, templateCtx map[string]string) error {
	return s.post(ctx, "/notifications", map[string]interface{}{
		"applicant_ref": applicantRef,
		"template":      templateKind,
		"context":       templateCtx,
	})
}

func (s *HTTPSink) Alert(ctx context.Context, severity lifecycle.AlertSeverity, alertType string, metadata map[string]string) error {
	return s.post(ctx, "/alerts", map[string]interface{}{
		"severity": string(severity),
		"type":     alertType,
		"metadata": metadata,
	})
}

func (s *HTTPSink) post(ctx context.Context, path string, payload map[string]interface{}) error {
	if s.cfg.BaseURL == "" {
		return fmt.Errorf("notification sink base url is not configured")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned status=%d", resp.StatusCode)
	}
	return nil
}

// LogSink writes notifications and alerts to the log. Used when no
// notifications service is configured, so effects are never silently lost.
type LogSink struct {
	logger logrus.FieldLogger
}

func NewLogSink() *LogSink {
	return &LogSink{logger: factory.NewModuleLogger("notify-sink")}
}

func (s *LogSink) Notify(_ context.Context, applicantRef, templateKind string, templateCtx map[string]string) error {
	s.logger.WithFields(logrus.Fields{
		"applicant_ref": applicantRef,
		"template":      templateKind,
		"context":       templateCtx,
	}).Info("notification")
	return nil
}

func (s *LogSink) Alert(_ context.Context, severity lifecycle.AlertSeverity, alertType string, metadata map[string]string) error {
	s.logger.WithFields(logrus.Fields{
		"severity": string(severity),
		"type":     alertType,
		"metadata": metadata,
	}).Warn("alert")
	return nil
}
