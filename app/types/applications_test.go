package types

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newContext(method, target, body string, headers map[string]string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return e.NewContext(req, httptest.NewRecorder())
}

func TestGetApplicationStatusRequestValidation(t *testing.T) {
	ctx := newContext(http.MethodGet, "/applications/x/status", "", nil)
	ctx.SetParamNames("id")
	ctx.SetParamValues("  " + uuid.NewString() + "  ")

	req, err := NewGetApplicationStatusRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	ctx = newContext(http.MethodGet, "/applications/x/status", "", nil)
	ctx.SetParamNames("id")
	ctx.SetParamValues("not-a-uuid")
	req, _ = NewGetApplicationStatusRequestFromContext(ctx)
	if err := req.Validate(); err == nil {
		t.Fatal("expected uuid validation error")
	}
}

func TestHandleGatewayWebhookRequestFromContext(t *testing.T) {
	ctx := newContext(http.MethodPost, "/webhooks/gateway/hash", `{"id":"evt_1"}`, map[string]string{
		"Stripe-Signature": " t=1,v1=abc ",
	})
	ctx.SetParamNames("hash")
	ctx.SetParamValues("cbhash")

	req, err := NewHandleGatewayWebhookRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if req.CallbackHash != "cbhash" {
		t.Fatalf("unexpected hash %q", req.CallbackHash)
	}
	if req.Signature != "t=1,v1=abc" {
		t.Fatalf("unexpected signature %q", req.Signature)
	}
	if req.Payload != `{"id":"evt_1"}` {
		t.Fatalf("payload must be the raw body, got %q", req.Payload)
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestHandleGatewayWebhookRequestFallbackSignatureHeader(t *testing.T) {
	ctx := newContext(http.MethodPost, "/webhooks/gateway/hash", `{}`, map[string]string{
		"X-Gateway-Signature": "sig",
	})
	ctx.SetParamNames("hash")
	ctx.SetParamValues("cbhash")

	req, err := NewHandleGatewayWebhookRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if req.Signature != "sig" {
		t.Fatalf("expected fallback header signature, got %q", req.Signature)
	}
}

func TestHandleGatewayWebhookRequestValidation(t *testing.T) {
	req := &HandleGatewayWebhookRequest{CallbackHash: "h", Signature: "", Payload: "{}"}
	if err := req.Validate(); err == nil {
		t.Fatal("expected missing signature error")
	}
	req = &HandleGatewayWebhookRequest{CallbackHash: "", Signature: "s", Payload: "{}"}
	if err := req.Validate(); err == nil {
		t.Fatal("expected missing hash error")
	}
	req = &HandleGatewayWebhookRequest{CallbackHash: "h", Signature: "s", Payload: "  "}
	if err := req.Validate(); err == nil {
		t.Fatal("expected missing payload error")
	}
}

func TestReportDocumentOutcomeRequestFromContext(t *testing.T) {
	ctx := newContext(http.MethodPost, "/applications/x/document-outcome",
		`{"success":true,"document_refs":[" permit.pdf ","","receipt.pdf"]}`, nil)
	ctx.SetParamNames("id")
	ctx.SetParamValues("app-1")

	req, err := NewReportDocumentOutcomeRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(req.DocumentRefs) != 2 {
		t.Fatalf("blank refs must be dropped, got %+v", req.DocumentRefs)
	}
	if req.DocumentRefs[0] != "permit.pdf" {
		t.Fatalf("refs must be trimmed, got %q", req.DocumentRefs[0])
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestReportDocumentOutcomeRequestValidation(t *testing.T) {
	req := &ReportDocumentOutcomeRequest{ApplicationId: "a", Success: true}
	if err := req.Validate(); err == nil {
		t.Fatal("success without refs must fail")
	}
	req = &ReportDocumentOutcomeRequest{ApplicationId: "a", Success: false}
	if err := req.Validate(); err == nil {
		t.Fatal("failure without reason must fail")
	}
	req = &ReportDocumentOutcomeRequest{ApplicationId: "a", Success: false, Reason: "renderer crash"}
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid failure report, got %v", err)
	}
}

func TestManualOverrideRequestValidation(t *testing.T) {
	ctx := newContext(http.MethodPost, "/applications/x/override", `{"action":" CANCEL ","operator":"ops"}`, nil)
	ctx.SetParamNames("id")
	ctx.SetParamValues("app-1")

	req, err := NewManualOverrideRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if req.Action != OverrideActionCancel {
		t.Fatalf("action must be normalized, got %q", req.Action)
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	req.Action = "demolish"
	if err := req.Validate(); err == nil {
		t.Fatal("unknown action must fail")
	}
	req.Action = OverrideActionExpirePermit
	req.Operator = ""
	if err := req.Validate(); err == nil {
		t.Fatal("missing operator must fail")
	}
}
