package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-permits/app/factory"
	"github.com/vibast-solutions/ms-go-permits/app/lifecycle"
	"github.com/vibast-solutions/ms-go-permits/app/mapper"
	"github.com/vibast-solutions/ms-go-permits/app/service"
	"github.com/vibast-solutions/ms-go-permits/app/types"
)

type ApplicationController struct {
	applicationService *service.ApplicationService
	webhookService     *service.WebhookService
	queueService       *service.QueueService
	logger             logrus.FieldLogger
}

func NewApplicationController(
	applicationService *service.ApplicationService,
	webhookService *service.WebhookService,
	queueService *service.QueueService,
) *ApplicationController {
	return &ApplicationController{
		applicationService: applicationService,
		webhookService:     webhookService,
		queueService:       queueService,
		logger:             factory.NewModuleLogger("applications-controller"),
	}
}

func (c *ApplicationController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *ApplicationController) GetApplicationStatus(ctx echo.Context) error {
	req, err := types.NewGetApplicationStatusRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	view, err := c.applicationService.GetStatus(ctx.Request().Context(), req.Id)
	if err != nil {
		if errors.Is(err, service.ErrApplicationNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "application not found")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get application status failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, mapper.StatusViewToResponse(view))
}

func (c *ApplicationController) HandleGatewayWebhook(ctx echo.Context) error {
	req, err := types.NewHandleGatewayWebhookRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	err = c.webhookService.HandleGatewayWebhook(ctx.Request().Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrWebhookRejected):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrApplicationNotFound):
			return c.writeError(ctx, http.StatusNotFound, "application not found")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Handle gateway webhook failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.MessageResponse{Message: "Webhook processed"})
}

func (c *ApplicationController) ReportDocumentOutcome(ctx echo.Context) error {
	req, err := types.NewReportDocumentOutcomeRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	outcome := service.Outcome{
		Success:      req.Success,
		DocumentRefs: req.DocumentRefs,
		Reason:       req.Reason,
	}
	err = c.queueService.ReportOutcome(ctx.Request().Context(), req.ApplicationId, outcome)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrApplicationNotFound):
			return c.writeError(ctx, http.StatusNotFound, "application not found")
		case errors.Is(err, service.ErrQueueEntryNotFound):
			return c.writeError(ctx, http.StatusNotFound, "no generation job for application")
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Report document outcome failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusOK, &types.MessageResponse{Message: "Outcome recorded"})
}

func (c *ApplicationController) ManualOverride(ctx echo.Context) error {
	req, err := types.NewManualOverrideRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	factType := lifecycle.FactManualCancel
	if req.Action == types.OverrideActionExpirePermit {
		factType = lifecycle.FactPermitExpired
	}

	decision, err := c.applicationService.ApplyManualFact(ctx.Request().Context(), req.ApplicationId, factType)
	if err != nil {
		if errors.Is(err, service.ErrApplicationNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "application not found")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Manual override failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	resp := &types.OverrideResponse{
		Id:      req.ApplicationId,
		Applied: decision.Applied && !decision.Noop,
		Reason:  decision.RejectReason,
	}
	if resp.Applied {
		resp.Status = decision.NewStatus.String()
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (c *ApplicationController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
