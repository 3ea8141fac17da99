package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-permits/app/service"
	"github.com/vibast-solutions/ms-go-permits/app/types"
)

func StatusViewToResponse(view *service.StatusView) *types.ApplicationStatusResponse {
	if view == nil || view.Application == nil {
		return nil
	}

	app := view.Application
	resp := &types.ApplicationStatusResponse{
		Id:              app.ID,
		Status:          app.Status.String(),
		PaymentMethod:   app.PaymentMethod.String(),
		AmountCents:     app.AmountCents,
		Currency:        app.Currency,
		StatusUpdatedAt: app.StatusUpdatedAt.UTC().Format(time.RFC3339),
	}
	if app.RenewedFromID != nil {
		resp.RenewedFromId = *app.RenewedFromID
	}
	if view.Progress != nil {
		position := view.Progress.Position
		wait := view.Progress.EstimatedWaitMinutes
		resp.QueuePosition = &position
		resp.EstimatedWaitMinutes = &wait
	}

	return resp
}
