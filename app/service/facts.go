package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-permits/app/entity"
	"github.com/vibast-solutions/ms-go-permits/app/factory"
	"github.com/vibast-solutions/ms-go-permits/app/lifecycle"
	"github.com/vibast-solutions/ms-go-permits/app/metrics"
	"github.com/vibast-solutions/ms-go-permits/app/notify"
	"github.com/vibast-solutions/ms-go-permits/app/repository"
)

type applicationRepository interface {
	FindByID(ctx context.Context, id string) (*entity.Application, error)
	FindByCallbackHash(ctx context.Context, callbackHash string) (*entity.Application, error)
	FindByPaymentReference(ctx context.Context, referenceID string) (*entity.Application, error)
	FindUnsettled(ctx context.Context, limit int32) ([]*entity.Application, error)
	UpdateStatus(ctx context.Context, id string, expected, next lifecycle.Status, now time.Time) error
	SetDocumentRefs(ctx context.Context, id string, refs []string) error
}

type paymentEventRepository interface {
	Append(ctx context.Context, event *entity.PaymentEvent) error
}

type queueAdmitter interface {
	Admit(ctx context.Context, applicationID string) error
}

// ApplyOutcome classifies what happened to one fact after it went through the
// machine and the conditional write.
type ApplyOutcome int

const (
	OutcomeApplied ApplyOutcome = iota
	OutcomeNoop
	OutcomeRejected
	OutcomeConflict
)

// FactApplier feeds facts through the lifecycle state machine and carries out
// the resulting decision: the conditional status write, the audit append, and
// the emitted effects. It is shared by the webhook path, the reconciliation
// job, and the queue orchestrator so every status change goes through exactly
// one code path.
type FactApplier struct {
	appRepo   applicationRepository
	eventRepo paymentEventRepository
	sink      notify.Sink
	admitter  queueAdmitter
	logger    logrus.FieldLogger
}

func NewFactApplier(appRepo applicationRepository, eventRepo paymentEventRepository, sink notify.Sink) *FactApplier {
	return &FactApplier{
		appRepo:   appRepo,
		eventRepo: eventRepo,
		sink:      sink,
		logger:    factory.NewModuleLogger("lifecycle"),
	}
}

// SetQueueAdmitter breaks the construction cycle with the queue orchestrator:
// the applier admits applications to the queue, the orchestrator reports
// outcomes back through the applier.
func (a *FactApplier) SetQueueAdmitter(admitter queueAdmitter) {
	a.admitter = admitter
}

// Apply runs one fact against one application. It never returns an error for
// a rejected or raced transition; those are ordinary outcomes. Errors mean
// infrastructure failed (persistence, effect delivery).
func (a *FactApplier) Apply(ctx context.Context, app *entity.Application, fact lifecycle.Fact, payloadJSON *string) (ApplyOutcome, lifecycle.Decision, error) {
	decision := lifecycle.Transition(app.Snapshot(), fact)
	now := time.Now().UTC()

	outcome := OutcomeApplied
	switch {
	case !decision.Applied:
		outcome = OutcomeRejected
		metrics.FactsRejectedTotal.WithLabelValues(string(fact.Type), string(fact.Source)).Inc()
		a.logger.WithFields(logrus.Fields{
			"application_id": app.ID,
			"status":         app.Status.String(),
			"fact_type":      string(fact.Type),
			"gateway_status": string(fact.GatewayStatus),
			"source":         string(fact.Source),
			"reason":         decision.RejectReason,
		}).Warn("transition_rejected")
	case decision.Noop:
		outcome = OutcomeNoop
		metrics.FactsAppliedTotal.WithLabelValues(string(fact.Type), string(fact.Source)).Inc()
	default:
		metrics.FactsAppliedTotal.WithLabelValues(string(fact.Type), string(fact.Source)).Inc()
	}

	if outcome == OutcomeApplied {
		err := a.appRepo.UpdateStatus(ctx, app.ID, app.Status, decision.NewStatus, now)
		if errors.Is(err, repository.ErrStatusConflict) {
			// The winning write already reflects a valid, no-worse state.
			// Discard, don't retry.
			metrics.StatusConflictsTotal.Inc()
			a.logger.WithFields(logrus.Fields{
				"application_id": app.ID,
				"expected":       app.Status.String(),
				"next":           decision.NewStatus.String(),
			}).Info("status_write_lost_race")
			outcome = OutcomeConflict
		} else if err != nil {
			return outcome, decision, err
		}
	}

	if err := a.appendEvent(ctx, app, fact, decision, now, payloadJSON); err != nil {
		a.logger.WithError(err).WithField("application_id", app.ID).Error("payment_event_append_failed")
	}

	switch outcome {
	case OutcomeApplied:
		a.applyEffects(ctx, app, fact, decision)
	case OutcomeRejected:
		// Rejected decisions may still carry an alert, e.g. an amount
		// mismatch that freezes the application pending manual review.
		for _, effect := range decision.Effects {
			if effect.Type == lifecycle.EffectAlert {
				a.fireAlert(ctx, app, fact, effect)
			}
		}
	}

	return outcome, decision, nil
}

func (a *FactApplier) appendEvent(ctx context.Context, app *entity.Application, fact lifecycle.Fact, decision lifecycle.Decision, now time.Time, payloadJSON *string) error {
	event := &entity.PaymentEvent{
		ApplicationID: app.ID,
		EventID:       uuid.NewString(),
		EventType:     string(fact.Type),
		GatewayStatus: string(fact.GatewayStatus),
		AmountCents:   fact.AmountCents,
		NewStatus:     decision.NewStatus,
		Source:        fact.Source,
		PayloadJSON:   payloadJSON,
		ObservedAt:    fact.ObservedAt,
		CreatedAt:     now,
	}
	if decision.Applied && !decision.Noop {
		old := app.Status
		event.OldStatus = &old
	}
	if decision.RejectReason != "" {
		reason := decision.RejectReason
		event.RejectReason = &reason
	}
	return a.eventRepo.Append(ctx, event)
}

func (a *FactApplier) applyEffects(ctx context.Context, app *entity.Application, fact lifecycle.Fact, decision lifecycle.Decision) {
	for _, effect := range decision.Effects {
		switch effect.Type {
		case lifecycle.EffectAdmitToQueue:
			if a.admitter == nil {
				a.logger.WithField("application_id", app.ID).Error("no queue admitter configured")
				continue
			}
			if err := a.admitter.Admit(ctx, app.ID); err != nil {
				a.logger.WithError(err).WithField("application_id", app.ID).Error("queue_admission_failed")
			}
		case lifecycle.EffectNotifyFailure:
			if err := a.sink.Notify(ctx, app.ApplicantRef, notify.TemplatePaymentFailed, map[string]string{
				"application_id": app.ID,
				"reason":         effect.Reason,
			}); err != nil {
				a.logger.WithError(err).WithField("application_id", app.ID).Warn("notify_failed")
			}
		case lifecycle.EffectNotifyPermitReady:
			if err := a.sink.Notify(ctx, app.ApplicantRef, notify.TemplatePermitReady, map[string]string{
				"application_id": app.ID,
			}); err != nil {
				a.logger.WithError(err).WithField("application_id", app.ID).Warn("notify_failed")
			}
		case lifecycle.EffectAlert:
			a.fireAlert(ctx, app, fact, effect)
		}
	}
}

func (a *FactApplier) fireAlert(ctx context.Context, app *entity.Application, fact lifecycle.Fact, effect lifecycle.Effect) {
	metrics.AlertsFiredTotal.WithLabelValues(string(effect.Severity)).Inc()
	if err := a.sink.Alert(ctx, effect.Severity, string(fact.Type), map[string]string{
		"application_id": app.ID,
		"status":         app.Status.String(),
		"reason":         effect.Reason,
	}); err != nil {
		a.logger.WithError(err).WithField("application_id", app.ID).Warn("alert_failed")
	}
}
