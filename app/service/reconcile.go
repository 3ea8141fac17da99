package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-permits/app/entity"
	"github.com/vibast-solutions/ms-go-permits/app/factory"
	"github.com/vibast-solutions/ms-go-permits/app/gateway"
	"github.com/vibast-solutions/ms-go-permits/app/lifecycle"
	"github.com/vibast-solutions/ms-go-permits/app/metrics"
	"github.com/vibast-solutions/ms-go-permits/app/runlock"
	"golang.org/x/sync/errgroup"
)

const reconcileLockKey = "permits:reconcile:lock"

type ReconcileConfig struct {
	BatchSize          int32
	GatewayTimeout     time.Duration
	GatewayConcurrency int
	LockTTL            time.Duration
}

// Summary aggregates one reconciliation run.
type Summary struct {
	Processed  int
	Reconciled int
	Failed     int
	Skipped    int
}

// ReconcileService is the periodic safety net: it re-derives payment truth
// from the gateway for every unsettled application and repairs drift through
// the same state machine the webhook path uses. A run that fails outright
// leaves next-run data unchanged, which is the deliberate fallback.
type ReconcileService struct {
	appRepo applicationRepository
	applier *FactApplier
	gateway gateway.Client
	locker  runlock.Locker
	cfg     ReconcileConfig
	sink    alertSink
	logger  logrus.FieldLogger
}

type alertSink interface {
	Alert(ctx context.Context, severity lifecycle.AlertSeverity, alertType string, metadata map[string]string) error
}

func NewReconcileService(
	appRepo applicationRepository,
	applier *FactApplier,
	gatewayClient gateway.Client,
	locker runlock.Locker,
	sink alertSink,
	cfg ReconcileConfig,
) *ReconcileService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if cfg.GatewayConcurrency <= 0 {
		cfg.GatewayConcurrency = 4
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}

	return &ReconcileService{
		appRepo: appRepo,
		applier: applier,
		gateway: gatewayClient,
		locker:  locker,
		sink:    sink,
		cfg:     cfg,
		logger:  factory.NewModuleLogger("reconcile-job"),
	}
}

// Run executes one sweep. A run that would overlap an active one (on any
// instance) is skipped, not queued.
func (s *ReconcileService) Run(ctx context.Context) (Summary, error) {
	acquired, err := s.locker.Acquire(ctx, reconcileLockKey, s.cfg.LockTTL)
	if err != nil {
		return Summary{}, err
	}
	if !acquired {
		s.logger.Info("reconcile_run_skipped_overlap")
		return Summary{}, ErrReconcileAlreadyActive
	}
	defer func() {
		if err := s.locker.Release(context.Background(), reconcileLockKey); err != nil {
			s.logger.WithError(err).Warn("reconcile_lock_release_failed")
		}
	}()

	start := time.Now()
	summary, err := s.sweep(ctx)
	metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	metrics.ReconcileRunsTotal.Inc()

	s.logger.WithFields(logrus.Fields{
		"processed":  summary.Processed,
		"reconciled": summary.Reconciled,
		"failed":     summary.Failed,
		"skipped":    summary.Skipped,
		"latency":    time.Since(start).String(),
	}).Info("reconcile_run_completed")

	return summary, err
}

func (s *ReconcileService) sweep(ctx context.Context) (Summary, error) {
	apps, err := s.appRepo.FindUnsettled(ctx, s.cfg.BatchSize)
	if err != nil {
		return Summary{}, err
	}

	var mu sync.Mutex
	var summary Summary

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.GatewayConcurrency)

	for _, app := range apps {
		app := app
		group.Go(func() error {
			outcome := s.reconcileOne(groupCtx, app)
			mu.Lock()
			summary.Processed++
			switch outcome {
			case reconcileOutcomeReconciled:
				summary.Reconciled++
			case reconcileOutcomeFailed:
				summary.Failed++
			case reconcileOutcomeSkipped:
				summary.Skipped++
			}
			mu.Unlock()
			metrics.ReconcileOutcomesTotal.WithLabelValues(outcome.String()).Inc()
			// Per-item failures are counted, never propagated: one bad
			// application must not abort the batch.
			return nil
		})
	}

	_ = group.Wait()
	return summary, nil
}

type reconcileOutcome int

const (
	reconcileOutcomeUnchanged reconcileOutcome = iota
	reconcileOutcomeReconciled
	reconcileOutcomeFailed
	reconcileOutcomeSkipped
)

func (o reconcileOutcome) String() string {
	switch o {
	case reconcileOutcomeReconciled:
		return "reconciled"
	case reconcileOutcomeFailed:
		return "failed"
	case reconcileOutcomeSkipped:
		return "skipped"
	default:
		return "unchanged"
	}
}

func (s *ReconcileService) reconcileOne(ctx context.Context, app *entity.Application) reconcileOutcome {
	now := time.Now().UTC()

	// The voucher's own expiry is authoritative for the cash-voucher branch,
	// even when the gateway still reports pending.
	if app.VoucherExpired(now) {
		return s.applyFinding(ctx, app, lifecycle.Fact{
			Type:       lifecycle.FactVoucherExpired,
			ObservedAt: now,
			Source:     lifecycle.SourceReconciliation,
		})
	}

	if app.PaymentReferenceID == nil || *app.PaymentReferenceID == "" {
		// Nothing to reconcile yet: no payment attempt has begun.
		s.logger.WithField("application_id", app.ID).Warn("reconcile_skipped_no_payment_reference")
		return reconcileOutcomeSkipped
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	status, err := s.gateway.GetPaymentStatus(callCtx, *app.PaymentReferenceID)
	cancel()
	if err != nil {
		// One gateway hiccup must not abort the batch. Record, alert, move on.
		s.logger.WithError(err).WithField("application_id", app.ID).Error("gateway_status_fetch_failed")
		if alertErr := s.sink.Alert(ctx, lifecycle.SeverityHigh, "gateway_unreachable", map[string]string{
			"application_id": app.ID,
			"error":          err.Error(),
		}); alertErr != nil {
			s.logger.WithError(alertErr).Warn("alert_failed")
		}
		return reconcileOutcomeFailed
	}

	return s.applyFinding(ctx, app, lifecycle.Fact{
		Type:          lifecycle.FactGatewayStatus,
		GatewayStatus: status.Status,
		AmountCents:   status.AmountCents,
		FailureReason: status.FailureReason,
		ObservedAt:    now,
		Source:        lifecycle.SourceReconciliation,
	})
}

func (s *ReconcileService) applyFinding(ctx context.Context, app *entity.Application, fact lifecycle.Fact) reconcileOutcome {
	outcome, _, err := s.applier.Apply(ctx, app, fact, nil)
	if err != nil {
		s.logger.WithError(err).WithField("application_id", app.ID).Error("reconcile_apply_failed")
		return reconcileOutcomeFailed
	}
	switch outcome {
	case OutcomeApplied:
		return reconcileOutcomeReconciled
	case OutcomeConflict, OutcomeRejected:
		return reconcileOutcomeSkipped
	default:
		return reconcileOutcomeUnchanged
	}
}
