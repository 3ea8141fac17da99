package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-permits/app/docgen"
	"github.com/vibast-solutions/ms-go-permits/app/entity"
	"github.com/vibast-solutions/ms-go-permits/app/factory"
	"github.com/vibast-solutions/ms-go-permits/app/lifecycle"
	"github.com/vibast-solutions/ms-go-permits/app/metrics"
	"github.com/vibast-solutions/ms-go-permits/app/repository"
	"github.com/vibast-solutions/ms-go-permits/app/runlock"
)

const sweepLockKey = "permits:queue-sweep:lock"

type queueEntryRepository interface {
	Create(ctx context.Context, entry *entity.QueueEntry) error
	FindByApplicationID(ctx context.Context, applicationID string) (*entity.QueueEntry, error)
	CountAhead(ctx context.Context, enqueuedAt time.Time) (int32, error)
	ListStuck(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.QueueEntry, error)
	MarkAttempt(ctx context.Context, applicationID string, now time.Time, lastError *string) error
	SetTerminal(ctx context.Context, applicationID, state string, lastError *string, now time.Time) error
}

type QueueConfig struct {
	MaxRetries          int32
	StuckAfter          time.Duration
	SweepBatchSize      int32
	EstimatedJobMinutes int32
	LockTTL             time.Duration
}

// Progress is what a requester sees while their permit is being generated.
type Progress struct {
	Position             int32
	EstimatedWaitMinutes int32
}

// Outcome is the document-generation collaborator's report for one job.
type Outcome struct {
	Success      bool
	DocumentRefs []string
	Reason       string
}

// QueueService turns a payment-confirmed application into a ready permit by
// coordinating with the document-generation collaborator. Retry budget and
// stuck-job recovery are first-class data on the queue entry, not framework
// behavior.
type QueueService struct {
	appRepo   applicationRepository
	entryRepo queueEntryRepository
	applier   *FactApplier
	generator docgen.Client
	locker    runlock.Locker
	cfg       QueueConfig
	logger    logrus.FieldLogger
}

func NewQueueService(
	appRepo applicationRepository,
	entryRepo queueEntryRepository,
	applier *FactApplier,
	generator docgen.Client,
	locker runlock.Locker,
	cfg QueueConfig,
) *QueueService {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = 15 * time.Minute
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 100
	}
	if cfg.EstimatedJobMinutes <= 0 {
		cfg.EstimatedJobMinutes = 3
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}

	return &QueueService{
		appRepo:   appRepo,
		entryRepo: entryRepo,
		applier:   applier,
		generator: generator,
		locker:    locker,
		cfg:       cfg,
		logger:    factory.NewModuleLogger("queue-orchestrator"),
	}
}

// Admit creates a queue entry for the application and moves it to
// generating_permit. Re-admission is a no-op, not an error: exactly one entry
// ever exists per application.
func (s *QueueService) Admit(ctx context.Context, applicationID string) error {
	app, err := s.appRepo.FindByID(ctx, applicationID)
	if err != nil {
		return err
	}
	if app == nil {
		return ErrApplicationNotFound
	}

	now := time.Now().UTC()
	entry := &entity.QueueEntry{
		ApplicationID: applicationID,
		EnqueuedAt:    now,
		AttemptCount:  0,
		LastAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.entryRepo.Create(ctx, entry); err != nil {
		if errors.Is(err, repository.ErrQueueEntryExists) {
			return nil
		}
		return err
	}
	metrics.QueueAdmissionsTotal.Inc()

	if err := s.appRepo.UpdateStatus(ctx, applicationID, lifecycle.StatusPaymentReceived, lifecycle.StatusGeneratingPermit, now); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			metrics.StatusConflictsTotal.Inc()
			s.logger.WithField("application_id", applicationID).Info("admit_status_write_lost_race")
		} else {
			return err
		}
	}

	s.dispatch(ctx, app, entry.AttemptCount)
	return nil
}

// ReportProgress computes the entry's queue position from open entries
// enqueued earlier, and a coarse wait estimate.
func (s *QueueService) ReportProgress(ctx context.Context, applicationID string) (*Progress, error) {
	entry, err := s.entryRepo.FindByApplicationID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrQueueEntryNotFound
	}
	if entry.Terminal() {
		return &Progress{Position: 0, EstimatedWaitMinutes: 0}, nil
	}

	ahead, err := s.entryRepo.CountAhead(ctx, entry.EnqueuedAt)
	if err != nil {
		return nil, err
	}

	return &Progress{
		Position:             ahead,
		EstimatedWaitMinutes: (ahead + 1) * s.cfg.EstimatedJobMinutes,
	}, nil
}

// ReportOutcome records the collaborator's result. Success closes the entry
// and advances the application; failure consumes one retry and re-admits
// until the budget is exhausted. Writes against an already-terminal entry are
// no-ops, which makes the race with the stuck sweep benign.
func (s *QueueService) ReportOutcome(ctx context.Context, applicationID string, outcome Outcome) error {
	app, err := s.appRepo.FindByID(ctx, applicationID)
	if err != nil {
		return err
	}
	if app == nil {
		return ErrApplicationNotFound
	}

	entry, err := s.entryRepo.FindByApplicationID(ctx, applicationID)
	if err != nil {
		return err
	}
	if entry == nil {
		return ErrQueueEntryNotFound
	}

	if outcome.Success {
		return s.completeEntry(ctx, app, outcome.DocumentRefs)
	}
	return s.failAttempt(ctx, app, entry, outcome.Reason)
}

func (s *QueueService) completeEntry(ctx context.Context, app *entity.Application, documentRefs []string) error {
	now := time.Now().UTC()
	err := s.entryRepo.SetTerminal(ctx, app.ID, entity.QueueTerminalSucceeded, nil, now)
	if errors.Is(err, repository.ErrQueueEntryTerminal) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.appRepo.SetDocumentRefs(ctx, app.ID, documentRefs); err != nil {
		return err
	}

	_, _, err = s.applier.Apply(ctx, app, lifecycle.Fact{
		Type:       lifecycle.FactQueueSucceeded,
		ObservedAt: now,
		Source:     lifecycle.SourceQueue,
	}, nil)
	return err
}

func (s *QueueService) failAttempt(ctx context.Context, app *entity.Application, entry *entity.QueueEntry, reason string) error {
	now := time.Now().UTC()
	attempts := entry.AttemptCount + 1

	if attempts < s.cfg.MaxRetries {
		lastError := truncate(reason, 1024)
		err := s.entryRepo.MarkAttempt(ctx, app.ID, now, &lastError)
		if errors.Is(err, repository.ErrQueueEntryTerminal) {
			return nil
		}
		if err != nil {
			return err
		}
		metrics.QueueRetriesTotal.Inc()
		s.logger.WithFields(logrus.Fields{
			"application_id": app.ID,
			"attempt":        attempts,
			"max_retries":    s.cfg.MaxRetries,
			"reason":         reason,
		}).Warn("generation_attempt_failed")

		s.dispatch(ctx, app, attempts)
		return nil
	}

	lastError := truncate(reason, 1024)
	if err := s.entryRepo.MarkAttempt(ctx, app.ID, now, &lastError); err != nil {
		if errors.Is(err, repository.ErrQueueEntryTerminal) {
			return nil
		}
		return err
	}
	err := s.entryRepo.SetTerminal(ctx, app.ID, entity.QueueTerminalFailedPermanent, &lastError, now)
	if errors.Is(err, repository.ErrQueueEntryTerminal) {
		return nil
	}
	if err != nil {
		return err
	}

	_, _, err = s.applier.Apply(ctx, app, lifecycle.Fact{
		Type:          lifecycle.FactQueueFailed,
		FailureReason: reason,
		ObservedAt:    now,
		Source:        lifecycle.SourceQueue,
	}, nil)
	return err
}

// SweepStuck re-admits entries abandoned by a crashed worker, consuming one
// retry each, exactly as a reported failure would. This bounds the damage of
// a worker crash without operator intervention.
func (s *QueueService) SweepStuck(ctx context.Context) (int, error) {
	acquired, err := s.locker.Acquire(ctx, sweepLockKey, s.cfg.LockTTL)
	if err != nil {
		return 0, err
	}
	if !acquired {
		s.logger.Info("sweep_run_skipped_overlap")
		return 0, nil
	}
	defer func() {
		if err := s.locker.Release(context.Background(), sweepLockKey); err != nil {
			s.logger.WithError(err).Warn("sweep_lock_release_failed")
		}
	}()

	cutoff := time.Now().UTC().Add(-s.cfg.StuckAfter)
	entries, err := s.entryRepo.ListStuck(ctx, cutoff, s.cfg.SweepBatchSize)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, entry := range entries {
		app, err := s.appRepo.FindByID(ctx, entry.ApplicationID)
		if err != nil {
			s.logger.WithError(err).WithField("application_id", entry.ApplicationID).Error("sweep_load_failed")
			continue
		}
		if app == nil {
			s.logger.WithField("application_id", entry.ApplicationID).Warn("sweep_orphan_entry")
			continue
		}

		reason := fmt.Sprintf("no outcome reported for %s", time.Since(entry.LastAttemptAt).Round(time.Second))
		if err := s.failAttempt(ctx, app, entry, reason); err != nil {
			s.logger.WithError(err).WithField("application_id", entry.ApplicationID).Error("sweep_requeue_failed")
			continue
		}
		metrics.QueueStuckRequeuedTotal.Inc()
		requeued++
	}

	s.logger.WithFields(logrus.Fields{
		"stuck":    len(entries),
		"requeued": requeued,
	}).Info("sweep_run_completed")

	return requeued, nil
}

func (s *QueueService) dispatch(ctx context.Context, app *entity.Application, attempt int32) {
	req := &docgen.Request{
		ApplicationID: app.ID,
		Snapshot: map[string]string{
			"applicant_ref":  app.ApplicantRef,
			"payment_method": app.PaymentMethod.String(),
			"amount_cents":   strconv.FormatInt(app.AmountCents, 10),
			"currency":       app.Currency,
		},
		Attempt: attempt,
	}
	if app.RenewedFromID != nil {
		req.Snapshot["renewed_from_id"] = *app.RenewedFromID
	}

	// Dispatch is best-effort: a delivery that never reports back is
	// recovered by the stuck sweep, consuming one retry.
	if err := s.generator.Generate(ctx, req); err != nil {
		s.logger.WithError(err).WithField("application_id", app.ID).Warn("generation_dispatch_failed")
	}
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
