package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-permits/app/entity"
	"github.com/vibast-solutions/ms-go-permits/app/factory"
	"github.com/vibast-solutions/ms-go-permits/app/lifecycle"
)

// StatusView is the requester-facing projection: current status and, while
// queued, position and wait estimate. Fact history and retry counts are never
// exposed directly.
type StatusView struct {
	Application *entity.Application
	Progress    *Progress
}

type ApplicationService struct {
	appRepo applicationRepository
	queue   *QueueService
	applier *FactApplier
	logger  logrus.FieldLogger
}

func NewApplicationService(appRepo applicationRepository, queue *QueueService, applier *FactApplier) *ApplicationService {
	return &ApplicationService{
		appRepo: appRepo,
		queue:   queue,
		applier: applier,
		logger:  factory.NewModuleLogger("application-service"),
	}
}

func (s *ApplicationService) GetStatus(ctx context.Context, id string) (*StatusView, error) {
	app, err := s.appRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, ErrApplicationNotFound
	}

	view := &StatusView{Application: app}
	if app.Status == lifecycle.StatusGeneratingPermit {
		progress, err := s.queue.ReportProgress(ctx, id)
		if err != nil {
			// Position is best-effort display data; the status alone is
			// still a correct answer.
			s.logger.WithError(err).WithField("application_id", id).Warn("progress_lookup_failed")
		} else {
			view.Progress = progress
		}
	}

	return view, nil
}

// ApplyManualFact handles operator overrides (cancel, permit expiry). The
// fact goes through the same machine as everything else and lands in the
// audit trail with source=manual.
func (s *ApplicationService) ApplyManualFact(ctx context.Context, id string, factType lifecycle.FactType) (lifecycle.Decision, error) {
	app, err := s.appRepo.FindByID(ctx, id)
	if err != nil {
		return lifecycle.Decision{}, err
	}
	if app == nil {
		return lifecycle.Decision{}, ErrApplicationNotFound
	}

	fact := lifecycle.Fact{
		Type:       factType,
		ObservedAt: time.Now().UTC(),
		Source:     lifecycle.SourceManual,
	}
	_, decision, err := s.applier.Apply(ctx, app, fact, nil)
	return decision, err
}
