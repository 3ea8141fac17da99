package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vibast-solutions/ms-go-permits/app/docgen"
	"github.com/vibast-solutions/ms-go-permits/app/entity"
	"github.com/vibast-solutions/ms-go-permits/app/gateway"
	"github.com/vibast-solutions/ms-go-permits/app/lifecycle"
	"github.com/vibast-solutions/ms-go-permits/app/repository"
	"github.com/vibast-solutions/ms-go-permits/app/runlock"
)

type serviceAppRepo struct {
	mu   sync.Mutex
	apps map[string]*entity.Application
}

func newServiceAppRepo() *serviceAppRepo {
	return &serviceAppRepo{apps: map[string]*entity.Application{}}
}

func (r *serviceAppRepo) put(app *entity.Application) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copyItem := *app
	r.apps[app.ID] = &copyItem
}

func (r *serviceAppRepo) get(id string) *entity.Application {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.apps[id]
	if !ok {
		return nil
	}
	copyItem := *item
	return &copyItem
}

func (r *serviceAppRepo) FindByID(_ context.Context, id string) (*entity.Application, error) {
	return r.get(id), nil
}

func (r *serviceAppRepo) FindByCallbackHash(_ context.Context, callbackHash string) (*entity.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.apps {
		if item.CallbackHash == callbackHash {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *serviceAppRepo) FindByPaymentReference(_ context.Context, referenceID string) (*entity.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range r.apps {
		if item.PaymentReferenceID != nil && *item.PaymentReferenceID == referenceID {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *serviceAppRepo) FindUnsettled(_ context.Context, limit int32) ([]*entity.Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]*entity.Application, 0)
	for _, item := range r.apps {
		if item.Status.Unsettled() {
			copyItem := *item
			items = append(items, &copyItem)
		}
		if limit > 0 && int32(len(items)) >= limit {
			break
		}
	}
	return items, nil
}

func (r *serviceAppRepo) UpdateStatus(_ context.Context, id string, expected, next lifecycle.Status, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.apps[id]
	if !ok || item.Status != expected {
		return repository.ErrStatusConflict
	}
	item.Status = next
	item.StatusUpdatedAt = now
	return nil
}

func (r *serviceAppRepo) SetDocumentRefs(_ context.Context, id string, refs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.apps[id]
	if !ok {
		return repository.ErrApplicationNotFound
	}
	item.DocumentRefs = append([]string(nil), refs...)
	return nil
}

type serviceEventRepo struct {
	mu     sync.Mutex
	events []*entity.PaymentEvent
}

func (r *serviceEventRepo) Append(_ context.Context, event *entity.PaymentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copyItem := *event
	r.events = append(r.events, &copyItem)
	return nil
}

func (r *serviceEventRepo) all() []*entity.PaymentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*entity.PaymentEvent(nil), r.events...)
}

type sinkAlert struct {
	Severity  lifecycle.AlertSeverity
	AlertType string
	Metadata  map[string]string
}

type sinkNotification struct {
	ApplicantRef string
	Template     string
	Context      map[string]string
}

type serviceSink struct {
	mu            sync.Mutex
	alerts        []sinkAlert
	notifications []sinkNotification
}

func (s *serviceSink) Notify(_ context.Context, applicantRef, templateKind string, templateCtx map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, sinkNotification{ApplicantRef: applicantRef, Template: templateKind, Context: templateCtx})
	return nil
}

func (s *serviceSink) Alert(_ context.Context, severity lifecycle.AlertSeverity, alertType string, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, sinkAlert{Severity: severity, AlertType: alertType, Metadata: metadata})
	return nil
}

func (s *serviceSink) allAlerts() []sinkAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sinkAlert(nil), s.alerts...)
}

func (s *serviceSink) allNotifications() []sinkNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sinkNotification(nil), s.notifications...)
}

type serviceEntryRepo struct {
	mu      sync.Mutex
	entries map[string]*entity.QueueEntry
	nextID  uint64
}

func newServiceEntryRepo() *serviceEntryRepo {
	return &serviceEntryRepo{entries: map[string]*entity.QueueEntry{}, nextID: 1}
}

func (r *serviceEntryRepo) get(applicationID string) *entity.QueueEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.entries[applicationID]
	if !ok {
		return nil
	}
	copyItem := *item
	return &copyItem
}

func (r *serviceEntryRepo) Create(_ context.Context, entry *entity.QueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[entry.ApplicationID]; ok {
		return repository.ErrQueueEntryExists
	}
	copyItem := *entry
	copyItem.ID = r.nextID
	r.nextID++
	r.entries[entry.ApplicationID] = &copyItem
	entry.ID = copyItem.ID
	return nil
}

func (r *serviceEntryRepo) FindByApplicationID(_ context.Context, applicationID string) (*entity.QueueEntry, error) {
	return r.get(applicationID), nil
}

func (r *serviceEntryRepo) CountAhead(_ context.Context, enqueuedAt time.Time) (int32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int32
	for _, item := range r.entries {
		if item.TerminalState == nil && item.EnqueuedAt.Before(enqueuedAt) {
			count++
		}
	}
	return count, nil
}

func (r *serviceEntryRepo) ListStuck(_ context.Context, cutoff time.Time, limit int32) ([]*entity.QueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]*entity.QueueEntry, 0)
	for _, item := range r.entries {
		if item.TerminalState == nil && !item.LastAttemptAt.After(cutoff) {
			copyItem := *item
			items = append(items, &copyItem)
		}
		if limit > 0 && int32(len(items)) >= limit {
			break
		}
	}
	return items, nil
}

func (r *serviceEntryRepo) MarkAttempt(_ context.Context, applicationID string, now time.Time, lastError *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.entries[applicationID]
	if !ok || item.TerminalState != nil {
		return repository.ErrQueueEntryTerminal
	}
	item.AttemptCount++
	item.EnqueuedAt = now
	item.LastAttemptAt = now
	item.LastError = lastError
	item.UpdatedAt = now
	return nil
}

func (r *serviceEntryRepo) SetTerminal(_ context.Context, applicationID, state string, lastError *string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.entries[applicationID]
	if !ok || item.TerminalState != nil {
		return repository.ErrQueueEntryTerminal
	}
	stateCopy := state
	item.TerminalState = &stateCopy
	if lastError != nil {
		item.LastError = lastError
	}
	item.UpdatedAt = now
	return nil
}

type serviceGateway struct {
	mu       sync.Mutex
	statuses map[string]*gateway.PaymentStatus
	errs     map[string]error
	event    *gateway.WebhookEvent
	eventErr error
	calls    []string
}

func newServiceGateway() *serviceGateway {
	return &serviceGateway{
		statuses: map[string]*gateway.PaymentStatus{},
		errs:     map[string]error{},
	}
}

func (g *serviceGateway) GetPaymentStatus(_ context.Context, referenceID string) (*gateway.PaymentStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, referenceID)
	if err, ok := g.errs[referenceID]; ok {
		return nil, err
	}
	if status, ok := g.statuses[referenceID]; ok {
		copyItem := *status
		return &copyItem, nil
	}
	return nil, gateway.ErrPaymentNotFound
}

func (g *serviceGateway) VerifyAndParseWebhook(context.Context, []byte, string) (*gateway.WebhookEvent, error) {
	if g.eventErr != nil {
		return nil, g.eventErr
	}
	copyItem := *g.event
	return &copyItem, nil
}

func (g *serviceGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type serviceGenerator struct {
	mu       sync.Mutex
	requests []*docgen.Request
	err      error
}

func (g *serviceGenerator) Generate(_ context.Context, req *docgen.Request) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	copyItem := *req
	g.requests = append(g.requests, &copyItem)
	return nil
}

func (g *serviceGenerator) dispatchCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

type serviceLocker struct {
	mu     sync.Mutex
	held   bool
	denied bool
}

func (l *serviceLocker) Acquire(context.Context, string, time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.denied {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *serviceLocker) Release(context.Context, string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	return nil
}

type harness struct {
	appRepo   *serviceAppRepo
	eventRepo *serviceEventRepo
	entryRepo *serviceEntryRepo
	sink      *serviceSink
	gateway   *serviceGateway
	generator *serviceGenerator
	applier   *FactApplier
	queue     *QueueService
	reconcile *ReconcileService
	webhook   *WebhookService
}

func newHarness() *harness {
	h := &harness{
		appRepo:   newServiceAppRepo(),
		eventRepo: &serviceEventRepo{},
		entryRepo: newServiceEntryRepo(),
		sink:      &serviceSink{},
		gateway:   newServiceGateway(),
		generator: &serviceGenerator{},
	}
	h.applier = NewFactApplier(h.appRepo, h.eventRepo, h.sink)
	h.queue = NewQueueService(h.appRepo, h.entryRepo, h.applier, h.generator, runlock.NoopLocker{}, QueueConfig{
		MaxRetries:          3,
		StuckAfter:          15 * time.Minute,
		EstimatedJobMinutes: 3,
	})
	h.applier.SetQueueAdmitter(h.queue)
	h.reconcile = NewReconcileService(h.appRepo, h.applier, h.gateway, runlock.NoopLocker{}, h.sink, ReconcileConfig{
		GatewayConcurrency: 2,
	})
	h.webhook = NewWebhookService(h.appRepo, h.applier, h.gateway)
	return h
}

func newApplication(status lifecycle.Status) *entity.Application {
	now := time.Now().UTC()
	ref := "pi_" + uuid.NewString()
	return &entity.Application{
		ID:                 uuid.NewString(),
		ApplicantRef:       "applicant-1",
		Status:             status,
		PaymentMethod:      lifecycle.MethodCard,
		AmountCents:        5000,
		Currency:           "MXN",
		PaymentReferenceID: &ref,
		CallbackHash:       uuid.NewString(),
		DocumentRefs:       []string{},
		CreatedAt:          now,
		StatusUpdatedAt:    now,
	}
}
