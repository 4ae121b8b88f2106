// Package service is the audit lifecycle engine: legal state transitions for
// audits, findings, and corrective actions, the closure gate, and the
// verification cascade. Handlers stay thin; everything with a business rule
// lives here.
package service

import (
	"context"
	"log/slog"
	"time"

	"conforma/internal/activity"
	auditmetrics "conforma/internal/audit/metrics"
	"conforma/internal/audit/models"
	"conforma/internal/notify"
	id "conforma/pkg/domain"
)

// AuditStore persists audits. Execute runs validate-then-mutate atomically
// (mutex in memory, row lock in postgres).
type AuditStore interface {
	Create(ctx context.Context, audit *models.Audit) error
	FindByID(ctx context.Context, auditID id.AuditID) (*models.Audit, error)
	List(ctx context.Context, status models.AuditStatus) ([]*models.Audit, error)
	Execute(ctx context.Context, auditID id.AuditID, validate func(*models.Audit) error, mutate func(*models.Audit)) (*models.Audit, error)
	ListDueToStart(ctx context.Context, now time.Time, limit int) ([]*models.Audit, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*models.Audit, error)
}

// FindingStore persists findings and answers the closure-gate queries.
type FindingStore interface {
	Create(ctx context.Context, finding *models.Finding) error
	FindByID(ctx context.Context, findingID id.FindingID) (*models.Finding, error)
	ListByAudit(ctx context.Context, auditID id.AuditID) ([]*models.Finding, error)
	ListOpenMajor(ctx context.Context, auditID id.AuditID) ([]*models.Finding, error)
	CountByType(ctx context.Context, auditID id.AuditID) (map[models.FindingType]int, error)
	Execute(ctx context.Context, findingID id.FindingID, validate func(*models.Finding) error, mutate func(*models.Finding)) (*models.Finding, error)
}

// ActionStore persists corrective actions and answers the cascade queries.
type ActionStore interface {
	Create(ctx context.Context, action *models.CorrectiveAction) error
	FindByID(ctx context.Context, actionID id.ActionID) (*models.CorrectiveAction, error)
	ListByAudit(ctx context.Context, auditID id.AuditID) ([]*models.CorrectiveAction, error)
	ListByFinding(ctx context.Context, findingID id.FindingID) ([]*models.CorrectiveAction, error)
	CountUnverifiedByFinding(ctx context.Context, findingID id.FindingID) (int, error)
	CountByStatus(ctx context.Context, auditID id.AuditID) (map[models.ActionStatus]int, error)
	Execute(ctx context.Context, actionID id.ActionID, validate func(*models.CorrectiveAction) error, mutate func(*models.CorrectiveAction)) (*models.CorrectiveAction, error)
}

// AuditorStore persists auditor records.
type AuditorStore interface {
	Create(ctx context.Context, auditor *models.Auditor) error
	CreateIfUserAvailable(ctx context.Context, auditor *models.Auditor) error
	FindByID(ctx context.Context, auditorID id.AuditorID) (*models.Auditor, error)
	FindByUserID(ctx context.Context, userID id.UserID) (*models.Auditor, error)
}

// UserDirectory resolves internal accounts for auditor resolution and
// notification addressing.
type UserDirectory interface {
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
}

// InspectionStore persists checklist items.
type InspectionStore interface {
	CreateBatch(ctx context.Context, items []*models.InspectionItem) error
	FindByID(ctx context.Context, itemID id.InspectionItemID) (*models.InspectionItem, error)
	ListByAudit(ctx context.Context, auditID id.AuditID) ([]*models.InspectionItem, error)
	Execute(ctx context.Context, itemID id.InspectionItemID, validate func(*models.InspectionItem) error, mutate func(*models.InspectionItem)) (*models.InspectionItem, error)
}

// StoreTx provides a transactional boundary spanning multiple stores. The
// verification cascade runs inside one so a crash mid-cascade cannot leave the
// action updated but the finding stale.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// Stores bundles the persistence dependencies of the lifecycle engine.
type Stores struct {
	Audits      AuditStore
	Findings    FindingStore
	Actions     ActionStore
	Auditors    AuditorStore
	Users       UserDirectory
	Inspections InspectionStore
}

// Service orchestrates the audit lifecycle. The entity store is the single
// source of truth; nothing is cached across calls.
type Service struct {
	stores   Stores
	tx       StoreTx
	recorder *activity.Recorder
	notifier *notify.Dispatcher
	metrics  *auditmetrics.Metrics
	logger   *slog.Logger
}

type serviceConfig struct {
	tx       StoreTx
	recorder *activity.Recorder
	notifier *notify.Dispatcher
	metrics  *auditmetrics.Metrics
	logger   *slog.Logger
}

// Option configures optional service dependencies.
type Option func(*serviceConfig)

// WithTx sets the transactional boundary (postgres TxRunner in production).
func WithTx(tx StoreTx) Option {
	return func(cfg *serviceConfig) { cfg.tx = tx }
}

// WithActivityRecorder sets the activity trail recorder.
func WithActivityRecorder(recorder *activity.Recorder) Option {
	return func(cfg *serviceConfig) { cfg.recorder = recorder }
}

// WithNotifier sets the notification dispatcher.
func WithNotifier(notifier *notify.Dispatcher) Option {
	return func(cfg *serviceConfig) { cfg.notifier = notifier }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *auditmetrics.Metrics) Option {
	return func(cfg *serviceConfig) { cfg.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *serviceConfig) { cfg.logger = logger }
}

// New builds the lifecycle engine. Without WithTx, multi-store chains run
// without a shared transaction (acceptable for the in-memory stores, whose
// Execute is already atomic per entity).
func New(stores Stores, opts ...Option) *Service {
	cfg := &serviceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	tx := cfg.tx
	if tx == nil {
		tx = passthroughTx{}
	}
	return &Service{
		stores:   stores,
		tx:       tx,
		recorder: cfg.recorder,
		notifier: cfg.notifier,
		metrics:  cfg.metrics,
		logger:   cfg.logger,
	}
}

// passthroughTx runs the function without a transactional boundary.
type passthroughTx struct{}

func (passthroughTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

func (s *Service) record(ctx context.Context, entry activity.Entry) {
	s.recorder.Record(ctx, entry)
}

func (s *Service) dispatch(ctx context.Context, msg notify.Message) {
	s.notifier.Dispatch(ctx, msg)
}
