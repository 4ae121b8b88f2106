package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"conforma/internal/activity"
	"conforma/internal/audit/models"
	"conforma/internal/notify"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
	"conforma/pkg/requestcontext"
)

// CreateAuditParams carries everything needed to plan a new audit.
type CreateAuditParams struct {
	Name         string
	Type         models.AuditType
	StartDate    time.Time
	EndDate      *time.Time
	Auditor      models.AuditorSelector
	AuditeeID    *id.UserID
	DepartmentID *id.DepartmentID
	Objectives   string
	Scope        string
}

// CreateAudit resolves the auditor, validates the plan, and persists a new
// PLANNED audit.
func (s *Service) CreateAudit(ctx context.Context, params CreateAuditParams) (*models.Audit, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if params.Name == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "audit name is required")
	}
	if !params.Type.Valid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown audit type %q", params.Type)
	}

	auditor, err := s.resolveAuditor(ctx, params.Type, params.Auditor)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	audit, err := models.NewAudit(id.NewAuditID(), params.Name, params.Type,
		params.StartDate, params.EndDate, auditor.ID, actor, now)
	if err != nil {
		return nil, err
	}
	audit.AuditeeID = params.AuditeeID
	audit.DepartmentID = params.DepartmentID
	audit.Objectives = params.Objectives
	audit.Scope = params.Scope

	if err := s.stores.Audits.Create(ctx, audit); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create audit")
	}

	s.record(ctx, activity.Entry{
		AuditID: audit.ID,
		Action:  activity.ActionAuditCreated,
		Detail:  fmt.Sprintf("%s audit %q planned", audit.Type, audit.Name),
	})
	if s.metrics != nil {
		s.metrics.IncrementAuditsCreated()
	}
	return audit, nil
}

// GetAudit returns one audit by id.
func (s *Service) GetAudit(ctx context.Context, auditID id.AuditID) (*models.Audit, error) {
	audit, err := s.stores.Audits.FindByID(ctx, auditID)
	if err != nil {
		return nil, auditNotFound(auditID, err)
	}
	return audit, nil
}

// ListAudits returns audits, optionally filtered by status.
func (s *Service) ListAudits(ctx context.Context, status models.AuditStatus) ([]*models.Audit, error) {
	if status != "" && !status.Valid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown audit status %q", status)
	}
	return s.stores.Audits.List(ctx, status)
}

// ChangeStatus applies a manual status transition. Operators may move an
// audit against the forward state machine; an override is recorded as a
// forced transition in the activity trail rather than rejected.
func (s *Service) ChangeStatus(ctx context.Context, auditID id.AuditID, target models.AuditStatus) (*models.Audit, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	if !target.Valid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown audit status %q", target)
	}
	now := requestcontext.Now(ctx)

	var forced bool
	audit, err := s.stores.Audits.Execute(ctx, auditID, nil, func(a *models.Audit) {
		forced, _ = a.ApplyStatus(target, now)
	})
	if err != nil {
		return nil, auditNotFound(auditID, err)
	}

	action := activity.ActionAuditStatusChanged
	if forced {
		action = activity.ActionAuditStatusForced
	}
	s.record(ctx, activity.Entry{
		AuditID: audit.ID,
		Action:  action,
		Detail:  fmt.Sprintf("status set to %s", target),
	})
	s.notifyStatusChanged(ctx, audit)
	return audit, nil
}

// StartExecutionPhase moves the audit into IN_PROGRESS.
func (s *Service) StartExecutionPhase(ctx context.Context, auditID id.AuditID) (*models.Audit, error) {
	return s.ChangeStatus(ctx, auditID, models.AuditStatusInProgress)
}

// ExecutionSummary is returned when an execution phase completes.
type ExecutionSummary struct {
	Audit         *models.Audit              `json:"audit"`
	FindingCounts map[models.FindingType]int `json:"finding_counts"`
}

// CompleteExecutionPhase marks the audit COMPLETED, stores the summary, and
// returns the audit's findings grouped by type.
func (s *Service) CompleteExecutionPhase(ctx context.Context, auditID id.AuditID, summary string) (*ExecutionSummary, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	audit, err := s.stores.Audits.Execute(ctx, auditID, nil, func(a *models.Audit) {
		a.ApplyCompletion(summary, now)
	})
	if err != nil {
		return nil, auditNotFound(auditID, err)
	}

	counts, err := s.stores.Findings.CountByType(ctx, auditID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count findings")
	}

	s.record(ctx, activity.Entry{
		AuditID: audit.ID,
		Action:  activity.ActionAuditStatusChanged,
		Detail:  "execution phase completed",
	})
	s.notifyStatusChanged(ctx, audit)
	return &ExecutionSummary{Audit: audit, FindingCounts: counts}, nil
}

// BlockingFinding identifies a finding that prevents audit closure.
type BlockingFinding struct {
	ID    id.FindingID `json:"id"`
	Title string       `json:"title"`
}

// ClosureResult aggregates what the closed audit contained.
type ClosureResult struct {
	Audit         *models.Audit               `json:"audit"`
	FindingCounts map[models.FindingType]int  `json:"finding_counts"`
	ActionCounts  map[models.ActionStatus]int `json:"action_counts"`
}

// CloseAudit is the gated terminal operation. While any major non-conformity
// finding remains open it fails with ClosureBlocked, carrying the complete
// blocking list, and leaves the audit untouched.
func (s *Service) CloseAudit(ctx context.Context, auditID id.AuditID, closureSummary string) (*ClosureResult, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	now := requestcontext.Now(ctx)

	var audit *models.Audit
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		openMajors, err := s.stores.Findings.ListOpenMajor(txCtx, auditID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to query open major findings")
		}
		if len(openMajors) > 0 {
			blocking := make([]BlockingFinding, 0, len(openMajors))
			for _, finding := range openMajors {
				blocking = append(blocking, BlockingFinding{ID: finding.ID, Title: finding.Title})
			}
			if s.metrics != nil {
				s.metrics.IncrementClosuresBlocked()
			}
			return dErrors.Newf(dErrors.CodeClosureBlocked,
				"audit has %d open major non-conformities", len(blocking)).
				WithDetails(blocking)
		}

		audit, err = s.stores.Audits.Execute(txCtx, auditID, nil, func(a *models.Audit) {
			a.ApplyCompletion(closureSummary, now)
		})
		if err != nil {
			return auditNotFound(auditID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var (
		findingCounts map[models.FindingType]int
		actionCounts  map[models.ActionStatus]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := s.stores.Findings.CountByType(gctx, auditID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count findings")
		}
		findingCounts = counts
		return nil
	})
	g.Go(func() error {
		counts, err := s.stores.Actions.CountByStatus(gctx, auditID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count actions")
		}
		actionCounts = counts
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.record(ctx, activity.Entry{
		AuditID: audit.ID,
		Action:  activity.ActionAuditClosed,
		Detail:  "audit closed",
	})
	s.dispatch(ctx, notify.Message{
		Kind:       notify.KindAuditClosed,
		Recipients: s.auditParticipants(ctx, audit),
		Payload: map[string]any{
			"audit_id":   audit.ID.String(),
			"audit_name": audit.Name,
		},
	})
	if s.metrics != nil {
		s.metrics.IncrementAuditsClosed()
		s.metrics.ObserveCloseAudit(start)
	}
	return &ClosureResult{Audit: audit, FindingCounts: findingCounts, ActionCounts: actionCounts}, nil
}

// notifyStatusChanged informs the audit's participants about a status change.
func (s *Service) notifyStatusChanged(ctx context.Context, audit *models.Audit) {
	s.dispatch(ctx, notify.Message{
		Kind:       notify.KindAuditStatusChanged,
		Recipients: s.auditParticipants(ctx, audit),
		Payload: map[string]any{
			"audit_id":   audit.ID.String(),
			"audit_name": audit.Name,
			"status":     string(audit.Status),
		},
	})
}

// auditParticipants resolves the notification recipients: auditor, auditee,
// and creator. Resolution failures shrink the list instead of failing the
// caller's mutation.
func (s *Service) auditParticipants(ctx context.Context, audit *models.Audit) []string {
	recipients := make([]string, 0, 3)
	if auditor, err := s.stores.Auditors.FindByID(ctx, audit.AuditorID); err == nil {
		recipients = append(recipients, auditor.Email)
	}
	if audit.AuditeeID != nil {
		if auditee, err := s.stores.Users.FindByID(ctx, *audit.AuditeeID); err == nil {
			recipients = append(recipients, auditee.Email)
		}
	}
	if creator, err := s.stores.Users.FindByID(ctx, audit.CreatedBy); err == nil {
		recipients = append(recipients, creator.Email)
	}
	return recipients
}

// requireActor enforces the authenticated-caller precondition on mutations.
func requireActor(ctx context.Context) (id.UserID, error) {
	actor := requestcontext.ActorID(ctx)
	if actor.IsNil() {
		return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "an authenticated caller is required")
	}
	return actor, nil
}

func auditNotFound(auditID id.AuditID, err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Newf(dErrors.CodeNotFound, "audit %s not found", auditID)
	}
	if dErrors.CodeOf(err) != dErrors.CodeInternal {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "audit store failure")
}
