package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"conforma/internal/activity"
	"conforma/internal/audit/models"
	"conforma/internal/notify"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
	"conforma/pkg/requestcontext"
)

// CreateFindingParams carries everything needed to record a finding.
type CreateFindingParams struct {
	AuditID      id.AuditID
	Title        string
	Description  string
	Type         models.FindingType
	Priority     models.Priority
	DueDate      *time.Time
	AssignedToID *id.UserID
	Evidence     string
}

// CreateFinding records an issue discovered during the execution phase.
func (s *Service) CreateFinding(ctx context.Context, params CreateFindingParams) (*models.Finding, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	if _, err := s.stores.Audits.FindByID(ctx, params.AuditID); err != nil {
		return nil, auditNotFound(params.AuditID, err)
	}

	now := requestcontext.Now(ctx)
	finding, err := models.NewFinding(id.NewFindingID(), params.AuditID,
		params.Title, params.Description, params.Type, params.Priority, now)
	if err != nil {
		return nil, err
	}
	finding.DueDate = params.DueDate
	finding.AssignedToID = params.AssignedToID
	finding.Evidence = params.Evidence

	if err := s.stores.Findings.Create(ctx, finding); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create finding")
	}

	s.record(ctx, activity.Entry{
		AuditID: finding.AuditID,
		Action:  activity.ActionFindingCreated,
		Detail:  fmt.Sprintf("%s finding %q recorded", finding.Type, finding.Title),
	})
	if finding.AssignedToID != nil {
		if assignee, err := s.stores.Users.FindByID(ctx, *finding.AssignedToID); err == nil {
			s.dispatch(ctx, notify.Message{
				Kind:       notify.KindFindingAssigned,
				Recipients: []string{assignee.Email},
				Payload: map[string]any{
					"finding_id": finding.ID.String(),
					"title":      finding.Title,
					"priority":   string(finding.Priority),
				},
			})
		}
	}
	return finding, nil
}

// UpdateFindingParams carries the mutable finding fields; nil means unchanged.
type UpdateFindingParams struct {
	Title        *string
	Description  *string
	Status       *models.FindingStatus
	Priority     *models.Priority
	DueDate      *time.Time
	AssignedToID *id.UserID
	Evidence     *string
}

// UpdateFinding applies a partial update. Setting status CLOSED for the first
// time stamps closedAt; re-closing never advances the stamp.
func (s *Service) UpdateFinding(ctx context.Context, findingID id.FindingID, params UpdateFindingParams) (*models.Finding, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	if params.Status != nil && !params.Status.Valid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown finding status %q", *params.Status)
	}
	if params.Priority != nil && !params.Priority.Valid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown priority %q", *params.Priority)
	}
	now := requestcontext.Now(ctx)

	finding, err := s.stores.Findings.Execute(ctx, findingID, nil, func(f *models.Finding) {
		if params.Title != nil {
			f.Title = *params.Title
		}
		if params.Description != nil {
			f.Description = *params.Description
		}
		if params.Priority != nil {
			f.Priority = *params.Priority
		}
		if params.DueDate != nil {
			dueDate := *params.DueDate
			f.DueDate = &dueDate
		}
		if params.AssignedToID != nil {
			assignee := *params.AssignedToID
			f.AssignedToID = &assignee
		}
		if params.Evidence != nil {
			f.Evidence = *params.Evidence
		}
		if params.Status != nil {
			_ = f.ApplyStatus(*params.Status, now)
		} else {
			f.UpdatedAt = now
		}
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "finding %s not found", findingID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update finding")
	}

	s.record(ctx, activity.Entry{
		AuditID: finding.AuditID,
		Action:  activity.ActionFindingUpdated,
		Detail:  fmt.Sprintf("finding %q updated", finding.Title),
	})
	return finding, nil
}

// ListFindings returns all findings recorded for an audit.
func (s *Service) ListFindings(ctx context.Context, auditID id.AuditID) ([]*models.Finding, error) {
	if _, err := s.stores.Audits.FindByID(ctx, auditID); err != nil {
		return nil, auditNotFound(auditID, err)
	}
	return s.stores.Findings.ListByAudit(ctx, auditID)
}
