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

// CreateActionParams carries everything needed to open a corrective action.
type CreateActionParams struct {
	AuditID      id.AuditID
	FindingID    *id.FindingID
	Title        string
	Description  string
	Type         models.ActionType
	AssignedToID id.UserID
	DueDate      time.Time
}

// CreateCorrectiveAction opens a remedial work item against an audit,
// optionally tied to a finding.
func (s *Service) CreateCorrectiveAction(ctx context.Context, params CreateActionParams) (*models.CorrectiveAction, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	if _, err := s.stores.Audits.FindByID(ctx, params.AuditID); err != nil {
		return nil, auditNotFound(params.AuditID, err)
	}
	if params.FindingID != nil {
		if _, err := s.stores.Findings.FindByID(ctx, *params.FindingID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.Newf(dErrors.CodeNotFound, "finding %s not found", params.FindingID)
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up finding")
		}
	}

	now := requestcontext.Now(ctx)
	action, err := models.NewCorrectiveAction(id.NewActionID(), params.AuditID, params.FindingID,
		params.Title, params.Description, params.Type, params.AssignedToID, params.DueDate, now)
	if err != nil {
		return nil, err
	}
	if err := s.stores.Actions.Create(ctx, action); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create corrective action")
	}

	s.record(ctx, activity.Entry{
		AuditID: action.AuditID,
		Action:  activity.ActionActionCreated,
		Detail:  fmt.Sprintf("%s action %q opened", action.Type, action.Title),
	})
	if assignee, err := s.stores.Users.FindByID(ctx, action.AssignedToID); err == nil {
		s.dispatch(ctx, notify.Message{
			Kind:       notify.KindActionAssigned,
			Recipients: []string{assignee.Email},
			Payload: map[string]any{
				"action_id": action.ID.String(),
				"title":     action.Title,
				"due_date":  action.DueDate,
			},
		})
	}
	return action, nil
}

// UpdateActionParams carries the mutable action fields; nil means unchanged.
type UpdateActionParams struct {
	Status      models.ActionStatus
	Description *string
	Evidence    *string
}

// UpdateCorrectiveAction updates the action and runs the verification cascade:
//
//  1. Apply the status/description/evidence update, stamping completedAt and
//     verifiedAt/verifiedBy exactly once on their first transitions.
//  2. On a first-time VERIFIED with a parent finding: if no sibling action
//     remains unverified, auto-close the finding and record it.
//  3. On a first-time VERIFIED: if the audit has no open major non-conformity
//     left, tell the auditor (informational only).
//
// Steps 1 and 2 run inside one transaction so a crash cannot leave the action
// verified but the finding stale.
func (s *Service) UpdateCorrectiveAction(ctx context.Context, actionID id.ActionID, params UpdateActionParams) (*models.CorrectiveAction, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if !params.Status.Valid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown action status %q", params.Status)
	}
	start := time.Now()
	now := requestcontext.Now(ctx)

	var (
		action      *models.CorrectiveAction
		firstVerify bool
		autoClosed  *models.Finding
	)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var execErr error
		action, execErr = s.stores.Actions.Execute(txCtx, actionID, nil, func(a *models.CorrectiveAction) {
			if params.Description != nil {
				a.Description = *params.Description
			}
			if params.Evidence != nil {
				a.Evidence = *params.Evidence
			}
			firstVerify, _ = a.ApplyStatus(params.Status, actor, now)
		})
		if execErr != nil {
			if errors.Is(execErr, sentinel.ErrNotFound) {
				return dErrors.Newf(dErrors.CodeNotFound, "corrective action %s not found", actionID)
			}
			return dErrors.Wrap(execErr, dErrors.CodeInternal, "failed to update corrective action")
		}

		if firstVerify && action.FindingID != nil {
			unverified, countErr := s.stores.Actions.CountUnverifiedByFinding(txCtx, *action.FindingID)
			if countErr != nil {
				return dErrors.Wrap(countErr, dErrors.CodeInternal, "failed to check sibling actions")
			}
			if unverified == 0 {
				autoClosed, execErr = s.stores.Findings.Execute(txCtx, *action.FindingID, nil, func(f *models.Finding) {
					_ = f.ApplyStatus(models.FindingStatusClosed, now)
				})
				if execErr != nil {
					return dErrors.Wrap(execErr, dErrors.CodeInternal, "failed to auto-close finding")
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, activity.Entry{
		AuditID: action.AuditID,
		Action:  activity.ActionActionUpdated,
		Detail:  fmt.Sprintf("action %q set to %s", action.Title, action.Status),
	})
	if autoClosed != nil {
		s.record(ctx, activity.Entry{
			AuditID: autoClosed.AuditID,
			Action:  activity.ActionFindingAutoClosed,
			Detail:  fmt.Sprintf("finding %q closed: all corrective actions verified", autoClosed.Title),
		})
		if s.metrics != nil {
			s.metrics.IncrementFindingsAutoClosed()
		}
	}
	if firstVerify {
		s.notifyIfMajorsCleared(ctx, action.AuditID)
	}
	if s.metrics != nil {
		s.metrics.ObserveCascade(start)
	}
	return action, nil
}

// ListCorrectiveActions returns all actions opened against an audit.
func (s *Service) ListCorrectiveActions(ctx context.Context, auditID id.AuditID) ([]*models.CorrectiveAction, error) {
	if _, err := s.stores.Audits.FindByID(ctx, auditID); err != nil {
		return nil, auditNotFound(auditID, err)
	}
	return s.stores.Actions.ListByAudit(ctx, auditID)
}

// notifyIfMajorsCleared tells the auditor when the last open major
// non-conformity is gone. Informational only; no status changes.
func (s *Service) notifyIfMajorsCleared(ctx context.Context, auditID id.AuditID) {
	openMajors, err := s.stores.Findings.ListOpenMajor(ctx, auditID)
	if err != nil || len(openMajors) > 0 {
		return
	}
	audit, err := s.stores.Audits.FindByID(ctx, auditID)
	if err != nil {
		return
	}
	auditor, err := s.stores.Auditors.FindByID(ctx, audit.AuditorID)
	if err != nil {
		return
	}
	s.dispatch(ctx, notify.Message{
		Kind:       notify.KindMajorsCleared,
		Recipients: []string{auditor.Email},
		Payload: map[string]any{
			"audit_id":   audit.ID.String(),
			"audit_name": audit.Name,
		},
	})
}
