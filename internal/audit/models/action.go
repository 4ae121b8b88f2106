package models

import (
	"time"

	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// ActionType distinguishes remediation from prevention work.
type ActionType string

const (
	ActionTypeCorrective ActionType = "CORRECTIVE"
	ActionTypePreventive ActionType = "PREVENTIVE"
)

// Valid reports whether t is a known action type.
func (t ActionType) Valid() bool {
	return t == ActionTypeCorrective || t == ActionTypePreventive
}

// ActionStatus is the tracking state of a corrective action.
type ActionStatus string

const (
	ActionStatusOpen       ActionStatus = "OPEN"
	ActionStatusInProgress ActionStatus = "IN_PROGRESS"
	ActionStatusCompleted  ActionStatus = "COMPLETED"
	ActionStatusVerified   ActionStatus = "VERIFIED"
)

var actionStatuses = map[ActionStatus]bool{
	ActionStatusOpen:       true,
	ActionStatusInProgress: true,
	ActionStatusCompleted:  true,
	ActionStatusVerified:   true,
}

// Valid reports whether s is a known action status.
func (s ActionStatus) Valid() bool { return actionStatuses[s] }

// CorrectiveAction is a remedial work item tied to an audit and optionally to
// a finding.
//
// Invariants:
//   - CompletedAt is stamped exactly once, on the first transition into COMPLETED
//   - VerifiedAt/VerifiedBy are stamped exactly once, on the first transition
//     into VERIFIED
type CorrectiveAction struct {
	ID           id.ActionID   `json:"id"`
	AuditID      id.AuditID    `json:"audit_id"`
	FindingID    *id.FindingID `json:"finding_id,omitempty"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Type         ActionType    `json:"action_type"`
	AssignedToID id.UserID     `json:"assigned_to_id"`
	DueDate      time.Time     `json:"due_date"`
	Status       ActionStatus  `json:"status"`
	Evidence     string        `json:"evidence,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	VerifiedAt   *time.Time    `json:"verified_at,omitempty"`
	VerifiedByID *id.UserID    `json:"verified_by_id,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// NewCorrectiveAction validates construction invariants and returns an OPEN action.
func NewCorrectiveAction(actionID id.ActionID, auditID id.AuditID, findingID *id.FindingID, title, description string, actionType ActionType, assignedTo id.UserID, dueDate time.Time, now time.Time) (*CorrectiveAction, error) {
	if title == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "corrective action title cannot be empty")
	}
	if !actionType.Valid() {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "unknown action type %q", actionType)
	}
	if assignedTo.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "corrective action requires an assignee")
	}
	return &CorrectiveAction{
		ID:           actionID,
		AuditID:      auditID,
		FindingID:    findingID,
		Title:        title,
		Description:  description,
		Type:         actionType,
		AssignedToID: assignedTo,
		DueDate:      dueDate,
		Status:       ActionStatusOpen,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ApplyStatus moves the action to target and reports whether this was the
// first transition into VERIFIED (the trigger for the verification cascade).
// Completion and verification stamps are set once and never advanced.
func (c *CorrectiveAction) ApplyStatus(target ActionStatus, verifier id.UserID, now time.Time) (firstVerify bool, err error) {
	if !target.Valid() {
		return false, dErrors.Newf(dErrors.CodeInvalidInput, "unknown action status %q", target)
	}
	if target == ActionStatusCompleted && c.CompletedAt == nil {
		completedAt := now
		c.CompletedAt = &completedAt
	}
	if target == ActionStatusVerified && c.VerifiedAt == nil {
		verifiedAt := now
		c.VerifiedAt = &verifiedAt
		verifiedBy := verifier
		c.VerifiedByID = &verifiedBy
		firstVerify = true
	}
	c.Status = target
	c.UpdatedAt = now
	return firstVerify, nil
}
