package models

import (
	"time"

	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// AuditType classifies the nature of a compliance review.
type AuditType string

const (
	AuditTypeInternal   AuditType = "INTERNAL"
	AuditTypeExternal   AuditType = "EXTERNAL"
	AuditTypeCompliance AuditType = "COMPLIANCE"
	AuditTypeProcess    AuditType = "PROCESS"
	AuditTypeQuality    AuditType = "QUALITY"
	AuditTypeSafety     AuditType = "SAFETY"
	AuditTypeSupplier   AuditType = "SUPPLIER"
	AuditTypeSystem     AuditType = "SYSTEM"
)

var auditTypes = map[AuditType]bool{
	AuditTypeInternal:   true,
	AuditTypeExternal:   true,
	AuditTypeCompliance: true,
	AuditTypeProcess:    true,
	AuditTypeQuality:    true,
	AuditTypeSafety:     true,
	AuditTypeSupplier:   true,
	AuditTypeSystem:     true,
}

// Valid reports whether t is a known audit type.
func (t AuditType) Valid() bool { return auditTypes[t] }

// AuditStatus is the lifecycle state of an audit.
type AuditStatus string

const (
	AuditStatusPlanned    AuditStatus = "PLANNED"
	AuditStatusInProgress AuditStatus = "IN_PROGRESS"
	AuditStatusCompleted  AuditStatus = "COMPLETED"
	AuditStatusCancelled  AuditStatus = "CANCELLED"
	AuditStatusDelayed    AuditStatus = "DELAYED"
)

var auditStatuses = map[AuditStatus]bool{
	AuditStatusPlanned:    true,
	AuditStatusInProgress: true,
	AuditStatusCompleted:  true,
	AuditStatusCancelled:  true,
	AuditStatusDelayed:    true,
}

// Valid reports whether s is a known audit status.
func (s AuditStatus) Valid() bool { return auditStatuses[s] }

// Terminal reports whether s admits no further automatic transitions.
func (s AuditStatus) Terminal() bool {
	return s == AuditStatusCompleted || s == AuditStatusCancelled
}

// auditTransitions is the forward state machine:
// PLANNED → IN_PROGRESS → COMPLETED, with CANCELLED and DELAYED reachable from
// any non-terminal state and DELAYED able to resume.
var auditTransitions = map[AuditStatus][]AuditStatus{
	AuditStatusPlanned:    {AuditStatusInProgress, AuditStatusCancelled, AuditStatusDelayed},
	AuditStatusInProgress: {AuditStatusCompleted, AuditStatusCancelled, AuditStatusDelayed},
	AuditStatusDelayed:    {AuditStatusPlanned, AuditStatusInProgress, AuditStatusCancelled},
	AuditStatusCompleted:  {},
	AuditStatusCancelled:  {},
}

// CanTransitionTo reports whether the forward state machine allows s → target.
// Manual operator transitions may override this table; callers that do so must
// record the override (see Audit.ApplyStatus).
func (s AuditStatus) CanTransitionTo(target AuditStatus) bool {
	for _, allowed := range auditTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Audit is the aggregate root for a compliance review.
//
// Invariants:
//   - Name is non-empty
//   - Type and Status are members of their enums
//   - EndDate, when set, is not before StartDate
//   - Status changes flow through ApplyStatus so overrides are observable
type Audit struct {
	ID           id.AuditID       `json:"id"`
	Name         string           `json:"name"`
	Type         AuditType        `json:"audit_type"`
	Status       AuditStatus      `json:"status"`
	StartDate    time.Time        `json:"start_date"`
	EndDate      *time.Time       `json:"end_date,omitempty"`
	AuditorID    id.AuditorID     `json:"auditor_id"`
	AuditeeID    *id.UserID       `json:"auditee_id,omitempty"`
	DepartmentID *id.DepartmentID `json:"department_id,omitempty"`
	Objectives   string           `json:"objectives,omitempty"`
	Scope        string           `json:"scope,omitempty"`
	Summary      string           `json:"summary,omitempty"`
	CreatedBy    id.UserID        `json:"created_by"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// NewAudit validates construction invariants and returns a PLANNED audit.
func NewAudit(auditID id.AuditID, name string, auditType AuditType, startDate time.Time, endDate *time.Time, auditorID id.AuditorID, createdBy id.UserID, now time.Time) (*Audit, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "audit name cannot be empty")
	}
	if !auditType.Valid() {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "unknown audit type %q", auditType)
	}
	if auditorID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "audit requires an auditor")
	}
	if endDate != nil && endDate.Before(startDate) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "audit end date must not precede start date")
	}
	return &Audit{
		ID:        auditID,
		Name:      name,
		Type:      auditType,
		Status:    AuditStatusPlanned,
		StartDate: startDate,
		EndDate:   endDate,
		AuditorID: auditorID,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ApplyStatus moves the audit to target and reports whether the transition was
// an override of the forward state machine. Operators may override (the legacy
// behavior is deliberately permissive); automatic callers must not.
func (a *Audit) ApplyStatus(target AuditStatus, now time.Time) (forced bool, err error) {
	if !target.Valid() {
		return false, dErrors.Newf(dErrors.CodeInvalidInput, "unknown audit status %q", target)
	}
	if target == a.Status {
		return false, nil
	}
	forced = !a.Status.CanTransitionTo(target)
	a.Status = target
	a.UpdatedAt = now
	return forced, nil
}

// CanAutoAdvance checks the forward state machine for automatic transitions
// (scheduler, execution-phase operations). Overrides are not allowed here.
func (a *Audit) CanAutoAdvance(target AuditStatus) error {
	if !a.Status.CanTransitionTo(target) {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"audit cannot move from %s to %s", a.Status, target)
	}
	return nil
}

// ApplyCompletion marks the audit COMPLETED and stores the execution summary.
// An empty summary keeps whatever summary the audit already carries.
func (a *Audit) ApplyCompletion(summary string, now time.Time) {
	a.Status = AuditStatusCompleted
	if summary != "" {
		a.Summary = summary
	}
	a.UpdatedAt = now
}
