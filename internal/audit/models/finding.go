package models

import (
	"time"

	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// FindingType classifies the severity of a recorded issue.
type FindingType string

const (
	FindingTypeObservation        FindingType = "OBSERVATION"
	FindingTypeNonConformity      FindingType = "NON_CONFORMITY"
	FindingTypeMajorNonConformity FindingType = "MAJOR_NON_CONFORMITY"
	FindingTypeOpportunity        FindingType = "OPPORTUNITY_FOR_IMPROVEMENT"
)

var findingTypes = map[FindingType]bool{
	FindingTypeObservation:        true,
	FindingTypeNonConformity:      true,
	FindingTypeMajorNonConformity: true,
	FindingTypeOpportunity:        true,
}

// Valid reports whether t is a known finding type.
func (t FindingType) Valid() bool { return findingTypes[t] }

// FindingStatus is the remediation state of a finding.
type FindingStatus string

const (
	FindingStatusOpen       FindingStatus = "OPEN"
	FindingStatusInProgress FindingStatus = "IN_PROGRESS"
	FindingStatusResolved   FindingStatus = "RESOLVED"
	FindingStatusVerified   FindingStatus = "VERIFIED"
	FindingStatusClosed     FindingStatus = "CLOSED"
)

var findingStatuses = map[FindingStatus]bool{
	FindingStatusOpen:       true,
	FindingStatusInProgress: true,
	FindingStatusResolved:   true,
	FindingStatusVerified:   true,
	FindingStatusClosed:     true,
}

// Valid reports whether s is a known finding status.
func (s FindingStatus) Valid() bool { return findingStatuses[s] }

// Priority ranks the urgency of a finding.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

var priorities = map[Priority]bool{
	PriorityLow:      true,
	PriorityMedium:   true,
	PriorityHigh:     true,
	PriorityCritical: true,
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool { return priorities[p] }

// Finding is a discrete issue discovered during an audit.
//
// Invariants:
//   - Title is non-empty; Type, Status, Priority are enum members
//   - A MAJOR_NON_CONFORMITY finding with Status != CLOSED blocks audit closure
//   - ClosedAt is stamped exactly once, on the first transition into CLOSED
type Finding struct {
	ID           id.FindingID  `json:"id"`
	AuditID      id.AuditID    `json:"audit_id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Type         FindingType   `json:"finding_type"`
	Status       FindingStatus `json:"status"`
	Priority     Priority      `json:"priority"`
	DueDate      *time.Time    `json:"due_date,omitempty"`
	AssignedToID *id.UserID    `json:"assigned_to_id,omitempty"`
	Evidence     string        `json:"evidence,omitempty"`
	ClosedAt     *time.Time    `json:"closed_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// NewFinding validates construction invariants and returns an OPEN finding.
// Priority defaults to MEDIUM when empty.
func NewFinding(findingID id.FindingID, auditID id.AuditID, title, description string, findingType FindingType, priority Priority, now time.Time) (*Finding, error) {
	if title == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "finding title cannot be empty")
	}
	if !findingType.Valid() {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "unknown finding type %q", findingType)
	}
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.Valid() {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "unknown priority %q", priority)
	}
	return &Finding{
		ID:          findingID,
		AuditID:     auditID,
		Title:       title,
		Description: description,
		Type:        findingType,
		Status:      FindingStatusOpen,
		Priority:    priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// BlocksClosure reports whether this finding gates its audit's closure.
func (f *Finding) BlocksClosure() bool {
	return f.Type == FindingTypeMajorNonConformity && f.Status != FindingStatusClosed
}

// ApplyStatus moves the finding to target, stamping ClosedAt on the first
// transition into CLOSED. Re-closing never advances the stamp.
func (f *Finding) ApplyStatus(target FindingStatus, now time.Time) error {
	if !target.Valid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown finding status %q", target)
	}
	if target == FindingStatusClosed && f.ClosedAt == nil {
		closedAt := now
		f.ClosedAt = &closedAt
	}
	f.Status = target
	f.UpdatedAt = now
	return nil
}
