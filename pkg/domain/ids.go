// Package domain holds typed identifiers shared across modules.
//
// Every entity gets its own UUID-backed type so an AuditID can never be passed
// where a FindingID is expected. Parsing happens once, at trust boundaries
// (HTTP handlers, message consumers); services and stores only see typed IDs.
package domain

import (
	"github.com/google/uuid"

	dErrors "conforma/pkg/domain-errors"
)

type (
	// AuditID identifies a compliance audit.
	AuditID uuid.UUID
	// FindingID identifies an issue recorded during an audit.
	FindingID uuid.UUID
	// ActionID identifies a corrective action.
	ActionID uuid.UUID
	// AuditorID identifies a person or firm performing audits.
	AuditorID uuid.UUID
	// InspectionItemID identifies a checklist entry.
	InspectionItemID uuid.UUID
	// UserID identifies an internal user account.
	UserID uuid.UUID
	// DepartmentID identifies an organizational department.
	DepartmentID uuid.UUID
)

func (id AuditID) IsNil() bool          { return uuid.UUID(id) == uuid.Nil }
func (id FindingID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id ActionID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id AuditorID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id InspectionItemID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool           { return uuid.UUID(id) == uuid.Nil }
func (id DepartmentID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

func (id AuditID) String() string          { return uuid.UUID(id).String() }
func (id FindingID) String() string        { return uuid.UUID(id).String() }
func (id ActionID) String() string         { return uuid.UUID(id).String() }
func (id AuditorID) String() string        { return uuid.UUID(id).String() }
func (id InspectionItemID) String() string { return uuid.UUID(id).String() }
func (id UserID) String() string           { return uuid.UUID(id).String() }
func (id DepartmentID) String() string     { return uuid.UUID(id).String() }

// NewAuditID returns a fresh random AuditID.
func NewAuditID() AuditID { return AuditID(uuid.New()) }

// NewFindingID returns a fresh random FindingID.
func NewFindingID() FindingID { return FindingID(uuid.New()) }

// NewActionID returns a fresh random ActionID.
func NewActionID() ActionID { return ActionID(uuid.New()) }

// NewAuditorID returns a fresh random AuditorID.
func NewAuditorID() AuditorID { return AuditorID(uuid.New()) }

// NewInspectionItemID returns a fresh random InspectionItemID.
func NewInspectionItemID() InspectionItemID { return InspectionItemID(uuid.New()) }

// NewUserID returns a fresh random UserID.
func NewUserID() UserID { return UserID(uuid.New()) }

// parseUUID enforces the shared invariant: IDs must be valid, non-nil UUIDs.
func parseUUID(raw, what string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" id is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" id must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" id must not be the nil UUID")
	}
	return parsed, nil
}

// ParseAuditID parses and validates an audit id from its string form.
func ParseAuditID(raw string) (AuditID, error) {
	parsed, err := parseUUID(raw, "audit")
	return AuditID(parsed), err
}

// ParseFindingID parses and validates a finding id from its string form.
func ParseFindingID(raw string) (FindingID, error) {
	parsed, err := parseUUID(raw, "finding")
	return FindingID(parsed), err
}

// ParseActionID parses and validates a corrective action id from its string form.
func ParseActionID(raw string) (ActionID, error) {
	parsed, err := parseUUID(raw, "corrective action")
	return ActionID(parsed), err
}

// ParseAuditorID parses and validates an auditor id from its string form.
func ParseAuditorID(raw string) (AuditorID, error) {
	parsed, err := parseUUID(raw, "auditor")
	return AuditorID(parsed), err
}

// ParseInspectionItemID parses and validates an inspection item id from its string form.
func ParseInspectionItemID(raw string) (InspectionItemID, error) {
	parsed, err := parseUUID(raw, "inspection item")
	return InspectionItemID(parsed), err
}

// ParseUserID parses and validates a user id from its string form.
func ParseUserID(raw string) (UserID, error) {
	parsed, err := parseUUID(raw, "user")
	return UserID(parsed), err
}

// ParseDepartmentID parses and validates a department id from its string form.
func ParseDepartmentID(raw string) (DepartmentID, error) {
	parsed, err := parseUUID(raw, "department")
	return DepartmentID(parsed), err
}
