package models

import (
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// AuditorSelector is the tagged union describing how the auditor for a new
// audit should be resolved. Exactly one variant must be populated.
//
// Variants:
//   - AuditorID: reuse an existing auditor record
//   - UserID: resolve-or-create from an internal account (INTERNAL audits)
//   - External: always create a fresh external auditor record
type AuditorSelector struct {
	AuditorID *id.AuditorID
	UserID    *id.UserID
	External  *ExternalAuditorDetails
}

// ExternalAuditorDetails carries the fields needed to register an outside auditor.
type ExternalAuditorDetails struct {
	Name     string
	Email    string
	FirmName string
}

// selectorKind enumerates the resolution strategies.
type selectorKind int

const (
	selectorNone selectorKind = iota
	selectorByID
	selectorInternalUser
	selectorExternal
)

func (s AuditorSelector) kind() selectorKind {
	switch {
	case s.AuditorID != nil:
		return selectorByID
	case s.UserID != nil:
		return selectorInternalUser
	case s.External != nil:
		return selectorExternal
	}
	return selectorNone
}

// Validate checks the selector shape against the audit type and returns the
// specific missing-field requirement rather than a generic validation error.
func (s AuditorSelector) Validate(auditType AuditType) error {
	populated := 0
	if s.AuditorID != nil {
		populated++
	}
	if s.UserID != nil {
		populated++
	}
	if s.External != nil {
		populated++
	}
	if populated > 1 {
		return dErrors.New(dErrors.CodeBadRequest, "auditor selector variants are mutually exclusive")
	}

	switch s.kind() {
	case selectorByID:
		if s.AuditorID.IsNil() {
			return dErrors.New(dErrors.CodeBadRequest, "auditor_id must not be empty")
		}
	case selectorInternalUser:
		if s.UserID.IsNil() {
			return dErrors.New(dErrors.CodeBadRequest, "auditor_user_id must not be empty")
		}
	case selectorExternal:
		if s.External.Name == "" || s.External.Email == "" {
			return dErrors.New(dErrors.CodeBadRequest,
				"external audits require auditor_name and auditor_email")
		}
	case selectorNone:
		switch auditType {
		case AuditTypeInternal:
			return dErrors.New(dErrors.CodeBadRequest,
				"internal audits require auditor_id or auditor_user_id")
		case AuditTypeExternal:
			return dErrors.New(dErrors.CodeBadRequest,
				"external audits require auditor_id or auditor_name and auditor_email")
		default:
			return dErrors.New(dErrors.CodeBadRequest, "an auditor selector is required")
		}
	}
	return nil
}
