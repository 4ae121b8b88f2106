package models

import (
	"time"

	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// DefaultExternalFirm is used when an external auditor is registered without
// naming a firm.
const DefaultExternalFirm = "External Firm"

// Auditor is a person or firm performing audits.
//
// Invariants:
//   - Name and Email are non-empty
//   - An internal auditor carries a UserID and it is unique across auditors
//     (one auditor record per internal user)
//   - External auditors never carry a UserID; FirmName defaults when empty
type Auditor struct {
	ID         id.AuditorID `json:"id"`
	Name       string       `json:"name"`
	Email      string       `json:"email"`
	IsExternal bool         `json:"is_external"`
	FirmName   string       `json:"firm_name,omitempty"`
	UserID     *id.UserID   `json:"user_id,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// NewInternalAuditor builds an auditor record backed by an internal user account.
func NewInternalAuditor(auditorID id.AuditorID, user *User, now time.Time) (*Auditor, error) {
	if user == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "internal auditor requires a user record")
	}
	userID := user.ID
	return &Auditor{
		ID:        auditorID,
		Name:      user.Name,
		Email:     user.Email,
		UserID:    &userID,
		CreatedAt: now,
	}, nil
}

// NewExternalAuditor builds an auditor record for an outside person or firm.
// There is no natural external-identity key to dedupe against, so every call
// creates a fresh record.
func NewExternalAuditor(auditorID id.AuditorID, name, email, firmName string, now time.Time) (*Auditor, error) {
	if name == "" || email == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "external auditor requires name and email")
	}
	if firmName == "" {
		firmName = DefaultExternalFirm
	}
	return &Auditor{
		ID:         auditorID,
		Name:       name,
		Email:      email,
		IsExternal: true,
		FirmName:   firmName,
		CreatedAt:  now,
	}, nil
}

// User is a minimal view of an internal account, enough to resolve an auditor
// and address notifications. The account system itself is out of scope.
type User struct {
	ID    id.UserID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}
