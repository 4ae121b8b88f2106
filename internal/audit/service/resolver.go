package service

import (
	"context"
	"errors"
	"time"

	"conforma/internal/audit/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
	"conforma/pkg/requestcontext"
)

// resolveAuditor maps a creation request's auditor selector to a concrete
// auditor record. It runs synchronously before the audit row is written.
//
// Strategies, by selector variant:
//   - by id: look up, NotFound if absent
//   - internal user: reuse the existing auditor for that user, else create one
//     from the user record (one auditor per internal user)
//   - external details: always create; there is no natural external-identity
//     key to dedupe against, so a fresh row beats a wrong merge
func (s *Service) resolveAuditor(ctx context.Context, auditType models.AuditType, selector models.AuditorSelector) (*models.Auditor, error) {
	if err := selector.Validate(auditType); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	switch {
	case selector.AuditorID != nil:
		auditor, err := s.stores.Auditors.FindByID(ctx, *selector.AuditorID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.Newf(dErrors.CodeNotFound, "auditor %s not found", selector.AuditorID)
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up auditor")
		}
		return auditor, nil

	case selector.UserID != nil:
		return s.resolveInternal(ctx, *selector.UserID, now)

	default:
		auditor, err := models.NewExternalAuditor(
			id.NewAuditorID(),
			selector.External.Name,
			selector.External.Email,
			selector.External.FirmName,
			now,
		)
		if err != nil {
			return nil, err
		}
		if err := s.stores.Auditors.Create(ctx, auditor); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create external auditor")
		}
		return auditor, nil
	}
}

func (s *Service) resolveInternal(ctx context.Context, userID id.UserID, now time.Time) (*models.Auditor, error) {
	existing, err := s.stores.Auditors.FindByUserID(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up auditor by user")
	}

	user, err := s.stores.Users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "user %s not found", userID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up user")
	}

	auditor, err := models.NewInternalAuditor(id.NewAuditorID(), user, now)
	if err != nil {
		return nil, err
	}
	if err := s.stores.Auditors.CreateIfUserAvailable(ctx, auditor); err != nil {
		// Lost a race with a concurrent creation for the same user; the
		// winner's record is the one to reuse.
		if errors.Is(err, sentinel.ErrConflict) {
			return s.stores.Auditors.FindByUserID(ctx, userID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create internal auditor")
	}
	return auditor, nil
}
