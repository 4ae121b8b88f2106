package service

import (
	"context"
	"time"

	"conforma/internal/activity"
	"conforma/internal/audit/models"
	"conforma/internal/notify"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/requestcontext"
)

func (s *ServiceSuite) TestCreateAudit() {
	s.Run("plans an audit with an external auditor", func() {
		audit := s.createAudit()
		s.Equal(models.AuditStatusPlanned, audit.Status)
		s.Equal(s.actor, audit.CreatedBy)
		s.False(audit.AuditorID.IsNil())
		s.True(s.containsAction(audit.ID, activity.ActionAuditCreated))
	})

	s.Run("rejects anonymous callers", func() {
		_, err := s.service.CreateAudit(s.anonCtx(), CreateAuditParams{
			Name: "x", Type: models.AuditTypeSafety, StartDate: s.now,
			Auditor: models.AuditorSelector{External: &models.ExternalAuditorDetails{Name: "a", Email: "b"}},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("rejects an empty selector with a type-specific message", func() {
		_, err := s.service.CreateAudit(s.ctx(), CreateAuditParams{
			Name: "x", Type: models.AuditTypeInternal, StartDate: s.now,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
		s.ErrorContains(err, "internal audits require")
	})
}

func (s *ServiceSuite) TestResolveAuditor() {
	s.Run("internal selector reuses the auditor record per user", func() {
		user := s.seedUser("Dana K", "dana@corp.example")
		selector := models.AuditorSelector{UserID: &user.ID}

		first, err := s.service.CreateAudit(s.ctx(), CreateAuditParams{
			Name: "a", Type: models.AuditTypeInternal, StartDate: s.now, Auditor: selector,
		})
		s.Require().NoError(err)
		second, err := s.service.CreateAudit(s.ctx(), CreateAuditParams{
			Name: "b", Type: models.AuditTypeInternal, StartDate: s.now, Auditor: selector,
		})
		s.Require().NoError(err)
		s.Equal(first.AuditorID, second.AuditorID, "same user resolves to the same auditor")
	})

	s.Run("unknown internal user is not found", func() {
		missing := id.NewUserID()
		_, err := s.service.CreateAudit(s.ctx(), CreateAuditParams{
			Name: "a", Type: models.AuditTypeInternal, StartDate: s.now,
			Auditor: models.AuditorSelector{UserID: &missing},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("external selector always creates a fresh record", func() {
		selector := models.AuditorSelector{
			External: &models.ExternalAuditorDetails{Name: "Jo Reyes", Email: "jo@firm.example"},
		}
		first, err := s.service.CreateAudit(s.ctx(), CreateAuditParams{
			Name: "a", Type: models.AuditTypeExternal, StartDate: s.now, Auditor: selector,
		})
		s.Require().NoError(err)
		second, err := s.service.CreateAudit(s.ctx(), CreateAuditParams{
			Name: "b", Type: models.AuditTypeExternal, StartDate: s.now, Auditor: selector,
		})
		s.Require().NoError(err)
		s.NotEqual(first.AuditorID, second.AuditorID)

		auditor, err := s.auditors.FindByID(context.Background(), second.AuditorID)
		s.Require().NoError(err)
		s.True(auditor.IsExternal)
		s.Equal(models.DefaultExternalFirm, auditor.FirmName, "firm name defaults when omitted")
	})

	s.Run("by-id selector requires an existing auditor", func() {
		missing := id.NewAuditorID()
		_, err := s.service.CreateAudit(s.ctx(), CreateAuditParams{
			Name: "a", Type: models.AuditTypeSafety, StartDate: s.now,
			Auditor: models.AuditorSelector{AuditorID: &missing},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestChangeStatus() {
	s.Run("forward transition records a plain status change", func() {
		audit := s.createAudit()
		updated, err := s.service.ChangeStatus(s.ctx(), audit.ID, models.AuditStatusInProgress)
		s.Require().NoError(err)
		s.Equal(models.AuditStatusInProgress, updated.Status)
		s.True(s.containsAction(audit.ID, activity.ActionAuditStatusChanged))
		s.False(s.containsAction(audit.ID, activity.ActionAuditStatusForced))
	})

	s.Run("override is applied and recorded as forced", func() {
		audit := s.createAudit()
		updated, err := s.service.ChangeStatus(s.ctx(), audit.ID, models.AuditStatusCompleted)
		s.Require().NoError(err)
		s.Equal(models.AuditStatusCompleted, updated.Status)
		s.True(s.containsAction(audit.ID, activity.ActionAuditStatusForced))
	})

	s.Run("unknown status is rejected before touching the store", func() {
		audit := s.createAudit()
		_, err := s.service.ChangeStatus(s.ctx(), audit.ID, models.AuditStatus("ARCHIVED"))
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

		stored, err := s.audits.FindByID(context.Background(), audit.ID)
		s.Require().NoError(err)
		s.Equal(models.AuditStatusPlanned, stored.Status)
	})

	s.Run("unknown audit is not found", func() {
		_, err := s.service.ChangeStatus(s.ctx(), id.NewAuditID(), models.AuditStatusInProgress)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("participants are notified", func() {
		audit := s.createAudit()
		_, err := s.service.ChangeStatus(s.ctx(), audit.ID, models.AuditStatusInProgress)
		s.Require().NoError(err)

		msgs := s.sent.ByKind(notify.KindAuditStatusChanged)
		s.Require().NotEmpty(msgs)
		s.Contains(msgs[len(msgs)-1].Recipients, "jo@firm.example")
	})
}

func (s *ServiceSuite) TestCompleteExecutionPhase() {
	audit := s.createAudit()
	_, err := s.service.StartExecutionPhase(s.ctx(), audit.ID)
	s.Require().NoError(err)

	_, err = s.service.CreateFinding(s.ctx(), CreateFindingParams{
		AuditID: audit.ID, Title: "obs", Type: models.FindingTypeObservation,
	})
	s.Require().NoError(err)
	_, err = s.service.CreateFinding(s.ctx(), CreateFindingParams{
		AuditID: audit.ID, Title: "major", Type: models.FindingTypeMajorNonConformity,
	})
	s.Require().NoError(err)

	summary, err := s.service.CompleteExecutionPhase(s.ctx(), audit.ID, "done")
	s.Require().NoError(err)
	s.Equal(models.AuditStatusCompleted, summary.Audit.Status)
	s.Equal("done", summary.Audit.Summary)
	s.Equal(1, summary.FindingCounts[models.FindingTypeObservation])
	s.Equal(1, summary.FindingCounts[models.FindingTypeMajorNonConformity])
}

func (s *ServiceSuite) TestCloseAuditGate() {
	s.Run("open majors block closure and leave the audit untouched", func() {
		audit := s.createAudit()
		first, err := s.service.CreateFinding(s.ctx(), CreateFindingParams{
			AuditID: audit.ID, Title: "no lockout procedure", Type: models.FindingTypeMajorNonConformity,
		})
		s.Require().NoError(err)
		second, err := s.service.CreateFinding(s.ctx(), CreateFindingParams{
			AuditID: audit.ID, Title: "expired permits", Type: models.FindingTypeMajorNonConformity,
		})
		s.Require().NoError(err)
		// A verified major still blocks; only CLOSED releases the gate.
		verified := models.FindingStatusVerified
		_, err = s.service.UpdateFinding(s.ctx(), second.ID, UpdateFindingParams{Status: &verified})
		s.Require().NoError(err)

		_, err = s.service.CloseAudit(s.ctx(), audit.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeClosureBlocked))

		blocking, ok := dErrors.DetailsOf(err).([]BlockingFinding)
		s.Require().True(ok, "details carry the blocking list")
		s.Len(blocking, 2)
		titles := []string{blocking[0].Title, blocking[1].Title}
		s.Contains(titles, first.Title)
		s.Contains(titles, second.Title)

		stored, err := s.audits.FindByID(context.Background(), audit.ID)
		s.Require().NoError(err)
		s.Equal(models.AuditStatusPlanned, stored.Status, "blocked closure mutates nothing")
	})

	s.Run("non-major findings never block", func() {
		audit := s.createAudit()
		_, err := s.service.CreateFinding(s.ctx(), CreateFindingParams{
			AuditID: audit.ID, Title: "minor gap", Type: models.FindingTypeNonConformity,
		})
		s.Require().NoError(err)

		result, err := s.service.CloseAudit(s.ctx(), audit.ID, "wrapped up")
		s.Require().NoError(err)
		s.Equal(models.AuditStatusCompleted, result.Audit.Status)
		s.Equal("wrapped up", result.Audit.Summary)
		s.Equal(1, result.FindingCounts[models.FindingTypeNonConformity])
	})

	s.Run("closing a major opens the gate", func() {
		audit := s.createAudit()
		finding, err := s.service.CreateFinding(s.ctx(), CreateFindingParams{
			AuditID: audit.ID, Title: "major", Type: models.FindingTypeMajorNonConformity,
		})
		s.Require().NoError(err)

		closed := models.FindingStatusClosed
		_, err = s.service.UpdateFinding(s.ctx(), finding.ID, UpdateFindingParams{Status: &closed})
		s.Require().NoError(err)

		_, err = s.service.CloseAudit(s.ctx(), audit.ID, "")
		s.Require().NoError(err)
		s.True(s.containsAction(audit.ID, activity.ActionAuditClosed))
		s.NotEmpty(s.sent.ByKind(notify.KindAuditClosed))
	})

	s.Run("closure result carries both aggregate counts", func() {
		audit, _, actions := s.seedFindingWithActions(models.FindingTypeNonConformity, 3)
		s.verify(actions[0].ID)

		result, err := s.service.CloseAudit(s.ctx(), audit.ID, "done")
		s.Require().NoError(err)
		s.Equal(1, result.FindingCounts[models.FindingTypeNonConformity])
		s.Equal(1, result.ActionCounts[models.ActionStatusVerified])
		s.Equal(2, result.ActionCounts[models.ActionStatusOpen])
	})

	s.Run("notification failure never fails the closure", func() {
		audit := s.createAudit()
		s.sent.FailWith(errDeliveryDown)

		result, err := s.service.CloseAudit(s.ctx(), audit.ID, "")
		s.Require().NoError(err)
		s.Equal(models.AuditStatusCompleted, result.Audit.Status)
		s.sent.FailWith(nil)
	})
}

func (s *ServiceSuite) TestUpdateFindingStampsClosedAtOnce() {
	audit := s.createAudit()
	finding, err := s.service.CreateFinding(s.ctx(), CreateFindingParams{
		AuditID: audit.ID, Title: "gap", Type: models.FindingTypeNonConformity,
	})
	s.Require().NoError(err)

	closed := models.FindingStatusClosed
	updated, err := s.service.UpdateFinding(s.ctx(), finding.ID, UpdateFindingParams{Status: &closed})
	s.Require().NoError(err)
	s.Require().NotNil(updated.ClosedAt)
	firstStamp := *updated.ClosedAt

	// Reopen, then close again later: the stamp survives.
	open := models.FindingStatusOpen
	_, err = s.service.UpdateFinding(s.ctx(), finding.ID, UpdateFindingParams{Status: &open})
	s.Require().NoError(err)

	laterCtx := requestcontext.WithActorID(
		requestcontext.WithTime(context.Background(), s.now.Add(72*time.Hour)), s.actor)
	updated, err = s.service.UpdateFinding(laterCtx, finding.ID, UpdateFindingParams{Status: &closed})
	s.Require().NoError(err)
	s.Equal(firstStamp, *updated.ClosedAt)
}

var errDeliveryDown = dErrors.New(dErrors.CodeInternal, "delivery down")
