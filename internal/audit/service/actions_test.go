package service

import (
	"context"

	"conforma/internal/activity"
	"conforma/internal/audit/models"
	"conforma/internal/notify"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// seedFindingWithActions plans an audit, records a finding of the given type,
// and opens count corrective actions against it.
func (s *ServiceSuite) seedFindingWithActions(findingType models.FindingType, count int) (*models.Audit, *models.Finding, []*models.CorrectiveAction) {
	audit := s.createAudit()
	finding, err := s.service.CreateFinding(s.ctx(), CreateFindingParams{
		AuditID: audit.ID,
		Title:   "guard rail missing",
		Type:    findingType,
	})
	s.Require().NoError(err)

	assignee := s.seedUser("Pat L", "pat@corp.example")
	actions := make([]*models.CorrectiveAction, 0, count)
	for i := 0; i < count; i++ {
		action, err := s.service.CreateCorrectiveAction(s.ctx(), CreateActionParams{
			AuditID:      audit.ID,
			FindingID:    &finding.ID,
			Title:        "install guard rail",
			Type:         models.ActionTypeCorrective,
			AssignedToID: assignee.ID,
			DueDate:      s.now.AddDate(0, 1, 0),
		})
		s.Require().NoError(err)
		actions = append(actions, action)
	}
	return audit, finding, actions
}

func (s *ServiceSuite) verify(actionID id.ActionID) *models.CorrectiveAction {
	action, err := s.service.UpdateCorrectiveAction(s.ctx(), actionID, UpdateActionParams{
		Status: models.ActionStatusVerified,
	})
	s.Require().NoError(err)
	return action
}

func (s *ServiceSuite) findingStatus(findingID id.FindingID) models.FindingStatus {
	finding, err := s.findings.FindByID(context.Background(), findingID)
	s.Require().NoError(err)
	return finding.Status
}

func (s *ServiceSuite) TestCreateCorrectiveAction() {
	s.Run("opens an action and notifies the assignee", func() {
		audit, _, actions := s.seedFindingWithActions(models.FindingTypeNonConformity, 1)
		s.Equal(models.ActionStatusOpen, actions[0].Status)
		s.True(s.containsAction(audit.ID, activity.ActionActionCreated))

		msgs := s.sent.ByKind(notify.KindActionAssigned)
		s.Require().NotEmpty(msgs)
		s.Contains(msgs[0].Recipients, "pat@corp.example")
	})

	s.Run("rejects an unknown parent finding", func() {
		audit := s.createAudit()
		missing := id.NewFindingID()
		assignee := s.seedUser("Pat L", "pat@corp.example")
		_, err := s.service.CreateCorrectiveAction(s.ctx(), CreateActionParams{
			AuditID:      audit.ID,
			FindingID:    &missing,
			Title:        "x",
			Type:         models.ActionTypeCorrective,
			AssignedToID: assignee.ID,
			DueDate:      s.now,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestVerificationCascade() {
	s.Run("finding stays open while a sibling is unverified", func() {
		_, finding, actions := s.seedFindingWithActions(models.FindingTypeNonConformity, 3)

		s.verify(actions[0].ID)
		s.verify(actions[1].ID)
		s.Equal(models.FindingStatusOpen, s.findingStatus(finding.ID))
	})

	s.Run("last verification auto-closes the finding", func() {
		audit, finding, actions := s.seedFindingWithActions(models.FindingTypeNonConformity, 2)

		s.verify(actions[0].ID)
		s.verify(actions[1].ID)

		s.Equal(models.FindingStatusClosed, s.findingStatus(finding.ID))
		s.True(s.containsAction(audit.ID, activity.ActionFindingAutoClosed))

		stored, err := s.findings.FindByID(context.Background(), finding.ID)
		s.Require().NoError(err)
		s.Require().NotNil(stored.ClosedAt)
		s.Equal(s.now, *stored.ClosedAt)
	})

	s.Run("re-verifying never retriggers the cascade", func() {
		audit, finding, actions := s.seedFindingWithActions(models.FindingTypeNonConformity, 1)
		s.verify(actions[0].ID)
		s.Equal(models.FindingStatusClosed, s.findingStatus(finding.ID))

		// Reopen the finding manually; a repeated VERIFIED update must not
		// close it again because the first-verify edge already fired.
		open := models.FindingStatusOpen
		_, err := s.service.UpdateFinding(s.ctx(), finding.ID, UpdateFindingParams{Status: &open})
		s.Require().NoError(err)

		before := len(s.trailActions(audit.ID))
		s.verify(actions[0].ID)
		s.Equal(models.FindingStatusOpen, s.findingStatus(finding.ID))

		after := s.trailActions(audit.ID)
		s.Len(after, before+1, "only the plain update entry is recorded")
		s.Equal(activity.ActionActionUpdated, after[len(after)-1])
	})

	s.Run("an action without a finding verifies quietly", func() {
		audit := s.createAudit()
		assignee := s.seedUser("Pat L", "pat@corp.example")
		action, err := s.service.CreateCorrectiveAction(s.ctx(), CreateActionParams{
			AuditID:      audit.ID,
			Title:        "refresh training",
			Type:         models.ActionTypePreventive,
			AssignedToID: assignee.ID,
			DueDate:      s.now.AddDate(0, 1, 0),
		})
		s.Require().NoError(err)

		verified := s.verify(action.ID)
		s.Equal(models.ActionStatusVerified, verified.Status)
		s.False(s.containsAction(audit.ID, activity.ActionFindingAutoClosed))
	})

	s.Run("verification stamps verifier and time exactly once", func() {
		_, _, actions := s.seedFindingWithActions(models.FindingTypeNonConformity, 1)
		verified := s.verify(actions[0].ID)
		s.Require().NotNil(verified.VerifiedAt)
		s.Require().NotNil(verified.VerifiedByID)
		s.Equal(s.actor, *verified.VerifiedByID)

		again := s.verify(actions[0].ID)
		s.Equal(verified.VerifiedAt, again.VerifiedAt)
		s.Equal(verified.VerifiedByID, again.VerifiedByID)
	})

	s.Run("unknown status is rejected", func() {
		_, _, actions := s.seedFindingWithActions(models.FindingTypeNonConformity, 1)
		_, err := s.service.UpdateCorrectiveAction(s.ctx(), actions[0].ID, UpdateActionParams{
			Status: models.ActionStatus("ABANDONED"),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *ServiceSuite) TestMajorsClearedNotification() {
	s.Run("auditor is told when the last open major clears", func() {
		_, _, actions := s.seedFindingWithActions(models.FindingTypeMajorNonConformity, 1)

		s.sent.Reset()
		s.verify(actions[0].ID)

		msgs := s.sent.ByKind(notify.KindMajorsCleared)
		s.Require().Len(msgs, 1)
		s.Contains(msgs[0].Recipients, "jo@firm.example")
	})

	s.Run("no notice while another major stays open", func() {
		audit, _, actions := s.seedFindingWithActions(models.FindingTypeMajorNonConformity, 1)
		_, err := s.service.CreateFinding(s.ctx(), CreateFindingParams{
			AuditID: audit.ID,
			Title:   "second major",
			Type:    models.FindingTypeMajorNonConformity,
		})
		s.Require().NoError(err)

		s.sent.Reset()
		s.verify(actions[0].ID)
		s.Empty(s.sent.ByKind(notify.KindMajorsCleared))
	})

	s.Run("verifying against a minor finding still checks the gate", func() {
		_, _, actions := s.seedFindingWithActions(models.FindingTypeObservation, 1)
		s.sent.Reset()
		s.verify(actions[0].ID)
		// No majors ever existed, so the all-clear fires.
		s.Len(s.sent.ByKind(notify.KindMajorsCleared), 1)
	})
}
