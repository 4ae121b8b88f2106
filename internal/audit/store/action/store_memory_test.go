package action

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"conforma/internal/audit/models"
	id "conforma/pkg/domain"
	"conforma/pkg/platform/sentinel"
)

type InMemorySuite struct {
	suite.Suite
	store     *InMemory
	ctx       context.Context
	auditID   id.AuditID
	findingID id.FindingID
	now       time.Time
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.auditID = id.NewAuditID()
	s.findingID = id.NewFindingID()
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func (s *InMemorySuite) seed(findingID *id.FindingID, status models.ActionStatus) *models.CorrectiveAction {
	action, err := models.NewCorrectiveAction(id.NewActionID(), s.auditID, findingID,
		"seeded", "", models.ActionTypeCorrective, id.NewUserID(), s.now.AddDate(0, 1, 0), s.now)
	s.Require().NoError(err)
	action.Status = status
	s.Require().NoError(s.store.Create(s.ctx, action))
	return action
}

func (s *InMemorySuite) TestCountUnverifiedByFinding() {
	s.seed(&s.findingID, models.ActionStatusOpen)
	s.seed(&s.findingID, models.ActionStatusCompleted)
	s.seed(&s.findingID, models.ActionStatusVerified)
	s.seed(nil, models.ActionStatusOpen)
	other := id.NewFindingID()
	s.seed(&other, models.ActionStatusOpen)

	count, err := s.store.CountUnverifiedByFinding(s.ctx, s.findingID)
	s.Require().NoError(err)
	s.Equal(2, count, "only unverified siblings of the finding count")
}

func (s *InMemorySuite) TestCountByStatus() {
	s.seed(&s.findingID, models.ActionStatusOpen)
	s.seed(&s.findingID, models.ActionStatusOpen)
	s.seed(nil, models.ActionStatusVerified)

	counts, err := s.store.CountByStatus(s.ctx, s.auditID)
	s.Require().NoError(err)
	s.Equal(2, counts[models.ActionStatusOpen])
	s.Equal(1, counts[models.ActionStatusVerified])
	s.Zero(counts[models.ActionStatusInProgress])
}

func (s *InMemorySuite) TestListByFinding() {
	first := s.seed(&s.findingID, models.ActionStatusOpen)
	s.seed(nil, models.ActionStatusOpen)

	actions, err := s.store.ListByFinding(s.ctx, s.findingID)
	s.Require().NoError(err)
	s.Require().Len(actions, 1)
	s.Equal(first.ID, actions[0].ID)
}

func (s *InMemorySuite) TestExecuteStampsVerification() {
	action := s.seed(&s.findingID, models.ActionStatusOpen)
	verifier := id.NewUserID()

	updated, err := s.store.Execute(s.ctx, action.ID, nil, func(a *models.CorrectiveAction) {
		_, _ = a.ApplyStatus(models.ActionStatusVerified, verifier, s.now)
	})
	s.Require().NoError(err)
	s.Equal(models.ActionStatusVerified, updated.Status)
	s.Require().NotNil(updated.VerifiedAt)
	s.Equal(verifier, *updated.VerifiedByID)

	_, err = s.store.Execute(s.ctx, id.NewActionID(), nil, func(a *models.CorrectiveAction) {})
	s.ErrorIs(err, sentinel.ErrNotFound)
}
