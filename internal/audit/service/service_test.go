package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"conforma/internal/activity"
	activitymem "conforma/internal/activity/store/memory"
	"conforma/internal/audit/models"
	actionstore "conforma/internal/audit/store/action"
	auditstore "conforma/internal/audit/store/audit"
	auditorstore "conforma/internal/audit/store/auditor"
	findingstore "conforma/internal/audit/store/finding"
	inspectionstore "conforma/internal/audit/store/inspection"
	userstore "conforma/internal/audit/store/user"
	"conforma/internal/notify"
	id "conforma/pkg/domain"
	"conforma/pkg/requestcontext"
)

// ServiceSuite wires the service against in-memory stores with a pinned clock
// and a recording notification gateway.
type ServiceSuite struct {
	suite.Suite

	audits      *auditstore.InMemory
	findings    *findingstore.InMemory
	actions     *actionstore.InMemory
	auditors    *auditorstore.InMemory
	users       *userstore.InMemory
	inspections *inspectionstore.InMemory
	trail       *activitymem.Store
	sent        *notify.InMemory

	service *Service
	actor   id.UserID
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.audits = auditstore.NewInMemory()
	s.findings = findingstore.NewInMemory()
	s.actions = actionstore.NewInMemory()
	s.auditors = auditorstore.NewInMemory()
	s.users = userstore.NewInMemory()
	s.inspections = inspectionstore.NewInMemory()
	s.trail = activitymem.New()
	s.sent = notify.NewInMemory()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service = New(Stores{
		Audits:      s.audits,
		Findings:    s.findings,
		Actions:     s.actions,
		Auditors:    s.auditors,
		Users:       s.users,
		Inspections: s.inspections,
	},
		WithActivityRecorder(activity.NewRecorder(s.trail, logger)),
		WithNotifier(notify.NewDispatcher(s.sent, logger, nil)),
		WithLogger(logger),
	)

	s.actor = id.NewUserID()
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

// ctx returns an authenticated context with the pinned clock.
func (s *ServiceSuite) ctx() context.Context {
	ctx := requestcontext.WithActorID(context.Background(), s.actor)
	return requestcontext.WithTime(ctx, s.now)
}

// anonCtx returns a context without an actor.
func (s *ServiceSuite) anonCtx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

// seedUser registers an internal account and returns it.
func (s *ServiceSuite) seedUser(name, email string) *models.User {
	user := &models.User{ID: id.NewUserID(), Name: name, Email: email}
	s.users.Seed(user)
	return user
}

// createAudit plans an audit with a fresh external auditor.
func (s *ServiceSuite) createAudit() *models.Audit {
	audit, err := s.service.CreateAudit(s.ctx(), CreateAuditParams{
		Name:      "Annual safety audit",
		Type:      models.AuditTypeSafety,
		StartDate: s.now,
		Auditor: models.AuditorSelector{
			External: &models.ExternalAuditorDetails{Name: "Jo Reyes", Email: "jo@firm.example"},
		},
	})
	s.Require().NoError(err)
	return audit
}

// trailActions returns the recorded activity action names for an audit.
func (s *ServiceSuite) trailActions(auditID id.AuditID) []activity.Action {
	entries, err := s.trail.ListByAudit(context.Background(), auditID)
	s.Require().NoError(err)
	actions := make([]activity.Action, 0, len(entries))
	for _, entry := range entries {
		actions = append(actions, entry.Action)
	}
	return actions
}

func (s *ServiceSuite) containsAction(auditID id.AuditID, want activity.Action) bool {
	for _, action := range s.trailActions(auditID) {
		if action == want {
			return true
		}
	}
	return false
}
