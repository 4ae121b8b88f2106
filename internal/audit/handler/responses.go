package handler

import (
	"conforma/internal/activity"
	"conforma/internal/audit/models"
	"conforma/internal/audit/service"
)

// Domain models carry their own JSON tags, so single-object responses return
// them directly. List and aggregate endpoints wrap them in envelopes here.

// AuditListResponse is the body for GET /audits.
type AuditListResponse struct {
	Audits []*models.Audit `json:"audits"`
}

// FindingListResponse is the body for GET /audits/{auditID}/findings.
type FindingListResponse struct {
	Findings []*models.Finding `json:"findings"`
}

// ActionListResponse is the body for GET /audits/{auditID}/actions.
type ActionListResponse struct {
	Actions []*models.CorrectiveAction `json:"actions"`
}

// ChecklistResponse is the body for checklist creation and listing.
type ChecklistResponse struct {
	Items []*models.InspectionItem `json:"items"`
}

// ChecklistSummaryResponse is the body for GET /audits/{auditID}/checklist/summary.
type ChecklistSummaryResponse struct {
	Areas []models.AreaSummary `json:"areas"`
}

// ActivityListResponse is the body for GET /audits/{auditID}/activity.
type ActivityListResponse struct {
	Entries []activity.Entry `json:"entries"`
}

// CompletionResponse is the body for POST /audits/{auditID}/complete.
type CompletionResponse struct {
	Audit         *models.Audit              `json:"audit"`
	FindingCounts map[models.FindingType]int `json:"finding_counts"`
}

func fromSummary(summary *service.ExecutionSummary) *CompletionResponse {
	return &CompletionResponse{
		Audit:         summary.Audit,
		FindingCounts: summary.FindingCounts,
	}
}
