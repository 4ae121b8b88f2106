package service

import (
	"context"
	"errors"
	"fmt"

	"conforma/internal/activity"
	"conforma/internal/audit/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/sentinel"
	"conforma/pkg/requestcontext"
)

// ChecklistItemDef is one item definition in a bulk checklist creation.
type ChecklistItemDef struct {
	ItemName          string
	Description       string
	StandardReference string
}

// CreateInspectionChecklist creates one uninspected item per definition under
// the given area.
func (s *Service) CreateInspectionChecklist(ctx context.Context, auditID id.AuditID, areaName string, defs []ChecklistItemDef) ([]*models.InspectionItem, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	if areaName == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "area name is required")
	}
	if len(defs) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "at least one checklist item is required")
	}
	if _, err := s.stores.Audits.FindByID(ctx, auditID); err != nil {
		return nil, auditNotFound(auditID, err)
	}

	now := requestcontext.Now(ctx)
	items := make([]*models.InspectionItem, 0, len(defs))
	for _, def := range defs {
		item, err := models.NewInspectionItem(id.NewInspectionItemID(), auditID,
			areaName, def.ItemName, def.Description, def.StandardReference, now)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := s.stores.Inspections.CreateBatch(ctx, items); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create checklist")
	}

	s.record(ctx, activity.Entry{
		AuditID: auditID,
		Action:  activity.ActionChecklistCreated,
		Detail:  fmt.Sprintf("checklist for area %q created with %d items", areaName, len(items)),
	})
	return items, nil
}

// InspectionResult pairs the updated item with the suggest-finding hint. The
// engine never opens a finding on its own; the hint leaves that call to the
// caller.
type InspectionResult struct {
	Item           *models.InspectionItem `json:"item"`
	SuggestFinding bool                   `json:"suggest_finding"`
}

// UpdateInspectionItem records a verdict for one checklist item, stamping the
// inspector and update time.
func (s *Service) UpdateInspectionItem(ctx context.Context, itemID id.InspectionItemID, verdict models.Compliance, comments, evidence string) (*InspectionResult, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if !verdict.Valid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unrecognized compliance verdict %q", verdict)
	}
	now := requestcontext.Now(ctx)

	var suggestFinding bool
	item, err := s.stores.Inspections.Execute(ctx, itemID, nil, func(i *models.InspectionItem) {
		suggestFinding, _ = i.ApplyVerdict(verdict, comments, evidence, actor, now)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "inspection item %s not found", itemID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update inspection item")
	}

	s.record(ctx, activity.Entry{
		AuditID: item.AuditID,
		Action:  activity.ActionItemInspected,
		Detail:  fmt.Sprintf("item %q marked %s", item.ItemName, item.Compliance),
	})
	return &InspectionResult{Item: item, SuggestFinding: suggestFinding}, nil
}

// ChecklistSummary aggregates an audit's checklist by area.
func (s *Service) ChecklistSummary(ctx context.Context, auditID id.AuditID) ([]models.AreaSummary, error) {
	if _, err := s.stores.Audits.FindByID(ctx, auditID); err != nil {
		return nil, auditNotFound(auditID, err)
	}
	items, err := s.stores.Inspections.ListByAudit(ctx, auditID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list checklist items")
	}
	return models.SummarizeByArea(items), nil
}

// ListInspectionItems returns an audit's checklist, grouped by area order.
func (s *Service) ListInspectionItems(ctx context.Context, auditID id.AuditID) ([]*models.InspectionItem, error) {
	if _, err := s.stores.Audits.FindByID(ctx, auditID); err != nil {
		return nil, auditNotFound(auditID, err)
	}
	return s.stores.Inspections.ListByAudit(ctx, auditID)
}
