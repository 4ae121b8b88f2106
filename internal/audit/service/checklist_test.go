package service

import (
	"context"

	"conforma/internal/activity"
	"conforma/internal/audit/models"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

func (s *ServiceSuite) seedChecklist(auditID id.AuditID, area string, names ...string) []*models.InspectionItem {
	defs := make([]ChecklistItemDef, 0, len(names))
	for _, name := range names {
		defs = append(defs, ChecklistItemDef{ItemName: name})
	}
	items, err := s.service.CreateInspectionChecklist(s.ctx(), auditID, area, defs)
	s.Require().NoError(err)
	return items
}

func (s *ServiceSuite) TestCreateInspectionChecklist() {
	s.Run("creates every item uninspected", func() {
		audit := s.createAudit()
		items := s.seedChecklist(audit.ID, "Warehouse", "exits clear", "extinguishers tagged")

		s.Len(items, 2)
		for _, item := range items {
			s.Equal(models.ComplianceNotInspected, item.Compliance)
			s.Equal("Warehouse", item.AreaName)
			s.Nil(item.InspectedByID)
		}
		s.True(s.containsAction(audit.ID, activity.ActionChecklistCreated))
	})

	s.Run("rejects an empty item list", func() {
		audit := s.createAudit()
		_, err := s.service.CreateInspectionChecklist(s.ctx(), audit.ID, "Warehouse", nil)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("rejects a missing area name", func() {
		audit := s.createAudit()
		_, err := s.service.CreateInspectionChecklist(s.ctx(), audit.ID, "",
			[]ChecklistItemDef{{ItemName: "x"}})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("rejects an unknown audit", func() {
		_, err := s.service.CreateInspectionChecklist(s.ctx(), id.NewAuditID(), "Warehouse",
			[]ChecklistItemDef{{ItemName: "x"}})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestUpdateInspectionItem() {
	s.Run("non-compliant verdict suggests a finding", func() {
		audit := s.createAudit()
		items := s.seedChecklist(audit.ID, "Warehouse", "exits clear")

		result, err := s.service.UpdateInspectionItem(s.ctx(), items[0].ID,
			models.ComplianceNonCompliant, "exit blocked by pallets", "photo-114")
		s.Require().NoError(err)
		s.True(result.SuggestFinding)
		s.Equal(models.ComplianceNonCompliant, result.Item.Compliance)
		s.Equal("exit blocked by pallets", result.Item.Comments)
		s.Require().NotNil(result.Item.InspectedByID)
		s.Equal(s.actor, *result.Item.InspectedByID)
		s.True(s.containsAction(audit.ID, activity.ActionItemInspected))
	})

	s.Run("compliant verdict does not", func() {
		audit := s.createAudit()
		items := s.seedChecklist(audit.ID, "Warehouse", "exits clear")

		result, err := s.service.UpdateInspectionItem(s.ctx(), items[0].ID,
			models.ComplianceCompliant, "", "")
		s.Require().NoError(err)
		s.False(result.SuggestFinding)
	})

	s.Run("re-inspection overwrites the verdict but keeps earlier comments", func() {
		audit := s.createAudit()
		items := s.seedChecklist(audit.ID, "Warehouse", "exits clear")

		_, err := s.service.UpdateInspectionItem(s.ctx(), items[0].ID,
			models.ComplianceNonCompliant, "first pass notes", "")
		s.Require().NoError(err)

		result, err := s.service.UpdateInspectionItem(s.ctx(), items[0].ID,
			models.ComplianceCompliant, "", "")
		s.Require().NoError(err)
		s.Equal(models.ComplianceCompliant, result.Item.Compliance)
		s.Equal("first pass notes", result.Item.Comments)
	})

	s.Run("rejects an unknown verdict", func() {
		audit := s.createAudit()
		items := s.seedChecklist(audit.ID, "Warehouse", "exits clear")

		_, err := s.service.UpdateInspectionItem(s.ctx(), items[0].ID,
			models.Compliance("MAYBE"), "", "")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("unknown item is not found", func() {
		_, err := s.service.UpdateInspectionItem(s.ctx(), id.NewInspectionItemID(),
			models.ComplianceCompliant, "", "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestChecklistSummary() {
	audit := s.createAudit()
	warehouse := s.seedChecklist(audit.ID, "Warehouse", "exits clear", "extinguishers tagged")
	s.seedChecklist(audit.ID, "Office", "cables tidy")

	_, err := s.service.UpdateInspectionItem(s.ctx(), warehouse[0].ID,
		models.ComplianceCompliant, "", "")
	s.Require().NoError(err)

	summaries, err := s.service.ChecklistSummary(s.ctx(), audit.ID)
	s.Require().NoError(err)
	s.Require().Len(summaries, 2)

	// Items come back ordered by area name, so Office leads the summary.
	s.Equal("Office", summaries[0].AreaName)
	s.Equal(0, summaries[0].CompliantItems)
	s.InDelta(0, summaries[0].Rate, 0.0001)

	s.Equal("Warehouse", summaries[1].AreaName)
	s.Equal(2, summaries[1].TotalItems)
	s.Equal(1, summaries[1].CompliantItems)
	// The uninspected sibling counts against the rate.
	s.InDelta(0.5, summaries[1].Rate, 0.0001)

	items, err := s.service.ListInspectionItems(context.Background(), audit.ID)
	s.Require().NoError(err)
	s.Len(items, 3)
}
