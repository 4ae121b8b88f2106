package handler

import (
	"strings"
	"time"

	"conforma/internal/audit/models"
	"conforma/internal/audit/service"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// AuditorSelectorRequest is the tagged auditor reference accepted on audit
// creation. Exactly one of the three forms must be set.
type AuditorSelectorRequest struct {
	AuditorID string                  `json:"auditor_id,omitempty"`
	UserID    string                  `json:"user_id,omitempty"`
	External  *ExternalAuditorRequest `json:"external,omitempty"`
}

// ExternalAuditorRequest describes an outside auditor to register.
type ExternalAuditorRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	FirmName string `json:"firm_name,omitempty"`
}

func (r *AuditorSelectorRequest) toSelector() (models.AuditorSelector, error) {
	var selector models.AuditorSelector
	if r.AuditorID != "" {
		auditorID, err := id.ParseAuditorID(r.AuditorID)
		if err != nil {
			return selector, err
		}
		selector.AuditorID = &auditorID
	}
	if r.UserID != "" {
		userID, err := id.ParseUserID(r.UserID)
		if err != nil {
			return selector, err
		}
		selector.UserID = &userID
	}
	if r.External != nil {
		selector.External = &models.ExternalAuditorDetails{
			Name:     strings.TrimSpace(r.External.Name),
			Email:    strings.TrimSpace(r.External.Email),
			FirmName: strings.TrimSpace(r.External.FirmName),
		}
	}
	return selector, nil
}

// CreateAuditRequest is the body for POST /audits.
type CreateAuditRequest struct {
	Name         string                  `json:"name"`
	AuditType    string                  `json:"audit_type"`
	StartDate    time.Time               `json:"start_date"`
	EndDate      *time.Time              `json:"end_date,omitempty"`
	Auditor      *AuditorSelectorRequest `json:"auditor"`
	AuditeeID    string                  `json:"auditee_id,omitempty"`
	DepartmentID string                  `json:"department_id,omitempty"`
	Objectives   string                  `json:"objectives,omitempty"`
	Scope        string                  `json:"scope,omitempty"`

	params service.CreateAuditParams
}

func (r *CreateAuditRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeBadRequest, "name is required")
	}
	if r.StartDate.IsZero() {
		return dErrors.New(dErrors.CodeBadRequest, "start_date is required")
	}
	if r.Auditor == nil {
		return dErrors.New(dErrors.CodeBadRequest, "auditor is required")
	}
	selector, err := r.Auditor.toSelector()
	if err != nil {
		return err
	}

	r.params = service.CreateAuditParams{
		Name:       r.Name,
		Type:       models.AuditType(r.AuditType),
		StartDate:  r.StartDate,
		EndDate:    r.EndDate,
		Auditor:    selector,
		Objectives: r.Objectives,
		Scope:      r.Scope,
	}
	if r.AuditeeID != "" {
		auditeeID, err := id.ParseUserID(r.AuditeeID)
		if err != nil {
			return err
		}
		r.params.AuditeeID = &auditeeID
	}
	if r.DepartmentID != "" {
		departmentID, err := id.ParseDepartmentID(r.DepartmentID)
		if err != nil {
			return err
		}
		r.params.DepartmentID = &departmentID
	}
	return nil
}

// Params returns the validated service parameters.
func (r *CreateAuditRequest) Params() service.CreateAuditParams { return r.params }

// ChangeStatusRequest is the body for PATCH /audits/{auditID}/status.
type ChangeStatusRequest struct {
	Status string `json:"status"`
}

func (r *ChangeStatusRequest) Validate() error {
	if r == nil || strings.TrimSpace(r.Status) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "status is required")
	}
	r.Status = strings.TrimSpace(r.Status)
	return nil
}

// CompleteAuditRequest is the body for POST /audits/{auditID}/complete.
type CompleteAuditRequest struct {
	Summary string `json:"summary,omitempty"`
}

func (r *CompleteAuditRequest) Validate() error { return nil }

// CloseAuditRequest is the body for POST /audits/{auditID}/close.
type CloseAuditRequest struct {
	Summary string `json:"summary,omitempty"`
}

func (r *CloseAuditRequest) Validate() error { return nil }

// CreateFindingRequest is the body for POST /audits/{auditID}/findings.
type CreateFindingRequest struct {
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	FindingType  string     `json:"finding_type"`
	Priority     string     `json:"priority,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	AssignedToID string     `json:"assigned_to_id,omitempty"`
	Evidence     string     `json:"evidence,omitempty"`

	assignedTo *id.UserID
}

func (r *CreateFindingRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return dErrors.New(dErrors.CodeBadRequest, "title is required")
	}
	if !models.FindingType(r.FindingType).Valid() {
		return dErrors.Newf(dErrors.CodeBadRequest, "unknown finding type %q", r.FindingType)
	}
	if r.AssignedToID != "" {
		userID, err := id.ParseUserID(r.AssignedToID)
		if err != nil {
			return err
		}
		r.assignedTo = &userID
	}
	return nil
}

func (r *CreateFindingRequest) toParams(auditID id.AuditID) service.CreateFindingParams {
	return service.CreateFindingParams{
		AuditID:      auditID,
		Title:        r.Title,
		Description:  r.Description,
		Type:         models.FindingType(r.FindingType),
		Priority:     models.Priority(r.Priority),
		DueDate:      r.DueDate,
		AssignedToID: r.assignedTo,
		Evidence:     r.Evidence,
	}
}

// UpdateFindingRequest is the body for PATCH /findings/{findingID}.
// Absent fields stay unchanged.
type UpdateFindingRequest struct {
	Title        *string    `json:"title,omitempty"`
	Description  *string    `json:"description,omitempty"`
	Status       *string    `json:"status,omitempty"`
	Priority     *string    `json:"priority,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	AssignedToID *string    `json:"assigned_to_id,omitempty"`
	Evidence     *string    `json:"evidence,omitempty"`

	params service.UpdateFindingParams
}

func (r *UpdateFindingRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.params = service.UpdateFindingParams{
		Title:       r.Title,
		Description: r.Description,
		DueDate:     r.DueDate,
		Evidence:    r.Evidence,
	}
	if r.Status != nil {
		status := models.FindingStatus(*r.Status)
		r.params.Status = &status
	}
	if r.Priority != nil {
		priority := models.Priority(*r.Priority)
		r.params.Priority = &priority
	}
	if r.AssignedToID != nil {
		userID, err := id.ParseUserID(*r.AssignedToID)
		if err != nil {
			return err
		}
		r.params.AssignedToID = &userID
	}
	return nil
}

func (r *UpdateFindingRequest) Params() service.UpdateFindingParams { return r.params }

// CreateActionRequest is the body for POST /audits/{auditID}/actions.
type CreateActionRequest struct {
	FindingID    string    `json:"finding_id,omitempty"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	ActionType   string    `json:"action_type"`
	AssignedToID string    `json:"assigned_to_id"`
	DueDate      time.Time `json:"due_date"`

	findingID  *id.FindingID
	assignedTo id.UserID
}

func (r *CreateActionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return dErrors.New(dErrors.CodeBadRequest, "title is required")
	}
	if !models.ActionType(r.ActionType).Valid() {
		return dErrors.Newf(dErrors.CodeBadRequest, "unknown action type %q", r.ActionType)
	}
	if r.AssignedToID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "assigned_to_id is required")
	}
	assignedTo, err := id.ParseUserID(r.AssignedToID)
	if err != nil {
		return err
	}
	r.assignedTo = assignedTo
	if r.DueDate.IsZero() {
		return dErrors.New(dErrors.CodeBadRequest, "due_date is required")
	}
	if r.FindingID != "" {
		findingID, err := id.ParseFindingID(r.FindingID)
		if err != nil {
			return err
		}
		r.findingID = &findingID
	}
	return nil
}

func (r *CreateActionRequest) toParams(auditID id.AuditID) service.CreateActionParams {
	return service.CreateActionParams{
		AuditID:      auditID,
		FindingID:    r.findingID,
		Title:        r.Title,
		Description:  r.Description,
		Type:         models.ActionType(r.ActionType),
		AssignedToID: r.assignedTo,
		DueDate:      r.DueDate,
	}
}

// UpdateActionRequest is the body for PATCH /actions/{actionID}.
type UpdateActionRequest struct {
	Status      string  `json:"status"`
	Description *string `json:"description,omitempty"`
	Evidence    *string `json:"evidence,omitempty"`
}

func (r *UpdateActionRequest) Validate() error {
	if r == nil || strings.TrimSpace(r.Status) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "status is required")
	}
	r.Status = strings.TrimSpace(r.Status)
	if !models.ActionStatus(r.Status).Valid() {
		return dErrors.Newf(dErrors.CodeBadRequest, "unknown action status %q", r.Status)
	}
	return nil
}

func (r *UpdateActionRequest) toParams() service.UpdateActionParams {
	return service.UpdateActionParams{
		Status:      models.ActionStatus(r.Status),
		Description: r.Description,
		Evidence:    r.Evidence,
	}
}

// CreateChecklistRequest is the body for POST /audits/{auditID}/checklist.
type CreateChecklistRequest struct {
	AreaName string                 `json:"area_name"`
	Items    []ChecklistItemRequest `json:"items"`
}

// ChecklistItemRequest is one item definition in a checklist creation.
type ChecklistItemRequest struct {
	ItemName          string `json:"item_name"`
	Description       string `json:"description,omitempty"`
	StandardReference string `json:"standard_reference,omitempty"`
}

func (r *CreateChecklistRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.AreaName = strings.TrimSpace(r.AreaName)
	if r.AreaName == "" {
		return dErrors.New(dErrors.CodeBadRequest, "area_name is required")
	}
	if len(r.Items) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "items must not be empty")
	}
	for i, item := range r.Items {
		if strings.TrimSpace(item.ItemName) == "" {
			return dErrors.Newf(dErrors.CodeBadRequest, "items[%d].item_name is required", i)
		}
	}
	return nil
}

func (r *CreateChecklistRequest) toDefs() []service.ChecklistItemDef {
	defs := make([]service.ChecklistItemDef, 0, len(r.Items))
	for _, item := range r.Items {
		defs = append(defs, service.ChecklistItemDef{
			ItemName:          strings.TrimSpace(item.ItemName),
			Description:       item.Description,
			StandardReference: item.StandardReference,
		})
	}
	return defs
}

// UpdateInspectionItemRequest is the body for PATCH /inspection-items/{itemID}.
// Compliance accepts the enum strings plus legacy true/false/null wire forms.
type UpdateInspectionItemRequest struct {
	Compliance models.Compliance `json:"compliance"`
	Comments   string            `json:"comments,omitempty"`
	Evidence   string            `json:"evidence,omitempty"`
}

func (r *UpdateInspectionItemRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Compliance == "" {
		r.Compliance = models.ComplianceNotInspected
	}
	if !r.Compliance.Valid() {
		return dErrors.Newf(dErrors.CodeBadRequest, "unknown compliance verdict %q", r.Compliance)
	}
	return nil
}
