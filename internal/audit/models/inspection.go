package models

import (
	"bytes"
	"time"

	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
)

// Compliance is the tri-state verdict of an inspection item. Modeling it as an
// explicit enum removes the truthy/falsy ambiguity of a nullable boolean.
type Compliance string

const (
	ComplianceNotInspected Compliance = "NOT_INSPECTED"
	ComplianceCompliant    Compliance = "COMPLIANT"
	ComplianceNonCompliant Compliance = "NON_COMPLIANT"
)

// Valid reports whether c is a known compliance verdict.
func (c Compliance) Valid() bool {
	switch c {
	case ComplianceNotInspected, ComplianceCompliant, ComplianceNonCompliant:
		return true
	}
	return false
}

// UnmarshalJSON tolerates the wire forms clients actually send: JSON booleans,
// their string spellings, null, and the canonical enum strings.
func (c *Compliance) UnmarshalJSON(data []byte) error {
	raw := bytes.Trim(data, `"`)
	switch {
	case bytes.EqualFold(raw, []byte("true")):
		*c = ComplianceCompliant
	case bytes.EqualFold(raw, []byte("false")):
		*c = ComplianceNonCompliant
	case bytes.EqualFold(raw, []byte("null")), len(raw) == 0:
		*c = ComplianceNotInspected
	default:
		verdict := Compliance(raw)
		if !verdict.Valid() {
			return dErrors.Newf(dErrors.CodeInvalidInput, "unrecognized compliance verdict %s", data)
		}
		*c = verdict
	}
	return nil
}

// InspectionItem is a checklist entry for one compliance area within an audit.
type InspectionItem struct {
	ID                id.InspectionItemID `json:"id"`
	AuditID           id.AuditID          `json:"audit_id"`
	AreaName          string              `json:"area_name"`
	ItemName          string              `json:"item_name"`
	Description       string              `json:"description,omitempty"`
	StandardReference string              `json:"standard_reference,omitempty"`
	Compliance        Compliance          `json:"compliance"`
	Comments          string              `json:"comments,omitempty"`
	Evidence          string              `json:"evidence,omitempty"`
	InspectedByID     *id.UserID          `json:"inspected_by_id,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// NewInspectionItem builds an uninspected checklist entry.
func NewInspectionItem(itemID id.InspectionItemID, auditID id.AuditID, areaName, itemName, description, standardRef string, now time.Time) (*InspectionItem, error) {
	if areaName == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "inspection item requires an area name")
	}
	if itemName == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "inspection item requires an item name")
	}
	return &InspectionItem{
		ID:                itemID,
		AuditID:           auditID,
		AreaName:          areaName,
		ItemName:          itemName,
		Description:       description,
		StandardReference: standardRef,
		Compliance:        ComplianceNotInspected,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// ApplyVerdict records an inspection pass. Re-inspection overwrites the
// previous verdict. Returns true when the verdict suggests opening a finding;
// the caller decides, a finding is never created automatically.
func (i *InspectionItem) ApplyVerdict(verdict Compliance, comments, evidence string, inspector id.UserID, now time.Time) (suggestFinding bool, err error) {
	if !verdict.Valid() {
		return false, dErrors.Newf(dErrors.CodeInvalidInput, "unrecognized compliance verdict %q", verdict)
	}
	i.Compliance = verdict
	if comments != "" {
		i.Comments = comments
	}
	if evidence != "" {
		i.Evidence = evidence
	}
	inspectedBy := inspector
	i.InspectedByID = &inspectedBy
	i.UpdatedAt = now
	return verdict == ComplianceNonCompliant, nil
}

// AreaSummary is the per-area compliance aggregate for reporting.
// Rate counts NOT_INSPECTED items as non-compliant; it is a coverage-weighted
// approximation, not a ternary average.
type AreaSummary struct {
	AreaName       string  `json:"area_name"`
	TotalItems     int     `json:"total_items"`
	CompliantItems int     `json:"compliant_items"`
	Rate           float64 `json:"compliance_rate"`
}

// SummarizeByArea groups items by area and computes per-area compliance rates.
// Areas are returned in first-seen order.
func SummarizeByArea(items []*InspectionItem) []AreaSummary {
	order := make([]string, 0)
	byArea := make(map[string]*AreaSummary)
	for _, item := range items {
		summary, ok := byArea[item.AreaName]
		if !ok {
			summary = &AreaSummary{AreaName: item.AreaName}
			byArea[item.AreaName] = summary
			order = append(order, item.AreaName)
		}
		summary.TotalItems++
		if item.Compliance == ComplianceCompliant {
			summary.CompliantItems++
		}
	}
	summaries := make([]AreaSummary, 0, len(order))
	for _, area := range order {
		summary := byArea[area]
		if summary.TotalItems > 0 {
			summary.Rate = float64(summary.CompliantItems) / float64(summary.TotalItems)
		}
		summaries = append(summaries, *summary)
	}
	return summaries
}
