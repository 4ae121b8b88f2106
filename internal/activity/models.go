// Package activity records the append-only trail of lifecycle events. Every
// mutation of an audit, finding, or corrective action leaves an entry here;
// recording is best-effort and never blocks the mutation it describes.
package activity

import (
	"time"

	id "conforma/pkg/domain"
)

// Action names what happened. Keep these stable; the UI and reports key off them.
type Action string

const (
	ActionAuditCreated        Action = "audit_created"
	ActionAuditStatusChanged  Action = "audit_status_changed"
	ActionAuditStatusForced   Action = "audit_status_forced"
	ActionAuditClosed         Action = "audit_closed"
	ActionAuditAutoAdvanced   Action = "audit_auto_advanced"
	ActionFindingCreated      Action = "finding_created"
	ActionFindingUpdated      Action = "finding_updated"
	ActionFindingAutoClosed   Action = "finding_auto_closed"
	ActionActionCreated       Action = "corrective_action_created"
	ActionActionUpdated       Action = "corrective_action_updated"
	ActionChecklistCreated    Action = "checklist_created"
	ActionItemInspected       Action = "inspection_item_inspected"
)

// Entry is one row of the activity trail.
type Entry struct {
	Timestamp time.Time  `json:"timestamp"`
	AuditID   id.AuditID `json:"audit_id"`
	ActorID   id.UserID  `json:"actor_id"`
	Action    Action     `json:"action"`
	Detail    string     `json:"detail,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
}
