// Package handler wires the audit lifecycle endpoints to the audit service.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"conforma/internal/activity"
	"conforma/internal/audit/models"
	"conforma/internal/audit/service"
	id "conforma/pkg/domain"
	dErrors "conforma/pkg/domain-errors"
	"conforma/pkg/platform/httputil"
	"conforma/pkg/requestcontext"
)

// Handler exposes the audit lifecycle over HTTP.
type Handler struct {
	service  *service.Service
	recorder *activity.Recorder
	logger   *slog.Logger
}

// New constructs an audit handler with its dependencies.
func New(svc *service.Service, recorder *activity.Recorder, logger *slog.Logger) *Handler {
	return &Handler{
		service:  svc,
		recorder: recorder,
		logger:   logger,
	}
}

// Register mounts the audit endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/audits", func(r chi.Router) {
		r.Post("/", h.HandleCreateAudit)
		r.Get("/", h.HandleListAudits)
		r.Route("/{auditID}", func(r chi.Router) {
			r.Get("/", h.HandleGetAudit)
			r.Patch("/status", h.HandleChangeStatus)
			r.Post("/start", h.HandleStart)
			r.Post("/complete", h.HandleComplete)
			r.Post("/close", h.HandleClose)
			r.Post("/findings", h.HandleCreateFinding)
			r.Get("/findings", h.HandleListFindings)
			r.Post("/actions", h.HandleCreateAction)
			r.Get("/actions", h.HandleListActions)
			r.Post("/checklist", h.HandleCreateChecklist)
			r.Get("/checklist", h.HandleListChecklist)
			r.Get("/checklist/summary", h.HandleChecklistSummary)
			r.Get("/activity", h.HandleListActivity)
		})
	})
	r.Patch("/findings/{findingID}", h.HandleUpdateFinding)
	r.Patch("/actions/{actionID}", h.HandleUpdateAction)
	r.Patch("/inspection-items/{itemID}", h.HandleUpdateInspectionItem)
}

// HandleCreateAudit handles POST /audits.
func (h *Handler) HandleCreateAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateAuditRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	audit, err := h.service.CreateAudit(ctx, req.Params())
	if err != nil {
		h.logger.ErrorContext(ctx, "audit creation failed",
			"request_id", requestID,
			"name", req.Name,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "audit created",
		"request_id", requestID,
		"audit_id", audit.ID,
		"audit_type", audit.Type,
	)
	httputil.WriteJSON(w, http.StatusCreated, audit)
}

// HandleListAudits handles GET /audits with an optional status filter.
func (h *Handler) HandleListAudits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := models.AuditStatus(r.URL.Query().Get("status"))

	audits, err := h.service.ListAudits(ctx, status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AuditListResponse{Audits: audits})
}

// HandleGetAudit handles GET /audits/{auditID}.
func (h *Handler) HandleGetAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	auditID, ok := h.auditID(w, r)
	if !ok {
		return
	}

	audit, err := h.service.GetAudit(ctx, auditID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, audit)
}

// HandleChangeStatus handles PATCH /audits/{auditID}/status.
func (h *Handler) HandleChangeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	auditID, ok := h.auditID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ChangeStatusRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	audit, err := h.service.ChangeStatus(ctx, auditID, models.AuditStatus(req.Status))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "audit status changed",
		"request_id", requestID,
		"audit_id", audit.ID,
		"status", audit.Status,
	)
	httputil.WriteJSON(w, http.StatusOK, audit)
}

// HandleStart handles POST /audits/{auditID}/start.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	auditID, ok := h.auditID(w, r)
	if !ok {
		return
	}

	audit, err := h.service.StartExecutionPhase(ctx, auditID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, audit)
}

// HandleComplete handles POST /audits/{auditID}/complete.
func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	auditID, ok := h.auditID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CompleteAuditRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	summary, err := h.service.CompleteExecutionPhase(ctx, auditID, req.Summary)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromSummary(summary))
}

// HandleClose handles POST /audits/{auditID}/close. A blocked closure returns
// 409 closure_blocked with the blocking finding list in the error details.
func (h *Handler) HandleClose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	auditID, ok := h.auditID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CloseAuditRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.CloseAudit(ctx, auditID, req.Summary)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeClosureBlocked) {
			h.logger.ErrorContext(ctx, "audit closure failed",
				"request_id", requestID,
				"audit_id", auditID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "audit closed",
		"request_id", requestID,
		"audit_id", auditID,
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleCreateFinding handles POST /audits/{auditID}/findings.
func (h *Handler) HandleCreateFinding(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	auditID, ok := h.auditID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateFindingRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	finding, err := h.service.CreateFinding(ctx, req.toParams(auditID))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, finding)
}

// HandleListFindings handles GET /audits/{auditID}/findings.
func (h *Handler) HandleListFindings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	auditID, ok := h.auditID(w, r)
	if !ok {
		return
	}

	findings, err := h.service.ListFindings(ctx, auditID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FindingListResponse{Findings: findings})
}

// HandleUpdateFinding handles PATCH /findings/{findingID}.
func (h *Handler) HandleUpdateFinding(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	findingID, err := id.ParseFindingID(chi.URLParam(r, "findingID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateFindingRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	finding, err := h.service.UpdateFinding(ctx, findingID, req.Params())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, finding)
}

// HandleCreateAction handles POST /audits/{auditID}/actions.
func (h *Handler) HandleCreateAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	auditID, ok := h.auditID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateActionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	action, err := h.service.CreateCorrectiveAction(ctx, req.toParams(auditID))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, action)
}

// HandleListActions handles GET /audits/{auditID}/actions.
func (h *Handler) HandleListActions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	auditID, ok := h.auditID(w, r)
	if !ok {
		return
	}

	actions, err := h.service.ListCorrectiveActions(ctx, auditID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ActionListResponse{Actions: actions})
}

// HandleUpdateAction handles PATCH /actions/{actionID}. A first-time VERIFIED
// status runs the verification cascade against the parent finding.
func (h *Handler) HandleUpdateAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actionID, err := id.ParseActionID(chi.URLParam(r, "actionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateActionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	action, err := h.service.UpdateCorrectiveAction(ctx, actionID, req.toParams())
	if err != nil {
		h.logger.ErrorContext(ctx, "corrective action update failed",
			"request_id", requestID,
			"action_id", actionID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, action)
}

// HandleCreateChecklist handles POST /audits/{auditID}/checklist.
func (h *Handler) HandleCreateChecklist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	auditID, ok := h.auditID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateChecklistRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	items, err := h.service.CreateInspectionChecklist(ctx, auditID, req.AreaName, req.toDefs())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, ChecklistResponse{Items: items})
}

// HandleListChecklist handles GET /audits/{auditID}/checklist.
func (h *Handler) HandleListChecklist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	auditID, ok := h.auditID(w, r)
	if !ok {
		return
	}

	items, err := h.service.ListInspectionItems(ctx, auditID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ChecklistResponse{Items: items})
}

// HandleChecklistSummary handles GET /audits/{auditID}/checklist/summary.
func (h *Handler) HandleChecklistSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	auditID, ok := h.auditID(w, r)
	if !ok {
		return
	}

	areas, err := h.service.ChecklistSummary(ctx, auditID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ChecklistSummaryResponse{Areas: areas})
}

// HandleUpdateInspectionItem handles PATCH /inspection-items/{itemID}.
func (h *Handler) HandleUpdateInspectionItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	itemID, err := id.ParseInspectionItemID(chi.URLParam(r, "itemID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateInspectionItemRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.UpdateInspectionItem(ctx, itemID, req.Compliance, req.Comments, req.Evidence)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleListActivity handles GET /audits/{auditID}/activity.
func (h *Handler) HandleListActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	auditID, ok := h.auditID(w, r)
	if !ok {
		return
	}
	if _, err := h.service.GetAudit(ctx, auditID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	entries, err := h.recorder.List(ctx, auditID)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list activity"))
		return
	}
	if entries == nil {
		entries = []activity.Entry{}
	}
	httputil.WriteJSON(w, http.StatusOK, ActivityListResponse{Entries: entries})
}

func (h *Handler) auditID(w http.ResponseWriter, r *http.Request) (id.AuditID, bool) {
	auditID, err := id.ParseAuditID(chi.URLParam(r, "auditID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.AuditID{}, false
	}
	return auditID, true
}
