package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"conforma/internal/activity"
	activitymem "conforma/internal/activity/store/memory"
	"conforma/internal/audit/service"
	actionstore "conforma/internal/audit/store/action"
	auditstore "conforma/internal/audit/store/audit"
	auditorstore "conforma/internal/audit/store/auditor"
	findingstore "conforma/internal/audit/store/finding"
	inspectionstore "conforma/internal/audit/store/inspection"
	userstore "conforma/internal/audit/store/user"
	"conforma/internal/auth"
	"conforma/internal/platform/middleware"
	id "conforma/pkg/domain"
)

const testSigningKey = "handler-test-signing-key"

func newAuditRouter(t *testing.T) (http.Handler, string) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := activity.NewRecorder(activitymem.New(), logger)
	svc := service.New(service.Stores{
		Audits:      auditstore.NewInMemory(),
		Findings:    findingstore.NewInMemory(),
		Actions:     actionstore.NewInMemory(),
		Auditors:    auditorstore.NewInMemory(),
		Users:       userstore.NewInMemory(),
		Inspections: inspectionstore.NewInMemory(),
	},
		service.WithActivityRecorder(recorder),
		service.WithLogger(logger),
	)

	jwtSvc := auth.NewJWTService(testSigningKey, "conforma")
	token, err := jwtSvc.GenerateAccessToken(id.NewUserID(), "Lead Auditor", time.Hour)
	if err != nil {
		t.Fatalf("failed to mint test token: %v", err)
	}

	h := New(svc, recorder, logger)
	r := chi.NewRouter()
	r.Use(middleware.RequestMetadata)
	r.Use(middleware.RequireAuth(jwtSvc, logger))
	h.Register(r)
	return r, token
}

func doJSON(t *testing.T, router http.Handler, token, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return out
}

func createAuditPayload() map[string]any {
	return map[string]any{
		"name":       "Q3 compliance audit",
		"audit_type": "COMPLIANCE",
		"start_date": "2025-06-01T09:00:00Z",
		"auditor": map[string]any{
			"external": map[string]any{"name": "Jo Reyes", "email": "jo@firm.example"},
		},
	}
}

func createAudit(t *testing.T, router http.Handler, token string) string {
	t.Helper()
	rec := doJSON(t, router, token, http.MethodPost, "/audits", createAuditPayload())
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating audit, got %d: %s", rec.Code, rec.Body.String())
	}
	audit := decodeBody[struct {
		ID string `json:"id"`
	}](t, rec)
	if audit.ID == "" {
		t.Fatalf("expected audit id in response")
	}
	return audit.ID
}

func TestAuthTokenRequired(t *testing.T) {
	router, _ := newAuditRouter(t)
	rec := doJSON(t, router, "", http.MethodGet, "/audits", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}

	rec = doJSON(t, router, "not-a-jwt", http.MethodGet, "/audits", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a garbage token, got %d", rec.Code)
	}
}

func TestCreateAndFetchAudit(t *testing.T) {
	router, token := newAuditRouter(t)
	auditID := createAudit(t, router, token)

	rec := doJSON(t, router, token, http.MethodGet, "/audits/"+auditID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 fetching audit, got %d", rec.Code)
	}
	audit := decodeBody[struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}](t, rec)
	if audit.ID != auditID || audit.Status != "PLANNED" {
		t.Fatalf("unexpected audit in response: %+v", audit)
	}

	listRec := doJSON(t, router, token, http.MethodGet, "/audits?status=PLANNED", nil)
	if listRec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing audits, got %d", listRec.Code)
	}
	list := decodeBody[struct {
		Audits []json.RawMessage `json:"audits"`
	}](t, listRec)
	if len(list.Audits) != 1 {
		t.Fatalf("expected one planned audit, got %d", len(list.Audits))
	}
}

func TestCreateAuditValidation(t *testing.T) {
	router, token := newAuditRouter(t)

	payload := createAuditPayload()
	delete(payload, "auditor")
	rec := doJSON(t, router, token, http.MethodPost, "/audits", payload)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without an auditor selector, got %d", rec.Code)
	}
	errBody := decodeBody[struct {
		Error string `json:"error"`
	}](t, rec)
	if errBody.Error != "bad_request" {
		t.Fatalf("expected bad_request code, got %q", errBody.Error)
	}

	payload = createAuditPayload()
	payload["audit_type"] = "VIBES"
	rec = doJSON(t, router, token, http.MethodPost, "/audits", payload)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown audit type, got %d", rec.Code)
	}
}

func TestStatusEndpoints(t *testing.T) {
	router, token := newAuditRouter(t)
	auditID := createAudit(t, router, token)

	rec := doJSON(t, router, token, http.MethodPost, "/audits/"+auditID+"/start", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 starting audit, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, token, http.MethodPatch, "/audits/"+auditID+"/status",
		map[string]string{"status": "DELAYED"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 delaying audit, got %d: %s", rec.Code, rec.Body.String())
	}
	audit := decodeBody[struct {
		Status string `json:"status"`
	}](t, rec)
	if audit.Status != "DELAYED" {
		t.Fatalf("expected DELAYED, got %q", audit.Status)
	}

	rec = doJSON(t, router, token, http.MethodPatch, "/audits/"+auditID+"/status",
		map[string]string{"status": "ARCHIVED"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown status, got %d", rec.Code)
	}
}

func TestClosureBlockedResponse(t *testing.T) {
	router, token := newAuditRouter(t)
	auditID := createAudit(t, router, token)

	rec := doJSON(t, router, token, http.MethodPost, "/audits/"+auditID+"/findings", map[string]any{
		"title":        "no lockout procedure",
		"finding_type": "MAJOR_NON_CONFORMITY",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating finding, got %d: %s", rec.Code, rec.Body.String())
	}
	finding := decodeBody[struct {
		ID string `json:"id"`
	}](t, rec)

	rec = doJSON(t, router, token, http.MethodPost, "/audits/"+auditID+"/close", map[string]any{})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a blocked closure, got %d: %s", rec.Code, rec.Body.String())
	}
	blocked := decodeBody[struct {
		Error   string `json:"error"`
		Details []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"details"`
	}](t, rec)
	if blocked.Error != "closure_blocked" {
		t.Fatalf("expected closure_blocked code, got %q", blocked.Error)
	}
	if len(blocked.Details) != 1 || blocked.Details[0].ID != finding.ID {
		t.Fatalf("expected the blocking finding in details, got %+v", blocked.Details)
	}

	// Close the finding, then the gate opens.
	rec = doJSON(t, router, token, http.MethodPatch, "/findings/"+finding.ID,
		map[string]string{"status": "CLOSED"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 closing finding, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, token, http.MethodPost, "/audits/"+auditID+"/close",
		map[string]string{"summary": "all clear"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 closing audit, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCorrectiveActionEndpoints(t *testing.T) {
	router, token := newAuditRouter(t)
	auditID := createAudit(t, router, token)

	rec := doJSON(t, router, token, http.MethodPost, "/audits/"+auditID+"/actions", map[string]any{
		"title":          "install guard rail",
		"action_type":    "CORRECTIVE",
		"assigned_to_id": id.NewUserID().String(),
		"due_date":       "2025-07-01T00:00:00Z",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating action, got %d: %s", rec.Code, rec.Body.String())
	}
	action := decodeBody[struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}](t, rec)
	if action.Status != "OPEN" {
		t.Fatalf("expected OPEN action, got %q", action.Status)
	}

	rec = doJSON(t, router, token, http.MethodPatch, "/actions/"+action.ID,
		map[string]string{"status": "VERIFIED"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 verifying action, got %d: %s", rec.Code, rec.Body.String())
	}
	verified := decodeBody[struct {
		Status     string  `json:"status"`
		VerifiedAt *string `json:"verified_at"`
	}](t, rec)
	if verified.Status != "VERIFIED" || verified.VerifiedAt == nil {
		t.Fatalf("expected a stamped verification, got %+v", verified)
	}
}

func TestChecklistEndpoints(t *testing.T) {
	router, token := newAuditRouter(t)
	auditID := createAudit(t, router, token)

	rec := doJSON(t, router, token, http.MethodPost, "/audits/"+auditID+"/checklist", map[string]any{
		"area_name": "Warehouse",
		"items": []map[string]string{
			{"item_name": "exits clear"},
			{"item_name": "extinguishers tagged"},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 creating checklist, got %d: %s", rec.Code, rec.Body.String())
	}
	checklist := decodeBody[struct {
		Items []struct {
			ID         string `json:"id"`
			Compliance string `json:"compliance"`
		} `json:"items"`
	}](t, rec)
	if len(checklist.Items) != 2 || checklist.Items[0].Compliance != "NOT_INSPECTED" {
		t.Fatalf("expected two uninspected items, got %+v", checklist.Items)
	}

	// Boolean wire form is accepted for the verdict.
	rec = doJSON(t, router, token, http.MethodPatch, "/inspection-items/"+checklist.Items[0].ID,
		map[string]any{"compliance": false, "comments": "exit blocked"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 recording verdict, got %d: %s", rec.Code, rec.Body.String())
	}
	result := decodeBody[struct {
		SuggestFinding bool `json:"suggest_finding"`
		Item           struct {
			Compliance string `json:"compliance"`
		} `json:"item"`
	}](t, rec)
	if !result.SuggestFinding || result.Item.Compliance != "NON_COMPLIANT" {
		t.Fatalf("expected a suggest-finding hint, got %+v", result)
	}

	rec = doJSON(t, router, token, http.MethodGet, "/audits/"+auditID+"/checklist/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for summary, got %d", rec.Code)
	}
	summary := decodeBody[struct {
		Areas []struct {
			AreaName       string  `json:"area_name"`
			TotalItems     int     `json:"total_items"`
			CompliantItems int     `json:"compliant_items"`
			Rate           float64 `json:"compliance_rate"`
		} `json:"areas"`
	}](t, rec)
	if len(summary.Areas) != 1 || summary.Areas[0].TotalItems != 2 || summary.Areas[0].Rate != 0 {
		t.Fatalf("unexpected summary: %+v", summary.Areas)
	}
}

func TestActivityTrailEndpoint(t *testing.T) {
	router, token := newAuditRouter(t)
	auditID := createAudit(t, router, token)

	rec := doJSON(t, router, token, http.MethodGet, "/audits/"+auditID+"/activity", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for activity, got %d", rec.Code)
	}

	rec = doJSON(t, router, token, http.MethodGet, "/audits/"+id.NewAuditID().String()+"/activity", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown audit, got %d", rec.Code)
	}
}
