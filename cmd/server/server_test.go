package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/liamcoop/stagegate/jobs"
	"github.com/liamcoop/stagegate/rules"
)

type testEnv struct {
	server   *Server
	store    *jobs.InMemoryJobStore
	provider *jobs.StaticFactProvider
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	rs, err := rules.DefaultRuleSet()
	if err != nil {
		t.Fatalf("DefaultRuleSet() failed: %v", err)
	}

	store := jobs.NewInMemoryJobStore()
	provider := jobs.NewStaticFactProvider(rs.Deriver)
	svc := jobs.NewService(store, provider, rs.Table, time.Second)

	return &testEnv{
		server:   NewServer(svc, nil, 0),
		store:    store,
		provider: provider,
	}
}

// makeRequest is a helper to make HTTP requests
func (env *testEnv) makeRequest(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v (body %q)", err, rec.Body.String())
	}
	return out
}

func TestHealth(t *testing.T) {
	env := setupTestServer(t)

	rec := env.makeRequest(t, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	resp := decodeBody[HealthResponse](t, rec)
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
}

func TestListStages(t *testing.T) {
	env := setupTestServer(t)

	rec := env.makeRequest(t, http.MethodGet, "/api/v1/stages", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	resp := decodeBody[StagesResponse](t, rec)
	if len(resp.Stages) != 16 {
		t.Fatalf("got %d stages, want 16", len(resp.Stages))
	}
	if resp.Stages[0].Stage != rules.StageNewEnquiry {
		t.Errorf("first stage = %s, want new_enquiry", resp.Stages[0].Stage)
	}

	byStage := make(map[rules.Stage]StageResponse)
	for _, s := range resp.Stages {
		byStage[s.Stage] = s
	}
	if !byStage[rules.StageLost].Unrestricted {
		t.Error("lost should be unrestricted")
	}
	if !byStage[rules.StageDepositPaid].CanSkip {
		t.Error("deposit_paid should be skippable")
	}
	scheduled := byStage[rules.StageScheduled].Prerequisites
	if len(scheduled) != 1 || scheduled[0].RelatedTable != "job_visits" || scheduled[0].Check != rules.CheckHasRelated {
		t.Errorf("scheduled prerequisites = %+v", scheduled)
	}
}

func TestEvaluate(t *testing.T) {
	env := setupTestServer(t)

	testCases := []struct {
		name        string
		body        any
		wantStatus  int
		wantProceed bool
		wantUnmet   int
	}{
		{
			name:        "Both quote checks fail",
			body:        EvaluateRequest{Stage: rules.StageQuoteSent, Facts: rules.Facts{"hasQuoteItems": false, "quotedValue": 0}},
			wantStatus:  http.StatusOK,
			wantProceed: false,
			wantUnmet:   2,
		},
		{
			name:        "Quote ready",
			body:        EvaluateRequest{Stage: rules.StageQuoteSent, Facts: rules.Facts{"hasQuoteItems": true, "quotedValue": 5000}},
			wantStatus:  http.StatusOK,
			wantProceed: true,
		},
		{
			name:       "Unknown stage",
			body:       EvaluateRequest{Stage: "archived", Facts: rules.Facts{}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Missing stage",
			body:       EvaluateRequest{Facts: rules.Facts{}},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.makeRequest(t, http.MethodPost, "/api/v1/evaluate", tc.body)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.wantStatus, rec.Body.String())
			}
			if tc.wantStatus != http.StatusOK {
				return
			}

			verdict := decodeBody[rules.Verdict](t, rec)
			if verdict.CanProgress != tc.wantProceed {
				t.Errorf("CanProgress = %v, want %v", verdict.CanProgress, tc.wantProceed)
			}
			if len(verdict.Unmet) != tc.wantUnmet {
				t.Errorf("Unmet = %v, want %d entries", verdict.Unmet, tc.wantUnmet)
			}
		})
	}
}

func TestEvaluateInvalidBody(t *testing.T) {
	env := setupTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAuthorize(t *testing.T) {
	env := setupTestServer(t)

	testCases := []struct {
		name        string
		body        AuthorizeRequest
		wantStatus  int
		wantAllowed bool
		wantReason  rules.Reason
	}{
		{
			name:        "Backward move",
			body:        AuthorizeRequest{From: rules.StageQuoteSent, To: rules.StageContacted, Facts: rules.Facts{"contactId": "c-1"}},
			wantStatus:  http.StatusOK,
			wantAllowed: false,
			wantReason:  rules.ReasonNotForward,
		},
		{
			name:        "Escape hatch",
			body:        AuthorizeRequest{From: rules.StageNewEnquiry, To: rules.StageLost, Facts: rules.Facts{}},
			wantStatus:  http.StatusOK,
			wantAllowed: true,
		},
		{
			name:        "Prerequisites unmet",
			body:        AuthorizeRequest{From: rules.StageQuoteSent, To: rules.StageQuoteAccepted, Facts: rules.Facts{"quoteStatus": "draft"}},
			wantStatus:  http.StatusOK,
			wantAllowed: false,
			wantReason:  rules.ReasonPrerequisitesUnmet,
		},
		{
			name:       "Unknown from",
			body:       AuthorizeRequest{From: "archived", To: rules.StageLost, Facts: rules.Facts{}},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.makeRequest(t, http.MethodPost, "/api/v1/authorize", tc.body)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.wantStatus, rec.Body.String())
			}
			if tc.wantStatus != http.StatusOK {
				return
			}

			decision := decodeBody[rules.Decision](t, rec)
			if decision.Allowed != tc.wantAllowed || decision.Reason != tc.wantReason {
				t.Errorf("decision = %+v, want allowed=%v reason=%q", decision, tc.wantAllowed, tc.wantReason)
			}
		})
	}
}

func TestJobLifecycle(t *testing.T) {
	env := setupTestServer(t)

	rec := env.makeRequest(t, http.MethodPost, "/api/v1/jobs/", CreateJobRequest{Title: "Bathroom refit", ContactID: "c-1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}
	job := decodeBody[jobs.Job](t, rec)
	if job.Stage != rules.StageNewEnquiry {
		t.Fatalf("Stage = %s, want new_enquiry", job.Stage)
	}

	base := "/api/v1/jobs/" + job.ID
	env.provider.Set(job.ID, rules.Facts{"contactId": "c-1"})

	rec = env.makeRequest(t, http.MethodGet, base+"/readiness/contacted", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("readiness status = %d, want 200", rec.Code)
	}
	if verdict := decodeBody[rules.Verdict](t, rec); !verdict.CanProgress {
		t.Errorf("readiness = %+v, want ready", verdict)
	}

	rec = env.makeRequest(t, http.MethodPost, base+"/transition", TransitionRequest{To: rules.StageContacted, Actor: "sam"})
	if rec.Code != http.StatusOK {
		t.Fatalf("transition status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	resp := decodeBody[TransitionResponse](t, rec)
	if !resp.Decision.Allowed || resp.Transition == nil || resp.Transition.To != rules.StageContacted {
		t.Fatalf("transition response = %+v", resp)
	}

	// survey_booked needs a scheduled survey
	rec = env.makeRequest(t, http.MethodPost, base+"/transition", TransitionRequest{To: rules.StageSurveyBooked, Actor: "sam"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("rejected transition status = %d, want 409", rec.Code)
	}
	resp = decodeBody[TransitionResponse](t, rec)
	if resp.Decision.Allowed || resp.Transition != nil {
		t.Errorf("rejected response = %+v", resp)
	}
	if resp.Decision.Detail != "Schedule a survey before moving to Survey Booked" {
		t.Errorf("Detail = %q", resp.Decision.Detail)
	}

	rec = env.makeRequest(t, http.MethodGet, base, nil)
	if got := decodeBody[jobs.Job](t, rec); got.Stage != rules.StageContacted {
		t.Errorf("Stage = %s, want contacted", got.Stage)
	}

	rec = env.makeRequest(t, http.MethodGet, base+"/transitions", nil)
	history := decodeBody[HistoryResponse](t, rec)
	if len(history.Transitions) != 1 || history.Transitions[0].Actor != "sam" {
		t.Errorf("history = %+v", history)
	}
}

func TestJobErrors(t *testing.T) {
	env := setupTestServer(t)
	_ = env.store.Create(t.Context(), &jobs.Job{ID: "job-1", Stage: rules.StageQuoting})
	env.provider.Set("job-1", rules.Facts{})

	testCases := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
	}{
		{"Get unknown job", http.MethodGet, "/api/v1/jobs/job-404", nil, http.StatusNotFound},
		{"Readiness unknown stage", http.MethodGet, "/api/v1/jobs/job-1/readiness/archived", nil, http.StatusBadRequest},
		{"Transition unknown stage", http.MethodPost, "/api/v1/jobs/job-1/transition", TransitionRequest{To: "archived"}, http.StatusBadRequest},
		{"Transition missing target", http.MethodPost, "/api/v1/jobs/job-1/transition", TransitionRequest{}, http.StatusBadRequest},
		{"Transition unknown job", http.MethodPost, "/api/v1/jobs/job-404/transition", TransitionRequest{To: rules.StageLost}, http.StatusNotFound},
		{"History unknown job", http.MethodGet, "/api/v1/jobs/job-404/transitions", nil, http.StatusNotFound},
		{"Create without title", http.MethodPost, "/api/v1/jobs/", CreateJobRequest{}, http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.makeRequest(t, tc.method, tc.path, tc.body)
			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tc.wantStatus, rec.Body.String())
			}
		})
	}
}
