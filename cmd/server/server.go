package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/liamcoop/stagegate/internal/logger"
	"github.com/liamcoop/stagegate/jobs"
	"github.com/liamcoop/stagegate/rules"
)

type Server struct {
	db         *sql.DB
	service    *jobs.Service
	evaluator  *rules.Evaluator
	authorizer *rules.Authorizer
	router     *chi.Mux
}

// NewServer builds the HTTP API over svc. db is only used by the health
// check and may be nil.
func NewServer(svc *jobs.Service, db *sql.DB, requestTimeout time.Duration) *Server {
	s := &Server{
		db:         db,
		service:    svc,
		evaluator:  rules.NewEvaluator(svc.Table()),
		authorizer: rules.NewAuthorizer(svc.Table()),
	}

	s.setupRoutes(requestTimeout)
	return s
}

func (s *Server) setupRoutes(requestTimeout time.Duration) {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if requestTimeout > 0 {
		r.Use(middleware.Timeout(requestTimeout))
	}

	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/v1/stages", s.handleListStages)

	// Stateless checks against caller-supplied facts
	r.Post("/api/v1/evaluate", s.handleEvaluate)
	r.Post("/api/v1/authorize", s.handleAuthorize)

	r.Route("/api/v1/jobs", func(r chi.Router) {
		r.Post("/", s.handleCreateJob)

		r.Route("/{jobId}", func(r chi.Router) {
			r.Get("/", s.handleGetJob)
			r.Get("/readiness/{stage}", s.handleReadiness)
			r.Post("/transition", s.handleTransition)
			r.Get("/transitions", s.handleListTransitions)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Counters: logger.Snapshot()}

	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			resp.Status = "unhealthy"
			resp.Error = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListStages(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, newStagesResponse(s.service.Table()))
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Stage == "" {
		respondError(w, http.StatusBadRequest, "stage is required", nil)
		return
	}

	verdict, err := s.evaluator.Evaluate(req.Stage, req.Facts)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, verdict)
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	var req AuthorizeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.From == "" || req.To == "" {
		respondError(w, http.StatusBadRequest, "from and to are required", nil)
		return
	}

	decision, err := s.authorizer.Authorize(req.From, req.To, req.Facts)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, decision)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Title == "" {
		respondError(w, http.StatusBadRequest, "title is required", nil)
		return
	}

	job, err := s.service.CreateJob(r.Context(), req.Title, req.ContactID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.service.Job(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	stage := rules.Stage(chi.URLParam(r, "stage"))

	verdict, err := s.service.Readiness(r.Context(), jobID, stage)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, verdict)
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.To == "" {
		respondError(w, http.StatusBadRequest, "to is required", nil)
		return
	}

	decision, tr, err := s.service.Transition(r.Context(), chi.URLParam(r, "jobId"), req.To, req.Actor)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	status := http.StatusOK
	if !decision.Allowed {
		status = http.StatusConflict
		logger.WarnHttp4xx()
	}

	respondJSON(w, status, TransitionResponse{Decision: decision, Transition: tr})
}

func (s *Server) handleListTransitions(w http.ResponseWriter, r *http.Request) {
	history, err := s.service.History(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, HistoryResponse{Transitions: history})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

// respondServiceError maps domain errors to status codes
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rules.ErrUnknownStage):
		respondError(w, http.StatusBadRequest, "unknown stage", err)
	case errors.Is(err, jobs.ErrJobNotFound):
		respondError(w, http.StatusNotFound, "job not found", err)
	case errors.Is(err, jobs.ErrStageConflict):
		respondError(w, http.StatusConflict, "job stage changed, retry", err)
	default:
		logger.Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error", err)
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	switch {
	case status >= 500:
		logger.ErrorHttp5xx()
	case status >= 400:
		logger.WarnHttp4xx()
	}

	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
