package main

import (
	"github.com/liamcoop/stagegate/internal/logger"
	"github.com/liamcoop/stagegate/jobs"
	"github.com/liamcoop/stagegate/rules"
)

// API request and response models

// EvaluateRequest is the body of POST /api/v1/evaluate
type EvaluateRequest struct {
	Stage rules.Stage `json:"stage"`
	Facts rules.Facts `json:"facts"`
}

// AuthorizeRequest is the body of POST /api/v1/authorize
type AuthorizeRequest struct {
	From  rules.Stage `json:"from"`
	To    rules.Stage `json:"to"`
	Facts rules.Facts `json:"facts"`
}

// CreateJobRequest is the body of POST /api/v1/jobs
type CreateJobRequest struct {
	Title     string `json:"title"`
	ContactID string `json:"contactId,omitempty"`
}

// TransitionRequest is the body of POST /api/v1/jobs/{jobId}/transition
type TransitionRequest struct {
	To    rules.Stage `json:"to"`
	Actor string      `json:"actor,omitempty"`
}

// TransitionResponse reports an authorization outcome and, when allowed, the recorded transition
type TransitionResponse struct {
	Decision   rules.Decision   `json:"decision"`
	Transition *jobs.Transition `json:"transition,omitempty"`
}

// HistoryResponse lists a job's transitions
type HistoryResponse struct {
	Transitions []*jobs.Transition `json:"transitions"`
}

// PrerequisiteResponse describes one prerequisite check
type PrerequisiteResponse struct {
	Field        string          `json:"field"`
	Check        rules.CheckKind `json:"check"`
	Value        any             `json:"value,omitempty"`
	RelatedTable string          `json:"relatedTable,omitempty"`
	RelatedField string          `json:"relatedField,omitempty"`
	Message      string          `json:"message"`
}

// StageResponse describes one stage of the pipeline
type StageResponse struct {
	Stage         rules.Stage            `json:"stage"`
	Label         string                 `json:"label"`
	CanSkip       bool                   `json:"canSkip"`
	Unrestricted  bool                   `json:"unrestricted"`
	Prerequisites []PrerequisiteResponse `json:"prerequisites"`
}

// StagesResponse lists the pipeline in order
type StagesResponse struct {
	Stages []StageResponse `json:"stages"`
}

// HealthResponse reports database reachability and process counters
type HealthResponse struct {
	Status   string       `json:"status"`
	Error    string       `json:"error,omitempty"`
	Counters logger.Stats `json:"counters"`
}

func newStagesResponse(table *rules.Table) StagesResponse {
	stageRules := table.Stages()
	out := StagesResponse{Stages: make([]StageResponse, 0, len(stageRules))}

	for _, sr := range stageRules {
		stage := StageResponse{
			Stage:         sr.Stage,
			Label:         sr.Label,
			CanSkip:       sr.CanSkip,
			Unrestricted:  table.IsUnrestricted(sr.Stage),
			Prerequisites: make([]PrerequisiteResponse, 0, len(sr.Prerequisites)),
		}
		for _, p := range sr.Prerequisites {
			pr := PrerequisiteResponse{
				Field:   p.Field,
				Check:   p.Check.Kind(),
				Message: p.Message,
			}
			switch c := p.Check.(type) {
			case rules.Equals:
				pr.Value = c.Value
			case rules.HasRelated:
				pr.RelatedTable = c.Table
				pr.RelatedField = c.Field
			}
			stage.Prerequisites = append(stage.Prerequisites, pr)
		}
		out.Stages = append(out.Stages, stage)
	}

	return out
}
