package pipeline

import "github.com/windtest/scoreentry/internal/model"

// Stage identifies where in the pipeline a submission succeeded or stopped.
type Stage string

const (
	StageValidate Stage = "validate"
	StageResolve  Stage = "resolve"
	StageResponse Stage = "response"
	StageReport   Stage = "report"
)

// SubmissionOutcome is the single result type every submission produces.
// Every failure path maps to a distinguishable variant; nothing is swallowed.
type SubmissionOutcome struct {
	OK    bool  `json:"ok"`
	Stage Stage `json:"stage"`
	// Partial means the response record exists but the report aggregate is
	// stale. ResponseID identifies the record already written so the caller
	// can retry just the aggregate step.
	Partial    bool   `json:"partial,omitempty"`
	ResponseID string `json:"response_id,omitempty"`
	// Superseded means an existing response was updated in place rather
	// than a new one created (DuplicateSupersede policy).
	Superseded bool                       `json:"superseded,omitempty"`
	Entry      *model.ValidatedScoreEntry `json:"-"`
	Aggregate  *model.ReportAggregate     `json:"aggregate,omitempty"`
	Err        error                      `json:"-"`
}

func failure(stage Stage, err error) SubmissionOutcome {
	return SubmissionOutcome{Stage: stage, Err: err}
}
