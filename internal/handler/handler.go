package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/windtest/scoreentry/internal/model"
	"github.com/windtest/scoreentry/internal/pipeline"
	"github.com/windtest/scoreentry/internal/record"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store record.Store
	cfg   *model.Config
}

// New creates a new Handler.
func New(store record.Store, cfg *model.Config) *Handler {
	return &Handler{store: store, cfg: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/submissions", h.handleSubmit)
	r.Get("/api/students", h.handleStudents)
	r.Get("/api/questions", h.handleQuestions)
	r.Get("/api/reports/{student}", h.handleReport)
	r.Post("/api/reports/{student}/recompute", h.handleRecompute)
}

// session builds a fresh pipeline for one request. Each request is its own
// form session, so resolver caches never outlive reference-data changes.
func (h *Handler) session() *pipeline.Pipeline {
	return pipeline.New(h.store, h.cfg)
}

// submissionResponse is the wire shape for a submission outcome.
type submissionResponse struct {
	pipeline.SubmissionOutcome
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var entry model.ScoreEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	// The identity token travels unexamined: header wins, body is fallback.
	if token := r.Header.Get("X-Entered-By"); token != "" {
		entry.EnteredBy = token
	}

	out := h.session().Process(r.Context(), entry)
	if !out.OK {
		slog.Warn("submission rejected",
			"stage", out.Stage, "partial", out.Partial, "error", out.Err)
	}

	resp := submissionResponse{
		SubmissionOutcome: out,
		Message:           pipeline.Describe(r.Context(), out),
	}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	writeJSON(w, outcomeStatus(out), resp)
}

func outcomeStatus(out pipeline.SubmissionOutcome) int {
	if out.OK {
		return http.StatusOK
	}
	var notFound *model.NotFoundError
	var ambiguous *model.AmbiguousReferenceError
	switch {
	case out.Stage == pipeline.StageValidate:
		return http.StatusBadRequest
	case errors.As(out.Err, &notFound):
		return http.StatusNotFound
	case errors.As(out.Err, &ambiguous):
		return http.StatusConflict
	case record.IsUnavailable(out.Err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) handleStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.session().ListStudents(r.Context())
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, students)
}

func (h *Handler) handleQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := h.session().ListQuestions(r.Context())
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	agg, err := h.session().Report(r.Context(), chi.URLParam(r, "student"))
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

// handleRecompute re-derives a student's aggregate from source responses,
// the follow-up call after a partial submission outcome.
func (h *Handler) handleRecompute(w http.ResponseWriter, r *http.Request) {
	agg, err := h.session().Recompute(r.Context(), chi.URLParam(r, "student"))
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func storeError(w http.ResponseWriter, err error) {
	var notFound *model.NotFoundError
	var ambiguous *model.AmbiguousReferenceError
	switch {
	case errors.As(err, &notFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &ambiguous):
		http.Error(w, err.Error(), http.StatusConflict)
	case record.IsUnavailable(err):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
