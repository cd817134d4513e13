package pipeline

import (
	"context"
	"errors"
	"strings"

	"github.com/windtest/scoreentry/internal/i18n"
	"github.com/windtest/scoreentry/internal/model"
	"github.com/windtest/scoreentry/internal/record"
)

// Describe turns a SubmissionOutcome into one localized, user-facing
// message. Each variant gets a distinct message stating what was written
// and whether a retry is safe. No business logic lives here.
func Describe(ctx context.Context, out SubmissionOutcome) string {
	if out.OK {
		data := map[string]any{
			"Student":  out.Entry.Student.Name,
			"Question": out.Entry.Question.Label,
			"Score":    out.Entry.Score,
			"Total":    out.Aggregate.Total,
			"Count":    out.Aggregate.Count,
		}
		if out.Superseded {
			return i18n.Td(ctx, "outcome.superseded", data)
		}
		return i18n.Td(ctx, "outcome.success", data)
	}

	var missing *model.MissingFieldError
	if errors.As(out.Err, &missing) {
		return i18n.Td(ctx, "outcome.missing_field", map[string]any{"Field": missing.Field})
	}

	var rangeErr *model.RangeError
	if errors.As(out.Err, &rangeErr) {
		return i18n.Td(ctx, "outcome.range", map[string]any{
			"Score":    rangeErr.Score,
			"Max":      rangeErr.Max,
			"Question": rangeErr.Label,
		})
	}

	var notFound *model.NotFoundError
	if errors.As(out.Err, &notFound) {
		return i18n.Td(ctx, "outcome.not_found", map[string]any{
			"Collection": collectionName(ctx, notFound.Collection),
			"Name":       notFound.Name,
		})
	}

	var ambiguous *model.AmbiguousReferenceError
	if errors.As(out.Err, &ambiguous) {
		return i18n.Td(ctx, "outcome.ambiguous", map[string]any{
			"Collection": collectionName(ctx, ambiguous.Collection),
			"Name":       ambiguous.Name,
			"Candidates": strings.Join(ambiguous.Candidates, ", "),
		})
	}

	var partial *model.PartialSubmissionError
	if errors.As(out.Err, &partial) {
		return i18n.Td(ctx, "outcome.partial", map[string]any{"ResponseID": partial.ResponseID})
	}

	if record.IsUnavailable(out.Err) {
		return i18n.T(ctx, "outcome.unavailable")
	}

	if out.Stage == StageResponse {
		return i18n.T(ctx, "outcome.response_failed")
	}

	// Leftover shapes (context cancellation, backend schema faults) have no
	// friendlier rendering than the error itself.
	if out.Err != nil {
		return out.Err.Error()
	}
	return i18n.T(ctx, "outcome.response_failed")
}

func collectionName(ctx context.Context, col model.Collection) string {
	switch col {
	case model.CollectionStudents:
		return i18n.T(ctx, "collection.students")
	case model.CollectionQuestions:
		return i18n.T(ctx, "collection.questions")
	}
	return string(col)
}
