package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/windtest/scoreentry/internal/i18n"
	"github.com/windtest/scoreentry/internal/model"
	"github.com/windtest/scoreentry/internal/record"
)

// reportCASAttempts bounds the recompute-and-swap loop for the aggregate.
// Conflicts mean another submission for the same student is in flight.
const reportCASAttempts = 5

// Coordinator performs the ordered writes for one accepted submission:
// the response record first, then the report aggregate. The store offers no
// multi-record transaction, so the coordinator's job is to make the two-step
// sequence observable and recoverable instead of silently inconsistent.
type Coordinator struct {
	store record.Store
	cfg   *model.Config
	now   func() time.Time
}

// NewCoordinator creates a coordinator writing through the given store.
func NewCoordinator(store record.Store, cfg *model.Config) *Coordinator {
	return &Coordinator{store: store, cfg: cfg, now: time.Now}
}

// Submit writes the response record and brings the student's report
// aggregate up to date. A failure before the response write leaves nothing
// behind; a failure after it returns a partial outcome carrying the created
// response's id, so the caller can retry just the aggregate step.
func (c *Coordinator) Submit(ctx context.Context, entry model.ValidatedScoreEntry) SubmissionOutcome {
	respID, superseded, err := c.writeResponse(ctx, entry)
	if err != nil {
		return failure(StageResponse, fmt.Errorf("write response: %w", err))
	}

	agg, err := c.RecomputeReport(ctx, entry.Student)
	if err != nil {
		out := failure(StageReport, &model.PartialSubmissionError{
			ResponseID: respID,
			StudentID:  entry.Student.ID,
			Cause:      err,
		})
		out.Partial = true
		out.ResponseID = respID
		out.Superseded = superseded
		out.Entry = &entry
		return out
	}

	c.notify(ctx, agg.RecordID)

	return SubmissionOutcome{
		OK:         true,
		Stage:      StageReport,
		ResponseID: respID,
		Superseded: superseded,
		Entry:      &entry,
		Aggregate:  &agg,
	}
}

func (c *Coordinator) writeResponse(ctx context.Context, entry model.ValidatedScoreEntry) (id string, superseded bool, err error) {
	fields := map[string]any{
		record.FieldTitle:      entry.Student.Name + "-" + entry.Question.Label,
		record.FieldStudentID:  entry.Student.ID,
		record.FieldQuestionID: entry.Question.ID,
		record.FieldScore:      entry.Score,
		record.FieldComment:    entry.Comment,
		record.FieldEnteredBy:  entry.EnteredBy,
		record.FieldEnteredAt:  c.now().UTC().Format(time.RFC3339),
	}

	if c.cfg.Duplicates == model.DuplicateSupersede {
		existing, err := c.store.QueryRecords(ctx, model.CollectionResponses,
			record.Filter{Field: record.FieldStudentID, Equals: entry.Student.ID},
			record.Filter{Field: record.FieldQuestionID, Equals: entry.Question.ID})
		if err != nil {
			return "", false, err
		}
		if len(existing) > 0 {
			rec, err := c.store.UpdateRecord(ctx, model.CollectionResponses, existing[0].ID, fields, "")
			if err != nil {
				return "", false, err
			}
			return rec.ID, true, nil
		}
	}

	rec, err := c.store.CreateRecord(ctx, model.CollectionResponses, fields)
	if err != nil {
		return "", false, err
	}
	return rec.ID, false, nil
}

// RecomputeReport derives the student's aggregate from the full set of
// response records and writes it back with a version check, retrying on
// conflict. It never increments stored values, so re-running it is always
// safe: this is the recovery path after a partial submission.
func (c *Coordinator) RecomputeReport(ctx context.Context, student model.Student) (model.ReportAggregate, error) {
	var lastErr error
	for attempt := 0; attempt < reportCASAttempts; attempt++ {
		responses, err := c.store.QueryRecords(ctx, model.CollectionResponses,
			record.Filter{Field: record.FieldStudentID, Equals: student.ID})
		if err != nil {
			return model.ReportAggregate{}, err
		}
		total, count := 0, 0
		for _, resp := range responses {
			total += resp.Int(record.FieldScore)
			count++
		}

		reports, err := c.store.QueryRecords(ctx, model.CollectionReports,
			record.Filter{Field: record.FieldStudentID, Equals: student.ID})
		if err != nil {
			return model.ReportAggregate{}, err
		}

		fields := map[string]any{
			record.FieldTotal:     total,
			record.FieldCount:     count,
			record.FieldStatus:    record.StatusEntered,
			record.FieldUpdatedAt: c.now().UTC().Format(time.RFC3339),
		}

		if len(reports) == 0 {
			fields[record.FieldTitle] = student.Name
			fields[record.FieldStudentID] = student.ID
			created, err := c.store.CreateRecord(ctx, model.CollectionReports, fields)
			if err != nil {
				return model.ReportAggregate{}, err
			}
			// A concurrent submission may have raced the create. Re-read:
			// if ours is the canonical (oldest) record we are done, else
			// fall through to updating the canonical one.
			reports, err = c.store.QueryRecords(ctx, model.CollectionReports,
				record.Filter{Field: record.FieldStudentID, Equals: student.ID})
			if err != nil {
				return model.ReportAggregate{}, err
			}
			if len(reports) > 0 && reports[0].ID == created.ID {
				return model.ReportAggregate{
					RecordID:  created.ID,
					StudentID: student.ID,
					Total:     total,
					Count:     count,
					Version:   created.Version,
				}, nil
			}
			continue
		}

		// The first record is canonical when creation ever raced.
		canonical := reports[0]
		updated, err := c.store.UpdateRecord(ctx, model.CollectionReports, canonical.ID, fields, canonical.Version)
		if errors.Is(err, record.ErrConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return model.ReportAggregate{}, err
		}
		return model.ReportAggregate{
			RecordID:  canonical.ID,
			StudentID: student.ID,
			Total:     total,
			Count:     count,
			Version:   updated.Version,
		}, nil
	}
	if lastErr == nil {
		lastErr = record.ErrConflict
	}
	return model.ReportAggregate{}, fmt.Errorf("report update contended after %d attempts: %w", reportCASAttempts, lastErr)
}

// notify pokes the backend's side channel so a human knows the report is
// ready for generation. Best-effort only.
func (c *Coordinator) notify(ctx context.Context, reportRecordID string) {
	n, ok := c.store.(record.Notifier)
	if !ok || c.cfg.AdminUserID == "" || reportRecordID == "" {
		return
	}
	if err := n.Notify(ctx, reportRecordID, i18n.T(ctx, "notify.report_ready")); err != nil {
		slog.Warn("report notification failed", "record", reportRecordID, "error", err)
	}
}
