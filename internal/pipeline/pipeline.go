// Package pipeline implements the validated multi-entity submission
// pipeline: validate a score entry, resolve its references, write the
// response and report records, and describe the outcome.
package pipeline

import (
	"context"
	"sort"

	"github.com/windtest/scoreentry/internal/label"
	"github.com/windtest/scoreentry/internal/model"
	"github.com/windtest/scoreentry/internal/record"
)

// Pipeline wires validator, resolver, and coordinator for one form session.
// The resolver cache lives and dies with the Pipeline; build a new one per
// session so reference-data changes are picked up.
type Pipeline struct {
	store     record.Store
	cfg       *model.Config
	validator *Validator
	resolver  *Resolver
	coord     *Coordinator
}

// New builds a session-scoped pipeline over the given store.
func New(store record.Store, cfg *model.Config) *Pipeline {
	return &Pipeline{
		store:     store,
		cfg:       cfg,
		validator: NewValidator(),
		resolver:  NewResolver(store),
		coord:     NewCoordinator(store, cfg),
	}
}

// Process runs one raw entry through the full pipeline. Validation and
// resolution failures never reach the coordinator, so a rejected entry
// writes nothing.
func (p *Pipeline) Process(ctx context.Context, entry model.ScoreEntry) SubmissionOutcome {
	if err := p.validator.Structural(entry); err != nil {
		return failure(StageValidate, err)
	}

	student, err := p.resolver.Student(ctx, entry.StudentName)
	if err != nil {
		return failure(StageResolve, err)
	}
	question, err := p.resolver.Question(ctx, entry.QuestionLabel)
	if err != nil {
		return failure(StageResolve, err)
	}

	if err := p.validator.Referential(*entry.Score, question); err != nil {
		return failure(StageValidate, err)
	}

	return p.coord.Submit(ctx, model.ValidatedScoreEntry{
		Student:   student,
		Question:  question,
		Score:     *entry.Score,
		Comment:   entry.Comment,
		EnteredBy: entry.EnteredBy,
	})
}

// Recompute re-derives a student's report aggregate from source responses.
// This is the repair path after a partial submission.
func (p *Pipeline) Recompute(ctx context.Context, studentName string) (model.ReportAggregate, error) {
	student, err := p.resolver.Student(ctx, studentName)
	if err != nil {
		return model.ReportAggregate{}, err
	}
	return p.coord.RecomputeReport(ctx, student)
}

// Report reads the stored aggregate for a student without modifying it.
func (p *Pipeline) Report(ctx context.Context, studentName string) (model.ReportAggregate, error) {
	student, err := p.resolver.Student(ctx, studentName)
	if err != nil {
		return model.ReportAggregate{}, err
	}
	recs, err := p.store.QueryRecords(ctx, model.CollectionReports,
		record.Filter{Field: record.FieldStudentID, Equals: student.ID})
	if err != nil {
		return model.ReportAggregate{}, err
	}
	if len(recs) == 0 {
		return model.ReportAggregate{}, &model.NotFoundError{Collection: model.CollectionReports, Name: studentName}
	}
	rec := recs[0]
	return model.ReportAggregate{
		RecordID:  rec.ID,
		StudentID: student.ID,
		Total:     rec.Int(record.FieldTotal),
		Count:     rec.Int(record.FieldCount),
		Version:   rec.Version,
	}, nil
}

// ListStudents returns all students sorted by name.
func (p *Pipeline) ListStudents(ctx context.Context) ([]model.Student, error) {
	recs, err := p.store.QueryRecords(ctx, model.CollectionStudents)
	if err != nil {
		return nil, err
	}
	students := make([]model.Student, 0, len(recs))
	for _, rec := range recs {
		students = append(students, studentFromRecord(rec))
	}
	sort.Slice(students, func(i, j int) bool { return students[i].Name < students[j].Name })
	return students, nil
}

// ListQuestions returns all questions in natural label order, so "1-2"
// sorts before "1-10".
func (p *Pipeline) ListQuestions(ctx context.Context) ([]model.Question, error) {
	recs, err := p.store.QueryRecords(ctx, model.CollectionQuestions)
	if err != nil {
		return nil, err
	}
	questions := make([]model.Question, 0, len(recs))
	for _, rec := range recs {
		questions = append(questions, questionFromRecord(rec))
	}
	sort.Slice(questions, func(i, j int) bool {
		return label.NaturalLess(questions[i].Label, questions[j].Label)
	})
	return questions, nil
}
