package pipeline

import (
	"context"
	"sync"

	"github.com/windtest/scoreentry/internal/label"
	"github.com/windtest/scoreentry/internal/model"
	"github.com/windtest/scoreentry/internal/record"
)

// Resolver maps human-entered identifiers to stable record ids. Lookups are
// read-only. Results are cached for the lifetime of one Resolver (one form
// session); a fresh session gets a fresh Resolver, since reference data can
// change between sessions.
type Resolver struct {
	store record.Store

	mu        sync.Mutex
	students  map[string]model.Student
	questions map[string]model.Question
}

// NewResolver creates a resolver with an empty session cache.
func NewResolver(store record.Store) *Resolver {
	return &Resolver{
		store:     store,
		students:  make(map[string]model.Student),
		questions: make(map[string]model.Question),
	}
}

// Student resolves a student by exact display name.
func (r *Resolver) Student(ctx context.Context, name string) (model.Student, error) {
	r.mu.Lock()
	cached, ok := r.students[name]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	recs, err := r.store.QueryRecords(ctx, model.CollectionStudents,
		record.Filter{Field: record.FieldName, Equals: name})
	if err != nil {
		return model.Student{}, err
	}
	switch len(recs) {
	case 0:
		return model.Student{}, &model.NotFoundError{Collection: model.CollectionStudents, Name: name}
	case 1:
	default:
		return model.Student{}, &model.AmbiguousReferenceError{
			Collection: model.CollectionStudents,
			Name:       name,
			Candidates: candidateNames(recs, record.FieldName),
		}
	}

	s := studentFromRecord(recs[0])
	r.mu.Lock()
	r.students[name] = s
	r.mu.Unlock()
	return s, nil
}

// Question resolves a question by label. The label is normalized first so
// "03" finds a question labeled "3".
func (r *Resolver) Question(ctx context.Context, rawLabel string) (model.Question, error) {
	lbl := label.Normalize(rawLabel)

	r.mu.Lock()
	cached, ok := r.questions[lbl]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	recs, err := r.store.QueryRecords(ctx, model.CollectionQuestions,
		record.Filter{Field: record.FieldLabel, Equals: lbl})
	if err != nil {
		return model.Question{}, err
	}
	switch len(recs) {
	case 0:
		return model.Question{}, &model.NotFoundError{Collection: model.CollectionQuestions, Name: lbl}
	case 1:
	default:
		return model.Question{}, &model.AmbiguousReferenceError{
			Collection: model.CollectionQuestions,
			Name:       lbl,
			Candidates: candidateNames(recs, record.FieldLabel),
		}
	}

	q := questionFromRecord(recs[0])
	r.mu.Lock()
	r.questions[lbl] = q
	r.mu.Unlock()
	return q, nil
}

func candidateNames(recs []record.Record, field string) []string {
	names := make([]string, 0, len(recs))
	for _, rec := range recs {
		name := rec.String(field)
		if name == "" {
			name = rec.ID
		}
		names = append(names, name+" ("+rec.ID+")")
	}
	return names
}

func studentFromRecord(rec record.Record) model.Student {
	return model.Student{ID: rec.ID, Name: rec.String(record.FieldName)}
}

func questionFromRecord(rec record.Record) model.Question {
	return model.Question{
		ID:       rec.ID,
		Label:    rec.String(record.FieldLabel),
		TestName: rec.String(record.FieldTestName),
		MaxScore: rec.Int(record.FieldMaxScore),
	}
}
