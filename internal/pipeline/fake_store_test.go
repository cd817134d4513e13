package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/windtest/scoreentry/internal/model"
	"github.com/windtest/scoreentry/internal/record"
)

// fakeStore is an in-memory record.Store with per-operation failure hooks.
// Every operation is atomic under the mutex, mimicking a remote store where
// individual calls are atomic but sequences are not.
type fakeStore struct {
	mu      sync.Mutex
	seq     int
	records map[model.Collection][]record.Record

	failCreate func(model.Collection) error
	failQuery  func(model.Collection) error
	failUpdate func(model.Collection) error

	creates int
	updates int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[model.Collection][]record.Record)}
}

func (f *fakeStore) nextID(col model.Collection) string {
	f.seq++
	return fmt.Sprintf("%s-%d", col, f.seq)
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func (f *fakeStore) CreateRecord(_ context.Context, col model.Collection, fields map[string]any) (record.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		if err := f.failCreate(col); err != nil {
			return record.Record{}, err
		}
	}
	rec := record.Record{
		ID:         f.nextID(col),
		Collection: col,
		Fields:     copyFields(fields),
		Version:    "1",
	}
	f.records[col] = append(f.records[col], rec)
	f.creates++
	return rec, nil
}

func (f *fakeStore) QueryRecords(_ context.Context, col model.Collection, filters ...record.Filter) ([]record.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failQuery != nil {
		if err := f.failQuery(col); err != nil {
			return nil, err
		}
	}
	var out []record.Record
	for _, rec := range f.records[col] {
		if matches(rec, filters) {
			cp := rec
			cp.Fields = copyFields(rec.Fields)
			out = append(out, cp)
		}
	}
	return out, nil
}

func matches(rec record.Record, filters []record.Filter) bool {
	for _, fl := range filters {
		if fmt.Sprintf("%v", rec.Fields[fl.Field]) != fmt.Sprintf("%v", fl.Equals) {
			return false
		}
	}
	return true
}

func (f *fakeStore) GetRecord(_ context.Context, col model.Collection, id string) (record.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records[col] {
		if rec.ID == id {
			cp := rec
			cp.Fields = copyFields(rec.Fields)
			return cp, nil
		}
	}
	return record.Record{}, record.ErrNotFound
}

func (f *fakeStore) UpdateRecord(_ context.Context, col model.Collection, id string, fields map[string]any, ifVersion string) (record.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate != nil {
		if err := f.failUpdate(col); err != nil {
			return record.Record{}, err
		}
	}
	for i, rec := range f.records[col] {
		if rec.ID != id {
			continue
		}
		if ifVersion != "" && ifVersion != rec.Version {
			return record.Record{}, record.ErrConflict
		}
		for k, v := range fields {
			rec.Fields[k] = v
		}
		ver, _ := strconv.Atoi(rec.Version)
		rec.Version = strconv.Itoa(ver + 1)
		f.records[col][i] = rec
		f.updates++
		cp := rec
		cp.Fields = copyFields(rec.Fields)
		return cp, nil
	}
	return record.Record{}, record.ErrNotFound
}

// seedStudent and seedQuestion install reference data the way the external
// databases would hold it.
func (f *fakeStore) seedStudent(name string) string {
	rec, _ := f.CreateRecord(context.Background(), model.CollectionStudents, map[string]any{
		record.FieldName: name,
	})
	return rec.ID
}

func (f *fakeStore) seedQuestion(lbl string, maxScore int) string {
	rec, _ := f.CreateRecord(context.Background(), model.CollectionQuestions, map[string]any{
		record.FieldLabel:    lbl,
		record.FieldTestName: "WindTest 1",
		record.FieldMaxScore: maxScore,
	})
	return rec.ID
}

func (f *fakeStore) count(col model.Collection) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records[col])
}
