package record

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/windtest/scoreentry/internal/model"
)

// flakyStore fails the first n calls with a transient error, then succeeds.
type flakyStore struct {
	failures int
	calls    int
	permErr  error
}

func (f *flakyStore) attempt() error {
	f.calls++
	if f.permErr != nil {
		return f.permErr
	}
	if f.calls <= f.failures {
		return Unavailable("test", errors.New("boom"))
	}
	return nil
}

func (f *flakyStore) CreateRecord(_ context.Context, _ model.Collection, fields map[string]any) (Record, error) {
	if err := f.attempt(); err != nil {
		return Record{}, err
	}
	return Record{ID: "r1", Fields: fields}, nil
}

func (f *flakyStore) QueryRecords(_ context.Context, _ model.Collection, _ ...Filter) ([]Record, error) {
	if err := f.attempt(); err != nil {
		return nil, err
	}
	return []Record{{ID: "r1"}}, nil
}

func (f *flakyStore) GetRecord(_ context.Context, _ model.Collection, id string) (Record, error) {
	if err := f.attempt(); err != nil {
		return Record{}, err
	}
	return Record{ID: id}, nil
}

func (f *flakyStore) UpdateRecord(_ context.Context, _ model.Collection, id string, fields map[string]any, _ string) (Record, error) {
	if err := f.attempt(); err != nil {
		return Record{}, err
	}
	return Record{ID: id, Fields: fields}, nil
}

func newTestRetry(next Store, attempts int) *retryStore {
	rs := WithRetry(next, attempts).(*retryStore)
	rs.sleep = func(time.Duration) {}
	return rs
}

func TestRetryRecoversFromTransientFailures(t *testing.T) {
	flaky := &flakyStore{failures: 2}
	rs := newTestRetry(flaky, 3)

	rec, err := rs.CreateRecord(context.Background(), model.CollectionResponses, map[string]any{"score": 8})
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if rec.ID != "r1" {
		t.Errorf("expected record r1, got %q", rec.ID)
	}
	if flaky.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", flaky.calls)
	}
}

func TestRetryGivesUpAfterBudget(t *testing.T) {
	flaky := &flakyStore{failures: 10}
	rs := newTestRetry(flaky, 3)

	_, err := rs.QueryRecords(context.Background(), model.CollectionStudents)
	if !IsUnavailable(err) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
	if flaky.calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", flaky.calls)
	}
}

func TestRetryDoesNotRetryPermanentErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"not found", ErrNotFound},
		{"conflict", ErrConflict},
		{"arbitrary", errors.New("schema mismatch")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flaky := &flakyStore{permErr: tt.err}
			rs := newTestRetry(flaky, 3)

			_, err := rs.GetRecord(context.Background(), model.CollectionQuestions, "q1")
			if !errors.Is(err, tt.err) {
				t.Fatalf("expected %v, got %v", tt.err, err)
			}
			if flaky.calls != 1 {
				t.Errorf("permanent error retried: %d attempts", flaky.calls)
			}
		})
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	if d := backoffDelay(1); d != 250*time.Millisecond {
		t.Errorf("first delay = %v", d)
	}
	if d := backoffDelay(2); d != 500*time.Millisecond {
		t.Errorf("second delay = %v", d)
	}
	if d := backoffDelay(20); d != 5*time.Second {
		t.Errorf("delay not capped: %v", d)
	}
}
