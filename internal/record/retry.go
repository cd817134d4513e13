package record

import (
	"context"
	"log/slog"
	"time"

	"github.com/windtest/scoreentry/internal/model"
)

// retryStore decorates a Store with bounded retry on transient failures.
// Permanent errors (not found, conflict, anything non-transient) pass
// through untouched on the first attempt.
type retryStore struct {
	next     Store
	attempts int
	sleep    func(time.Duration)
}

// WithRetry wraps next so every operation retries UnavailableError up to
// attempts times with exponential backoff. attempts < 1 is treated as 1.
func WithRetry(next Store, attempts int) Store {
	if attempts < 1 {
		attempts = 1
	}
	return &retryStore{next: next, attempts: attempts, sleep: time.Sleep}
}

func backoffDelay(attempt int) time.Duration {
	d := 250 * time.Millisecond << (attempt - 1)
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func (s *retryStore) do(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		err = fn()
		if err == nil || !IsUnavailable(err) {
			return err
		}
		if attempt == s.attempts {
			break
		}
		delay := backoffDelay(attempt)
		slog.Warn("store unavailable, retrying", "op", op, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.sleep(delay)
	}
	return err
}

func (s *retryStore) CreateRecord(ctx context.Context, collection model.Collection, fields map[string]any) (Record, error) {
	var rec Record
	err := s.do(ctx, "create", func() error {
		var err error
		rec, err = s.next.CreateRecord(ctx, collection, fields)
		return err
	})
	return rec, err
}

func (s *retryStore) QueryRecords(ctx context.Context, collection model.Collection, filters ...Filter) ([]Record, error) {
	var recs []Record
	err := s.do(ctx, "query", func() error {
		var err error
		recs, err = s.next.QueryRecords(ctx, collection, filters...)
		return err
	})
	return recs, err
}

func (s *retryStore) GetRecord(ctx context.Context, collection model.Collection, id string) (Record, error) {
	var rec Record
	err := s.do(ctx, "get", func() error {
		var err error
		rec, err = s.next.GetRecord(ctx, collection, id)
		return err
	})
	return rec, err
}

func (s *retryStore) UpdateRecord(ctx context.Context, collection model.Collection, id string, fields map[string]any, ifVersion string) (Record, error) {
	var rec Record
	err := s.do(ctx, "update", func() error {
		var err error
		rec, err = s.next.UpdateRecord(ctx, collection, id, fields, ifVersion)
		return err
	})
	return rec, err
}

// Notify passes through to the wrapped store when it supports notification.
// Notifications are best-effort, so they are not retried.
func (s *retryStore) Notify(ctx context.Context, recordID, message string) error {
	if n, ok := s.next.(Notifier); ok {
		return n.Notify(ctx, recordID, message)
	}
	return nil
}
