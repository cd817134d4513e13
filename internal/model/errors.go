package model

import (
	"fmt"
	"strings"
)

// MissingFieldError reports a required field absent from a submission.
// Never retried; surfaced to the user verbatim.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

// RangeError reports a raw score outside [0, max] for the target question.
type RangeError struct {
	Score int
	Max   int
	Label string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("score %d out of range [0, %d] for question %q", e.Score, e.Max, e.Label)
}

// NotFoundError reports a human-entered reference that matched no record.
type NotFoundError struct {
	Collection Collection
	Name       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s record matches %q", e.Collection, e.Name)
}

// AmbiguousReferenceError reports a reference matching more than one record.
// The resolver never picks a match silently; the candidates are listed so
// the user can disambiguate.
type AmbiguousReferenceError struct {
	Collection Collection
	Name       string
	Candidates []string
}

func (e *AmbiguousReferenceError) Error() string {
	return fmt.Sprintf("%q matches %d %s records: %s",
		e.Name, len(e.Candidates), e.Collection, strings.Join(e.Candidates, ", "))
}

// PartialSubmissionError reports that the response record was written but the
// report aggregate update failed. ResponseID identifies the record already
// created so a follow-up can complete the aggregate step without re-running
// the response write (which would duplicate it).
type PartialSubmissionError struct {
	ResponseID string
	StudentID  string
	Cause      error
}

func (e *PartialSubmissionError) Error() string {
	return fmt.Sprintf("response %s recorded but report update failed: %v", e.ResponseID, e.Cause)
}

func (e *PartialSubmissionError) Unwrap() error { return e.Cause }
