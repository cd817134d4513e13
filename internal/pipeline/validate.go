package pipeline

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/windtest/scoreentry/internal/model"
)

// Validator checks a submitted entry in two phases: structural (required
// fields present) and referential (score within the question's range).
// It performs no writes and no external calls.
type Validator struct {
	validate *validator.Validate
}

// NewValidator builds the struct validator, reporting errors under JSON
// field names rather than Go ones.
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// Structural rejects entries with absent required fields. A blank-but-present
// string counts as absent; a zero score does not.
func (v *Validator) Structural(entry model.ScoreEntry) error {
	if err := v.validate.Struct(entry); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &model.MissingFieldError{Field: verrs[0].Field()}
		}
		return err
	}
	return nil
}

// Referential rejects scores outside [0, question.MaxScore]. It runs after
// resolution because the maximum lives on the question record.
func (v *Validator) Referential(score int, q model.Question) error {
	if score < 0 || score > q.MaxScore {
		return &model.RangeError{Score: score, Max: q.MaxScore, Label: q.Label}
	}
	return nil
}
