package model

import "time"

// Collection names the logical record collections in the external store.
// The concrete collection (database) ids behind them come from Config.
type Collection string

const (
	CollectionStudents  Collection = "students"
	CollectionQuestions Collection = "questions"
	CollectionResponses Collection = "responses"
	CollectionReports   Collection = "reports"
)

// DuplicatePolicy decides what happens when a response for the same
// student/question pair already exists.
type DuplicatePolicy string

const (
	// DuplicateAppend records every accepted submission as a new response.
	DuplicateAppend DuplicatePolicy = "append"
	// DuplicateSupersede updates the existing response in place.
	DuplicateSupersede DuplicatePolicy = "supersede"
)

// Student is reference data provisioned out-of-band. Looked up, never mutated.
type Student struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Question is reference data: a single test question with its maximum score.
type Question struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	TestName string `json:"test_name,omitempty"`
	MaxScore int    `json:"max_score"`
}

// ScoreEntry is one raw form submission as the caller hands it over.
// Score is a pointer so that an absent score is distinguishable from zero.
type ScoreEntry struct {
	StudentName   string `json:"student" validate:"required"`
	QuestionLabel string `json:"question" validate:"required"`
	Score         *int   `json:"score" validate:"required"`
	Comment       string `json:"comment,omitempty"`
	// EnteredBy is an opaque identity token supplied by the caller.
	// It is recorded verbatim and never interpreted here.
	EnteredBy string `json:"entered_by,omitempty"`
}

// ValidatedScoreEntry is a ScoreEntry whose references resolved and whose
// score passed the range check against the question's maximum.
type ValidatedScoreEntry struct {
	Student   Student
	Question  Question
	Score     int
	Comment   string
	EnteredBy string
}

// ResponseRecord is the persisted result of one accepted ScoreEntry. It
// references Student and Question by id; it does not own them.
type ResponseRecord struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"student_id"`
	QuestionID string    `json:"question_id"`
	Score      int       `json:"score"`
	Comment    string    `json:"comment,omitempty"`
	EnteredBy  string    `json:"entered_by,omitempty"`
	EnteredAt  time.Time `json:"entered_at"`
}

// ReportAggregate is the per-student rollup derived from response records.
// It is never the source of truth: Total and Count are always recomputed
// from the full response set before being written back.
type ReportAggregate struct {
	RecordID  string `json:"record_id,omitempty"`
	StudentID string `json:"student_id"`
	Total     int    `json:"total"`
	Count     int    `json:"count"`
	Version   string `json:"-"`
}

// Config carries everything the pipeline needs from the environment,
// constructed once in main and passed down. No component reads globals.
type Config struct {
	Backend string // "notion" or "sqlite"

	// Notion backend.
	NotionToken  string
	StudentsDB   string
	QuestionsDB  string
	ResponsesDB  string
	ReportsDB    string
	AdminUserID  string // mentioned in the completion comment; empty disables it
	NotionAPIURL string // override for tests; empty means the public API

	// Sqlite backend.
	DBPath string

	Duplicates    DuplicatePolicy
	RetryAttempts int
	Lang          string
}

// CollectionID maps a logical collection to its configured external id.
func (c *Config) CollectionID(col Collection) string {
	switch col {
	case CollectionStudents:
		return c.StudentsDB
	case CollectionQuestions:
		return c.QuestionsDB
	case CollectionResponses:
		return c.ResponsesDB
	case CollectionReports:
		return c.ReportsDB
	}
	return ""
}
