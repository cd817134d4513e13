package record

// Well-known field names shared between the pipeline and the store
// backends. Backends translate these to their native property schemas.
const (
	FieldName       = "name"
	FieldLabel      = "label"
	FieldTestName   = "test_name"
	FieldMaxScore   = "max_score"
	FieldTitle      = "title"
	FieldStudentID  = "student_id"
	FieldQuestionID = "question_id"
	FieldScore      = "score"
	FieldComment    = "comment"
	FieldEnteredBy  = "entered_by"
	FieldEnteredAt  = "entered_at"
	FieldTotal      = "total"
	FieldCount      = "count"
	FieldStatus     = "status"
	FieldUpdatedAt  = "updated_at"
)

// StatusEntered marks a report whose score entry is complete and which is
// ready for report generation.
const StatusEntered = "entered"
