package notion

import (
	"fmt"

	"github.com/windtest/scoreentry/internal/model"
	"github.com/windtest/scoreentry/internal/record"
)

// propType is a Notion property type this client knows how to read and write.
type propType string

const (
	typeTitle    propType = "title"
	typeRichText propType = "rich_text"
	typeNumber   propType = "number"
	typeSelect   propType = "select"
	typeRelation propType = "relation"
	typeDate     propType = "date"
)

type propSpec struct {
	Name string
	Type propType
}

// schemas maps the pipeline's field names onto the property names the
// original WindTest databases use. The store contract stays generic; all
// Notion-specific naming is confined here.
var schemas = map[model.Collection]map[string]propSpec{
	model.CollectionStudents: {
		record.FieldName: {"이름", typeTitle},
	},
	model.CollectionQuestions: {
		record.FieldLabel:    {"이름", typeTitle},
		record.FieldTestName: {"시험명", typeSelect},
		record.FieldMaxScore: {"배점", typeNumber},
	},
	model.CollectionResponses: {
		record.FieldTitle:      {"이름", typeTitle},
		record.FieldStudentID:  {"학생", typeRelation},
		record.FieldQuestionID: {"문항", typeRelation},
		record.FieldScore:      {"점수", typeNumber},
		record.FieldComment:    {"코멘트", typeRichText},
		record.FieldEnteredBy:  {"입력자", typeRichText},
		record.FieldEnteredAt:  {"응시일", typeDate},
	},
	model.CollectionReports: {
		record.FieldTitle:     {"이름", typeTitle},
		record.FieldStudentID: {"학생", typeRelation},
		record.FieldTotal:     {"총점", typeNumber},
		record.FieldCount:     {"문항 수", typeNumber},
		record.FieldStatus:    {"보고서 상태", typeSelect},
		record.FieldUpdatedAt: {"갱신일", typeDate},
	},
}

// encodeProperties turns flat fields into a Notion properties payload.
func encodeProperties(col model.Collection, fields map[string]any) (map[string]any, error) {
	schema := schemas[col]
	props := make(map[string]any, len(fields))
	for field, value := range fields {
		spec, ok := schema[field]
		if !ok {
			return nil, fmt.Errorf("collection %s has no property for field %q", col, field)
		}
		switch spec.Type {
		case typeTitle:
			props[spec.Name] = map[string]any{
				"title": []any{map[string]any{"text": map[string]any{"content": toString(value)}}},
			}
		case typeRichText:
			props[spec.Name] = map[string]any{
				"rich_text": []any{map[string]any{"text": map[string]any{"content": toString(value)}}},
			}
		case typeNumber:
			props[spec.Name] = map[string]any{"number": value}
		case typeSelect:
			props[spec.Name] = map[string]any{"select": map[string]any{"name": toString(value)}}
		case typeRelation:
			props[spec.Name] = map[string]any{
				"relation": []any{map[string]any{"id": toString(value)}},
			}
		case typeDate:
			props[spec.Name] = map[string]any{"date": map[string]any{"start": toString(value)}}
		}
	}
	return props, nil
}

// decodeProperties turns a Notion page's properties back into flat fields.
func decodeProperties(col model.Collection, props map[string]any) map[string]any {
	schema := schemas[col]
	fields := make(map[string]any, len(schema))
	for field, spec := range schema {
		prop, ok := props[spec.Name].(map[string]any)
		if !ok {
			continue
		}
		switch spec.Type {
		case typeTitle:
			fields[field] = firstTextContent(prop["title"])
		case typeRichText:
			fields[field] = firstTextContent(prop["rich_text"])
		case typeNumber:
			if n, ok := prop["number"].(float64); ok {
				fields[field] = n
			}
		case typeSelect:
			if sel, ok := prop["select"].(map[string]any); ok {
				fields[field], _ = sel["name"].(string)
			}
		case typeRelation:
			if rels, ok := prop["relation"].([]any); ok && len(rels) > 0 {
				if rel, ok := rels[0].(map[string]any); ok {
					fields[field], _ = rel["id"].(string)
				}
			}
		case typeDate:
			if date, ok := prop["date"].(map[string]any); ok {
				fields[field], _ = date["start"].(string)
			}
		}
	}
	return fields
}

// queryFilter builds the Notion filter clause for one equality filter.
func queryFilter(col model.Collection, f record.Filter) (map[string]any, error) {
	spec, ok := schemas[col][f.Field]
	if !ok {
		return nil, fmt.Errorf("collection %s has no property for filter field %q", col, f.Field)
	}
	switch spec.Type {
	case typeTitle:
		return map[string]any{"property": spec.Name, "title": map[string]any{"equals": toString(f.Equals)}}, nil
	case typeRichText:
		return map[string]any{"property": spec.Name, "rich_text": map[string]any{"equals": toString(f.Equals)}}, nil
	case typeNumber:
		return map[string]any{"property": spec.Name, "number": map[string]any{"equals": f.Equals}}, nil
	case typeSelect:
		return map[string]any{"property": spec.Name, "select": map[string]any{"equals": toString(f.Equals)}}, nil
	case typeRelation:
		return map[string]any{"property": spec.Name, "relation": map[string]any{"contains": toString(f.Equals)}}, nil
	case typeDate:
		return map[string]any{"property": spec.Name, "date": map[string]any{"equals": toString(f.Equals)}}, nil
	}
	return nil, fmt.Errorf("unsupported property type %q", spec.Type)
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func firstTextContent(v any) string {
	parts, ok := v.([]any)
	if !ok || len(parts) == 0 {
		return ""
	}
	part, ok := parts[0].(map[string]any)
	if !ok {
		return ""
	}
	if text, ok := part["text"].(map[string]any); ok {
		if content, ok := text["content"].(string); ok {
			return content
		}
	}
	if plain, ok := part["plain_text"].(string); ok {
		return plain
	}
	return ""
}
