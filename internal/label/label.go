// Package label handles question labels the way graders write them:
// "1-1", "03", "2" and friends, pasted in bulk or typed one at a time.
package label

import (
	"regexp"
	"strconv"
	"strings"
)

var digitRun = regexp.MustCompile(`[0-9]+|[^0-9]+`)

// Normalize canonicalizes a user-typed label: trims space and strips
// leading zeros so "03" matches a question labeled "3".
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 1 && s[0] == '0' {
		trimmed := strings.TrimLeft(s, "0")
		if trimmed == "" {
			return "0"
		}
		return trimmed
	}
	return s
}

// ParseList splits a bulk-entry string of labels separated by commas,
// semicolons, whitespace, or newlines, normalizing each.
func ParseList(text string) []string {
	if text == "" {
		return nil
	}
	replacer := strings.NewReplacer(",", " ", ";", " ", "\n", " ")
	var labels []string
	for _, part := range strings.Fields(replacer.Replace(text)) {
		labels = append(labels, Normalize(part))
	}
	return labels
}

// NaturalLess orders labels so that embedded numbers compare numerically:
// "1-2" < "1-10" < "2", and "1" < "1-1".
func NaturalLess(a, b string) bool {
	as := digitRun.FindAllString(strings.ToLower(a), -1)
	bs := digitRun.FindAllString(strings.ToLower(b), -1)
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] == bs[i] {
			continue
		}
		an, aerr := strconv.Atoi(as[i])
		bn, berr := strconv.Atoi(bs[i])
		if aerr == nil && berr == nil {
			return an < bn
		}
		return as[i] < bs[i]
	}
	return len(as) < len(bs)
}
