package normalize

import (
	"encoding/json"
	"regexp"
	"strings"
)

var bulletPrefix = regexp.MustCompile(`^\s*(?:[-*\x{2022}]|\d+[.)])\s*`)

// QueryCandidates extracts a flat list of object-name candidates from a
// query response's free-text answer. It first tries to parse the text
// as a JSON array of strings; if that fails it splits on the first
// separator found among newline, comma, and semicolon, stripping
// bullet/number prefixes and surrounding punctuation from each piece.
func QueryCandidates(queryText string) []string {
	text := strings.TrimSpace(queryText)
	if text == "" {
		return nil
	}

	if candidates, ok := parseJSONArray(text); ok {
		return cleanAll(candidates)
	}

	text = strings.ReplaceAll(text, "\r", "\n")
	parts := []string{text}
	for _, sep := range []string{"\n", ",", ";"} {
		if strings.Contains(text, sep) {
			parts = strings.Split(text, sep)
			break
		}
	}
	return cleanAll(parts)
}

func parseJSONArray(text string) ([]string, bool) {
	var raw []any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}

func cleanAll(parts []string) []string {
	var out []string
	for _, p := range parts {
		c := cleanCandidate(p)
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func cleanCandidate(s string) string {
	s = bulletPrefix.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'.`)
	s = strings.TrimSpace(s)
	return s
}
