package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
)

var (
	jsonBlockPattern      = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	jsonObjectPattern     = regexp.MustCompile(`(?s)\{.*\}`)
	jsonArrayBlockPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\[.*\\])\\s*```")
	jsonArrayPattern      = regexp.MustCompile(`(?s)\[.*\]`)
	trailingCommaPattern  = regexp.MustCompile(`,\s*([}\]])`)
)

// decodeObject pulls the JSON object out of a model answer into v.
func decodeObject(answer string, v any) error {
	raw := ""
	if m := jsonBlockPattern.FindStringSubmatch(answer); len(m) > 1 {
		raw = m[1]
	} else {
		raw = jsonObjectPattern.FindString(answer)
	}
	if raw == "" {
		return fmt.Errorf("no json object in answer")
	}
	if err := json.Unmarshal([]byte(trailingCommaPattern.ReplaceAllString(raw, "$1")), v); err != nil {
		return fmt.Errorf("decode json object: %w", err)
	}
	return nil
}

// decodeArray pulls the JSON array out of a model answer into v.
func decodeArray(answer string, v any) error {
	raw := ""
	if m := jsonArrayBlockPattern.FindStringSubmatch(answer); len(m) > 1 {
		raw = m[1]
	} else {
		raw = jsonArrayPattern.FindString(answer)
	}
	if raw == "" {
		return fmt.Errorf("no json array in answer")
	}
	if err := json.Unmarshal([]byte(trailingCommaPattern.ReplaceAllString(raw, "$1")), v); err != nil {
		return fmt.Errorf("decode json array: %w", err)
	}
	return nil
}
