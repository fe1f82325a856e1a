package knowledgebase

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var (
	codeFence     = regexp.MustCompile("```(?:json)?\\s*")
	firstObject   = regexp.MustCompile(`\{[\s\S]*\}`)
	firstArray    = regexp.MustCompile(`\[[\s\S]*\]`)
	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)
	bareKey       = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s*:`)
	controlChars  = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	smartDouble   = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
)

var errNoJSON = errors.New("no JSON found in model output")

func stripFences(text string) string {
	return strings.TrimSpace(codeFence.ReplaceAllString(text, ""))
}

// repairJSON fixes the mistakes models commonly make: trailing commas,
// unquoted keys, typographic quotes and raw control characters.
func repairJSON(s string) string {
	s = smartDouble.Replace(s)
	s = controlChars.ReplaceAllString(s, "")
	s = trailingComma.ReplaceAllString(s, "$1")
	s = bareKey.ReplaceAllString(s, `$1"$2":`)
	return s
}

// decodeObject finds the JSON object in text and decodes it into v, trying
// a repaired copy when the first attempt fails.
func decodeObject(text string, v any) error {
	return decodeMatch(firstObject, text, v)
}

func decodeArray(text string, v any) error {
	return decodeMatch(firstArray, text, v)
}

func decodeMatch(re *regexp.Regexp, text string, v any) error {
	m := re.FindString(stripFences(text))
	if m == "" {
		return errNoJSON
	}
	if err := json.Unmarshal([]byte(m), v); err == nil {
		return nil
	}
	return json.Unmarshal([]byte(repairJSON(m)), v)
}
