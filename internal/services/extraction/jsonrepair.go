package extraction

import (
	"encoding/json"
	"regexp"
	"strings"
)

// RecoveryStep names the strategy that produced a parsed object
type RecoveryStep string

const (
	RecoveryDirect        RecoveryStep = "direct"
	RecoverySubstring     RecoveryStep = "substring"
	RecoveryRepaired      RecoveryStep = "repaired"
	RecoveryUnrecoverable RecoveryStep = "unrecoverable"
)

var codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// RecoverJSON parses an LLM response into a JSON object, working through
// four strategies: strip code fences, direct parse, brace-balanced substring
// extraction, and minor-error repair (trailing commas, control characters).
// An unrecoverable response yields a nil map, never an error: the caller
// records the failure and moves on.
func RecoverJSON(response string) (map[string]interface{}, RecoveryStep) {
	text := stripCodeFences(response)

	if obj := tryParse(text); obj != nil {
		return obj, RecoveryDirect
	}

	substring := braceBalancedSubstring(text)
	if substring != "" {
		if obj := tryParse(substring); obj != nil {
			return obj, RecoverySubstring
		}
	}

	for _, candidate := range []string{text, substring} {
		if candidate == "" {
			continue
		}
		if obj := tryParse(repairMinorErrors(candidate)); obj != nil {
			return obj, RecoveryRepaired
		}
	}

	return nil, RecoveryUnrecoverable
}

func tryParse(text string) map[string]interface{} {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil
	}
	return obj
}

// stripCodeFences unwraps a ```json ... ``` block when present
func stripCodeFences(text string) string {
	if match := codeFenceRe.FindStringSubmatch(text); match != nil {
		return strings.TrimSpace(match[1])
	}
	return strings.TrimSpace(text)
}

// braceBalancedSubstring returns the first balanced {...} region of text,
// ignoring braces inside JSON strings
func braceBalancedSubstring(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// repairMinorErrors removes trailing commas and strips control characters
// that commonly corrupt LLM-emitted JSON
func repairMinorErrors(text string) string {
	text = trailingCommaRe.ReplaceAllString(text, "$1")

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r < 0x20 && r != '\n' && r != '\t' && r != '\r' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
