package llmgateway

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// RobustParseObject recovers a JSON object from LLM output text using a
// layered strategy: locate the outermost object span, try a direct parse,
// try a repaired parse, and finally regex-extract known keys. It never
// returns an error — total failure yields a nil map.
func RobustParseObject(text string) map[string]any {
	span := outermostSpan(text, '{', '}')
	if span == "" {
		span = text
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(span), &obj); err == nil {
		return obj
	}

	repaired := repairJSON(span)
	if err := json.Unmarshal([]byte(repaired), &obj); err == nil {
		return obj
	}

	if extracted := regexExtractObject(text); extracted != nil {
		return extracted
	}
	return nil
}

// RobustParseArray is RobustParseObject's array-typed counterpart, used for
// question-extraction and classification responses.
func RobustParseArray(text string) []map[string]any {
	span := outermostSpan(text, '[', ']')
	if span == "" {
		span = text
	}

	var arr []map[string]any
	if err := json.Unmarshal([]byte(span), &arr); err == nil {
		return arr
	}

	repaired := repairJSON(span)
	if err := json.Unmarshal([]byte(repaired), &arr); err == nil {
		return arr
	}

	return nil
}

// outermostSpan returns the substring from the first occurrence of open to
// the last occurrence of close, inclusive, or "" if either is absent or
// out of order.
func outermostSpan(text string, open, close byte) string {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start < 0 || end < start {
		return ""
	}
	return text[start : end+1]
}

var (
	fencePattern        = regexp.MustCompile("(?m)^```(?:json)?\\s*|```\\s*$")
	trailingCommaPattern = regexp.MustCompile(`,(\s*[}\]])`)
	pythonTruePattern   = regexp.MustCompile(`\bTrue\b`)
	pythonFalsePattern  = regexp.MustCompile(`\bFalse\b`)
	pythonNonePattern   = regexp.MustCompile(`\bNone\b`)
	controlCharsPattern = regexp.MustCompile(`[\x00-\x1f\x7f-\x9f]`)
	missingCommaPattern = regexp.MustCompile(`"(\s+)("[^"]+"\s*:)`)
	unescapedQuotePattern = regexp.MustCompile(`(?:^|[^\\])"`)
)

// repairJSON applies a sequence of tolerant string-level fixes to text that
// looks like JSON but was produced by an LLM: markdown fences, trailing
// commas, Python literal spellings, stray control characters, missing
// commas between adjacent key-value pairs, and escape-sequence cleanup.
func repairJSON(text string) string {
	s := fencePattern.ReplaceAllString(text, "")
	s = trailingCommaPattern.ReplaceAllString(s, "$1")
	s = pythonTruePattern.ReplaceAllString(s, "true")
	s = pythonFalsePattern.ReplaceAllString(s, "false")
	s = pythonNonePattern.ReplaceAllString(s, "null")
	s = controlCharsPattern.ReplaceAllString(s, "")
	s = missingCommaPattern.ReplaceAllString(s, `",$1$2`)

	if !hasUnescapedDoubleQuote(s) {
		s = strings.ReplaceAll(s, "'", `"`)
	}

	s = fixEscapes(s)
	return strings.TrimSpace(s)
}

func hasUnescapedDoubleQuote(s string) bool {
	return unescapedQuotePattern.MatchString(s)
}

// fixEscapes walks the string and doubles any backslash that does not
// begin a standard JSON escape sequence, so the result is a valid JSON
// string body even if the source had stray backslashes.
func fixEscapes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '\\' || i == len(runes)-1 {
			b.WriteRune(r)
			continue
		}
		next := runes[i+1]
		switch next {
		case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
			b.WriteRune(r)
			b.WriteRune(next)
			i++
		case 'u':
			if i+5 < len(runes) && isHex(runes[i+2:i+6]) {
				b.WriteRune(r)
				b.WriteRune(next)
				for j := i + 2; j < i+6; j++ {
					b.WriteRune(runes[j])
				}
				i += 5
			} else {
				b.WriteString(`\\`)
			}
		default:
			b.WriteString(`\\`)
			b.WriteRune(next)
			i++
		}
	}
	return b.String()
}

func isHex(rs []rune) bool {
	for _, r := range rs {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

var (
	scorePattern          = regexp.MustCompile(`"score"\s*:\s*(\d+(?:\.\d+)?)`)
	passedPattern         = regexp.MustCompile(`"passed"\s*:\s*(true|false)`)
	recommendationPattern = regexp.MustCompile(`"recommendation"\s*:\s*"([^"]*)"`)
	issuesPattern         = regexp.MustCompile(`"issues"\s*:\s*\[([^\]]*)\]`)
)

// regexExtractObject is the last-resort strategy for the validation
// response shape: pull out score/passed/issues/recommendation by regex
// even when the rest of the payload is unparseable. passed is inferred
// from score (>=70) when absent. Returns nil if nothing was extractable.
func regexExtractObject(text string) map[string]any {
	out := map[string]any{}

	if m := scorePattern.FindStringSubmatch(text); m != nil {
		if score, err := strconv.ParseFloat(m[1], 64); err == nil {
			out["score"] = score
		}
	}
	if m := recommendationPattern.FindStringSubmatch(text); m != nil {
		out["recommendation"] = m[1]
	}
	if m := issuesPattern.FindStringSubmatch(text); m != nil {
		var issues []string
		for _, part := range strings.Split(m[1], ",") {
			part = strings.Trim(strings.TrimSpace(part), `"`)
			if part != "" {
				issues = append(issues, part)
			}
		}
		out["issues"] = issues
	}

	if m := passedPattern.FindStringSubmatch(text); m != nil {
		out["passed"] = m[1] == "true"
	} else if score, ok := out["score"].(float64); ok {
		out["passed"] = score >= 70
	}

	if len(out) == 0 {
		return nil
	}
	return out
}
