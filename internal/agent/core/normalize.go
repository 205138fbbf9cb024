package core

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Normalize turns raw LLM text into parsed JSON, tolerating the formatting
// noise models produce: reasoning tags, code fences, stray prose around the
// payload, and common JSON syntax mistakes. Strategies are tried in order
// and the first successful parse wins. If every strategy fails, a
// *NormalizationError carrying the original text is returned; callers
// forward it to the validation gate rather than aborting.
func Normalize(raw string) (map[string]interface{}, error) {
	text := stripThinkTags(raw)
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &NormalizationError{Raw: raw, Err: fmt.Errorf("empty response")}
	}

	candidates := make([]string, 0, 3)
	if block := largestFencedBlock(text); block != "" {
		candidates = append(candidates, block)
	}
	candidates = append(candidates, text)
	if braced := largestBracedSubstring(text); braced != "" {
		candidates = append(candidates, braced)
	}

	var lastErr error
	for _, candidate := range candidates {
		parsed, err := parseObject(candidate)
		if err == nil {
			return parsed, nil
		}
		lastErr = err
	}

	// Strict parsing failed everywhere; repair the candidates and retry.
	for _, candidate := range candidates {
		parsed, err := parseObject(repairJSONSyntax(candidate))
		if err == nil {
			return parsed, nil
		}
		lastErr = err
	}

	return nil, &NormalizationError{Raw: raw, Err: lastErr}
}

func parseObject(s string) (map[string]interface{}, error) {
	var parsed map[string]interface{}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(&parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}

var thinkTagRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// stripThinkTags removes reasoning-model scratchpad sections before any
// JSON extraction is attempted.
func stripThinkTags(s string) string {
	return thinkTagRe.ReplaceAllString(s, "")
}

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// largestFencedBlock returns the longest fenced code block body, or "" when
// the text carries no complete fence. Models sometimes emit several blocks;
// the longest one is almost always the payload.
func largestFencedBlock(s string) string {
	matches := fencedBlockRe.FindAllStringSubmatch(s, -1)
	best := ""
	for _, m := range matches {
		body := strings.TrimSpace(m[1])
		if len(body) > len(best) {
			best = body
		}
	}
	return best
}

// largestBracedSubstring returns the largest balanced {...} span in s,
// scanning with a depth counter that is string- and escape-aware.
func largestBracedSubstring(s string) string {
	best := ""
	for i := 0; i < len(s); i++ {
		if s[i] != '{' {
			continue
		}
		depth := 0
		inString := false
		escaped := false
		for j := i; j < len(s); j++ {
			c := s[j]
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
						if j+1-i > len(best) {
							best = s[i : j+1]
						}
						j = len(s)
					}
				}
			}
		}
	}
	return best
}

var (
	singleQuotedKeyRe   = regexp.MustCompile(`([{,]\s*)'([^']*)'(\s*:)`)
	singleQuotedValueRe = regexp.MustCompile(`(:\s*)'([^']*)'(\s*[,}\]])`)
	trailingCommaRe     = regexp.MustCompile(`,(\s*[}\]])`)
	lineCommentRe       = regexp.MustCompile(`(?m)^\s*//.*$`)
	inlineCommentRe     = regexp.MustCompile(`(?m)([}\]",\d])\s*//[^"\n]*$`)
)

// repairJSONSyntax applies the ordered textual repairs that recover the
// most common model mistakes: single-quoted keys and string values,
// trailing commas before a closing bracket, and // line comments. Each
// repair is a pure rewrite; applying them to already-valid JSON is a
// no-op.
func repairJSONSyntax(s string) string {
	s = lineCommentRe.ReplaceAllString(s, "")
	s = inlineCommentRe.ReplaceAllString(s, "$1")
	s = singleQuotedKeyRe.ReplaceAllString(s, `$1"$2"$3`)
	s = singleQuotedValueRe.ReplaceAllString(s, `$1"$2"$3`)
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	return s
}
