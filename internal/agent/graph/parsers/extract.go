package parsers

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	logx "github.com/pediatric-ir/answerline/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen  = 64 * 1024 // 64KB of model output is already garbage
	maxArgValueLen = 4 * 1024
	maxRewriteLen  = 300 // beyond this a "rewrite" is an essay, not a query
)

// ToolCallIntent is the manual-mode tool request recovered from prose.
type ToolCallIntent struct {
	Tool      string
	Arguments map[string]string
}

var (
	fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	sourceLineRe  = regexp.MustCompile(`(?mi)^source:\s*(.+)$`)
	yesTokenRe    = regexp.MustCompile(`(?i)\byes\b`)
	noTokenRe     = regexp.MustCompile(`(?i)\bno\b`)
	quotedRe      = regexp.MustCompile(`"([^"]{3,})"`)
	mdEmphasisRe  = regexp.MustCompile(`[*_]{1,3}`)
	mdHeaderRe    = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	bulletRe      = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+[.)])\s+`)
)

// rewritePreambles are labels models like to prepend despite instructions.
var rewritePreambles = []string{
	"rewritten question:",
	"rewritten query:",
	"improved question:",
	"search query:",
	"search keywords:",
	"keywords:",
	"query:",
	"answer:",
}

// ExtractToolCall recovers a single {"tool": ..., "arguments": {...}} object
// from free-form model output. It tries a fenced code block first, then the
// first balanced bare object. Returns false when the reply should be treated
// as plain prose.
func ExtractToolCall(content string) (intent *ToolCallIntent, ok bool) {
	// panic safety: this runs on arbitrary model output
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "toolcall_parser").Msgf("panic recovered: %v", r)
			intent = nil
			ok = false
		}
	}()

	if len(content) > maxContentLen {
		content = content[:maxContentLen]
	}

	if m := fencedBlockRe.FindStringSubmatch(content); len(m) == 2 {
		if tc := decodeToolCall(m[1]); tc != nil {
			return tc, true
		}
	}
	if raw := firstBalancedObject(content); raw != "" {
		if tc := decodeToolCall(raw); tc != nil {
			return tc, true
		}
	}
	return nil, false
}

func decodeToolCall(raw string) *ToolCallIntent {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil
	}
	name, _ := obj["tool"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	args := map[string]string{}
	if rawArgs, ok := obj["arguments"].(map[string]any); ok {
		for k, v := range rawArgs {
			var s string
			switch vv := v.(type) {
			case string:
				s = vv
			case nil:
				continue
			default:
				// coerce numbers/bools to their textual form
				s = fmt.Sprint(vv)
			}
			s = strings.TrimSpace(s)
			if len(s) > maxArgValueLen {
				s = s[:maxArgValueLen]
			}
			args[k] = s
		}
	}
	return &ToolCallIntent{Tool: name, Arguments: args}
}

// firstBalancedObject returns the first top-level {...} span, honoring JSON
// string escaping so braces inside values do not truncate the object.
func firstBalancedObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// ParseGrade interprets a yes/no relevance reply. ok is false when neither
// token is present, so the caller can apply its fail-open default.
func ParseGrade(content string) (relevant bool, ok bool) {
	hasYes := yesTokenRe.MatchString(content)
	hasNo := noTokenRe.MatchString(content)
	switch {
	case hasYes && !hasNo:
		return true, true
	case hasNo:
		return false, true
	default:
		return false, false
	}
}

// ExtractSourceTitle pulls an optional "Source: ..." header out of a tool
// result. Tools that format results differently simply yield "".
func ExtractSourceTitle(toolResult string) string {
	if m := sourceLineRe.FindStringSubmatch(toolResult); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// CleanRewrite reduces raw rewriter output to a single search-oriented
// query. Cleanup order: quoted substring, markdown stripping, preamble
// stripping, first line. When the remainder still reads like an explanation
// the first question-bearing sentence wins; when nothing usable remains the
// original question is returned unchanged.
func CleanRewrite(raw, original string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return original
	}
	if len(raw) > maxContentLen {
		raw = raw[:maxContentLen]
	}

	if m := quotedRe.FindStringSubmatch(raw); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}

	cleaned := mdHeaderRe.ReplaceAllString(raw, "")
	cleaned = bulletRe.ReplaceAllString(cleaned, "")
	cleaned = mdEmphasisRe.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)

	lower := strings.ToLower(cleaned)
	for _, p := range rewritePreambles {
		if idx := strings.Index(lower, p); idx >= 0 {
			cleaned = strings.TrimSpace(cleaned[idx+len(p):])
			lower = strings.ToLower(cleaned)
			break
		}
	}

	if idx := strings.IndexByte(cleaned, '\n'); idx >= 0 {
		cleaned = strings.TrimSpace(cleaned[:idx])
	}

	if looksExplanatory(cleaned) {
		if q := firstQuestionSentence(raw); q != "" {
			return q
		}
	}
	if cleaned == "" {
		return original
	}
	return cleaned
}

func looksExplanatory(s string) bool {
	if len(s) > maxRewriteLen {
		return true
	}
	lower := strings.ToLower(s)
	for _, w := range []string{"rationale", "explanation", "reasoning", "here is", "here's"} {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func firstQuestionSentence(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(mdEmphasisRe.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		if idx := strings.IndexRune(line, '?'); idx >= 0 {
			// back up to the previous sentence terminator, if any
			start := 0
			for i := idx - 1; i >= 0; i-- {
				if line[i] == '.' || line[i] == '!' || line[i] == '?' {
					start = i + 1
					break
				}
			}
			return strings.TrimSpace(line[start : idx+1])
		}
	}
	return ""
}
