package parsers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractToolCall_FencedBlock(t *testing.T) {
	content := "Sure, let me look that up.\n```json\n{\"tool\": \"search_documents\", \"arguments\": {\"query\": \"PICC line care\"}}\n```\n"

	intent, ok := ExtractToolCall(content)
	require.True(t, ok)
	assert.Equal(t, "search_documents", intent.Tool)
	assert.Equal(t, "PICC line care", intent.Arguments["query"])
}

func TestExtractToolCall_BareObject(t *testing.T) {
	content := `I will search. {"tool": "similar_passages", "arguments": {"query": "sedation recovery", "max_results": 3}} Done.`

	intent, ok := ExtractToolCall(content)
	require.True(t, ok)
	assert.Equal(t, "similar_passages", intent.Tool)
	assert.Equal(t, "sedation recovery", intent.Arguments["query"])
	// non-string argument values are coerced to text
	assert.Equal(t, "3", intent.Arguments["max_results"])
}

func TestExtractToolCall_BracesInsideStrings(t *testing.T) {
	content := `{"tool": "search_documents", "arguments": {"query": "what does {embolization} mean"}}`

	intent, ok := ExtractToolCall(content)
	require.True(t, ok)
	assert.Equal(t, "what does {embolization} mean", intent.Arguments["query"])
}

func TestExtractToolCall_PlainProse(t *testing.T) {
	for _, content := range []string{
		"A PICC line is a thin flexible tube placed in a vein.",
		"",
		"{not valid json at all",
		`{"arguments": {"query": "missing tool key"}}`,
		`{"tool": "   "}`,
	} {
		_, ok := ExtractToolCall(content)
		assert.False(t, ok, "content %q should parse as prose", content)
	}
}

func TestExtractToolCall_FencedBlockWinsOverBareObject(t *testing.T) {
	content := "{\"tool\": \"wrong_one\"} ignore that\n```json\n{\"tool\": \"search_documents\", \"arguments\": {}}\n```"

	intent, ok := ExtractToolCall(content)
	require.True(t, ok)
	assert.Equal(t, "search_documents", intent.Tool)
}

func TestExtractToolCall_OversizedInput(t *testing.T) {
	content := `{"tool": "search_documents", "arguments": {"query": "x"}}` + strings.Repeat("a", maxContentLen)

	intent, ok := ExtractToolCall(content)
	require.True(t, ok)
	assert.Equal(t, "search_documents", intent.Tool)
}

func TestParseGrade(t *testing.T) {
	cases := []struct {
		content  string
		relevant bool
		ok       bool
	}{
		{"yes", true, true},
		{"Yes.", true, true},
		{"YES, the document answers the question", true, true},
		{"no", false, true},
		{"No, it is about a different procedure.", false, true},
		// ambiguous replies containing both tokens are graded "no"
		{"yes and no", false, true},
		{"maybe", false, false},
		{"", false, false},
		// token must stand alone; "nothing" does not contain a verdict
		{"nothing relevant here, honestly", false, false},
	}
	for _, tc := range cases {
		relevant, ok := ParseGrade(tc.content)
		assert.Equal(t, tc.ok, ok, "content %q", tc.content)
		assert.Equal(t, tc.relevant, relevant, "content %q", tc.content)
	}
}

func TestExtractSourceTitle(t *testing.T) {
	doc := "Source: PICC Line Home Care (patient-handouts)\nA PICC line is a thin tube..."
	assert.Equal(t, "PICC Line Home Care (patient-handouts)", ExtractSourceTitle(doc))

	assert.Equal(t, "", ExtractSourceTitle("no header in this result"))

	// header match is anchored to line start
	assert.Equal(t, "", ExtractSourceTitle("the source: of the bleeding"))
}

func TestCleanRewrite_QuotedSubstring(t *testing.T) {
	raw := `Here is a better query: "PICC line dressing change frequency"`
	assert.Equal(t, "PICC line dressing change frequency", CleanRewrite(raw, "original"))
}

func TestCleanRewrite_StripsMarkdownAndPreamble(t *testing.T) {
	raw := "### Rewritten question: **PICC line flushing schedule**"
	assert.Equal(t, "PICC line flushing schedule", CleanRewrite(raw, "original"))
}

func TestCleanRewrite_FirstLineOnly(t *testing.T) {
	raw := "PICC line shower precautions\nThe above keeps the medical terms from the question."
	assert.Equal(t, "PICC line shower precautions", CleanRewrite(raw, "original"))
}

func TestCleanRewrite_ExplanatoryFallsBackToQuestionSentence(t *testing.T) {
	raw := "Here is my reasoning about the query. What supplies are needed for a PICC dressing change? That should retrieve better passages."
	assert.Equal(t, "What supplies are needed for a PICC dressing change?", CleanRewrite(raw, "original"))
}

func TestCleanRewrite_EmptyReturnsOriginal(t *testing.T) {
	assert.Equal(t, "original question", CleanRewrite("", "original question"))
	assert.Equal(t, "original question", CleanRewrite("   \n  ", "original question"))
}
