package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pediatric-ir/answerline/internal/agent/model"
)

type fakeStore struct {
	keywordQuery string
	keywordLimit int
	semanticVec  []float32
	passages     []model.Passage
	err          error
}

func (s *fakeStore) SearchKeyword(_ context.Context, query string, limit int) ([]model.Passage, error) {
	s.keywordQuery = query
	s.keywordLimit = limit
	return s.passages, s.err
}

func (s *fakeStore) SearchSemantic(_ context.Context, embedding []float32, limit int) ([]model.Passage, error) {
	s.semanticVec = embedding
	return s.passages, s.err
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (e *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return e.vec, e.err
}

func testRetrievalConfig() model.RetrievalConfig {
	return model.RetrievalConfig{MaxResults: 4, SnippetMaxLen: 4000, ContextMaxLen: 16000}
}

func samplePassages() []model.Passage {
	return []model.Passage{
		{ID: "p1", Title: "PICC Line Home Care", Source: "patient-handouts", Content: "A PICC line is a thin flexible tube placed in a vein in the arm."},
		{ID: "p2", Title: "Dressing Changes", Content: "Change the dressing every seven days, or sooner if wet."},
	}
}

func TestKeywordSearchTool_FormatsPassages(t *testing.T) {
	store := &fakeStore{passages: samplePassages()}
	kt := newKeywordSearchTool(store, testRetrievalConfig()).(tool.InvokableTool)

	out, err := kt.InvokableRun(context.Background(), `{"query": "PICC line"}`)
	require.NoError(t, err)

	assert.Equal(t, "PICC line", store.keywordQuery)
	assert.Equal(t, 4, store.keywordLimit)
	assert.Contains(t, out, "Source: PICC Line Home Care (patient-handouts)")
	assert.Contains(t, out, "Source: Dressing Changes\n")
	assert.Contains(t, out, "\n---\n")
	assert.Contains(t, out, "thin flexible tube")
}

func TestKeywordSearchTool_NoResults(t *testing.T) {
	kt := newKeywordSearchTool(&fakeStore{}, testRetrievalConfig()).(tool.InvokableTool)

	out, err := kt.InvokableRun(context.Background(), `{"query": "zzz"}`)
	require.NoError(t, err)
	assert.Equal(t, "No matching passages found.", out)
}

func TestKeywordSearchTool_RejectsMissingQuery(t *testing.T) {
	kt := newKeywordSearchTool(&fakeStore{}, testRetrievalConfig()).(tool.InvokableTool)

	_, err := kt.InvokableRun(context.Background(), `{"query": "   "}`)
	assert.Error(t, err)

	_, err = kt.InvokableRun(context.Background(), `not json`)
	assert.Error(t, err)
}

func TestKeywordSearchTool_ClampsMaxResults(t *testing.T) {
	store := &fakeStore{}
	kt := newKeywordSearchTool(store, testRetrievalConfig()).(tool.InvokableTool)

	_, err := kt.InvokableRun(context.Background(), `{"query": "q", "max_results": 50}`)
	require.NoError(t, err)
	assert.Equal(t, 8, store.keywordLimit)

	_, err = kt.InvokableRun(context.Background(), `{"query": "q", "max_results": -1}`)
	require.NoError(t, err)
	assert.Equal(t, 4, store.keywordLimit)
}

func TestSemanticSearchTool_EmbedsThenSearches(t *testing.T) {
	store := &fakeStore{passages: samplePassages()}
	embedder := &fakeEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	st := newSemanticSearchTool(store, embedder, testRetrievalConfig()).(tool.InvokableTool)

	out, err := st.InvokableRun(context.Background(), `{"query": "the tube in my kid's arm"}`)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, store.semanticVec)
	assert.Contains(t, out, "PICC Line Home Care")
}

func TestSemanticSearchTool_EmbedFailure(t *testing.T) {
	st := newSemanticSearchTool(&fakeStore{}, &fakeEmbedder{err: errors.New("quota")}, testRetrievalConfig()).(tool.InvokableTool)

	_, err := st.InvokableRun(context.Background(), `{"query": "q"}`)
	assert.Error(t, err)
}

func TestWrapFailSafe_ConvertsErrorsToText(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	wrapped := WrapFailSafe(GetRetrievalTools(store, &fakeEmbedder{vec: []float32{1}}, testRetrievalConfig()))
	require.Len(t, wrapped, 2)

	kt := wrapped[0].(tool.InvokableTool)
	out, err := kt.InvokableRun(context.Background(), `{"query": "q"}`)
	require.NoError(t, err)
	assert.Contains(t, out, ToolKeywordSearch)
	assert.Contains(t, out, "failed")
}

func TestGetRetrievalTools_KeywordFirst(t *testing.T) {
	ts := GetRetrievalTools(&fakeStore{}, &fakeEmbedder{}, testRetrievalConfig())
	infos, err := GetToolInfos(context.Background(), ts)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, ToolKeywordSearch, infos[0].Name)
	assert.Equal(t, ToolSemanticSearch, infos[1].Name)
}

func TestDescribeForPrompt_ListsToolsInPreferenceOrder(t *testing.T) {
	ts := GetRetrievalTools(&fakeStore{}, &fakeEmbedder{}, testRetrievalConfig())
	catalogue, err := DescribeForPrompt(context.Background(), ts)
	require.NoError(t, err)

	keywordIdx := strings.Index(catalogue, ToolKeywordSearch)
	semanticIdx := strings.Index(catalogue, ToolSemanticSearch)
	require.GreaterOrEqual(t, keywordIdx, 0)
	require.GreaterOrEqual(t, semanticIdx, 0)
	assert.Less(t, keywordIdx, semanticIdx)
	assert.Contains(t, catalogue, "query (string)")
}
