package embed

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	logx "github.com/pediatric-ir/answerline/pkg/logger"
)

// GeminiEmbedder computes query embeddings through the genai embedding API.
// It embeds search queries only; corpus passages are embedded at ingestion
// time, outside this module.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

func NewGeminiEmbedder(client *genai.Client, model string) *GeminiEmbedder {
	return &GeminiEmbedder{client: client, model: model}
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Models.EmbedContent(ctx, e.model,
		genai.Text(text),
		&genai.EmbedContentConfig{TaskType: "RETRIEVAL_QUERY"},
	)
	if err != nil {
		logx.Error().Err(err).Str("model", e.model).Msg("embedding request failed")
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return resp.Embeddings[0].Values, nil
}
