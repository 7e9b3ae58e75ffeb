package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/pediatric-ir/answerline/internal/agent/model"
	logx "github.com/pediatric-ir/answerline/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey         string
	BaseURL        string
	DecisionConfig *model.DecisionModelConfig
	UtilityConfig  *model.UtilityModelConfig
	AnswerConfig   *model.AnswerModelConfig
}

// ChatModels holds the three models the graph runs on. Decision is the
// plain completion interface used by the manual fallback path;
// DecisionNative is the tool-bound variant and stays nil when the provider
// has no native tool calling, which forces manual mode.
type ChatModels struct {
	Decision       einomodel.BaseChatModel
	DecisionNative einomodel.BaseChatModel
	Utility        einomodel.BaseChatModel
	Answer         einomodel.BaseChatModel

	DecisionModelName string
	UtilityModelName  string
	AnswerModelName   string

	Client *genai.Client
}

// NewChatModels creates the decision, utility and answer chat models on a
// shared Gemini client.
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	decision, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.DecisionConfig.Model,
		Temperature: &config.DecisionConfig.Temperature,
		MaxTokens:   &config.DecisionConfig.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating decision model")
		return nil, fmt.Errorf("error creating decision model: %w", err)
	}

	utility, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.UtilityConfig.Model,
		Temperature: &config.UtilityConfig.Temperature,
		MaxTokens:   &config.UtilityConfig.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating utility model")
		return nil, fmt.Errorf("error creating utility model: %w", err)
	}

	answer, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       config.AnswerConfig.Model,
		Temperature: &config.AnswerConfig.Temperature,
		MaxTokens:   &config.AnswerConfig.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating answer model")
		return nil, fmt.Errorf("error creating answer model: %w", err)
	}

	return &ChatModels{
		Decision:          decision,
		Utility:           utility,
		Answer:            answer,
		DecisionModelName: config.DecisionConfig.Model,
		UtilityModelName:  config.UtilityConfig.Model,
		AnswerModelName:   config.AnswerConfig.Model,
		Client:            client,
	}, nil
}

// BindToolsToDecisionModel binds the tool descriptors to the decision
// model when it supports native tool calling. A model without that support
// is not an error: DecisionNative stays nil and the decision node runs in
// manual fallback mode for every turn.
func (cm *ChatModels) BindToolsToDecisionModel(_ context.Context, tools []*schema.ToolInfo) error {
	tcm, ok := cm.Decision.(einomodel.ToolCallingChatModel)
	if !ok {
		logx.Warn().Msg("decision model has no native tool calling; manual fallback mode only")
		return nil
	}
	bound, err := tcm.WithTools(tools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools")
		return fmt.Errorf("failed to bind tools: %w", err)
	}
	cm.DecisionNative = bound
	logx.Debug().Int("tools", len(tools)).Msg("Successfully bound tools to decision model")
	return nil
}
