package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/pediatric-ir/answerline/internal/agent/embed"
	"github.com/pediatric-ir/answerline/internal/agent/graph/conversations"
	"github.com/pediatric-ir/answerline/internal/agent/graph/guards"
	"github.com/pediatric-ir/answerline/internal/agent/graph/nodes"
	"github.com/pediatric-ir/answerline/internal/agent/graph/observers"
	"github.com/pediatric-ir/answerline/internal/agent/graph/prompts"
	"github.com/pediatric-ir/answerline/internal/agent/graph/tools"
	"github.com/pediatric-ir/answerline/internal/agent/model"
	logx "github.com/pediatric-ir/answerline/pkg/logger"
)

// Runner is a thin wrapper to execute the compiled graph with the public QueryInput.
type Runner interface {
	Invoke(ctx context.Context, in model.QueryInput) (string, error)
}

// Config holds everything needed to compose the full answer graph end-to-end.
// This is a convenience layer over GraphConfig that also constructs the chat
// models and the messages manager.
type Config struct {
	APIKey  string
	BaseURL string

	DecisionModel model.DecisionModelConfig
	UtilityModel  model.UtilityModelConfig
	AnswerModel   model.AnswerModelConfig
	Conversation  model.ConversationConfig
	Retrieval     model.RetrievalConfig
	Safety        model.SafetyConfig

	ConversationRepo model.ConversationRepository
	PassageStore     tools.PassageSearcher
	Embedder         tools.Embedder
}

// GraphConfig holds all configuration needed to build the graph.
type GraphConfig struct {
	ChatModels      *nodes.ChatModels
	MessagesManager *conversations.MessagesManager
	PassageStore    tools.PassageSearcher
	Embedder        tools.Embedder
	Retrieval       model.RetrievalConfig
	Safety          model.SafetyConfig

	RewriteMaxAttempts int
	ToolMaxCalls       int
}

// GraphBuilder handles the construction of the answer graph.
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.QueryInput, *schema.Message]

	// manualSystemPrompt carries the tool catalogue for the non-native
	// decision path; rendered once during setupTools.
	manualSystemPrompt string
}

type graphRunner struct {
	runnable compose.Runnable[model.QueryInput, *schema.Message]
}

func (r *graphRunner) Invoke(ctx context.Context, in model.QueryInput) (string, error) {
	out, err := r.runnable.Invoke(ctx, model.QueryInput{
		ConversationID: in.ConversationID,
		Query:          in.Query,
	}, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		return "", err
	}
	if out == nil {
		return "", nil
	}
	// Best-effort print Extra (e.g., usage_cost) if present
	if len(out.Extra) > 0 {
		if b, err := json.MarshalIndent(out.Extra, "", "  "); err == nil {
			fmt.Printf("Extra: %s\n", string(b))
		}
	}
	return out.Content, nil
}

// BuildAnswerGraph composes chat models and the messages manager, builds the
// graph, and returns a Runner.
func BuildAnswerGraph(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.ConversationRepo == nil {
		return nil, fmt.Errorf("conversation repo is nil")
	}
	if cfg.PassageStore == nil {
		return nil, fmt.Errorf("passage store is nil")
	}

	cms, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		DecisionConfig: &cfg.DecisionModel,
		UtilityConfig:  &cfg.UtilityModel,
		AnswerConfig:   &cfg.AnswerModel,
	})
	if err != nil {
		return nil, err
	}

	mm := conversations.NewMessagesManager(cfg.ConversationRepo)

	embedder := cfg.Embedder
	if embedder == nil {
		embedder = embed.NewGeminiEmbedder(cms.Client, cfg.Retrieval.EmbeddingModel)
	}

	runnable, err := BuildGraph(ctx, &GraphConfig{
		ChatModels:         cms,
		MessagesManager:    mm,
		PassageStore:       cfg.PassageStore,
		Embedder:           embedder,
		Retrieval:          cfg.Retrieval,
		Safety:             cfg.Safety,
		RewriteMaxAttempts: cfg.Conversation.Rewrite.MaxAttempts,
		ToolMaxCalls:       cfg.Conversation.Tools.MaxCalls,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Answer graph built successfully")
	return &graphRunner{runnable: runnable}, nil
}

// BuildGraph constructs and returns the compiled answer graph.
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.ChatModels == nil || config.ChatModels.Decision == nil ||
		config.ChatModels.Utility == nil || config.ChatModels.Answer == nil {
		return nil, fmt.Errorf("chat models are not properly initialized")
	}
	if config.MessagesManager == nil {
		return nil, fmt.Errorf("messages manager is nil")
	}
	if config.PassageStore == nil {
		return nil, fmt.Errorf("passage store is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.QueryInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	if err := builder.setupTools(ctx); err != nil {
		return nil, err
	}

	builder.addNodes()
	builder.addEdges()

	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// setupTools registers the retrieval tools, binds them to the decision model
// and renders the manual-mode catalogue for the fallback path.
func (b *GraphBuilder) setupTools(ctx context.Context) error {
	retrievalTools := tools.WrapFailSafe(
		tools.GetRetrievalTools(b.config.PassageStore, b.config.Embedder, b.config.Retrieval),
	)

	toolInfos, err := tools.GetToolInfos(ctx, retrievalTools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to get tool infos")
		return fmt.Errorf("failed to get tool infos: %w", err)
	}

	if err := b.config.ChatModels.BindToolsToDecisionModel(ctx, toolInfos); err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools to decision model")
		return fmt.Errorf("failed to bind tools to decision model: %w", err)
	}

	catalogue, err := tools.DescribeForPrompt(ctx, retrievalTools)
	if err != nil {
		return fmt.Errorf("failed to describe tools for manual mode: %w", err)
	}
	b.manualSystemPrompt, err = prompts.RenderManualToolCatalogue(ctx, catalogue)
	if err != nil {
		return fmt.Errorf("failed to render manual tool catalogue: %w", err)
	}

	toolsNode, err := compose.NewToolNode(ctx, &compose.ToolsNodeConfig{
		Tools:               retrievalTools,
		ExecuteSequentially: true,
		UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
			// hallucinated or malformed tool names resolve to a failure
			// result the grader treats as a non-answer
			logx.Warn().
				Str("tool_name", name).
				Str("arguments", input).
				Msg("Unknown or invalid tool call; returning fallback result")
			return fmt.Sprintf("{\"error\":\"unknown_tool\",\"name\":%q,\"note\":\"ignored\"}", name), nil
		},
		ToolArgumentsHandler: func(ctx context.Context, name, arguments string) (string, error) {
			// best-effort sanitize; never fail hard here
			var m map[string]any
			if err := json.Unmarshal([]byte(arguments), &m); err != nil {
				return arguments, nil
			}
			if v, ok := m["query"]; ok {
				switch vv := v.(type) {
				case string:
					m["query"] = strings.TrimSpace(vv)
				default:
					m["query"] = strings.TrimSpace(fmt.Sprint(v))
				}
			}
			if v, ok := m["max_results"]; ok {
				if _, isNumber := v.(float64); !isNumber {
					delete(m, "max_results")
				}
			}
			sanitized, err := json.Marshal(m)
			if err != nil {
				return arguments, nil
			}
			return string(sanitized), nil
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Failed to create tools node")
		return fmt.Errorf("failed to create tools node: %w", err)
	}

	b.graph.AddToolsNode(nodes.NodeToolExecutor, toolsNode,
		compose.WithStatePostHandler(nodes.NewToolExecutorPostHandler()),
	)

	return nil
}

// addNodes adds all processing nodes to the graph.
func (b *GraphBuilder) addNodes() {
	rewriteCap := b.config.RewriteMaxAttempts
	cms := b.config.ChatModels

	b.graph.AddLambdaNode(nodes.NodeInputConverter,
		nodes.NewInputConverterNode(b.config.MessagesManager),
		compose.WithStatePreHandler(nodes.NewInputConverterPreHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeEmergencyReply,
		nodes.NewEmergencyReplyNode(),
		compose.WithStatePostHandler(nodes.NewEmergencyReplyPostHandler(b.config.MessagesManager)),
	)

	b.graph.AddLambdaNode(nodes.NodeDecisionModel,
		nodes.NewDecisionNode(cms.DecisionNative, cms.Decision, b.manualSystemPrompt),
		compose.WithStatePreHandler(nodes.NewDecisionPreHandler()),
		compose.WithStatePostHandler(nodes.NewDecisionPostHandler(cms.DecisionModelName)),
	)

	b.graph.AddLambdaNode(nodes.NodeRelevanceGrader,
		nodes.NewRelevanceGraderNode(cms.Utility, b.config.Retrieval, rewriteCap),
		compose.WithStatePostHandler(nodes.NewGraderPostHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeQueryRewriter,
		nodes.NewQueryRewriterNode(cms.Utility, rewriteCap),
		compose.WithStatePreHandler(nodes.NewQueryRewriterPreHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeAnswerGenerator,
		nodes.NewAnswerGeneratorNode(cms.Answer, b.config.Retrieval, cms.AnswerModelName),
		compose.WithStatePostHandler(nodes.NewAnswerGeneratorPostHandler(cms.AnswerModelName)),
	)

	validator := guards.NewSafetyValidator(cms.Utility, b.config.Safety)
	b.graph.AddLambdaNode(nodes.NodeSafetyGate,
		nodes.NewSafetyGateNode(validator),
		compose.WithStatePostHandler(nodes.NewSafetyGatePostHandler(b.config.MessagesManager)),
	)
}

// addEdges creates the unconditional flow connections between nodes.
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, nodes.NodeInputConverter},
		{nodes.NodeEmergencyReply, compose.END},
		{nodes.NodeToolExecutor, nodes.NodeRelevanceGrader},
		{nodes.NodeQueryRewriter, nodes.NodeDecisionModel},
		{nodes.NodeAnswerGenerator, nodes.NodeSafetyGate},
		{nodes.NodeSafetyGate, compose.END},
	}

	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranches creates conditional routing branches.
func (b *GraphBuilder) addBranches() error {
	emergencyBranch := compose.NewGraphBranch(
		nodes.NewEmergencyCondition(),
		map[string]bool{
			nodes.NodeEmergencyReply: true,
			nodes.NodeDecisionModel:  true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeInputConverter, emergencyBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding emergency branch")
		return fmt.Errorf("error adding emergency branch: %w", err)
	}

	decisionBranch := compose.NewGraphBranch(
		nodes.NewDecisionCondition(),
		map[string]bool{
			nodes.NodeToolExecutor: true,
			nodes.NodeSafetyGate:   true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeDecisionModel, decisionBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding decision branch")
		return fmt.Errorf("error adding decision branch: %w", err)
	}

	gradeBranch := compose.NewGraphBranch(
		nodes.NewGradeCondition(),
		map[string]bool{
			nodes.NodeAnswerGenerator: true,
			nodes.NodeQueryRewriter:   true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeRelevanceGrader, gradeBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding grade branch")
		return fmt.Errorf("error adding grade branch: %w", err)
	}

	return nil
}

// compile finalizes and compiles the graph.
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	// The rewrite counter already bounds the retrieval loop; the step cap is
	// the mechanical backstop for everything else.
	rewriteCap := b.config.RewriteMaxAttempts
	if rewriteCap <= 0 {
		rewriteCap = nodes.DefaultRewriteMaxAttempts
	}
	maxSteps := 10 + rewriteCap*6 + b.config.ToolMaxCalls*2
	if maxSteps < 20 {
		maxSteps = 20
	}

	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}
