package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/pediatric-ir/answerline/internal/agent/graph"
	"github.com/pediatric-ir/answerline/internal/agent/model"
	"github.com/pediatric-ir/answerline/internal/agent/repo"
	"github.com/pediatric-ir/answerline/internal/core"
	logx "github.com/pediatric-ir/answerline/pkg/logger"
	pkgredis "github.com/pediatric-ir/answerline/pkg/redis"
)

// AppConfig defines all configurable parameters for the answer service,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`

	// Infrastructure
	Redis       pkgredis.Config
	PostgresURL string `envconfig:"POSTGRES_URL" required:"true"`

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Decision     model.DecisionModelConfig
	Utility      model.UtilityModelConfig
	Answer       model.AnswerModelConfig
	Conversation model.ConversationConfig
	Retrieval    model.RetrievalConfig
	Safety       model.SafetyConfig
}

func main() {
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(envCfg.Environment)})

	conversationRepo := newConversationRepo(&envCfg)

	pool, err := pgxpool.New(ctx, envCfg.PostgresURL)
	if err != nil {
		log.Fatalf("Failed to initialise Postgres pool: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Failed to reach Postgres: %v", err)
	}
	fmt.Println("Connected to Postgres successfully")

	cfg := graph.Config{
		APIKey:           envCfg.APIKey,
		BaseURL:          envCfg.BaseURL,
		DecisionModel:    envCfg.Decision,
		UtilityModel:     envCfg.Utility,
		AnswerModel:      envCfg.Answer,
		Conversation:     envCfg.Conversation,
		Retrieval:        envCfg.Retrieval,
		Safety:           envCfg.Safety,
		ConversationRepo: conversationRepo,
		PassageStore:     repo.NewPostgresPassageRepository(pool),
	}

	runner, err := graph.BuildAnswerGraph(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to build graph: %v", err)
	}

	testQueries := []struct {
		description string
		query       string
	}{
		{
			description: "Procedure question answered from the corpus",
			query:       "What is a PICC line and how do I care for it at home?",
		},
		{
			description: "Follow-up in the same conversation",
			query:       "Can my child shower with it?",
		},
		{
			description: "Emergency phrase short-circuits the run",
			query:       "The dressing came off and there is severe bleeding, what do I do?",
		},
	}

	conversationID := "demo-conversation-001"

	for i, test := range testQueries {
		fmt.Printf("\nTest %d: %s\n", i+1, test.description)
		fmt.Printf("Query: %q\n", test.query)

		response, err := runner.Invoke(ctx, model.QueryInput{
			ConversationID: conversationID,
			Query:          test.query,
		})
		if err != nil {
			log.Fatalf("Failed to invoke graph for test %d: %v", i+1, err)
		}

		fmt.Printf("Response %d: %s\n", i+1, response)
		fmt.Println("────────────────────────────────────────────────")
	}

	fmt.Println("All demo queries completed")
}

// newConversationRepo connects to Redis when configured and falls back to
// the in-process store otherwise. Transcripts in the fallback vanish on
// restart.
func newConversationRepo(cfg *AppConfig) model.ConversationRepository {
	if cfg.Redis.URL == "" {
		log.Println("REDIS_URL not set; using in-memory conversation store")
		return repo.NewMemoryConversationRepository()
	}

	rdb, err := cfg.Redis.New()
	if err != nil {
		log.Printf("Warning: Redis unavailable (%v); using in-memory conversation store", err)
		return repo.NewMemoryConversationRepository()
	}
	fmt.Println("Connected to Redis successfully")

	ttl, err := time.ParseDuration(cfg.Conversation.TTL)
	if err != nil {
		log.Fatalf("Invalid CONVERSATION_TTL '%s': %v", cfg.Conversation.TTL, err)
	}
	return repo.NewRedisConversationRepository(rdb, ttl)
}
