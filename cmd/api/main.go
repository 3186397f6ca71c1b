// Package main is the thin HTTP entrypoint that wires configuration into
// the document-processing pipeline and serves its external interfaces.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/documently/docuflow/engine/convert"
	"github.com/documently/docuflow/engine/embedding"
	"github.com/documently/docuflow/engine/jobs"
	"github.com/documently/docuflow/engine/llmgateway"
	"github.com/documently/docuflow/engine/objectstore"
	"github.com/documently/docuflow/engine/pipeline"
	"github.com/documently/docuflow/engine/store"
	"github.com/documently/docuflow/internal/events"
	"github.com/documently/docuflow/pkg/metrics"
	"github.com/documently/docuflow/pkg/mid"
	"github.com/documently/docuflow/pkg/ollama"
	"github.com/documently/docuflow/pkg/resilience"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"google.golang.org/genai"
)

// Config holds all environment-based configuration.
type Config struct {
	Port       string
	CORSOrigin string

	DatabaseURL string

	ObjectStoreBucket   string
	ObjectStoreRegion   string
	ObjectStoreEndpoint string
	SignedURLExpiration time.Duration
	APIBaseURL          string

	ConverterURLEndpoint  string
	ConverterFileEndpoint string
	ConverterTimeout      time.Duration
	ConverterTempDir      string

	ValidationModel       string
	ValidationMaxAttempts int

	ExtractionModel     string
	ClassificationModel string

	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingDimensions int
	OllamaBaseURL       string

	AnthropicAPIKey string
	GeminiAPIKey    string
	BedrockModelID  string
	AWSRegion       string

	NATSURL string

	CircuitBreakerFailThreshold   int
	CircuitBreakerRecoveryTimeout time.Duration

	WorkerPoolSize int

	ClientID     string
	ClientSecret string
}

func loadConfig() Config {
	return Config{
		Port:       envOr("PORT", "8080"),
		CORSOrigin: envOr("CORS_ORIGIN", "*"),

		DatabaseURL: envOr("DATABASE_URL", "postgres://localhost:5432/docuflow"),

		ObjectStoreBucket:   envOr("OBJECT_STORE_BUCKET", "docuflow"),
		ObjectStoreRegion:   envOr("OBJECT_STORE_REGION", "us-east-1"),
		ObjectStoreEndpoint: envOr("OBJECT_STORE_ENDPOINT", ""),
		SignedURLExpiration: time.Duration(envIntOr("SIGNED_URL_EXPIRATION_SECONDS", 86400)) * time.Second,
		APIBaseURL:          envOr("API_BASE_URL", "http://localhost:8080"),

		ConverterURLEndpoint:  envOr("CONVERTER_URL_ENDPOINT", "http://localhost:5001/v1/convert/source"),
		ConverterFileEndpoint: envOr("CONVERTER_FILE_ENDPOINT", "http://localhost:5001/v1/convert/file"),
		ConverterTimeout:      time.Duration(envIntOr("CONVERTER_TIMEOUT_SECONDS", 120)) * time.Second,
		ConverterTempDir:      envOr("CONVERTER_TEMP_DIR", "/tmp/docuflow"),

		ValidationModel:       envOr("VALIDATION_MODEL", "claude-3-7-sonnet-latest"),
		ValidationMaxAttempts: envIntOr("VALIDATION_MAX_ATTEMPTS", 3),

		ExtractionModel:     envOr("EXTRACTION_MODEL", "claude-3-7-sonnet-latest"),
		ClassificationModel: envOr("CLASSIFICATION_MODEL", "claude-3-7-sonnet-latest"),

		EmbeddingProvider:   envOr("EMBEDDING_PROVIDER", "local-model"),
		EmbeddingModel:      envOr("EMBEDDING_MODEL", "nomic-embed-text"),
		EmbeddingDimensions: envIntOr("EMBEDDING_DIMENSIONS", 768),
		OllamaBaseURL:       envOr("OLLAMA_BASE_URL", "http://localhost:11434"),

		AnthropicAPIKey: envOr("ANTHROPIC_API_KEY", ""),
		GeminiAPIKey:    envOr("GEMINI_API_KEY", ""),
		BedrockModelID:  envOr("BEDROCK_MODEL_ID", "anthropic.claude-3-sonnet-20240229-v1:0"),
		AWSRegion:       envOr("AWS_REGION", "us-east-1"),

		NATSURL: envOr("NATS_URL", ""),

		CircuitBreakerFailThreshold:   envIntOr("CIRCUIT_BREAKER_FAILURE_THRESHOLD", 5),
		CircuitBreakerRecoveryTimeout: time.Duration(envIntOr("CIRCUIT_BREAKER_RECOVERY_TIMEOUT_SECONDS", 30)) * time.Second,

		WorkerPoolSize: envIntOr("WORKER_POOL_SIZE", 10),

		ClientID:     envOr("API_CLIENT_ID", ""),
		ClientSecret: envOr("API_CLIENT_SECRET", ""),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ObjectStoreEndpoint != "" {
			o.BaseEndpoint = &cfg.ObjectStoreEndpoint
		}
	})
	objStore := objectstore.New(s3Client, objectstore.Config{
		Bucket:     cfg.ObjectStoreBucket,
		APIBaseURL: cfg.APIBaseURL,
	}, logger)

	converter := convert.New(convert.Config{
		URLEndpoint:  cfg.ConverterURLEndpoint,
		FileEndpoint: cfg.ConverterFileEndpoint,
		Timeout:      cfg.ConverterTimeout,
		TempDir:      cfg.ConverterTempDir,
	})

	embedder, err := buildEmbeddingProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build embedding provider: %w", err)
	}

	gateway, err := buildLLMGateway(ctx, cfg, awsCfg)
	if err != nil {
		return fmt.Errorf("build llm gateway: %w", err)
	}

	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Close()
	}
	eventPublisher := events.New(nc, logger)

	jobRegistry := jobs.New(pool, logger)
	documentStore := store.NewDocumentStore(pool)
	questionStore := store.NewQuestionStore(pool)

	metricsRegistry := metrics.New()
	go reportBreakerStates(ctx, metricsRegistry)

	renderer := pipeline.NewTemplateRenderer()
	orchestrator := pipeline.New(pipeline.Config{
		RootCtx:        ctx,
		Jobs:           jobRegistry,
		Log:            logger,
		Events:         eventPublisher,
		TempDir:        cfg.ConverterTempDir,
		WorkerPool:     cfg.WorkerPoolSize,
		Metrics:        metricsRegistry,
		Ingestion:      pipeline.NewIngestion(converter),
		Parsing:        pipeline.NewParsing(),
		Validation:     pipeline.NewValidation(gateway, renderer, cfg.ValidationModel, cfg.ValidationMaxAttempts),
		Persistence:    pipeline.NewPersistence(pool, documentStore, questionStore, objStore, gateway, renderer, cfg.ExtractionModel),
		Classification: pipeline.NewClassification(pool, questionStore, gateway, renderer, cfg.ClassificationModel),
		Vectorization:  pipeline.NewVectorization(pool, questionStore, embedder),
	})

	deps := &apiDeps{
		cfg:          cfg,
		log:          logger,
		jobs:         jobRegistry,
		documents:    documentStore,
		questions:    questionStore,
		objectStore:  objStore,
		orchestrator: orchestrator,
		embedder:     embedder,
		metrics:      metricsRegistry,
	}

	handler := mid.Chain(deps.routes(),
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("docuflow-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func buildEmbeddingProvider(ctx context.Context, cfg Config) (embedding.Provider, error) {
	switch cfg.EmbeddingProvider {
	case "api-provider":
		return embedding.NewGenAIProvider(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	default:
		return ollamaProvider(cfg), nil
	}
}

// ollamaProvider builds the default local-model embedding provider
// (EMBEDDING_PROVIDER unset or "local-model"), backed by Ollama's HTTP API.
func ollamaProvider(cfg Config) *ollama.EmbedClient {
	return ollama.NewEmbedClient(cfg.OllamaBaseURL, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
}

func buildLLMGateway(ctx context.Context, cfg Config, awsCfg aws.Config) (*llmgateway.Gateway, error) {
	providers := map[string]llmgateway.Provider{}
	if cfg.AnthropicAPIKey != "" {
		providers["claude-"] = llmgateway.NewAnthropicProvider(cfg.AnthropicAPIKey, 4096)
	}
	if cfg.GeminiAPIKey != "" {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.GeminiAPIKey})
		if err != nil {
			return nil, fmt.Errorf("genai client: %w", err)
		}
		providers["gemini-"] = llmgateway.NewGeminiProvider(client, cfg.ExtractionModel)
	}
	providers["bedrock/"] = llmgateway.NewBedrockProvider(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID, 4096)
	return llmgateway.New(providers), nil
}

type apiDeps struct {
	cfg          Config
	log          *slog.Logger
	jobs         *jobs.Registry
	documents    *store.DocumentStore
	questions    *store.QuestionStore
	objectStore  *objectstore.Client
	orchestrator *pipeline.Orchestrator
	embedder     embedding.Provider
	metrics      *metrics.Registry
}

func (d *apiDeps) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/api/health", d.handleHealth)
	r.Handle("/metrics", d.metrics.Handler())
	r.Post("/upload", d.handleUpload)
	r.Post("/process-doc", d.handleProcessDoc)
	r.Get("/jobs/{id}", d.handleGetJob)
	r.Get("/images/{userID}/{jobID}/{filename}", d.handleGetImage)
	r.Get("/documents", d.handleListDocuments)
	r.Get("/documents/{id}", d.handleGetDocument)
	r.Get("/documents/{id}/questions", d.handleListQuestions)
	r.Get("/documents/{id}/questions/{qid}", d.handleGetQuestion)
	r.Put("/documents/{id}/questions/{qid}", d.handleUpdateQuestion)
	r.Get("/questions/search", d.handleSearchQuestions)
	return r
}

func (d *apiDeps) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// reportBreakerStates mirrors every registered circuit breaker's state into
// a gauge every few seconds, so /metrics reflects converter/LLM health
// without each call site touching metrics directly.
func reportBreakerStates(ctx context.Context, reg *metrics.Registry) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, b := range resilience.Snapshot() {
				reg.Gauge(metrics.WithLabels("pipeline_circuit_breaker_state", "breaker", name),
					"0=closed 1=open 2=half_open").Set(int64(b.State()))
			}
		}
	}
}
