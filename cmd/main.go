package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"docchat-platform/internal/ai"
	"docchat-platform/internal/blobstore"
	"docchat-platform/internal/config"
	"docchat-platform/internal/logger"
	"docchat-platform/internal/telemetry"
	"docchat-platform/internal/vectorstore"
	"docchat-platform/middleware"
	"docchat-platform/routes"
	"docchat-platform/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	// Tracing is opt-in; the collector may not exist in dev.
	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer("docchat-platform", cfg.OTLPEndpoint, cfg.TraceSampleRatio)
		if err != nil {
			log.Printf("Tracing disabled: %v", err)
		} else {
			defer shutdown()
		}
	}
	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	ctx := context.Background()
	embedder, err := ai.NewEmbeddingService(ctx, cfg, metrics)
	if err != nil {
		log.Fatal("Failed to initialize embeddings:", err)
	}
	defer embedder.Close()

	geminiClient, err := ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiTier)
	if err != nil {
		log.Fatal("Failed to initialize Gemini client:", err)
	}
	defer geminiClient.Close()

	providers := map[string]ai.ChatStreamer{
		"gemini": geminiClient,
	}
	openRouter := ai.NewOpenRouterClient(cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL)
	largeChoice := ai.ModelChoice{Provider: "gemini", Model: cfg.GeminiChatModel}
	if openRouter.Configured() {
		providers["openrouter"] = openRouter
		largeChoice = ai.ModelChoice{Provider: "openrouter", Model: cfg.LargeContextModel}
	}
	modelRouter := ai.NewModelRouter(cfg.RouteTokenThreshold,
		ai.ModelChoice{Provider: "gemini", Model: cfg.GeminiChatModel}, largeChoice)
	completer := ai.NewCompletionRouter(modelRouter, providers)

	vectors := vectorstore.NewMongoStore(db, cfg.VectorDimensions)
	blobs, err := blobstore.NewGridFSStore(db)
	if err != nil {
		log.Fatal("Failed to initialize blob store:", err)
	}

	chunker := services.NewChunkingService(cfg.MaxChunkTokens, cfg.MinChunkLength)
	extractor := services.NewExtractor()
	docStore := services.NewDocumentStore(embedder, vectors, blobs, chunker, metrics, nil)
	reconciler := services.NewReconciler(vectors, blobs, cfg.VectorDimensions, metrics, nil)
	pipeline := services.NewAnalysisPipeline(docStore, completer, chunker, services.PipelineOptions{
		TopK:            cfg.PipelineTopK,
		BatchCharBudget: cfg.BatchCharBudget,
		MaxBatches:      cfg.MaxBatches,
	}, metrics, nil)

	scheduler := services.NewReconcileScheduler(reconciler,
		time.Duration(cfg.ReconcileIntervalMinutes)*time.Minute, nil)
	if err := scheduler.Start(); err != nil {
		log.Printf("Reconcile scheduler not started: %v", err)
	}
	defer scheduler.Stop()

	// Rate limiting and the async queue degrade gracefully without Redis.
	redisClient, redisErr := config.NewRedisClient(cfg)
	if redisErr != nil {
		log.Printf("Redis unavailable, rate limiting and async uploads disabled: %v", redisErr)
	}
	var queueClient *asynq.Client
	if redisErr == nil {
		queueClient = asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer queueClient.Close()
	}

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))
	if redisClient != nil {
		router.Use(middleware.RateLimitMiddleware(redisClient, cfg))
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	router.POST("/documents/upload", routes.HandleUpload(cfg, docStore, blobs, extractor, queueClient))
	router.GET("/documents/sources", routes.HandleListSources(docStore))
	router.DELETE("/documents/sources/*id", routes.HandleDeleteSource(docStore))
	router.POST("/chat/query", routes.HandleChatQuery(pipeline))
	router.POST("/admin/reconcile", routes.HandleReconcile(reconciler))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
}
