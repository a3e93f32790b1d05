package main

import (
	"context"
	"log"

	"github.com/hibiken/asynq"

	"docchat-platform/internal/ai"
	"docchat-platform/internal/blobstore"
	"docchat-platform/internal/config"
	"docchat-platform/internal/logger"
	"docchat-platform/internal/queue"
	"docchat-platform/internal/telemetry"
	"docchat-platform/internal/vectorstore"
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
	defer mongoClient.Disconnect(context.Background())
	db := mongoClient.Database(cfg.DBName)

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Printf("Metrics disabled: %v", err)
	}

	embedder, err := ai.NewEmbeddingService(context.Background(), cfg, metrics)
	if err != nil {
		log.Fatal("Failed to initialize embeddings:", err)
	}
	defer embedder.Close()

	vectors := vectorstore.NewMongoStore(db, cfg.VectorDimensions)
	blobs, err := blobstore.NewGridFSStore(db)
	if err != nil {
		log.Fatal("Failed to initialize blob store:", err)
	}

	chunker := services.NewChunkingService(cfg.MaxChunkTokens, cfg.MinChunkLength)
	docStore := services.NewDocumentStore(embedder, vectors, blobs, chunker, metrics, nil)
	processor := queue.NewTaskProcessor(docStore, blobs, services.NewExtractor(), nil)

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: 20,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("Task failed: %s, error: %v", task.Type(), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskIngestDocument, processor.ProcessIngest)

	log.Println("Starting ingest worker...")
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
