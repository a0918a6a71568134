package bootstrap

import (
	"context"
	"fmt"
	"log"
	"strings"

	"veritasai-be/internal/config"
	"veritasai-be/internal/controller"
	"veritasai-be/internal/handler"
	"veritasai-be/internal/pkg/logger"
	chunkindex "veritasai-be/internal/repository/chromem"
	"veritasai-be/internal/repository/contract"
	"veritasai-be/internal/repository/implementation"
	"veritasai-be/internal/repository/memory"
	redisCache "veritasai-be/internal/repository/redis"
	"veritasai-be/internal/repository/unitofwork"
	"veritasai-be/internal/service"
	"veritasai-be/internal/tracer"
	"veritasai-be/internal/websocket"
	"veritasai-be/pkg/chunking"
	"veritasai-be/pkg/embedding"
	"veritasai-be/pkg/extractor"
	"veritasai-be/pkg/llm/factory"
	pktNats "veritasai-be/pkg/nats"
	"veritasai-be/pkg/rag"
	"veritasai-be/pkg/storage"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	DocumentController controller.IDocumentController
	ChatController     controller.IChatController
	SessionController  controller.ISessionController
	ModelController    controller.IModelController
	AdminController    controller.IAdminController

	// WebSockets & progress
	ProgressHandler *handler.ProgressHandler
	WebSocketHub    *websocket.Hub

	// Services shared with the CLI
	IngestionService service.IIngestionService
	DocumentService  service.IDocumentService
	ModelService     service.IModelService
	Maintenance      service.IMaintenanceService
	Formats          service.FormatChecker
	Registry         *factory.Registry
	UowFactory       unitofwork.RepositoryFactory
	Logger           logger.ILogger

	// Background workers, started by Start
	PersistWorker   service.IPersistWorker
	ConsumerService service.IConsumerService

	cfg     *config.Config
	natsSub *pktNats.Subscriber
	closers []func()
}

func NewContainer(db *gorm.DB, cfg *config.Config) (*Container, error) {
	ctx := context.Background()

	// 1. Core facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.IsProduction())
	c := &Container{cfg: cfg, UowFactory: uowFactory, Logger: sysLogger}

	// 2. Event bus: in-process queue for jobs and chat persistence
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: int64(cfg.Jobs.PersistQueueLen)},
		logger.NewWatermillAdapter(sysLogger),
	)
	c.closers = append(c.closers, func() { pubSub.Close() })

	// NATS is optional; lifecycle events and the nats executor need it.
	var natsPub *pktNats.Publisher
	if cfg.App.NatsURL != "" {
		var err error
		natsPub, err = pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			c.closers = append(c.closers, natsPub.Close)
		}
		c.natsSub, err = pktNats.NewSubscriber(cfg.App.NatsURL, sysLogger)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
		} else {
			c.closers = append(c.closers, c.natsSub.Close)
		}
	}
	var eventPublisher service.EventPublisher
	if natsPub != nil {
		eventPublisher = natsPub
	}

	rdb := connectRedis(ctx, cfg.App.RedisURL)
	if rdb != nil {
		c.closers = append(c.closers, func() { rdb.Close() })
	}

	// WebSocket hub
	c.WebSocketHub = websocket.NewHub(rdb, logger.NewIsolatedLogger(cfg.App.ProgressLogPath))

	// 3. Infrastructure
	store, err := newStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	c.Registry = factory.NewRegistry(cfg.Ai.ProviderOverrides(), cfg.Ai.RequestTimeout)
	embedCfg, err := c.Registry.Resolve(cfg.Ai.EmbeddingProvider)
	if err != nil {
		return nil, err
	}
	if !embedCfg.SupportsEmbedding() {
		return nil, fmt.Errorf("provider %s cannot produce embeddings", embedCfg.Name)
	}
	embedProvider, err := c.Registry.Provider(ctx, embedCfg.Name)
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] Using Embedding Provider: %s (%s)", embedCfg.Name, embedCfg.EmbeddingModel)

	engineOpts := []embedding.Option{
		embedding.WithModel(embedCfg.EmbeddingModel),
		embedding.WithLogger(sysLogger),
	}
	if fallback := c.Registry.Fallback(embedCfg.Name); fallback != nil {
		engineOpts = append(engineOpts, embedding.WithFallback(fallback))
	}
	engine := embedding.NewEngine(embedProvider, embedding.Config{
		Concurrency: cfg.Ingestion.Concurrency,
		MaxRetries:  cfg.Ingestion.MaxRetries,
		RetryDelay:  cfg.Ingestion.RetryDelay,
		BatchDelay:  cfg.Ingestion.BatchDelay,
		MediumDelay: embedding.DefaultConfig().MediumDelay,
		LargeDelay:  embedding.DefaultConfig().LargeDelay,
		RateLimit:   cfg.Ingestion.RateLimit,
	}, engineOpts...)

	index, err := newChunkIndex(db, cfg.VectorIndex)
	if err != nil {
		return nil, err
	}
	embedder := rag.NewCachedEmbedder(engine, newQueryCache(cfg.Rag, rdb, sysLogger), embedCfg.EmbeddingModel)
	retriever := rag.NewRetriever(index, cfg.Rag.TopK)
	extractors := extractor.NewRegistry()
	c.Formats = extractors

	// 4. Services
	c.IngestionService = service.NewIngestionService(service.IngestionDeps{
		UowFactory: uowFactory,
		Storage:    store,
		Extractor:  extractors,
		Chunker:    chunking.New(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap),
		Engine:     engine,
		Index:      index,
		Notifier:   c.WebSocketHub,
		Publisher:  eventPublisher,
		Model:      embedCfg.EmbeddingModel,
		Dimension:  embedCfg.Dimension,
		Logger:     sysLogger,
		Tracer:     tracer.Tracer(),
	})

	var dispatcher service.IJobDispatcher
	switch strings.ToLower(cfg.Jobs.Executor) {
	case "sync":
		dispatcher = service.NewSyncDispatcher(c.IngestionService)
	case "nats":
		if natsPub != nil && c.natsSub != nil {
			dispatcher = service.NewNatsDispatcher(natsPub)
			break
		}
		log.Printf("[WARN] JOB_EXECUTOR=nats without a NATS connection, using watermill")
		fallthrough
	default:
		dispatcher = service.NewWatermillDispatcher(pubSub, cfg.Jobs.TopicName)
		c.ConsumerService = service.NewConsumerService(pubSub, cfg.Jobs.TopicName, c.IngestionService, sysLogger)
	}

	c.PersistWorker = service.NewPersistWorker(pubSub, pubSub, uowFactory, sysLogger)

	defaults := service.ChatDefaults{
		Provider:         cfg.Ai.ChatProvider,
		Model:            cfg.Ai.ChatModel,
		Temperature:      cfg.Ai.Temperature,
		MaxTokens:        cfg.Ai.MaxTokens,
		MaxContextTokens: cfg.Rag.MaxContextTokens,
	}
	chatService := service.NewChatService(service.ChatDeps{
		UowFactory: uowFactory,
		Registry:   c.Registry,
		Embedder:   embedder,
		Retriever:  retriever,
		Persister:  c.PersistWorker,
		Defaults:   defaults,
		Logger:     sysLogger,
		Tracer:     tracer.Tracer(),
	})
	sessionService := service.NewSessionService(uowFactory, c.Registry, defaults)
	c.DocumentService = service.NewDocumentService(service.DocumentDeps{
		UowFactory:    uowFactory,
		Storage:       store,
		Formats:       extractors,
		Dispatcher:    dispatcher,
		Index:         index,
		MaxUploadSize: cfg.Storage.MaxUploadSize,
		StaleAfter:    cfg.Ingestion.StaleAfter,
		Logger:        sysLogger,
	})
	c.ModelService = service.NewModelService(c.Registry, cfg.Ai.ChatProvider)
	c.Maintenance = service.NewMaintenanceService(uowFactory, sysLogger)

	// 5. Controllers
	c.DocumentController = controller.NewDocumentController(c.DocumentService, cfg.Storage.MaxUploadSize)
	c.ChatController = controller.NewChatController(chatService, sysLogger)
	c.SessionController = controller.NewSessionController(sessionService)
	c.ModelController = controller.NewModelController(c.ModelService)
	c.AdminController = controller.NewAdminController(service.NewLogService(sysLogger))
	c.ProgressHandler = handler.NewProgressHandler(c.WebSocketHub, sysLogger)

	return c, nil
}

// Start runs the hub and the background workers until ctx is done.
func (c *Container) Start(ctx context.Context) error {
	go c.WebSocketHub.Run(ctx)

	if err := c.PersistWorker.Start(ctx); err != nil {
		return fmt.Errorf("start persist worker: %w", err)
	}
	if c.ConsumerService != nil {
		if err := c.ConsumerService.Consume(ctx); err != nil {
			return fmt.Errorf("start job consumer: %w", err)
		}
	}
	if c.natsSub != nil && strings.EqualFold(c.cfg.Jobs.Executor, "nats") {
		if err := service.ConsumeNatsJobs(ctx, c.natsSub, c.IngestionService, c.Logger); err != nil {
			return fmt.Errorf("start nats job consumer: %w", err)
		}
	}
	return nil
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.Logger.Sync()
}

func connectRedis(ctx context.Context, url string) *redis.Client {
	if url == "" {
		return nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{Addr: url}
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
		rdb.Close()
		return nil
	}
	return rdb
}

func newStorage(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error) {
	switch strings.ToLower(cfg.Driver) {
	case "s3":
		return storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Endpoint:  cfg.S3Endpoint,
		})
	case "local", "":
		return storage.NewLocalStorage(cfg.LocalRoot)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func newChunkIndex(db *gorm.DB, cfg config.VectorIndexConfig) (contract.ChunkIndex, error) {
	switch strings.ToLower(cfg.Driver) {
	case "chromem":
		return chunkindex.NewChunkIndex(cfg.ChromemPath)
	case "pgvector", "":
		return implementation.NewPgVectorIndex(db), nil
	default:
		return nil, fmt.Errorf("unknown vector index %q", cfg.Driver)
	}
}

func newQueryCache(cfg config.RagConfig, rdb *redis.Client, log logger.ILogger) rag.QueryCache {
	switch strings.ToLower(cfg.CacheDriver) {
	case "redis":
		if rdb != nil {
			return redisCache.NewQueryCache(rdb, cfg.CacheTTL, log)
		}
		log.Warn("BOOTSTRAP", "Redis query cache requested without redis, using memory", nil)
		return memory.NewQueryCache(cfg.CacheTTL)
	case "none":
		return rag.NopCache{}
	default:
		return memory.NewQueryCache(cfg.CacheTTL)
	}
}
