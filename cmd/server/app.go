package main

import (
	"context"

	"github.com/gin-gonic/gin"

	"ragflow-bridge/internal/config"
	"ragflow-bridge/internal/handler"
	"ragflow-bridge/internal/middleware"
	"ragflow-bridge/internal/pipeline"
	"ragflow-bridge/internal/repository"
	"ragflow-bridge/internal/service"
	"ragflow-bridge/internal/validator"
	"ragflow-bridge/pkg/database"
	"ragflow-bridge/pkg/es"
	"ragflow-bridge/pkg/kafka"
	"ragflow-bridge/pkg/log"
	"ragflow-bridge/pkg/ragflow"
	"ragflow-bridge/pkg/storage"
	"ragflow-bridge/pkg/tika"
	"ragflow-bridge/pkg/token"
)

// application 持有一次进程运行所需的全部依赖。
type application struct {
	cfg        config.Config
	jwtManager *token.JWTManager
	producer   *kafka.Producer

	datasets       service.DatasetService
	documents      service.DocumentService
	chunks         service.ChunkService
	assistants     service.ChatAssistantService
	conversations  service.ConversationService
	knowledgeGraph service.KnowledgeGraphService
	system         service.SystemService
}

// newApplication 按配置初始化基础设施并完成依赖注入。
func newApplication(ctx context.Context, cfg config.Config) *application {
	// 1. 初始化数据库和 Redis
	database.InitMySQL(cfg.Database.MySQL)
	database.InitRedis(cfg.Database.Redis)

	// 2. 初始化外部依赖，可选组件未启用时保持 nil
	ragflowClient := ragflow.NewClient(cfg.RAGFlow)

	var store storage.ObjectStore
	if cfg.MinIO.Endpoint != "" {
		s, err := storage.NewMinIOStore(ctx, cfg.MinIO)
		if err != nil {
			log.Fatal("MinIO 初始化失败", err)
		}
		store = s
	} else {
		log.Warnf("未配置 MinIO，原件归档使用内存存储，重启后丢失")
		store = storage.NewMemoryStore()
	}

	app := &application{
		cfg:        cfg,
		jwtManager: token.NewJWTManager(cfg.Auth.Secret, cfg.Auth.TokenExpireHours),
	}

	var publisher service.TaskPublisher
	if cfg.Kafka.Enabled {
		app.producer = kafka.NewProducer(cfg.Kafka)
		publisher = app.producer
	}

	var indexer service.ChunkIndexer
	if cfg.Elasticsearch.Enabled {
		idx, err := es.NewChunkIndex(cfg.Elasticsearch)
		if err != nil {
			log.Fatal("Elasticsearch 初始化失败", err)
		}
		log.Info("Elasticsearch 分块索引初始化成功")
		indexer = idx
	}

	var extractor service.TextExtractor
	if cfg.Tika.ServerURL != "" {
		extractor = tika.NewClient(cfg.Tika)
	}

	// 3. 初始化 Repository
	datasetRepo := repository.NewDatasetRepository(database.DB)
	documentRepo := repository.NewDocumentRepository(database.DB)
	assistantRepo := repository.NewChatAssistantRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.DB, database.RDB)
	kgCache := repository.NewKnowledgeGraphCache(database.RDB, cfg.KnowledgeGraph.CacheTTL)

	// 4. 初始化 Service
	app.datasets = service.NewDatasetService(datasetRepo, documentRepo, ragflowClient, store, indexer)
	app.documents = service.NewDocumentService(documentRepo, datasetRepo, ragflowClient, store, publisher, indexer, extractor, cfg.Document)
	app.chunks = service.NewChunkService(documentRepo, datasetRepo, ragflowClient, indexer)
	app.assistants = service.NewChatAssistantService(assistantRepo, datasetRepo, conversationRepo, ragflowClient)
	app.conversations = service.NewConversationService(conversationRepo, assistantRepo, ragflowClient)
	app.knowledgeGraph = service.NewKnowledgeGraphService(datasetRepo, kgCache, ragflowClient)
	app.system = service.NewSystemService(database.DB, database.RDB, ragflowClient, datasetRepo, documentRepo, assistantRepo, conversationRepo, cfg.Server.Version)
	return app
}

// router 创建 Gin 引擎并注册全部路由。
func (a *application) router() *gin.Engine {
	gin.SetMode(a.cfg.Server.Mode)
	validator.RegisterGinRules()

	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())
	r.MaxMultipartMemory = 32 << 20

	handler.RegisterRoutes(r, handler.Handlers{
		Auth:           handler.NewAuthHandler(a.jwtManager, a.cfg.Auth),
		Dataset:        handler.NewDatasetHandler(a.datasets),
		Document:       handler.NewDocumentHandler(a.documents),
		Chunk:          handler.NewChunkHandler(a.chunks),
		ChatAssistant:  handler.NewChatAssistantHandler(a.assistants),
		Conversation:   handler.NewConversationHandler(a.conversations),
		KnowledgeGraph: handler.NewKnowledgeGraphHandler(a.knowledgeGraph),
		System:         handler.NewSystemHandler(a.system),
	}, a.jwtManager, a.cfg.Auth.Enabled)
	return r
}

// consumer 创建文档状态同步的 Kafka 消费者。
func (a *application) consumer() *kafka.Consumer {
	var publisher service.TaskPublisher
	if a.producer != nil {
		publisher = a.producer
	}
	processor := pipeline.NewProcessor(a.documents, publisher, a.cfg.Document)
	return kafka.NewConsumer(a.cfg.Kafka, database.RDB, processor)
}

func (a *application) close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	if database.RDB != nil {
		_ = database.RDB.Close()
	}
	if database.DB != nil {
		if sqlDB, err := database.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
