package handler

import (
	"github.com/gin-gonic/gin"

	"ragflow-bridge/internal/middleware"
	"ragflow-bridge/pkg/token"
)

// Handlers 汇总所有控制器，供 RegisterRoutes 使用。
type Handlers struct {
	Auth           *AuthHandler
	Dataset        *DatasetHandler
	Document       *DocumentHandler
	Chunk          *ChunkHandler
	ChatAssistant  *ChatAssistantHandler
	Conversation   *ConversationHandler
	KnowledgeGraph *KnowledgeGraphHandler
	System         *SystemHandler
}

// RegisterRoutes 在 r 上注册 /api/v1 下的全部路由。
// /auth/token 与 /system/* 不需要认证。
func RegisterRoutes(r *gin.Engine, h Handlers, jwtManager *token.JWTManager, authEnabled bool) {
	apiV1 := r.Group("/api/v1")

	apiV1.POST("/auth/token", h.Auth.IssueToken)

	system := apiV1.Group("/system")
	{
		system.GET("/health", h.System.Health)
		system.GET("/status", h.System.Status)
	}

	auth := apiV1.Group("")
	auth.Use(middleware.AuthMiddleware(jwtManager, authEnabled))
	admin := middleware.AdminAuthMiddleware()

	datasets := auth.Group("/datasets")
	{
		datasets.GET("", h.Dataset.List)
		datasets.POST("", h.Dataset.Create)
		datasets.POST("/sync", admin, h.Dataset.Sync)
		datasets.GET("/:id", h.Dataset.Get)
		datasets.PUT("/:id", h.Dataset.Update)
		datasets.DELETE("/:id", h.Dataset.Delete)

		datasets.POST("/:id/retrieval", h.Chunk.Retrieve)
		datasets.GET("/:id/chunks/search", h.Chunk.Search)

		docs := datasets.Group("/:id/documents")
		docs.GET("", h.Document.List)
		docs.POST("", h.Document.Upload)
		docs.DELETE("", h.Document.BatchDelete)
		docs.POST("/parse", h.Document.Parse)
		docs.POST("/stop", h.Document.StopParse)
		docs.POST("/refresh", admin, h.Document.RefreshProcessing)
		docs.GET("/:docId", h.Document.Get)
		docs.POST("/:docId/status", h.Document.RefreshStatus)
		docs.POST("/:docId/retry", h.Document.Retry)
		docs.GET("/:docId/download", h.Document.Download)
		docs.GET("/:docId/download-url", h.Document.DownloadURL)
		docs.GET("/:docId/preview", h.Document.Preview)

		docs.GET("/:docId/chunks", h.Chunk.List)
		docs.POST("/:docId/chunks", h.Chunk.Add)
		docs.DELETE("/:docId/chunks", h.Chunk.Delete)
		docs.PUT("/:docId/chunks/:chunkId", h.Chunk.Update)
	}

	assistants := auth.Group("/chat-assistants")
	{
		assistants.GET("", h.ChatAssistant.List)
		assistants.POST("", h.ChatAssistant.Create)
		assistants.POST("/sync", admin, h.ChatAssistant.Sync)
		assistants.GET("/:id", h.ChatAssistant.Get)
		assistants.PUT("/:id", h.ChatAssistant.Update)
		assistants.DELETE("/:id", h.ChatAssistant.Delete)
	}

	conversations := auth.Group("/conversations")
	{
		conversations.GET("", h.Conversation.List)
		conversations.POST("", h.Conversation.Create)
		conversations.GET("/:id", h.Conversation.Get)
		conversations.DELETE("/:id", h.Conversation.Delete)
		conversations.GET("/:id/messages", h.Conversation.History)
		conversations.POST("/:id/messages", h.Conversation.SendMessage)
		conversations.GET("/:id/stream", h.Conversation.Stream)
	}

	kg := auth.Group("/knowledge-graph/:datasetId")
	{
		kg.GET("", h.KnowledgeGraph.Get)
		kg.DELETE("", h.KnowledgeGraph.Delete)
		kg.GET("/entities", h.KnowledgeGraph.Entities)
		kg.GET("/relations", h.KnowledgeGraph.Relations)
		kg.GET("/stats", h.KnowledgeGraph.Stats)
	}
}
