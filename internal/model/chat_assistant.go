package model

import "time"

// LLMSettings 对应 RAGFlow 聊天助手的 llm 配置。
type LLMSettings struct {
	ModelName        string   `json:"model_name,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
}

// PromptSettings 对应 RAGFlow 聊天助手的 prompt 配置。
type PromptSettings struct {
	SimilarityThreshold      *float64 `json:"similarity_threshold,omitempty"`
	KeywordsSimilarityWeight *float64 `json:"keywords_similarity_weight,omitempty"`
	TopN                     *int     `json:"top_n,omitempty"`
	EmptyResponse            string   `json:"empty_response,omitempty"`
	Opener                   string   `json:"opener,omitempty"`
	ShowQuote                *bool    `json:"show_quote,omitempty"`
	Prompt                   string   `json:"prompt,omitempty"`
}

// ChatAssistant 是远端 RAGFlow 聊天助手的本地镜像。
type ChatAssistant struct {
	ID               uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	RemoteID         string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"remoteId"`
	Name             string         `gorm:"type:varchar(255);not null" json:"name"`
	Description      string         `gorm:"type:text" json:"description"`
	Avatar           string         `gorm:"type:text" json:"avatar,omitempty"`
	RemoteDatasetIDs []string       `gorm:"type:text;serializer:json" json:"datasetIds"`
	LLM              LLMSettings    `gorm:"type:text;serializer:json" json:"llm"`
	Prompt           PromptSettings `gorm:"type:text;serializer:json" json:"prompt"`
	SyncStatus       Status         `gorm:"type:varchar(32);index;not null;default:pending" json:"syncStatus"`
	LastSyncedAt     *time.Time     `gorm:"default:null" json:"lastSyncedAt"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ChatAssistant) TableName() string {
	return "ragflow_chat_assistants"
}
