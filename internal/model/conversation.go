package model

import "time"

// ChatMessage 代表存储在 Redis 中的单条对话消息。
type ChatMessage struct {
	Role      string           `json:"role"` // "user" 或 "assistant"
	Content   string           `json:"content"`
	Reference []ChunkReference `json:"reference,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// ChunkReference 是回答中引用的分块。
type ChunkReference struct {
	ChunkID      string  `json:"chunkId"`
	DocumentID   string  `json:"documentId"`
	DocumentName string  `json:"documentName"`
	DatasetID    string  `json:"datasetId"`
	Content      string  `json:"content"`
	Similarity   float64 `json:"similarity"`
}

// Conversation 对应 RAGFlow 聊天助手下的一个会话 (session)。
type Conversation struct {
	ID              string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	RemoteID        string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"remoteId"`
	ChatAssistantID uint       `gorm:"index;not null" json:"chatAssistantId"`
	Name            string     `gorm:"type:varchar(255)" json:"name"`
	UserRef         string     `gorm:"type:varchar(128);index" json:"userRef,omitempty"`
	MessageCount    int        `gorm:"not null;default:0" json:"messageCount"`
	LastMessageAt   *time.Time `gorm:"default:null" json:"lastMessageAt"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Conversation) TableName() string {
	return "ragflow_conversations"
}
