// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// Dataset 是远端 RAGFlow 数据集在本地的镜像。
type Dataset struct {
	ID             uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	RemoteID       string      `gorm:"type:varchar(64);uniqueIndex;not null" json:"remoteId"`
	Name           string      `gorm:"type:varchar(255);not null" json:"name"`
	Description    string      `gorm:"type:text" json:"description"`
	Avatar         string      `gorm:"type:text" json:"avatar,omitempty"`
	EmbeddingModel string      `gorm:"type:varchar(128)" json:"embeddingModel"`
	ChunkMethod    ChunkMethod `gorm:"type:varchar(32);default:naive" json:"chunkMethod"`
	Permission     Permission  `gorm:"type:varchar(16);default:me" json:"permission"`
	Language       string      `gorm:"type:varchar(32)" json:"language"`
	DocumentCount  int         `gorm:"not null;default:0" json:"documentCount"`
	ChunkCount     int         `gorm:"not null;default:0" json:"chunkCount"`
	TokenNum       int         `gorm:"not null;default:0" json:"tokenNum"`
	SyncStatus     Status      `gorm:"type:varchar(32);index;not null;default:pending" json:"syncStatus"`
	LastSyncedAt   *time.Time  `gorm:"default:null" json:"lastSyncedAt"`
	CreatedAt      time.Time   `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time   `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Dataset) TableName() string {
	return "ragflow_datasets"
}
