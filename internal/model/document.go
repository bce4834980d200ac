package model

import "time"

// Document 是上传到 RAGFlow 数据集中的文档的本地镜像。
// RemoteID 在上传成功之前为空。
type Document struct {
	ID           uint        `gorm:"primaryKey;autoIncrement" json:"id"`
	RemoteID     *string     `gorm:"type:varchar(64);uniqueIndex" json:"remoteId"`
	DatasetID    uint        `gorm:"index;not null" json:"datasetId"`
	Name         string      `gorm:"type:varchar(255);not null" json:"name"`
	Size         int64       `gorm:"not null;default:0" json:"size"`
	MimeType     string      `gorm:"type:varchar(128)" json:"mimeType"`
	ObjectKey    string      `gorm:"type:varchar(512)" json:"-"`
	ChunkMethod  ChunkMethod `gorm:"type:varchar(32)" json:"chunkMethod"`
	Status       Status      `gorm:"type:varchar(32);index;not null;default:pending" json:"status"`
	RunStatus    RunStatus   `gorm:"type:varchar(16)" json:"runStatus"`
	Progress     float64     `gorm:"not null;default:0" json:"progress"`
	ProgressMsg  string      `gorm:"type:text" json:"progressMsg"`
	ChunkCount   int         `gorm:"not null;default:0" json:"chunkCount"`
	TokenCount   int         `gorm:"not null;default:0" json:"tokenCount"`
	ErrorMessage string      `gorm:"type:text" json:"errorMessage,omitempty"`
	RetryCount   int         `gorm:"not null;default:0" json:"retryCount"`
	LastSyncedAt *time.Time  `gorm:"default:null" json:"lastSyncedAt"`
	CreatedAt    time.Time   `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time   `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "ragflow_documents"
}

// RemoteIDValue 返回远端 ID，未上传时为空字符串。
func (d *Document) RemoteIDValue() string {
	if d.RemoteID == nil {
		return ""
	}
	return *d.RemoteID
}

// HasRemote 表示文档是否已经存在于 RAGFlow。
func (d *Document) HasRemote() bool {
	return d.RemoteID != nil && *d.RemoteID != ""
}
