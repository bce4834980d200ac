package model

// VirtualChunk 是远端分块的只读视图，不落库。
type VirtualChunk struct {
	ID                string   `json:"id"`
	DatasetID         string   `json:"datasetId"`
	DocumentID        string   `json:"documentId"`
	DocumentName      string   `json:"documentName,omitempty"`
	Content           string   `json:"content"`
	ImportantKeywords []string `json:"importantKeywords"`
	Questions         []string `json:"questions,omitempty"`
	Available         bool     `json:"available"`
	ImageID           string   `json:"imageId,omitempty"`
	Positions         [][]int  `json:"positions,omitempty"`
	Similarity        float64  `json:"similarity,omitempty"`
}

// ChunkIndexDocument 定义了存储在 Elasticsearch 中的分块结构。
type ChunkIndexDocument struct {
	ChunkID           string   `json:"chunk_id"`
	DatasetID         string   `json:"dataset_id"`
	DocumentID        string   `json:"document_id"`
	DocumentName      string   `json:"document_name"`
	Content           string   `json:"content"`
	ImportantKeywords []string `json:"important_keywords"`
	Available         bool     `json:"available"`
}

// ToIndexDocument 将 VirtualChunk 转换为索引文档。
func (c VirtualChunk) ToIndexDocument() ChunkIndexDocument {
	return ChunkIndexDocument{
		ChunkID:           c.ID,
		DatasetID:         c.DatasetID,
		DocumentID:        c.DocumentID,
		DocumentName:      c.DocumentName,
		Content:           c.Content,
		ImportantKeywords: c.ImportantKeywords,
		Available:         c.Available,
	}
}
