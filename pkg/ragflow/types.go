package ragflow

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FlexString 兼容远端有时返回字符串、有时返回数字的字段 (例如文档的 run)。
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == "" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*f = FlexString(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*f = FlexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = FlexString(n.String())
	return nil
}

// Dataset 是 RAGFlow 数据集。
type Dataset struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name"`
	Avatar         string                 `json:"avatar,omitempty"`
	Description    string                 `json:"description,omitempty"`
	EmbeddingModel string                 `json:"embedding_model,omitempty"`
	ChunkMethod    string                 `json:"chunk_method,omitempty"`
	Permission     string                 `json:"permission,omitempty"`
	Language       string                 `json:"language,omitempty"`
	DocumentCount  int                    `json:"document_count"`
	ChunkCount     int                    `json:"chunk_count"`
	TokenNum       int                    `json:"token_num"`
	ParserConfig   map[string]interface{} `json:"parser_config,omitempty"`
	CreateTime     int64                  `json:"create_time,omitempty"`
	UpdateTime     int64                  `json:"update_time,omitempty"`
}

// DatasetRequest 用于创建与更新数据集，零值字段不会发送。
type DatasetRequest struct {
	Name           string                 `json:"name,omitempty"`
	Avatar         string                 `json:"avatar,omitempty"`
	Description    string                 `json:"description,omitempty"`
	EmbeddingModel string                 `json:"embedding_model,omitempty"`
	Permission     string                 `json:"permission,omitempty"`
	ChunkMethod    string                 `json:"chunk_method,omitempty"`
	ParserConfig   map[string]interface{} `json:"parser_config,omitempty"`
}

// ListDatasetsParams 是列出数据集时的查询参数。
type ListDatasetsParams struct {
	Page     int
	PageSize int
	OrderBy  string
	Desc     *bool
	Name     string
	ID       string
}

// Document 是 RAGFlow 数据集中的文档。
type Document struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	DatasetID    string                 `json:"dataset_id"`
	ChunkMethod  string                 `json:"chunk_method,omitempty"`
	Size         int64                  `json:"size"`
	Type         string                 `json:"type,omitempty"`
	Run          FlexString             `json:"run"`
	Progress     float64                `json:"progress"`
	ProgressMsg  string                 `json:"progress_msg,omitempty"`
	ChunkCount   int                    `json:"chunk_count"`
	TokenCount   int                    `json:"token_count"`
	Status       FlexString             `json:"status,omitempty"`
	Location     string                 `json:"location,omitempty"`
	ParserConfig map[string]interface{} `json:"parser_config,omitempty"`
	CreateTime   int64                  `json:"create_time,omitempty"`
	UpdateTime   int64                  `json:"update_time,omitempty"`
}

// DocumentList 是列出文档的结果。
type DocumentList struct {
	Docs  []Document `json:"docs"`
	Total int        `json:"total"`
}

// ListDocumentsParams 是列出文档时的查询参数。
type ListDocumentsParams struct {
	Page     int
	PageSize int
	OrderBy  string
	Desc     *bool
	Keywords string
	ID       string
	Name     string
}

// UpdateDocumentRequest 用于修改文档名称或切块配置。
type UpdateDocumentRequest struct {
	Name         string                 `json:"name,omitempty"`
	ChunkMethod  string                 `json:"chunk_method,omitempty"`
	ParserConfig map[string]interface{} `json:"parser_config,omitempty"`
}

// Chunk 是文档解析后得到的分块。
type Chunk struct {
	ID                string   `json:"id"`
	Content           string   `json:"content"`
	DocumentID        string   `json:"document_id"`
	DatasetID         string   `json:"dataset_id,omitempty"`
	DocumentName      string   `json:"docnm_kwd,omitempty"`
	ImportantKeywords []string `json:"important_keywords"`
	Questions         []string `json:"questions,omitempty"`
	ImageID           string   `json:"image_id,omitempty"`
	Available         *bool    `json:"available,omitempty"`
	Positions         [][]int  `json:"positions,omitempty"`
}

// ChunkList 是列出分块的结果。
type ChunkList struct {
	Chunks []Chunk  `json:"chunks"`
	Doc    Document `json:"doc"`
	Total  int      `json:"total"`
}

// ListChunksParams 是列出分块时的查询参数。
type ListChunksParams struct {
	Page     int
	PageSize int
	Keywords string
	ID       string
}

// ChunkRequest 用于新增或修改分块。
type ChunkRequest struct {
	Content           string   `json:"content,omitempty"`
	ImportantKeywords []string `json:"important_keywords,omitempty"`
	Questions         []string `json:"questions,omitempty"`
	Available         *bool    `json:"available,omitempty"`
}

// RetrievalRequest 是检索测试请求。
type RetrievalRequest struct {
	Question               string   `json:"question"`
	DatasetIDs             []string `json:"dataset_ids,omitempty"`
	DocumentIDs            []string `json:"document_ids,omitempty"`
	Page                   int      `json:"page,omitempty"`
	PageSize               int      `json:"page_size,omitempty"`
	SimilarityThreshold    *float64 `json:"similarity_threshold,omitempty"`
	VectorSimilarityWeight *float64 `json:"vector_similarity_weight,omitempty"`
	TopK                   int      `json:"top_k,omitempty"`
	Keyword                bool     `json:"keyword,omitempty"`
	Highlight              bool     `json:"highlight,omitempty"`
}

// RetrievedChunk 是检索命中的分块。
type RetrievedChunk struct {
	ID                string   `json:"id"`
	Content           string   `json:"content"`
	DocumentID        string   `json:"document_id"`
	DocumentKeyword   string   `json:"document_keyword"`
	DatasetID         string   `json:"kb_id"`
	Highlight         string   `json:"highlight,omitempty"`
	ImageID           string   `json:"image_id,omitempty"`
	ImportantKeywords []string `json:"important_keywords"`
	Similarity        float64  `json:"similarity"`
	TermSimilarity    float64  `json:"term_similarity"`
	VectorSimilarity  float64  `json:"vector_similarity"`
}

// DocAggregate 是检索结果按文档的聚合。
type DocAggregate struct {
	DocID   string `json:"doc_id"`
	DocName string `json:"doc_name"`
	Count   int    `json:"count"`
}

// RetrievalResult 是检索测试的结果。
type RetrievalResult struct {
	Chunks  []RetrievedChunk `json:"chunks"`
	DocAggs []DocAggregate   `json:"doc_aggs"`
	Total   int              `json:"total"`
}

// ChatDataset 是聊天助手响应中关联的数据集摘要。
type ChatDataset struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Chat 是 RAGFlow 聊天助手。
type Chat struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Avatar      string                 `json:"avatar,omitempty"`
	Description string                 `json:"description,omitempty"`
	DatasetIDs  []string               `json:"dataset_ids,omitempty"`
	Datasets    []ChatDataset          `json:"datasets,omitempty"`
	LLM         map[string]interface{} `json:"llm,omitempty"`
	Prompt      map[string]interface{} `json:"prompt,omitempty"`
	CreateTime  int64                  `json:"create_time,omitempty"`
	UpdateTime  int64                  `json:"update_time,omitempty"`
}

// RemoteDatasetIDs 返回聊天助手关联的数据集 ID。
func (c Chat) RemoteDatasetIDs() []string {
	if len(c.DatasetIDs) > 0 {
		return c.DatasetIDs
	}
	ids := make([]string, 0, len(c.Datasets))
	for _, d := range c.Datasets {
		ids = append(ids, d.ID)
	}
	return ids
}

// ChatRequest 用于创建与更新聊天助手。
type ChatRequest struct {
	Name        string      `json:"name,omitempty"`
	Avatar      string      `json:"avatar,omitempty"`
	Description string      `json:"description,omitempty"`
	DatasetIDs  []string    `json:"dataset_ids,omitempty"`
	LLM         interface{} `json:"llm,omitempty"`
	Prompt      interface{} `json:"prompt,omitempty"`
}

// ListParams 是通用的分页查询参数。
type ListParams struct {
	Page     int
	PageSize int
	OrderBy  string
	Desc     *bool
	Name     string
	ID       string
}

// SessionMessage 是会话中的一条消息。
type SessionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session 是聊天助手下的会话。
type Session struct {
	ID         string           `json:"id"`
	ChatID     string           `json:"chat_id"`
	Name       string           `json:"name"`
	Messages   []SessionMessage `json:"messages,omitempty"`
	CreateTime int64            `json:"create_time,omitempty"`
	UpdateTime int64            `json:"update_time,omitempty"`
}

// CompletionRequest 是向聊天助手提问的请求。
type CompletionRequest struct {
	Question  string `json:"question"`
	Stream    bool   `json:"stream"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// ReferenceChunk 是回答中引用的分块。
type ReferenceChunk struct {
	ID           string  `json:"id"`
	Content      string  `json:"content"`
	DocumentID   string  `json:"document_id"`
	DocumentName string  `json:"document_name"`
	DatasetID    string  `json:"dataset_id"`
	Similarity   float64 `json:"similarity"`
}

// Reference 是回答的引用信息。
type Reference struct {
	Total   int              `json:"total"`
	Chunks  []ReferenceChunk `json:"chunks"`
	DocAggs []DocAggregate   `json:"doc_aggs"`
}

// UnmarshalJSON 兼容远端在没有引用时返回的空数组或空对象。
func (r *Reference) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == "[]" || s == "{}" || s == "" {
		*r = Reference{}
		return nil
	}
	type alias Reference
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*r = Reference(a)
	return nil
}

// Completion 是一次回答 (或流式回答中的一个累积片段)。
type Completion struct {
	ID        string    `json:"id,omitempty"`
	Answer    string    `json:"answer"`
	Reference Reference `json:"reference"`
	SessionID string    `json:"session_id"`
}

// GraphNode 是知识图谱中的实体。
type GraphNode struct {
	ID          string   `json:"id"`
	EntityName  string   `json:"entity_name,omitempty"`
	EntityType  string   `json:"entity_type"`
	Description string   `json:"description,omitempty"`
	PageRank    float64  `json:"pagerank"`
	Rank        int      `json:"rank,omitempty"`
	SourceID    []string `json:"source_id,omitempty"`
}

// Name 返回实体名称。
func (n GraphNode) Name() string {
	if n.EntityName != "" {
		return n.EntityName
	}
	return n.ID
}

// GraphEdge 是知识图谱中的关系。
type GraphEdge struct {
	Source      string   `json:"source"`
	Target      string   `json:"target"`
	Description string   `json:"description,omitempty"`
	Weight      float64  `json:"weight"`
	Keywords    []string `json:"keywords,omitempty"`
	SourceID    []string `json:"source_id,omitempty"`
}

// Graph 是节点与边的集合。
type Graph struct {
	Directed bool        `json:"directed"`
	Nodes    []GraphNode `json:"nodes"`
	Edges    []GraphEdge `json:"edges"`
}

// UnmarshalJSON 同时接受 networkx 的 "links" 与 "edges" 两种写法。
func (g *Graph) UnmarshalJSON(b []byte) error {
	var raw struct {
		Directed bool        `json:"directed"`
		Nodes    []GraphNode `json:"nodes"`
		Edges    []GraphEdge `json:"edges"`
		Links    []GraphEdge `json:"links"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	g.Directed = raw.Directed
	g.Nodes = raw.Nodes
	g.Edges = append(raw.Edges, raw.Links...)
	return nil
}

// KnowledgeGraph 是数据集的知识图谱与思维导图。
type KnowledgeGraph struct {
	Graph   Graph                  `json:"graph"`
	MindMap map[string]interface{} `json:"mind_map,omitempty"`
}
