package service

import (
	"context"
	"fmt"

	"ragflow-bridge/internal/model"
	"ragflow-bridge/internal/repository"
	"ragflow-bridge/pkg/log"
	"ragflow-bridge/pkg/ragflow"
)

const defaultSearchSize = 10

// ChunkQuery 是分块列表的查询条件。
type ChunkQuery struct {
	Keywords string `form:"keywords"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// AddChunkRequest 是新增分块的请求体。
type AddChunkRequest struct {
	Content           string   `json:"content" validate:"required"`
	ImportantKeywords []string `json:"importantKeywords"`
	Questions         []string `json:"questions"`
}

// UpdateChunkRequest 是修改分块的请求体，nil 字段保持不变。
type UpdateChunkRequest struct {
	Content           *string  `json:"content" validate:"omitempty,min=1"`
	ImportantKeywords []string `json:"importantKeywords"`
	Questions         []string `json:"questions"`
	Available         *bool    `json:"available"`
}

// RetrievalRequest 是针对单个数据集的检索测试请求，DocumentIDs 为本地文档 ID。
type RetrievalRequest struct {
	Question               string   `json:"question" validate:"required"`
	DocumentIDs            []uint   `json:"documentIds"`
	SimilarityThreshold    *float64 `json:"similarityThreshold" validate:"omitempty,gte=0,lte=1"`
	VectorSimilarityWeight *float64 `json:"vectorSimilarityWeight" validate:"omitempty,gte=0,lte=1"`
	TopK                   int      `json:"topK" validate:"gte=0"`
	Page                   int      `json:"page" validate:"gte=0"`
	PageSize               int      `json:"pageSize" validate:"gte=0,lte=100"`
	Keyword                bool     `json:"keyword"`
	Highlight              bool     `json:"highlight"`
}

// RetrievalResult 是检索测试的结果。
type RetrievalResult struct {
	Chunks  []model.VirtualChunk   `json:"chunks"`
	DocAggs []ragflow.DocAggregate `json:"docAggs"`
	Total   int                    `json:"total"`
}

// ChunkService 接口定义了分块查看、编辑与检索相关的业务操作。
type ChunkService interface {
	List(ctx context.Context, datasetID, docID uint, q ChunkQuery) (*PageResult[model.VirtualChunk], error)
	Add(ctx context.Context, datasetID, docID uint, req AddChunkRequest) (*model.VirtualChunk, error)
	Update(ctx context.Context, datasetID, docID uint, chunkID string, req UpdateChunkRequest) error
	Delete(ctx context.Context, datasetID, docID uint, chunkIDs []string) error
	Retrieve(ctx context.Context, datasetID uint, req RetrievalRequest) (*RetrievalResult, error)
	Search(ctx context.Context, datasetID uint, query string, size int) ([]model.VirtualChunk, error)
}

type chunkService struct {
	documentRepo repository.DocumentRepository
	datasetRepo  repository.DatasetRepository
	client       *ragflow.Client
	indexer      ChunkIndexer
}

// NewChunkService 创建一个新的 ChunkService 实例。indexer 可以为 nil。
func NewChunkService(documentRepo repository.DocumentRepository, datasetRepo repository.DatasetRepository, client *ragflow.Client, indexer ChunkIndexer) ChunkService {
	return &chunkService{
		documentRepo: documentRepo,
		datasetRepo:  datasetRepo,
		client:       client,
		indexer:      indexer,
	}
}

// target 返回已上传到 RAGFlow 的文档及其数据集。
func (s *chunkService) target(datasetID, docID uint) (*model.Dataset, *model.Document, error) {
	ds, err := s.datasetRepo.FindByID(datasetID)
	if err != nil {
		return nil, nil, notFound("数据集", err)
	}
	doc, err := s.documentRepo.FindByID(docID)
	if err != nil {
		return nil, nil, notFound("文档", err)
	}
	if doc.DatasetID != ds.ID {
		return nil, nil, fmt.Errorf("文档 %d 不属于数据集 %d: %w", docID, datasetID, ErrNotFound)
	}
	if !doc.HasRemote() {
		return nil, nil, invalidState("文档 %d 尚未上传到 RAGFlow", docID)
	}
	return ds, doc, nil
}

// List 分页列出文档的远端分块。
func (s *chunkService) List(ctx context.Context, datasetID, docID uint, q ChunkQuery) (*PageResult[model.VirtualChunk], error) {
	ds, doc, err := s.target(datasetID, docID)
	if err != nil {
		return nil, err
	}
	page, pageSize := normalizePage(q.Page, q.PageSize)
	list, err := s.client.ListChunks(ctx, ds.RemoteID, doc.RemoteIDValue(), ragflow.ListChunksParams{
		Page:     page,
		PageSize: pageSize,
		Keywords: q.Keywords,
	})
	if err != nil {
		return nil, fmt.Errorf("查询分块失败: %w", err)
	}
	items := make([]model.VirtualChunk, 0, len(list.Chunks))
	for _, ch := range list.Chunks {
		vc := toVirtualChunk(ch, ds.RemoteID)
		if vc.DocumentName == "" {
			vc.DocumentName = doc.Name
		}
		items = append(items, vc)
	}
	return &PageResult[model.VirtualChunk]{Items: items, Total: int64(list.Total), Page: page, PageSize: pageSize}, nil
}

// Add 新增一个人工分块，并同步写入本地索引。
func (s *chunkService) Add(ctx context.Context, datasetID, docID uint, req AddChunkRequest) (*model.VirtualChunk, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	ds, doc, err := s.target(datasetID, docID)
	if err != nil {
		return nil, err
	}
	ch, err := s.client.AddChunk(ctx, ds.RemoteID, doc.RemoteIDValue(), ragflow.ChunkRequest{
		Content:           req.Content,
		ImportantKeywords: req.ImportantKeywords,
		Questions:         req.Questions,
	})
	if err != nil {
		log.Errorf("[ChunkService] 新增分块失败, docId: %d, error: %v", docID, err)
		return nil, fmt.Errorf("新增分块失败: %w", err)
	}
	vc := toVirtualChunk(*ch, ds.RemoteID)
	if vc.DocumentName == "" {
		vc.DocumentName = doc.Name
	}
	if s.indexer != nil {
		if err := s.indexer.IndexChunks(ctx, []model.ChunkIndexDocument{vc.ToIndexDocument()}); err != nil {
			log.Warnf("[ChunkService] 写入分块索引失败, chunkId: %s, error: %v", vc.ID, err)
		}
	}
	return &vc, nil
}

// Update 修改远端分块，并刷新该分块的本地索引。
func (s *chunkService) Update(ctx context.Context, datasetID, docID uint, chunkID string, req UpdateChunkRequest) error {
	if chunkID == "" {
		return invalidArgument("chunkId 不能为空")
	}
	if err := validate(req); err != nil {
		return err
	}
	ds, doc, err := s.target(datasetID, docID)
	if err != nil {
		return err
	}
	remoteReq := ragflow.ChunkRequest{
		ImportantKeywords: req.ImportantKeywords,
		Questions:         req.Questions,
		Available:         req.Available,
	}
	if req.Content != nil {
		remoteReq.Content = *req.Content
	}
	if err := s.client.UpdateChunk(ctx, ds.RemoteID, doc.RemoteIDValue(), chunkID, remoteReq); err != nil {
		log.Errorf("[ChunkService] 修改分块失败, chunkId: %s, error: %v", chunkID, err)
		return fmt.Errorf("修改分块失败: %w", err)
	}
	s.reindex(ctx, ds, doc, chunkID)
	return nil
}

func (s *chunkService) reindex(ctx context.Context, ds *model.Dataset, doc *model.Document, chunkID string) {
	if s.indexer == nil {
		return
	}
	list, err := s.client.ListChunks(ctx, ds.RemoteID, doc.RemoteIDValue(), ragflow.ListChunksParams{ID: chunkID, Page: 1, PageSize: 1})
	if err != nil || len(list.Chunks) == 0 {
		log.Warnf("[ChunkService] 读取分块失败，跳过索引更新, chunkId: %s, error: %v", chunkID, err)
		return
	}
	vc := toVirtualChunk(list.Chunks[0], ds.RemoteID)
	if vc.DocumentName == "" {
		vc.DocumentName = doc.Name
	}
	if err := s.indexer.IndexChunks(ctx, []model.ChunkIndexDocument{vc.ToIndexDocument()}); err != nil {
		log.Warnf("[ChunkService] 更新分块索引失败, chunkId: %s, error: %v", chunkID, err)
	}
}

// Delete 删除远端分块，并从本地索引中移除。
func (s *chunkService) Delete(ctx context.Context, datasetID, docID uint, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return invalidArgument("chunkIds 不能为空")
	}
	ds, doc, err := s.target(datasetID, docID)
	if err != nil {
		return err
	}
	if err := s.client.DeleteChunks(ctx, ds.RemoteID, doc.RemoteIDValue(), chunkIDs); err != nil {
		log.Errorf("[ChunkService] 删除分块失败, docId: %d, error: %v", docID, err)
		return fmt.Errorf("删除分块失败: %w", err)
	}
	if s.indexer != nil {
		if err := s.indexer.DeleteChunks(ctx, chunkIDs); err != nil {
			log.Warnf("[ChunkService] 删除分块索引失败, docId: %d, error: %v", docID, err)
		}
	}
	return nil
}

// Retrieve 在单个数据集内执行检索测试，可限定本地文档 ID。
func (s *chunkService) Retrieve(ctx context.Context, datasetID uint, req RetrievalRequest) (*RetrievalResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	ds, err := s.datasetRepo.FindByID(datasetID)
	if err != nil {
		return nil, notFound("数据集", err)
	}
	remoteReq := ragflow.RetrievalRequest{
		Question:               req.Question,
		DatasetIDs:             []string{ds.RemoteID},
		Page:                   req.Page,
		PageSize:               req.PageSize,
		SimilarityThreshold:    req.SimilarityThreshold,
		VectorSimilarityWeight: req.VectorSimilarityWeight,
		TopK:                   req.TopK,
		Keyword:                req.Keyword,
		Highlight:              req.Highlight,
	}
	if len(req.DocumentIDs) > 0 {
		docs, err := s.documentRepo.FindByIDs(ds.ID, req.DocumentIDs)
		if err != nil {
			return nil, fmt.Errorf("查询文档失败: %w", err)
		}
		for _, d := range docs {
			if d.HasRemote() {
				remoteReq.DocumentIDs = append(remoteReq.DocumentIDs, d.RemoteIDValue())
			}
		}
		if len(remoteReq.DocumentIDs) == 0 {
			return nil, invalidArgument("documentIds 中没有已上传的文档")
		}
	}

	res, err := s.client.Retrieve(ctx, remoteReq)
	if err != nil {
		log.Errorf("[ChunkService] 检索失败, datasetId: %d, error: %v", datasetID, err)
		return nil, fmt.Errorf("检索失败: %w", err)
	}
	out := &RetrievalResult{
		Chunks:  make([]model.VirtualChunk, 0, len(res.Chunks)),
		DocAggs: res.DocAggs,
		Total:   res.Total,
	}
	if out.DocAggs == nil {
		out.DocAggs = []ragflow.DocAggregate{}
	}
	for _, ch := range res.Chunks {
		out.Chunks = append(out.Chunks, fromRetrievedChunk(ch))
	}
	return out, nil
}

// Search 在本地 Elasticsearch 镜像中全文检索分块，未启用时返回空结果。
func (s *chunkService) Search(ctx context.Context, datasetID uint, query string, size int) ([]model.VirtualChunk, error) {
	if query == "" {
		return nil, invalidArgument("q 不能为空")
	}
	ds, err := s.datasetRepo.FindByID(datasetID)
	if err != nil {
		return nil, notFound("数据集", err)
	}
	if s.indexer == nil {
		return []model.VirtualChunk{}, nil
	}
	if size <= 0 || size > maxPageSize {
		size = defaultSearchSize
	}
	chunks, err := s.indexer.Search(ctx, ds.RemoteID, query, size)
	if err != nil {
		log.Errorf("[ChunkService] 全文检索失败, datasetId: %d, error: %v", datasetID, err)
		return nil, fmt.Errorf("全文检索失败: %w", err)
	}
	if chunks == nil {
		chunks = []model.VirtualChunk{}
	}
	return chunks, nil
}

func toVirtualChunk(ch ragflow.Chunk, remoteDatasetID string) model.VirtualChunk {
	vc := model.VirtualChunk{
		ID:                ch.ID,
		DatasetID:         ch.DatasetID,
		DocumentID:        ch.DocumentID,
		DocumentName:      ch.DocumentName,
		Content:           ch.Content,
		ImportantKeywords: ch.ImportantKeywords,
		Questions:         ch.Questions,
		Available:         ch.Available == nil || *ch.Available,
		ImageID:           ch.ImageID,
		Positions:         ch.Positions,
	}
	if vc.DatasetID == "" {
		vc.DatasetID = remoteDatasetID
	}
	if vc.ImportantKeywords == nil {
		vc.ImportantKeywords = []string{}
	}
	return vc
}

func fromRetrievedChunk(ch ragflow.RetrievedChunk) model.VirtualChunk {
	content := ch.Content
	if ch.Highlight != "" {
		content = ch.Highlight
	}
	keywords := ch.ImportantKeywords
	if keywords == nil {
		keywords = []string{}
	}
	return model.VirtualChunk{
		ID:                ch.ID,
		DatasetID:         ch.DatasetID,
		DocumentID:        ch.DocumentID,
		DocumentName:      ch.DocumentKeyword,
		Content:           content,
		ImportantKeywords: keywords,
		Available:         true,
		ImageID:           ch.ImageID,
		Similarity:        ch.Similarity,
	}
}
