package service

import (
	"context"
	"fmt"
	"time"

	"ragflow-bridge/internal/model"
	"ragflow-bridge/internal/repository"
	"ragflow-bridge/pkg/log"
	"ragflow-bridge/pkg/ragflow"
	"ragflow-bridge/pkg/storage"
)

const syncPageSize = 100

// CreateDatasetRequest 是创建数据集的请求体。
type CreateDatasetRequest struct {
	Name           string `json:"name" validate:"required,max=128"`
	Description    string `json:"description" validate:"max=65535"`
	Avatar         string `json:"avatar"`
	EmbeddingModel string `json:"embeddingModel" validate:"max=128"`
	ChunkMethod    string `json:"chunkMethod" validate:"chunk_method"`
	Permission     string `json:"permission" validate:"permission"`
}

// UpdateDatasetRequest 是修改数据集的请求体，nil 字段保持不变。
type UpdateDatasetRequest struct {
	Name           *string `json:"name" validate:"omitempty,min=1,max=128"`
	Description    *string `json:"description"`
	Avatar         *string `json:"avatar"`
	EmbeddingModel *string `json:"embeddingModel" validate:"omitempty,max=128"`
	ChunkMethod    *string `json:"chunkMethod" validate:"omitempty,chunk_method"`
	Permission     *string `json:"permission" validate:"omitempty,permission"`
}

// SyncResult 汇总一次远端同步的结果。
type SyncResult struct {
	Created       int   `json:"created"`
	Updated       int   `json:"updated"`
	MarkedMissing int64 `json:"markedMissing"`
}

// DatasetService 接口定义了数据集管理相关的业务操作。
type DatasetService interface {
	Create(ctx context.Context, req CreateDatasetRequest) (*model.Dataset, error)
	Update(ctx context.Context, id uint, req UpdateDatasetRequest) (*model.Dataset, error)
	Delete(ctx context.Context, id uint) error
	Get(id uint) (*model.Dataset, error)
	List(page, pageSize int, keyword string) (*PageResult[model.Dataset], error)
	Sync(ctx context.Context) (*SyncResult, error)
}

type datasetService struct {
	datasetRepo  repository.DatasetRepository
	documentRepo repository.DocumentRepository
	client       *ragflow.Client
	store        storage.ObjectStore
	indexer      ChunkIndexer
}

// NewDatasetService 创建一个新的 DatasetService 实例。indexer 可以为 nil。
func NewDatasetService(datasetRepo repository.DatasetRepository, documentRepo repository.DocumentRepository, client *ragflow.Client, store storage.ObjectStore, indexer ChunkIndexer) DatasetService {
	return &datasetService{
		datasetRepo:  datasetRepo,
		documentRepo: documentRepo,
		client:       client,
		store:        store,
		indexer:      indexer,
	}
}

// Create 先在 RAGFlow 创建数据集，再写入本地镜像。
func (s *datasetService) Create(ctx context.Context, req CreateDatasetRequest) (*model.Dataset, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	remote, err := s.client.CreateDataset(ctx, ragflow.DatasetRequest{
		Name:           req.Name,
		Description:    req.Description,
		Avatar:         req.Avatar,
		EmbeddingModel: req.EmbeddingModel,
		ChunkMethod:    req.ChunkMethod,
		Permission:     req.Permission,
	})
	if err != nil {
		log.Errorf("[DatasetService] 远端创建数据集失败, name: %s, error: %v", req.Name, err)
		return nil, fmt.Errorf("创建远端数据集失败: %w", err)
	}

	ds := &model.Dataset{}
	applyRemoteDataset(ds, *remote)
	if ds.ChunkMethod == "" {
		ds.ChunkMethod = model.ChunkMethod(req.ChunkMethod)
	}
	if err := s.datasetRepo.Create(ds); err != nil {
		log.Errorf("[DatasetService] 保存数据集镜像失败, remoteId: %s, error: %v", remote.ID, err)
		return nil, fmt.Errorf("保存数据集失败: %w", err)
	}
	log.Infof("[DatasetService] 数据集创建成功, id: %d, remoteId: %s", ds.ID, ds.RemoteID)
	return ds, nil
}

// Update 先修改远端，再更新本地镜像。
func (s *datasetService) Update(ctx context.Context, id uint, req UpdateDatasetRequest) (*model.Dataset, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	ds, err := s.datasetRepo.FindByID(id)
	if err != nil {
		return nil, notFound("数据集", err)
	}

	remoteReq := ragflow.DatasetRequest{}
	if req.Name != nil {
		ds.Name = *req.Name
		remoteReq.Name = *req.Name
	}
	if req.Description != nil {
		ds.Description = *req.Description
		remoteReq.Description = *req.Description
	}
	if req.Avatar != nil {
		ds.Avatar = *req.Avatar
		remoteReq.Avatar = *req.Avatar
	}
	if req.EmbeddingModel != nil {
		ds.EmbeddingModel = *req.EmbeddingModel
		remoteReq.EmbeddingModel = *req.EmbeddingModel
	}
	if req.ChunkMethod != nil {
		ds.ChunkMethod = model.ChunkMethod(*req.ChunkMethod)
		remoteReq.ChunkMethod = *req.ChunkMethod
	}
	if req.Permission != nil {
		ds.Permission = model.Permission(*req.Permission)
		remoteReq.Permission = *req.Permission
	}

	if err := s.client.UpdateDataset(ctx, ds.RemoteID, remoteReq); err != nil {
		log.Errorf("[DatasetService] 远端更新数据集失败, id: %d, error: %v", id, err)
		return nil, fmt.Errorf("更新远端数据集失败: %w", err)
	}
	now := time.Now()
	ds.SyncStatus = model.StatusSynced
	ds.LastSyncedAt = &now
	if err := s.datasetRepo.Update(ds); err != nil {
		return nil, fmt.Errorf("保存数据集失败: %w", err)
	}
	return ds, nil
}

// Delete 尽力删除远端数据集，然后删除本地镜像及其文档。
func (s *datasetService) Delete(ctx context.Context, id uint) error {
	ds, err := s.datasetRepo.FindByID(id)
	if err != nil {
		return notFound("数据集", err)
	}
	if err := s.client.DeleteDatasets(ctx, []string{ds.RemoteID}); err != nil {
		log.Warnf("[DatasetService] 远端删除数据集失败，继续删除本地记录, id: %d, remoteId: %s, error: %v", id, ds.RemoteID, err)
	}

	docs, err := s.documentRepo.ListByDataset(id)
	if err != nil {
		return fmt.Errorf("查询数据集文档失败: %w", err)
	}
	for _, doc := range docs {
		if doc.ObjectKey != "" {
			if err := s.store.Remove(ctx, doc.ObjectKey); err != nil {
				log.Warnf("[DatasetService] 删除归档文件失败, key: %s, error: %v", doc.ObjectKey, err)
			}
		}
		if s.indexer != nil && doc.HasRemote() {
			if err := s.indexer.DeleteByDocument(ctx, doc.RemoteIDValue()); err != nil {
				log.Warnf("[DatasetService] 删除分块索引失败, document: %s, error: %v", doc.RemoteIDValue(), err)
			}
		}
	}
	if err := s.documentRepo.DeleteByDataset(id); err != nil {
		return fmt.Errorf("删除数据集文档失败: %w", err)
	}
	if err := s.datasetRepo.Delete(id); err != nil {
		return fmt.Errorf("删除数据集失败: %w", err)
	}
	log.Infof("[DatasetService] 数据集已删除, id: %d, documents: %d", id, len(docs))
	return nil
}

// Get 返回本地数据集镜像。
func (s *datasetService) Get(id uint) (*model.Dataset, error) {
	ds, err := s.datasetRepo.FindByID(id)
	if err != nil {
		return nil, notFound("数据集", err)
	}
	return ds, nil
}

// List 分页列出本地数据集镜像。
func (s *datasetService) List(page, pageSize int, keyword string) (*PageResult[model.Dataset], error) {
	page, pageSize = normalizePage(page, pageSize)
	items, total, err := s.datasetRepo.List(page, pageSize, keyword)
	if err != nil {
		return nil, fmt.Errorf("查询数据集列表失败: %w", err)
	}
	return &PageResult[model.Dataset]{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// Sync 分页拉取全部远端数据集并按 remoteId 更新本地镜像，
// 远端已不存在的镜像标记为 sync_failed。
func (s *datasetService) Sync(ctx context.Context) (*SyncResult, error) {
	result := &SyncResult{}
	var seen []string
	for page := 1; ; page++ {
		remotes, err := s.client.ListDatasets(ctx, ragflow.ListDatasetsParams{Page: page, PageSize: syncPageSize})
		if err != nil {
			log.Errorf("[DatasetService] 拉取远端数据集失败, page: %d, error: %v", page, err)
			return nil, fmt.Errorf("拉取远端数据集失败: %w", err)
		}
		for _, remote := range remotes {
			seen = append(seen, remote.ID)
			created, err := s.upsert(remote)
			if err != nil {
				return nil, err
			}
			if created {
				result.Created++
			} else {
				result.Updated++
			}
		}
		if len(remotes) < syncPageSize {
			break
		}
	}

	missing, err := s.datasetRepo.MarkMissingAsSyncFailed(seen)
	if err != nil {
		return nil, fmt.Errorf("标记失联数据集失败: %w", err)
	}
	result.MarkedMissing = missing
	log.Infof("[DatasetService] 数据集同步完成, created: %d, updated: %d, missing: %d", result.Created, result.Updated, missing)
	return result, nil
}

func (s *datasetService) upsert(remote ragflow.Dataset) (bool, error) {
	ds, err := s.datasetRepo.FindByRemoteID(remote.ID)
	if err != nil {
		if !errorsIsNotFound(err) {
			return false, fmt.Errorf("查询数据集失败: %w", err)
		}
		ds = &model.Dataset{}
		applyRemoteDataset(ds, remote)
		if err := s.datasetRepo.Create(ds); err != nil {
			return false, fmt.Errorf("保存数据集失败: %w", err)
		}
		return true, nil
	}
	applyRemoteDataset(ds, remote)
	if err := s.datasetRepo.Update(ds); err != nil {
		return false, fmt.Errorf("更新数据集失败: %w", err)
	}
	return false, nil
}

// applyRemoteDataset 将远端字段写入本地镜像并标记为已同步。
func applyRemoteDataset(ds *model.Dataset, r ragflow.Dataset) {
	now := time.Now()
	ds.RemoteID = r.ID
	ds.Name = r.Name
	ds.Description = r.Description
	ds.Avatar = r.Avatar
	ds.EmbeddingModel = r.EmbeddingModel
	if r.ChunkMethod != "" {
		ds.ChunkMethod = model.ChunkMethod(r.ChunkMethod)
	}
	if r.Permission != "" {
		ds.Permission = model.Permission(r.Permission)
	}
	ds.Language = r.Language
	ds.DocumentCount = r.DocumentCount
	ds.ChunkCount = r.ChunkCount
	ds.TokenNum = r.TokenNum
	ds.SyncStatus = model.StatusSynced
	ds.LastSyncedAt = &now
}
