package service

import (
	"context"
	"fmt"

	"ragflow-bridge/internal/knowledgegraph"
	"ragflow-bridge/internal/model"
	"ragflow-bridge/internal/repository"
	"ragflow-bridge/pkg/log"
	"ragflow-bridge/pkg/ragflow"
)

// RelationsResult 是关系查询的结果。Neighbors 只在指定实体时返回。
type RelationsResult struct {
	Relations []knowledgegraph.Relation `json:"relations"`
	Neighbors []string                  `json:"neighbors,omitempty"`
}

// KnowledgeGraphService 接口定义了知识图谱查询相关的业务操作。
type KnowledgeGraphService interface {
	Get(ctx context.Context, datasetID uint) (*ragflow.KnowledgeGraph, error)
	Entities(ctx context.Context, datasetID uint, q knowledgegraph.EntityQuery) ([]knowledgegraph.Entity, error)
	Relations(ctx context.Context, datasetID uint, q knowledgegraph.RelationQuery) (*RelationsResult, error)
	Stats(ctx context.Context, datasetID uint, topN int) (*knowledgegraph.Stats, error)
	Delete(ctx context.Context, datasetID uint) error
}

type knowledgeGraphService struct {
	datasetRepo repository.DatasetRepository
	cache       repository.KnowledgeGraphCache
	client      *ragflow.Client
	entities    *knowledgegraph.EntityFilter
	relations   *knowledgegraph.RelationExtractor
}

// NewKnowledgeGraphService 创建一个新的 KnowledgeGraphService 实例。
func NewKnowledgeGraphService(datasetRepo repository.DatasetRepository, cache repository.KnowledgeGraphCache, client *ragflow.Client) KnowledgeGraphService {
	return &knowledgeGraphService{
		datasetRepo: datasetRepo,
		cache:       cache,
		client:      client,
		entities:    knowledgegraph.NewEntityFilter(),
		relations:   knowledgegraph.NewRelationExtractor(),
	}
}

func (s *knowledgeGraphService) dataset(id uint) (*model.Dataset, error) {
	ds, err := s.datasetRepo.FindByID(id)
	if err != nil {
		return nil, notFound("数据集", err)
	}
	return ds, nil
}

// Get 返回数据集的知识图谱，优先读取 Redis 缓存。
func (s *knowledgeGraphService) Get(ctx context.Context, datasetID uint) (*ragflow.KnowledgeGraph, error) {
	ds, err := s.dataset(datasetID)
	if err != nil {
		return nil, err
	}
	kg, hit, err := s.cache.Get(ctx, ds.RemoteID)
	if err != nil {
		log.Warnf("[KnowledgeGraphService] 读取图谱缓存失败, datasetId: %d, error: %v", datasetID, err)
	}
	if hit {
		return kg, nil
	}

	kg, err = s.client.GetKnowledgeGraph(ctx, ds.RemoteID)
	if err != nil {
		log.Errorf("[KnowledgeGraphService] 获取知识图谱失败, datasetId: %d, error: %v", datasetID, err)
		return nil, fmt.Errorf("获取知识图谱失败: %w", err)
	}
	if kg.Graph.Nodes == nil {
		kg.Graph.Nodes = []ragflow.GraphNode{}
	}
	if kg.Graph.Edges == nil {
		kg.Graph.Edges = []ragflow.GraphEdge{}
	}
	if err := s.cache.Set(ctx, ds.RemoteID, kg); err != nil {
		log.Warnf("[KnowledgeGraphService] 写入图谱缓存失败, datasetId: %d, error: %v", datasetID, err)
	}
	return kg, nil
}

// Entities 按条件过滤图谱中的实体。
func (s *knowledgeGraphService) Entities(ctx context.Context, datasetID uint, q knowledgegraph.EntityQuery) ([]knowledgegraph.Entity, error) {
	kg, err := s.Get(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	return s.entities.Filter(kg.Graph, q), nil
}

// Relations 按条件提取关系，指定实体时附带其邻居。
func (s *knowledgeGraphService) Relations(ctx context.Context, datasetID uint, q knowledgegraph.RelationQuery) (*RelationsResult, error) {
	if q.Direction == "" {
		q.Direction = knowledgegraph.DirectionBoth
	}
	kg, err := s.Get(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	result := &RelationsResult{Relations: s.relations.Extract(kg.Graph, q)}
	if q.Entity != "" {
		result.Neighbors = s.relations.Neighbors(kg.Graph, q.Entity, q.Direction)
	}
	return result, nil
}

// Stats 计算图谱统计信息。
func (s *knowledgeGraphService) Stats(ctx context.Context, datasetID uint, topN int) (*knowledgegraph.Stats, error) {
	kg, err := s.Get(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	st := knowledgegraph.NewStatsCalculator(topN).Calculate(kg.Graph)
	return &st, nil
}

// Delete 删除远端知识图谱并清除缓存。
func (s *knowledgeGraphService) Delete(ctx context.Context, datasetID uint) error {
	ds, err := s.dataset(datasetID)
	if err != nil {
		return err
	}
	if err := s.client.DeleteKnowledgeGraph(ctx, ds.RemoteID); err != nil {
		log.Errorf("[KnowledgeGraphService] 删除知识图谱失败, datasetId: %d, error: %v", datasetID, err)
		return fmt.Errorf("删除知识图谱失败: %w", err)
	}
	if err := s.cache.Invalidate(ctx, ds.RemoteID); err != nil {
		log.Warnf("[KnowledgeGraphService] 清除图谱缓存失败, datasetId: %d, error: %v", datasetID, err)
	}
	return nil
}
