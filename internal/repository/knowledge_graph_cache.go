package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ragflow-bridge/pkg/ragflow"
)

// KnowledgeGraphCache 在 Redis 中缓存远端知识图谱。
type KnowledgeGraphCache interface {
	Get(ctx context.Context, remoteDatasetID string) (*ragflow.KnowledgeGraph, bool, error)
	Set(ctx context.Context, remoteDatasetID string, kg *ragflow.KnowledgeGraph) error
	Invalidate(ctx context.Context, remoteDatasetID string) error
}

type knowledgeGraphCache struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewKnowledgeGraphCache 创建缓存，ttl <= 0 时关闭缓存。
func NewKnowledgeGraphCache(redisClient *redis.Client, ttl time.Duration) KnowledgeGraphCache {
	return &knowledgeGraphCache{redisClient: redisClient, ttl: ttl}
}

func kgKey(remoteDatasetID string) string {
	return fmt.Sprintf("kg:%s", remoteDatasetID)
}

func (c *knowledgeGraphCache) Get(ctx context.Context, remoteDatasetID string) (*ragflow.KnowledgeGraph, bool, error) {
	if c.ttl <= 0 {
		return nil, false, nil
	}
	data, err := c.redisClient.Get(ctx, kgKey(remoteDatasetID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var kg ragflow.KnowledgeGraph
	if err := json.Unmarshal(data, &kg); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal knowledge graph: %w", err)
	}
	return &kg, true, nil
}

func (c *knowledgeGraphCache) Set(ctx context.Context, remoteDatasetID string, kg *ragflow.KnowledgeGraph) error {
	if c.ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(kg)
	if err != nil {
		return err
	}
	return c.redisClient.Set(ctx, kgKey(remoteDatasetID), data, c.ttl).Err()
}

func (c *knowledgeGraphCache) Invalidate(ctx context.Context, remoteDatasetID string) error {
	return c.redisClient.Del(ctx, kgKey(remoteDatasetID)).Err()
}
