package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"ragflow-bridge/internal/model"
)

const (
	historyLimit = 20
	historyTTL   = 7 * 24 * time.Hour
)

// ConversationRepository 定义了会话镜像 (MySQL) 与对话历史 (Redis) 的操作接口。
type ConversationRepository interface {
	Create(conv *model.Conversation) error
	Save(conv *model.Conversation) error
	Delete(id string) error
	FindByID(id string) (*model.Conversation, error)
	ListByAssistant(assistantID uint, userRef string, page, pageSize int) ([]model.Conversation, int64, error)
	ListIDsByAssistant(assistantID uint) ([]string, error)
	DeleteByAssistant(assistantID uint) error
	Count() (int64, error)
	RecordMessages(id string, count int, at time.Time) error

	GetConversationHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error)
	AppendConversationHistory(ctx context.Context, conversationID string, messages ...model.ChatMessage) error
	DeleteConversationHistory(ctx context.Context, conversationIDs ...string) error
}

type conversationRepository struct {
	db          *gorm.DB
	redisClient *redis.Client
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(db *gorm.DB, redisClient *redis.Client) ConversationRepository {
	return &conversationRepository{db: db, redisClient: redisClient}
}

func (r *conversationRepository) Create(conv *model.Conversation) error {
	return r.db.Create(conv).Error
}

func (r *conversationRepository) Save(conv *model.Conversation) error {
	return r.db.Save(conv).Error
}

func (r *conversationRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&model.Conversation{}).Error
}

func (r *conversationRepository) FindByID(id string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := r.db.Where("id = ?", id).First(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListByAssistant 按最近活跃排序，userRef 为空时不过滤。
func (r *conversationRepository) ListByAssistant(assistantID uint, userRef string, page, pageSize int) ([]model.Conversation, int64, error) {
	var (
		list  []model.Conversation
		total int64
	)
	q := r.db.Model(&model.Conversation{}).Where("chat_assistant_id = ?", assistantID)
	if userRef != "" {
		q = q.Where("user_ref = ?", userRef)
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("updated_at DESC").Offset(offset(page, pageSize)).Limit(pageSize).Find(&list).Error
	return list, total, err
}

func (r *conversationRepository) ListIDsByAssistant(assistantID uint) ([]string, error) {
	var ids []string
	err := r.db.Model(&model.Conversation{}).Where("chat_assistant_id = ?", assistantID).Pluck("id", &ids).Error
	return ids, err
}

func (r *conversationRepository) DeleteByAssistant(assistantID uint) error {
	return r.db.Where("chat_assistant_id = ?", assistantID).Delete(&model.Conversation{}).Error
}

// RecordMessages 原子地增加消息计数并更新最近消息时间。
func (r *conversationRepository) RecordMessages(id string, count int, at time.Time) error {
	res := r.db.Model(&model.Conversation{}).Where("id = ?", id).Updates(map[string]interface{}{
		"message_count":   gorm.Expr("message_count + ?", count),
		"last_message_at": at,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *conversationRepository) Count() (int64, error) {
	var n int64
	err := r.db.Model(&model.Conversation{}).Count(&n).Error
	return n, err
}

func historyKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s", conversationID)
}

// GetConversationHistory 从 Redis 列表中按时间顺序读取对话历史。
func (r *conversationRepository) GetConversationHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error) {
	items, err := r.redisClient.LRange(ctx, historyKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	messages := make([]model.ChatMessage, 0, len(items))
	for _, item := range items {
		var msg model.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conversation history: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// AppendConversationHistory 在一个事务中 RPUSH 新消息、裁剪到最近 20 条并刷新 7 天过期时间。
// 同一次调用的消息在列表中保持相邻。
func (r *conversationRepository) AppendConversationHistory(ctx context.Context, conversationID string, messages ...model.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(messages))
	for _, msg := range messages {
		b, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal conversation history: %w", err)
		}
		values = append(values, b)
	}
	key := historyKey(conversationID)
	_, err := r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.LTrim(ctx, key, -historyLimit, -1)
		pipe.Expire(ctx, key, historyTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append conversation history: %w", err)
	}
	return nil
}

func (r *conversationRepository) DeleteConversationHistory(ctx context.Context, conversationIDs ...string) error {
	if len(conversationIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(conversationIDs))
	for _, id := range conversationIDs {
		keys = append(keys, historyKey(id))
	}
	return r.redisClient.Del(ctx, keys...).Err()
}
