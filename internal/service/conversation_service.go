package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ragflow-bridge/internal/model"
	"ragflow-bridge/internal/repository"
	"ragflow-bridge/pkg/log"
	"ragflow-bridge/pkg/ragflow"
)

// CreateConversationRequest 是创建会话的请求体。
type CreateConversationRequest struct {
	AssistantID uint   `json:"assistantId" validate:"required"`
	Name        string `json:"name" validate:"max=255"`
	UserRef     string `json:"userRef" validate:"max=128"`
}

// SendMessageRequest 是发送消息的请求体。
type SendMessageRequest struct {
	Question string `json:"question" validate:"required"`
}

// ChatReply 是一次问答的结果。
type ChatReply struct {
	Answer       string                 `json:"answer"`
	References   []model.ChunkReference `json:"references"`
	Conversation *model.Conversation    `json:"conversation"`
}

// ConversationService 接口定义了会话与问答相关的业务操作。
type ConversationService interface {
	Create(ctx context.Context, req CreateConversationRequest) (*model.Conversation, error)
	List(assistantID uint, userRef string, page, pageSize int) (*PageResult[model.Conversation], error)
	Get(id string) (*model.Conversation, error)
	Delete(ctx context.Context, id string) error
	History(ctx context.Context, id string) ([]model.ChatMessage, error)
	SendMessage(ctx context.Context, id string, req SendMessageRequest) (*ChatReply, error)
	StreamMessage(ctx context.Context, id string, req SendMessageRequest, onChunk func(delta string) error) (*ChatReply, error)
}

type conversationService struct {
	conversationRepo repository.ConversationRepository
	assistantRepo    repository.ChatAssistantRepository
	client           *ragflow.Client
}

// NewConversationService 创建一个新的 ConversationService 实例。
func NewConversationService(conversationRepo repository.ConversationRepository, assistantRepo repository.ChatAssistantRepository, client *ragflow.Client) ConversationService {
	return &conversationService{
		conversationRepo: conversationRepo,
		assistantRepo:    assistantRepo,
		client:           client,
	}
}

// Create 在远端聊天助手下创建会话，并写入本地记录。
func (s *conversationService) Create(ctx context.Context, req CreateConversationRequest) (*model.Conversation, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	a, err := s.assistantRepo.FindByID(req.AssistantID)
	if err != nil {
		return nil, notFound("聊天助手", err)
	}
	sess, err := s.client.CreateSession(ctx, a.RemoteID, req.Name, req.UserRef)
	if err != nil {
		log.Errorf("[ConversationService] 远端创建会话失败, assistantId: %d, error: %v", a.ID, err)
		return nil, fmt.Errorf("创建远端会话失败: %w", err)
	}
	name := req.Name
	if name == "" {
		name = sess.Name
	}
	conv := &model.Conversation{
		ID:              uuid.NewString(),
		RemoteID:        sess.ID,
		ChatAssistantID: a.ID,
		Name:            name,
		UserRef:         req.UserRef,
	}
	if err := s.conversationRepo.Create(conv); err != nil {
		return nil, fmt.Errorf("保存会话失败: %w", err)
	}
	log.Infof("[ConversationService] 会话创建成功, id: %s, remoteId: %s", conv.ID, conv.RemoteID)
	return conv, nil
}

// List 分页列出聊天助手下的会话，userRef 非空时只返回该用户的会话。
func (s *conversationService) List(assistantID uint, userRef string, page, pageSize int) (*PageResult[model.Conversation], error) {
	if assistantID == 0 {
		return nil, invalidArgument("assistant_id 不能为空")
	}
	if _, err := s.assistantRepo.FindByID(assistantID); err != nil {
		return nil, notFound("聊天助手", err)
	}
	page, pageSize = normalizePage(page, pageSize)
	items, total, err := s.conversationRepo.ListByAssistant(assistantID, userRef, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("查询会话列表失败: %w", err)
	}
	return &PageResult[model.Conversation]{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// Get 返回本地会话记录。
func (s *conversationService) Get(id string) (*model.Conversation, error) {
	conv, err := s.conversationRepo.FindByID(id)
	if err != nil {
		return nil, notFound("会话", err)
	}
	return conv, nil
}

// Delete 尽力删除远端会话，然后删除本地记录和历史。
func (s *conversationService) Delete(ctx context.Context, id string) error {
	conv, err := s.Get(id)
	if err != nil {
		return err
	}
	if a, err := s.assistantRepo.FindByID(conv.ChatAssistantID); err == nil {
		if err := s.client.DeleteSessions(ctx, a.RemoteID, []string{conv.RemoteID}); err != nil {
			log.Warnf("[ConversationService] 远端删除会话失败，继续删除本地记录, id: %s, error: %v", id, err)
		}
	} else {
		log.Warnf("[ConversationService] 会话所属聊天助手不存在, id: %s, assistantId: %d", id, conv.ChatAssistantID)
	}
	if err := s.conversationRepo.DeleteConversationHistory(ctx, id); err != nil {
		log.Warnf("[ConversationService] 删除会话历史失败, id: %s, error: %v", id, err)
	}
	if err := s.conversationRepo.Delete(id); err != nil {
		return fmt.Errorf("删除会话失败: %w", err)
	}
	return nil
}

// History 返回 Redis 中缓存的最近消息。
func (s *conversationService) History(ctx context.Context, id string) ([]model.ChatMessage, error) {
	if _, err := s.Get(id); err != nil {
		return nil, err
	}
	return s.conversationRepo.GetConversationHistory(ctx, id)
}

func (s *conversationService) prepare(id string, req SendMessageRequest) (*model.Conversation, *model.ChatAssistant, error) {
	if err := validate(req); err != nil {
		return nil, nil, err
	}
	conv, err := s.Get(id)
	if err != nil {
		return nil, nil, err
	}
	a, err := s.assistantRepo.FindByID(conv.ChatAssistantID)
	if err != nil {
		return nil, nil, notFound("聊天助手", err)
	}
	return conv, a, nil
}

// SendMessage 以非流式方式提问，并记录问答历史。
func (s *conversationService) SendMessage(ctx context.Context, id string, req SendMessageRequest) (*ChatReply, error) {
	conv, a, err := s.prepare(id, req)
	if err != nil {
		return nil, err
	}
	completion, err := s.client.Converse(ctx, a.RemoteID, ragflow.CompletionRequest{
		Question:  req.Question,
		SessionID: conv.RemoteID,
		UserID:    conv.UserRef,
	})
	if err != nil {
		log.Errorf("[ConversationService] 问答失败, id: %s, error: %v", id, err)
		return nil, fmt.Errorf("问答失败: %w", err)
	}
	return s.record(ctx, conv, req.Question, completion), nil
}

// StreamMessage 以流式方式提问，每收到新的内容就以增量形式回调 onChunk。
func (s *conversationService) StreamMessage(ctx context.Context, id string, req SendMessageRequest, onChunk func(delta string) error) (*ChatReply, error) {
	conv, a, err := s.prepare(id, req)
	if err != nil {
		return nil, err
	}
	var sent string
	final, err := s.client.StreamConverse(ctx, a.RemoteID, ragflow.CompletionRequest{
		Question:  req.Question,
		SessionID: conv.RemoteID,
		UserID:    conv.UserRef,
	}, func(c ragflow.Completion) error {
		delta := c.Answer
		if strings.HasPrefix(c.Answer, sent) {
			delta = c.Answer[len(sent):]
		}
		sent = c.Answer
		if delta == "" {
			return nil
		}
		return onChunk(delta)
	})
	if err != nil {
		log.Errorf("[ConversationService] 流式问答失败, id: %s, error: %v", id, err)
		return nil, fmt.Errorf("流式问答失败: %w", err)
	}
	if final == nil {
		final = &ragflow.Completion{Answer: sent}
	}
	return s.record(ctx, conv, req.Question, final), nil
}

// record 写入问答历史并更新会话计数，失败只记录日志。
func (s *conversationService) record(ctx context.Context, conv *model.Conversation, question string, c *ragflow.Completion) *ChatReply {
	refs := toChunkReferences(c.Reference)
	now := time.Now()
	err := s.conversationRepo.AppendConversationHistory(ctx, conv.ID,
		model.ChatMessage{Role: "user", Content: question, Timestamp: now},
		model.ChatMessage{Role: "assistant", Content: c.Answer, Reference: refs, Timestamp: now},
	)
	if err != nil {
		log.Warnf("[ConversationService] 保存对话历史失败, id: %s, error: %v", conv.ID, err)
	}
	if err := s.conversationRepo.RecordMessages(conv.ID, 2, now); err != nil {
		log.Warnf("[ConversationService] 更新会话计数失败, id: %s, error: %v", conv.ID, err)
	} else if fresh, err := s.conversationRepo.FindByID(conv.ID); err == nil {
		conv = fresh
	}
	return &ChatReply{Answer: c.Answer, References: refs, Conversation: conv}
}

func toChunkReferences(ref ragflow.Reference) []model.ChunkReference {
	out := make([]model.ChunkReference, 0, len(ref.Chunks))
	for _, ch := range ref.Chunks {
		out = append(out, model.ChunkReference{
			ChunkID:      ch.ID,
			DocumentID:   ch.DocumentID,
			DocumentName: ch.DocumentName,
			DatasetID:    ch.DatasetID,
			Content:      ch.Content,
			Similarity:   ch.Similarity,
		})
	}
	return out
}
