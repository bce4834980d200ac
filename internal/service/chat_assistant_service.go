package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ragflow-bridge/internal/model"
	"ragflow-bridge/internal/repository"
	"ragflow-bridge/pkg/log"
	"ragflow-bridge/pkg/ragflow"
)

// CreateChatAssistantRequest 是创建聊天助手的请求体，DatasetIDs 为本地数据集 ID。
type CreateChatAssistantRequest struct {
	Name        string               `json:"name" validate:"required,max=255"`
	Description string               `json:"description"`
	Avatar      string               `json:"avatar"`
	DatasetIDs  []uint               `json:"datasetIds"`
	LLM         model.LLMSettings    `json:"llm"`
	Prompt      model.PromptSettings `json:"prompt"`
}

// UpdateChatAssistantRequest 是修改聊天助手的请求体，nil 字段保持不变。
type UpdateChatAssistantRequest struct {
	Name        *string               `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string               `json:"description"`
	Avatar      *string               `json:"avatar"`
	DatasetIDs  []uint                `json:"datasetIds"`
	LLM         *model.LLMSettings    `json:"llm"`
	Prompt      *model.PromptSettings `json:"prompt"`
}

// ChatAssistantService 接口定义了聊天助手管理相关的业务操作。
type ChatAssistantService interface {
	Create(ctx context.Context, req CreateChatAssistantRequest) (*model.ChatAssistant, error)
	Update(ctx context.Context, id uint, req UpdateChatAssistantRequest) (*model.ChatAssistant, error)
	Delete(ctx context.Context, id uint) error
	Get(id uint) (*model.ChatAssistant, error)
	List(page, pageSize int) (*PageResult[model.ChatAssistant], error)
	Sync(ctx context.Context) (*SyncResult, error)
}

type chatAssistantService struct {
	assistantRepo    repository.ChatAssistantRepository
	datasetRepo      repository.DatasetRepository
	conversationRepo repository.ConversationRepository
	client           *ragflow.Client
}

// NewChatAssistantService 创建一个新的 ChatAssistantService 实例。
func NewChatAssistantService(assistantRepo repository.ChatAssistantRepository, datasetRepo repository.DatasetRepository, conversationRepo repository.ConversationRepository, client *ragflow.Client) ChatAssistantService {
	return &chatAssistantService{
		assistantRepo:    assistantRepo,
		datasetRepo:      datasetRepo,
		conversationRepo: conversationRepo,
		client:           client,
	}
}

// remoteDatasetIDs 把本地数据集 ID 转换为远端 ID，任一 ID 不存在即报错。
func (s *chatAssistantService) remoteDatasetIDs(ids []uint) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}
	list, err := s.datasetRepo.FindByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("查询数据集失败: %w", err)
	}
	byID := make(map[uint]string, len(list))
	for _, ds := range list {
		byID[ds.ID] = ds.RemoteID
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		remote, ok := byID[id]
		if !ok {
			return nil, invalidArgument("数据集 %d 不存在", id)
		}
		out = append(out, remote)
	}
	return out, nil
}

// Create 先在 RAGFlow 创建聊天助手，再写入本地镜像。
func (s *chatAssistantService) Create(ctx context.Context, req CreateChatAssistantRequest) (*model.ChatAssistant, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	remoteIDs, err := s.remoteDatasetIDs(req.DatasetIDs)
	if err != nil {
		return nil, err
	}
	remoteReq := ragflow.ChatRequest{
		Name:        req.Name,
		Description: req.Description,
		Avatar:      req.Avatar,
		DatasetIDs:  remoteIDs,
	}
	if req.LLM != (model.LLMSettings{}) {
		remoteReq.LLM = req.LLM
	}
	if req.Prompt != (model.PromptSettings{}) {
		remoteReq.Prompt = req.Prompt
	}
	chat, err := s.client.CreateChat(ctx, remoteReq)
	if err != nil {
		log.Errorf("[ChatAssistantService] 远端创建聊天助手失败, name: %s, error: %v", req.Name, err)
		return nil, fmt.Errorf("创建远端聊天助手失败: %w", err)
	}

	a := &model.ChatAssistant{}
	applyRemoteChat(a, *chat)
	if len(a.RemoteDatasetIDs) == 0 {
		a.RemoteDatasetIDs = remoteIDs
	}
	if err := s.assistantRepo.Create(a); err != nil {
		return nil, fmt.Errorf("保存聊天助手失败: %w", err)
	}
	log.Infof("[ChatAssistantService] 聊天助手创建成功, id: %d, remoteId: %s", a.ID, a.RemoteID)
	return a, nil
}

// Update 先修改远端，再更新本地镜像。
func (s *chatAssistantService) Update(ctx context.Context, id uint, req UpdateChatAssistantRequest) (*model.ChatAssistant, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	a, err := s.assistantRepo.FindByID(id)
	if err != nil {
		return nil, notFound("聊天助手", err)
	}

	remoteReq := ragflow.ChatRequest{}
	if req.Name != nil {
		a.Name = *req.Name
		remoteReq.Name = *req.Name
	}
	if req.Description != nil {
		a.Description = *req.Description
		remoteReq.Description = *req.Description
	}
	if req.Avatar != nil {
		a.Avatar = *req.Avatar
		remoteReq.Avatar = *req.Avatar
	}
	if req.DatasetIDs != nil {
		remoteIDs, err := s.remoteDatasetIDs(req.DatasetIDs)
		if err != nil {
			return nil, err
		}
		a.RemoteDatasetIDs = remoteIDs
		remoteReq.DatasetIDs = remoteIDs
	}
	if req.LLM != nil {
		a.LLM = *req.LLM
		remoteReq.LLM = *req.LLM
	}
	if req.Prompt != nil {
		a.Prompt = *req.Prompt
		remoteReq.Prompt = *req.Prompt
	}

	if err := s.client.UpdateChat(ctx, a.RemoteID, remoteReq); err != nil {
		log.Errorf("[ChatAssistantService] 远端更新聊天助手失败, id: %d, error: %v", id, err)
		return nil, fmt.Errorf("更新远端聊天助手失败: %w", err)
	}
	now := time.Now()
	a.SyncStatus = model.StatusSynced
	a.LastSyncedAt = &now
	if err := s.assistantRepo.Update(a); err != nil {
		return nil, fmt.Errorf("保存聊天助手失败: %w", err)
	}
	return a, nil
}

// Delete 尽力删除远端聊天助手，然后删除本地镜像、会话及其历史。
func (s *chatAssistantService) Delete(ctx context.Context, id uint) error {
	a, err := s.assistantRepo.FindByID(id)
	if err != nil {
		return notFound("聊天助手", err)
	}
	if err := s.client.DeleteChats(ctx, []string{a.RemoteID}); err != nil {
		log.Warnf("[ChatAssistantService] 远端删除聊天助手失败，继续删除本地记录, id: %d, error: %v", id, err)
	}

	convIDs, err := s.conversationRepo.ListIDsByAssistant(id)
	if err != nil {
		return fmt.Errorf("查询会话失败: %w", err)
	}
	if err := s.conversationRepo.DeleteConversationHistory(ctx, convIDs...); err != nil {
		log.Warnf("[ChatAssistantService] 删除会话历史失败, id: %d, error: %v", id, err)
	}
	if err := s.conversationRepo.DeleteByAssistant(id); err != nil {
		return fmt.Errorf("删除会话失败: %w", err)
	}
	if err := s.assistantRepo.Delete(id); err != nil {
		return fmt.Errorf("删除聊天助手失败: %w", err)
	}
	log.Infof("[ChatAssistantService] 聊天助手已删除, id: %d, conversations: %d", id, len(convIDs))
	return nil
}

// Get 返回本地聊天助手镜像。
func (s *chatAssistantService) Get(id uint) (*model.ChatAssistant, error) {
	a, err := s.assistantRepo.FindByID(id)
	if err != nil {
		return nil, notFound("聊天助手", err)
	}
	return a, nil
}

// List 分页列出本地聊天助手镜像。
func (s *chatAssistantService) List(page, pageSize int) (*PageResult[model.ChatAssistant], error) {
	page, pageSize = normalizePage(page, pageSize)
	items, total, err := s.assistantRepo.List(page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("查询聊天助手列表失败: %w", err)
	}
	return &PageResult[model.ChatAssistant]{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// Sync 分页拉取全部远端聊天助手并更新本地镜像。
func (s *chatAssistantService) Sync(ctx context.Context) (*SyncResult, error) {
	result := &SyncResult{}
	var seen []string
	for page := 1; ; page++ {
		chats, err := s.client.ListChats(ctx, ragflow.ListParams{Page: page, PageSize: syncPageSize})
		if err != nil {
			log.Errorf("[ChatAssistantService] 拉取远端聊天助手失败, page: %d, error: %v", page, err)
			return nil, fmt.Errorf("拉取远端聊天助手失败: %w", err)
		}
		for _, chat := range chats {
			seen = append(seen, chat.ID)
			a, err := s.assistantRepo.FindByRemoteID(chat.ID)
			if err != nil {
				if !errorsIsNotFound(err) {
					return nil, fmt.Errorf("查询聊天助手失败: %w", err)
				}
				a = &model.ChatAssistant{}
				applyRemoteChat(a, chat)
				if err := s.assistantRepo.Create(a); err != nil {
					return nil, fmt.Errorf("保存聊天助手失败: %w", err)
				}
				result.Created++
				continue
			}
			applyRemoteChat(a, chat)
			if err := s.assistantRepo.Update(a); err != nil {
				return nil, fmt.Errorf("更新聊天助手失败: %w", err)
			}
			result.Updated++
		}
		if len(chats) < syncPageSize {
			break
		}
	}

	missing, err := s.assistantRepo.MarkMissingAsSyncFailed(seen)
	if err != nil {
		return nil, fmt.Errorf("标记失联聊天助手失败: %w", err)
	}
	result.MarkedMissing = missing
	log.Infof("[ChatAssistantService] 聊天助手同步完成, created: %d, updated: %d, missing: %d", result.Created, result.Updated, missing)
	return result, nil
}

func applyRemoteChat(a *model.ChatAssistant, chat ragflow.Chat) {
	now := time.Now()
	a.RemoteID = chat.ID
	a.Name = chat.Name
	a.Description = chat.Description
	a.Avatar = chat.Avatar
	a.RemoteDatasetIDs = chat.RemoteDatasetIDs()
	if chat.LLM != nil {
		a.LLM = model.LLMSettings{}
		remarshal(chat.LLM, &a.LLM)
	}
	if chat.Prompt != nil {
		a.Prompt = model.PromptSettings{}
		remarshal(chat.Prompt, &a.Prompt)
	}
	a.SyncStatus = model.StatusSynced
	a.LastSyncedAt = &now
}

// remarshal 通过 JSON 把远端的松散结构转换为本地类型，无法识别的字段会被忽略。
func remarshal(in interface{}, out interface{}) {
	data, err := json.Marshal(in)
	if err != nil {
		return
	}
	if err := json.Unmarshal(data, out); err != nil {
		log.Warnf("[ChatAssistantService] 远端配置格式无法识别: %v", err)
	}
}
