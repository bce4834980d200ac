package repository

import (
	"time"

	"gorm.io/gorm"

	"ragflow-bridge/internal/model"
)

// ChatAssistantRepository 定义了聊天助手镜像的持久化操作。
type ChatAssistantRepository interface {
	Create(a *model.ChatAssistant) error
	Update(a *model.ChatAssistant) error
	Delete(id uint) error
	FindByID(id uint) (*model.ChatAssistant, error)
	FindByRemoteID(remoteID string) (*model.ChatAssistant, error)
	List(page, pageSize int) ([]model.ChatAssistant, int64, error)
	MarkMissingAsSyncFailed(seenRemoteIDs []string) (int64, error)
	Count() (int64, error)
}

type chatAssistantRepository struct {
	db *gorm.DB
}

// NewChatAssistantRepository 创建一个新的 ChatAssistantRepository 实例。
func NewChatAssistantRepository(db *gorm.DB) ChatAssistantRepository {
	return &chatAssistantRepository{db: db}
}

func (r *chatAssistantRepository) Create(a *model.ChatAssistant) error {
	return r.db.Create(a).Error
}

func (r *chatAssistantRepository) Update(a *model.ChatAssistant) error {
	return r.db.Save(a).Error
}

func (r *chatAssistantRepository) Delete(id uint) error {
	return r.db.Delete(&model.ChatAssistant{}, id).Error
}

func (r *chatAssistantRepository) FindByID(id uint) (*model.ChatAssistant, error) {
	var a model.ChatAssistant
	if err := r.db.First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *chatAssistantRepository) FindByRemoteID(remoteID string) (*model.ChatAssistant, error) {
	var a model.ChatAssistant
	if err := r.db.Where("remote_id = ?", remoteID).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *chatAssistantRepository) List(page, pageSize int) ([]model.ChatAssistant, int64, error) {
	var (
		list  []model.ChatAssistant
		total int64
	)
	q := r.db.Model(&model.ChatAssistant{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("id DESC").Offset(offset(page, pageSize)).Limit(pageSize).Find(&list).Error
	return list, total, err
}

func (r *chatAssistantRepository) MarkMissingAsSyncFailed(seenRemoteIDs []string) (int64, error) {
	q := r.db.Model(&model.ChatAssistant{}).Where("sync_status <> ?", model.StatusSyncFailed)
	if len(seenRemoteIDs) > 0 {
		q = q.Where("remote_id NOT IN ?", seenRemoteIDs)
	}
	res := q.Updates(map[string]interface{}{"sync_status": model.StatusSyncFailed, "last_synced_at": time.Now()})
	return res.RowsAffected, res.Error
}

func (r *chatAssistantRepository) Count() (int64, error) {
	var n int64
	err := r.db.Model(&model.ChatAssistant{}).Count(&n).Error
	return n, err
}
