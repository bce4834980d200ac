// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"time"

	"gorm.io/gorm"

	"ragflow-bridge/internal/model"
)

// DatasetRepository 定义了数据集镜像的持久化操作。
type DatasetRepository interface {
	Create(ds *model.Dataset) error
	Update(ds *model.Dataset) error
	Delete(id uint) error
	FindByID(id uint) (*model.Dataset, error)
	FindByRemoteID(remoteID string) (*model.Dataset, error)
	FindByRemoteIDs(remoteIDs []string) ([]model.Dataset, error)
	FindByIDs(ids []uint) ([]model.Dataset, error)
	List(page, pageSize int, keyword string) ([]model.Dataset, int64, error)
	IncrementDocumentCount(id uint, delta int) error
	MarkMissingAsSyncFailed(seenRemoteIDs []string) (int64, error)
	Count() (int64, error)
}

type datasetRepository struct {
	db *gorm.DB
}

// NewDatasetRepository 创建一个新的 DatasetRepository 实例。
func NewDatasetRepository(db *gorm.DB) DatasetRepository {
	return &datasetRepository{db: db}
}

func (r *datasetRepository) Create(ds *model.Dataset) error {
	return r.db.Create(ds).Error
}

func (r *datasetRepository) Update(ds *model.Dataset) error {
	return r.db.Save(ds).Error
}

func (r *datasetRepository) Delete(id uint) error {
	return r.db.Delete(&model.Dataset{}, id).Error
}

func (r *datasetRepository) FindByID(id uint) (*model.Dataset, error) {
	var ds model.Dataset
	if err := r.db.First(&ds, id).Error; err != nil {
		return nil, err
	}
	return &ds, nil
}

func (r *datasetRepository) FindByRemoteID(remoteID string) (*model.Dataset, error) {
	var ds model.Dataset
	if err := r.db.Where("remote_id = ?", remoteID).First(&ds).Error; err != nil {
		return nil, err
	}
	return &ds, nil
}

func (r *datasetRepository) FindByRemoteIDs(remoteIDs []string) ([]model.Dataset, error) {
	var list []model.Dataset
	if len(remoteIDs) == 0 {
		return list, nil
	}
	err := r.db.Where("remote_id IN ?", remoteIDs).Find(&list).Error
	return list, err
}

func (r *datasetRepository) FindByIDs(ids []uint) ([]model.Dataset, error) {
	var list []model.Dataset
	if len(ids) == 0 {
		return list, nil
	}
	err := r.db.Where("id IN ?", ids).Order("id").Find(&list).Error
	return list, err
}

// List 按创建时间倒序分页，keyword 匹配名称。
func (r *datasetRepository) List(page, pageSize int, keyword string) ([]model.Dataset, int64, error) {
	var (
		list  []model.Dataset
		total int64
	)
	q := r.db.Model(&model.Dataset{})
	if keyword != "" {
		q = q.Where("name LIKE ?", "%"+keyword+"%")
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("id DESC").Offset(offset(page, pageSize)).Limit(pageSize).Find(&list).Error
	return list, total, err
}

func (r *datasetRepository) IncrementDocumentCount(id uint, delta int) error {
	return r.db.Model(&model.Dataset{}).Where("id = ?", id).
		Update("document_count", gorm.Expr("CASE WHEN document_count + ? < 0 THEN 0 ELSE document_count + ? END", delta, delta)).Error
}

// MarkMissingAsSyncFailed 将远端已不存在的镜像标记为 sync_failed。
func (r *datasetRepository) MarkMissingAsSyncFailed(seenRemoteIDs []string) (int64, error) {
	q := r.db.Model(&model.Dataset{}).Where("sync_status <> ?", model.StatusSyncFailed)
	if len(seenRemoteIDs) > 0 {
		q = q.Where("remote_id NOT IN ?", seenRemoteIDs)
	}
	res := q.Updates(map[string]interface{}{"sync_status": model.StatusSyncFailed, "last_synced_at": time.Now()})
	return res.RowsAffected, res.Error
}

func (r *datasetRepository) Count() (int64, error) {
	var n int64
	err := r.db.Model(&model.Dataset{}).Count(&n).Error
	return n, err
}

func offset(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize
}
