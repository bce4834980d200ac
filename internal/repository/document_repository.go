package repository

import (
	"gorm.io/gorm"

	"ragflow-bridge/internal/model"
)

// DocumentFilter 是列出文档时的过滤条件。
type DocumentFilter struct {
	DatasetID uint
	Status    model.Status
	Keyword   string
	Page      int
	PageSize  int
}

// DocumentRepository 定义了文档镜像的持久化操作。
type DocumentRepository interface {
	Create(doc *model.Document) error
	Save(doc *model.Document) error
	Delete(id uint) error
	DeleteByDataset(datasetID uint) error
	FindByID(id uint) (*model.Document, error)
	FindByRemoteID(remoteID string) (*model.Document, error)
	FindByIDs(datasetID uint, ids []uint) ([]model.Document, error)
	FindByStatus(status model.Status) ([]model.Document, error)
	List(f DocumentFilter) ([]model.Document, int64, error)
	ListByDataset(datasetID uint) ([]model.Document, error)
	CountByStatus() (map[model.Status]int64, error)
	Count() (int64, error)
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(doc *model.Document) error {
	return r.db.Create(doc).Error
}

func (r *documentRepository) Save(doc *model.Document) error {
	return r.db.Save(doc).Error
}

func (r *documentRepository) Delete(id uint) error {
	return r.db.Delete(&model.Document{}, id).Error
}

func (r *documentRepository) DeleteByDataset(datasetID uint) error {
	return r.db.Where("dataset_id = ?", datasetID).Delete(&model.Document{}).Error
}

func (r *documentRepository) FindByID(id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.First(&doc, id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) FindByRemoteID(remoteID string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.Where("remote_id = ?", remoteID).First(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindByIDs 返回属于数据集的文档，不存在的 ID 会被忽略。
func (r *documentRepository) FindByIDs(datasetID uint, ids []uint) ([]model.Document, error) {
	var docs []model.Document
	if len(ids) == 0 {
		return docs, nil
	}
	err := r.db.Where("dataset_id = ? AND id IN ?", datasetID, ids).Order("id").Find(&docs).Error
	return docs, err
}

func (r *documentRepository) FindByStatus(status model.Status) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Where("status = ?", status).Order("id").Find(&docs).Error
	return docs, err
}

func (r *documentRepository) List(f DocumentFilter) ([]model.Document, int64, error) {
	var (
		docs  []model.Document
		total int64
	)
	q := r.db.Model(&model.Document{}).Where("dataset_id = ?", f.DatasetID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Keyword != "" {
		q = q.Where("name LIKE ?", "%"+f.Keyword+"%")
	}
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("id DESC").Offset(offset(f.Page, f.PageSize)).Limit(f.PageSize).Find(&docs).Error
	return docs, total, err
}

func (r *documentRepository) ListByDataset(datasetID uint) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Where("dataset_id = ?", datasetID).Order("id").Find(&docs).Error
	return docs, err
}

func (r *documentRepository) CountByStatus() (map[model.Status]int64, error) {
	var rows []struct {
		Status model.Status
		N      int64
	}
	err := r.db.Model(&model.Document{}).Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[model.Status]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}

func (r *documentRepository) Count() (int64, error) {
	var n int64
	err := r.db.Model(&model.Document{}).Count(&n).Error
	return n, err
}
