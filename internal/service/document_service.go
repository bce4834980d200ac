package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/panjf2000/ants/v2"

	"ragflow-bridge/internal/config"
	"ragflow-bridge/internal/model"
	"ragflow-bridge/internal/repository"
	"ragflow-bridge/internal/validator"
	"ragflow-bridge/pkg/log"
	"ragflow-bridge/pkg/ragflow"
	"ragflow-bridge/pkg/storage"
	"ragflow-bridge/pkg/tasks"
)

const (
	defaultPreviewChars       = 5000
	defaultRefreshConcurrency = 8
	indexPageSize             = 100
	downloadURLExpiry         = time.Hour
)

// UploadInput 是一个待上传的文件。
type UploadInput struct {
	Name   string
	Size   int64
	Reader io.ReadSeeker
}

// BatchUploadResult 汇总批量上传的结果。
type BatchUploadResult struct {
	Uploaded []model.Document `json:"uploaded"`
	Errors   []ItemError      `json:"errors"`
}

// BatchResult 汇总批量操作影响的条目数和逐条错误。
type BatchResult struct {
	Affected int         `json:"affected"`
	Errors   []ItemError `json:"errors"`
}

// RefreshResult 汇总一次批量状态刷新的结果。
type RefreshResult struct {
	Total     int         `json:"total"`
	Refreshed int         `json:"refreshed"`
	Completed int         `json:"completed"`
	Failed    int         `json:"failed"`
	Errors    []ItemError `json:"errors"`
}

// DocumentQuery 是文档列表的查询条件。
type DocumentQuery struct {
	Status   string `form:"status"`
	Keyword  string `form:"keyword"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// DownloadResult 封装了下载的文件内容，调用方负责关闭 Body。
type DownloadResult struct {
	FileName string
	MimeType string
	Size     int64
	Body     io.ReadCloser
}

// DownloadURLDTO 是归档原件的临时下载链接。
type DownloadURLDTO struct {
	FileName  string          `json:"fileName"`
	URL       string          `json:"url"`
	ExpiresAt model.LocalTime `json:"expiresAt"`
}

// PreviewInfoDTO 封装了文件预览所需的信息。
type PreviewInfoDTO struct {
	FileName  string `json:"fileName"`
	Content   string `json:"content"`
	FileSize  int64  `json:"fileSize"`
	Truncated bool   `json:"truncated"`
}

// DocumentService 接口定义了文档生命周期相关的业务操作。
type DocumentService interface {
	Upload(ctx context.Context, datasetID uint, file UploadInput) (*model.Document, error)
	BatchUpload(ctx context.Context, datasetID uint, files []UploadInput) *BatchUploadResult
	Get(datasetID, docID uint) (*model.Document, error)
	List(datasetID uint, q DocumentQuery) (*PageResult[model.Document], error)
	RefreshStatus(ctx context.Context, docID uint) (*model.Document, error)
	RefreshProcessing(ctx context.Context, datasetID uint) (*RefreshResult, error)
	Retry(ctx context.Context, datasetID, docID uint) (*model.Document, error)
	BatchDelete(ctx context.Context, datasetID uint, docIDs []uint) (*BatchResult, error)
	Parse(ctx context.Context, datasetID uint, docIDs []uint) (*BatchResult, error)
	StopParse(ctx context.Context, datasetID uint, docIDs []uint) (*BatchResult, error)
	Download(ctx context.Context, datasetID, docID uint) (*DownloadResult, error)
	DownloadURL(ctx context.Context, datasetID, docID uint) (*DownloadURLDTO, error)
	Preview(ctx context.Context, datasetID, docID uint) (*PreviewInfoDTO, error)
}

type documentService struct {
	documentRepo repository.DocumentRepository
	datasetRepo  repository.DatasetRepository
	client       *ragflow.Client
	store        storage.ObjectStore
	files        *validator.FileValidator
	publisher    TaskPublisher
	indexer      ChunkIndexer
	extractor    TextExtractor
	cfg          config.DocumentConfig
}

// NewDocumentService 创建一个新的 DocumentService 实例。
// publisher、indexer 与 extractor 均可为 nil。
func NewDocumentService(documentRepo repository.DocumentRepository, datasetRepo repository.DatasetRepository, client *ragflow.Client, store storage.ObjectStore, publisher TaskPublisher, indexer ChunkIndexer, extractor TextExtractor, cfg config.DocumentConfig) DocumentService {
	return &documentService{
		documentRepo: documentRepo,
		datasetRepo:  datasetRepo,
		client:       client,
		store:        store,
		files:        validator.NewFileValidator(cfg),
		publisher:    publisher,
		indexer:      indexer,
		extractor:    extractor,
		cfg:          cfg,
	}
}

func (s *documentService) dataset(id uint) (*model.Dataset, error) {
	ds, err := s.datasetRepo.FindByID(id)
	if err != nil {
		return nil, notFound("数据集", err)
	}
	return ds, nil
}

// Upload 校验文件、归档原件、创建本地记录并上传到 RAGFlow。
func (s *documentService) Upload(ctx context.Context, datasetID uint, file UploadInput) (*model.Document, error) {
	ds, err := s.dataset(datasetID)
	if err != nil {
		return nil, err
	}
	mimeType, err := s.files.Validate(file.Name, file.Size, file.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	key := storage.ObjectKey(ds.ID, file.Name)
	if err := s.store.Put(ctx, key, file.Reader, file.Size, mimeType); err != nil {
		log.Errorf("[DocumentService] 归档文件失败, key: %s, error: %v", key, err)
		return nil, fmt.Errorf("归档文件失败: %w", err)
	}
	if _, err := file.Reader.Seek(0, io.SeekStart); err != nil {
		s.removeObject(ctx, key)
		return nil, fmt.Errorf("重置文件读取位置失败: %w", err)
	}

	doc := &model.Document{
		DatasetID:   ds.ID,
		Name:        file.Name,
		Size:        file.Size,
		MimeType:    mimeType,
		ObjectKey:   key,
		ChunkMethod: ds.ChunkMethod,
		Status:      model.StatusPending,
	}
	if err := s.documentRepo.Create(doc); err != nil {
		s.removeObject(ctx, key)
		return nil, fmt.Errorf("保存文档记录失败: %w", err)
	}
	doc.Status = model.StatusUploading
	if err := s.documentRepo.Save(doc); err != nil {
		return nil, fmt.Errorf("更新文档状态失败: %w", err)
	}

	remote, err := s.uploadRemote(ctx, ds, doc.Name, file.Reader)
	if err != nil {
		s.markFailed(doc, err)
		log.Errorf("[DocumentService] 上传文档到 RAGFlow 失败, docId: %d, name: %s, error: %v", doc.ID, doc.Name, err)
		return doc, fmt.Errorf("上传文档失败: %w", err)
	}

	remoteID := remote.ID
	doc.RemoteID = &remoteID
	doc.Status = model.StatusUploaded
	doc.RunStatus = model.RunStatusUnstart
	doc.ErrorMessage = ""
	if remote.ChunkMethod != "" {
		doc.ChunkMethod = model.ChunkMethod(remote.ChunkMethod)
	}
	now := time.Now()
	doc.LastSyncedAt = &now
	if err := s.documentRepo.Save(doc); err != nil {
		// 本地没有记下远端 ID，删除远端文档，之后重试会从归档重新上传
		if delErr := s.client.DeleteDocuments(ctx, ds.RemoteID, []string{remoteID}); delErr != nil {
			log.Errorf("[DocumentService] 回滚远端文档失败, docId: %d, remoteId: %s, error: %v", doc.ID, remoteID, delErr)
		}
		doc.RemoteID = nil
		doc.RunStatus = ""
		s.markFailed(doc, err)
		return doc, fmt.Errorf("更新文档记录失败: %w", err)
	}
	if err := s.datasetRepo.IncrementDocumentCount(ds.ID, 1); err != nil {
		log.Warnf("[DocumentService] 更新数据集文档数失败, datasetId: %d, error: %v", ds.ID, err)
	}
	log.Infof("[DocumentService] 文档上传成功, docId: %d, remoteId: %s", doc.ID, remoteID)

	if s.cfg.AutoParse {
		if err := s.startParse(ctx, ds, []*model.Document{doc}); err != nil {
			log.Warnf("[DocumentService] 自动解析失败, docId: %d, error: %v", doc.ID, err)
		}
	}
	return doc, nil
}

func (s *documentService) uploadRemote(ctx context.Context, ds *model.Dataset, name string, r io.Reader) (*ragflow.Document, error) {
	docs, err := s.client.UploadDocuments(ctx, ds.RemoteID, ragflow.UploadFile{Name: name, Reader: r})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, errors.New("RAGFlow 未返回上传的文档")
	}
	return &docs[0], nil
}

func (s *documentService) removeObject(ctx context.Context, key string) {
	if err := s.store.Remove(ctx, key); err != nil {
		log.Warnf("[DocumentService] 删除归档文件失败, key: %s, error: %v", key, err)
	}
}

func (s *documentService) markFailed(doc *model.Document, cause error) {
	doc.Status = model.StatusFailed
	doc.ErrorMessage = cause.Error()
	if err := s.documentRepo.Save(doc); err != nil {
		log.Errorf("[DocumentService] 保存失败状态出错, docId: %d, error: %v", doc.ID, err)
	}
}

// BatchUpload 逐个上传文件，单个文件失败不影响其余文件。
func (s *documentService) BatchUpload(ctx context.Context, datasetID uint, files []UploadInput) *BatchUploadResult {
	result := &BatchUploadResult{Uploaded: []model.Document{}, Errors: []ItemError{}}
	for _, f := range files {
		doc, err := s.Upload(ctx, datasetID, f)
		if err != nil {
			result.Errors = append(result.Errors, ItemError{Item: f.Name, Error: err.Error()})
			continue
		}
		result.Uploaded = append(result.Uploaded, *doc)
	}
	return result
}

// Get 返回属于数据集的文档。
func (s *documentService) Get(datasetID, docID uint) (*model.Document, error) {
	doc, err := s.documentRepo.FindByID(docID)
	if err != nil {
		return nil, notFound("文档", err)
	}
	if doc.DatasetID != datasetID {
		return nil, fmt.Errorf("文档 %d 不属于数据集 %d: %w", docID, datasetID, ErrNotFound)
	}
	return doc, nil
}

// List 分页列出数据集中的文档。
func (s *documentService) List(datasetID uint, q DocumentQuery) (*PageResult[model.Document], error) {
	if _, err := s.dataset(datasetID); err != nil {
		return nil, err
	}
	filter := repository.DocumentFilter{DatasetID: datasetID, Keyword: q.Keyword}
	if q.Status != "" {
		st, err := model.ParseStatus(q.Status)
		if err != nil {
			return nil, invalidArgument("%v", err)
		}
		filter.Status = st
	}
	filter.Page, filter.PageSize = normalizePage(q.Page, q.PageSize)
	items, total, err := s.documentRepo.List(filter)
	if err != nil {
		return nil, fmt.Errorf("查询文档列表失败: %w", err)
	}
	return &PageResult[model.Document]{Items: items, Total: total, Page: filter.Page, PageSize: filter.PageSize}, nil
}

// RefreshStatus 通过一次远端列表调用刷新文档的解析状态。
// 远端调用失败或文档在远端不存在时，本地状态置为 sync_failed。
func (s *documentService) RefreshStatus(ctx context.Context, docID uint) (*model.Document, error) {
	doc, err := s.documentRepo.FindByID(docID)
	if err != nil {
		return nil, notFound("文档", err)
	}
	if !doc.HasRemote() {
		return doc, invalidState("文档 %d 尚未上传到 RAGFlow", docID)
	}
	ds, err := s.dataset(doc.DatasetID)
	if err != nil {
		return nil, err
	}

	remote, err := s.client.GetDocument(ctx, ds.RemoteID, doc.RemoteIDValue())
	if err != nil {
		doc.Status = model.StatusSyncFailed
		doc.ErrorMessage = err.Error()
		now := time.Now()
		doc.LastSyncedAt = &now
		if saveErr := s.documentRepo.Save(doc); saveErr != nil {
			log.Errorf("[DocumentService] 保存同步失败状态出错, docId: %d, error: %v", doc.ID, saveErr)
		}
		log.Warnf("[DocumentService] 刷新文档状态失败, docId: %d, remoteId: %s, error: %v", doc.ID, doc.RemoteIDValue(), err)
		return doc, fmt.Errorf("刷新文档状态失败: %w", err)
	}

	wasCompleted := doc.Status == model.StatusCompleted
	applyRemoteDocument(doc, *remote)
	if err := s.documentRepo.Save(doc); err != nil {
		return nil, fmt.Errorf("保存文档状态失败: %w", err)
	}
	if doc.Status == model.StatusCompleted && !wasCompleted {
		s.indexDocumentChunks(ctx, ds, doc)
	}
	return doc, nil
}

// applyRemoteDocument 把远端文档的解析进度映射到本地记录。
func applyRemoteDocument(doc *model.Document, r ragflow.Document) {
	run, err := model.RunStatusFromValue(string(r.Run))
	if err != nil {
		log.Warnf("[DocumentService] 无法识别的 run 状态, remoteId: %s, run: %s", r.ID, r.Run)
		run = doc.RunStatus
	}
	doc.RunStatus = run
	if run != "" {
		doc.Status = run.DocumentStatus()
	}
	doc.Progress = r.Progress
	doc.ProgressMsg = r.ProgressMsg
	doc.ChunkCount = r.ChunkCount
	doc.TokenCount = r.TokenCount
	if r.Size > 0 {
		doc.Size = r.Size
	}
	switch run {
	case model.RunStatusFail:
		doc.ErrorMessage = r.ProgressMsg
		if doc.ErrorMessage == "" {
			doc.ErrorMessage = "解析失败"
		}
	case model.RunStatusCancel:
		doc.ErrorMessage = "解析已取消"
	default:
		doc.ErrorMessage = ""
	}
	now := time.Now()
	doc.LastSyncedAt = &now
}

// indexDocumentChunks 将解析完成的分块写入本地全文索引，失败只记录日志。
func (s *documentService) indexDocumentChunks(ctx context.Context, ds *model.Dataset, doc *model.Document) {
	if s.indexer == nil {
		return
	}
	var docs []model.ChunkIndexDocument
	for page := 1; ; page++ {
		list, err := s.client.ListChunks(ctx, ds.RemoteID, doc.RemoteIDValue(), ragflow.ListChunksParams{Page: page, PageSize: indexPageSize})
		if err != nil {
			log.Warnf("[DocumentService] 拉取分块失败，跳过索引, docId: %d, error: %v", doc.ID, err)
			return
		}
		for _, ch := range list.Chunks {
			vc := toVirtualChunk(ch, ds.RemoteID)
			if vc.DocumentName == "" {
				vc.DocumentName = doc.Name
			}
			docs = append(docs, vc.ToIndexDocument())
		}
		if len(list.Chunks) < indexPageSize {
			break
		}
	}
	if len(docs) == 0 {
		return
	}
	if err := s.indexer.IndexChunks(ctx, docs); err != nil {
		log.Warnf("[DocumentService] 写入分块索引失败, docId: %d, error: %v", doc.ID, err)
		return
	}
	log.Infof("[DocumentService] 分块索引完成, docId: %d, chunks: %d", doc.ID, len(docs))
}

// RefreshProcessing 使用协程池刷新处于 processing 状态的文档。datasetID 为 0 时不限数据集。
func (s *documentService) RefreshProcessing(ctx context.Context, datasetID uint) (*RefreshResult, error) {
	all, err := s.documentRepo.FindByStatus(model.StatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("查询处理中文档失败: %w", err)
	}
	docs := all[:0]
	for _, d := range all {
		if datasetID == 0 || d.DatasetID == datasetID {
			docs = append(docs, d)
		}
	}
	result := &RefreshResult{Total: len(docs), Errors: []ItemError{}}
	if len(docs) == 0 {
		return result, nil
	}

	size := s.cfg.RefreshConcurrency
	if size <= 0 {
		size = defaultRefreshConcurrency
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("创建协程池失败: %w", err)
	}
	defer pool.Release()

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, d := range docs {
		id := d.ID
		wg.Add(1)
		task := func() {
			defer wg.Done()
			doc, err := s.RefreshStatus(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, ItemError{Item: fmt.Sprint(id), Error: err.Error()})
				return
			}
			result.Refreshed++
			switch doc.Status {
			case model.StatusCompleted:
				result.Completed++
			case model.StatusFailed:
				result.Failed++
			}
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			mu.Lock()
			result.Errors = append(result.Errors, ItemError{Item: fmt.Sprint(id), Error: err.Error()})
			mu.Unlock()
		}
	}
	wg.Wait()
	log.Infof("[DocumentService] 批量刷新完成, total: %d, refreshed: %d, errors: %d", result.Total, result.Refreshed, len(result.Errors))
	return result, nil
}

// Retry 只允许对 failed 或 sync_failed 的文档重试：
// 没有 remoteId 时先从归档重新上传，然后重新触发解析。
func (s *documentService) Retry(ctx context.Context, datasetID, docID uint) (*model.Document, error) {
	doc, err := s.Get(datasetID, docID)
	if err != nil {
		return nil, err
	}
	if !doc.Status.Retryable() {
		return nil, invalidState("文档状态为 %s，无法重试", doc.Status)
	}
	ds, err := s.dataset(datasetID)
	if err != nil {
		return nil, err
	}

	doc.RetryCount++
	if !doc.HasRemote() {
		if err := s.reupload(ctx, ds, doc); err != nil {
			s.markFailed(doc, err)
			return doc, fmt.Errorf("重新上传失败: %w", err)
		}
	}

	err = s.client.ParseDocuments(ctx, ds.RemoteID, []string{doc.RemoteIDValue()})
	if err != nil && ragflow.IsNotFound(err) && doc.ObjectKey != "" {
		log.Warnf("[DocumentService] 远端文档已不存在，重新上传后解析, docId: %d", doc.ID)
		if upErr := s.reupload(ctx, ds, doc); upErr != nil {
			s.markFailed(doc, upErr)
			return doc, fmt.Errorf("重新上传失败: %w", upErr)
		}
		err = s.client.ParseDocuments(ctx, ds.RemoteID, []string{doc.RemoteIDValue()})
	}
	if err != nil {
		s.markFailed(doc, err)
		log.Errorf("[DocumentService] 重试解析失败, docId: %d, error: %v", doc.ID, err)
		return doc, fmt.Errorf("触发解析失败: %w", err)
	}

	s.markProcessing(doc)
	if err := s.documentRepo.Save(doc); err != nil {
		return nil, fmt.Errorf("保存文档状态失败: %w", err)
	}
	s.publishSync(ctx, ds, doc)
	log.Infof("[DocumentService] 文档重试已提交, docId: %d, retryCount: %d", doc.ID, doc.RetryCount)
	return doc, nil
}

func (s *documentService) reupload(ctx context.Context, ds *model.Dataset, doc *model.Document) error {
	if doc.ObjectKey == "" {
		return errors.New("没有可用的归档文件")
	}
	body, err := s.store.Get(ctx, doc.ObjectKey)
	if err != nil {
		return fmt.Errorf("读取归档文件失败: %w", err)
	}
	defer body.Close()

	wasNew := !doc.HasRemote()
	remote, err := s.uploadRemote(ctx, ds, doc.Name, body)
	if err != nil {
		return err
	}
	remoteID := remote.ID
	doc.RemoteID = &remoteID
	doc.Status = model.StatusUploaded
	doc.RunStatus = model.RunStatusUnstart
	if err := s.documentRepo.Save(doc); err != nil {
		return fmt.Errorf("保存文档记录失败: %w", err)
	}
	if wasNew {
		if err := s.datasetRepo.IncrementDocumentCount(ds.ID, 1); err != nil {
			log.Warnf("[DocumentService] 更新数据集文档数失败, datasetId: %d, error: %v", ds.ID, err)
		}
	}
	return nil
}

func (s *documentService) markProcessing(doc *model.Document) {
	doc.Status = model.StatusProcessing
	doc.RunStatus = model.RunStatusRunning
	doc.Progress = 0
	doc.ProgressMsg = ""
	doc.ErrorMessage = ""
}

// publishSync 投递状态同步任务，未启用 Kafka 时跳过。
func (s *documentService) publishSync(ctx context.Context, ds *model.Dataset, doc *model.Document) {
	if s.publisher == nil {
		return
	}
	task := tasks.DocumentSyncTask{
		DocumentID:       doc.ID,
		DatasetID:        ds.ID,
		RemoteDocumentID: doc.RemoteIDValue(),
		RemoteDatasetID:  ds.RemoteID,
		EnqueuedAt:       time.Now(),
	}
	if err := s.publisher.PublishDocumentSync(ctx, task); err != nil {
		log.Warnf("[DocumentService] 投递状态同步任务失败, docId: %d, error: %v", doc.ID, err)
	}
}

// resolve 返回数据集中存在的文档，缺失的 ID 记为逐条错误。
func (s *documentService) resolve(datasetID uint, docIDs []uint) ([]model.Document, []ItemError, error) {
	docs, err := s.documentRepo.FindByIDs(datasetID, docIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("查询文档失败: %w", err)
	}
	found := make(map[uint]bool, len(docs))
	for _, d := range docs {
		found[d.ID] = true
	}
	errs := []ItemError{}
	for _, id := range docIDs {
		if !found[id] {
			errs = append(errs, ItemError{Item: fmt.Sprint(id), Error: ErrNotFound.Error()})
		}
	}
	return docs, errs, nil
}

// BatchDelete 逐个删除文档：远端删除失败只记录日志并继续，
// 然后删除归档文件和本地记录。
func (s *documentService) BatchDelete(ctx context.Context, datasetID uint, docIDs []uint) (*BatchResult, error) {
	if len(docIDs) == 0 {
		return nil, invalidArgument("ids 不能为空")
	}
	ds, err := s.dataset(datasetID)
	if err != nil {
		return nil, err
	}
	docs, errs, err := s.resolve(datasetID, docIDs)
	if err != nil {
		return nil, err
	}
	result := &BatchResult{Errors: errs}

	for i := range docs {
		doc := &docs[i]
		if doc.HasRemote() {
			if err := s.client.DeleteDocuments(ctx, ds.RemoteID, []string{doc.RemoteIDValue()}); err != nil {
				log.Warnf("[DocumentService] 远端删除文档失败，继续删除本地记录, docId: %d, error: %v", doc.ID, err)
			}
			if s.indexer != nil {
				if err := s.indexer.DeleteByDocument(ctx, doc.RemoteIDValue()); err != nil {
					log.Warnf("[DocumentService] 删除分块索引失败, docId: %d, error: %v", doc.ID, err)
				}
			}
		}
		if doc.ObjectKey != "" {
			if err := s.store.Remove(ctx, doc.ObjectKey); err != nil {
				log.Warnf("[DocumentService] 删除归档文件失败, key: %s, error: %v", doc.ObjectKey, err)
			}
		}
		if err := s.documentRepo.Delete(doc.ID); err != nil {
			result.Errors = append(result.Errors, ItemError{Item: fmt.Sprint(doc.ID), Error: err.Error()})
			continue
		}
		result.Affected++
	}

	if result.Affected > 0 {
		if err := s.datasetRepo.IncrementDocumentCount(ds.ID, -result.Affected); err != nil {
			log.Warnf("[DocumentService] 更新数据集文档数失败, datasetId: %d, error: %v", ds.ID, err)
		}
	}
	log.Infof("[DocumentService] 批量删除完成, datasetId: %d, deleted: %d, errors: %d", ds.ID, result.Affected, len(result.Errors))
	return result, nil
}

// Parse 触发远端解析，并为每个文档投递状态同步任务。
func (s *documentService) Parse(ctx context.Context, datasetID uint, docIDs []uint) (*BatchResult, error) {
	if len(docIDs) == 0 {
		return nil, invalidArgument("ids 不能为空")
	}
	ds, err := s.dataset(datasetID)
	if err != nil {
		return nil, err
	}
	docs, errs, err := s.resolve(datasetID, docIDs)
	if err != nil {
		return nil, err
	}
	ready := make([]*model.Document, 0, len(docs))
	for i := range docs {
		if !docs[i].HasRemote() {
			errs = append(errs, ItemError{Item: fmt.Sprint(docs[i].ID), Error: "文档尚未上传到 RAGFlow"})
			continue
		}
		ready = append(ready, &docs[i])
	}
	if len(ready) == 0 {
		return &BatchResult{Errors: errs}, nil
	}
	if err := s.startParse(ctx, ds, ready); err != nil {
		return nil, err
	}
	return &BatchResult{Affected: len(ready), Errors: errs}, nil
}

func (s *documentService) startParse(ctx context.Context, ds *model.Dataset, docs []*model.Document) error {
	remoteIDs := make([]string, 0, len(docs))
	for _, d := range docs {
		remoteIDs = append(remoteIDs, d.RemoteIDValue())
	}
	if err := s.client.ParseDocuments(ctx, ds.RemoteID, remoteIDs); err != nil {
		log.Errorf("[DocumentService] 触发解析失败, datasetId: %d, error: %v", ds.ID, err)
		return fmt.Errorf("触发解析失败: %w", err)
	}
	for _, d := range docs {
		s.markProcessing(d)
		if err := s.documentRepo.Save(d); err != nil {
			log.Errorf("[DocumentService] 保存解析状态失败, docId: %d, error: %v", d.ID, err)
			continue
		}
		s.publishSync(ctx, ds, d)
	}
	log.Infof("[DocumentService] 已触发解析, datasetId: %d, documents: %d", ds.ID, len(docs))
	return nil
}

// StopParse 停止远端解析，本地状态回到 uploaded 并记录 run=CANCEL。
func (s *documentService) StopParse(ctx context.Context, datasetID uint, docIDs []uint) (*BatchResult, error) {
	if len(docIDs) == 0 {
		return nil, invalidArgument("ids 不能为空")
	}
	ds, err := s.dataset(datasetID)
	if err != nil {
		return nil, err
	}
	docs, errs, err := s.resolve(datasetID, docIDs)
	if err != nil {
		return nil, err
	}
	remoteIDs := make([]string, 0, len(docs))
	stopping := make([]*model.Document, 0, len(docs))
	for i := range docs {
		if !docs[i].HasRemote() {
			errs = append(errs, ItemError{Item: fmt.Sprint(docs[i].ID), Error: "文档尚未上传到 RAGFlow"})
			continue
		}
		remoteIDs = append(remoteIDs, docs[i].RemoteIDValue())
		stopping = append(stopping, &docs[i])
	}
	if len(stopping) == 0 {
		return &BatchResult{Errors: errs}, nil
	}
	if err := s.client.StopParsing(ctx, ds.RemoteID, remoteIDs); err != nil {
		log.Errorf("[DocumentService] 停止解析失败, datasetId: %d, error: %v", ds.ID, err)
		return nil, fmt.Errorf("停止解析失败: %w", err)
	}
	result := &BatchResult{Errors: errs}
	for _, d := range stopping {
		d.Status = model.StatusUploaded
		d.RunStatus = model.RunStatusCancel
		if err := s.documentRepo.Save(d); err != nil {
			result.Errors = append(result.Errors, ItemError{Item: fmt.Sprint(d.ID), Error: err.Error()})
			continue
		}
		result.Affected++
	}
	return result, nil
}

// Download 优先从对象存储读取原件，归档缺失时回退到 RAGFlow。
func (s *documentService) Download(ctx context.Context, datasetID, docID uint) (*DownloadResult, error) {
	doc, err := s.Get(datasetID, docID)
	if err != nil {
		return nil, err
	}
	result := &DownloadResult{FileName: doc.Name, MimeType: doc.MimeType, Size: doc.Size}
	if result.MimeType == "" {
		result.MimeType = "application/octet-stream"
	}
	if doc.ObjectKey != "" {
		body, err := s.store.Get(ctx, doc.ObjectKey)
		if err == nil {
			result.Body = body
			return result, nil
		}
		log.Warnf("[DocumentService] 读取归档文件失败，尝试从 RAGFlow 下载, docId: %d, error: %v", doc.ID, err)
	}
	if !doc.HasRemote() {
		return nil, invalidState("文档 %d 没有可下载的内容", doc.ID)
	}
	ds, err := s.dataset(datasetID)
	if err != nil {
		return nil, err
	}
	body, err := s.client.DownloadDocument(ctx, ds.RemoteID, doc.RemoteIDValue())
	if err != nil {
		return nil, fmt.Errorf("下载文档失败: %w", err)
	}
	result.Body = body
	return result, nil
}

// DownloadURL 为对象存储中的原件生成一小时有效的预签名链接。
func (s *documentService) DownloadURL(ctx context.Context, datasetID, docID uint) (*DownloadURLDTO, error) {
	doc, err := s.Get(datasetID, docID)
	if err != nil {
		return nil, err
	}
	if doc.ObjectKey == "" {
		return nil, invalidState("文档 %d 没有归档原件", doc.ID)
	}
	u, err := s.store.PresignedURL(ctx, doc.ObjectKey, doc.Name, downloadURLExpiry)
	if err != nil {
		log.Errorf("[DocumentService] 生成下载链接失败, docId: %d, error: %v", doc.ID, err)
		return nil, fmt.Errorf("生成下载链接失败: %w", err)
	}
	return &DownloadURLDTO{FileName: doc.Name, URL: u, ExpiresAt: model.LocalTime(time.Now().Add(downloadURLExpiry))}, nil
}

// Preview 返回文档的纯文本预览，内容最多 5000 个字符。
func (s *documentService) Preview(ctx context.Context, datasetID, docID uint) (*PreviewInfoDTO, error) {
	dl, err := s.Download(ctx, datasetID, docID)
	if err != nil {
		return nil, err
	}
	defer dl.Body.Close()

	var text string
	switch {
	case strings.HasPrefix(dl.MimeType, "text/"):
		data, err := io.ReadAll(io.LimitReader(dl.Body, int64(defaultPreviewChars)*utf8.UTFMax))
		if err != nil {
			return nil, fmt.Errorf("读取文件失败: %w", err)
		}
		text = string(data)
	case s.extractor == nil:
		return nil, invalidState("未配置文本抽取服务，无法预览 %s", dl.MimeType)
	default:
		text, err = s.extractor.ExtractText(ctx, dl.Body, dl.FileName)
		if err != nil {
			log.Errorf("[DocumentService] 抽取文本失败, docId: %d, error: %v", docID, err)
			return nil, fmt.Errorf("抽取文本失败: %w", err)
		}
	}

	content, truncated := truncateRunes(text, defaultPreviewChars)
	return &PreviewInfoDTO{FileName: dl.FileName, Content: content, FileSize: dl.Size, Truncated: truncated}, nil
}

func truncateRunes(s string, n int) (string, bool) {
	if utf8.RuneCountInString(s) <= n {
		return strings.ToValidUTF8(s, ""), false
	}
	runes := []rune(s)
	return string(runes[:n]), true
}
