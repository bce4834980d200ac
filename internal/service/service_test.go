package service

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ragflow-bridge/internal/config"
	"ragflow-bridge/internal/model"
	"ragflow-bridge/internal/repository"
	"ragflow-bridge/pkg/database"
	"ragflow-bridge/pkg/ragflow"
	"ragflow-bridge/pkg/ragflow/ragflowtest"
	"ragflow-bridge/pkg/storage"
	"ragflow-bridge/pkg/tasks"
)

// testEnv 组装了服务层测试需要的全部依赖：
// 内存 SQLite、miniredis、内存对象存储和假 RAGFlow。
type testEnv struct {
	fake          *ragflowtest.Server
	client        *ragflow.Client
	db            *gorm.DB
	rdb           *redis.Client
	mr            *miniredis.Miniredis
	store         *storage.MemoryStore
	datasets      repository.DatasetRepository
	documents     repository.DocumentRepository
	assistants    repository.ChatAssistantRepository
	conversations repository.ConversationRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := ragflowtest.NewServer()
	t.Cleanup(fake.Close)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return &testEnv{
		fake:          fake,
		client:        fake.Client(),
		db:            db,
		rdb:           rdb,
		mr:            mr,
		store:         storage.NewMemoryStore(),
		datasets:      repository.NewDatasetRepository(db),
		documents:     repository.NewDocumentRepository(db),
		assistants:    repository.NewChatAssistantRepository(db),
		conversations: repository.NewConversationRepository(db, rdb),
	}
}

func (e *testEnv) datasetService(indexer ChunkIndexer) DatasetService {
	return NewDatasetService(e.datasets, e.documents, e.client, e.store, indexer)
}

func (e *testEnv) documentService(publisher TaskPublisher, indexer ChunkIndexer, cfg config.DocumentConfig) DocumentService {
	return NewDocumentService(e.documents, e.datasets, e.client, e.store, publisher, indexer, nil, cfg)
}

func (e *testEnv) createDataset(t *testing.T, name string) *model.Dataset {
	t.Helper()
	ds, err := e.datasetService(nil).Create(context.Background(), CreateDatasetRequest{Name: name})
	require.NoError(t, err)
	return ds
}

func (e *testEnv) upload(t *testing.T, svc DocumentService, datasetID uint, name, content string) *model.Document {
	t.Helper()
	doc, err := svc.Upload(context.Background(), datasetID, textFile(name, content))
	require.NoError(t, err)
	return doc
}

func textFile(name, content string) UploadInput {
	return UploadInput{Name: name, Size: int64(len(content)), Reader: bytes.NewReader([]byte(content))}
}

type recordingPublisher struct {
	mu    sync.Mutex
	tasks []tasks.DocumentSyncTask
}

func (p *recordingPublisher) PublishDocumentSync(_ context.Context, task tasks.DocumentSyncTask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = append(p.tasks, task)
	return nil
}

func (p *recordingPublisher) published() []tasks.DocumentSyncTask {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]tasks.DocumentSyncTask(nil), p.tasks...)
}

type recordingIndexer struct {
	mu            sync.Mutex
	indexed       []model.ChunkIndexDocument
	deletedChunks []string
	deletedDocs   []string
	results       []model.VirtualChunk
	lastQuery     string
}

func (x *recordingIndexer) IndexChunks(_ context.Context, docs []model.ChunkIndexDocument) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.indexed = append(x.indexed, docs...)
	return nil
}

func (x *recordingIndexer) DeleteChunks(_ context.Context, ids []string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.deletedChunks = append(x.deletedChunks, ids...)
	return nil
}

func (x *recordingIndexer) DeleteByDocument(_ context.Context, remoteDocumentID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.deletedDocs = append(x.deletedDocs, remoteDocumentID)
	return nil
}

func (x *recordingIndexer) Search(_ context.Context, _, query string, _ int) ([]model.VirtualChunk, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.lastQuery = query
	return x.results, nil
}
