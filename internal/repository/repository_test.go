package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ragflow-bridge/internal/model"
	"ragflow-bridge/pkg/database"
	"ragflow-bridge/pkg/ragflow"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	return db
}

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb, mr
}

func strPtr(s string) *string { return &s }

func TestDatasetRepository(t *testing.T) {
	repo := NewDatasetRepository(newTestDB(t))

	for i := 1; i <= 3; i++ {
		require.NoError(t, repo.Create(&model.Dataset{RemoteID: fmt.Sprintf("ds%d", i), Name: fmt.Sprintf("set %d", i), SyncStatus: model.StatusSynced}))
	}
	dup := &model.Dataset{RemoteID: "ds1", Name: "dup"}
	assert.Error(t, repo.Create(dup), "remote id must be unique")

	got, err := repo.FindByRemoteID("ds2")
	require.NoError(t, err)
	assert.Equal(t, "set 2", got.Name)
	assert.Equal(t, model.ChunkMethodNaive, got.ChunkMethod)

	list, total, err := repo.List(1, 2, "")
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, list, 2)
	assert.Equal(t, "ds3", list[0].RemoteID)

	list, total, err = repo.List(1, 10, "set 1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "ds1", list[0].RemoteID)

	require.NoError(t, repo.IncrementDocumentCount(got.ID, 2))
	require.NoError(t, repo.IncrementDocumentCount(got.ID, -5))
	got, _ = repo.FindByID(got.ID)
	assert.Equal(t, 0, got.DocumentCount)

	n, err := repo.MarkMissingAsSyncFailed([]string{"ds1", "ds2"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	missing, _ := repo.FindByRemoteID("ds3")
	assert.Equal(t, model.StatusSyncFailed, missing.SyncStatus)

	byRemote, err := repo.FindByRemoteIDs([]string{"ds1", "ds3", "nope"})
	require.NoError(t, err)
	assert.Len(t, byRemote, 2)

	require.NoError(t, repo.Delete(missing.ID))
	_, err = repo.FindByID(missing.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	count, _ := repo.Count()
	assert.EqualValues(t, 2, count)
}

func TestDocumentRepository(t *testing.T) {
	repo := NewDocumentRepository(newTestDB(t))

	docs := []*model.Document{
		{DatasetID: 1, Name: "a.pdf", Status: model.StatusProcessing, RemoteID: strPtr("r1")},
		{DatasetID: 1, Name: "b.txt", Status: model.StatusCompleted, RemoteID: strPtr("r2")},
		{DatasetID: 1, Name: "c.txt", Status: model.StatusPending},
		{DatasetID: 1, Name: "d.txt", Status: model.StatusPending},
		{DatasetID: 2, Name: "e.txt", Status: model.StatusProcessing, RemoteID: strPtr("r3")},
	}
	for _, d := range docs {
		require.NoError(t, repo.Create(d))
	}
	// 多个未上传的文档 RemoteID 为 NULL，不应违反唯一约束
	assert.Nil(t, docs[2].RemoteID)

	found, err := repo.FindByRemoteID("r2")
	require.NoError(t, err)
	assert.Equal(t, "b.txt", found.Name)

	processing, err := repo.FindByStatus(model.StatusProcessing)
	require.NoError(t, err)
	assert.Len(t, processing, 2)

	list, total, err := repo.List(DocumentFilter{DatasetID: 1, Keyword: ".txt", Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, list, 3)

	list, _, err = repo.List(DocumentFilter{DatasetID: 1, Status: model.StatusCompleted, Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, list, 1)

	byIDs, err := repo.FindByIDs(1, []uint{docs[0].ID, docs[4].ID, 999})
	require.NoError(t, err)
	require.Len(t, byIDs, 1)
	assert.Equal(t, docs[0].ID, byIDs[0].ID)

	counts, err := repo.CountByStatus()
	require.NoError(t, err)
	assert.EqualValues(t, 2, counts[model.StatusPending])
	assert.EqualValues(t, 2, counts[model.StatusProcessing])

	require.NoError(t, repo.DeleteByDataset(1))
	n, _ := repo.Count()
	assert.EqualValues(t, 1, n)
}

func TestChatAssistantRepository(t *testing.T) {
	repo := NewChatAssistantRepository(newTestDB(t))
	temp := 0.3
	a := &model.ChatAssistant{
		RemoteID:         "chat1",
		Name:             "helper",
		RemoteDatasetIDs: []string{"ds1", "ds2"},
		LLM:              model.LLMSettings{ModelName: "qwen", Temperature: &temp},
		SyncStatus:       model.StatusSynced,
	}
	require.NoError(t, repo.Create(a))

	got, err := repo.FindByRemoteID("chat1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ds1", "ds2"}, got.RemoteDatasetIDs)
	require.NotNil(t, got.LLM.Temperature)
	assert.Equal(t, 0.3, *got.LLM.Temperature)

	n, err := repo.MarkMissingAsSyncFailed(nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	list, total, err := repo.List(1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, model.StatusSyncFailed, list[0].SyncStatus)
}

func TestConversationRepository(t *testing.T) {
	rdb, mr := newTestRedis(t)
	repo := NewConversationRepository(newTestDB(t), rdb)
	ctx := context.Background()

	conv := &model.Conversation{ID: "c-1", RemoteID: "sess1", ChatAssistantID: 7, Name: "first", UserRef: "alice"}
	require.NoError(t, repo.Create(conv))
	require.NoError(t, repo.Create(&model.Conversation{ID: "c-2", RemoteID: "sess2", ChatAssistantID: 7, UserRef: "bob"}))

	list, total, err := repo.ListByAssistant(7, "alice", 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "c-1", list[0].ID)

	ids, err := repo.ListIDsByAssistant(7)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c-1", "c-2"}, ids)

	history, err := repo.GetConversationHistory(ctx, "c-1")
	require.NoError(t, err)
	assert.Empty(t, history)

	for i := 0; i < 25; i++ {
		require.NoError(t, repo.AppendConversationHistory(ctx, "c-1", model.ChatMessage{Role: "user", Content: fmt.Sprint(i), Timestamp: time.Now()}))
	}
	history, err = repo.GetConversationHistory(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, history, 20)
	assert.Equal(t, "5", history[0].Content)
	assert.Equal(t, "24", history[19].Content)
	assert.Equal(t, 7*24*time.Hour, mr.TTL("conversation:c-1"))
	items, err := mr.List("conversation:c-1")
	require.NoError(t, err)
	assert.Len(t, items, 20)

	require.NoError(t, repo.DeleteConversationHistory(ctx, "c-1", "c-2"))
	assert.False(t, mr.Exists("conversation:c-1"))

	require.NoError(t, repo.DeleteByAssistant(7))
	_, err = repo.FindByID("c-1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestConversationRepository_ConcurrentWrites(t *testing.T) {
	rdb, _ := newTestRedis(t)
	repo := NewConversationRepository(newTestDB(t), rdb)
	ctx := context.Background()
	require.NoError(t, repo.Create(&model.Conversation{ID: "c-1", RemoteID: "sess1", ChatAssistantID: 7}))

	const writers = 6
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, repo.AppendConversationHistory(ctx, "c-1",
				model.ChatMessage{Role: "user", Content: fmt.Sprint("q", i)},
				model.ChatMessage{Role: "assistant", Content: fmt.Sprint("a", i)},
			))
			assert.NoError(t, repo.RecordMessages("c-1", 2, time.Now()))
		}(i)
	}
	wg.Wait()

	history, err := repo.GetConversationHistory(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, history, 2*writers)
	for i := 0; i < len(history); i += 2 {
		assert.Equal(t, "user", history[i].Role)
		assert.Equal(t, "assistant", history[i+1].Role)
		assert.Equal(t, history[i].Content[1:], history[i+1].Content[1:])
	}

	conv, err := repo.FindByID("c-1")
	require.NoError(t, err)
	assert.Equal(t, 2*writers, conv.MessageCount)
	assert.NotNil(t, conv.LastMessageAt)

	assert.ErrorIs(t, repo.RecordMessages("missing", 2, time.Now()), gorm.ErrRecordNotFound)
}

func TestKnowledgeGraphCache(t *testing.T) {
	rdb, mr := newTestRedis(t)
	ctx := context.Background()
	cache := NewKnowledgeGraphCache(rdb, time.Minute)

	_, hit, err := cache.Get(ctx, "ds1")
	require.NoError(t, err)
	assert.False(t, hit)

	kg := &ragflow.KnowledgeGraph{Graph: ragflow.Graph{
		Nodes: []ragflow.GraphNode{{ID: "Go", EntityType: "LANGUAGE"}},
		Edges: []ragflow.GraphEdge{{Source: "Go", Target: "Google", Weight: 1}},
	}}
	require.NoError(t, cache.Set(ctx, "ds1", kg))
	got, hit, err := cache.Get(ctx, "ds1")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, kg.Graph.Nodes, got.Graph.Nodes)
	assert.Equal(t, kg.Graph.Edges, got.Graph.Edges)

	mr.FastForward(2 * time.Minute)
	_, hit, _ = cache.Get(ctx, "ds1")
	assert.False(t, hit)

	disabled := NewKnowledgeGraphCache(rdb, 0)
	require.NoError(t, disabled.Set(ctx, "ds2", kg))
	assert.False(t, mr.Exists("kg:ds2"))
}
