package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragflow-bridge/internal/model"
)

func (e *testEnv) assistantService() ChatAssistantService {
	return NewChatAssistantService(e.assistants, e.datasets, e.conversations, e.client)
}

func (e *testEnv) createAssistant(t *testing.T, name string, datasetIDs ...uint) *model.ChatAssistant {
	t.Helper()
	a, err := e.assistantService().Create(context.Background(), CreateChatAssistantRequest{Name: name, DatasetIDs: datasetIDs})
	require.NoError(t, err)
	return a
}

func TestChatAssistantService_Create(t *testing.T) {
	env := newTestEnv(t)
	svc := env.assistantService()
	ds := env.createDataset(t, "manuals")

	temp := 0.2
	topN := 6
	a, err := svc.Create(context.Background(), CreateChatAssistantRequest{
		Name:       "support bot",
		DatasetIDs: []uint{ds.ID},
		LLM:        model.LLMSettings{ModelName: "qwen", Temperature: &temp},
		Prompt:     model.PromptSettings{TopN: &topN, Opener: "Hi"},
	})
	require.NoError(t, err)

	assert.True(t, env.fake.HasChat(a.RemoteID))
	assert.Equal(t, []string{ds.RemoteID}, a.RemoteDatasetIDs)
	assert.Equal(t, model.StatusSynced, a.SyncStatus)
	assert.Equal(t, "qwen", a.LLM.ModelName)
	require.NotNil(t, a.LLM.Temperature)
	assert.Equal(t, 0.2, *a.LLM.Temperature)
	require.NotNil(t, a.Prompt.TopN)
	assert.Equal(t, 6, *a.Prompt.TopN)

	stored, err := svc.Get(a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{ds.RemoteID}, stored.RemoteDatasetIDs)
	assert.Equal(t, "Hi", stored.Prompt.Opener)
}

func TestChatAssistantService_CreateRejectsUnknownDataset(t *testing.T) {
	env := newTestEnv(t)
	svc := env.assistantService()

	_, err := svc.Create(context.Background(), CreateChatAssistantRequest{Name: "bot", DatasetIDs: []uint{42}})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.Create(context.Background(), CreateChatAssistantRequest{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, 0, env.fake.Calls("POST /api/v1/chats"))
}

func TestChatAssistantService_Update(t *testing.T) {
	env := newTestEnv(t)
	svc := env.assistantService()
	first := env.createDataset(t, "first")
	second := env.createDataset(t, "second")
	a := env.createAssistant(t, "bot", first.ID)

	name := "renamed bot"
	updated, err := svc.Update(context.Background(), a.ID, UpdateChatAssistantRequest{Name: &name, DatasetIDs: []uint{second.ID}})
	require.NoError(t, err)
	assert.Equal(t, "renamed bot", updated.Name)
	assert.Equal(t, []string{second.RemoteID}, updated.RemoteDatasetIDs)

	_, err = svc.Update(context.Background(), 999, UpdateChatAssistantRequest{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)

	empty := ""
	_, err = svc.Update(context.Background(), a.ID, UpdateChatAssistantRequest{Name: &empty})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestChatAssistantService_DeleteRemovesConversations(t *testing.T) {
	env := newTestEnv(t)
	svc := env.assistantService()
	convs := env.conversationService()
	a := env.createAssistant(t, "bot")
	conv, err := convs.Create(context.Background(), CreateConversationRequest{AssistantID: a.ID})
	require.NoError(t, err)
	_, err = convs.SendMessage(context.Background(), conv.ID, SendMessageRequest{Question: "hi"})
	require.NoError(t, err)
	require.True(t, env.mr.Exists("conversation:"+conv.ID))

	require.NoError(t, svc.Delete(context.Background(), a.ID))

	assert.False(t, env.fake.HasChat(a.RemoteID))
	_, err = svc.Get(a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = convs.Get(conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, env.mr.Exists("conversation:"+conv.ID))
}

func TestChatAssistantService_Sync(t *testing.T) {
	env := newTestEnv(t)
	svc := env.assistantService()
	kept := env.createAssistant(t, "kept")
	gone := env.createAssistant(t, "gone")
	require.NoError(t, env.client.DeleteChats(context.Background(), []string{gone.RemoteID}))

	res, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 1, res.Updated)
	assert.EqualValues(t, 1, res.MarkedMissing)

	missing, err := svc.Get(gone.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSyncFailed, missing.SyncStatus)
	still, err := svc.Get(kept.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSynced, still.SyncStatus)

	list, err := svc.List(0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, list.Total)
}
