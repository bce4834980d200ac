package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) conversationService() ConversationService {
	return NewConversationService(e.conversations, e.assistants, e.client)
}

func TestConversationService_CreateAndList(t *testing.T) {
	env := newTestEnv(t)
	svc := env.conversationService()
	a := env.createAssistant(t, "bot")
	ctx := context.Background()

	conv, err := svc.Create(ctx, CreateConversationRequest{AssistantID: a.ID, Name: "router help", UserRef: "u-1"})
	require.NoError(t, err)
	assert.Len(t, conv.ID, 36)
	assert.True(t, env.fake.HasSession(conv.RemoteID))
	assert.Equal(t, "router help", conv.Name)

	unnamed, err := svc.Create(ctx, CreateConversationRequest{AssistantID: a.ID, UserRef: "u-2"})
	require.NoError(t, err)
	assert.Equal(t, "New session", unnamed.Name)

	all, err := svc.List(a.ID, "", 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, all.Total)

	mine, err := svc.List(a.ID, "u-1", 1, 10)
	require.NoError(t, err)
	require.Len(t, mine.Items, 1)
	assert.Equal(t, conv.ID, mine.Items[0].ID)

	_, err = svc.List(0, "", 1, 10)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = svc.List(999, "", 1, 10)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Create(ctx, CreateConversationRequest{AssistantID: 999})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Create(ctx, CreateConversationRequest{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestConversationService_SendMessageRecordsHistory(t *testing.T) {
	env := newTestEnv(t)
	env.fake.Answer = "Unplug it and plug it back in"
	svc := env.conversationService()
	a := env.createAssistant(t, "bot")
	conv, err := svc.Create(context.Background(), CreateConversationRequest{AssistantID: a.ID})
	require.NoError(t, err)

	reply, err := svc.SendMessage(context.Background(), conv.ID, SendMessageRequest{Question: "How do I reset?"})
	require.NoError(t, err)
	assert.Equal(t, "Unplug it and plug it back in", reply.Answer)
	require.Len(t, reply.References, 1)
	assert.Equal(t, "ref-chunk", reply.References[0].ChunkID)
	assert.Equal(t, 2, reply.Conversation.MessageCount)
	assert.NotNil(t, reply.Conversation.LastMessageAt)

	history, err := svc.History(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "How do I reset?", history[0].Content)
	assert.Equal(t, "assistant", history[1].Role)
	assert.Len(t, history[1].Reference, 1)

	stored, err := svc.Get(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.MessageCount)

	_, err = svc.SendMessage(context.Background(), conv.ID, SendMessageRequest{})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = svc.SendMessage(context.Background(), "missing", SendMessageRequest{Question: "hi"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversationService_ConcurrentSendsKeepHistory(t *testing.T) {
	env := newTestEnv(t)
	svc := env.conversationService()
	a := env.createAssistant(t, "bot")
	conv, err := svc.Create(context.Background(), CreateConversationRequest{AssistantID: a.ID})
	require.NoError(t, err)

	const senders = 5
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.SendMessage(context.Background(), conv.ID, SendMessageRequest{Question: fmt.Sprint("question ", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stored, err := svc.Get(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2*senders, stored.MessageCount)

	history, err := svc.History(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, history, 2*senders)
	for i := 0; i < len(history); i += 2 {
		assert.Equal(t, "user", history[i].Role)
		assert.Equal(t, "assistant", history[i+1].Role)
	}
}

func TestConversationService_StreamMessageEmitsDeltas(t *testing.T) {
	env := newTestEnv(t)
	env.fake.Answer = "Hello there friend"
	svc := env.conversationService()
	a := env.createAssistant(t, "bot")
	conv, err := svc.Create(context.Background(), CreateConversationRequest{AssistantID: a.ID})
	require.NoError(t, err)

	var deltas []string
	reply, err := svc.StreamMessage(context.Background(), conv.ID, SendMessageRequest{Question: "greet me"}, func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello", " there", " friend"}, deltas)
	assert.Equal(t, "Hello there friend", reply.Answer)
	assert.Len(t, reply.References, 1)

	history, err := svc.History(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Hello there friend", history[1].Content)
}

func TestConversationService_StreamMessageStopsOnCallbackError(t *testing.T) {
	env := newTestEnv(t)
	env.fake.Answer = "one two three"
	svc := env.conversationService()
	a := env.createAssistant(t, "bot")
	conv, err := svc.Create(context.Background(), CreateConversationRequest{AssistantID: a.ID})
	require.NoError(t, err)

	stop := errors.New("client went away")
	calls := 0
	_, err = svc.StreamMessage(context.Background(), conv.ID, SendMessageRequest{Question: "count"}, func(string) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)

	history, err := svc.History(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestConversationService_Delete(t *testing.T) {
	env := newTestEnv(t)
	svc := env.conversationService()
	a := env.createAssistant(t, "bot")
	conv, err := svc.Create(context.Background(), CreateConversationRequest{AssistantID: a.ID})
	require.NoError(t, err)
	_, err = svc.SendMessage(context.Background(), conv.ID, SendMessageRequest{Question: "hi"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), conv.ID))
	assert.False(t, env.fake.HasSession(conv.RemoteID))
	assert.False(t, env.mr.Exists("conversation:"+conv.ID))
	_, err = svc.Get(conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, svc.Delete(context.Background(), conv.ID), ErrNotFound)
}
