package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragflow-bridge/pkg/tasks"
)

// fakeReader 依次返回排队的消息，队列耗尽后调用 drained 并阻塞到 ctx 结束。
type fakeReader struct {
	queue     []kafka.Message
	drained   func()
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		return m, nil
	}
	if r.drained != nil {
		r.drained()
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type processorFunc func(ctx context.Context, task tasks.DocumentSyncTask) error

func (f processorFunc) Process(ctx context.Context, task tasks.DocumentSyncTask) error {
	return f(ctx, task)
}

func newTestConsumer(t *testing.T, p TaskProcessor) (*Consumer, *fakeReader, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	r := &fakeReader{}
	c := newConsumer(r, NewAttemptCounter(rdb), p)
	c.retryBackoff = 0
	return c, r, mr
}

func message(t *testing.T, offset int64, task tasks.DocumentSyncTask) kafka.Message {
	t.Helper()
	b, err := json.Marshal(task)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: b}
}

func TestConsumer_CommitsOnSuccess(t *testing.T) {
	var got tasks.DocumentSyncTask
	c, r, mr := newTestConsumer(t, processorFunc(func(_ context.Context, task tasks.DocumentSyncTask) error {
		got = task
		return nil
	}))
	task := tasks.DocumentSyncTask{DocumentID: 5, RemoteDocumentID: "doc-5"}
	mr.Set("kafka:attempts:document:5", "2")

	c.handle(context.Background(), message(t, 10, task))

	assert.Equal(t, []int64{10}, r.committed)
	assert.Equal(t, "doc-5", got.RemoteDocumentID)
	assert.False(t, mr.Exists("kafka:attempts:document:5"))
}

func runQueued(t *testing.T, c *Consumer, r *fakeReader, msgs ...kafka.Message) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.queue = msgs
	r.drained = cancel
	require.NoError(t, c.Run(ctx))
}

func TestConsumer_RetriesInPlaceBeforeNextMessage(t *testing.T) {
	var seen []uint
	failures := 2
	c, r, mr := newTestConsumer(t, processorFunc(func(_ context.Context, task tasks.DocumentSyncTask) error {
		seen = append(seen, task.DocumentID)
		if task.DocumentID == 9 && failures > 0 {
			failures--
			return errors.New("ragflow down")
		}
		return nil
	}))

	runQueued(t, c, r, message(t, 3, tasks.DocumentSyncTask{DocumentID: 9}), message(t, 4, tasks.DocumentSyncTask{DocumentID: 10}))

	assert.Equal(t, []uint{9, 9, 9, 10}, seen)
	assert.Equal(t, []int64{3, 4}, r.committed)
	assert.False(t, mr.Exists("kafka:attempts:document:9"))
}

func TestConsumer_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := map[uint]int{}
	c, r, mr := newTestConsumer(t, processorFunc(func(_ context.Context, task tasks.DocumentSyncTask) error {
		calls[task.DocumentID]++
		if task.DocumentID == 9 {
			return errors.New("ragflow down")
		}
		return nil
	}))

	runQueued(t, c, r, message(t, 3, tasks.DocumentSyncTask{DocumentID: 9}), message(t, 4, tasks.DocumentSyncTask{DocumentID: 10}))

	assert.Equal(t, DefaultMaxAttempts, calls[9])
	assert.Equal(t, 1, calls[10])
	assert.Equal(t, []int64{3, 4}, r.committed)
	assert.False(t, mr.Exists("kafka:attempts:document:9"))
}

func TestConsumer_ResumesAttemptCountAfterRestart(t *testing.T) {
	calls := 0
	c, r, mr := newTestConsumer(t, processorFunc(func(context.Context, tasks.DocumentSyncTask) error {
		calls++
		return errors.New("ragflow down")
	}))
	mr.Set("kafka:attempts:document:9", "2")

	runQueued(t, c, r, message(t, 3, tasks.DocumentSyncTask{DocumentID: 9}))

	assert.Equal(t, 1, calls)
	assert.Equal(t, []int64{3}, r.committed)
}

func TestConsumer_LeavesMessageUncommittedOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c, r, mr := newTestConsumer(t, processorFunc(func(context.Context, tasks.DocumentSyncTask) error {
		cancel()
		return context.Canceled
	}))

	c.handle(ctx, message(t, 3, tasks.DocumentSyncTask{DocumentID: 9}))

	assert.Empty(t, r.committed)
	assert.False(t, mr.Exists("kafka:attempts:document:9"))
}

func TestConsumer_CommitsMalformedMessage(t *testing.T) {
	c, r, _ := newTestConsumer(t, processorFunc(func(context.Context, tasks.DocumentSyncTask) error {
		t.Fatal("processor must not be called")
		return nil
	}))
	c.handle(context.Background(), kafka.Message{Offset: 1, Value: []byte("{not json")})
	assert.Equal(t, []int64{1}, r.committed)
}

func TestConsumer_RunStopsOnCancel(t *testing.T) {
	c, _, _ := newTestConsumer(t, processorFunc(func(context.Context, tasks.DocumentSyncTask) error { return nil }))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, c.Run(ctx))
}

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, splitBrokers(" a:9092, ,b:9092 "))
}
