package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDocumentSyncTask_Next(t *testing.T) {
	task := DocumentSyncTask{DocumentID: 3, Poll: 4, NotBefore: time.Now().Add(-time.Hour)}

	next := task.Next(10 * time.Second)
	assert.Equal(t, 5, next.Poll)
	assert.Equal(t, "document:3", next.Key())
	assert.WithinDuration(t, time.Now().Add(10*time.Second), next.NotBefore, time.Second)

	assert.True(t, task.Next(0).NotBefore.IsZero())
}

func TestDocumentSyncTask_Wait(t *testing.T) {
	assert.NoError(t, DocumentSyncTask{}.Wait(context.Background()))
	assert.NoError(t, DocumentSyncTask{NotBefore: time.Now().Add(-time.Second)}.Wait(context.Background()))

	start := time.Now()
	assert.NoError(t, DocumentSyncTask{NotBefore: start.Add(20 * time.Millisecond)}.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, DocumentSyncTask{NotBefore: time.Now().Add(time.Hour)}.Wait(ctx), context.Canceled)
}
