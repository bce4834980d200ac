// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import (
	"context"
	"fmt"
	"time"
)

// DocumentSyncTask asks a worker to reconcile a local document with its RAGFlow counterpart.
type DocumentSyncTask struct {
	DocumentID       uint      `json:"document_id"`
	DatasetID        uint      `json:"dataset_id"`
	RemoteDocumentID string    `json:"remote_document_id"`
	RemoteDatasetID  string    `json:"remote_dataset_id"`
	Poll             int       `json:"poll"`
	EnqueuedAt       time.Time `json:"enqueued_at"`
	// NotBefore 为零时立即处理。
	NotBefore time.Time `json:"not_before"`
}

// Key identifies the task for partitioning and attempt counting.
func (t DocumentSyncTask) Key() string {
	return fmt.Sprintf("document:%d", t.DocumentID)
}

// Next returns the follow-up poll for the same document, due after delay.
func (t DocumentSyncTask) Next(delay time.Duration) DocumentSyncTask {
	n := t
	n.Poll++
	n.EnqueuedAt = time.Now()
	n.NotBefore = time.Time{}
	if delay > 0 {
		n.NotBefore = n.EnqueuedAt.Add(delay)
	}
	return n
}

// Wait blocks until the task is due or ctx is done.
func (t DocumentSyncTask) Wait(ctx context.Context) error {
	d := time.Until(t.NotBefore)
	if t.NotBefore.IsZero() || d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
