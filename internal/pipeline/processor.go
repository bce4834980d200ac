// Package pipeline 定义了文档状态同步任务的处理流程。
package pipeline

import (
	"context"
	"errors"
	"time"

	"ragflow-bridge/internal/config"
	"ragflow-bridge/internal/model"
	"ragflow-bridge/internal/service"
	"ragflow-bridge/pkg/log"
	"ragflow-bridge/pkg/tasks"
)

const (
	defaultMaxPolls     = 60
	defaultPollInterval = 5 * time.Second
)

// StatusRefresher 刷新单个文档的解析状态。
type StatusRefresher interface {
	RefreshStatus(ctx context.Context, docID uint) (*model.Document, error)
}

// Processor 封装了状态同步任务的依赖和逻辑。
type Processor struct {
	documents StatusRefresher
	publisher service.TaskPublisher
	maxPolls  int
	interval  time.Duration
}

// NewProcessor 创建一个新的 Processor 实例。publisher 为 nil 时不会继续轮询。
func NewProcessor(documents StatusRefresher, publisher service.TaskPublisher, cfg config.DocumentConfig) *Processor {
	p := &Processor{
		documents: documents,
		publisher: publisher,
		maxPolls:  cfg.MaxStatusPolls,
		interval:  cfg.StatusPollInterval,
	}
	if p.maxPolls <= 0 {
		p.maxPolls = defaultMaxPolls
	}
	if p.interval < 0 {
		p.interval = defaultPollInterval
	}
	return p
}

// Process 等到任务的 NotBefore 后刷新文档状态；文档仍在解析中且未超过轮询上限时，
// 立即投递一个间隔之后才到期的下一次轮询。
// 同一分区内的任务按投递顺序到期，所以每条消息最多等待一个间隔，不会逐条累加。
func (p *Processor) Process(ctx context.Context, task tasks.DocumentSyncTask) error {
	if err := task.Wait(ctx); err != nil {
		return err
	}
	log.Infof("[Processor] 开始同步文档状态, docId: %d, poll: %d", task.DocumentID, task.Poll)

	doc, err := p.documents.RefreshStatus(ctx, task.DocumentID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) || errors.Is(err, service.ErrInvalidState) {
			log.Warnf("[Processor] 文档无法同步，丢弃任务, docId: %d, error: %v", task.DocumentID, err)
			return nil
		}
		return err
	}

	if doc.Status.IsTerminal() {
		log.Infof("[Processor] 文档状态同步完成, docId: %d, status: %s, chunks: %d", doc.ID, doc.Status, doc.ChunkCount)
		return nil
	}
	if doc.Status != model.StatusProcessing {
		log.Infof("[Processor] 文档尚未开始解析，停止轮询, docId: %d, status: %s", doc.ID, doc.Status)
		return nil
	}
	if p.publisher == nil {
		return nil
	}
	next := task.Next(p.interval)
	if next.Poll >= p.maxPolls {
		log.Warnf("[Processor] 文档解析超过最大轮询次数(%d)，停止轮询, docId: %d", p.maxPolls, doc.ID)
		return nil
	}
	if err := p.publisher.PublishDocumentSync(ctx, next); err != nil {
		log.Errorf("[Processor] 投递下一次轮询失败, docId: %d, error: %v", doc.ID, err)
		return err
	}
	log.Debugf("[Processor] 文档仍在解析中，已投递下一次轮询, docId: %d, poll: %d", doc.ID, next.Poll)
	return nil
}
