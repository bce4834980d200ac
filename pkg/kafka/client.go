// Package kafka 提供了与 Kafka 消息队列交互的功能，用于异步同步文档解析状态。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"

	"ragflow-bridge/internal/config"
	"ragflow-bridge/pkg/log"
	"ragflow-bridge/pkg/tasks"
)

// DefaultMaxAttempts 是任务连续失败后放弃重试的次数。
const DefaultMaxAttempts = 3

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.DocumentSyncTask) error
}

// Producer 发送文档同步任务。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(splitBrokers(cfg.Brokers)...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// PublishDocumentSync 发送一个文档同步任务到 Kafka。
func (p *Producer) PublishDocumentSync(ctx context.Context, task tasks.DocumentSyncTask) error {
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now()
	}
	value, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(task.Key()), Value: value})
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

func splitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// AttemptCounter 使用 Redis 记录任务的失败次数。
type AttemptCounter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewAttemptCounter 创建失败计数器。
func NewAttemptCounter(rdb *redis.Client) *AttemptCounter {
	return &AttemptCounter{rdb: rdb, ttl: 24 * time.Hour}
}

func attemptsKey(key string) string {
	return fmt.Sprintf("kafka:attempts:%s", key)
}

// Incr 增加失败次数并返回当前值。
func (a *AttemptCounter) Incr(ctx context.Context, key string) (int64, error) {
	k := attemptsKey(key)
	n, err := a.rdb.Incr(ctx, k).Result()
	if err != nil {
		return 0, err
	}
	_ = a.rdb.Expire(ctx, k, a.ttl).Err()
	return n, nil
}

// Reset 清除失败次数。
func (a *AttemptCounter) Reset(ctx context.Context, key string) error {
	return a.rdb.Del(ctx, attemptsKey(key)).Err()
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer 消费文档同步任务。
type Consumer struct {
	reader       messageReader
	attempts     *AttemptCounter
	processor    TaskProcessor
	maxAttempts  int64
	retryBackoff time.Duration
}

// NewConsumer 创建消费者。
func NewConsumer(cfg config.KafkaConfig, rdb *redis.Client, processor TaskProcessor) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  splitBrokers(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return newConsumer(r, NewAttemptCounter(rdb), processor)
}

func newConsumer(r messageReader, attempts *AttemptCounter, processor TaskProcessor) *Consumer {
	return &Consumer{
		reader:       r,
		attempts:     attempts,
		processor:    processor,
		maxAttempts:  DefaultMaxAttempts,
		retryBackoff: time.Second,
	}
}

// Run 阻塞消费直到 ctx 结束或读取失败。
func (c *Consumer) Run(ctx context.Context) error {
	log.Info("Kafka 消费者已启动")
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			log.Error("从 Kafka 读取消息失败", err)
			return err
		}
		c.handle(ctx, m)
	}
}

// handle 处理单条消息。失败时在原地退避重试，直到成功或失败次数达到上限后提交 offset。
// 后续 offset 的提交会隐式确认当前消息，因此消息不能留给 Kafka 重新投递。
// 失败次数记录在 Redis 中，消费者在重试途中退出后，重新投递的消息会接着计数。
func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	log.Debugf("收到 Kafka 消息: offset %d", m.Offset)

	var task tasks.DocumentSyncTask
	if err := json.Unmarshal(m.Value, &task); err != nil {
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		c.commit(ctx, m)
		return
	}

	var tried int64
	for {
		err := c.processor.Process(ctx, task)
		if err == nil {
			_ = c.attempts.Reset(ctx, task.Key())
			c.commit(ctx, m)
			return
		}
		if ctx.Err() != nil {
			// 退出时不提交，重启后由 Kafka 重新投递
			return
		}
		tried++
		attempts, incErr := c.attempts.Incr(ctx, task.Key())
		if incErr != nil || attempts < tried {
			attempts = tried
		}
		log.Errorf("[SyncWorker] 处理文档同步任务失败: doc=%d, poll=%d, attempt=%d, err=%v", task.DocumentID, task.Poll, attempts, err)
		if attempts >= c.maxAttempts {
			log.Errorf("[SyncWorker] 文档同步任务多次失败(>=%d)，提交 offset 终止重试: doc=%d", c.maxAttempts, task.DocumentID)
			_ = c.attempts.Reset(ctx, task.Key())
			c.commit(ctx, m)
			return
		}
		if !sleep(ctx, c.retryBackoff*time.Duration(attempts)) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}
