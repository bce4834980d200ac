package service

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"ragflow-bridge/internal/model"
	"ragflow-bridge/internal/repository"
	"ragflow-bridge/pkg/database"
	"ragflow-bridge/pkg/log"
	"ragflow-bridge/pkg/ragflow"
)

const (
	healthOK       = "ok"
	healthDown     = "down"
	healthDegraded = "degraded"
	checkTimeout   = 5 * time.Second
)

// CheckResult 是单个依赖的健康检查结果。
type CheckResult struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

// HealthReport 汇总所有依赖的健康状态。
type HealthReport struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// Healthy 表示所有依赖均可用。
func (h *HealthReport) Healthy() bool {
	return h.Status == healthOK
}

// StatusReport 是系统运行状态。
type StatusReport struct {
	Version        string                 `json:"version"`
	StartedAt      model.LocalTime        `json:"startedAt"`
	Uptime         string                 `json:"uptime"`
	Datasets       int64                  `json:"datasets"`
	Documents      int64                  `json:"documents"`
	DocumentStatus map[model.Status]int64 `json:"documentStatus"`
	ChatAssistants int64                  `json:"chatAssistants"`
	Conversations  int64                  `json:"conversations"`
	RAGFlow        CheckResult            `json:"ragflow"`
}

// SystemService 接口定义了健康检查与运行状态相关的操作。
type SystemService interface {
	Health(ctx context.Context) *HealthReport
	Status(ctx context.Context) (*StatusReport, error)
}

type checkFunc func(ctx context.Context) error

type systemService struct {
	checks           map[string]checkFunc
	client           *ragflow.Client
	datasetRepo      repository.DatasetRepository
	documentRepo     repository.DocumentRepository
	assistantRepo    repository.ChatAssistantRepository
	conversationRepo repository.ConversationRepository
	version          string
	startedAt        time.Time
}

// NewSystemService 创建一个新的 SystemService 实例。
func NewSystemService(db *gorm.DB, rdb *redis.Client, client *ragflow.Client, datasetRepo repository.DatasetRepository, documentRepo repository.DocumentRepository, assistantRepo repository.ChatAssistantRepository, conversationRepo repository.ConversationRepository, version string) SystemService {
	return &systemService{
		checks: map[string]checkFunc{
			"mysql":   func(ctx context.Context) error { return database.PingMySQL(ctx, db) },
			"redis":   func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			"ragflow": client.Ping,
		},
		client:           client,
		datasetRepo:      datasetRepo,
		documentRepo:     documentRepo,
		assistantRepo:    assistantRepo,
		conversationRepo: conversationRepo,
		version:          version,
		startedAt:        time.Now(),
	}
}

func runCheck(ctx context.Context, check checkFunc) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	start := time.Now()
	err := check(ctx)
	res := CheckResult{Status: healthOK, LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = healthDown
		res.Error = err.Error()
	}
	return res
}

// Health 并发检查 MySQL、Redis 与 RAGFlow。
func (s *systemService) Health(ctx context.Context) *HealthReport {
	report := &HealthReport{Status: healthOK, Checks: make(map[string]CheckResult, len(s.checks))}
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, check := range s.checks {
		wg.Add(1)
		go func(name string, check checkFunc) {
			defer wg.Done()
			res := runCheck(ctx, check)
			mu.Lock()
			defer mu.Unlock()
			report.Checks[name] = res
			if res.Status != healthOK {
				report.Status = healthDegraded
				log.Warnf("[SystemService] 健康检查失败, component: %s, error: %s", name, res.Error)
			}
		}(name, check)
	}
	wg.Wait()
	return report
}

// Status 返回本地统计和远端可达性。
func (s *systemService) Status(ctx context.Context) (*StatusReport, error) {
	report := &StatusReport{
		Version:   s.version,
		StartedAt: model.LocalTime(s.startedAt),
		Uptime:    time.Since(s.startedAt).Truncate(time.Second).String(),
	}
	var err error
	if report.Datasets, err = s.datasetRepo.Count(); err != nil {
		return nil, err
	}
	if report.Documents, err = s.documentRepo.Count(); err != nil {
		return nil, err
	}
	if report.DocumentStatus, err = s.documentRepo.CountByStatus(); err != nil {
		return nil, err
	}
	if report.ChatAssistants, err = s.assistantRepo.Count(); err != nil {
		return nil, err
	}
	if report.Conversations, err = s.conversationRepo.Count(); err != nil {
		return nil, err
	}
	report.RAGFlow = runCheck(ctx, s.client.Ping)
	return report, nil
}
