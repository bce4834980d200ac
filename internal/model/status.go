package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Status 是本地镜像记录的生命周期状态，synced/sync_failed 为同步终态。
type Status string

const (
	StatusPending    Status = "pending"
	StatusUploading  Status = "uploading"
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSynced     Status = "synced"
	StatusSyncFailed Status = "sync_failed"
)

var knownStatuses = map[Status]struct{}{
	StatusPending:    {},
	StatusUploading:  {},
	StatusUploaded:   {},
	StatusProcessing: {},
	StatusCompleted:  {},
	StatusFailed:     {},
	StatusSynced:     {},
	StatusSyncFailed: {},
}

// ParseStatus 将字符串解析为 Status。
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := knownStatuses[st]; !ok {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// IsTerminal 表示状态不会再因轮询而改变。
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSynced, StatusSyncFailed:
		return true
	}
	return false
}

// Retryable 表示可以通过手动重试恢复的状态。
func (s Status) Retryable() bool {
	return s == StatusFailed || s == StatusSyncFailed
}

// RunStatus 对应 RAGFlow 任务的 run 字段，远端既可能返回名称也可能返回数字编码。
type RunStatus string

const (
	RunStatusUnstart RunStatus = "UNSTART"
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusCancel  RunStatus = "CANCEL"
	RunStatusDone    RunStatus = "DONE"
	RunStatusFail    RunStatus = "FAIL"
)

var runStatusCodes = map[RunStatus]int{
	RunStatusUnstart: 0,
	RunStatusRunning: 1,
	RunStatusCancel:  2,
	RunStatusDone:    3,
	RunStatusFail:    4,
}

// RunStatusFromValue 接受 "DONE"、"3" 或 3 这类取值。
func RunStatusFromValue(v interface{}) (RunStatus, error) {
	switch val := v.(type) {
	case RunStatus:
		return RunStatusFromValue(string(val))
	case string:
		s := strings.ToUpper(strings.TrimSpace(val))
		if s == "" {
			return RunStatusUnstart, nil
		}
		if n, err := strconv.Atoi(s); err == nil {
			return RunStatusFromNumeric(n)
		}
		rs := RunStatus(s)
		if _, ok := runStatusCodes[rs]; !ok {
			return "", fmt.Errorf("unknown run status %q", val)
		}
		return rs, nil
	case int:
		return RunStatusFromNumeric(val)
	case int64:
		return RunStatusFromNumeric(int(val))
	case float64:
		return RunStatusFromNumeric(int(val))
	case nil:
		return RunStatusUnstart, nil
	}
	return "", fmt.Errorf("unsupported run status value %v (%T)", v, v)
}

// RunStatusFromNumeric 将数字编码转换为 RunStatus。
func RunStatusFromNumeric(n int) (RunStatus, error) {
	for rs, code := range runStatusCodes {
		if code == n {
			return rs, nil
		}
	}
	return "", fmt.Errorf("unknown run status code %d", n)
}

// ToNumeric 返回 RAGFlow 使用的数字编码，未知值返回 -1。
func (r RunStatus) ToNumeric() int {
	if code, ok := runStatusCodes[r]; ok {
		return code
	}
	return -1
}

// DocumentStatus 将远端 run 状态映射为本地文档状态。
func (r RunStatus) DocumentStatus() Status {
	switch r {
	case RunStatusRunning:
		return StatusProcessing
	case RunStatusDone:
		return StatusCompleted
	case RunStatusFail, RunStatusCancel:
		return StatusFailed
	default:
		return StatusUploaded
	}
}

// ChunkMethod 是 RAGFlow 支持的切块模板。
type ChunkMethod string

const (
	ChunkMethodNaive          ChunkMethod = "naive"
	ChunkMethodManual         ChunkMethod = "manual"
	ChunkMethodQA             ChunkMethod = "qa"
	ChunkMethodTable          ChunkMethod = "table"
	ChunkMethodPaper          ChunkMethod = "paper"
	ChunkMethodBook           ChunkMethod = "book"
	ChunkMethodLaws           ChunkMethod = "laws"
	ChunkMethodPresentation   ChunkMethod = "presentation"
	ChunkMethodPicture        ChunkMethod = "picture"
	ChunkMethodOne            ChunkMethod = "one"
	ChunkMethodKnowledgeGraph ChunkMethod = "knowledge_graph"
	ChunkMethodEmail          ChunkMethod = "email"
)

var chunkMethods = []ChunkMethod{
	ChunkMethodNaive, ChunkMethodManual, ChunkMethodQA, ChunkMethodTable, ChunkMethodPaper,
	ChunkMethodBook, ChunkMethodLaws, ChunkMethodPresentation, ChunkMethodPicture,
	ChunkMethodOne, ChunkMethodKnowledgeGraph, ChunkMethodEmail,
}

// ChunkMethods 返回全部切块模板。
func ChunkMethods() []ChunkMethod {
	out := make([]ChunkMethod, len(chunkMethods))
	copy(out, chunkMethods)
	return out
}

// Valid 报告是否为已知的切块模板。
func (m ChunkMethod) Valid() bool {
	for _, known := range chunkMethods {
		if m == known {
			return true
		}
	}
	return false
}

// Permission 是数据集的可见范围。
type Permission string

const (
	PermissionMe   Permission = "me"
	PermissionTeam Permission = "team"
)

// Valid 报告是否为已知的权限值。
func (p Permission) Valid() bool {
	return p == PermissionMe || p == PermissionTeam
}
