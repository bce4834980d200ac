// Package knowledgegraph 对从 RAGFlow 获取的知识图谱做过滤与统计，不做任何远程调用。
package knowledgegraph

import (
	"sort"
	"strings"

	"ragflow-bridge/pkg/ragflow"
)

// Entity 是对外返回的实体视图。
type Entity struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	PageRank    float64  `json:"pagerank"`
	SourceIDs   []string `json:"sourceIds,omitempty"`
}

// EntityQuery 描述实体过滤条件，零值表示不过滤。
type EntityQuery struct {
	Types       []string
	Name        string
	MinPageRank float64
	Limit       int
}

// EntityFilter 按类型、名称和 pagerank 过滤实体。
type EntityFilter struct{}

// NewEntityFilter 创建实体过滤器。
func NewEntityFilter() *EntityFilter {
	return &EntityFilter{}
}

// Filter 返回满足条件的实体，按 pagerank 降序、名称升序排列。
func (f *EntityFilter) Filter(g ragflow.Graph, q EntityQuery) []Entity {
	types := make(map[string]bool, len(q.Types))
	for _, t := range q.Types {
		if t = strings.TrimSpace(t); t != "" {
			types[strings.ToUpper(t)] = true
		}
	}
	name := strings.ToLower(strings.TrimSpace(q.Name))

	out := make([]Entity, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if len(types) > 0 && !types[strings.ToUpper(n.EntityType)] {
			continue
		}
		if name != "" && !strings.Contains(strings.ToLower(n.Name()), name) {
			continue
		}
		if n.PageRank < q.MinPageRank {
			continue
		}
		out = append(out, toEntity(n))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PageRank != out[j].PageRank {
			return out[i].PageRank > out[j].PageRank
		}
		return out[i].Name < out[j].Name
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// Types 返回图中出现的实体类型，已排序去重。
func (f *EntityFilter) Types(g ragflow.Graph) []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range g.Nodes {
		t := n.EntityType
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func toEntity(n ragflow.GraphNode) Entity {
	return Entity{
		Name:        n.Name(),
		Type:        n.EntityType,
		Description: n.Description,
		PageRank:    n.PageRank,
		SourceIDs:   n.SourceID,
	}
}
