package knowledgegraph

import (
	"sort"
	"strings"

	"ragflow-bridge/pkg/ragflow"
)

// Direction 限定关系相对于实体的方向。
type Direction string

const (
	DirectionBoth Direction = "both"
	DirectionOut  Direction = "out"
	DirectionIn   Direction = "in"
)

// ParseDirection 解析方向参数，空值视为 both。
func ParseDirection(s string) (Direction, bool) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case "", DirectionBoth:
		return DirectionBoth, true
	case DirectionOut:
		return DirectionOut, true
	case DirectionIn:
		return DirectionIn, true
	}
	return "", false
}

// Relation 是对外返回的关系视图。
type Relation struct {
	Source      string   `json:"source"`
	Target      string   `json:"target"`
	Description string   `json:"description,omitempty"`
	Weight      float64  `json:"weight"`
	Keywords    []string `json:"keywords,omitempty"`
}

// RelationQuery 描述关系过滤条件。
type RelationQuery struct {
	Entity    string
	Direction Direction
	Keyword   string
	MinWeight float64
	Limit     int
}

// RelationExtractor 从图中提取关系。
type RelationExtractor struct{}

// NewRelationExtractor 创建关系提取器。
func NewRelationExtractor() *RelationExtractor {
	return &RelationExtractor{}
}

// Extract 返回满足条件的关系，按权重降序排列。Entity 的比较不区分大小写。
func (x *RelationExtractor) Extract(g ragflow.Graph, q RelationQuery) []Relation {
	entity := strings.TrimSpace(q.Entity)
	keyword := strings.ToLower(strings.TrimSpace(q.Keyword))
	dir := q.Direction
	if dir == "" {
		dir = DirectionBoth
	}

	out := make([]Relation, 0)
	for _, e := range g.Edges {
		if entity != "" && !touches(e, entity, dir) {
			continue
		}
		if e.Weight < q.MinWeight {
			continue
		}
		if keyword != "" && !matchesKeyword(e, keyword) {
			continue
		}
		out = append(out, Relation{
			Source:      e.Source,
			Target:      e.Target,
			Description: e.Description,
			Weight:      e.Weight,
			Keywords:    e.Keywords,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Target < out[j].Target
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// Neighbors 返回与实体直接相连的实体名称，已排序去重。
func (x *RelationExtractor) Neighbors(g ragflow.Graph, entity string, dir Direction) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if strings.EqualFold(name, entity) || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, e := range g.Edges {
		if (dir == DirectionBoth || dir == DirectionOut || dir == "") && strings.EqualFold(e.Source, entity) {
			add(e.Target)
		}
		if (dir == DirectionBoth || dir == DirectionIn || dir == "") && strings.EqualFold(e.Target, entity) {
			add(e.Source)
		}
	}
	sort.Strings(out)
	return out
}

func touches(e ragflow.GraphEdge, entity string, dir Direction) bool {
	switch dir {
	case DirectionOut:
		return strings.EqualFold(e.Source, entity)
	case DirectionIn:
		return strings.EqualFold(e.Target, entity)
	default:
		return strings.EqualFold(e.Source, entity) || strings.EqualFold(e.Target, entity)
	}
}

func matchesKeyword(e ragflow.GraphEdge, keyword string) bool {
	if strings.Contains(strings.ToLower(e.Description), keyword) {
		return true
	}
	for _, k := range e.Keywords {
		if strings.Contains(strings.ToLower(k), keyword) {
			return true
		}
	}
	return false
}
