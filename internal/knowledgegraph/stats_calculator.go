package knowledgegraph

import (
	"sort"

	"ragflow-bridge/pkg/ragflow"
)

// EntityDegree 是实体与其度数。
type EntityDegree struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Degree int    `json:"degree"`
}

// Stats 是知识图谱的统计信息。
type Stats struct {
	NodeCount        int            `json:"nodeCount"`
	EdgeCount        int            `json:"edgeCount"`
	TypeDistribution map[string]int `json:"typeDistribution"`
	AverageDegree    float64        `json:"averageDegree"`
	Density          float64        `json:"density"`
	TopEntities      []EntityDegree `json:"topEntities"`
	IsolatedNodes    []string       `json:"isolatedNodes"`
}

// StatsCalculator 计算图的规模与度分布。
type StatsCalculator struct {
	topN int
}

// NewStatsCalculator 创建统计器，topN 为返回的高度数实体个数。
func NewStatsCalculator(topN int) *StatsCalculator {
	if topN <= 0 {
		topN = 10
	}
	return &StatsCalculator{topN: topN}
}

// Calculate 计算统计信息。边的端点若不在节点列表中也计入度数，但不计入节点数。
func (s *StatsCalculator) Calculate(g ragflow.Graph) Stats {
	st := Stats{
		NodeCount:        len(g.Nodes),
		EdgeCount:        len(g.Edges),
		TypeDistribution: make(map[string]int),
		TopEntities:      []EntityDegree{},
		IsolatedNodes:    []string{},
	}

	degree := make(map[string]int, len(g.Nodes))
	for _, e := range g.Edges {
		degree[e.Source]++
		if e.Target != e.Source {
			degree[e.Target]++
		}
	}

	for _, n := range g.Nodes {
		t := n.EntityType
		if t == "" {
			t = "UNKNOWN"
		}
		st.TypeDistribution[t]++
		d := degree[n.ID]
		if d == 0 {
			st.IsolatedNodes = append(st.IsolatedNodes, n.Name())
		}
		st.TopEntities = append(st.TopEntities, EntityDegree{Name: n.Name(), Type: n.EntityType, Degree: d})
	}
	sort.Strings(st.IsolatedNodes)
	sort.SliceStable(st.TopEntities, func(i, j int) bool {
		if st.TopEntities[i].Degree != st.TopEntities[j].Degree {
			return st.TopEntities[i].Degree > st.TopEntities[j].Degree
		}
		return st.TopEntities[i].Name < st.TopEntities[j].Name
	})
	if len(st.TopEntities) > s.topN {
		st.TopEntities = st.TopEntities[:s.topN]
	}

	if n := st.NodeCount; n > 0 {
		st.AverageDegree = 2 * float64(st.EdgeCount) / float64(n)
		if n > 1 {
			possible := float64(n) * float64(n-1)
			if !g.Directed {
				possible /= 2
			}
			st.Density = float64(st.EdgeCount) / possible
		}
	}
	return st
}
