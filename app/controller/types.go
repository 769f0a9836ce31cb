package controller

import (
	"sort"

	"github.com/canopy-network/backlog-autoscaler/pkg/scaling"
)

// PoolStatus is the /status view of one pool.
type PoolStatus struct {
	Pool         string            `json:"pool"`
	Group        string            `json:"group"`
	MinReplicas  int               `json:"min_replicas"`
	MaxReplicas  int               `json:"max_replicas"`
	LastDecision *scaling.Decision `json:"last_decision,omitempty"`
}

// Snapshot returns the status of every pool, sorted by group/name.
func (a *App) Snapshot() []PoolStatus {
	out := make([]PoolStatus, 0, len(a.Pools))
	for _, p := range a.Pools {
		st := PoolStatus{
			Pool:        p.Config.Name,
			Group:       p.Config.Group,
			MinReplicas: p.Config.MinReplicas,
			MaxReplicas: p.Config.MaxReplicas,
		}
		if d, ok := a.Status.Load(statusKey(p.Config)); ok {
			st.LastDecision = &d
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Pool < out[j].Pool
	})
	return out
}
