package scaling

import (
	"encoding/json"
	"time"
)

// Action is what the engine decided for a pool on one tick.
type Action int

const (
	ActionNone Action = iota
	ActionBaseline
	ActionScaleUp
	ActionScaleDown
)

func (a Action) String() string {
	switch a {
	case ActionBaseline:
		return "baseline"
	case ActionScaleUp:
		return "scale_up"
	case ActionScaleDown:
		return "scale_down"
	default:
		return "none"
	}
}

// MarshalText renders the action by name.
func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// Decision records the inputs and outcome of one evaluation.
type Decision struct {
	Pool   string    `json:"pool"`
	At     time.Time `json:"at"`
	Action Action    `json:"action"`

	Current int `json:"current"`
	Target  int `json:"target"`

	Backlog int64   `json:"backlog"`
	SMA     float64 `json:"sma"`
	Rate    float64 `json:"rate"`
	// Sampled is false when the tick returned before the backlog was read.
	Sampled bool `json:"sampled"`

	MinUptime *time.Duration `json:"min_uptime,omitempty"`

	// Scaled is true only when the orchestrator accepted the command.
	Scaled bool   `json:"scaled"`
	Reason string `json:"reason,omitempty"`
	Err    error  `json:"-"`
}

// MarshalJSON adds the error text.
func (d Decision) MarshalJSON() ([]byte, error) {
	type plain Decision
	out := struct {
		plain
		Error string `json:"error,omitempty"`
	}{plain: plain(d)}
	if d.Err != nil {
		out.Error = d.Err.Error()
	}
	return json.Marshal(out)
}
