package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DailyQuota is the relax quota row for one calendar day.
type DailyQuota struct {
	Day           string `json:"day"`
	UsedMs        int64  `json:"used_ms"`
	ActiveSinceMs *int64 `json:"active_since_ms"`
}

// Active reports whether an interval is open.
func (q DailyQuota) Active() bool {
	return q.ActiveSinceMs != nil
}

// CloseResult describes the outcome of CloseInterval.
type CloseResult struct {
	Closed      bool
	SinceMs     int64
	CommittedMs int64
	UsedMs      int64
}

// CloseReason explains why an active interval ended.
type CloseReason string

const (
	CloseReasonStopped         CloseReason = "stopped"
	CloseReasonChunkExhausted  CloseReason = "chunk_exhausted"
	CloseReasonBudgetExhausted CloseReason = "budget_exhausted"
)

// UnmarshalJSON implements json.Unmarshaler and normalizes unknown reasons.
func (r *CloseReason) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	normalized := CloseReason(strings.ToLower(s))
	switch normalized {
	case CloseReasonStopped, CloseReasonChunkExhausted, CloseReasonBudgetExhausted:
		*r = normalized
		return nil
	default:
		return fmt.Errorf("invalid close reason: %s", s)
	}
}

// RelaxSession is one closed relax interval.
type RelaxSession struct {
	ID         string      `json:"id"`
	Day        string      `json:"day"`
	StartedAt  time.Time   `json:"started_at"`
	EndedAt    time.Time   `json:"ended_at"`
	DurationMs int64       `json:"duration_ms"`
	Reason     CloseReason `json:"reason"`
}

// RotationItem is one selectable display item.
type RotationItem struct {
	Key          string `json:"item_key"`
	Type         string `json:"item_type"`
	Ordinal      int    `json:"ordinal"`
	DisplayCount int64  `json:"display_count"`
	LastShownMs  int64  `json:"last_shown_ms"`
}

// RotationState is the singleton selection state. An empty CurrentKey means no
// selection has been made yet.
type RotationState struct {
	CurrentKey   string `json:"current_key"`
	LastChangeMs int64  `json:"last_change_ms"`
}
