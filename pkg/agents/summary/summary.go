package summary

import (
	"sort"

	"gitopsengine/pkg/core"
)

// ActionType enumerates the type of action taken on a resource during a sync.
type ActionType string

// Action types emitted by the executor for observability.
const (
	ActionCreated ActionType = "created"
	ActionUpdated ActionType = "updated"
	ActionPruned  ActionType = "pruned"
	ActionSkipped ActionType = "skipped"
	ActionFailed  ActionType = "failed"
)

// Reason values describing why an action occurred.
const (
	ReasonApplied       = "Applied"
	ReasonAlreadySynced = "AlreadySynced"
	ReasonAutoSyncOff   = "AutoSyncDisabled"
	ReasonPruneOff      = "PruneDisabled"
	ReasonConflict      = "Conflict"
	ReasonPruned        = "Pruned"
	ReasonApplyRejected = "ApplyRejected"
)

// ResourceAction captures a single action taken for a resource identity.
type ResourceAction struct {
	Key    core.ResourceKey
	Action ActionType
	Reason string
	Error  string
}

// Summary aggregates the outcomes of one sync run for metrics, status, and
// events.
type Summary struct {
	App     string
	Actions []ResourceAction
}

// Count returns the number of actions for the provided type.
func (s *Summary) Count(t ActionType) int {
	if s == nil {
		return 0
	}
	count := 0
	for _, action := range s.Actions {
		if action.Action == t {
			count++
		}
	}
	return count
}

// Mutations returns the number of actions that wrote to the cluster.
func (s *Summary) Mutations() int {
	return s.Count(ActionCreated) + s.Count(ActionUpdated) + s.Count(ActionPruned)
}

// SortedActions returns a copy of the actions ordered by resource key for
// deterministic reporting.
func (s *Summary) SortedActions() []ResourceAction {
	if s == nil || len(s.Actions) == 0 {
		return nil
	}
	out := append([]ResourceAction(nil), s.Actions...)
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out
}
