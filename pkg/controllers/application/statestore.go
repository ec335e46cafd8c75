package application

import (
	"sort"
	"sync"

	"gitopsengine/pkg/core"
)

// StateStore holds the last fully committed SyncState per application.
// Writers publish complete snapshots; readers always receive a copy, never a
// partially written state.
type StateStore struct {
	mu     sync.RWMutex
	states map[string]core.SyncState
}

func NewStateStore() *StateStore {
	return &StateStore{states: map[string]core.SyncState{}}
}

// Publish commits a new snapshot for state.App, replacing the previous one.
func (store *StateStore) Publish(state core.SyncState) {
	snapshot := copyState(state)

	store.mu.Lock()
	defer store.mu.Unlock()
	store.states[state.App] = snapshot
}

// Get returns a copy of the last committed snapshot for the application.
func (store *StateStore) Get(app string) (core.SyncState, bool) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	state, found := store.states[app]
	if !found {
		return core.SyncState{App: app, Phase: core.PhasePending, Aggregate: core.StatusUnknown}, false
	}
	return copyState(state), true
}

// List returns copies of all committed snapshots ordered by application name.
func (store *StateStore) List() []core.SyncState {
	store.mu.RLock()
	defer store.mu.RUnlock()

	states := make([]core.SyncState, 0, len(store.states))
	for _, state := range store.states {
		states = append(states, copyState(state))
	}
	sort.Slice(states, func(i, j int) bool { return states[i].App < states[j].App })
	return states
}

// Delete removes the snapshot for an application dropped from the graph.
func (store *StateStore) Delete(app string) {
	store.mu.Lock()
	defer store.mu.Unlock()
	delete(store.states, app)
}

// copyState detaches the slices so a published snapshot can never be mutated
// through a reader's copy.
func copyState(state core.SyncState) core.SyncState {
	snapshot := state
	snapshot.Resources = append([]core.ResourceStatus(nil), state.Resources...)
	snapshot.Inventory = append([]core.InventoryEntry(nil), state.Inventory...)
	snapshot.Errors = append([]string(nil), state.Errors...)
	return snapshot
}
