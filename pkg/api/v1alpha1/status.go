package v1alpha1

import (
	"time"

	"gitopsengine/pkg/agents/status"
	"gitopsengine/pkg/core"
)

// ApplySyncState refreshes the status block from the engine's last committed
// sync state snapshot.
func (application *Application) ApplySyncState(state core.SyncState) {
	application.Status = status.Compute(application.Status, state, time.Now())
}
