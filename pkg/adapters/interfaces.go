package adapters

import (
	"context"

	"gitopsengine/pkg/core"
)

// ManifestSource fetches a versioned snapshot of a manifest tree. The result
// maps file paths (relative to path) to raw multi-document YAML. Failures
// wrap core.ErrSourceUnavailable or core.ErrRevisionNotFound.
type ManifestSource interface {
	Fetch(ctx context.Context, repoURL, revision, path string) (map[string][]byte, error)
}

// ClusterClient is the live cluster boundary. The destination cluster is
// threaded through every call; there is no ambient cluster context.
type ClusterClient interface {
	// Get reads the live state of the identity described by desired. The
	// desired document supplies the apiVersion needed to address the object.
	Get(ctx context.Context, destination core.Destination, desired core.Resource) (*core.Resource, bool, error)
	// Apply creates or updates the resource, stamping ownership and content
	// hash metadata for app. Re-applying an already converged resource is a
	// no-op on the cluster side.
	Apply(ctx context.Context, destination core.Destination, app string, resource core.Resource) error
	// Delete removes the resource; a missing object is not an error.
	Delete(ctx context.Context, destination core.Destination, resource core.Resource) error
}
