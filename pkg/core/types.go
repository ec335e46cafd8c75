package core

// Source locates a versioned manifest tree in a remote repository.
type Source struct {
	RepoURL  string `json:"repoURL"`
	Revision string `json:"revision"`
	Path     string `json:"path,omitempty"`
}

// Destination identifies the cluster and namespace an Application deploys into.
type Destination struct {
	Cluster   string `json:"cluster,omitempty"`
	Namespace string `json:"namespace"`
}

// SyncPolicy configures reconciliation automation for an Application.
type SyncPolicy struct {
	AutoSync bool `json:"autoSync,omitempty"`
	SelfHeal bool `json:"selfHeal,omitempty"`
	Prune    bool `json:"prune,omitempty"`
}

// Transformation is one ordered overlay step. The populated fields depend on Type.
type Transformation struct {
	Type      string         `json:"type"`
	Namespace string         `json:"namespace,omitempty"` // setNamespace
	Key       string         `json:"key,omitempty"`       // setLabel, setAnnotation
	Value     string         `json:"value,omitempty"`     // setLabel, setAnnotation
	Target    *ResourceKey   `json:"target,omitempty"`    // patch, removeResource
	Patch     map[string]any `json:"patch,omitempty"`     // patch (JSON merge patch document)
	Resource  map[string]any `json:"resource,omitempty"`  // addResource
}

// ApplicationSpec models the declared desired state of one Application.
type ApplicationSpec struct {
	Source              Source           `json:"source"`
	Destination         Destination      `json:"destination"`
	SyncPolicy          *SyncPolicy      `json:"syncPolicy,omitempty"`
	Overlay             []Transformation `json:"overlay,omitempty"`
	ResyncPeriodSeconds *int32           `json:"resyncPeriodSeconds,omitempty"`
}

// Application is one node of the application graph. Parent is empty for roots;
// a parent exclusively owns the lifecycle of the children it declares.
type Application struct {
	Name   string
	Parent string
	Spec   ApplicationSpec
}

// ResourceKey identifies a single addressable unit of desired or live state.
type ResourceKey struct {
	Kind      string `json:"kind"`
	Namespace string `json:"namespace,omitempty"`
	Name      string `json:"name"`
}

func (key ResourceKey) String() string {
	return key.Kind + "/" + key.Namespace + "/" + key.Name
}

// Less orders keys for deterministic output.
func (key ResourceKey) Less(other ResourceKey) bool {
	if key.Kind != other.Kind {
		return key.Kind < other.Kind
	}
	if key.Namespace != other.Namespace {
		return key.Namespace < other.Namespace
	}
	return key.Name < other.Name
}

// Resource carries one parsed manifest document. Owner is populated only on
// live resources, from the owner annotation written at apply time.
type Resource struct {
	Key     ResourceKey
	Content map[string]any
	Owner   string
}

// APIVersion reads the document's apiVersion field.
func (resource Resource) APIVersion() string {
	version, _ := resource.Content["apiVersion"].(string)
	return version
}

// RecordedHash reads the content hash annotation stamped on a live resource.
func (resource Resource) RecordedHash() string {
	metadata, ok := resource.Content["metadata"].(map[string]any)
	if !ok {
		return ""
	}
	annotations, ok := metadata["annotations"].(map[string]any)
	if !ok {
		return ""
	}
	hash, _ := annotations[HashAnnotation].(string)
	return hash
}

// ResourceState classifies one resource identity in a diff.
type ResourceState string

// AppStatus is the aggregate status of one Application.
type AppStatus string

// Phase is the position of an Application in the reconciliation state machine.
type Phase string

// ResourceStatus reports the diff state for one resource identity.
type ResourceStatus struct {
	Key     ResourceKey   `json:"key"`
	State   ResourceState `json:"state"`
	Message string        `json:"message,omitempty"`
}

// InventoryEntry records a resource the executor has applied for an
// Application, so orphans can be detected without listing the whole cluster
// and survive process restarts.
type InventoryEntry struct {
	Key        ResourceKey `json:"key"`
	APIVersion string      `json:"apiVersion,omitempty"`
}

// SyncState is the per-Application snapshot published after each
// reconciliation pass. Readers always receive a fully committed copy.
type SyncState struct {
	App          string           `json:"app"`
	Phase        Phase            `json:"phase"`
	Aggregate    AppStatus        `json:"aggregate"`
	Resources    []ResourceStatus `json:"resources,omitempty"`
	Inventory    []InventoryEntry `json:"inventory,omitempty"`
	Revision     string           `json:"revision,omitempty"`
	Outcome      string           `json:"outcome,omitempty"`
	Errors       []string         `json:"errors,omitempty"`
	LastSyncTime string           `json:"lastSyncTime,omitempty"` // RFC3339
}

// Condition is a standard status condition.
type Condition struct {
	Type               string `json:"type"`
	Status             string `json:"status"` // True|False|Unknown
	Reason             string `json:"reason,omitempty"`
	Message            string `json:"message,omitempty"`
	LastTransitionTime string `json:"lastTransitionTime,omitempty"`
}

// ApplicationStatus reports controller state on the Application API object.
type ApplicationStatus struct {
	Conditions     []Condition      `json:"conditions,omitempty"`
	Sync           AppStatus        `json:"sync,omitempty"`
	Phase          Phase            `json:"phase,omitempty"`
	ResourceCount  int32            `json:"resourceCount,omitempty"`
	SyncedCount    int32            `json:"syncedCount,omitempty"`
	OutOfSyncCount int32            `json:"outOfSyncCount,omitempty"`
	Resources      []ResourceStatus `json:"resources,omitempty"`
	Revision       string           `json:"revision,omitempty"`
	Outcome        string           `json:"outcome,omitempty"`
	LastSyncTime   string           `json:"lastSyncTime,omitempty"` // RFC3339
}
