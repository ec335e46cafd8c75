package core

// Managed metadata keys and finalizer
const (
	ManagedLabel     = "gitops.platform.example.com/managed"
	OwnerAnnotation  = "gitops.platform.example.com/owner"
	SourceAnnotation = "gitops.platform.example.com/source"
	HashAnnotation   = "gitops.platform.example.com/hash"

	Finalizer = "gitops.platform.example.com/finalizer"
)

// Group and kinds recognized inside manifest trees.
const (
	Group           = "gitops.platform.example.com"
	KindApplication = "Application"
	KindNamespace   = "Namespace"
)

// Condition types
const (
	CondReady       = "Ready"
	CondProgressing = "Progressing"
	CondDegraded    = "Degraded"
)

// Aggregate application status values.
const (
	StatusSynced    AppStatus = "Synced"
	StatusOutOfSync AppStatus = "OutOfSync"
	StatusDegraded  AppStatus = "Degraded"
	StatusFailed    AppStatus = "Failed"
	StatusUnknown   AppStatus = "Unknown"
)

// Reconciliation phases. Settled is re-entered continuously, never terminal.
const (
	PhasePending   Phase = "Pending"
	PhaseResolving Phase = "Resolving"
	PhaseDiffing   Phase = "Diffing"
	PhaseSyncing   Phase = "Syncing"
	PhaseSettled   Phase = "Settled"
)

// Per-resource diff states.
const (
	ResourceInSync    ResourceState = "InSync"
	ResourceOutOfSync ResourceState = "OutOfSync"
	ResourceMissing   ResourceState = "Missing"
	ResourceOrphaned  ResourceState = "Orphaned"
	ResourceConflict  ResourceState = "Conflict"
	ResourceUnknown   ResourceState = "Unknown"
)

// Overlay transformation types.
const (
	TransformSetNamespace   = "setNamespace"
	TransformSetLabel       = "setLabel"
	TransformSetAnnotation  = "setAnnotation"
	TransformPatch          = "patch"
	TransformAddResource    = "addResource"
	TransformRemoveResource = "removeResource"
)
