package application

import (
	"context"
	"sync"

	"gitopsengine/pkg/core"
)

// fakeSource serves manifest trees keyed by repo@revision/path.
type fakeSource struct {
	mu    sync.Mutex
	trees map[string]map[string][]byte
	err   error
}

func newFakeSource() *fakeSource {
	return &fakeSource{trees: map[string]map[string][]byte{}}
}

func sourceKey(repoURL, revision, path string) string {
	return repoURL + "@" + revision + "/" + path
}

func (source *fakeSource) set(repoURL, revision, path string, documents map[string][]byte) {
	source.mu.Lock()
	defer source.mu.Unlock()
	source.trees[sourceKey(repoURL, revision, path)] = documents
}

func (source *fakeSource) Fetch(_ context.Context, repoURL, revision, path string) (map[string][]byte, error) {
	source.mu.Lock()
	defer source.mu.Unlock()
	if source.err != nil {
		return nil, source.err
	}
	tree, found := source.trees[sourceKey(repoURL, revision, path)]
	if !found {
		return nil, &core.SourceError{Repo: repoURL, Revision: revision, Err: core.ErrRevisionNotFound}
	}
	return tree, nil
}

// fakeCluster stores applied resources in memory, stamping the same ownership
// and hash metadata the real client writes.
type fakeCluster struct {
	mu        sync.Mutex
	objects   map[core.ResourceKey]core.Resource
	applyErr  map[core.ResourceKey]error
	deleteErr map[core.ResourceKey]error
	getErr    map[core.ResourceKey]error
	applied   []core.ResourceKey
	deleted   []core.ResourceKey
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{
		objects:   map[core.ResourceKey]core.Resource{},
		applyErr:  map[core.ResourceKey]error{},
		deleteErr: map[core.ResourceKey]error{},
		getErr:    map[core.ResourceKey]error{},
	}
}

func (cluster *fakeCluster) Get(_ context.Context, _ core.Destination, desired core.Resource) (*core.Resource, bool, error) {
	cluster.mu.Lock()
	defer cluster.mu.Unlock()
	if err := cluster.getErr[desired.Key]; err != nil {
		return nil, false, err
	}
	stored, found := cluster.objects[desired.Key]
	if !found {
		return nil, false, nil
	}
	copied := core.Resource{Key: stored.Key, Content: core.DeepCopyContent(stored.Content), Owner: stored.Owner}
	return &copied, true, nil
}

func (cluster *fakeCluster) Apply(_ context.Context, _ core.Destination, app string, resource core.Resource) error {
	cluster.mu.Lock()
	defer cluster.mu.Unlock()
	if err := cluster.applyErr[resource.Key]; err != nil {
		return err
	}

	hash := core.HashContent(resource.Content)
	content := core.DeepCopyContent(resource.Content)
	metadata, _ := content["metadata"].(map[string]any)
	if metadata == nil {
		metadata = map[string]any{}
		content["metadata"] = metadata
	}
	annotations, _ := metadata["annotations"].(map[string]any)
	if annotations == nil {
		annotations = map[string]any{}
		metadata["annotations"] = annotations
	}
	annotations[core.OwnerAnnotation] = app
	annotations[core.HashAnnotation] = hash

	cluster.objects[resource.Key] = core.Resource{Key: resource.Key, Content: content, Owner: app}
	cluster.applied = append(cluster.applied, resource.Key)
	return nil
}

func (cluster *fakeCluster) Delete(_ context.Context, _ core.Destination, resource core.Resource) error {
	cluster.mu.Lock()
	defer cluster.mu.Unlock()
	if err := cluster.deleteErr[resource.Key]; err != nil {
		return err
	}
	delete(cluster.objects, resource.Key)
	cluster.deleted = append(cluster.deleted, resource.Key)
	return nil
}

// seed installs a live object owned by owner whose recorded hash matches the
// given desired content.
func (cluster *fakeCluster) seed(desired core.Resource, owner string) {
	cluster.mu.Lock()
	defer cluster.mu.Unlock()

	hash := core.HashContent(desired.Content)
	content := core.DeepCopyContent(desired.Content)
	metadata, _ := content["metadata"].(map[string]any)
	if metadata == nil {
		metadata = map[string]any{}
		content["metadata"] = metadata
	}
	annotations, _ := metadata["annotations"].(map[string]any)
	if annotations == nil {
		annotations = map[string]any{}
		metadata["annotations"] = annotations
	}
	annotations[core.OwnerAnnotation] = owner
	annotations[core.HashAnnotation] = hash

	cluster.objects[desired.Key] = core.Resource{Key: desired.Key, Content: content, Owner: owner}
}

// mutate edits a stored object's content in place, the way a kubectl edit
// would: annotations and ownership stay exactly as stamped.
func (cluster *fakeCluster) mutate(key core.ResourceKey, edit func(content map[string]any)) {
	cluster.mu.Lock()
	defer cluster.mu.Unlock()
	stored, found := cluster.objects[key]
	if !found {
		return
	}
	edit(stored.Content)
	cluster.objects[key] = stored
}

func (cluster *fakeCluster) appliedKeys() []core.ResourceKey {
	cluster.mu.Lock()
	defer cluster.mu.Unlock()
	return append([]core.ResourceKey(nil), cluster.applied...)
}

func (cluster *fakeCluster) deletedKeys() []core.ResourceKey {
	cluster.mu.Lock()
	defer cluster.mu.Unlock()
	return append([]core.ResourceKey(nil), cluster.deleted...)
}

func (cluster *fakeCluster) has(key core.ResourceKey) bool {
	cluster.mu.Lock()
	defer cluster.mu.Unlock()
	_, found := cluster.objects[key]
	return found
}
