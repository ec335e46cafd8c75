package core

import (
	"encoding/json"
	"fmt"
	"sort"

	jsonpatch "github.com/evanphx/json-patch/v5"
)

// Compose applies the ordered overlay to the base resource set and returns
// the merged set, sorted by resource key. Transformations apply strictly in
// declared order with last-write-wins semantics per field path. Compose never
// mutates its inputs: identical (base, overlay) inputs always yield identical
// output, which is what makes content-hash drift detection sound.
func Compose(base []Resource, overlay []Transformation) ([]Resource, error) {
	merged := make([]Resource, 0, len(base))
	index := make(map[ResourceKey]int, len(base))

	for _, resource := range base {
		if _, exists := index[resource.Key]; exists {
			return nil, &CompositionError{Step: -1, Target: &resource.Key, Reason: "duplicate resource identity in base set"}
		}
		index[resource.Key] = len(merged)
		merged = append(merged, Resource{Key: resource.Key, Content: DeepCopyContent(resource.Content)})
	}

	for stepIndex, step := range overlay {
		var err error
		switch step.Type {
		case TransformSetNamespace:
			merged, index = setNamespace(merged, step.Namespace)
		case TransformSetLabel:
			setMetadataEntry(merged, "labels", step.Key, step.Value)
		case TransformSetAnnotation:
			setMetadataEntry(merged, "annotations", step.Key, step.Value)
		case TransformPatch:
			err = patchResource(merged, index, stepIndex, step)
		case TransformAddResource:
			merged, index, err = addResource(merged, index, stepIndex, step)
		case TransformRemoveResource:
			merged, index, err = removeResource(merged, index, stepIndex, step)
		default:
			err = &CompositionError{Step: stepIndex, Reason: fmt.Sprintf("unknown transformation type %q", step.Type)}
		}
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Key.Less(merged[j].Key) })
	return merged, nil
}

// setNamespace rewrites metadata.namespace on every namespaced document.
// Cluster-scoped Namespace documents and child Application declarations keep
// their own identity.
func setNamespace(resources []Resource, namespace string) ([]Resource, map[ResourceKey]int) {
	index := make(map[ResourceKey]int, len(resources))
	for position := range resources {
		resource := &resources[position]
		if resource.Key.Kind != KindNamespace && !IsApplicationDeclaration(resource.Content) {
			metadata := ensureMap(resource.Content, "metadata")
			metadata["namespace"] = namespace
			resource.Key.Namespace = namespace
		}
		index[resource.Key] = position
	}
	return resources, index
}

func setMetadataEntry(resources []Resource, field, key, value string) {
	for position := range resources {
		metadata := ensureMap(resources[position].Content, "metadata")
		entries := ensureMap(metadata, field)
		entries[key] = value
	}
}

func patchResource(resources []Resource, index map[ResourceKey]int, stepIndex int, step Transformation) error {
	position, found := index[*step.Target]
	if !found {
		return &CompositionError{Step: stepIndex, Target: step.Target, Reason: "patch target not found"}
	}

	documentRaw, err := json.Marshal(resources[position].Content)
	if err != nil {
		return &CompositionError{Step: stepIndex, Target: step.Target, Reason: fmt.Sprintf("encode target: %v", err)}
	}
	patchRaw, err := json.Marshal(step.Patch)
	if err != nil {
		return &CompositionError{Step: stepIndex, Target: step.Target, Reason: fmt.Sprintf("encode patch: %v", err)}
	}

	mergedRaw, err := jsonpatch.MergePatch(documentRaw, patchRaw)
	if err != nil {
		return &CompositionError{Step: stepIndex, Target: step.Target, Reason: fmt.Sprintf("merge patch: %v", err)}
	}

	var mergedContent map[string]any
	if err := json.Unmarshal(mergedRaw, &mergedContent); err != nil {
		return &CompositionError{Step: stepIndex, Target: step.Target, Reason: fmt.Sprintf("decode merged document: %v", err)}
	}

	// A patch that rewrites name, namespace, kind or apiVersion would leave
	// the document filed under a stale identity. Identity changes go through
	// removeResource plus addResource instead.
	mergedKey, err := KeyFromContent(mergedContent)
	if err != nil {
		return &CompositionError{Step: stepIndex, Target: step.Target, Reason: fmt.Sprintf("merged document: %v", err)}
	}
	if mergedKey != *step.Target {
		return &CompositionError{Step: stepIndex, Target: step.Target, Reason: fmt.Sprintf("patch changes resource identity to %s", mergedKey)}
	}

	resources[position].Content = mergedContent
	return nil
}

func addResource(resources []Resource, index map[ResourceKey]int, stepIndex int, step Transformation) ([]Resource, map[ResourceKey]int, error) {
	content := DeepCopyContent(step.Resource)
	key, err := KeyFromContent(content)
	if err != nil {
		return nil, nil, &CompositionError{Step: stepIndex, Reason: fmt.Sprintf("addResource: %v", err)}
	}

	// Re-adding an existing identity replaces the earlier document, per the
	// last-write-wins contract.
	if position, exists := index[key]; exists {
		resources[position].Content = content
		return resources, index, nil
	}

	index[key] = len(resources)
	resources = append(resources, Resource{Key: key, Content: content})
	return resources, index, nil
}

func removeResource(resources []Resource, index map[ResourceKey]int, stepIndex int, step Transformation) ([]Resource, map[ResourceKey]int, error) {
	position, found := index[*step.Target]
	if !found {
		return nil, nil, &CompositionError{Step: stepIndex, Target: step.Target, Reason: "removeResource target not found"}
	}

	resources = append(resources[:position], resources[position+1:]...)
	index = make(map[ResourceKey]int, len(resources))
	for newPosition, resource := range resources {
		index[resource.Key] = newPosition
	}
	return resources, index, nil
}
