package adapters

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"gitopsengine/pkg/core"
)

type controllerRuntimeClient struct {
	client client.Client
}

// NewControllerRuntimeClient returns a ClusterClient backed by a
// controller-runtime client.Client operating on unstructured objects.
func NewControllerRuntimeClient(kubeClient client.Client) ClusterClient {
	return &controllerRuntimeClient{client: kubeClient}
}

// Get reads the live document for the desired identity. The returned resource
// carries the owner recorded in the managed annotations, or an empty owner for
// objects this engine never applied.
func (clientAdapter *controllerRuntimeClient) Get(ctx context.Context, destination core.Destination, desired core.Resource) (*core.Resource, bool, error) {
	liveObject := &unstructured.Unstructured{}

	groupVersionKind, err := groupVersionKindFor(desired)
	if err != nil {
		return nil, false, err
	}
	liveObject.SetGroupVersionKind(groupVersionKind)

	objectKey := types.NamespacedName{Namespace: desired.Key.Namespace, Name: desired.Key.Name}
	if err := clientAdapter.client.Get(ctx, objectKey, liveObject); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	liveResource := &core.Resource{
		Key:     desired.Key,
		Content: liveObject.Object,
		Owner:   liveObject.GetAnnotations()[core.OwnerAnnotation],
	}
	return liveResource, true, nil
}

// Apply creates or updates the resource, stamping the managed label and the
// owner, source, and hash annotations used for drift and conflict detection.
func (clientAdapter *controllerRuntimeClient) Apply(ctx context.Context, destination core.Destination, app string, resource core.Resource) error {
	desiredObject := &unstructured.Unstructured{Object: core.DeepCopyContent(resource.Content)}
	desiredObject.SetNamespace(resource.Key.Namespace)
	desiredObject.SetName(resource.Key.Name)

	labels := desiredObject.GetLabels()
	if labels == nil {
		labels = map[string]string{}
	}
	labels[core.ManagedLabel] = "true"
	desiredObject.SetLabels(labels)

	annotations := desiredObject.GetAnnotations()
	if annotations == nil {
		annotations = map[string]string{}
	}
	annotations[core.OwnerAnnotation] = app
	annotations[core.SourceAnnotation] = destination.Cluster
	annotations[core.HashAnnotation] = core.HashContent(resource.Content)
	desiredObject.SetAnnotations(annotations)

	groupVersionKind, err := groupVersionKindFor(resource)
	if err != nil {
		return err
	}

	existingObject := &unstructured.Unstructured{}
	existingObject.SetGroupVersionKind(groupVersionKind)

	objectKey := types.NamespacedName{Namespace: resource.Key.Namespace, Name: resource.Key.Name}
	err = clientAdapter.client.Get(ctx, objectKey, existingObject)
	if err != nil {
		if !apierrors.IsNotFound(err) {
			return err
		}
		return clientAdapter.client.Create(ctx, desiredObject)
	}

	desiredObject.SetResourceVersion(existingObject.GetResourceVersion())
	return clientAdapter.client.Update(ctx, desiredObject)
}

// Delete removes the resource, ignoring not found errors.
func (clientAdapter *controllerRuntimeClient) Delete(ctx context.Context, destination core.Destination, resource core.Resource) error {
	liveObject := &unstructured.Unstructured{}

	groupVersionKind, err := groupVersionKindFor(resource)
	if err != nil {
		return err
	}
	liveObject.SetGroupVersionKind(groupVersionKind)
	liveObject.SetNamespace(resource.Key.Namespace)
	liveObject.SetName(resource.Key.Name)

	return client.IgnoreNotFound(clientAdapter.client.Delete(ctx, liveObject))
}

func groupVersionKindFor(resource core.Resource) (schema.GroupVersionKind, error) {
	apiVersion := resource.APIVersion()
	if apiVersion == "" {
		return schema.GroupVersionKind{}, fmt.Errorf("resource %s has no apiVersion", resource.Key)
	}
	groupVersion, err := schema.ParseGroupVersion(apiVersion)
	if err != nil {
		return schema.GroupVersionKind{}, fmt.Errorf("resource %s: %w", resource.Key, err)
	}
	return groupVersion.WithKind(resource.Key.Kind), nil
}
