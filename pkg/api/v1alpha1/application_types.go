package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"gitopsengine/pkg/core"
)

// ApplicationSpec defines the desired state of an Application.
type ApplicationSpec = core.ApplicationSpec

// ApplicationStatus defines observed state.
type ApplicationStatus = core.ApplicationStatus

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Namespaced,shortName=app
// +kubebuilder:printcolumn:name="Sync",type="string",JSONPath=".status.sync"
// +kubebuilder:printcolumn:name="Resources",type="integer",JSONPath=".status.resourceCount"
// +kubebuilder:printcolumn:name="Synced",type="integer",JSONPath=".status.syncedCount"
// +kubebuilder:printcolumn:name="Age",type="date",JSONPath=".metadata.creationTimestamp"

// Application is the Schema for the API. Each API object registers a root of
// the application graph; children declared in manifests need no API object of
// their own.
type Application struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ApplicationSpec   `json:"spec,omitempty"`
	Status ApplicationStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// ApplicationList contains a list of Application.
type ApplicationList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Application `json:"items"`
}

// ToCore converts the API object into the engine's graph node representation.
func (application *Application) ToCore() core.Application {
	return core.Application{Name: application.Name, Spec: *deepCopySpec(&application.Spec)}
}

func init() {
	SchemeBuilder.Register(&Application{}, &ApplicationList{})
}
