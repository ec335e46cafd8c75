package v1alpha1

import (
	"k8s.io/apimachinery/pkg/runtime"

	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/webhook"
	"sigs.k8s.io/controller-runtime/pkg/webhook/admission"

	"gitopsengine/pkg/core"
)

var _ webhook.Defaulter = &Application{}
var _ webhook.Validator = &Application{}
var _ runtime.Object = &Application{}
var _ runtime.Object = &ApplicationList{}

// Default implements webhook.Defaulter.
func (application *Application) Default() {
	coreApp := core.Application{Name: application.Name, Spec: application.Spec}
	core.DefaultApplication(&coreApp)
	application.Spec = coreApp.Spec
}

// SetupWebhookWithManager registers the webhook with the provided manager.
func (application *Application) SetupWebhookWithManager(manager ctrl.Manager) error {
	return ctrl.NewWebhookManagedBy(manager).
		For(application).
		Complete()
}

// ValidateCreate implements webhook.Validator.
func (application *Application) ValidateCreate() (admission.Warnings, error) {
	coreApp := core.Application{Name: application.Name, Spec: application.Spec}
	if err := core.ValidateApplication(&coreApp); err != nil {
		return nil, err
	}

	return nil, nil
}

// ValidateUpdate implements webhook.Validator.
func (application *Application) ValidateUpdate(runtime.Object) (admission.Warnings, error) {
	coreApp := core.Application{Name: application.Name, Spec: application.Spec}
	if err := core.ValidateApplication(&coreApp); err != nil {
		return nil, err
	}

	return nil, nil
}

// ValidateDelete implements webhook.Validator.
func (application *Application) ValidateDelete() (admission.Warnings, error) {
	return nil, nil
}
