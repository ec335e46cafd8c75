package v1alpha1

import (
	"k8s.io/apimachinery/pkg/runtime"

	"gitopsengine/pkg/core"
)

// DeepCopyInto copies the receiver into out.
func (application *Application) DeepCopyInto(out *Application) {
	if application == nil || out == nil {
		return
	}
	*out = *application
	application.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	out.Spec = *deepCopySpec(&application.Spec)
	out.Status = *deepCopyStatus(&application.Status)
}

// DeepCopy creates a new deep copy of the receiver.
func (application *Application) DeepCopy() *Application {
	if application == nil {
		return nil
	}
	out := new(Application)
	application.DeepCopyInto(out)
	return out
}

// DeepCopyObject implements runtime.Object.
func (application *Application) DeepCopyObject() runtime.Object {
	if copied := application.DeepCopy(); copied != nil {
		return copied
	}
	return nil
}

// DeepCopyInto copies the receiver into out.
func (applicationList *ApplicationList) DeepCopyInto(out *ApplicationList) {
	if applicationList == nil || out == nil {
		return
	}
	*out = *applicationList
	applicationList.ListMeta.DeepCopyInto(&out.ListMeta)
	if applicationList.Items != nil {
		out.Items = make([]Application, len(applicationList.Items))
		for index := range applicationList.Items {
			applicationList.Items[index].DeepCopyInto(&out.Items[index])
		}
	}
}

// DeepCopy creates a new deep copy of the receiver.
func (applicationList *ApplicationList) DeepCopy() *ApplicationList {
	if applicationList == nil {
		return nil
	}
	out := new(ApplicationList)
	applicationList.DeepCopyInto(out)
	return out
}

// DeepCopyObject implements runtime.Object.
func (applicationList *ApplicationList) DeepCopyObject() runtime.Object {
	if copied := applicationList.DeepCopy(); copied != nil {
		return copied
	}
	return nil
}

func deepCopySpec(spec *core.ApplicationSpec) *core.ApplicationSpec {
	if spec == nil {
		return nil
	}
	out := *spec

	if spec.SyncPolicy != nil {
		policy := *spec.SyncPolicy
		out.SyncPolicy = &policy
	}
	if spec.ResyncPeriodSeconds != nil {
		seconds := *spec.ResyncPeriodSeconds
		out.ResyncPeriodSeconds = &seconds
	}
	if spec.Overlay != nil {
		out.Overlay = make([]core.Transformation, len(spec.Overlay))
		for index, step := range spec.Overlay {
			copied := step
			if step.Target != nil {
				target := *step.Target
				copied.Target = &target
			}
			copied.Patch = core.DeepCopyContent(step.Patch)
			copied.Resource = core.DeepCopyContent(step.Resource)
			out.Overlay[index] = copied
		}
	}
	return &out
}

func deepCopyStatus(status *core.ApplicationStatus) *core.ApplicationStatus {
	if status == nil {
		return nil
	}
	out := *status
	out.Conditions = append([]core.Condition(nil), status.Conditions...)
	out.Resources = append([]core.ResourceStatus(nil), status.Resources...)
	return &out
}
