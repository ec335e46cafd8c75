package core

import (
	"fmt"
	"os"
	"strconv"
)

// ValidateApplication enforces basic guardrails that match the CRD schema.
func ValidateApplication(app *Application) error {
	if app == nil {
		return fmt.Errorf("application is required")
	}

	if app.Name == "" {
		return fmt.Errorf("name is required")
	}

	if app.Spec.Source.RepoURL == "" || app.Spec.Source.Revision == "" {
		return fmt.Errorf("source.repoURL and source.revision are required")
	}

	if app.Spec.Destination.Namespace == "" {
		return fmt.Errorf("destination.namespace is required")
	}

	for index, step := range app.Spec.Overlay {
		if err := validateTransformation(index, step); err != nil {
			return err
		}
	}

	if app.Spec.ResyncPeriodSeconds != nil && *app.Spec.ResyncPeriodSeconds < 10 {
		return fmt.Errorf("resyncPeriodSeconds must be >= 10")
	}

	return nil
}

func validateTransformation(index int, step Transformation) error {
	switch step.Type {
	case TransformSetNamespace:
		if step.Namespace == "" {
			return fmt.Errorf("overlay[%d]: setNamespace requires namespace", index)
		}
	case TransformSetLabel, TransformSetAnnotation:
		if step.Key == "" {
			return fmt.Errorf("overlay[%d]: %s requires key", index, step.Type)
		}
	case TransformPatch:
		if step.Target == nil || step.Target.Kind == "" || step.Target.Name == "" {
			return fmt.Errorf("overlay[%d]: patch requires target kind and name", index)
		}
		if len(step.Patch) == 0 {
			return fmt.Errorf("overlay[%d]: patch requires a patch document", index)
		}
	case TransformAddResource:
		if len(step.Resource) == 0 {
			return fmt.Errorf("overlay[%d]: addResource requires a resource document", index)
		}
	case TransformRemoveResource:
		if step.Target == nil || step.Target.Kind == "" || step.Target.Name == "" {
			return fmt.Errorf("overlay[%d]: removeResource requires target kind and name", index)
		}
	default:
		return fmt.Errorf("overlay[%d]: unknown transformation type %q", index, step.Type)
	}
	return nil
}

// DefaultApplication applies safe defaults consistent with CRD defaults.
// With no sync policy the Application is manual: diffs are recorded, nothing
// is written to the cluster.
func DefaultApplication(app *Application) {
	if app.Spec.SyncPolicy == nil {
		app.Spec.SyncPolicy = &SyncPolicy{}
	}

	if app.Spec.Destination.Cluster == "" {
		app.Spec.Destination.Cluster = "in-cluster"
	}

	if app.Spec.ResyncPeriodSeconds == nil {
		defaultValue := defaultResyncSeconds()
		app.Spec.ResyncPeriodSeconds = &defaultValue
	}
}

// defaultResyncSeconds determines the per-application resync period from
// environment defaults.
func defaultResyncSeconds() int32 {
	if environmentValue := os.Getenv("RESYNC_PERIOD_SECONDS"); environmentValue != "" {
		if parsed, err := strconv.Atoi(environmentValue); err == nil && parsed >= 10 {
			return int32(parsed)
		}
	}

	return 180
}
