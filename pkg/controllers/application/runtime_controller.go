package application

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	"gitopsengine/pkg/adapters"
	gitopsv1alpha1 "gitopsengine/pkg/api/v1alpha1"
	"gitopsengine/pkg/core"
)

// statusRefreshInterval re-reads the engine's published state into the API
// object while the loop converges in the background.
const statusRefreshInterval = 15 * time.Second

// ApplicationController bridges Application API objects and the engine: each
// object registers a root of the application graph, and its status mirrors
// the engine's last committed snapshot.
type ApplicationController struct {
	client.Client
	logger       logr.Logger
	engine       *Engine
	eventEmitter *adapters.EventEmitter
}

var _ reconcile.Reconciler = &ApplicationController{}

// NewController constructs an ApplicationController wired with the manager's
// client and event recorder.
func NewController(manager ctrl.Manager, engine *Engine) *ApplicationController {
	return &ApplicationController{
		Client:       manager.GetClient(),
		logger:       ctrl.Log.WithName("controllers").WithName("Application"),
		engine:       engine,
		eventEmitter: adapters.NewEventEmitter(manager.GetEventRecorderFor("gitopsengine")),
	}
}

// Reconcile registers the root with the engine and reflects the last
// committed sync state back onto the API object.
func (applicationController *ApplicationController) Reconcile(requestContext context.Context, reconcileRequest ctrl.Request) (ctrl.Result, error) {
	requestLogger := applicationController.logger.WithValues("application", reconcileRequest.NamespacedName)

	var application gitopsv1alpha1.Application

	if err := applicationController.Get(requestContext, reconcileRequest.NamespacedName, &application); err != nil {
		if apierrors.IsNotFound(err) {
			return ctrl.Result{}, nil
		}

		return ctrl.Result{}, err
	}

	if !application.ObjectMeta.DeletionTimestamp.IsZero() {
		if controllerutil.ContainsFinalizer(&application, core.Finalizer) {
			if err := applicationController.engine.RemoveRoot(requestContext, application.Name); err != nil {
				return ctrl.Result{}, err
			}

			controllerutil.RemoveFinalizer(&application, core.Finalizer)

			if err := applicationController.Update(requestContext, &application); err != nil {
				return ctrl.Result{}, err
			}
		}

		return ctrl.Result{}, nil
	}

	if !controllerutil.ContainsFinalizer(&application, core.Finalizer) {
		controllerutil.AddFinalizer(&application, core.Finalizer)

		if err := applicationController.Update(requestContext, &application); err != nil {
			return ctrl.Result{}, err
		}
	}

	rootApplication := application.ToCore()
	core.DefaultApplication(&rootApplication)
	if err := core.ValidateApplication(&rootApplication); err != nil {
		requestLogger.Error(err, "invalid application declaration")
		applicationController.eventEmitter.EmitError(&application, err)

		return ctrl.Result{}, err
	}

	applicationController.engine.SetRoot(rootApplication)

	state, committed := applicationController.engine.State(application.Name)

	statusPatch := client.MergeFrom(application.DeepCopy())
	application.ApplySyncState(state)

	if err := applicationController.Status().Patch(requestContext, &application, statusPatch); err != nil {
		if apierrors.IsConflict(err) {
			return ctrl.Result{Requeue: true}, nil
		}

		return ctrl.Result{}, err
	}

	if committed {
		applicationController.eventEmitter.EmitState(&application, state)
	}

	// The loop converges asynchronously; poll its snapshot back into status.
	return ctrl.Result{RequeueAfter: statusRefreshInterval}, nil
}

// SetupWithManager registers the controller with the provided manager.
func SetupWithManager(manager ctrl.Manager, engine *Engine) error {
	applicationController := NewController(manager, engine)
	return ctrl.NewControllerManagedBy(manager).
		WithOptions(controller.Options{MaxConcurrentReconciles: 1}).
		For(&gitopsv1alpha1.Application{}).
		Complete(applicationController)
}
