package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"
	crwebhook "sigs.k8s.io/controller-runtime/pkg/webhook"

	"gitopsengine/pkg/adapters"
	gitopsv1alpha1 "gitopsengine/pkg/api/v1alpha1"
	"gitopsengine/pkg/controllers/application"
)

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")
)

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(gitopsv1alpha1.AddToScheme(scheme))
}

func main() {
	var metricsAddr string
	var probeAddr string
	var enableLeaderElection bool
	var webhookPort int
	var manifestRoot string
	var workers int
	var resyncPeriod time.Duration
	var driftScanPeriod time.Duration
	enableWebhooks := defaultEnableWebhooks()

	flag.StringVar(&metricsAddr, "metrics-bind-address", ":8080", "The address the metric endpoint binds to.")
	flag.StringVar(&probeAddr, "health-probe-bind-address", ":8081", "The address the health probe endpoint binds to.")
	flag.BoolVar(&enableLeaderElection, "leader-elect", false, "Enable leader election for controller manager. Enabling this will ensure there is only one active controller manager.")
	flag.IntVar(&webhookPort, "webhook-port", 9443, "Webhook server port.")
	flag.BoolVar(&enableWebhooks, "enable-webhooks", enableWebhooks, "Enable Kubernetes admission webhooks.")
	flag.StringVar(&manifestRoot, "manifest-root", "/var/lib/gitopsengine/repos", "Root directory holding repository checkouts, laid out as <repo>/<revision>/<path>.")
	flag.IntVar(&workers, "sync-workers", 4, "Size of the reconciliation worker pool.")
	flag.DurationVar(&resyncPeriod, "resync-period", 3*time.Minute, "Interval between full application graph re-resolutions.")
	flag.DurationVar(&driftScanPeriod, "drift-scan-period", 30*time.Second, "Interval between live-state drift probes of self-healing applications.")
	opts := zap.Options{Development: true}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme: scheme,
		Metrics: metricsserver.Options{
			BindAddress: metricsAddr,
		},
		HealthProbeBindAddress: probeAddr,
		LeaderElection:         enableLeaderElection,
		LeaderElectionID:       "gitopsengine-controller",
		WebhookServer:          crwebhook.NewServer(crwebhook.Options{Port: webhookPort}),
	})
	if err != nil {
		setupLog.Error(err, "unable to start manager")
		os.Exit(1)
	}

	manifestSource := adapters.NewFilesystemSource(manifestRoot)
	clusterClient := adapters.NewControllerRuntimeClient(mgr.GetClient())
	metricsRecorder := adapters.NewPrometheusMetricsRecorder()

	reconciler := application.NewReconciler(manifestSource, clusterClient, metricsRecorder, ctrl.Log.WithName("reconciler"))
	engine := application.NewEngine(reconciler, application.NewStateStore(), application.Options{
		Workers:   workers,
		Resync:    resyncPeriod,
		DriftScan: driftScanPeriod,
		Logger:    ctrl.Log.WithName("engine"),
		Metrics:   metricsRecorder,
	})

	if err := mgr.Add(engine); err != nil {
		setupLog.Error(err, "unable to add reconciliation loop")
		os.Exit(1)
	}

	sourceWatcher, err := adapters.NewSourceWatcher(manifestRoot, engine.Refresh, ctrl.Log.WithName("source-watch"))
	if err != nil {
		setupLog.Error(err, "unable to watch manifest root", "root", manifestRoot)
	} else if err := mgr.Add(sourceWatcher); err != nil {
		setupLog.Error(err, "unable to add source watcher")
		os.Exit(1)
	}

	if err := application.SetupWithManager(mgr, engine); err != nil {
		setupLog.Error(err, "unable to create controller", "controller", "Application")
		os.Exit(1)
	}

	if enableWebhooks {
		if err := (&gitopsv1alpha1.Application{}).SetupWebhookWithManager(mgr); err != nil {
			setupLog.Error(err, "unable to create webhook", "webhook", "Application")
			os.Exit(1)
		}
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up health check")
		os.Exit(1)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up ready check")
		os.Exit(1)
	}

	setupLog.Info("starting manager")
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		setupLog.Error(err, "problem running manager")
		os.Exit(1)
	}
}

func defaultEnableWebhooks() bool {
	env := os.Getenv("ENABLE_WEBHOOKS")
	if env == "" {
		return true
	}
	parsed, err := strconv.ParseBool(env)
	if err != nil {
		setupLog.Error(fmt.Errorf("invalid ENABLE_WEBHOOKS value: %w", err), "defaulting webhooks to enabled")
		return true
	}
	return parsed
}
