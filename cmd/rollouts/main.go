/*
Copyright 2020 The Flux authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	semver "github.com/Masterminds/semver/v3"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/transport"
	"k8s.io/klog/v2"
	gatewayapiclientset "sigs.k8s.io/gateway-api/pkg/client/clientset/versioned"

	"github.com/MoeGolibrary/rollouts/pkg/canary"
	clientset "github.com/MoeGolibrary/rollouts/pkg/client/clientset/versioned"
	"github.com/MoeGolibrary/rollouts/pkg/controller"
	"github.com/MoeGolibrary/rollouts/pkg/logger"
	"github.com/MoeGolibrary/rollouts/pkg/metrics"
	"github.com/MoeGolibrary/rollouts/pkg/metrics/observers"
	"github.com/MoeGolibrary/rollouts/pkg/notifier"
	"github.com/MoeGolibrary/rollouts/pkg/router"
	"github.com/MoeGolibrary/rollouts/pkg/server"
	"github.com/MoeGolibrary/rollouts/pkg/signals"
	"github.com/MoeGolibrary/rollouts/pkg/version"
)

const controllerAgentName = "rollouts"

var (
	masterURL           string
	kubeconfig          string
	kubeconfigQPS       int
	kubeconfigBurst     int
	metricsServer       string
	controlLoopInterval time.Duration
	logLevel            string
	port                string
	slackURL            string
	slackProxyURL       string
	slackUser           string
	slackChannel        string
	slackToken          string
	threadiness         int
	zapReplaceGlobals   bool
	zapEncoding         string
	namespace           string
	meshProvider        string
	selectorLabels      string
	ver                 bool
	eventWebhook        string
	clusterName         string
)

func init() {
	flag.StringVar(&masterURL, "master", "", "The address of the Kubernetes API server. Overrides any value in kubeconfig. Only required if out-of-cluster.")
	flag.StringVar(&kubeconfig, "kubeconfig", "", "Path to a kubeconfig. Only required if out-of-cluster.")
	flag.IntVar(&kubeconfigQPS, "kubeconfig-qps", 100, "Set QPS for kubeconfig.")
	flag.IntVar(&kubeconfigBurst, "kubeconfig-burst", 250, "Set Burst for kubeconfig.")
	flag.StringVar(&metricsServer, "metrics-server", "http://prometheus:9090", "Prometheus URL.")
	flag.DurationVar(&controlLoopInterval, "control-loop-interval", 10*time.Second, "Kubernetes API sync interval.")
	flag.StringVar(&logLevel, "log-level", "debug", "Log level can be: debug, info, warning, error.")
	flag.StringVar(&port, "port", "8080", "Port to listen on.")
	flag.StringVar(&slackURL, "slack-url", "", "Slack hook URL.")
	flag.StringVar(&slackProxyURL, "slack-proxy-url", "", "Slack proxy URL.")
	flag.StringVar(&slackUser, "slack-user", "rollouts", "Slack user name.")
	flag.StringVar(&slackChannel, "slack-channel", "", "Slack channel.")
	flag.StringVar(&slackToken, "slack-token", "", "Slack bot token.")
	flag.IntVar(&threadiness, "threadiness", 2, "Worker concurrency.")
	flag.BoolVar(&zapReplaceGlobals, "zap-replace-globals", false, "Whether to change the logging level of the global zap logger.")
	flag.StringVar(&zapEncoding, "zap-encoding", "json", "Zap logger encoding.")
	flag.StringVar(&namespace, "namespace", "", "Namespace that the controller watches, defaults to all namespaces.")
	flag.StringVar(&meshProvider, "mesh-provider", "gatewayapi", "Traffic provider, can be gatewayapi or kubernetes.")
	flag.StringVar(&selectorLabels, "selector-labels", "app,name,app.kubernetes.io/name", "List of pod labels that the controller uses to create pod selectors.")
	flag.BoolVar(&ver, "version", false, "Print version.")
	flag.StringVar(&eventWebhook, "event-webhook", "", "Webhook for publishing canary events.")
	flag.StringVar(&clusterName, "cluster-name", "", "Cluster name to be included in alerts and events.")
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if ver {
		fmt.Println("Version:", version.VERSION)
		os.Exit(0)
	}

	logger, err := logger.NewLoggerWithEncoding(logLevel, zapEncoding)
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	if zapReplaceGlobals {
		zap.ReplaceGlobals(logger.Desugar())
	}

	klog.SetLogger(zapr.NewLogger(logger.Desugar()))

	defer logger.Sync()

	stopCh := signals.SetupSignalHandler()

	cfg, err := clientcmd.BuildConfigFromFlags(masterURL, kubeconfig)
	if err != nil {
		logger.Fatalf("Error building kubeconfig: %v", err)
	}

	cfg.QPS = float32(kubeconfigQPS)
	cfg.Burst = kubeconfigBurst

	kubeClient, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		logger.Fatalf("Error building kubernetes clientset: %v", err)
	}

	rolloutClient, err := clientset.NewForConfig(cfg)
	if err != nil {
		logger.Fatalf("Error building rollouts clientset: %v", err)
	}

	meshClient, err := gatewayapiclientset.NewForConfig(cfg)
	if err != nil {
		logger.Fatalf("Error building gateway-api clientset: %v", err)
	}

	verifyCRDs(rolloutClient, logger)
	verifyKubernetesVersion(kubeClient, logger)

	labels := strings.Split(selectorLabels, ",")
	if len(labels) < 1 {
		logger.Fatalf("At least one selector label is required")
	}

	if namespace != "" {
		logger.Infof("Watching namespace %s", namespace)
	}

	canaryInformer := controller.NewCanaryInformer(rolloutClient, namespace, time.Second*30)
	go canaryInformer.Run(stopCh)
	if ok := cache.WaitForNamedCacheSync("rollouts", stopCh, canaryInformer.HasSynced); !ok {
		logger.Fatalf("failed to wait for cache to sync")
	}

	observerFactory, err := observers.NewFactory(metricsServer)
	if err != nil {
		logger.Fatalf("Error building prometheus client: %v", err)
	}

	ok, err := observerFactory.Client.IsOnline()
	if ok && err == nil {
		logger.Infof("Connected to metrics server %s", metricsServer)
	} else {
		logger.Errorf("Metrics server %s unreachable %v", metricsServer, err)
	}

	// setup Slack or Discord notifications
	notifierClient := initNotifier(logger)

	// start HTTP server
	go server.ListenAndServe(port, 3*time.Second, logger, stopCh)

	configTracker := &canary.ConfigTracker{
		Logger:        logger,
		KubeClient:    kubeClient,
		RolloutClient: rolloutClient,
	}

	canaryFactory := canary.NewFactory(kubeClient, rolloutClient, configTracker, labels, logger)
	routerFactory := router.NewFactory(kubeClient, meshClient, logger)

	c := controller.NewController(
		cfg,
		kubeClient,
		rolloutClient,
		canaryInformer,
		controlLoopInterval,
		logger,
		notifierClient,
		canaryFactory,
		routerFactory,
		observerFactory,
		metrics.NewRecorder(controllerAgentName, true),
		version.VERSION,
		meshProvider,
		fromEnv("EVENT_WEBHOOK_URL", eventWebhook),
		clusterName,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// prevents new API requests once shutdown starts
	cfg.Wrap(transport.ContextCanceller(ctx, fmt.Errorf("the controller is shutting down")))

	go func() {
		<-stopCh
		cancel()
	}()

	if err := c.Run(threadiness, stopCh); err != nil {
		logger.Fatalf("Error running controller: %v", err)
	}
}

func initNotifier(logger *zap.SugaredLogger) (client notifier.Interface) {
	provider := "slack"
	notifierURL := fromEnv("SLACK_URL", slackURL)
	notifierToken := fromEnv("SLACK_TOKEN", slackToken)
	if strings.Contains(notifierURL, "discord") {
		provider = "discord"
	}
	if strings.Contains(notifierURL, "rocket") {
		provider = "rocket"
	}
	notifierFactory := notifier.NewFactory(notifierURL, notifierToken, slackProxyURL, slackUser, slackChannel)

	var err error
	client, err = notifierFactory.Notifier(provider)
	if err != nil {
		logger.Errorf("Notifier %v", err)
	} else if len(notifierURL) > 30 {
		logger.Infof("Notifications enabled for %s", notifierURL[0:30])
	}
	return
}

func fromEnv(envVar string, defaultVal string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return defaultVal
}

func verifyCRDs(rolloutClient clientset.Interface, logger *zap.SugaredLogger) {
	_, err := rolloutClient.RolloutsV1beta1().Canaries(namespace).List(context.TODO(), metav1.ListOptions{Limit: 1})
	if err != nil {
		logger.Fatalf("Canary CRD is not registered %v", err)
	}
}

func verifyKubernetesVersion(kubeClient kubernetes.Interface, logger *zap.SugaredLogger) {
	ver, err := kubeClient.Discovery().ServerVersion()
	if err != nil {
		logger.Fatalf("Error calling Kubernetes API: %v", err)
	}

	k8sVersionConstraint := "^1.22.0"

	// -alpha.1 is appended so that prebuilds and managed offerings with
	// suffixed versions like `v1.22.6-eks-7d68063` satisfy the constraint
	semverConstraint, err := semver.NewConstraint(k8sVersionConstraint + "-alpha.1")
	if err != nil {
		logger.Fatalf("Error parsing kubernetes version constraint: %v", err)
	}

	k8sSemver, err := semver.NewVersion(ver.GitVersion)
	if err != nil {
		logger.Fatalf("Error parsing kubernetes version as a semantic version: %v", err)
	}

	if !semverConstraint.Check(k8sSemver) {
		logger.Fatalf("Unsupported version of kubernetes detected. Expected %s, got %v", k8sVersionConstraint, ver)
	}

	logger.Infof("Connected to Kubernetes API %s", ver)
}
