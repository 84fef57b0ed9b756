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

package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	kubescheme "k8s.io/client-go/kubernetes/scheme"
	typedcorev1 "k8s.io/client-go/kubernetes/typed/core/v1"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/cache"
	"k8s.io/client-go/tools/record"
	"k8s.io/client-go/util/workqueue"

	rolloutsv1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
	"github.com/MoeGolibrary/rollouts/pkg/canary"
	clientset "github.com/MoeGolibrary/rollouts/pkg/client/clientset/versioned"
	"github.com/MoeGolibrary/rollouts/pkg/metrics"
	"github.com/MoeGolibrary/rollouts/pkg/metrics/observers"
	"github.com/MoeGolibrary/rollouts/pkg/notifier"
	"github.com/MoeGolibrary/rollouts/pkg/router"
)

const controllerAgentName = "rollouts"

// Controller watches Canary objects, keeps an in-memory registry of them
// and schedules a rollout job per canary
type Controller struct {
	kubeConfig       *rest.Config
	kubeClient       kubernetes.Interface
	rolloutClient    clientset.Interface
	canaryInformer   cache.SharedIndexInformer
	canariesSynced   cache.InformerSynced
	workqueue        workqueue.RateLimitingInterface
	eventRecorder    record.EventRecorder
	logger           *zap.SugaredLogger
	canaries         *sync.Map
	jobs             map[string]CanaryJob
	canaryFactory    *canary.Factory
	routerFactory    *router.Factory
	observerFactory  *observers.Factory
	weightCalculator *router.HeaderRangeCalculator
	recorder         metrics.Recorder
	notifier         notifier.Interface
	frequency        time.Duration
	meshProvider     string
	eventWebhook     string
	clusterName      string
}

// NewCanaryInformer watches Canary objects in the given namespace,
// an empty namespace means all namespaces
func NewCanaryInformer(client clientset.Interface, namespace string, resync time.Duration) cache.SharedIndexInformer {
	return cache.NewSharedIndexInformer(
		&cache.ListWatch{
			ListFunc: func(opts metav1.ListOptions) (runtime.Object, error) {
				return client.RolloutsV1beta1().Canaries(namespace).List(context.TODO(), opts)
			},
			WatchFunc: func(opts metav1.ListOptions) (watch.Interface, error) {
				return client.RolloutsV1beta1().Canaries(namespace).Watch(context.TODO(), opts)
			},
		},
		&rolloutsv1.Canary{},
		resync,
		cache.Indexers{cache.NamespaceIndex: cache.MetaNamespaceIndexFunc},
	)
}

func NewController(
	kubeConfig *rest.Config,
	kubeClient kubernetes.Interface,
	rolloutClient clientset.Interface,
	canaryInformer cache.SharedIndexInformer,
	frequency time.Duration,
	logger *zap.SugaredLogger,
	notifier notifier.Interface,
	canaryFactory *canary.Factory,
	routerFactory *router.Factory,
	observerFactory *observers.Factory,
	recorder metrics.Recorder,
	version string,
	meshProvider string,
	eventWebhook string,
	clusterName string,
) *Controller {
	logger.Debug("Creating event broadcaster")
	utilruntime.Must(rolloutsv1.AddToScheme(kubescheme.Scheme))
	eventBroadcaster := record.NewBroadcaster()
	eventBroadcaster.StartRecordingToSink(&typedcorev1.EventSinkImpl{
		Interface: kubeClient.CoreV1().Events(""),
	})
	eventRecorder := eventBroadcaster.NewRecorder(
		kubescheme.Scheme, corev1.EventSource{Component: controllerAgentName})

	recorder.SetInfo(version, meshProvider)

	ctrl := &Controller{
		kubeConfig:       kubeConfig,
		kubeClient:       kubeClient,
		rolloutClient:    rolloutClient,
		canaryInformer:   canaryInformer,
		canariesSynced:   canaryInformer.HasSynced,
		workqueue:        workqueue.NewNamedRateLimitingQueue(workqueue.DefaultControllerRateLimiter(), controllerAgentName),
		eventRecorder:    eventRecorder,
		logger:           logger,
		canaries:         new(sync.Map),
		jobs:             map[string]CanaryJob{},
		canaryFactory:    canaryFactory,
		routerFactory:    routerFactory,
		observerFactory:  observerFactory,
		weightCalculator: router.NewHeaderRangeCalculator(),
		recorder:         recorder,
		notifier:         notifier,
		frequency:        frequency,
		meshProvider:     meshProvider,
		eventWebhook:     eventWebhook,
		clusterName:      clusterName,
	}

	canaryInformer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc: ctrl.enqueue,
		UpdateFunc: func(old, new interface{}) {
			oldCanary, ok := checkCustomResourceType(old, logger)
			if !ok {
				return
			}
			newCanary, ok := checkCustomResourceType(new, logger)
			if !ok {
				return
			}
			if oldCanary.ResourceVersion == newCanary.ResourceVersion {
				return
			}
			ctrl.enqueue(new)
		},
		DeleteFunc: func(old interface{}) {
			r, ok := checkCustomResourceType(old, logger)
			if !ok {
				return
			}
			ctrl.logger.Infof("Deleting %s.%s from the registry", r.Name, r.Namespace)
			ctrl.canaries.Delete(fmt.Sprintf("%s.%s", r.Name, r.Namespace))
		},
	})

	return ctrl
}

// Run starts the workqueue workers and the rollout job scheduler,
// it blocks until the stop channel is closed
func (c *Controller) Run(threadiness int, stopCh <-chan struct{}) error {
	defer utilruntime.HandleCrash()
	defer c.workqueue.ShutDown()

	c.logger.Info("Starting operator")

	if ok := cache.WaitForCacheSync(stopCh, c.canariesSynced); !ok {
		return fmt.Errorf("failed to wait for caches to sync")
	}

	for i := 0; i < threadiness; i++ {
		go wait.Until(c.runWorker, time.Second, stopCh)
	}

	c.logger.Info("Started operator workers")

	tickChan := time.NewTicker(c.frequency).C
	for {
		select {
		case <-tickChan:
			c.scheduleCanaries()
		case <-stopCh:
			c.logger.Info("Shutting down operator workers")
			return nil
		}
	}
}

func (c *Controller) runWorker() {
	for c.processNextWorkItem() {
	}
}

func (c *Controller) processNextWorkItem() bool {
	obj, shutdown := c.workqueue.Get()
	if shutdown {
		return false
	}

	err := func(obj interface{}) error {
		defer c.workqueue.Done(obj)
		var key string
		var ok bool
		if key, ok = obj.(string); !ok {
			c.workqueue.Forget(obj)
			utilruntime.HandleError(fmt.Errorf("expected string in workqueue but got %#v", obj))
			return nil
		}
		if err := c.syncHandler(key); err != nil {
			return fmt.Errorf("error syncing '%s': %w", key, err)
		}
		c.workqueue.Forget(obj)
		return nil
	}(obj)

	if err != nil {
		utilruntime.HandleError(err)
		return true
	}

	return true
}

// syncHandler registers the canary in the in-memory map that the scheduler
// iterates over, and drives the revert-on-deletion finalization
func (c *Controller) syncHandler(key string) error {
	namespace, name, err := cache.SplitMetaNamespaceKey(key)
	if err != nil {
		utilruntime.HandleError(fmt.Errorf("invalid resource key: %s", key))
		return nil
	}

	cd, err := c.rolloutClient.RolloutsV1beta1().Canaries(namespace).Get(context.TODO(), name, metav1.GetOptions{})
	if errors.IsNotFound(err) {
		utilruntime.HandleError(fmt.Errorf("canary %s in work queue no longer exists", key))
		return nil
	} else if err != nil {
		return err
	}

	if cd.Spec.RevertOnDeletion && cd.ObjectMeta.DeletionTimestamp == nil && !hasFinalizer(cd) {
		if err := c.addFinalizer(cd); err != nil {
			return fmt.Errorf("unable to add finalizer to canary %s.%s: %w", cd.Name, cd.Namespace, err)
		}
	}

	if cd.ObjectMeta.DeletionTimestamp != nil {
		if hasFinalizer(cd) {
			if err := c.finalize(cd); err != nil {
				return fmt.Errorf("unable to finalize canary %s.%s: %w", cd.Name, cd.Namespace, err)
			}
			if err := c.removeFinalizer(cd); err != nil {
				return fmt.Errorf("unable to remove finalizer from canary %s.%s: %w", cd.Name, cd.Namespace, err)
			}
		}
		c.canaries.Delete(fmt.Sprintf("%s.%s", cd.Name, cd.Namespace))
		c.logger.Infof("Terminated %s.%s", cd.Name, cd.Namespace)
		return nil
	}

	// drop the finalizer when revertOnDeletion is turned off
	if !cd.Spec.RevertOnDeletion && hasFinalizer(cd) {
		if err := c.removeFinalizer(cd); err != nil {
			return fmt.Errorf("unable to remove finalizer from canary %s.%s: %w", cd.Name, cd.Namespace, err)
		}
	}

	c.canaries.Store(fmt.Sprintf("%s.%s", cd.Name, cd.Namespace), cd)
	c.logger.Infof("Synced %s", key)
	return nil
}

func (c *Controller) enqueue(obj interface{}) {
	key, err := cache.MetaNamespaceKeyFunc(obj)
	if err != nil {
		utilruntime.HandleError(err)
		return
	}
	c.workqueue.AddRateLimited(key)
}

func checkCustomResourceType(obj interface{}, logger *zap.SugaredLogger) (rolloutsv1.Canary, bool) {
	var roll *rolloutsv1.Canary
	var ok bool
	if roll, ok = obj.(*rolloutsv1.Canary); !ok {
		logger.Errorf("Event watch received an invalid object: %#v", obj)
		return rolloutsv1.Canary{}, false
	}
	return *roll, true
}
