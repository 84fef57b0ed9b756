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

package canary

import (
	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"

	clientset "github.com/MoeGolibrary/rollouts/pkg/client/clientset/versioned"
)

// Factory returns the workload controller and scaler reconciler for a canary target
type Factory struct {
	kubeClient    kubernetes.Interface
	rolloutClient clientset.Interface
	logger        *zap.SugaredLogger
	configTracker *ConfigTracker
	labels        []string
}

func NewFactory(kubeClient kubernetes.Interface,
	rolloutClient clientset.Interface,
	configTracker *ConfigTracker,
	labels []string,
	logger *zap.SugaredLogger) *Factory {
	return &Factory{
		kubeClient:    kubeClient,
		rolloutClient: rolloutClient,
		logger:        logger,
		configTracker: configTracker,
		labels:        labels,
	}
}

// Controller returns the workload controller for the given target kind
func (factory *Factory) Controller(kind string) Controller {
	deploymentCtrl := &DeploymentController{
		logger:        factory.logger,
		kubeClient:    factory.kubeClient,
		rolloutClient: factory.rolloutClient,
		labels:        factory.labels,
		configTracker: factory.configTracker,
	}

	switch kind {
	case "Deployment":
		return deploymentCtrl
	default:
		return deploymentCtrl
	}
}

// ScalerReconciler returns the scaler reconciler for the given autoscaler kind
func (factory *Factory) ScalerReconciler(kind string) ScalerReconciler {
	hpaReconciler := &HPAReconciler{
		logger:     factory.logger,
		kubeClient: factory.kubeClient,
	}

	scaledObjectReconciler := &ScaledObjectReconciler{
		logger:        factory.logger,
		kubeClient:    factory.kubeClient,
		rolloutClient: factory.rolloutClient,
	}

	switch kind {
	case "HorizontalPodAutoscaler":
		return hpaReconciler
	case "ScaledObject":
		return scaledObjectReconciler
	default:
		return nil
	}
}
