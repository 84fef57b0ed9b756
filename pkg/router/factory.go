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

package router

import (
	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
	gatewayapiclientset "sigs.k8s.io/gateway-api/pkg/client/clientset/versioned"

	rolloutsv1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
)

// Factory returns the routers used by the canary scheduler
type Factory struct {
	kubeClient       kubernetes.Interface
	gatewayAPIClient gatewayapiclientset.Interface
	logger           *zap.SugaredLogger
}

func NewFactory(kubeClient kubernetes.Interface,
	gatewayAPIClient gatewayapiclientset.Interface,
	logger *zap.SugaredLogger) *Factory {
	return &Factory{
		kubeClient:       kubeClient,
		gatewayAPIClient: gatewayAPIClient,
		logger:           logger,
	}
}

// KubernetesRouter returns the ClusterIP service router
func (factory *Factory) KubernetesRouter(labelSelector string, labelValue string, ports map[string]int32) KubernetesRouter {
	return &KubernetesDefaultRouter{
		logger:        factory.logger,
		kubeClient:    factory.kubeClient,
		labelSelector: labelSelector,
		labelValue:    labelValue,
		ports:         ports,
	}
}

// MeshRouter returns the traffic router for the given provider
func (factory *Factory) MeshRouter(provider string) Interface {
	switch provider {
	case rolloutsv1.GatewayAPIProvider:
		return &GatewayAPIRouter{
			logger:           factory.logger,
			kubeClient:       factory.kubeClient,
			gatewayAPIClient: factory.gatewayAPIClient,
		}
	default:
		return &NopRouter{}
	}
}
