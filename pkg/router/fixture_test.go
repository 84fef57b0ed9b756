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
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	fakekube "k8s.io/client-go/kubernetes/fake"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"
	gatewayapiclientset "sigs.k8s.io/gateway-api/pkg/client/clientset/versioned"
	fakegatewayapi "sigs.k8s.io/gateway-api/pkg/client/clientset/versioned/fake"

	rolloutsv1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
	"github.com/MoeGolibrary/rollouts/pkg/logger"
)

type fixture struct {
	canary           *rolloutsv1.Canary
	abCanary         *rolloutsv1.Canary
	kubeClient       kubernetes.Interface
	gatewayAPIClient gatewayapiclientset.Interface
	logger           *zap.SugaredLogger
}

func newFixture() fixture {
	canary := newTestCanary()

	abCanary := newTestCanary()
	abCanary.Name = "podinfo-ab"
	abCanary.Spec.Analysis.Iterations = 5
	abCanary.Spec.Analysis.Match = []rolloutsv1.CanaryMatch{
		{
			Headers: map[string]string{
				"x-canary": "insider",
			},
		},
	}

	log, _ := logger.NewLogger("debug")

	return fixture{
		canary:           canary,
		abCanary:         abCanary,
		kubeClient:       fakekube.NewSimpleClientset(),
		gatewayAPIClient: fakegatewayapi.NewSimpleClientset(),
		logger:           log,
	}
}

func (f fixture) kubernetesRouter() *KubernetesDefaultRouter {
	return &KubernetesDefaultRouter{
		kubeClient:    f.kubeClient,
		logger:        f.logger,
		labelSelector: "app",
		labelValue:    "podinfo",
	}
}

func (f fixture) gatewayRouter() *GatewayAPIRouter {
	return &GatewayAPIRouter{
		gatewayAPIClient: f.gatewayAPIClient,
		kubeClient:       f.kubeClient,
		logger:           f.logger,
	}
}

func newTestCanary() *rolloutsv1.Canary {
	return &rolloutsv1.Canary{
		TypeMeta: metav1.TypeMeta{APIVersion: rolloutsv1.SchemeGroupVersion.String()},
		ObjectMeta: metav1.ObjectMeta{
			Namespace: "default",
			Name:      "podinfo",
		},
		Spec: rolloutsv1.CanarySpec{
			Provider: rolloutsv1.GatewayAPIProvider,
			TargetRef: rolloutsv1.LocalObjectReference{
				Name:       "podinfo",
				APIVersion: "apps/v1",
				Kind:       "Deployment",
			},
			Service: rolloutsv1.CanaryService{
				Port: 9898,
				GatewayRefs: []gatewayv1.ParentReference{
					{
						Name: "istio-gateway",
					},
				},
			},
			Analysis: &rolloutsv1.CanaryAnalysis{
				Threshold:  10,
				StepWeight: 10,
				MaxWeight:  50,
			},
		},
	}
}
