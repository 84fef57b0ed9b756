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
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	appsv1 "k8s.io/api/apps/v1"
	hpav2 "k8s.io/api/autoscaling/v2"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	fakekube "k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/tools/record"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"
	gatewayapiclientset "sigs.k8s.io/gateway-api/pkg/client/clientset/versioned"
	fakegatewayapi "sigs.k8s.io/gateway-api/pkg/client/clientset/versioned/fake"

	rolloutsv1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
	"github.com/MoeGolibrary/rollouts/pkg/canary"
	clientset "github.com/MoeGolibrary/rollouts/pkg/client/clientset/versioned"
	fakerollouts "github.com/MoeGolibrary/rollouts/pkg/client/clientset/versioned/fake"
	"github.com/MoeGolibrary/rollouts/pkg/logger"
	"github.com/MoeGolibrary/rollouts/pkg/metrics"
	"github.com/MoeGolibrary/rollouts/pkg/metrics/observers"
	"github.com/MoeGolibrary/rollouts/pkg/notifier"
	"github.com/MoeGolibrary/rollouts/pkg/router"
)

// testMetricsServerURL points at the mock Prometheus started in TestMain
var testMetricsServerURL string

type deploymentFixture struct {
	canary        *rolloutsv1.Canary
	kubeClient    kubernetes.Interface
	meshClient    gatewayapiclientset.Interface
	rolloutClient clientset.Interface
	ctrl          *Controller
	deployer      canary.Controller
	router        router.Interface
	logger        *zap.SugaredLogger
}

func newDeploymentFixture(cd *rolloutsv1.Canary) deploymentFixture {
	if cd == nil {
		cd = newDeploymentTestCanary()
	}

	kubeClient := fakekube.NewSimpleClientset(
		newDeploymentTestDeployment(),
		newDeploymentTestHPA(),
		newDeploymentTestConfigMap(),
		newDeploymentTestSecret(),
	)
	rolloutClient := fakerollouts.NewSimpleClientset(cd)
	meshClient := fakegatewayapi.NewSimpleClientset()

	log, _ := logger.NewLogger("debug")

	configTracker := &canary.ConfigTracker{
		KubeClient:    kubeClient,
		RolloutClient: rolloutClient,
		Logger:        log,
	}
	canaryFactory := canary.NewFactory(kubeClient, rolloutClient, configTracker, []string{"app", "name"}, log)
	routerFactory := router.NewFactory(kubeClient, meshClient, log)

	observerFactory, err := observers.NewFactory(testMetricsServerURL)
	if err != nil {
		panic(err)
	}

	ctrl := &Controller{
		kubeClient:       kubeClient,
		rolloutClient:    rolloutClient,
		eventRecorder:    &record.FakeRecorder{},
		logger:           log,
		canaries:         new(sync.Map),
		jobs:             map[string]CanaryJob{},
		canaryFactory:    canaryFactory,
		routerFactory:    routerFactory,
		observerFactory:  observerFactory,
		weightCalculator: router.NewHeaderRangeCalculator(),
		recorder:         metrics.NewRecorder(controllerAgentName, false),
		notifier:         &notifier.NopNotifier{},
		meshProvider:     rolloutsv1.GatewayAPIProvider,
	}
	ctrl.canaries.Store(fmt.Sprintf("%s.%s", cd.Name, cd.Namespace), cd)

	return deploymentFixture{
		canary:        cd,
		kubeClient:    kubeClient,
		meshClient:    meshClient,
		rolloutClient: rolloutClient,
		ctrl:          ctrl,
		deployer:      canaryFactory.Controller(cd.Spec.TargetRef.Kind),
		router:        routerFactory.MeshRouter(rolloutsv1.GatewayAPIProvider),
		logger:        log,
	}
}

// makeDeploymentReady fills in the status fields the deployment
// readiness checks look at
func (d deploymentFixture) makeDeploymentReady(t *testing.T, name string) {
	dep, err := d.kubeClient.AppsV1().Deployments("default").Get(context.TODO(), name, metav1.GetOptions{})
	require.NoError(t, err)

	depCopy := dep.DeepCopy()
	depCopy.Status = appsv1.DeploymentStatus{
		Replicas:          *dep.Spec.Replicas,
		UpdatedReplicas:   *dep.Spec.Replicas,
		ReadyReplicas:     *dep.Spec.Replicas,
		AvailableReplicas: *dep.Spec.Replicas,
	}
	_, err = d.kubeClient.AppsV1().Deployments("default").Update(context.TODO(), depCopy, metav1.UpdateOptions{})
	require.NoError(t, err)
}

func (d deploymentFixture) makePrimaryReady(t *testing.T) {
	d.makeDeploymentReady(t, "podinfo-primary")
}

func (d deploymentFixture) makeCanaryReady(t *testing.T) {
	d.makeDeploymentReady(t, "podinfo")
}

func newDeploymentTestCanary() *rolloutsv1.Canary {
	return &rolloutsv1.Canary{
		TypeMeta: metav1.TypeMeta{APIVersion: rolloutsv1.SchemeGroupVersion.String()},
		ObjectMeta: metav1.ObjectMeta{
			Namespace: "default",
			Name:      "podinfo",
		},
		Spec: rolloutsv1.CanarySpec{
			TargetRef: rolloutsv1.LocalObjectReference{
				Name:       "podinfo",
				APIVersion: "apps/v1",
				Kind:       "Deployment",
			},
			AutoscalerRef: &rolloutsv1.AutoscalerReference{
				Name:       "podinfo",
				APIVersion: "autoscaling/v2",
				Kind:       "HorizontalPodAutoscaler",
			},
			Service: rolloutsv1.CanaryService{
				Port: 9898,
				GatewayRefs: []gatewayv1.ParentReference{
					{
						Name: "podinfo-gateway",
					},
				},
			},
			Analysis: &rolloutsv1.CanaryAnalysis{
				Interval:   "1m",
				Threshold:  10,
				StepWeight: 10,
				MaxWeight:  50,
			},
		},
	}
}

func newDeploymentTestCanaryMirror() *rolloutsv1.Canary {
	cd := newDeploymentTestCanary()
	cd.Spec.Analysis.Interval = "0s"
	cd.Spec.Analysis.Mirror = true
	return cd
}

func newDeploymentTestCanaryAB() *rolloutsv1.Canary {
	cd := newDeploymentTestCanary()
	cd.Spec.Analysis = &rolloutsv1.CanaryAnalysis{
		Interval:   "0s",
		Threshold:  10,
		Iterations: 2,
		Match: []rolloutsv1.CanaryMatch{
			{
				Headers: map[string]string{
					"x-canary": "insider",
				},
			},
		},
	}
	return cd
}

func newDeploymentTestDeployment() *appsv1.Deployment {
	return &appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{APIVersion: appsv1.SchemeGroupVersion.String()},
		ObjectMeta: metav1.ObjectMeta{
			Namespace: "default",
			Name:      "podinfo",
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: int32p(2),
			Selector: &metav1.LabelSelector{
				MatchLabels: map[string]string{
					"app": "podinfo",
				},
			},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{
						"app": "podinfo",
					},
				},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{
						{
							Name:  "podinfod",
							Image: "quay.io/stefanprodan/podinfo:1.2.0",
							Ports: []corev1.ContainerPort{
								{
									Name:          "http",
									ContainerPort: 9898,
									Protocol:      corev1.ProtocolTCP,
								},
								{
									Name:          "http-metrics",
									ContainerPort: 8080,
									Protocol:      corev1.ProtocolTCP,
								},
							},
							Command: []string{
								"./podinfo",
								"--port=9898",
							},
							Env: []corev1.EnvVar{
								{
									Name: "PODINFO_UI_COLOR",
									ValueFrom: &corev1.EnvVarSource{
										ConfigMapKeyRef: &corev1.ConfigMapKeySelector{
											LocalObjectReference: corev1.LocalObjectReference{
												Name: "podinfo-config-env",
											},
											Key: "color",
										},
									},
								},
							},
						},
						{
							Name:  "podinfo-2",
							Image: "quay.io/stefanprodan/podinfo:1.2.0",
							Ports: []corev1.ContainerPort{
								{
									ContainerPort: 8888,
									Protocol:      corev1.ProtocolTCP,
								},
							},
						},
					},
					Volumes: []corev1.Volume{
						{
							Name: "secret",
							VolumeSource: corev1.VolumeSource{
								Secret: &corev1.SecretVolumeSource{
									SecretName: "podinfo-secret-vol",
								},
							},
						},
					},
				},
			},
		},
	}
}

func newDeploymentTestDeploymentV2() *appsv1.Deployment {
	dep := newDeploymentTestDeployment()
	dep.Spec.Template.Spec.Containers[0].Image = "quay.io/stefanprodan/podinfo:1.2.1"
	return dep
}

func newDeploymentTestConfigMap() *corev1.ConfigMap {
	return &corev1.ConfigMap{
		TypeMeta: metav1.TypeMeta{APIVersion: corev1.SchemeGroupVersion.String()},
		ObjectMeta: metav1.ObjectMeta{
			Namespace: "default",
			Name:      "podinfo-config-env",
		},
		Data: map[string]string{
			"color": "red",
		},
	}
}

func newDeploymentTestConfigMapV2() *corev1.ConfigMap {
	cm := newDeploymentTestConfigMap()
	cm.Data["color"] = "blue"
	return cm
}

func newDeploymentTestSecret() *corev1.Secret {
	return &corev1.Secret{
		TypeMeta: metav1.TypeMeta{APIVersion: corev1.SchemeGroupVersion.String()},
		ObjectMeta: metav1.ObjectMeta{
			Namespace: "default",
			Name:      "podinfo-secret-vol",
		},
		Type: corev1.SecretTypeOpaque,
		Data: map[string][]byte{
			"apiKey": []byte("test"),
		},
	}
}

func newDeploymentTestSecretV2() *corev1.Secret {
	secret := newDeploymentTestSecret()
	secret.Data["apiKey"] = []byte("test2")
	return secret
}

func newDeploymentTestHPA() *hpav2.HorizontalPodAutoscaler {
	return &hpav2.HorizontalPodAutoscaler{
		TypeMeta: metav1.TypeMeta{APIVersion: hpav2.SchemeGroupVersion.String()},
		ObjectMeta: metav1.ObjectMeta{
			Namespace: "default",
			Name:      "podinfo",
		},
		Spec: hpav2.HorizontalPodAutoscalerSpec{
			ScaleTargetRef: hpav2.CrossVersionObjectReference{
				Name:       "podinfo",
				APIVersion: "apps/v1",
				Kind:       "Deployment",
			},
			MinReplicas: int32p(1),
			MaxReplicas: 4,
			Metrics: []hpav2.MetricSpec{
				{
					Type: hpav2.ResourceMetricSourceType,
					Resource: &hpav2.ResourceMetricSource{
						Name: corev1.ResourceCPU,
						Target: hpav2.MetricTarget{
							Type:         hpav2.AverageValueMetricType,
							AverageValue: resource.NewQuantity(100, resource.DecimalSI),
						},
					},
				},
			},
		},
	}
}

func int32p(i int32) *int32 {
	return &i
}

func toFloatPtr(f float64) *float64 {
	return &f
}

func assertPhase(client clientset.Interface, name string, phase rolloutsv1.CanaryPhase) error {
	c, err := client.RolloutsV1beta1().Canaries("default").Get(context.TODO(), name, metav1.GetOptions{})
	if err != nil {
		return err
	}
	if c.Status.Phase != phase {
		return fmt.Errorf("expected phase %s, got %s", phase, c.Status.Phase)
	}
	return nil
}
