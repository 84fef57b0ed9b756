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
	appsv1 "k8s.io/api/apps/v1"
	hpav2 "k8s.io/api/autoscaling/v2"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/client-go/kubernetes"
	fakekube "k8s.io/client-go/kubernetes/fake"

	keda "github.com/MoeGolibrary/rollouts/pkg/apis/keda/v1alpha1"
	rolloutsv1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
	clientset "github.com/MoeGolibrary/rollouts/pkg/client/clientset/versioned"
	fakerollouts "github.com/MoeGolibrary/rollouts/pkg/client/clientset/versioned/fake"
	"github.com/MoeGolibrary/rollouts/pkg/logger"
)

type fixture struct {
	canary        *rolloutsv1.Canary
	kubeClient    kubernetes.Interface
	rolloutClient clientset.Interface
	ctrl          *DeploymentController
	hpaReconciler *HPAReconciler
	soReconciler  *ScaledObjectReconciler
	logger        *zap.SugaredLogger
}

func newFixture(cd *rolloutsv1.Canary) fixture {
	if cd == nil {
		cd = newTestCanary()
	}

	kubeClient := fakekube.NewSimpleClientset(
		newTestDeployment(),
		newTestHPA(),
		newTestConfigMap(),
		newTestSecret(),
	)
	rolloutClient := fakerollouts.NewSimpleClientset(cd, newTestScaledObject())

	log, _ := logger.NewLogger("debug")

	configTracker := &ConfigTracker{
		KubeClient:    kubeClient,
		RolloutClient: rolloutClient,
		Logger:        log,
	}

	ctrl := &DeploymentController{
		kubeClient:    kubeClient,
		rolloutClient: rolloutClient,
		logger:        log,
		labels:        []string{"app", "name"},
		configTracker: configTracker,
	}

	return fixture{
		canary:        cd,
		kubeClient:    kubeClient,
		rolloutClient: rolloutClient,
		ctrl:          ctrl,
		hpaReconciler: &HPAReconciler{
			kubeClient: kubeClient,
			logger:     log,
		},
		soReconciler: &ScaledObjectReconciler{
			kubeClient:    kubeClient,
			rolloutClient: rolloutClient,
			logger:        log,
		},
		logger: log,
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
			},
			Analysis: &rolloutsv1.CanaryAnalysis{
				Threshold:  10,
				StepWeight: 10,
				MaxWeight:  50,
			},
		},
	}
}

func newTestCanaryWithScaledObject() *rolloutsv1.Canary {
	cd := newTestCanary()
	cd.Spec.AutoscalerRef = &rolloutsv1.AutoscalerReference{
		Name:       "podinfo",
		APIVersion: "keda.sh/v1alpha1",
		Kind:       "ScaledObject",
	}
	return cd
}

func newTestDeployment() *appsv1.Deployment {
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
							Name:  "podinfo",
							Image: "quay.io/stefanprodan/podinfo:1.2.0",
							Ports: []corev1.ContainerPort{
								{
									Name:          "http",
									ContainerPort: 9898,
									Protocol:      corev1.ProtocolTCP,
								},
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

func newTestConfigMap() *corev1.ConfigMap {
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

func newTestSecret() *corev1.Secret {
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

func newTestHPA() *hpav2.HorizontalPodAutoscaler {
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

func newTestScaledObject() *keda.ScaledObject {
	return &keda.ScaledObject{
		TypeMeta: metav1.TypeMeta{APIVersion: "keda.sh/v1alpha1", Kind: keda.ScaledObjectKind},
		ObjectMeta: metav1.ObjectMeta{
			Namespace: "default",
			Name:      "podinfo",
		},
		Spec: keda.ScaledObjectSpec{
			ScaleTargetRef: &keda.ScaleTarget{
				Name: "podinfo",
			},
			PollingInterval: int32p(10),
			MinReplicaCount: int32p(1),
			MaxReplicaCount: int32p(4),
			Triggers: []keda.ScaleTriggers{
				{
					Type: "prometheus",
					Name: "prom-trigger",
					Metadata: map[string]string{
						"serverAddress": "http://prometheus:9090",
						"query":         `sum(rate(http_requests_total{app="podinfo"}[30s]))`,
						"threshold":     "100",
					},
				},
			},
		},
	}
}
