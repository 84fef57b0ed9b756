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
	"context"
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/util/retry"

	keda "github.com/MoeGolibrary/rollouts/pkg/apis/keda/v1alpha1"
	rolloutsv1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
	clientset "github.com/MoeGolibrary/rollouts/pkg/client/clientset/versioned"
)

// ScaledObjectReconciler reconciles the primary ScaledObject and drives the
// paused replicas marker on the target one
type ScaledObjectReconciler struct {
	kubeClient    kubernetes.Interface
	rolloutClient clientset.Interface
	logger        *zap.SugaredLogger
}

func (sor *ScaledObjectReconciler) ReconcilePrimaryScaler(cd *rolloutsv1.Canary, init bool) error {
	if cd.Spec.AutoscalerRef == nil {
		return nil
	}
	if err := sor.reconcilePrimaryScaledObject(cd, init); err != nil {
		return fmt.Errorf("reconcilePrimaryScaledObject failed: %w", err)
	}
	return nil
}

// PauseTargetScaler marks the target ScaledObject as paused at zero replicas
func (sor *ScaledObjectReconciler) PauseTargetScaler(cd *rolloutsv1.Canary) error {
	return sor.setPausedAnnotation(cd, true)
}

// ResumeTargetScaler removes the paused replicas marker from the target ScaledObject
func (sor *ScaledObjectReconciler) ResumeTargetScaler(cd *rolloutsv1.Canary) error {
	return sor.setPausedAnnotation(cd, false)
}

func (sor *ScaledObjectReconciler) setPausedAnnotation(cd *rolloutsv1.Canary, paused bool) error {
	name := cd.Spec.AutoscalerRef.Name
	err := retry.RetryOnConflict(retry.DefaultBackoff, func() (err error) {
		so, err := sor.rolloutClient.KedaV1alpha1().ScaledObjects(cd.Namespace).
			Get(context.TODO(), name, metav1.GetOptions{})
		if err != nil {
			return fmt.Errorf("ScaledObject %s.%s get query error: %w", name, cd.Namespace, err)
		}

		soClone := so.DeepCopy()
		if paused {
			if soClone.Annotations == nil {
				soClone.Annotations = make(map[string]string)
			}
			if v, ok := soClone.Annotations[keda.PausedReplicasAnnotation]; ok && v == "0" {
				return nil
			}
			soClone.Annotations[keda.PausedReplicasAnnotation] = "0"
		} else {
			if _, ok := soClone.Annotations[keda.PausedReplicasAnnotation]; !ok {
				return nil
			}
			delete(soClone.Annotations, keda.PausedReplicasAnnotation)
		}

		_, err = sor.rolloutClient.KedaV1alpha1().ScaledObjects(cd.Namespace).
			Update(context.TODO(), soClone, metav1.UpdateOptions{})
		return
	})
	if err != nil {
		return fmt.Errorf("updating ScaledObject %s.%s paused annotation failed: %w", name, cd.Namespace, err)
	}
	return nil
}

func (sor *ScaledObjectReconciler) reconcilePrimaryScaledObject(cd *rolloutsv1.Canary, init bool) error {
	targetName := cd.Spec.AutoscalerRef.Name
	targetSo, err := sor.rolloutClient.KedaV1alpha1().ScaledObjects(cd.Namespace).
		Get(context.TODO(), targetName, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("ScaledObject %s.%s get query error: %w", targetName, cd.Namespace, err)
	}
	if targetSo.Spec.ScaleTargetRef == nil {
		return fmt.Errorf("ScaledObject %s.%s has no scaleTargetRef", targetName, cd.Namespace)
	}

	targetSoClone := targetSo.DeepCopy()
	setPrimaryScaledObjectQueries(cd, targetSoClone.Spec.Triggers)

	primarySoName := fmt.Sprintf("%s-primary", targetName)
	primarySoSpec := keda.ScaledObjectSpec{
		ScaleTargetRef: &keda.ScaleTarget{
			Name:                   fmt.Sprintf("%s-primary", targetSoClone.Spec.ScaleTargetRef.Name),
			APIVersion:             targetSoClone.Spec.ScaleTargetRef.APIVersion,
			Kind:                   targetSoClone.Spec.ScaleTargetRef.Kind,
			EnvSourceContainerName: targetSoClone.Spec.ScaleTargetRef.EnvSourceContainerName,
		},
		PollingInterval: targetSoClone.Spec.PollingInterval,
		CooldownPeriod:  targetSoClone.Spec.CooldownPeriod,
		MinReplicaCount: targetSoClone.Spec.MinReplicaCount,
		MaxReplicaCount: targetSoClone.Spec.MaxReplicaCount,
		Triggers:        targetSoClone.Spec.Triggers,
	}

	if replicas := cd.Spec.AutoscalerRef.PrimaryScalerReplicas; replicas != nil {
		if minReplicas := replicas.MinReplicas; minReplicas != nil {
			primarySoSpec.MinReplicaCount = minReplicas
		}
		if maxReplicas := replicas.MaxReplicas; maxReplicas != nil {
			primarySoSpec.MaxReplicaCount = maxReplicas
		}
	}

	primarySo, err := sor.rolloutClient.KedaV1alpha1().ScaledObjects(cd.Namespace).
		Get(context.TODO(), primarySoName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		// when the autoscaler reference migrates from an HPA to a ScaledObject
		// without replica bounds of its own, the primary scaler takes over the
		// bounds of the HPA being replaced
		if primarySoSpec.MinReplicaCount == nil && primarySoSpec.MaxReplicaCount == nil {
			if minReplicas, maxReplicas := sor.replacedHPABounds(cd); maxReplicas != nil {
				primarySoSpec.MinReplicaCount = minReplicas
				primarySoSpec.MaxReplicaCount = maxReplicas
				sor.logger.With("canary", fmt.Sprintf("%s.%s", cd.Name, cd.Namespace)).
					Infof("ScaledObject %s.%s inherits replica bounds from HorizontalPodAutoscaler %s.%s",
						primarySoName, cd.Namespace, targetName, cd.Namespace)
			}
		}

		primarySo = &keda.ScaledObject{
			ObjectMeta: metav1.ObjectMeta{
				Name:        primarySoName,
				Namespace:   cd.Namespace,
				Labels:      targetSoClone.Labels,
				Annotations: filterMetadata(targetSoClone.Annotations),
				OwnerReferences: []metav1.OwnerReference{
					*metav1.NewControllerRef(cd, rolloutsv1.SchemeGroupVersion.WithKind(rolloutsv1.CanaryKind)),
				},
			},
			Spec: primarySoSpec,
		}
		// the primary scaler never carries the paused marker
		delete(primarySo.Annotations, keda.PausedReplicasAnnotation)

		_, err = sor.rolloutClient.KedaV1alpha1().ScaledObjects(cd.Namespace).
			Create(context.TODO(), primarySo, metav1.CreateOptions{})
		if err != nil {
			return fmt.Errorf("creating ScaledObject %s.%s failed: %w", primarySoName, cd.Namespace, err)
		}
		sor.logger.With("canary", fmt.Sprintf("%s.%s", cd.Name, cd.Namespace)).
			Infof("ScaledObject %s.%s created", primarySoName, cd.Namespace)

		// the leftover primary HPA goes away only once the primary scaler exists
		return sor.dropLeftoverPrimaryHPA(cd)
	} else if err != nil {
		return fmt.Errorf("ScaledObject %s.%s get query error: %w", primarySoName, cd.Namespace, err)
	}

	// bounds inherited on ownership transfer stay in place after the
	// replaced HPA is gone
	if primarySoSpec.MinReplicaCount == nil {
		primarySoSpec.MinReplicaCount = primarySo.Spec.MinReplicaCount
	}
	if primarySoSpec.MaxReplicaCount == nil {
		primarySoSpec.MaxReplicaCount = primarySo.Spec.MaxReplicaCount
	}

	if init {
		if err := sor.dropLeftoverPrimaryHPA(cd); err != nil {
			return err
		}
	}

	if diff := cmp.Diff(primarySoSpec, primarySo.Spec); diff != "" || init {
		firstTry := true
		err = retry.RetryOnConflict(retry.DefaultBackoff, func() (err error) {
			if !firstTry {
				primarySo, err = sor.rolloutClient.KedaV1alpha1().ScaledObjects(cd.Namespace).
					Get(context.TODO(), primarySoName, metav1.GetOptions{})
				if err != nil {
					return fmt.Errorf("ScaledObject %s.%s get query error: %w", primarySoName, cd.Namespace, err)
				}
			}

			soClone := primarySo.DeepCopy()
			soClone.Spec = primarySoSpec
			delete(soClone.Annotations, keda.PausedReplicasAnnotation)

			_, err = sor.rolloutClient.KedaV1alpha1().ScaledObjects(cd.Namespace).
				Update(context.TODO(), soClone, metav1.UpdateOptions{})
			firstTry = false
			return
		})
		if err != nil {
			return fmt.Errorf("updating ScaledObject %s.%s failed: %w", primarySoName, cd.Namespace, err)
		}
		sor.logger.With("canary", fmt.Sprintf("%s.%s", cd.Name, cd.Namespace)).
			Infof("ScaledObject %s.%s updated", primarySoName, cd.Namespace)
	}

	return nil
}

// replacedHPABounds returns the replica bounds of the HPA that previously
// autoscaled the workload, nil when no such HPA exists
func (sor *ScaledObjectReconciler) replacedHPABounds(cd *rolloutsv1.Canary) (*int32, *int32) {
	hpa, err := sor.kubeClient.AutoscalingV2().HorizontalPodAutoscalers(cd.Namespace).
		Get(context.TODO(), cd.Spec.AutoscalerRef.Name, metav1.GetOptions{})
	if err != nil {
		return nil, nil
	}
	maxReplicas := hpa.Spec.MaxReplicas
	return hpa.Spec.MinReplicas, &maxReplicas
}

// dropLeftoverPrimaryHPA removes the primary HPA left behind when the
// autoscaler reference migrates from an HPA to a ScaledObject
func (sor *ScaledObjectReconciler) dropLeftoverPrimaryHPA(cd *rolloutsv1.Canary) error {
	name := fmt.Sprintf("%s-primary", cd.Spec.AutoscalerRef.Name)
	err := sor.kubeClient.AutoscalingV2().HorizontalPodAutoscalers(cd.Namespace).
		Delete(context.TODO(), name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting HorizontalPodAutoscaler %s.%s failed: %w", name, cd.Namespace, err)
	}
	sor.logger.With("canary", fmt.Sprintf("%s.%s", cd.Name, cd.Namespace)).
		Infof("HorizontalPodAutoscaler %s.%s deleted", name, cd.Namespace)
	return nil
}

// setPrimaryScaledObjectQueries rewrites the trigger queries so that the
// primary scaler observes the primary workload, an explicit per trigger
// override takes precedence over the mechanical rewrite
func setPrimaryScaledObjectQueries(cd *rolloutsv1.Canary, triggers []keda.ScaleTriggers) {
	for _, trigger := range triggers {
		for key := range trigger.Metadata {
			if key == "query" {
				if query, exists := cd.Spec.AutoscalerRef.PrimaryScalerQueries[trigger.Name]; exists {
					trigger.Metadata[key] = query
				} else if trigger.Metadata[key] != "" {
					trigger.Metadata[key] = strings.ReplaceAll(
						trigger.Metadata[key],
						cd.Spec.TargetRef.Name,
						fmt.Sprintf("%s-primary", cd.Spec.TargetRef.Name),
					)
				}
			}
		}
	}
}
