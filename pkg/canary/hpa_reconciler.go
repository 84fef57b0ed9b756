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

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	hpav2 "k8s.io/api/autoscaling/v2"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/util/retry"

	rolloutsv1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
)

// HPAReconciler reconciles the primary HorizontalPodAutoscaler
type HPAReconciler struct {
	kubeClient kubernetes.Interface
	logger     *zap.SugaredLogger
}

func (hr *HPAReconciler) ReconcilePrimaryScaler(cd *rolloutsv1.Canary, init bool) error {
	if cd.Spec.AutoscalerRef == nil {
		return nil
	}
	if err := hr.reconcilePrimaryHPA(cd, init); err != nil {
		return fmt.Errorf("reconcilePrimaryHPA failed: %w", err)
	}
	return nil
}

// PauseTargetScaler is a no-op, the HPA has no pause semantics, the canary
// replicas are protected by scaling the workload itself to zero
func (hr *HPAReconciler) PauseTargetScaler(cd *rolloutsv1.Canary) error {
	return nil
}

// ResumeTargetScaler is a no-op for the HPA
func (hr *HPAReconciler) ResumeTargetScaler(cd *rolloutsv1.Canary) error {
	return nil
}

func (hr *HPAReconciler) reconcilePrimaryHPA(cd *rolloutsv1.Canary, init bool) error {
	hpa, err := hr.kubeClient.AutoscalingV2().HorizontalPodAutoscalers(cd.Namespace).
		Get(context.TODO(), cd.Spec.AutoscalerRef.Name, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("HorizontalPodAutoscaler %s.%s get query error: %w",
			cd.Spec.AutoscalerRef.Name, cd.Namespace, err)
	}

	primaryHPAName := fmt.Sprintf("%s-primary", cd.Spec.AutoscalerRef.Name)
	hpaSpec := hpav2.HorizontalPodAutoscalerSpec{
		ScaleTargetRef: hpav2.CrossVersionObjectReference{
			Name:       fmt.Sprintf("%s-primary", cd.Spec.TargetRef.Name),
			Kind:       hpa.Spec.ScaleTargetRef.Kind,
			APIVersion: hpa.Spec.ScaleTargetRef.APIVersion,
		},
		MinReplicas: hpa.Spec.MinReplicas,
		MaxReplicas: hpa.Spec.MaxReplicas,
		Metrics:     hpa.Spec.Metrics,
		Behavior:    hpa.Spec.Behavior,
	}

	if replicas := cd.Spec.AutoscalerRef.PrimaryScalerReplicas; replicas != nil {
		if minReplicas := replicas.MinReplicas; minReplicas != nil {
			hpaSpec.MinReplicas = minReplicas
		}
		if maxReplicas := replicas.MaxReplicas; maxReplicas != nil {
			hpaSpec.MaxReplicas = *maxReplicas
		}
	}

	primaryHPA, err := hr.kubeClient.AutoscalingV2().HorizontalPodAutoscalers(cd.Namespace).
		Get(context.TODO(), primaryHPAName, metav1.GetOptions{})

	if apierrors.IsNotFound(err) {
		primaryHPA = &hpav2.HorizontalPodAutoscaler{
			ObjectMeta: metav1.ObjectMeta{
				Name:        primaryHPAName,
				Namespace:   cd.Namespace,
				Labels:      hpa.Labels,
				Annotations: filterMetadata(hpa.Annotations),
				OwnerReferences: []metav1.OwnerReference{
					*metav1.NewControllerRef(cd, rolloutsv1.SchemeGroupVersion.WithKind(rolloutsv1.CanaryKind)),
				},
			},
			Spec: hpaSpec,
		}

		_, err = hr.kubeClient.AutoscalingV2().HorizontalPodAutoscalers(cd.Namespace).
			Create(context.TODO(), primaryHPA, metav1.CreateOptions{})
		if err != nil {
			return fmt.Errorf("creating HorizontalPodAutoscaler %s.%s failed: %w",
				primaryHPA.Name, primaryHPA.Namespace, err)
		}
		hr.logger.With("canary", fmt.Sprintf("%s.%s", cd.Name, cd.Namespace)).
			Infof("HorizontalPodAutoscaler %s.%s created", primaryHPA.GetName(), cd.Namespace)
		return nil
	} else if err != nil {
		return fmt.Errorf("HorizontalPodAutoscaler %s.%s get query error: %w",
			primaryHPAName, cd.Namespace, err)
	}

	diffMetrics := cmp.Diff(hpaSpec.Metrics, primaryHPA.Spec.Metrics)
	diffBehavior := cmp.Diff(hpaSpec.Behavior, primaryHPA.Spec.Behavior)
	diffLabels := cmp.Diff(hpa.ObjectMeta.Labels, primaryHPA.ObjectMeta.Labels)
	diffAnnotations := cmp.Diff(filterMetadata(hpa.ObjectMeta.Annotations), primaryHPA.ObjectMeta.Annotations)

	if diffMetrics != "" || diffBehavior != "" || diffLabels != "" || diffAnnotations != "" ||
		int32Default(hpaSpec.MinReplicas) != int32Default(primaryHPA.Spec.MinReplicas) ||
		hpaSpec.MaxReplicas != primaryHPA.Spec.MaxReplicas || init {

		firstTry := true
		err = retry.RetryOnConflict(retry.DefaultBackoff, func() (err error) {
			if !firstTry {
				primaryHPA, err = hr.kubeClient.AutoscalingV2().HorizontalPodAutoscalers(cd.Namespace).
					Get(context.TODO(), primaryHPAName, metav1.GetOptions{})
				if err != nil {
					return fmt.Errorf("HorizontalPodAutoscaler %s.%s get query error: %w",
						primaryHPAName, cd.Namespace, err)
				}
			}

			hpaClone := primaryHPA.DeepCopy()
			hpaClone.Spec = hpaSpec
			hpaClone.ObjectMeta.Labels = hpa.ObjectMeta.Labels
			hpaClone.ObjectMeta.Annotations = filterMetadata(hpa.ObjectMeta.Annotations)

			_, err = hr.kubeClient.AutoscalingV2().HorizontalPodAutoscalers(cd.Namespace).
				Update(context.TODO(), hpaClone, metav1.UpdateOptions{})
			firstTry = false
			return
		})
		if err != nil {
			return fmt.Errorf("updating HorizontalPodAutoscaler %s.%s failed: %w",
				primaryHPAName, cd.Namespace, err)
		}
		hr.logger.With("canary", fmt.Sprintf("%s.%s", cd.Name, cd.Namespace)).
			Infof("HorizontalPodAutoscaler %s.%s updated", primaryHPAName, cd.Namespace)
	}

	return nil
}

func int32Default(v *int32) int32 {
	if v == nil {
		return 1
	}
	return *v
}
