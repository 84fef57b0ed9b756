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

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/util/retry"

	rolloutsv1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
)

const finalizer = "finalizer.rollouts.moegolibrary.com"

func hasFinalizer(cd *rolloutsv1.Canary) bool {
	for _, f := range cd.ObjectMeta.Finalizers {
		if f == finalizer {
			return true
		}
	}
	return false
}

// addFinalizer appends the finalizer with retry on conflict
func (c *Controller) addFinalizer(cd *rolloutsv1.Canary) error {
	firstTry := true
	name, ns := cd.GetName(), cd.GetNamespace()
	err := retry.RetryOnConflict(retry.DefaultBackoff, func() (err error) {
		if !firstTry {
			cd, err = c.rolloutClient.RolloutsV1beta1().Canaries(ns).Get(context.TODO(), name, metav1.GetOptions{})
			if err != nil {
				return fmt.Errorf("canary %s.%s get query error: %w", name, ns, err)
			}
		}

		cdCopy := cd.DeepCopy()
		cdCopy.ObjectMeta.Finalizers = append(cdCopy.ObjectMeta.Finalizers, finalizer)
		_, err = c.rolloutClient.RolloutsV1beta1().Canaries(ns).Update(context.TODO(), cdCopy, metav1.UpdateOptions{})

		firstTry = false
		return
	})
	if err != nil {
		return fmt.Errorf("failed after retries: %w", err)
	}
	return nil
}

// removeFinalizer drops the finalizer with retry on conflict
func (c *Controller) removeFinalizer(cd *rolloutsv1.Canary) error {
	firstTry := true
	name, ns := cd.GetName(), cd.GetNamespace()
	err := retry.RetryOnConflict(retry.DefaultBackoff, func() (err error) {
		if !firstTry {
			cd, err = c.rolloutClient.RolloutsV1beta1().Canaries(ns).Get(context.TODO(), name, metav1.GetOptions{})
			if err != nil {
				return fmt.Errorf("canary %s.%s get query error: %w", name, ns, err)
			}
		}

		cdCopy := cd.DeepCopy()
		finalizers := make([]string, 0, len(cdCopy.ObjectMeta.Finalizers))
		for _, f := range cdCopy.ObjectMeta.Finalizers {
			if f != finalizer {
				finalizers = append(finalizers, f)
			}
		}
		cdCopy.ObjectMeta.Finalizers = finalizers
		_, err = c.rolloutClient.RolloutsV1beta1().Canaries(ns).Update(context.TODO(), cdCopy, metav1.UpdateOptions{})

		firstTry = false
		return
	})
	if err != nil {
		return fmt.Errorf("failed after retries: %w", err)
	}
	return nil
}

// finalize restores the canary target to its original state and removes the
// managed resources before the object is deleted
func (c *Controller) finalize(cd *rolloutsv1.Canary) error {
	canaryController := c.canaryFactory.Controller(cd.Spec.TargetRef.Kind)

	if err := canaryController.SetStatusPhase(cd, rolloutsv1.CanaryPhaseTerminating); err != nil {
		return fmt.Errorf("failed to set terminating phase: %w", err)
	}

	// hand the autoscaler back to the target workload
	if cd.Spec.AutoscalerRef != nil {
		if scalerReconciler := c.canaryFactory.ScalerReconciler(cd.Spec.AutoscalerRef.Kind); scalerReconciler != nil {
			if err := scalerReconciler.ResumeTargetScaler(cd); err != nil {
				return fmt.Errorf("failed to resume target scaler: %w", err)
			}
		}
	}

	// revert the target workload to the canary spec
	if err := canaryController.Finalize(cd); err != nil {
		return fmt.Errorf("failed to revert target: %w", err)
	}

	labelSelector, labelValue, ports, err := canaryController.GetMetadata(cd)
	if err != nil {
		return fmt.Errorf("failed to get metadata for router finalizing: %w", err)
	}

	// revert the apex service to the target selector
	kubeRouter := c.routerFactory.KubernetesRouter(labelSelector, labelValue, ports)
	if err := kubeRouter.Finalize(cd); err != nil {
		return fmt.Errorf("failed to revert routing: %w", err)
	}

	// revert the mesh routes
	provider := c.meshProvider
	if cd.Spec.Provider != "" {
		provider = cd.Spec.Provider
	}
	meshRouter := c.routerFactory.MeshRouter(provider)
	if err := meshRouter.Finalize(cd); err != nil {
		return fmt.Errorf("failed to revert mesh routes: %w", err)
	}

	if err := canaryController.SetStatusPhase(cd, rolloutsv1.CanaryPhaseTerminated); err != nil {
		return fmt.Errorf("failed to set terminated phase: %w", err)
	}

	c.logger.Infof("Finalization complete for %s.%s", cd.Name, cd.Namespace)
	return nil
}
