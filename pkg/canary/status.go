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

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/util/retry"

	rolloutsv1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
	clientset "github.com/MoeGolibrary/rollouts/pkg/client/clientset/versioned"
	"github.com/MoeGolibrary/rollouts/pkg/utils"
)

// syncCanaryStatus updates the canary status with retry on conflict,
// when setAll is set the last applied spec hash and tracked configs are recorded
func syncCanaryStatus(client clientset.Interface, cd *rolloutsv1.Canary, status rolloutsv1.CanaryStatus, canaryResource interface{}, setAll bool) error {
	firstTry := true
	err := retry.RetryOnConflict(retry.DefaultBackoff, func() (err error) {
		if !firstTry {
			cd, err = client.RolloutsV1beta1().Canaries(cd.Namespace).Get(context.TODO(), cd.Name, metav1.GetOptions{})
			if err != nil {
				return fmt.Errorf("canary %s.%s get query error: %w", cd.Name, cd.Namespace, err)
			}
		}

		cdCopy := cd.DeepCopy()
		cdCopy.Status.Phase = status.Phase
		cdCopy.Status.CanaryWeight = status.CanaryWeight
		cdCopy.Status.FailedChecks = status.FailedChecks
		cdCopy.Status.Iterations = status.Iterations
		cdCopy.Status.InconclusiveChecks = status.InconclusiveChecks
		cdCopy.Status.AnalysisRunID = status.AnalysisRunID
		cdCopy.Status.LastTransitionTime = metav1.Now()

		if setAll {
			cdCopy.Status.LastAppliedSpec = utils.ComputeHash(canaryResource)
			cdCopy.Status.TrackedConfigs = status.TrackedConfigs
		}

		err = updateStatusWithUpgrade(client, cdCopy)
		firstTry = false
		return
	})
	if err != nil {
		return fmt.Errorf("failed after retries: %w", err)
	}
	return nil
}

func setStatusFailedChecks(client clientset.Interface, cd *rolloutsv1.Canary, val int) error {
	firstTry := true
	err := retry.RetryOnConflict(retry.DefaultBackoff, func() (err error) {
		if !firstTry {
			cd, err = client.RolloutsV1beta1().Canaries(cd.Namespace).Get(context.TODO(), cd.Name, metav1.GetOptions{})
			if err != nil {
				return fmt.Errorf("canary %s.%s get query error: %w", cd.Name, cd.Namespace, err)
			}
		}

		cdCopy := cd.DeepCopy()
		cdCopy.Status.FailedChecks = val
		cdCopy.Status.LastTransitionTime = metav1.Now()

		err = updateStatusWithUpgrade(client, cdCopy)
		firstTry = false
		return
	})
	if err != nil {
		return fmt.Errorf("failed after retries: %w", err)
	}
	return nil
}

func setStatusWeight(client clientset.Interface, cd *rolloutsv1.Canary, val int) error {
	firstTry := true
	err := retry.RetryOnConflict(retry.DefaultBackoff, func() (err error) {
		if !firstTry {
			cd, err = client.RolloutsV1beta1().Canaries(cd.Namespace).Get(context.TODO(), cd.Name, metav1.GetOptions{})
			if err != nil {
				return fmt.Errorf("canary %s.%s get query error: %w", cd.Name, cd.Namespace, err)
			}
		}

		cdCopy := cd.DeepCopy()
		cdCopy.Status.CanaryWeight = val
		cdCopy.Status.LastTransitionTime = metav1.Now()

		err = updateStatusWithUpgrade(client, cdCopy)
		firstTry = false
		return
	})
	if err != nil {
		return fmt.Errorf("failed after retries: %w", err)
	}
	return nil
}

func setStatusIterations(client clientset.Interface, cd *rolloutsv1.Canary, val int) error {
	firstTry := true
	err := retry.RetryOnConflict(retry.DefaultBackoff, func() (err error) {
		if !firstTry {
			cd, err = client.RolloutsV1beta1().Canaries(cd.Namespace).Get(context.TODO(), cd.Name, metav1.GetOptions{})
			if err != nil {
				return fmt.Errorf("canary %s.%s get query error: %w", cd.Name, cd.Namespace, err)
			}
		}

		cdCopy := cd.DeepCopy()
		cdCopy.Status.Iterations = val
		cdCopy.Status.LastTransitionTime = metav1.Now()

		err = updateStatusWithUpgrade(client, cdCopy)
		firstTry = false
		return
	})
	if err != nil {
		return fmt.Errorf("failed after retries: %w", err)
	}
	return nil
}

func setStatusInconclusiveChecks(client clientset.Interface, cd *rolloutsv1.Canary, val int) error {
	firstTry := true
	err := retry.RetryOnConflict(retry.DefaultBackoff, func() (err error) {
		if !firstTry {
			cd, err = client.RolloutsV1beta1().Canaries(cd.Namespace).Get(context.TODO(), cd.Name, metav1.GetOptions{})
			if err != nil {
				return fmt.Errorf("canary %s.%s get query error: %w", cd.Name, cd.Namespace, err)
			}
		}

		cdCopy := cd.DeepCopy()
		cdCopy.Status.InconclusiveChecks = val
		cdCopy.Status.LastTransitionTime = metav1.Now()

		err = updateStatusWithUpgrade(client, cdCopy)
		firstTry = false
		return
	})
	if err != nil {
		return fmt.Errorf("failed after retries: %w", err)
	}
	return nil
}

func setStatusPhase(client clientset.Interface, cd *rolloutsv1.Canary, phase rolloutsv1.CanaryPhase) error {
	firstTry := true
	err := retry.RetryOnConflict(retry.DefaultBackoff, func() (err error) {
		if !firstTry {
			cd, err = client.RolloutsV1beta1().Canaries(cd.Namespace).Get(context.TODO(), cd.Name, metav1.GetOptions{})
			if err != nil {
				return fmt.Errorf("canary %s.%s get query error: %w", cd.Name, cd.Namespace, err)
			}
		}

		cdCopy := cd.DeepCopy()
		cdCopy.Status.Phase = phase
		cdCopy.Status.LastTransitionTime = metav1.Now()

		if phase == rolloutsv1.CanaryPhaseProgressing {
			cdCopy.Status.LastStartTime = metav1.Now()
		}

		if ok, conditions := MakeStatusConditions(cdCopy, phase); ok {
			cdCopy.Status.Conditions = conditions
		}

		err = updateStatusWithUpgrade(client, cdCopy)
		firstTry = false
		return
	})
	if err != nil {
		return fmt.Errorf("failed after retries: %w", err)
	}
	return nil
}

// updateStatusWithUpgrade pushes the status subresource to the API server
func updateStatusWithUpgrade(client clientset.Interface, cd *rolloutsv1.Canary) error {
	_, err := client.RolloutsV1beta1().Canaries(cd.Namespace).UpdateStatus(context.TODO(), cd, metav1.UpdateOptions{})
	return err
}

// getStatusCondition returns the condition with the given type or nil
func getStatusCondition(status rolloutsv1.CanaryStatus, conditionType rolloutsv1.CanaryConditionType) *rolloutsv1.CanaryCondition {
	for i := range status.Conditions {
		c := status.Conditions[i]
		if c.Type == conditionType {
			return &c
		}
	}
	return nil
}

// MakeStatusConditions updates the promoted condition based on the phase
func MakeStatusConditions(cd *rolloutsv1.Canary, phase rolloutsv1.CanaryPhase) (bool, []rolloutsv1.CanaryCondition) {
	currentCondition := getStatusCondition(cd.Status, rolloutsv1.PromotedType)

	message := "New deployment detected, starting initialization."
	status := corev1.ConditionUnknown
	switch phase {
	case rolloutsv1.CanaryPhaseInitializing:
		status = corev1.ConditionUnknown
		message = "New deployment detected, starting initialization."
	case rolloutsv1.CanaryPhaseInitialized:
		status = corev1.ConditionTrue
		message = "Deployment initialization completed."
	case rolloutsv1.CanaryPhaseWaiting:
		status = corev1.ConditionUnknown
		message = "Waiting for approval."
	case rolloutsv1.CanaryPhaseProgressing:
		status = corev1.ConditionUnknown
		message = "New revision detected, starting canary analysis."
	case rolloutsv1.CanaryPhaseWaitingPromotion:
		status = corev1.ConditionUnknown
		message = "Waiting for promotion approval."
	case rolloutsv1.CanaryPhasePromoting:
		status = corev1.ConditionUnknown
		message = "Canary analysis completed, starting primary rolling update."
	case rolloutsv1.CanaryPhaseFinalising:
		status = corev1.ConditionUnknown
		message = "Canary analysis completed, routing all traffic to primary."
	case rolloutsv1.CanaryPhaseSucceeded:
		status = corev1.ConditionTrue
		message = "Canary analysis completed successfully, promotion finished."
	case rolloutsv1.CanaryPhaseFailed:
		status = corev1.ConditionFalse
		message = "Canary analysis failed, deployment scaled to zero."
	}

	newCondition := &rolloutsv1.CanaryCondition{
		Type:               rolloutsv1.PromotedType,
		Status:             status,
		LastUpdateTime:     metav1.Now(),
		LastTransitionTime: metav1.Now(),
		Message:            message,
		Reason:             string(phase),
	}

	if currentCondition != nil &&
		currentCondition.Status == newCondition.Status &&
		currentCondition.Reason == newCondition.Reason {
		return false, nil
	}

	if currentCondition != nil && currentCondition.Status == newCondition.Status {
		newCondition.LastTransitionTime = currentCondition.LastTransitionTime
	}

	return true, []rolloutsv1.CanaryCondition{*newCondition}
}
