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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	rolloutsv1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
)

func TestHPAReconciler_Create(t *testing.T) {
	mocks := newFixture(nil)

	err := mocks.hpaReconciler.ReconcilePrimaryScaler(mocks.canary, true)
	require.NoError(t, err)

	primaryHPA, err := mocks.kubeClient.AutoscalingV2().HorizontalPodAutoscalers("default").
		Get(context.TODO(), "podinfo-primary", metav1.GetOptions{})
	require.NoError(t, err)

	assert.Equal(t, "podinfo-primary", primaryHPA.Spec.ScaleTargetRef.Name)
	assert.Equal(t, int32(1), *primaryHPA.Spec.MinReplicas)
	assert.Equal(t, int32(4), primaryHPA.Spec.MaxReplicas)
	require.Len(t, primaryHPA.OwnerReferences, 1)
	assert.Equal(t, rolloutsv1.CanaryKind, primaryHPA.OwnerReferences[0].Kind)
}

func TestHPAReconciler_Update(t *testing.T) {
	mocks := newFixture(nil)

	err := mocks.hpaReconciler.ReconcilePrimaryScaler(mocks.canary, true)
	require.NoError(t, err)

	hpa, err := mocks.kubeClient.AutoscalingV2().HorizontalPodAutoscalers("default").
		Get(context.TODO(), "podinfo", metav1.GetOptions{})
	require.NoError(t, err)

	hpaClone := hpa.DeepCopy()
	hpaClone.Spec.MaxReplicas = 8
	_, err = mocks.kubeClient.AutoscalingV2().HorizontalPodAutoscalers("default").
		Update(context.TODO(), hpaClone, metav1.UpdateOptions{})
	require.NoError(t, err)

	err = mocks.hpaReconciler.ReconcilePrimaryScaler(mocks.canary, false)
	require.NoError(t, err)

	primaryHPA, err := mocks.kubeClient.AutoscalingV2().HorizontalPodAutoscalers("default").
		Get(context.TODO(), "podinfo-primary", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(8), primaryHPA.Spec.MaxReplicas)
}

func TestHPAReconciler_ReplicasOverride(t *testing.T) {
	cd := newTestCanary()
	cd.Spec.AutoscalerRef.PrimaryScalerReplicas = &rolloutsv1.ScalerReplicas{
		MinReplicas: int32p(2),
		MaxReplicas: int32p(10),
	}
	mocks := newFixture(cd)

	err := mocks.hpaReconciler.ReconcilePrimaryScaler(mocks.canary, true)
	require.NoError(t, err)

	primaryHPA, err := mocks.kubeClient.AutoscalingV2().HorizontalPodAutoscalers("default").
		Get(context.TODO(), "podinfo-primary", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), *primaryHPA.Spec.MinReplicas)
	assert.Equal(t, int32(10), primaryHPA.Spec.MaxReplicas)
}

func TestHPAReconciler_PauseIsNoop(t *testing.T) {
	mocks := newFixture(nil)

	require.NoError(t, mocks.hpaReconciler.PauseTargetScaler(mocks.canary))
	require.NoError(t, mocks.hpaReconciler.ResumeTargetScaler(mocks.canary))
}
