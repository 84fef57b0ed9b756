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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestKubernetesDefaultRouter_Initialize(t *testing.T) {
	mocks := newFixture()
	router := mocks.kubernetesRouter()

	err := router.Initialize(mocks.canary)
	require.NoError(t, err)

	canarySvc, err := mocks.kubeClient.CoreV1().Services("default").Get(context.TODO(), "podinfo-canary", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "podinfo", canarySvc.Spec.Selector["app"])
	assert.Equal(t, int32(9898), canarySvc.Spec.Ports[0].Port)

	primarySvc, err := mocks.kubeClient.CoreV1().Services("default").Get(context.TODO(), "podinfo-primary", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "podinfo-primary", primarySvc.Spec.Selector["app"])

	// the generated services are unmanaged by the flux controllers
	assert.Equal(t, "disabled", primarySvc.Annotations["kustomize.toolkit.fluxcd.io/reconcile"])
}

func TestKubernetesDefaultRouter_Reconcile(t *testing.T) {
	mocks := newFixture()
	router := mocks.kubernetesRouter()

	err := router.Reconcile(mocks.canary)
	require.NoError(t, err)

	apexSvc, err := mocks.kubeClient.CoreV1().Services("default").Get(context.TODO(), "podinfo", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "podinfo-primary", apexSvc.Spec.Selector["app"])

	// undo external drift
	svcClone := apexSvc.DeepCopy()
	svcClone.Spec.Selector = map[string]string{"app": "other"}
	_, err = mocks.kubeClient.CoreV1().Services("default").Update(context.TODO(), svcClone, metav1.UpdateOptions{})
	require.NoError(t, err)

	err = router.Reconcile(mocks.canary)
	require.NoError(t, err)

	apexSvc, err = mocks.kubeClient.CoreV1().Services("default").Get(context.TODO(), "podinfo", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "podinfo-primary", apexSvc.Spec.Selector["app"])
}

func TestKubernetesDefaultRouter_Finalize(t *testing.T) {
	mocks := newFixture()
	router := mocks.kubernetesRouter()

	err := router.Reconcile(mocks.canary)
	require.NoError(t, err)

	err = router.Finalize(mocks.canary)
	require.NoError(t, err)

	apexSvc, err := mocks.kubeClient.CoreV1().Services("default").Get(context.TODO(), "podinfo", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "podinfo", apexSvc.Spec.Selector["app"])
}

func TestKubernetesDefaultRouter_PortDiscovery(t *testing.T) {
	mocks := newFixture()
	router := mocks.kubernetesRouter()
	router.ports = map[string]int32{"http-metrics": 8080}

	err := router.Initialize(mocks.canary)
	require.NoError(t, err)

	canarySvc, err := mocks.kubeClient.CoreV1().Services("default").Get(context.TODO(), "podinfo-canary", metav1.GetOptions{})
	require.NoError(t, err)
	require.Len(t, canarySvc.Spec.Ports, 2)

	found := false
	for _, p := range canarySvc.Spec.Ports {
		if p.Name == "http-metrics" && p.Port == 8080 {
			found = true
		}
	}
	assert.True(t, found)
}

func TestKubernetesDefaultRouter_ServiceName(t *testing.T) {
	mocks := newFixture()
	router := mocks.kubernetesRouter()

	cd := mocks.canary.DeepCopy()
	cd.Spec.Service.Name = "podinfo-svc"

	err := router.Reconcile(cd)
	require.NoError(t, err)

	_, err = mocks.kubeClient.CoreV1().Services("default").Get(context.TODO(), "podinfo-svc", metav1.GetOptions{})
	require.NoError(t, err)
}
