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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	rolloutsv1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
)

// gateServer approves or denies webhook gates on demand
func gateServer(approved *bool) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if *approved {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
}

func TestScheduler_ConfirmRolloutHook(t *testing.T) {
	approved := false
	ts := gateServer(&approved)
	defer ts.Close()

	cd := newDeploymentTestCanary()
	cd.Spec.Analysis.Webhooks = []rolloutsv1.CanaryWebhook{
		{
			Name: "gate",
			Type: rolloutsv1.ConfirmRolloutHook,
			URL:  ts.URL,
		},
	}
	mocks := newDeploymentFixture(cd)

	// initialized
	mocks.ctrl.advanceCanary("podinfo", "default")
	mocks.makePrimaryReady(t)

	// update
	dep2 := newDeploymentTestDeploymentV2()
	_, err := mocks.kubeClient.AppsV1().Deployments("default").Update(context.TODO(), dep2, metav1.UpdateOptions{})
	require.NoError(t, err)

	// the rollout is halted until the gate opens
	mocks.ctrl.advanceCanary("podinfo", "default")
	require.NoError(t, assertPhase(mocks.rolloutClient, "podinfo", rolloutsv1.CanaryPhaseWaiting))

	approved = true
	mocks.ctrl.advanceCanary("podinfo", "default")
	require.NoError(t, assertPhase(mocks.rolloutClient, "podinfo", rolloutsv1.CanaryPhaseProgressing))
}

func TestScheduler_ConfirmTrafficIncreaseHook(t *testing.T) {
	approved := false
	ts := gateServer(&approved)
	defer ts.Close()

	cd := newDeploymentTestCanary()
	cd.Spec.Analysis.Interval = "0s"
	cd.Spec.Analysis.Webhooks = []rolloutsv1.CanaryWebhook{
		{
			Name: "traffic-gate",
			Type: rolloutsv1.ConfirmTrafficIncreaseHook,
			URL:  ts.URL,
		},
	}
	mocks := newDeploymentFixture(cd)

	// initialized
	mocks.ctrl.advanceCanary("podinfo", "default")
	mocks.makePrimaryReady(t)

	// update
	dep2 := newDeploymentTestDeploymentV2()
	_, err := mocks.kubeClient.AppsV1().Deployments("default").Update(context.TODO(), dep2, metav1.UpdateOptions{})
	require.NoError(t, err)

	// detect changes
	mocks.ctrl.advanceCanary("podinfo", "default")
	mocks.makeCanaryReady(t)

	// the weight must not move while the gate is closed
	mocks.ctrl.advanceCanary("podinfo", "default")
	_, canaryWeight, _, err := mocks.router.GetRoutes(mocks.canary)
	require.NoError(t, err)
	assert.Equal(t, 0, canaryWeight)

	approved = true
	mocks.ctrl.advanceCanary("podinfo", "default")
	_, canaryWeight, _, err = mocks.router.GetRoutes(mocks.canary)
	require.NoError(t, err)
	assert.Equal(t, 10, canaryWeight)
}

func TestScheduler_ConfirmPromotionHook(t *testing.T) {
	approved := false
	ts := gateServer(&approved)
	defer ts.Close()

	cd := newDeploymentTestCanary()
	cd.Spec.Analysis = &rolloutsv1.CanaryAnalysis{
		Interval:   "0s",
		Threshold:  10,
		StepWeight: 50,
		MaxWeight:  50,
		Webhooks: []rolloutsv1.CanaryWebhook{
			{
				Name: "promotion-gate",
				Type: rolloutsv1.ConfirmPromotionHook,
				URL:  ts.URL,
			},
		},
	}
	mocks := newDeploymentFixture(cd)

	// initialized
	mocks.ctrl.advanceCanary("podinfo", "default")
	mocks.makePrimaryReady(t)

	// update
	dep2 := newDeploymentTestDeploymentV2()
	_, err := mocks.kubeClient.AppsV1().Deployments("default").Update(context.TODO(), dep2, metav1.UpdateOptions{})
	require.NoError(t, err)

	// detect changes
	mocks.ctrl.advanceCanary("podinfo", "default")
	mocks.makeCanaryReady(t)

	// reach the max weight
	mocks.ctrl.advanceCanary("podinfo", "default")

	// the promotion is halted until the gate opens
	mocks.ctrl.advanceCanary("podinfo", "default")
	require.NoError(t, assertPhase(mocks.rolloutClient, "podinfo", rolloutsv1.CanaryPhaseWaitingPromotion))

	approved = true
	mocks.ctrl.advanceCanary("podinfo", "default")
	require.NoError(t, assertPhase(mocks.rolloutClient, "podinfo", rolloutsv1.CanaryPhasePromoting))
}

func TestScheduler_PreRolloutHook(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	cd := newDeploymentTestCanary()
	cd.Spec.Analysis.Interval = "0s"
	cd.Spec.Analysis.Webhooks = []rolloutsv1.CanaryWebhook{
		{
			Name: "smoke-test",
			Type: rolloutsv1.PreRolloutHook,
			URL:  ts.URL,
		},
	}
	mocks := newDeploymentFixture(cd)

	// initialized
	mocks.ctrl.advanceCanary("podinfo", "default")
	mocks.makePrimaryReady(t)

	// update
	dep2 := newDeploymentTestDeploymentV2()
	_, err := mocks.kubeClient.AppsV1().Deployments("default").Update(context.TODO(), dep2, metav1.UpdateOptions{})
	require.NoError(t, err)

	// detect changes
	mocks.ctrl.advanceCanary("podinfo", "default")
	mocks.makeCanaryReady(t)

	// a failed pre-rollout check counts as a failed check
	mocks.ctrl.advanceCanary("podinfo", "default")

	c, err := mocks.rolloutClient.RolloutsV1beta1().Canaries("default").Get(context.TODO(), "podinfo", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, rolloutsv1.CanaryPhaseProgressing, c.Status.Phase)
	assert.Equal(t, 1, c.Status.FailedChecks)

	_, canaryWeight, _, err := mocks.router.GetRoutes(mocks.canary)
	require.NoError(t, err)
	assert.Equal(t, 0, canaryWeight)
}

func TestScheduler_SkipHook(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	cd := newDeploymentTestCanary()
	cd.Spec.Analysis.Webhooks = []rolloutsv1.CanaryWebhook{
		{
			Name: "skip",
			Type: rolloutsv1.SkipHook,
			URL:  ts.URL,
		},
	}
	mocks := newDeploymentFixture(cd)

	// initialized
	mocks.ctrl.advanceCanary("podinfo", "default")
	mocks.makePrimaryReady(t)

	// update
	dep2 := newDeploymentTestDeploymentV2()
	_, err := mocks.kubeClient.AppsV1().Deployments("default").Update(context.TODO(), dep2, metav1.UpdateOptions{})
	require.NoError(t, err)

	// detect changes
	mocks.ctrl.advanceCanary("podinfo", "default")
	mocks.makeCanaryReady(t)

	// the skip hook promotes without analysis
	mocks.ctrl.advanceCanary("podinfo", "default")
	require.NoError(t, assertPhase(mocks.rolloutClient, "podinfo", rolloutsv1.CanaryPhaseSucceeded))
}

func TestScheduler_RollbackHook(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	cd := newDeploymentTestCanary()
	cd.Spec.Analysis.Webhooks = []rolloutsv1.CanaryWebhook{
		{
			Name: "abort",
			Type: rolloutsv1.RollbackHook,
			URL:  ts.URL,
		},
	}
	mocks := newDeploymentFixture(cd)

	// initialized
	mocks.ctrl.advanceCanary("podinfo", "default")
	mocks.makePrimaryReady(t)

	// update
	dep2 := newDeploymentTestDeploymentV2()
	_, err := mocks.kubeClient.AppsV1().Deployments("default").Update(context.TODO(), dep2, metav1.UpdateOptions{})
	require.NoError(t, err)

	// detect changes
	mocks.ctrl.advanceCanary("podinfo", "default")
	mocks.makeCanaryReady(t)

	// the rollback hook aborts the analysis
	mocks.ctrl.advanceCanary("podinfo", "default")
	require.NoError(t, assertPhase(mocks.rolloutClient, "podinfo", rolloutsv1.CanaryPhaseFailed))
}
