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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	rolloutsv1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
)

func TestScheduler_DeploymentInit(t *testing.T) {
	mocks := newDeploymentFixture(nil)
	mocks.ctrl.advanceCanary("podinfo", "default")

	// primary workload
	_, err := mocks.kubeClient.AppsV1().Deployments("default").Get(context.TODO(), "podinfo-primary", metav1.GetOptions{})
	require.NoError(t, err)

	// canary scaled down
	dp, err := mocks.kubeClient.AppsV1().Deployments("default").Get(context.TODO(), "podinfo", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(0), *dp.Spec.Replicas)

	// primary autoscaler
	_, err = mocks.kubeClient.AutoscalingV2().HorizontalPodAutoscalers("default").Get(context.TODO(), "podinfo-primary", metav1.GetOptions{})
	require.NoError(t, err)

	// canary, primary and apex services
	for _, svc := range []string{"podinfo-canary", "podinfo-primary", "podinfo"} {
		_, err = mocks.kubeClient.CoreV1().Services("default").Get(context.TODO(), svc, metav1.GetOptions{})
		require.NoError(t, err)
	}

	// weighted route
	route, err := mocks.meshClient.GatewayV1().HTTPRoutes("default").Get(context.TODO(), "podinfo", metav1.GetOptions{})
	require.NoError(t, err)
	require.NotNil(t, route)

	require.NoError(t, assertPhase(mocks.rolloutClient, "podinfo", rolloutsv1.CanaryPhaseInitialized))
}

func TestScheduler_DeploymentNewRevision(t *testing.T) {
	mocks := newDeploymentFixture(nil)

	// initialization done
	mocks.ctrl.advanceCanary("podinfo", "default")
	mocks.makePrimaryReady(t)

	// update
	dep2 := newDeploymentTestDeploymentV2()
	_, err := mocks.kubeClient.AppsV1().Deployments("default").Update(context.TODO(), dep2, metav1.UpdateOptions{})
	require.NoError(t, err)

	// detect changes and scale up the canary
	mocks.ctrl.advanceCanary("podinfo", "default")
	require.NoError(t, assertPhase(mocks.rolloutClient, "podinfo", rolloutsv1.CanaryPhaseProgressing))

	c, err := mocks.kubeClient.AppsV1().Deployments("default").Get(context.TODO(), "podinfo", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), *c.Spec.Replicas)
}

func TestScheduler_DeploymentRollback(t *testing.T) {
	mocks := newDeploymentFixture(nil)

	// initialized
	mocks.ctrl.advanceCanary("podinfo", "default")
	mocks.makePrimaryReady(t)

	// update failed checks to max
	err := mocks.deployer.SyncStatus(mocks.canary, rolloutsv1.CanaryStatus{
		Phase:        rolloutsv1.CanaryPhaseProgressing,
		FailedChecks: 10,
	})
	require.NoError(t, err)

	// set a metric check to fail
	c, err := mocks.rolloutClient.RolloutsV1beta1().Canaries("default").Get(context.TODO(), "podinfo", metav1.GetOptions{})
	require.NoError(t, err)
	cd := c.DeepCopy()
	cd.Spec.Analysis.Metrics = append(c.Spec.Analysis.Metrics, rolloutsv1.CanaryMetric{
		Name:     "fail",
		Interval: "1m",
		ThresholdRange: &rolloutsv1.CanaryThresholdRange{
			Min: toFloatPtr(0),
			Max: toFloatPtr(50),
		},
		Query: "fail",
	})
	_, err = mocks.rolloutClient.RolloutsV1beta1().Canaries("default").Update(context.TODO(), cd, metav1.UpdateOptions{})
	require.NoError(t, err)

	// run the rollback
	mocks.ctrl.advanceCanary("podinfo", "default")

	// finalise
	mocks.ctrl.advanceCanary("podinfo", "default")

	require.NoError(t, assertPhase(mocks.rolloutClient, "podinfo", rolloutsv1.CanaryPhaseFailed))

	// all traffic routed back to primary
	primaryWeight, canaryWeight, mirrored, err := mocks.router.GetRoutes(mocks.canary)
	require.NoError(t, err)
	assert.Equal(t, 100, primaryWeight)
	assert.Equal(t, 0, canaryWeight)
	assert.False(t, mirrored)
}

func TestScheduler_DeploymentSkipAnalysis(t *testing.T) {
	mocks := newDeploymentFixture(nil)

	// initialized
	mocks.ctrl.advanceCanary("podinfo", "default")
	mocks.makePrimaryReady(t)

	// enable skip
	cd, err := mocks.rolloutClient.RolloutsV1beta1().Canaries("default").Get(context.TODO(), "podinfo", metav1.GetOptions{})
	require.NoError(t, err)
	cd.Spec.SkipAnalysis = true
	_, err = mocks.rolloutClient.RolloutsV1beta1().Canaries("default").Update(context.TODO(), cd, metav1.UpdateOptions{})
	require.NoError(t, err)

	// update
	dep2 := newDeploymentTestDeploymentV2()
	_, err = mocks.kubeClient.AppsV1().Deployments("default").Update(context.TODO(), dep2, metav1.UpdateOptions{})
	require.NoError(t, err)

	// detect changes
	mocks.ctrl.advanceCanary("podinfo", "default")
	mocks.makeCanaryReady(t)

	// promote straight away
	mocks.ctrl.advanceCanary("podinfo", "default")

	c, err := mocks.rolloutClient.RolloutsV1beta1().Canaries("default").Get(context.TODO(), "podinfo", metav1.GetOptions{})
	require.NoError(t, err)
	assert.True(t, c.Spec.SkipAnalysis)
	assert.Equal(t, rolloutsv1.CanaryPhaseSucceeded, c.Status.Phase)

	// primary got the canary spec
	primaryDep, err := mocks.kubeClient.AppsV1().Deployments("default").Get(context.TODO(), "podinfo-primary", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "quay.io/stefanprodan/podinfo:1.2.1", primaryDep.Spec.Template.Spec.Containers[0].Image)
}

func TestScheduler_DeploymentAnalysisPhases(t *testing.T) {
	cd := newDeploymentTestCanary()
	cd.Spec.Analysis = &rolloutsv1.CanaryAnalysis{
		Interval:            "0s",
		Threshold:           10,
		StepWeight:          25,
		MaxWeight:           50,
		StepWeightPromotion: 25,
	}
	mocks := newDeploymentFixture(cd)

	// initialized
	mocks.ctrl.advanceCanary("podinfo", "default")
	require.NoError(t, assertPhase(mocks.rolloutClient, "podinfo", rolloutsv1.CanaryPhaseInitialized))
	mocks.makePrimaryReady(t)

	// update
	dep2 := newDeploymentTestDeploymentV2()
	_, err := mocks.kubeClient.AppsV1().Deployments("default").Update(context.TODO(), dep2, metav1.UpdateOptions{})
	require.NoError(t, err)

	// detect changes
	mocks.ctrl.advanceCanary("podinfo", "default")
	require.NoError(t, assertPhase(mocks.rolloutClient, "podinfo", rolloutsv1.CanaryPhaseProgressing))
	mocks.makeCanaryReady(t)

	// first step
	mocks.ctrl.advanceCanary("podinfo", "default")
	primaryWeight, canaryWeight, _, err := mocks.router.GetRoutes(mocks.canary)
	require.NoError(t, err)
	assert.Equal(t, 75, primaryWeight)
	assert.Equal(t, 25, canaryWeight)

	// second step reaches the max weight
	mocks.ctrl.advanceCanary("podinfo", "default")
	_, canaryWeight, _, err = mocks.router.GetRoutes(mocks.canary)
	require.NoError(t, err)
	assert.Equal(t, 50, canaryWeight)

	// promotion starts
	mocks.ctrl.advanceCanary("podinfo", "default")
	require.NoError(t, assertPhase(mocks.rolloutClient, "podinfo", rolloutsv1.CanaryPhasePromoting))

	// traffic shifts back to primary in steps
	mocks.ctrl.advanceCanary("podinfo", "default")
	_, canaryWeight, _, err = mocks.router.GetRoutes(mocks.canary)
	require.NoError(t, err)
	assert.Equal(t, 25, canaryWeight)

	mocks.ctrl.advanceCanary("podinfo", "default")
	_, canaryWeight, _, err = mocks.router.GetRoutes(mocks.canary)
	require.NoError(t, err)
	assert.Equal(t, 0, canaryWeight)

	// finalising
	mocks.ctrl.advanceCanary("podinfo", "default")
	require.NoError(t, assertPhase(mocks.rolloutClient, "podinfo", rolloutsv1.CanaryPhaseFinalising))

	// succeeded
	mocks.ctrl.advanceCanary("podinfo", "default")
	require.NoError(t, assertPhase(mocks.rolloutClient, "podinfo", rolloutsv1.CanaryPhaseSucceeded))
}

func TestScheduler_DeploymentBlueGreenAnalysisPhases(t *testing.T) {
	cd := newDeploymentTestCanary()
	cd.Spec.Analysis = &rolloutsv1.CanaryAnalysis{
		Interval:   "0s",
		Threshold:  10,
		Iterations: 2,
	}
	mocks := newDeploymentFixture(cd)

	// initialized
	mocks.ctrl.advanceCanary("podinfo", "default")
	require.NoError(t, assertPhase(mocks.rolloutClient, "podinfo", rolloutsv1.CanaryPhaseInitialized))
	mocks.makePrimaryReady(t)

	// update
	dep2 := newDeploymentTestDeploymentV2()
	_, err := mocks.kubeClient.AppsV1().Deployments("default").Update(context.TODO(), dep2, metav1.UpdateOptions{})
	require.NoError(t, err)

	// detect changes
	mocks.ctrl.advanceCanary("podinfo", "default")
	require.NoError(t, assertPhase(mocks.rolloutClient, "podinfo", rolloutsv1.CanaryPhaseProgressing))
	mocks.makeCanaryReady(t)

	// iterate
	for i := 0; i < 2; i++ {
		mocks.ctrl.advanceCanary("podinfo", "default")
	}
	c, err := mocks.rolloutClient.RolloutsV1beta1().Canaries("default").Get(context.TODO(), "podinfo", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, c.Status.Iterations)

	// route all traffic to canary for the last iteration
	mocks.ctrl.advanceCanary("podinfo", "default")
	primaryWeight, canaryWeight, _, err := mocks.router.GetRoutes(mocks.canary)
	require.NoError(t, err)
	assert.Equal(t, 0, primaryWeight)
	assert.Equal(t, 100, canaryWeight)

	// promote and finalise
	for i := 0; i < 3; i++ {
		mocks.ctrl.advanceCanary("podinfo", "default")
	}
	require.NoError(t, assertPhase(mocks.rolloutClient, "podinfo", rolloutsv1.CanaryPhaseSucceeded))
}

func TestScheduler_DeploymentNewRevisionReset(t *testing.T) {
	cd := newDeploymentTestCanary()
	cd.Spec.Analysis.Interval = "0s"
	mocks := newDeploymentFixture(cd)

	// initialized
	mocks.ctrl.advanceCanary("podinfo", "default")
	mocks.makePrimaryReady(t)

	// first update
	dep2 := newDeploymentTestDeploymentV2()
	_, err := mocks.kubeClient.AppsV1().Deployments("default").Update(context.TODO(), dep2, metav1.UpdateOptions{})
	require.NoError(t, err)

	// detect changes
	mocks.ctrl.advanceCanary("podinfo", "default")
	mocks.makeCanaryReady(t)

	// advance the traffic shift
	mocks.ctrl.advanceCanary("podinfo", "default")

	primaryWeight, canaryWeight, mirrored, err := mocks.router.GetRoutes(mocks.canary)
	require.NoError(t, err)
	assert.Equal(t, 90, primaryWeight)
	assert.Equal(t, 10, canaryWeight)
	assert.False(t, mirrored)

	c, err := mocks.rolloutClient.RolloutsV1beta1().Canaries("default").Get(context.TODO(), "podinfo", metav1.GetOptions{})
	require.NoError(t, err)
	firstRunID := c.Status.AnalysisRunID
	assert.NotEmpty(t, firstRunID)

	// second update while the analysis is underway
	dep2.Spec.Template.Spec.ServiceAccountName = "test"
	_, err = mocks.kubeClient.AppsV1().Deployments("default").Update(context.TODO(), dep2, metav1.UpdateOptions{})
	require.NoError(t, err)

	// detect changes and reset the analysis
	mocks.ctrl.advanceCanary("podinfo", "default")

	primaryWeight, canaryWeight, mirrored, err = mocks.router.GetRoutes(mocks.canary)
	require.NoError(t, err)
	assert.Equal(t, 100, primaryWeight)
	assert.Equal(t, 0, canaryWeight)
	assert.False(t, mirrored)

	c, err = mocks.rolloutClient.RolloutsV1beta1().Canaries("default").Get(context.TODO(), "podinfo", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, rolloutsv1.CanaryPhaseProgressing, c.Status.Phase)
	assert.Equal(t, 0, c.Status.CanaryWeight)
	assert.NotEqual(t, firstRunID, c.Status.AnalysisRunID)
}

func TestScheduler_DeploymentPromotion(t *testing.T) {
	cd := newDeploymentTestCanary()
	cd.Spec.Analysis.Interval = "0s"
	mocks := newDeploymentFixture(cd)

	// initialized
	mocks.ctrl.advanceCanary("podinfo", "default")
	mocks.makePrimaryReady(t)

	// update the workload and its configs
	dep2 := newDeploymentTestDeploymentV2()
	_, err := mocks.kubeClient.AppsV1().Deployments("default").Update(context.TODO(), dep2, metav1.UpdateOptions{})
	require.NoError(t, err)

	config2 := newDeploymentTestConfigMapV2()
	_, err = mocks.kubeClient.CoreV1().ConfigMaps("default").Update(context.TODO(), config2, metav1.UpdateOptions{})
	require.NoError(t, err)

	secret2 := newDeploymentTestSecretV2()
	_, err = mocks.kubeClient.CoreV1().Secrets("default").Update(context.TODO(), secret2, metav1.UpdateOptions{})
	require.NoError(t, err)

	// detect changes
	mocks.ctrl.advanceCanary("podinfo", "default")
	require.NoError(t, assertPhase(mocks.rolloutClient, "podinfo", rolloutsv1.CanaryPhaseProgressing))
	mocks.makeCanaryReady(t)

	// shift traffic up to the max weight
	for i := 0; i < 5; i++ {
		mocks.ctrl.advanceCanary("podinfo", "default")
	}
	_, canaryWeight, _, err := mocks.router.GetRoutes(mocks.canary)
	require.NoError(t, err)
	assert.Equal(t, 50, canaryWeight)

	// promote
	mocks.ctrl.advanceCanary("podinfo", "default")
	require.NoError(t, assertPhase(mocks.rolloutClient, "podinfo", rolloutsv1.CanaryPhasePromoting))

	// the primary got the canary spec and configs
	primaryDep, err := mocks.kubeClient.AppsV1().Deployments("default").Get(context.TODO(), "podinfo-primary", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "quay.io/stefanprodan/podinfo:1.2.1", primaryDep.Spec.Template.Spec.Containers[0].Image)

	configPrimary, err := mocks.kubeClient.CoreV1().ConfigMaps("default").Get(context.TODO(), "podinfo-config-env-primary", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, config2.Data["color"], configPrimary.Data["color"])

	secretPrimary, err := mocks.kubeClient.CoreV1().Secrets("default").Get(context.TODO(), "podinfo-secret-vol-primary", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, secret2.Data["apiKey"], secretPrimary.Data["apiKey"])

	// finalise and scale the canary to zero
	mocks.ctrl.advanceCanary("podinfo", "default")
	mocks.ctrl.advanceCanary("podinfo", "default")
	require.NoError(t, assertPhase(mocks.rolloutClient, "podinfo", rolloutsv1.CanaryPhaseSucceeded))

	dp, err := mocks.kubeClient.AppsV1().Deployments("default").Get(context.TODO(), "podinfo", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(0), *dp.Spec.Replicas)
}

func TestScheduler_DeploymentMirroring(t *testing.T) {
	mocks := newDeploymentFixture(newDeploymentTestCanaryMirror())

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

	// mirror the traffic for one interval before shifting any weight
	mocks.ctrl.advanceCanary("podinfo", "default")
	primaryWeight, canaryWeight, mirrored, err := mocks.router.GetRoutes(mocks.canary)
	require.NoError(t, err)
	assert.Equal(t, 100, primaryWeight)
	assert.Equal(t, 0, canaryWeight)
	assert.True(t, mirrored)

	// stop the mirroring and start the traffic shift
	mocks.ctrl.advanceCanary("podinfo", "default")
	primaryWeight, canaryWeight, mirrored, err = mocks.router.GetRoutes(mocks.canary)
	require.NoError(t, err)
	assert.Equal(t, 90, primaryWeight)
	assert.Equal(t, 10, canaryWeight)
	assert.False(t, mirrored)
}

func TestScheduler_DeploymentABTesting(t *testing.T) {
	mocks := newDeploymentFixture(newDeploymentTestCanaryAB())

	// initialized
	mocks.ctrl.advanceCanary("podinfo", "default")
	mocks.makePrimaryReady(t)

	// update
	dep2 := newDeploymentTestDeploymentV2()
	_, err := mocks.kubeClient.AppsV1().Deployments("default").Update(context.TODO(), dep2, metav1.UpdateOptions{})
	require.NoError(t, err)

	// detect changes
	mocks.ctrl.advanceCanary("podinfo", "default")
	require.NoError(t, assertPhase(mocks.rolloutClient, "podinfo", rolloutsv1.CanaryPhaseProgressing))
	mocks.makeCanaryReady(t)

	// run the iterations
	for i := 0; i < 2; i++ {
		mocks.ctrl.advanceCanary("podinfo", "default")
	}
	c, err := mocks.rolloutClient.RolloutsV1beta1().Canaries("default").Get(context.TODO(), "podinfo", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, c.Status.Iterations)

	// promote and finalise
	for i := 0; i < 3; i++ {
		mocks.ctrl.advanceCanary("podinfo", "default")
	}
	require.NoError(t, assertPhase(mocks.rolloutClient, "podinfo", rolloutsv1.CanaryPhaseSucceeded))
}

func TestScheduler_DeploymentPortDiscovery(t *testing.T) {
	mocks := newDeploymentFixture(nil)

	// enable port discovery
	cd, err := mocks.rolloutClient.RolloutsV1beta1().Canaries("default").Get(context.TODO(), "podinfo", metav1.GetOptions{})
	require.NoError(t, err)
	cd.Spec.Service.PortDiscovery = true
	_, err = mocks.rolloutClient.RolloutsV1beta1().Canaries("default").Update(context.TODO(), cd, metav1.UpdateOptions{})
	require.NoError(t, err)

	mocks.ctrl.advanceCanary("podinfo", "default")

	canarySvc, err := mocks.kubeClient.CoreV1().Services("default").Get(context.TODO(), "podinfo-canary", metav1.GetOptions{})
	require.NoError(t, err)
	require.Len(t, canarySvc.Spec.Ports, 3)

	matchPorts := func(lookup string) bool {
		switch lookup {
		case
			"http 9898",
			"http-metrics 8080",
			"tcp-podinfo-2-0 8888":
			return true
		}
		return false
	}

	for _, port := range canarySvc.Spec.Ports {
		require.True(t, matchPorts(fmt.Sprintf("%s %v", port.Name, port.Port)))
	}
}

func TestScheduler_DeploymentTargetPortNumber(t *testing.T) {
	mocks := newDeploymentFixture(nil)

	cd, err := mocks.rolloutClient.RolloutsV1beta1().Canaries("default").Get(context.TODO(), "podinfo", metav1.GetOptions{})
	require.NoError(t, err)
	cd.Spec.Service.Port = 80
	cd.Spec.Service.TargetPort = intstr.FromInt(9898)
	cd.Spec.Service.PortDiscovery = true
	_, err = mocks.rolloutClient.RolloutsV1beta1().Canaries("default").Update(context.TODO(), cd, metav1.UpdateOptions{})
	require.NoError(t, err)

	mocks.ctrl.advanceCanary("podinfo", "default")

	canarySvc, err := mocks.kubeClient.CoreV1().Services("default").Get(context.TODO(), "podinfo-canary", metav1.GetOptions{})
	require.NoError(t, err)
	require.Len(t, canarySvc.Spec.Ports, 3)

	matchPorts := func(lookup string) bool {
		switch lookup {
		case
			"http 80",
			"http-metrics 8080",
			"tcp-podinfo-2-0 8888":
			return true
		}
		return false
	}

	for _, port := range canarySvc.Spec.Ports {
		require.True(t, matchPorts(fmt.Sprintf("%s %v", port.Name, port.Port)))
	}
}

func TestScheduler_DeploymentTargetPortName(t *testing.T) {
	mocks := newDeploymentFixture(nil)

	cd, err := mocks.rolloutClient.RolloutsV1beta1().Canaries("default").Get(context.TODO(), "podinfo", metav1.GetOptions{})
	require.NoError(t, err)
	cd.Spec.Service.Port = 8081
	cd.Spec.Service.TargetPort = intstr.FromString("http")
	cd.Spec.Service.PortDiscovery = true
	_, err = mocks.rolloutClient.RolloutsV1beta1().Canaries("default").Update(context.TODO(), cd, metav1.UpdateOptions{})
	require.NoError(t, err)

	mocks.ctrl.advanceCanary("podinfo", "default")

	canarySvc, err := mocks.kubeClient.CoreV1().Services("default").Get(context.TODO(), "podinfo-canary", metav1.GetOptions{})
	require.NoError(t, err)
	require.Len(t, canarySvc.Spec.Ports, 3)

	matchPorts := func(lookup string) bool {
		switch lookup {
		case
			"http 8081",
			"http-metrics 8080",
			"tcp-podinfo-2-0 8888":
			return true
		}
		return false
	}

	for _, port := range canarySvc.Spec.Ports {
		require.True(t, matchPorts(fmt.Sprintf("%s %v", port.Name, port.Port)))
	}
}

func TestScheduler_DeploymentSuspend(t *testing.T) {
	mocks := newDeploymentFixture(nil)

	// initialized
	mocks.ctrl.advanceCanary("podinfo", "default")
	mocks.makePrimaryReady(t)

	// suspend
	cd, err := mocks.rolloutClient.RolloutsV1beta1().Canaries("default").Get(context.TODO(), "podinfo", metav1.GetOptions{})
	require.NoError(t, err)
	cd.Spec.Suspend = true
	_, err = mocks.rolloutClient.RolloutsV1beta1().Canaries("default").Update(context.TODO(), cd, metav1.UpdateOptions{})
	require.NoError(t, err)

	// update
	dep2 := newDeploymentTestDeploymentV2()
	_, err = mocks.kubeClient.AppsV1().Deployments("default").Update(context.TODO(), dep2, metav1.UpdateOptions{})
	require.NoError(t, err)

	// a suspended canary must not start the analysis
	mocks.ctrl.advanceCanary("podinfo", "default")
	require.NoError(t, assertPhase(mocks.rolloutClient, "podinfo", rolloutsv1.CanaryPhaseInitialized))
}
