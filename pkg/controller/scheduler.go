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
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/util/retry"

	rolloutsv1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
	"github.com/MoeGolibrary/rollouts/pkg/canary"
	"github.com/MoeGolibrary/rollouts/pkg/metrics/providers"
	"github.com/MoeGolibrary/rollouts/pkg/router"
)

// totalWeight is the weight of the apex service, the primary and canary
// weights always sum up to it
const totalWeight = 100

// maxTickInterval caps the job ticker so confirmation gates and webhooks
// are re-evaluated even when long analysis intervals are configured
const maxTickInterval = 30 * time.Second

// scheduleCanaries synchronizes the in-memory canary registry with the
// scheduler jobs, one job per canary keyed by name.namespace
func (c *Controller) scheduleCanaries() {
	current := make(map[string]string)
	stats := make(map[string]int)

	c.canaries.Range(func(key interface{}, value interface{}) bool {
		cn := value.(*rolloutsv1.Canary)

		// format: <name>.<namespace>
		name := key.(string)
		current[name] = fmt.Sprintf("%s.%s", cn.Spec.TargetRef.Name, cn.Namespace)

		job, exists := c.jobs[name]
		// schedule new job or restart the existing one if the interval changed
		if !exists || job.GetCanaryAnalysisInterval() != analysisTickInterval(cn) {
			if exists {
				job.Stop()
			}

			newJob := CanaryJob{
				Name:             cn.Name,
				Namespace:        cn.Namespace,
				function:         c.advanceCanary,
				done:             make(chan bool),
				ticker:           time.NewTicker(analysisTickInterval(cn)),
				analysisInterval: analysisTickInterval(cn),
			}

			c.jobs[name] = newJob
			newJob.Start()
		}

		stats[cn.Namespace]++
		return true
	})

	// cleanup deleted jobs
	for job := range c.jobs {
		if _, exists := current[job]; !exists {
			c.jobs[job].Stop()
			delete(c.jobs, job)
		}
	}

	// check if multiple canaries share the same target
	targets := make(map[string]bool)
	for canaryName, target := range current {
		if targets[target] {
			c.logger.With("canary", canaryName).
				Errorf("Bad things will happen! Found more than one canary with the same target %s", target)
		} else {
			targets[target] = true
		}
	}

	// set the canaries total gauge
	for namespace, total := range stats {
		c.recorder.SetTotal(namespace, total)
	}
}

// analysisTickInterval bounds the job ticker, confirmation gates need to be
// polled even when the analysis interval is long
func analysisTickInterval(cd *rolloutsv1.Canary) time.Duration {
	interval := cd.GetAnalysisInterval()
	if interval > maxTickInterval {
		return maxTickInterval
	}
	if interval < time.Second {
		return time.Second
	}
	return interval
}

// advanceCanary performs a single reconciliation pass for the given canary
func (c *Controller) advanceCanary(name string, namespace string) {
	begin := time.Now()
	// check if the canary exists
	cd, err := c.rolloutClient.RolloutsV1beta1().Canaries(namespace).Get(context.TODO(), name, metav1.GetOptions{})
	if err != nil {
		c.logger.With("canary", fmt.Sprintf("%s.%s", name, namespace)).
			Errorf("Canary %s.%s not found", name, namespace)
		return
	}

	if cd.Spec.Suspend {
		c.logger.With("canary", fmt.Sprintf("%s.%s", name, namespace)).
			Debug("skipping canary run as object is suspended")
		return
	}

	// override the global provider if one is specified in the canary spec
	provider := c.meshProvider
	if cd.Spec.Provider != "" {
		provider = cd.Spec.Provider
	}

	// init controller based on target kind
	canaryController := c.canaryFactory.Controller(cd.Spec.TargetRef.Kind)

	labelSelector, labelValue, ports, err := canaryController.GetMetadata(cd)
	if err != nil {
		c.recordEventWarningf(cd, "%v", err)
		return
	}

	// init scaler reconciler based on autoscaler kind
	var scalerReconciler canary.ScalerReconciler
	if cd.Spec.AutoscalerRef != nil {
		scalerReconciler = c.canaryFactory.ScalerReconciler(cd.Spec.AutoscalerRef.Kind)
	}

	// create the canary and primary ClusterIP services
	kubeRouter := c.routerFactory.KubernetesRouter(labelSelector, labelValue, ports)
	if err := kubeRouter.Initialize(cd); err != nil {
		c.recordEventErrorf(cd, "%v", err)
		return
	}

	// set the initializing phase and verify the metrics providers
	if cd.Status.Phase == "" || cd.Status.Phase == rolloutsv1.CanaryPhaseInitializing {
		if err := c.setPhaseInitializing(cd); err != nil {
			c.logger.With("canary", fmt.Sprintf("%s.%s", name, namespace)).Errorf("%v", err)
			return
		}
		if err := c.checkMetricProviderAvailability(cd); err != nil {
			c.recordEventErrorf(cd, "Error checking metric providers: %v", err)
			return
		}
	}

	// init mesh router
	meshRouter := c.routerFactory.MeshRouter(provider)

	// create the primary workload
	retriable, err := canaryController.Initialize(cd)
	if err != nil {
		if !retriable {
			c.recordEventWarningf(cd, "Rolling back %s.%s progress deadline exceeded %v", cd.Name, cd.Namespace, err)
			c.rollback(cd, canaryController, meshRouter, scalerReconciler)
			return
		}
		c.recordEventWarningf(cd, "%v", err)
		return
	}

	if cd.Status.Phase == "" || cd.Status.Phase == rolloutsv1.CanaryPhaseInitializing {
		// create the primary autoscaler and pause the target one
		if scalerReconciler != nil {
			if err := scalerReconciler.ReconcilePrimaryScaler(cd, true); err != nil {
				c.recordEventWarningf(cd, "%v", err)
				return
			}
		}

		// route all traffic to primary
		if err := kubeRouter.Reconcile(cd); err != nil {
			c.recordEventWarningf(cd, "%v", err)
			return
		}

		// shutdown the canary workload
		if err := canaryController.ScaleToZero(cd); err != nil {
			c.recordEventWarningf(cd, "%v", err)
			return
		}
		if scalerReconciler != nil {
			if err := scalerReconciler.PauseTargetScaler(cd); err != nil {
				c.recordEventWarningf(cd, "%v", err)
				return
			}
		}

		// create or update the mesh routes
		if err := meshRouter.Reconcile(cd); err != nil {
			c.recordEventWarningf(cd, "%v", err)
			return
		}

		c.setPhaseInitialized(cd, canaryController)
		return
	}

	// take over an existing virtual service or ingress
	// runs after the primary is ready to ensure zero downtime
	if err := kubeRouter.Reconcile(cd); err != nil {
		c.recordEventWarningf(cd, "%v", err)
		return
	}

	// check for changes
	shouldAdvance, err := c.shouldAdvance(cd, canaryController)
	if err != nil {
		c.recordEventWarningf(cd, "%v", err)
		return
	}

	if !shouldAdvance {
		c.recorder.SetStatus(cd, cd.Status.Phase)
		return
	}

	// check primary status
	retriable, err = canaryController.IsPrimaryReady(cd)
	if err != nil {
		c.recordEventWarningf(cd, "%v", err)
		if !retriable {
			c.recordEventWarningf(cd, "Rolling back %s.%s progress deadline exceeded %v", cd.Name, cd.Namespace, err)
			c.rollback(cd, canaryController, meshRouter, scalerReconciler)
		}
		return
	}

	// get the routing settings
	primaryWeight, canaryWeight, mirrored, err := meshRouter.GetRoutes(cd)
	if err != nil {
		c.recordEventWarningf(cd, "%v", err)
		return
	}

	c.recorder.SetWeight(cd, primaryWeight, canaryWeight)

	// check if canary analysis should start (canary revision changes) or continue
	if ok := c.checkCanaryStatus(cd, canaryController, scalerReconciler, shouldAdvance); !ok {
		return
	}

	// check if the canary revision changed during the analysis
	if restart := c.hasCanaryRevisionChanged(cd, canaryController); restart {
		c.recordEventInfof(cd, "New revision detected! Restarting analysis for %s.%s",
			cd.Spec.TargetRef.Name, cd.Namespace)

		// route all traffic back to primary
		if err := meshRouter.SetRoutes(cd, totalWeight, 0, false); err != nil {
			c.recordEventWarningf(cd, "%v", err)
			return
		}

		// reset the analysis and start over with a new run id
		status := rolloutsv1.CanaryStatus{
			Phase:         rolloutsv1.CanaryPhaseProgressing,
			AnalysisRunID: uuid.NewString(),
			CanaryWeight:  0,
			FailedChecks:  0,
			Iterations:    0,
		}
		if err := canaryController.SyncStatus(cd, status); err != nil {
			c.recordEventWarningf(cd, "%v", err)
		}
		return
	}

	defer func() {
		c.recorder.SetDuration(cd, time.Since(begin))
	}()

	// check canary status
	retriable, err = canaryController.IsCanaryReady(cd)
	if err != nil && retriable {
		c.recordEventWarningf(cd, "%v", err)
		return
	}

	// check if analysis should be skipped
	if skip := c.shouldSkipAnalysis(cd, canaryController, scalerReconciler, meshRouter, retriable); skip {
		return
	}

	// check if we should rollback
	if cd.Status.Phase == rolloutsv1.CanaryPhaseProgressing ||
		cd.Status.Phase == rolloutsv1.CanaryPhaseWaitingPromotion {
		if ok := c.runRollbackHooks(cd, cd.Status.Phase); ok {
			c.recordEventWarningf(cd, "Rolling back %s.%s manual webhook invoked", cd.Name, cd.Namespace)
			c.alert(cd, "Rolling back manual webhook invoked", false, rolloutsv1.SeverityWarn)
			c.rollback(cd, canaryController, meshRouter, scalerReconciler)
			return
		}
	}

	// route all traffic to primary if promoting
	if cd.Status.Phase == rolloutsv1.CanaryPhasePromoting {
		if scalerReconciler != nil {
			if err := scalerReconciler.ReconcilePrimaryScaler(cd, false); err != nil {
				c.recordEventWarningf(cd, "%v", err)
				return
			}
		}
		c.runPromotionTrafficShift(cd, canaryController, meshRouter, provider, canaryWeight, primaryWeight)
		return
	}

	// shutdown the canary if the promotion is finished
	if cd.Status.Phase == rolloutsv1.CanaryPhaseFinalising {
		c.finalisePromotion(cd, canaryController, scalerReconciler)
		return
	}

	// rollback if the failed checks threshold is reached or the canary is unhealthy
	if cd.Status.Phase == rolloutsv1.CanaryPhaseProgressing ||
		cd.Status.Phase == rolloutsv1.CanaryPhaseWaitingPromotion {
		if !retriable || cd.Status.FailedChecks >= cd.GetAnalysisThreshold() {
			c.recordEventWarningf(cd, "Rolling back %s.%s failed checks threshold reached %v",
				cd.Name, cd.Namespace, cd.Status.FailedChecks)
			c.alert(cd, fmt.Sprintf("Failed checks threshold reached %v", cd.Status.FailedChecks),
				false, rolloutsv1.SeverityError)
			c.rollback(cd, canaryController, meshRouter, scalerReconciler)
			return
		}
	}

	// run the pre-rollout hooks before any traffic is routed to the canary
	if canaryWeight == 0 && cd.Status.Iterations == 0 &&
		!(cd.GetAnalysis().Mirror && mirrored) {
		if ok := c.runPreRolloutHooks(cd); !ok {
			if err := canaryController.SetStatusFailedChecks(cd, cd.Status.FailedChecks+1); err != nil {
				c.recordEventWarningf(cd, "%v", err)
			}
			return
		}
	} else {
		ok, err := c.runAnalysis(cd)
		if err != nil {
			if errors.Is(err, providers.ErrSkipAnalysis) {
				if skip := c.shouldSkipAnalysis(cd, canaryController, scalerReconciler, meshRouter, retriable); skip {
					return
				}
			} else if errors.Is(err, providers.ErrTooManyRequests) {
				// the metrics backend is throttling, back off without counting a failed check
				return
			} else {
				// missing data or an unreachable backend is inconclusive, not a failed check
				c.escalateInconclusive(cd, canaryController)
				return
			}
		}
		if !ok {
			if err := canaryController.SetStatusFailedChecks(cd, cd.Status.FailedChecks+1); err != nil {
				c.recordEventWarningf(cd, "%v", err)
			}
			return
		}
		// a conclusive check resets the inconclusive streak
		if cd.Status.InconclusiveChecks > 0 {
			if err := canaryController.SetStatusInconclusiveChecks(cd, 0); err != nil {
				c.recordEventWarningf(cd, "%v", err)
			}
		}
	}

	// without a mesh provider traffic shifting is not possible,
	// fall back to a Blue/Green iteration based rollout
	if provider == rolloutsv1.KubernetesProvider {
		if len(cd.GetAnalysis().Match) > 0 {
			cd.Spec.Analysis.Match = nil
		}
		if cd.GetAnalysis().Iterations == 0 {
			cd.Spec.Analysis.Iterations = 10
		}
	}

	// gate the analysis on the configured interval
	if cd.Status.LastTransitionTime.Add(cd.GetAnalysisInterval()).After(begin) {
		return
	}

	// strategy: A/B testing
	if len(cd.GetAnalysis().Match) > 0 && cd.GetAnalysis().Iterations > 0 {
		c.runAB(cd, canaryController, meshRouter)
		return
	}

	// strategy: Blue/Green
	if cd.GetAnalysis().Iterations > 0 {
		c.runBlueGreen(cd, canaryController, meshRouter, provider, mirrored)
		return
	}

	// strategy: Canary progressive traffic increase
	c.runCanary(cd, canaryController, meshRouter, mirrored, canaryWeight, primaryWeight)
}

// runCanary performs a progressive traffic shift step or starts the promotion
func (c *Controller) runCanary(canary *rolloutsv1.Canary, canaryController canary.Controller,
	meshRouter router.Interface, mirrored bool, canaryWeight int, primaryWeight int) {
	primaryName := fmt.Sprintf("%s-primary", canary.Spec.TargetRef.Name)
	maxWeight := c.maxWeight(canary)

	// increase the canary traffic weight
	if canaryWeight < maxWeight {
		// run the confirm-traffic-increase gate
		if ok := c.runConfirmTrafficIncreaseHooks(canary); !ok {
			return
		}

		// mirror the traffic for one interval before shifting any weight
		if canary.GetAnalysis().Mirror && canaryWeight == 0 {
			if !mirrored {
				mirrored = true
				primaryWeight = totalWeight
				canaryWeight = 0
			} else {
				mirrored = false
				canaryWeight = c.nextCanaryWeight(canary, 0, maxWeight)
				primaryWeight = totalWeight - canaryWeight
			}
			c.logger.With("canary", fmt.Sprintf("%s.%s", canary.Name, canary.Namespace)).
				Infof("Running mirror step %d/%d/%t", primaryWeight, canaryWeight, mirrored)
		} else {
			canaryWeight = c.nextCanaryWeight(canary, canaryWeight, maxWeight)
			primaryWeight = totalWeight - canaryWeight
			mirrored = false
		}

		if err := meshRouter.SetRoutes(canary, primaryWeight, canaryWeight, mirrored); err != nil {
			c.recordEventWarningf(canary, "%v", err)
			return
		}

		// attribute range routing uses the iterations counter as the step index
		if ar := canary.Spec.Service.AttributeRouting; ar != nil && ar.Enabled {
			if err := canaryController.SetStatusIterations(canary, canary.Status.Iterations+1); err != nil {
				c.recordEventWarningf(canary, "%v", err)
				return
			}
		}

		if err := canaryController.SetStatusWeight(canary, canaryWeight); err != nil {
			c.recordEventWarningf(canary, "%v", err)
			return
		}

		c.recorder.SetWeight(canary, primaryWeight, canaryWeight)
		c.recordEventInfof(canary, "Advance %s.%s canary weight %v", canary.Name, canary.Namespace, canaryWeight)
		return
	}

	// promote the canary spec over the primary
	if canaryWeight >= maxWeight {
		// run the confirm-promotion gate
		if ok := c.runConfirmPromotionHooks(canary, canaryController); !ok {
			return
		}

		c.recordEventInfof(canary, "Copying %s.%s template spec to %s.%s",
			canary.Spec.TargetRef.Name, canary.Namespace, primaryName, canary.Namespace)
		if err := canaryController.Promote(canary); err != nil {
			c.recordEventWarningf(canary, "%v", err)
			return
		}

		if err := canaryController.SetStatusPhase(canary, rolloutsv1.CanaryPhasePromoting); err != nil {
			c.recordEventWarningf(canary, "%v", err)
		}
	}
}

// runAB routes the matched requests to the canary and iterates the analysis
func (c *Controller) runAB(canary *rolloutsv1.Canary, canaryController canary.Controller, meshRouter router.Interface) {
	primaryName := fmt.Sprintf("%s-primary", canary.Spec.TargetRef.Name)

	// route the header matched traffic to canary and increment the iterations
	if canary.GetAnalysis().Iterations > canary.Status.Iterations {
		if err := meshRouter.SetRoutes(canary, 0, totalWeight, false); err != nil {
			c.recordEventWarningf(canary, "%v", err)
			return
		}
		c.recorder.SetWeight(canary, 0, totalWeight)

		if err := canaryController.SetStatusIterations(canary, canary.Status.Iterations+1); err != nil {
			c.recordEventWarningf(canary, "%v", err)
			return
		}
		c.recordEventInfof(canary, "Advance %s.%s canary iteration %v/%v",
			canary.Name, canary.Namespace, canary.Status.Iterations+1, canary.GetAnalysis().Iterations)
		return
	}

	// promote the canary spec over the primary
	if canary.GetAnalysis().Iterations == canary.Status.Iterations {
		if ok := c.runConfirmPromotionHooks(canary, canaryController); !ok {
			return
		}

		c.recordEventInfof(canary, "Copying %s.%s template spec to %s.%s",
			canary.Spec.TargetRef.Name, canary.Namespace, primaryName, canary.Namespace)
		if err := canaryController.Promote(canary); err != nil {
			c.recordEventWarningf(canary, "%v", err)
			return
		}

		if err := canaryController.SetStatusPhase(canary, rolloutsv1.CanaryPhasePromoting); err != nil {
			c.recordEventWarningf(canary, "%v", err)
		}
	}
}

// runBlueGreen iterates the analysis, routes the full traffic to the canary
// for the last iteration and then starts the promotion
func (c *Controller) runBlueGreen(canary *rolloutsv1.Canary, canaryController canary.Controller,
	meshRouter router.Interface, provider string, mirrored bool) {
	primaryName := fmt.Sprintf("%s-primary", canary.Spec.TargetRef.Name)

	// increment the iterations
	if canary.GetAnalysis().Iterations > canary.Status.Iterations {
		// mirror the traffic for the whole analysis
		if canary.GetAnalysis().Mirror && !mirrored {
			if err := meshRouter.SetRoutes(canary, totalWeight, 0, true); err != nil {
				c.recordEventWarningf(canary, "%v", err)
				return
			}
			c.logger.With("canary", fmt.Sprintf("%s.%s", canary.Name, canary.Namespace)).
				Infof("Start traffic mirroring")
		}

		if err := canaryController.SetStatusIterations(canary, canary.Status.Iterations+1); err != nil {
			c.recordEventWarningf(canary, "%v", err)
			return
		}
		c.recordEventInfof(canary, "Advance %s.%s canary iteration %v/%v",
			canary.Name, canary.Namespace, canary.Status.Iterations+1, canary.GetAnalysis().Iterations)
		return
	}

	// route all traffic to the canary before promotion
	if canary.GetAnalysis().Iterations == canary.Status.Iterations {
		if provider != rolloutsv1.KubernetesProvider {
			if canary.GetAnalysis().Mirror {
				c.recordEventInfof(canary, "Stop traffic mirroring and route all traffic to canary")
			} else {
				c.recordEventInfof(canary, "Routing all traffic to canary")
			}
			if err := meshRouter.SetRoutes(canary, 0, totalWeight, false); err != nil {
				c.recordEventWarningf(canary, "%v", err)
				return
			}
			c.recorder.SetWeight(canary, 0, totalWeight)
		}

		if err := canaryController.SetStatusIterations(canary, canary.Status.Iterations+1); err != nil {
			c.recordEventWarningf(canary, "%v", err)
		}
		return
	}

	// promote the canary spec over the primary
	if canary.GetAnalysis().Iterations < canary.Status.Iterations {
		if ok := c.runConfirmPromotionHooks(canary, canaryController); !ok {
			return
		}

		c.recordEventInfof(canary, "Copying %s.%s template spec to %s.%s",
			canary.Spec.TargetRef.Name, canary.Namespace, primaryName, canary.Namespace)
		if err := canaryController.Promote(canary); err != nil {
			c.recordEventWarningf(canary, "%v", err)
			return
		}

		if err := canaryController.SetStatusPhase(canary, rolloutsv1.CanaryPhasePromoting); err != nil {
			c.recordEventWarningf(canary, "%v", err)
		}
	}
}

// runPromotionTrafficShift moves the traffic back to the primary in steps
// while the primary rolling update is underway
func (c *Controller) runPromotionTrafficShift(canary *rolloutsv1.Canary, canaryController canary.Controller,
	meshRouter router.Interface, provider string, canaryWeight int, primaryWeight int) {
	// finalise the promotion in one go when no promotion step weight is set
	if canary.GetAnalysis().StepWeightPromotion == 0 || provider == rolloutsv1.KubernetesProvider {
		if err := canaryController.SetStatusPhase(canary, rolloutsv1.CanaryPhaseFinalising); err != nil {
			c.recordEventWarningf(canary, "%v", err)
		}
		return
	}

	// route all traffic to the primary when the canary weight reaches zero
	if canaryWeight == 0 {
		if err := meshRouter.SetRoutes(canary, totalWeight, 0, false); err != nil {
			c.recordEventWarningf(canary, "%v", err)
			return
		}
		if err := canaryController.SetStatusPhase(canary, rolloutsv1.CanaryPhaseFinalising); err != nil {
			c.recordEventWarningf(canary, "%v", err)
		}
		return
	}

	// decrease the canary weight
	canaryWeight -= canary.GetAnalysis().StepWeightPromotion
	if canaryWeight < 0 {
		canaryWeight = 0
	}
	primaryWeight = totalWeight - canaryWeight

	if err := meshRouter.SetRoutes(canary, primaryWeight, canaryWeight, false); err != nil {
		c.recordEventWarningf(canary, "%v", err)
		return
	}
	if err := canaryController.SetStatusWeight(canary, canaryWeight); err != nil {
		c.recordEventWarningf(canary, "%v", err)
		return
	}

	c.recorder.SetWeight(canary, primaryWeight, canaryWeight)
	c.recordEventInfof(canary, "Advance %s.%s primary weight %v", canary.Name, canary.Namespace, primaryWeight)
}

// finalisePromotion scales the canary to zero and marks the rollout as succeeded
func (c *Controller) finalisePromotion(canary *rolloutsv1.Canary, canaryController canary.Controller,
	scalerReconciler canary.ScalerReconciler) {
	if scalerReconciler != nil {
		if err := scalerReconciler.PauseTargetScaler(canary); err != nil {
			c.recordEventWarningf(canary, "%v", err)
			return
		}
	}

	if err := canaryController.ScaleToZero(canary); err != nil {
		c.recordEventWarningf(canary, "%v", err)
		return
	}

	if err := canaryController.SetStatusPhase(canary, rolloutsv1.CanaryPhaseSucceeded); err != nil {
		c.recordEventWarningf(canary, "%v", err)
		return
	}

	c.recorder.SetStatus(canary, rolloutsv1.CanaryPhaseSucceeded)
	c.runPostRolloutHooks(canary, rolloutsv1.CanaryPhaseSucceeded)
	c.recordEventInfof(canary, "Promotion completed! Scaling down %s.%s", canary.Spec.TargetRef.Name, canary.Namespace)
	c.alert(canary, "Canary analysis completed successfully, promotion finished.",
		false, rolloutsv1.SeveritySuccess)
}

// shouldSkipAnalysis promotes the canary straight away when the analysis is
// skipped by spec or by a skip webhook, an unhealthy canary is rolled back
func (c *Controller) shouldSkipAnalysis(canary *rolloutsv1.Canary, canaryController canary.Controller,
	scalerReconciler canary.ScalerReconciler, meshRouter router.Interface, retriable bool) bool {
	if !canary.SkipAnalysis() && !c.runSkipHooks(canary, canary.Status.Phase) {
		return false
	}

	// regardless of the skip, rollback if the canary failed to progress
	if !retriable {
		c.recordEventWarningf(canary, "Rolling back %s.%s progress deadline exceeded", canary.Name, canary.Namespace)
		c.rollback(canary, canaryController, meshRouter, scalerReconciler)
		return true
	}

	// route all traffic to primary
	if err := meshRouter.SetRoutes(canary, totalWeight, 0, false); err != nil {
		c.recordEventWarningf(canary, "%v", err)
		return true
	}
	c.recorder.SetWeight(canary, totalWeight, 0)

	// copy the canary spec over the primary
	primaryName := fmt.Sprintf("%s-primary", canary.Spec.TargetRef.Name)
	c.recordEventInfof(canary, "Copying %s.%s template spec to %s.%s",
		canary.Spec.TargetRef.Name, canary.Namespace, primaryName, canary.Namespace)
	if err := canaryController.Promote(canary); err != nil {
		c.recordEventWarningf(canary, "%v", err)
		return true
	}

	if scalerReconciler != nil {
		if err := scalerReconciler.ReconcilePrimaryScaler(canary, false); err != nil {
			c.recordEventWarningf(canary, "%v", err)
			return true
		}
		if err := scalerReconciler.PauseTargetScaler(canary); err != nil {
			c.recordEventWarningf(canary, "%v", err)
			return true
		}
	}

	// shutdown the canary workload
	if err := canaryController.ScaleToZero(canary); err != nil {
		c.recordEventWarningf(canary, "%v", err)
		return true
	}

	// update the status
	if err := canaryController.SyncStatus(canary, rolloutsv1.CanaryStatus{Phase: rolloutsv1.CanaryPhaseSucceeded}); err != nil {
		c.recordEventWarningf(canary, "%v", err)
		return true
	}
	c.recorder.SetStatus(canary, rolloutsv1.CanaryPhaseSucceeded)

	c.runPostRolloutHooks(canary, rolloutsv1.CanaryPhaseSucceeded)
	c.recordEventInfof(canary, "Promotion completed! Canary analysis was skipped for %s.%s",
		canary.Spec.TargetRef.Name, canary.Namespace)
	c.alert(canary, "Canary analysis was skipped, promotion finished.",
		false, rolloutsv1.SeveritySuccess)

	return true
}

// shouldAdvance determines if the canary analysis can proceed,
// a finished canary is re-advanced when its target or configs change
func (c *Controller) shouldAdvance(canary *rolloutsv1.Canary, canaryController canary.Controller) (bool, error) {
	if canary.Status.LastAppliedSpec == "" ||
		canary.Status.Phase == rolloutsv1.CanaryPhaseInitializing ||
		canary.Status.Phase == rolloutsv1.CanaryPhaseProgressing ||
		canary.Status.Phase == rolloutsv1.CanaryPhaseWaiting ||
		canary.Status.Phase == rolloutsv1.CanaryPhaseWaitingPromotion ||
		canary.Status.Phase == rolloutsv1.CanaryPhasePromoting ||
		canary.Status.Phase == rolloutsv1.CanaryPhaseFinalising {
		return true, nil
	}

	newTarget, err := canaryController.HasTargetChanged(canary)
	if err != nil {
		return false, err
	}
	if newTarget {
		return newTarget, nil
	}

	newCfg, err := canaryController.HaveDependenciesChanged(canary)
	if err != nil {
		return false, err
	}

	return newCfg, nil
}

// checkCanaryStatus resumes the canary target and starts the analysis when a
// new revision is detected, returns true if the analysis is underway
func (c *Controller) checkCanaryStatus(canary *rolloutsv1.Canary, canaryController canary.Controller,
	scalerReconciler canary.ScalerReconciler, shouldAdvance bool) bool {
	c.recorder.SetStatus(canary, canary.Status.Phase)
	if canary.Status.Phase == rolloutsv1.CanaryPhaseProgressing ||
		canary.Status.Phase == rolloutsv1.CanaryPhaseWaitingPromotion ||
		canary.Status.Phase == rolloutsv1.CanaryPhasePromoting ||
		canary.Status.Phase == rolloutsv1.CanaryPhaseFinalising {
		return true
	}

	if canary.Status.Phase == "" || canary.Status.Phase == rolloutsv1.CanaryPhaseInitializing {
		return false
	}

	if shouldAdvance {
		// run the confirm-rollout gate
		if isApproved := c.runConfirmRolloutHooks(canary, canaryController); !isApproved {
			return false
		}

		c.recordEventInfof(canary, "New revision detected! Scaling up %s.%s", canary.Spec.TargetRef.Name, canary.Namespace)
		c.alert(canary, "New revision detected, starting canary analysis.",
			true, rolloutsv1.SeverityInfo)

		// resume the target scaler and scale up the canary
		if scalerReconciler != nil {
			if err := scalerReconciler.ResumeTargetScaler(canary); err != nil {
				c.recordEventErrorf(canary, "%v", err)
				return false
			}
		}
		if err := canaryController.ScaleFromZero(canary); err != nil {
			c.recordEventErrorf(canary, "%v", err)
			return false
		}

		status := rolloutsv1.CanaryStatus{
			Phase:         rolloutsv1.CanaryPhaseProgressing,
			AnalysisRunID: uuid.NewString(),
			CanaryWeight:  0,
			FailedChecks:  0,
			Iterations:    0,
		}
		if err := canaryController.SyncStatus(canary, status); err != nil {
			c.recordEventWarningf(canary, "%v", err)
			return false
		}
		c.recorder.SetStatus(canary, rolloutsv1.CanaryPhaseProgressing)
		return false
	}
	return false
}

// hasCanaryRevisionChanged returns true if the canary target or its tracked
// configs changed while the analysis is underway
func (c *Controller) hasCanaryRevisionChanged(canary *rolloutsv1.Canary, canaryController canary.Controller) bool {
	if canary.Status.Phase == rolloutsv1.CanaryPhaseProgressing ||
		canary.Status.Phase == rolloutsv1.CanaryPhaseWaitingPromotion ||
		canary.Status.Phase == rolloutsv1.CanaryPhasePromoting {
		if diff, _ := canaryController.HasTargetChanged(canary); diff {
			return true
		}
		if diff, _ := canaryController.HaveDependenciesChanged(canary); diff {
			return true
		}
	}
	return false
}

// rollback routes all traffic back to the primary, shuts down the canary
// workload and marks the analysis as failed
func (c *Controller) rollback(canary *rolloutsv1.Canary, canaryController canary.Controller,
	meshRouter router.Interface, scalerReconciler canary.ScalerReconciler) {
	if canary.Status.FailedChecks >= canary.GetAnalysisThreshold() {
		c.recordEventWarningf(canary, "Canary failed! Scaling down %s.%s", canary.Name, canary.Namespace)
	}

	// route all traffic back to primary
	if err := meshRouter.SetRoutes(canary, totalWeight, 0, false); err != nil {
		c.recordEventWarningf(canary, "%v", err)
		return
	}

	canaryPhaseFailed := canary.DeepCopy()
	canaryPhaseFailed.Status.Phase = rolloutsv1.CanaryPhaseFailed
	c.alert(canaryPhaseFailed, "Canary analysis failed, rollback finished.",
		false, rolloutsv1.SeverityError)

	c.recorder.SetWeight(canary, totalWeight, 0)

	// shutdown the canary workload
	if scalerReconciler != nil {
		if err := scalerReconciler.PauseTargetScaler(canary); err != nil {
			c.recordEventWarningf(canary, "%v", err)
			return
		}
	}
	if err := canaryController.ScaleToZero(canary); err != nil {
		c.recordEventWarningf(canary, "%v", err)
		return
	}

	// mark the analysis as failed
	if err := canaryController.SyncStatus(canary, rolloutsv1.CanaryStatus{
		Phase:        rolloutsv1.CanaryPhaseFailed,
		CanaryWeight: 0,
	}); err != nil {
		c.recordEventWarningf(canary, "%v", err)
		return
	}

	c.recorder.SetStatus(canary, rolloutsv1.CanaryPhaseFailed)
	c.runPostRolloutHooks(canary, rolloutsv1.CanaryPhaseFailed)
}

// maxWeight returns the maximum weight that can be routed to the canary
func (c *Controller) maxWeight(canary *rolloutsv1.Canary) int {
	analysis := canary.GetAnalysis()
	if len(analysis.StepWeights) > 0 {
		w := analysis.StepWeights[len(analysis.StepWeights)-1]
		if w > totalWeight {
			w = totalWeight
		}
		return w
	}
	if analysis.MaxWeight > 0 {
		return analysis.MaxWeight
	}
	return totalWeight
}

// nextStepWeight returns the traffic increment for the current canary weight
func (c *Controller) nextStepWeight(canary *rolloutsv1.Canary, canaryWeight int) int {
	analysis := canary.GetAnalysis()
	if len(analysis.StepWeights) == 0 {
		if analysis.StepWeight > 0 {
			return analysis.StepWeight
		}
		return 1
	}

	if canaryWeight == 0 {
		return analysis.StepWeights[0]
	}

	// find the current step and return the difference to the next one
	for i, w := range analysis.StepWeights {
		if w != canaryWeight {
			continue
		}
		if i+1 < len(analysis.StepWeights) {
			next := analysis.StepWeights[i+1]
			if next > totalWeight {
				break
			}
			return next - canaryWeight
		}
		break
	}

	// past the last configured step, go straight to the total weight
	return totalWeight - canaryWeight
}

// nextCanaryWeight computes the next canary weight, attribute range routing
// derives it from the hash range percentage instead of the step weights
func (c *Controller) nextCanaryWeight(canary *rolloutsv1.Canary, canaryWeight int, maxWeight int) int {
	if ar := canary.Spec.Service.AttributeRouting; ar != nil && ar.Enabled {
		weight := c.weightCalculator.GetCanaryPercentage(ar, canary.Status.Iterations+1, maxWeight)
		if weight > maxWeight {
			weight = maxWeight
		}
		return weight
	}

	canaryWeight += c.nextStepWeight(canary, canaryWeight)
	if canaryWeight > maxWeight {
		canaryWeight = maxWeight
	}
	return canaryWeight
}

// escalateInconclusive counts checks that produced no verdict, a streak of
// them counts as a single failed check
func (c *Controller) escalateInconclusive(canary *rolloutsv1.Canary, canaryController canary.Controller) {
	inconclusive := canary.Status.InconclusiveChecks + 1
	if inconclusive >= canary.GetInconclusiveThreshold() {
		c.recordEventWarningf(canary, "Halt %s.%s advancement %v inconclusive checks escalated to a failed check",
			canary.Name, canary.Namespace, inconclusive)
		if err := canaryController.SetStatusFailedChecks(canary, canary.Status.FailedChecks+1); err != nil {
			c.recordEventWarningf(canary, "%v", err)
			return
		}
		if err := canaryController.SetStatusInconclusiveChecks(canary, 0); err != nil {
			c.recordEventWarningf(canary, "%v", err)
		}
		return
	}

	c.recordEventWarningf(canary, "Halt %s.%s advancement inconclusive check %v/%v",
		canary.Name, canary.Namespace, inconclusive, canary.GetInconclusiveThreshold())
	if err := canaryController.SetStatusInconclusiveChecks(canary, inconclusive); err != nil {
		c.recordEventWarningf(canary, "%v", err)
	}
}

// setPhaseInitializing sets the initializing phase with retry on conflict
func (c *Controller) setPhaseInitializing(cd *rolloutsv1.Canary) error {
	phase := rolloutsv1.CanaryPhaseInitializing
	firstTry := true
	name, ns := cd.GetName(), cd.GetNamespace()
	err := retry.RetryOnConflict(retry.DefaultBackoff, func() (err error) {
		if !firstTry {
			cd, err = c.rolloutClient.RolloutsV1beta1().Canaries(ns).Get(context.TODO(), name, metav1.GetOptions{})
			if err != nil {
				return fmt.Errorf("canary %s.%s get query error: %w", name, ns, err)
			}
		}

		if ok, conditions := canary.MakeStatusConditions(cd, phase); ok {
			cdCopy := cd.DeepCopy()
			cdCopy.Status.Phase = phase
			cdCopy.Status.LastTransitionTime = metav1.Now()
			cdCopy.Status.Conditions = conditions

			_, err = c.rolloutClient.RolloutsV1beta1().Canaries(cd.Namespace).UpdateStatus(context.TODO(), cdCopy, metav1.UpdateOptions{})
		}

		firstTry = false
		return
	})
	if err != nil {
		return fmt.Errorf("failed after retries: %w", err)
	}
	return nil
}

// setPhaseInitialized marks the end of the bootstrap phase
func (c *Controller) setPhaseInitialized(cd *rolloutsv1.Canary, canaryController canary.Controller) {
	if err := canaryController.SyncStatus(cd, rolloutsv1.CanaryStatus{Phase: rolloutsv1.CanaryPhaseInitialized}); err != nil {
		c.recordEventWarningf(cd, "%v", err)
		return
	}
	c.recorder.SetStatus(cd, rolloutsv1.CanaryPhaseInitialized)
	c.recordEventInfof(cd, "Initialization done! %s.%s", cd.Name, cd.Namespace)
	c.alert(cd, "New deployment detected, initialization completed.",
		true, rolloutsv1.SeverityInfo)
}

// runAnalysis executes the rollout webhooks and the metric checks,
// the returned error classifies inconclusive results
func (c *Controller) runAnalysis(canary *rolloutsv1.Canary) (bool, error) {
	// run external checks
	for _, webhook := range canary.GetAnalysis().Webhooks {
		if webhook.Type == "" || webhook.Type == rolloutsv1.RolloutHook {
			if err := CallWebhook(*canary, rolloutsv1.CanaryPhaseProgressing, webhook); err != nil {
				c.recordEventWarningf(canary, "Halt %s.%s advancement external check %s failed %v",
					canary.Name, canary.Namespace, webhook.Name, err)
				return false, nil
			}
		}
	}

	ok, err := c.runBuiltinMetricChecks(canary)
	if !ok || err != nil {
		return ok, err
	}

	return c.runMetricChecks(canary)
}
