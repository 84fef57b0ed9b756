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
	rolloutsv1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
)

// Controller manages the primary and canary workloads
type Controller interface {
	// IsPrimaryReady checks the primary workload status and returns an error
	// if the workload is in the middle of a rolling update or if the pods are unhealthy
	IsPrimaryReady(canary *rolloutsv1.Canary) (bool, error)

	// IsCanaryReady checks the canary workload status and returns an error
	// if the workload revision is in the middle of a rolling update or if the pods are unhealthy
	IsCanaryReady(canary *rolloutsv1.Canary) (bool, error)

	// GetMetadata returns the pod label selector, label value and svc ports
	GetMetadata(canary *rolloutsv1.Canary) (string, string, map[string]int32, error)

	// SyncStatus updates the canary status
	SyncStatus(canary *rolloutsv1.Canary, status rolloutsv1.CanaryStatus) error

	// SetStatusFailedChecks sets the failed check counter
	SetStatusFailedChecks(canary *rolloutsv1.Canary, val int) error

	// SetStatusWeight sets the canary traffic weight
	SetStatusWeight(canary *rolloutsv1.Canary, val int) error

	// SetStatusIterations sets the iterations counter
	SetStatusIterations(canary *rolloutsv1.Canary, val int) error

	// SetStatusInconclusiveChecks sets the inconclusive check counter
	SetStatusInconclusiveChecks(canary *rolloutsv1.Canary, val int) error

	// SetStatusPhase sets the canary phase
	SetStatusPhase(canary *rolloutsv1.Canary, phase rolloutsv1.CanaryPhase) error

	// Initialize creates the primary workload if needed
	Initialize(canary *rolloutsv1.Canary) (bool, error)

	// Promote copies the canary spec over the primary
	Promote(canary *rolloutsv1.Canary) error

	// HasTargetChanged returns true if the canary workload spec has changed
	HasTargetChanged(canary *rolloutsv1.Canary) (bool, error)

	// HaveDependenciesChanged returns true if the tracked ConfigMaps or Secrets have changed
	HaveDependenciesChanged(canary *rolloutsv1.Canary) (bool, error)

	// ScaleToZero scales the canary workload to zero
	ScaleToZero(canary *rolloutsv1.Canary) error

	// ScaleFromZero restores the canary workload replicas
	ScaleFromZero(canary *rolloutsv1.Canary) error

	// Finalize reverts the canary target to its initial state
	Finalize(canary *rolloutsv1.Canary) error
}
