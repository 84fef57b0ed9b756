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
	rolloutsv1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
)

// KubernetesRouter manages the ClusterIP services used for routing
type KubernetesRouter interface {
	// Initialize creates the primary and canary services
	Initialize(canary *rolloutsv1.Canary) error

	// Reconcile creates or updates the apex service
	Reconcile(canary *rolloutsv1.Canary) error

	// Finalize reverts the apex service to the canary workload
	Finalize(canary *rolloutsv1.Canary) error
}

// Interface routes the traffic between the primary and canary backends
type Interface interface {
	// Reconcile creates or updates the traffic routes
	Reconcile(canary *rolloutsv1.Canary) error

	// SetRoutes sets the weights of the primary and canary backends
	SetRoutes(canary *rolloutsv1.Canary, primaryWeight int, canaryWeight int, mirrored bool) error

	// GetRoutes returns the current weights of the primary and canary backends
	GetRoutes(canary *rolloutsv1.Canary) (primaryWeight int, canaryWeight int, mirrored bool, err error)

	// Finalize removes the canary backend from the routes
	Finalize(canary *rolloutsv1.Canary) error
}
