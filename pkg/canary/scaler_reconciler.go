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

// ScalerReconciler manages the autoscaler of the primary and target workloads
type ScalerReconciler interface {
	// ReconcilePrimaryScaler creates or updates the primary autoscaler
	// derived from the target one, when init is set replica bounds are
	// copied even if the primary scaler already exists
	ReconcilePrimaryScaler(canary *rolloutsv1.Canary, init bool) error

	// PauseTargetScaler marks the target autoscaler as paused so that
	// it stops interfering with the canary replicas
	PauseTargetScaler(canary *rolloutsv1.Canary) error

	// ResumeTargetScaler removes the paused marker from the target autoscaler
	ResumeTargetScaler(canary *rolloutsv1.Canary) error
}
