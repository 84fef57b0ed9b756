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

// NopRouter is used for Blue/Green deployments on plain Kubernetes,
// all traffic stays on the primary and the weights are synthetic
type NopRouter struct {
}

func (*NopRouter) Reconcile(_ *rolloutsv1.Canary) error {
	return nil
}

func (*NopRouter) SetRoutes(_ *rolloutsv1.Canary, _ int, _ int, _ bool) error {
	return nil
}

func (*NopRouter) Finalize(_ *rolloutsv1.Canary) error {
	return nil
}

func (c *NopRouter) GetRoutes(canary *rolloutsv1.Canary) (primaryWeight int, canaryWeight int, mirrored bool, err error) {
	if canary.Status.Iterations > 0 {
		return 0, 100, false, nil
	}
	return 100, 0, false, nil
}
