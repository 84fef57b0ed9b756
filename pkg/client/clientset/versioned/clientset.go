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

package versioned

import (
	"fmt"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/util/flowcontrol"

	kedav1alpha1 "github.com/MoeGolibrary/rollouts/pkg/client/clientset/versioned/typed/keda/v1alpha1"
	rolloutsv1beta1 "github.com/MoeGolibrary/rollouts/pkg/client/clientset/versioned/typed/rollouts/v1beta1"
)

// Interface groups the typed clients for the API groups served by the controller
type Interface interface {
	RolloutsV1beta1() rolloutsv1beta1.RolloutsV1beta1Interface
	KedaV1alpha1() kedav1alpha1.KedaV1alpha1Interface
}

// Clientset contains the clients for the canary and keda groups
type Clientset struct {
	rolloutsV1beta1 *rolloutsv1beta1.RolloutsV1beta1Client
	kedaV1alpha1    *kedav1alpha1.KedaV1alpha1Client
}

// RolloutsV1beta1 retrieves the RolloutsV1beta1Client
func (c *Clientset) RolloutsV1beta1() rolloutsv1beta1.RolloutsV1beta1Interface {
	return c.rolloutsV1beta1
}

// KedaV1alpha1 retrieves the KedaV1alpha1Client
func (c *Clientset) KedaV1alpha1() kedav1alpha1.KedaV1alpha1Interface {
	return c.kedaV1alpha1
}

// NewForConfig creates a new Clientset for the given config,
// if the config does not specify a rate limiter one is derived from QPS and Burst
func NewForConfig(c *rest.Config) (*Clientset, error) {
	configShallowCopy := *c
	if configShallowCopy.RateLimiter == nil && configShallowCopy.QPS > 0 {
		if configShallowCopy.Burst <= 0 {
			return nil, fmt.Errorf("burst is required to be greater than 0 when RateLimiter is not set and QPS is set to greater than 0")
		}
		configShallowCopy.RateLimiter = flowcontrol.NewTokenBucketRateLimiter(configShallowCopy.QPS, configShallowCopy.Burst)
	}

	var cs Clientset
	var err error
	cs.rolloutsV1beta1, err = rolloutsv1beta1.NewForConfig(&configShallowCopy)
	if err != nil {
		return nil, err
	}
	cs.kedaV1alpha1, err = kedav1alpha1.NewForConfig(&configShallowCopy)
	if err != nil {
		return nil, err
	}
	return &cs, nil
}

// New creates a new Clientset for the given RESTClient
func New(c rest.Interface) *Clientset {
	var cs Clientset
	cs.rolloutsV1beta1 = rolloutsv1beta1.New(c)
	cs.kedaV1alpha1 = kedav1alpha1.New(c)
	return &cs
}
