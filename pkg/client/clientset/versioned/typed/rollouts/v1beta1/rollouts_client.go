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

package v1beta1

import (
	"k8s.io/client-go/rest"

	rolloutsv1beta1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
	"github.com/MoeGolibrary/rollouts/pkg/client/clientset/versioned/scheme"
)

// RolloutsV1beta1Interface exposes the canary resources
type RolloutsV1beta1Interface interface {
	RESTClient() rest.Interface
	CanariesGetter
}

// RolloutsV1beta1Client is used to interact with the rollouts.moegolibrary.com group
type RolloutsV1beta1Client struct {
	restClient rest.Interface
}

func (c *RolloutsV1beta1Client) Canaries(namespace string) CanaryInterface {
	return newCanaries(c, namespace)
}

// NewForConfig creates a new RolloutsV1beta1Client for the given config
func NewForConfig(c *rest.Config) (*RolloutsV1beta1Client, error) {
	config := *c
	if err := setConfigDefaults(&config); err != nil {
		return nil, err
	}
	client, err := rest.RESTClientFor(&config)
	if err != nil {
		return nil, err
	}
	return &RolloutsV1beta1Client{restClient: client}, nil
}

// New creates a new RolloutsV1beta1Client for the given RESTClient
func New(c rest.Interface) *RolloutsV1beta1Client {
	return &RolloutsV1beta1Client{restClient: c}
}

func setConfigDefaults(config *rest.Config) error {
	gv := rolloutsv1beta1.SchemeGroupVersion
	config.GroupVersion = &gv
	config.APIPath = "/apis"
	config.NegotiatedSerializer = scheme.Codecs.WithoutConversion()

	if config.UserAgent == "" {
		config.UserAgent = rest.DefaultKubernetesUserAgent()
	}

	return nil
}

// RESTClient returns the RESTClient used by this client
func (c *RolloutsV1beta1Client) RESTClient() rest.Interface {
	if c == nil {
		return nil
	}
	return c.restClient
}
