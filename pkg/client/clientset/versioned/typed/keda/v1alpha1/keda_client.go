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

package v1alpha1

import (
	"k8s.io/client-go/rest"

	"github.com/MoeGolibrary/rollouts/pkg/client/clientset/versioned/scheme"
)

// KedaV1alpha1Interface exposes the scaled object resources
type KedaV1alpha1Interface interface {
	RESTClient() rest.Interface
	ScaledObjectsGetter
}

// KedaV1alpha1Client is used to interact with the keda.sh group
type KedaV1alpha1Client struct {
	restClient rest.Interface
}

func (c *KedaV1alpha1Client) ScaledObjects(namespace string) ScaledObjectInterface {
	return newScaledObjects(c, namespace)
}

// NewForConfig creates a new KedaV1alpha1Client for the given config
func NewForConfig(c *rest.Config) (*KedaV1alpha1Client, error) {
	config := *c
	if err := setConfigDefaults(&config); err != nil {
		return nil, err
	}
	client, err := rest.RESTClientFor(&config)
	if err != nil {
		return nil, err
	}
	return &KedaV1alpha1Client{restClient: client}, nil
}

// New creates a new KedaV1alpha1Client for the given RESTClient
func New(c rest.Interface) *KedaV1alpha1Client {
	return &KedaV1alpha1Client{restClient: c}
}

func setConfigDefaults(config *rest.Config) error {
	gv := scheme.KedaSchemeGroupVersion
	config.GroupVersion = &gv
	config.APIPath = "/apis"
	config.NegotiatedSerializer = scheme.Codecs.WithoutConversion()

	if config.UserAgent == "" {
		config.UserAgent = rest.DefaultKubernetesUserAgent()
	}

	return nil
}

// RESTClient returns the RESTClient used by this client
func (c *KedaV1alpha1Client) RESTClient() rest.Interface {
	if c == nil {
		return nil
	}
	return c.restClient
}
