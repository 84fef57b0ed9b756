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

package observers

import (
	rolloutsv1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
	"github.com/MoeGolibrary/rollouts/pkg/metrics/providers"
)

// Factory creates the built-in observers backed by a Prometheus client
type Factory struct {
	Client providers.Interface
}

// NewFactory validates the metrics server address and returns an observer factory
func NewFactory(metricsServer string) (*Factory, error) {
	client, err := providers.NewPrometheusProvider(rolloutsv1.MetricTemplateProvider{
		Type:    "prometheus",
		Address: metricsServer,
	}, nil)
	if err != nil {
		return nil, err
	}

	return &Factory{Client: client}, nil
}

// Observer returns the observer for the given mesh provider,
// envoy metrics are the common denominator for the supported providers
func (factory Factory) Observer(provider string) Interface {
	switch provider {
	case rolloutsv1.GatewayAPIProvider:
		return &EnvoyObserver{client: factory.Client}
	default:
		return &EnvoyObserver{client: factory.Client}
	}
}
