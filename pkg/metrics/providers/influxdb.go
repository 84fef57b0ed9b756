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

package providers

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	rolloutsv1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
)

const (
	influxdbTokenSecretKey = "token"
	influxdbOrgSecretKey   = "org"

	influxdbDefaultOrg = "default"
)

// InfluxdbProvider executes flux queries
type InfluxdbProvider struct {
	timeout  time.Duration
	queryAPI api.QueryAPI
	client   influxdb2.Client
}

// NewInfluxdbProvider takes a provider spec and the credentials map,
// and returns an InfluxDB client ready to execute flux queries
func NewInfluxdbProvider(provider rolloutsv1.MetricTemplateProvider, credentials map[string][]byte) (*InfluxdbProvider, error) {
	if provider.Address == "" {
		return nil, fmt.Errorf("influxdb address is empty")
	}

	token, ok := credentials[influxdbTokenSecretKey]
	if !ok {
		return nil, fmt.Errorf("influxdb credentials does not contain a token")
	}

	org := influxdbDefaultOrg
	if b, ok := credentials[influxdbOrgSecretKey]; ok {
		org = string(b)
	}

	client := influxdb2.NewClient(provider.Address, string(token))

	return &InfluxdbProvider{
		timeout:  5 * time.Second,
		client:   client,
		queryAPI: client.QueryAPI(org),
	}, nil
}

// ExecuteCurrentQuery runs the flux query and returns the last value found
func (i *InfluxdbProvider) ExecuteCurrentQuery(query string) (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()

	result, err := i.queryAPI.Query(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("influxdb query failed: %w", err)
	}

	var value *float64
	for result.Next() {
		if v, ok := result.Record().Value().(float64); ok {
			value = &v
		}
	}
	if result.Err() != nil {
		return 0, fmt.Errorf("influxdb query error: %w", result.Err())
	}
	if value == nil {
		return 0, ErrNoValuesFound
	}

	return *value, nil
}

// GetPreviousMetricValue is not implemented for InfluxDB, historical values
// are expressed with range start offsets inside the flux query itself
func (i *InfluxdbProvider) GetPreviousMetricValue(query string) (float64, error) {
	return 0, ErrHistoricalWindowNotConfigured
}

// IsOnline calls the InfluxDB health endpoint
func (i *InfluxdbProvider) IsOnline() (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()

	health, err := i.client.Health(ctx)
	if err != nil {
		return false, fmt.Errorf("running health check failed: %w", err)
	}

	return health.Status == "pass", nil
}
