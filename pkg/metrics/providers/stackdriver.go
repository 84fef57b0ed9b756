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

	monitoring "cloud.google.com/go/monitoring/apiv3/v2"
	"cloud.google.com/go/monitoring/apiv3/v2/monitoringpb"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	rolloutsv1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
)

const (
	stackDriverProjectSecretKey = "project"
	stackDriverSAKeySecretKey   = "serviceAccountKey"

	stackDriverOnlineQuery = "fetch gce_instance | metric 'compute.googleapis.com/instance/uptime' | within 1m"
)

// StackDriverProvider executes Cloud Monitoring MQL queries
type StackDriverProvider struct {
	client  *monitoring.QueryClient
	project string
	timeout time.Duration
}

// NewStackDriverProvider takes a provider spec and the credentials map,
// and returns a Cloud Monitoring query client
func NewStackDriverProvider(provider rolloutsv1.MetricTemplateProvider, credentials map[string][]byte) (*StackDriverProvider, error) {
	project, ok := credentials[stackDriverProjectSecretKey]
	if !ok {
		return nil, fmt.Errorf("stackdriver credentials does not contain a project id")
	}

	var opts []option.ClientOption
	if saKey, ok := credentials[stackDriverSAKeySecretKey]; ok {
		opts = append(opts, option.WithCredentialsJSON(saKey))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := monitoring.NewQueryClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating monitoring query client: %w", err)
	}

	return &StackDriverProvider{
		client:  client,
		project: string(project),
		timeout: 5 * time.Second,
	}, nil
}

// ExecuteCurrentQuery runs the MQL query and returns the first value of the
// first time series in the response
func (s *StackDriverProvider) ExecuteCurrentQuery(query string) (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	it := s.client.QueryTimeSeries(ctx, &monitoringpb.QueryTimeSeriesRequest{
		Name:  "projects/" + s.project,
		Query: query,
	})

	resp, err := it.Next()
	if err == iterator.Done {
		return 0, ErrNoValuesFound
	}
	if err != nil {
		return 0, fmt.Errorf("error requesting stackdriver: %w", err)
	}

	data := resp.GetPointData()
	if len(data) < 1 {
		return 0, fmt.Errorf("invalid response: %v: %w", resp, ErrNoValuesFound)
	}

	values := data[0].GetValues()
	if len(values) < 1 {
		return 0, fmt.Errorf("invalid response: %v: %w", resp, ErrNoValuesFound)
	}

	return values[0].GetDoubleValue(), nil
}

// GetPreviousMetricValue is not implemented for Cloud Monitoring, historical
// values are expressed with within modifiers inside the query itself
func (s *StackDriverProvider) GetPreviousMetricValue(query string) (float64, error) {
	return 0, ErrHistoricalWindowNotConfigured
}

// IsOnline runs a trivial MQL query to check the API status
func (s *StackDriverProvider) IsOnline() (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	it := s.client.QueryTimeSeries(ctx, &monitoringpb.QueryTimeSeriesRequest{
		Name:  "projects/" + s.project,
		Query: stackDriverOnlineQuery,
	})

	_, err := it.Next()
	if err != nil && err != iterator.Done {
		return false, fmt.Errorf("error requesting stackdriver: %w", err)
	}

	return true, nil
}
