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
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"

	rolloutsv1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
)

// the query window is widened to tolerate delayed data points
const cloudWatchStartDeltaMultiplierOnMetricInterval = 10

// cloudWatchClient is the subset of the CloudWatch API used by the provider
type cloudWatchClient interface {
	GetMetricData(input *cloudwatch.GetMetricDataInput) (*cloudwatch.GetMetricDataOutput, error)
	ListMetrics(input *cloudwatch.ListMetricsInput) (*cloudwatch.ListMetricsOutput, error)
}

// CloudWatchProvider executes cloudwatch metric data queries
type CloudWatchProvider struct {
	client     cloudWatchClient
	startDelta time.Duration
}

// NewCloudWatchProvider takes a provider spec and returns a CloudWatch client
// for the configured region
func NewCloudWatchProvider(metricInterval string, provider rolloutsv1.MetricTemplateProvider) (*CloudWatchProvider, error) {
	if provider.Region == "" {
		return nil, fmt.Errorf("region not specified")
	}

	sess, err := session.NewSession(aws.NewConfig().WithRegion(provider.Region))
	if err != nil {
		return nil, fmt.Errorf("error creating aws session: %w", err)
	}

	md, err := time.ParseDuration(metricInterval)
	if err != nil {
		return nil, fmt.Errorf("error parsing metric interval: %w", err)
	}

	return &CloudWatchProvider{
		client:     cloudwatch.New(sess),
		startDelta: cloudWatchStartDeltaMultiplierOnMetricInterval * md,
	}, nil
}

// ExecuteCurrentQuery treats the query as a JSON encoded list of metric data
// queries and returns the first value of the first result
func (p *CloudWatchProvider) ExecuteCurrentQuery(query string) (float64, error) {
	var cq []*cloudwatch.MetricDataQuery
	if err := json.Unmarshal([]byte(query), &cq); err != nil {
		return 0, fmt.Errorf("error unmarshaling query: %w", err)
	}

	end := time.Now()
	res, err := p.client.GetMetricData(&cloudwatch.GetMetricDataInput{
		EndTime:           aws.Time(end),
		StartTime:         aws.Time(end.Add(-p.startDelta)),
		MetricDataQueries: cq,
	})
	if err != nil {
		return 0, fmt.Errorf("error requesting cloudwatch: %w", err)
	}

	mr := res.MetricDataResults
	if len(mr) < 1 {
		return 0, fmt.Errorf("no values found in response: %s: %w", res.String(), ErrNoValuesFound)
	}

	vs := mr[0].Values
	if len(vs) < 1 {
		return 0, fmt.Errorf("no values found in response: %s: %w", res.String(), ErrNoValuesFound)
	}

	return aws.Float64Value(vs[0]), nil
}

// GetPreviousMetricValue is not implemented for CloudWatch, historical values
// are expressed with custom time ranges inside the query itself
func (p *CloudWatchProvider) GetPreviousMetricValue(query string) (float64, error) {
	return 0, ErrHistoricalWindowNotConfigured
}

// IsOnline lists the cloudwatch metrics to verify the API is reachable
func (p *CloudWatchProvider) IsOnline() (bool, error) {
	_, err := p.client.ListMetrics(&cloudwatch.ListMetricsInput{})
	if err != nil {
		return false, fmt.Errorf("error listing metrics: %w", err)
	}
	return true, nil
}
