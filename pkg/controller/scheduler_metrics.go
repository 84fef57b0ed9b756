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

package controller

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	rolloutsv1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
	"github.com/MoeGolibrary/rollouts/pkg/metrics/observers"
	"github.com/MoeGolibrary/rollouts/pkg/metrics/providers"
)

var queryRateLimiter = rate.NewLimiter(rate.Every(time.Second), 10)

// checkMetricProviderAvailability is called during canary initialization
func (c *Controller) checkMetricProviderAvailability(canary *rolloutsv1.Canary) error {
	for _, metric := range canary.GetAnalysis().Metrics {
		if metric.Name == "request-success-rate" || metric.Name == "request-duration" {
			observerFactory := c.observerFactory
			if canary.Spec.MetricsServer != "" {
				var err error
				observerFactory, err = observers.NewFactory(canary.Spec.MetricsServer)
				if err != nil {
					return fmt.Errorf("error building Prometheus client for %s %v", canary.Spec.MetricsServer, err)
				}
			}
			if ok, err := observerFactory.Client.IsOnline(); !ok || err != nil {
				return fmt.Errorf("prometheus not available: %v", err)
			}
			continue
		}

		provider, err := c.metricProvider(canary, metric)
		if err != nil {
			return err
		}
		if ok, err := provider.IsOnline(); !ok || err != nil {
			return fmt.Errorf("%s in metric %s not available: %v", metric.Provider.Type, metric.Name, err)
		}
	}
	c.recordEventInfof(canary, "all the metrics providers are available!")
	return nil
}

// runBuiltinMetricChecks evaluates the request-success-rate and
// request-duration checks against the mesh telemetry
func (c *Controller) runBuiltinMetricChecks(canary *rolloutsv1.Canary) (bool, error) {
	// override the global provider if one is specified in the canary spec
	metricsProvider := c.meshProvider
	if canary.Spec.Provider != "" {
		metricsProvider = canary.Spec.Provider
	}

	// create the metrics observer, optionally pointed at a dedicated server
	observerFactory := c.observerFactory
	if canary.Spec.MetricsServer != "" {
		var err error
		observerFactory, err = observers.NewFactory(canary.Spec.MetricsServer)
		if err != nil {
			c.recordEventErrorf(canary, "Error building Prometheus client for %s %v", canary.Spec.MetricsServer, err)
			return false, nil
		}
	}
	observer := observerFactory.Observer(metricsProvider)

	for _, metric := range canary.GetAnalysis().Metrics {
		if metric.Name == "request-success-rate" {
			val, err := observer.GetRequestSuccessRate(toMetricModel(canary, metric.Interval))
			if err != nil {
				if errors.Is(err, providers.ErrNoValuesFound) {
					c.recordEventWarningf(canary,
						"Halt advancement no values found for %s metric %s probably %s.%s is not receiving traffic: %v",
						metricsProvider, metric.Name, canary.Spec.TargetRef.Name, canary.Namespace, err)
				} else {
					c.recordEventErrorf(canary, "Prometheus query failed: %v", err)
				}
				return false, err
			}
			c.recorder.SetAnalysis(canary, metric.Name, val)

			if metric.ThresholdRange != nil {
				tr := *metric.ThresholdRange
				if tr.Min != nil && val < *tr.Min {
					c.recordEventWarningf(canary, "Halt %s.%s advancement success rate %.2f%% < %v%%",
						canary.Name, canary.Namespace, val, *tr.Min)
					return false, nil
				}
				if tr.Max != nil && val > *tr.Max {
					c.recordEventWarningf(canary, "Halt %s.%s advancement success rate %.2f%% > %v%%",
						canary.Name, canary.Namespace, val, *tr.Max)
					return false, nil
				}
			} else if metric.Threshold > val {
				c.recordEventWarningf(canary, "Halt %s.%s advancement success rate %.2f%% < %v%%",
					canary.Name, canary.Namespace, val, metric.Threshold)
				return false, nil
			}
		}

		if metric.Name == "request-duration" {
			val, err := observer.GetRequestDuration(toMetricModel(canary, metric.Interval))
			if err != nil {
				if errors.Is(err, providers.ErrNoValuesFound) {
					c.recordEventWarningf(canary,
						"Halt advancement no values found for %s metric %s probably %s.%s is not receiving traffic: %v",
						metricsProvider, metric.Name, canary.Spec.TargetRef.Name, canary.Namespace, err)
				} else {
					c.recordEventErrorf(canary, "Prometheus query failed: %v", err)
				}
				return false, err
			}
			c.recorder.SetAnalysis(canary, metric.Name, float64(val.Milliseconds()))

			if metric.ThresholdRange != nil {
				tr := *metric.ThresholdRange
				if tr.Min != nil && float64(val.Milliseconds()) < *tr.Min {
					c.recordEventWarningf(canary, "Halt %s.%s advancement request duration %v < %vms",
						canary.Name, canary.Namespace, val, *tr.Min)
					return false, nil
				}
				if tr.Max != nil && float64(val.Milliseconds()) > *tr.Max {
					c.recordEventWarningf(canary, "Halt %s.%s advancement request duration %v > %vms",
						canary.Name, canary.Namespace, val, *tr.Max)
					return false, nil
				}
			} else if float64(val.Milliseconds()) > metric.Threshold {
				c.recordEventWarningf(canary, "Halt %s.%s advancement request duration %v > %vms",
					canary.Name, canary.Namespace, val, metric.Threshold)
				return false, nil
			}
		}
	}

	return true, nil
}

// runMetricChecks evaluates the custom query metrics against their backend
func (c *Controller) runMetricChecks(canary *rolloutsv1.Canary) (bool, error) {
	for _, metric := range canary.GetAnalysis().Metrics {
		if metric.Name == "request-success-rate" || metric.Name == "request-duration" {
			continue
		}

		if metric.Query == "" {
			c.recordEventErrorf(canary, "Metric check failed for %s: no query was configured", metric.Name)
			return false, providers.ErrNoValuesFound
		}

		provider, err := c.metricProvider(canary, metric)
		if err != nil {
			c.recordEventErrorf(canary, "Metric %s provider error: %v", metric.Name, err)
			return false, err
		}

		query, err := observers.RenderQuery(metric.Query, toMetricModel(canary, metric.Interval))
		if err != nil {
			c.recordEventErrorf(canary, "Metric %s query render error: %v", metric.Name, err)
			return false, err
		}
		c.logger.With("canary", fmt.Sprintf("%s.%s", canary.Name, canary.Namespace)).
			Debugf("Metric %s query: %s", metric.Name, query)

		val, err := c.executeQuery(query, canary, provider)
		if err != nil {
			if errors.Is(err, providers.ErrSkipAnalysis) {
				c.recordEventWarningf(canary, "Skipping analysis for %s.%s: %v",
					canary.Name, canary.Namespace, err)
			} else if errors.Is(err, providers.ErrTooManyRequests) {
				c.recordEventWarningf(canary, "Too many requests %s %s.%s: %v",
					metric.Name, canary.Name, canary.Namespace, err)
			} else if errors.Is(err, providers.ErrNoValuesFound) {
				c.recordEventWarningf(canary, "Halt advancement no values found for custom metric: %s: %v",
					metric.Name, err)
			} else {
				c.recordEventErrorf(canary, "Metric query failed for %s: %v", metric.Name, err)
			}
			return false, err
		}

		c.recorder.SetAnalysis(canary, metric.Name, val)

		if metric.ThresholdRange != nil {
			tr := *metric.ThresholdRange
			if tr.Min != nil && val < *tr.Min {
				c.recordEventWarningf(canary, "Halt %s.%s advancement %s %.2f < %v",
					canary.Name, canary.Namespace, metric.Name, val, *tr.Min)
				return false, nil
			}
			if tr.Max != nil && val > *tr.Max {
				c.recordEventWarningf(canary, "Halt %s.%s advancement %s %.2f > %v",
					canary.Name, canary.Namespace, metric.Name, val, *tr.Max)
				return false, nil
			}
		} else if val > metric.Threshold {
			c.recordEventWarningf(canary, "Halt %s.%s advancement %s %.2f > %v",
				canary.Name, canary.Namespace, metric.Name, val, metric.Threshold)
			return false, nil
		}
	}

	return true, nil
}

// metricProvider builds the metric backend client for a custom metric,
// metrics without an explicit provider default to the Prometheus observer
func (c *Controller) metricProvider(canary *rolloutsv1.Canary, metric rolloutsv1.CanaryMetric) (providers.Interface, error) {
	if metric.Provider == nil {
		if canary.Spec.MetricsServer != "" {
			factory, err := observers.NewFactory(canary.Spec.MetricsServer)
			if err != nil {
				return nil, fmt.Errorf("error building Prometheus client for %s %v", canary.Spec.MetricsServer, err)
			}
			return factory.Client, nil
		}
		return c.observerFactory.Client, nil
	}

	var credentials map[string][]byte
	if metric.Provider.SecretRef != nil {
		secret, err := c.kubeClient.CoreV1().Secrets(canary.Namespace).Get(context.TODO(), metric.Provider.SecretRef.Name, metav1.GetOptions{})
		if err != nil {
			return nil, fmt.Errorf("metric %s secret %s error: %w", metric.Name, metric.Provider.SecretRef.Name, err)
		}
		credentials = secret.Data
	}

	factory := providers.Factory{}
	provider, err := factory.Provider(metric.Interval, "", *metric.Provider, credentials, c.kubeConfig, c.logger)
	if err != nil {
		return nil, fmt.Errorf("metric %s provider %s error: %w", metric.Name, metric.Provider.Type, err)
	}
	return provider, nil
}

func toMetricModel(r *rolloutsv1.Canary, interval string) observers.MetricTemplateModel {
	service := r.Spec.TargetRef.Name
	if r.Spec.Service.Name != "" {
		service = r.Spec.Service.Name
	}
	return observers.MetricTemplateModel{
		Name:      r.Name,
		Namespace: r.Namespace,
		Target:    r.Spec.TargetRef.Name,
		Service:   service,
		Interval:  interval,
	}
}

// executeQuery runs the query with a client side rate limit,
// throttled requests are retried with a jittered delay
func (c *Controller) executeQuery(query string, canary *rolloutsv1.Canary, provider providers.Interface) (float64, error) {
	maxRetries := 5
	baseRetryDelay := 3 * time.Second
	maxRetryDelay := 5 * time.Second

	ra := rand.New(rand.NewSource(time.Now().UnixNano()))
	ctx := context.Background()

	for i := 0; i <= maxRetries; i++ {
		if err := queryRateLimiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("rate limiter wait error: %w", err)
		}

		val, err := provider.ExecuteCurrentQuery(query)
		if err == nil {
			return val, nil
		}

		if !errors.Is(err, providers.ErrTooManyRequests) {
			return 0, err
		}

		retryDelay := baseRetryDelay + time.Duration(ra.Intn(int(maxRetryDelay)))
		c.logger.With("canary", fmt.Sprintf("%s.%s", canary.Name, canary.Namespace)).
			Debugf("Metrics backend throttled, retry no: %d, retryDelay: %v", i, retryDelay)
		time.Sleep(retryDelay)

		if c.checkSkipAnalysis(canary) {
			return 0, providers.ErrSkipAnalysis
		}
	}
	return 0, providers.ErrTooManyRequests
}

// checkSkipAnalysis re-reads the canary, the analysis can be skipped
// while a query is being retried
func (c *Controller) checkSkipAnalysis(canary *rolloutsv1.Canary) bool {
	cd, err := c.rolloutClient.RolloutsV1beta1().Canaries(canary.Namespace).Get(context.TODO(), canary.Name, metav1.GetOptions{})
	if err != nil {
		c.logger.With("canary", fmt.Sprintf("%s.%s", canary.Name, canary.Namespace)).
			Errorf("Canary %s.%s not found", canary.Name, canary.Namespace)
		return false
	}
	if cd.SkipAnalysis() {
		c.logger.With("canary", fmt.Sprintf("%s.%s", canary.Name, canary.Namespace)).
			Info("Skipping analysis")
		return true
	}
	return false
}
