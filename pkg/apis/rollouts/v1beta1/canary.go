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
	"fmt"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"
)

const (
	CanaryKind            = "Canary"
	ProgressDeadlineSeconds = 600
	AnalysisInterval        = 60 * time.Second
	MetricInterval          = "1m"

	// KubernetesProvider is the default provider when no mesh is configured,
	// traffic shifting is not possible and the rollout is iteration based
	KubernetesProvider = "kubernetes"
	// GatewayAPIProvider shifts traffic by updating weighted HTTPRoute backends
	GatewayAPIProvider = "gatewayapi"
)

// Canary is a specification for a progressive delivery resource
type Canary struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   CanarySpec   `json:"spec"`
	Status CanaryStatus `json:"status"`
}

// CanarySpec is the spec for a Canary resource
type CanarySpec struct {
	// Provider overwrites the -mesh-provider flag for this particular canary
	// +optional
	Provider string `json:"provider,omitempty"`

	// MetricsServer overwrites the -metrics-server flag for this particular canary
	// +optional
	MetricsServer string `json:"metricsServer,omitempty"`

	// TargetRef references a target workload
	TargetRef LocalObjectReference `json:"targetRef"`

	// AutoscalerRef references an autoscaling resource,
	// kind can be HorizontalPodAutoscaler or ScaledObject
	// +optional
	AutoscalerRef *AutoscalerReference `json:"autoscalerRef,omitempty"`

	// Service defines how ClusterIP services and the mesh routes are generated
	Service CanaryService `json:"service"`

	// Analysis defines the validation process of a release
	Analysis *CanaryAnalysis `json:"analysis,omitempty"`

	// ProgressDeadlineSeconds represents the maximum time in seconds for a
	// canary deployment to make progress before it is considered to be failed
	// +optional
	ProgressDeadlineSeconds *int `json:"progressDeadlineSeconds,omitempty"`

	// SkipAnalysis promotes the canary without analysing it
	// +optional
	SkipAnalysis bool `json:"skipAnalysis,omitempty"`

	// Suspend, if set to true will suspend the rollout
	// +optional
	Suspend bool `json:"suspend,omitempty"`

	// RevertOnDeletion reverts the target to its initial state when the canary is deleted
	// +optional
	RevertOnDeletion bool `json:"revertOnDeletion,omitempty"`
}

// CanaryList is a list of Canary resources
type CanaryList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata"`

	Items []Canary `json:"items"`
}

// LocalObjectReference contains enough information to locate the
// referenced Kubernetes object in the same namespace
type LocalObjectReference struct {
	// API version of the referent
	// +optional
	APIVersion string `json:"apiVersion,omitempty"`

	// Kind of the referent
	Kind string `json:"kind,omitempty"`

	// Name of the referent
	Name string `json:"name"`
}

// AutoscalerReference holds the reference to the autoscaler used by the
// target workload, the primary autoscaler is derived from it
type AutoscalerReference struct {
	// API version of the referent
	// +optional
	APIVersion string `json:"apiVersion,omitempty"`

	// Kind of the referent, HorizontalPodAutoscaler or ScaledObject
	Kind string `json:"kind,omitempty"`

	// Name of the referent
	Name string `json:"name"`

	// PrimaryScalerQueries maps a query name to a query for the primary scaler
	// +optional
	PrimaryScalerQueries map[string]string `json:"primaryScalerQueries,omitempty"`

	// PrimaryScalerReplicas overrides the replica bounds for the primary scaler
	// +optional
	PrimaryScalerReplicas *ScalerReplicas `json:"primaryScalerReplicas,omitempty"`
}

// ScalerReplicas holds the replica bound overrides for the primary scaler
type ScalerReplicas struct {
	// +optional
	MinReplicas *int32 `json:"minReplicas,omitempty"`
	// +optional
	MaxReplicas *int32 `json:"maxReplicas,omitempty"`
}

// CanaryService defines how the generated ClusterIP services and routes are shaped
type CanaryService struct {
	// Name of the Kubernetes service generated by the controller,
	// defaults to CanarySpec.TargetRef.Name
	// +optional
	Name string `json:"name,omitempty"`

	// Port of the generated Kubernetes service
	Port int32 `json:"port"`

	// PortName of the generated Kubernetes service
	// +optional
	PortName string `json:"portName,omitempty"`

	// TargetPort of the generated Kubernetes service
	// +optional
	TargetPort intstr.IntOrString `json:"targetPort,omitempty"`

	// PortDiscovery adds all the containers ports to the generated Kubernetes service
	// +optional
	PortDiscovery bool `json:"portDiscovery,omitempty"`

	// GatewayRefs attached to the generated HTTP routes
	// +optional
	GatewayRefs []gatewayv1.ParentReference `json:"gatewayRefs,omitempty"`

	// Hosts attached to the generated routes
	// +optional
	Hosts []string `json:"hosts,omitempty"`

	// Apex is the metadata to add to the apex service
	// +optional
	Apex *CustomMetadata `json:"apex,omitempty"`

	// Canary is the metadata to add to the canary service
	// +optional
	Canary *CustomMetadata `json:"canary,omitempty"`

	// Primary is the metadata to add to the primary service
	// +optional
	Primary *CustomMetadata `json:"primary,omitempty"`

	// Headers operations attached to the generated routes
	// +optional
	Headers map[string]string `json:"headers,omitempty"`

	// AttributeRouting enables request attribute based canary routing
	// +optional
	AttributeRouting *CanaryAttributeRangeRouting `json:"attributeRouting,omitempty"`
}

// CustomMetadata holds labels and annotations to set on generated objects
type CustomMetadata struct {
	Labels      map[string]string `json:"labels,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// CanaryAttributeRangeRouting configures attribute based canary routing,
// requests are mapped to the canary based on a header value hash range
type CanaryAttributeRangeRouting struct {
	// Enabled turns attribute range routing on
	Enabled bool `json:"enabled"`

	// HeaderName is the request header used for routing decisions
	// +optional
	HeaderName string `json:"headerName,omitempty"`

	// Strategy can be range or consistent-hash
	// +optional
	Strategy string `json:"strategy,omitempty"`

	// HashFunction can be fnv, md5 or sha256
	// +optional
	HashFunction string `json:"hashFunction,omitempty"`

	// SlotCount is the number of hash slots used by consistent-hash
	// +optional
	SlotCount int `json:"slotCount,omitempty"`

	// InitialPercentage is the percentage routed to canary on the first step
	// +optional
	InitialPercentage int `json:"initialPercentage,omitempty"`

	// StepPercentage is the percentage added on each iteration
	// +optional
	StepPercentage int `json:"stepPercentage,omitempty"`

	// MaxPercentage caps the percentage routed to canary
	// +optional
	MaxPercentage int `json:"maxPercentage,omitempty"`
}

// CanaryAnalysis is used to describe how the analysis should be done
type CanaryAnalysis struct {
	// Interval of the analysis, defaults to one minute
	Interval string `json:"interval"`

	// Iterations is the number of checks to run for A/B Testing and Blue/Green
	// +optional
	Iterations int `json:"iterations,omitempty"`

	// Threshold is the max number of failed checks before rolling back the canary
	Threshold int `json:"threshold"`

	// InconclusiveThreshold is the number of consecutive inconclusive checks
	// (no data points or metrics server unreachable) that count as one failed check
	// +optional
	InconclusiveThreshold int `json:"inconclusiveThreshold,omitempty"`

	// MaxWeight is the max traffic percentage routed to canary
	// +optional
	MaxWeight int `json:"maxWeight,omitempty"`

	// StepWeight is the incremental traffic percentage step
	// +optional
	StepWeight int `json:"stepWeight,omitempty"`

	// StepWeights is the incremental traffic percentage steps
	// +optional
	StepWeights []int `json:"stepWeights,omitempty"`

	// StepWeightPromotion is the incremental traffic percentage step for promotion
	// +optional
	StepWeightPromotion int `json:"stepWeightPromotion,omitempty"`

	// Mirror enables traffic shadowing
	// +optional
	Mirror bool `json:"mirror,omitempty"`

	// Match conditions for A/B Testing
	// +optional
	Match []CanaryMatch `json:"match,omitempty"`

	// Metrics is the list of metric checks
	// +optional
	Metrics []CanaryMetric `json:"metrics,omitempty"`

	// Webhooks list of callbacks
	// +optional
	Webhooks []CanaryWebhook `json:"webhooks,omitempty"`
}

// CanaryMatch defines a request match condition for A/B Testing,
// a request matches when all headers are equal to the configured values
type CanaryMatch struct {
	Headers map[string]string `json:"headers,omitempty"`
}

// CanaryMetric holds the reference to a metric check used during the canary analysis
type CanaryMetric struct {
	// Name of the metric check, request-success-rate and request-duration
	// are implemented by the built-in observers
	Name string `json:"name"`

	// Interval of the query, defaults to one minute
	// +optional
	Interval string `json:"interval,omitempty"`

	// Query is the promql-style expression executed against the metrics server
	// +optional
	Query string `json:"query,omitempty"`

	// Threshold is the max value accepted for this metric
	// +optional
	Threshold float64 `json:"threshold,omitempty"`

	// ThresholdRange is the accepted value range for this metric,
	// a single sample outside the range fails the whole window
	// +optional
	ThresholdRange *CanaryThresholdRange `json:"thresholdRange,omitempty"`

	// Provider overrides the canary metrics server for this metric
	// +optional
	Provider *MetricTemplateProvider `json:"provider,omitempty"`
}

// CanaryThresholdRange defines the range used for metrics validation
type CanaryThresholdRange struct {
	// Min value accepted for this metric
	// +optional
	Min *float64 `json:"min,omitempty"`

	// Max value accepted for this metric
	// +optional
	Max *float64 `json:"max,omitempty"`
}

// GetProgressDeadlineSeconds returns the progress deadline (default 600s)
func (c *Canary) GetProgressDeadlineSeconds() int {
	if c.Spec.ProgressDeadlineSeconds != nil {
		return *c.Spec.ProgressDeadlineSeconds
	}
	return ProgressDeadlineSeconds
}

// GetAnalysis returns the analysis or an empty one to avoid nil checks in the scheduler
func (c *Canary) GetAnalysis() *CanaryAnalysis {
	if c.Spec.Analysis == nil {
		return &CanaryAnalysis{}
	}
	return c.Spec.Analysis
}

// GetAnalysisInterval returns the analysis interval (default 60s)
func (c *Canary) GetAnalysisInterval() time.Duration {
	if c.GetAnalysis().Interval == "" {
		return AnalysisInterval
	}

	interval, err := time.ParseDuration(c.GetAnalysis().Interval)
	if err != nil {
		return AnalysisInterval
	}

	return interval
}

// GetAnalysisThreshold returns the analysis threshold (default 1)
func (c *Canary) GetAnalysisThreshold() int {
	if c.GetAnalysis().Threshold > 0 {
		return c.GetAnalysis().Threshold
	}
	return 1
}

// GetInconclusiveThreshold returns the number of consecutive inconclusive
// checks that escalate to one failed check (default 5)
func (c *Canary) GetInconclusiveThreshold() int {
	if c.GetAnalysis().InconclusiveThreshold > 0 {
		return c.GetAnalysis().InconclusiveThreshold
	}
	return 5
}

// GetMetricInterval returns the metric interval (default 1m)
func (c *Canary) GetMetricInterval() string {
	if c.GetAnalysis().Interval == "" {
		return MetricInterval
	}
	return c.GetAnalysis().Interval
}

// SkipAnalysis returns true if the analysis is set to be skipped
func (c *Canary) SkipAnalysis() bool {
	return c.Spec.SkipAnalysis
}

// GetServiceNames returns the apex, primary and canary service names
func (c *Canary) GetServiceNames() (apexName, primaryName, canaryName string) {
	apexName = c.Spec.TargetRef.Name
	if c.Spec.Service.Name != "" {
		apexName = c.Spec.Service.Name
	}
	primaryName = fmt.Sprintf("%s-primary", apexName)
	canaryName = fmt.Sprintf("%s-canary", apexName)
	return
}

// GetRemainingTime returns the remaining time until the progress deadline
// is exceeded, an expired or unset deadline reports zero
func (c *Canary) GetRemainingTime() time.Duration {
	remaining := time.Until(c.Status.LastTransitionTime.Add(time.Duration(c.GetProgressDeadlineSeconds()) * time.Second))
	if remaining < 0 {
		return 0
	}
	return remaining
}
