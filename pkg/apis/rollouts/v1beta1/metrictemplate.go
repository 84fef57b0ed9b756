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

import corev1 "k8s.io/api/core/v1"

// MetricTemplateProvider defines the metric backend that executes a query
type MetricTemplateProvider struct {
	// Type of the metric backend: prometheus, datadog, influxdb, cloudwatch or stackdriver
	Type string `json:"type,omitempty"`

	// Address of the metric backend API
	// +optional
	Address string `json:"address,omitempty"`

	// SecretRef references a Kubernetes secret with the backend credentials
	// +optional
	SecretRef *corev1.LocalObjectReference `json:"secretRef,omitempty"`

	// Region of the metric backend, used by CloudWatch
	// +optional
	Region string `json:"region,omitempty"`

	// InsecureSkipVerify disables the TLS certificate validation
	// +optional
	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty"`
}
