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

import "time"

// HookType can be pre, post or during rollout
type HookType string

const (
	// RolloutHook execute webhook during the canary analysis
	RolloutHook HookType = "rollout"
	// PreRolloutHook execute webhook before routing traffic to canary
	PreRolloutHook HookType = "pre-rollout"
	// PostRolloutHook execute webhook after the canary analysis
	PostRolloutHook HookType = "post-rollout"
	// ConfirmRolloutHook halt canary analysis until webhook returns HTTP 200
	ConfirmRolloutHook HookType = "confirm-rollout"
	// ConfirmPromotionHook halt canary promotion until webhook returns HTTP 200
	ConfirmPromotionHook HookType = "confirm-promotion"
	// ConfirmTrafficIncreaseHook halt traffic increase until webhook returns HTTP 200
	ConfirmTrafficIncreaseHook HookType = "confirm-traffic-increase"
	// EventHook dispatches events to the specified endpoint
	EventHook HookType = "event"
	// RollbackHook rollback canary analysis if webhook returns HTTP 200
	RollbackHook HookType = "rollback"
	// SkipHook skip canary analysis if webhook returns HTTP 200
	SkipHook HookType = "skip"
)

// AlertSeverity defines the severity level of alert messages
type AlertSeverity string

const (
	SeverityInfo    AlertSeverity = "info"
	SeverityWarn    AlertSeverity = "warn"
	SeverityError   AlertSeverity = "error"
	SeveritySuccess AlertSeverity = "success"
)

// CanaryWebhook holds the reference to external checks used for canary analysis
type CanaryWebhook struct {
	// Type of this webhook
	Type HookType `json:"type"`

	// Name of this webhook
	Name string `json:"name"`

	// URL address of this webhook
	URL string `json:"url"`

	// Timeout of this webhook
	// +optional
	Timeout string `json:"timeout,omitempty"`

	// Retries is the number of retries attempted on timeout or non-success response
	// +optional
	Retries int `json:"retries,omitempty"`

	// MuteAlert mutes all alerts generated from this webhook
	// +optional
	MuteAlert bool `json:"muteAlert,omitempty"`

	// Metadata (key-value pairs) for this webhook
	// +optional
	Metadata *map[string]string `json:"metadata,omitempty"`
}

// GetRetries returns the configured number of retries,
// a failed call is retried once by default
func (w *CanaryWebhook) GetRetries() int {
	if w.Retries > 0 {
		return w.Retries
	}
	return 1
}

// CanaryWebhookPayload holds the deployment info and metadata sent to webhooks
type CanaryWebhookPayload struct {
	// Name of the canary
	Name string `json:"name"`

	// Namespace of the canary
	Namespace string `json:"namespace"`

	// Phase of the canary analysis
	Phase CanaryPhase `json:"phase"`

	// Hook type that triggered this payload
	Type HookType `json:"type"`

	// Checksum of the canary identity
	Checksum string `json:"checksum"`

	// AnalysisRunID of the in-flight analysis run
	AnalysisRunID string `json:"analysis_run_id,omitempty"`

	// FailedChecks of the canary analysis
	FailedChecks int `json:"failed_checks"`

	// CanaryWeight is the current traffic percentage routed to canary
	CanaryWeight int `json:"canary_weight"`

	// Iterations of the canary analysis
	Iterations int `json:"iterations"`

	// RemainingTime until the progress deadline is exceeded
	RemainingTime time.Duration `json:"remaining_time"`

	// Metadata (key-value pairs) for this webhook
	// +optional
	Metadata map[string]string `json:"metadata,omitempty"`
}
