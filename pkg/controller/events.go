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
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
	corev1 "k8s.io/api/core/v1"

	rolloutsv1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
	"github.com/MoeGolibrary/rollouts/pkg/notifier"
)

func (c *Controller) recordEventInfof(r *rolloutsv1.Canary, template string, args ...interface{}) {
	c.logCanaryEvent(r, fmt.Sprintf(template, args...), zapcore.InfoLevel)
	c.eventRecorder.Event(r, corev1.EventTypeNormal, "Synced", fmt.Sprintf(template, args...))
	c.sendEventToWebhook(r, corev1.EventTypeNormal, template, args)
}

func (c *Controller) recordEventErrorf(r *rolloutsv1.Canary, template string, args ...interface{}) {
	c.logCanaryEvent(r, fmt.Sprintf(template, args...), zapcore.ErrorLevel)
	c.eventRecorder.Event(r, corev1.EventTypeWarning, "Synced", fmt.Sprintf(template, args...))
	c.sendEventToWebhook(r, corev1.EventTypeWarning, template, args)
}

func (c *Controller) recordEventWarningf(r *rolloutsv1.Canary, template string, args ...interface{}) {
	c.logCanaryEvent(r, fmt.Sprintf(template, args...), zapcore.InfoLevel)
	c.eventRecorder.Event(r, corev1.EventTypeWarning, "Synced", fmt.Sprintf(template, args...))
	c.sendEventToWebhook(r, corev1.EventTypeWarning, template, args)
}

func (c *Controller) logCanaryEvent(r *rolloutsv1.Canary, message string, level zapcore.Level) {
	log := c.logger.
		With("canary", fmt.Sprintf("%s.%s", r.Name, r.Namespace)).
		With("canary_name", r.Name).
		With("canary_namespace", r.Namespace)
	switch level {
	case zapcore.ErrorLevel:
		log.Error(message)
	case zapcore.WarnLevel:
		log.Warn(message)
	default:
		log.Info(message)
	}
}

func (c *Controller) sendEventToWebhook(r *rolloutsv1.Canary, eventType, template string, args []interface{}) {
	webhookOverride := false
	for _, canaryWebhook := range r.GetAnalysis().Webhooks {
		if canaryWebhook.Type == rolloutsv1.EventHook {
			webhookOverride = true
			err := CallEventWebhook(r, canaryWebhook, fmt.Sprintf(template, args...), eventType)
			if err != nil {
				c.logCanaryEvent(r, fmt.Sprintf("error sending event to webhook: %s", err), zapcore.ErrorLevel)
			}
		}
	}

	if c.eventWebhook != "" && !webhookOverride {
		hook := rolloutsv1.CanaryWebhook{
			Name: "events",
			URL:  c.eventWebhook,
		}
		err := CallEventWebhook(r, hook, fmt.Sprintf(template, args...), eventType)
		if err != nil {
			c.logCanaryEvent(r, fmt.Sprintf("error sending event to webhook: %s", err), zapcore.ErrorLevel)
		}
	}
}

// alert sends the message to the global notifier
func (c *Controller) alert(canary *rolloutsv1.Canary, message string, metadata bool, severity rolloutsv1.AlertSeverity) {
	var fields []notifier.Field

	if c.clusterName != "" {
		fields = append(fields,
			notifier.Field{
				Name:  "Cluster",
				Value: c.clusterName,
			},
		)
	}

	if metadata {
		fields = append(fields, alertMetadata(canary)...)
	}

	if err := c.notifier.Post(canary.Name, canary.Namespace, message, fields, string(severity)); err != nil {
		c.logCanaryEvent(canary, fmt.Sprintf("alert can't be sent: %v", err), zapcore.ErrorLevel)
	}
}

func alertMetadata(canary *rolloutsv1.Canary) []notifier.Field {
	var fields []notifier.Field

	fields = append(fields,
		notifier.Field{
			Name:  "Target",
			Value: fmt.Sprintf("%s/%s.%s", canary.Spec.TargetRef.Kind, canary.Spec.TargetRef.Name, canary.Namespace),
		},
		notifier.Field{
			Name:  "Failed checks threshold",
			Value: fmt.Sprintf("%v", canary.GetAnalysisThreshold()),
		},
		notifier.Field{
			Name:  "Progress deadline",
			Value: fmt.Sprintf("%vs", canary.GetProgressDeadlineSeconds()),
		},
	)

	if canary.GetAnalysis().StepWeight > 0 {
		fields = append(fields, notifier.Field{
			Name: "Traffic routing",
			Value: fmt.Sprintf("Weight step: %v max: %v interval: %v",
				canary.GetAnalysis().StepWeight,
				canary.GetAnalysis().MaxWeight,
				canary.GetAnalysis().Interval),
		})
	} else if len(canary.GetAnalysis().StepWeights) > 0 {
		fields = append(fields, notifier.Field{
			Name: "Traffic routing",
			Value: fmt.Sprintf("Weight steps: %s max: %v",
				strings.Trim(strings.Join(strings.Fields(fmt.Sprint(canary.GetAnalysis().StepWeights)), ","), "[]"),
				canary.GetAnalysis().MaxWeight),
		})
	} else if len(canary.GetAnalysis().Match) > 0 {
		fields = append(fields, notifier.Field{
			Name:  "Traffic routing",
			Value: "A/B Testing",
		})
	} else if canary.GetAnalysis().Iterations > 0 {
		fields = append(fields, notifier.Field{
			Name:  "Traffic routing",
			Value: "Blue/Green",
		})
	}
	return fields
}
