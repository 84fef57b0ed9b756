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

	"go.uber.org/zap/zapcore"

	rolloutsv1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
	"github.com/MoeGolibrary/rollouts/pkg/canary"
)

func (c *Controller) runConfirmTrafficIncreaseHooks(canary *rolloutsv1.Canary) bool {
	for _, webhook := range canary.GetAnalysis().Webhooks {
		if webhook.Type == rolloutsv1.ConfirmTrafficIncreaseHook {
			err := CallWebhook(*canary, rolloutsv1.CanaryPhaseProgressing, webhook)
			if err != nil {
				c.recordEventWarningf(canary, "Halt %s.%s advancement waiting for traffic increase approval %s",
					canary.Name, canary.Namespace, webhook.Name)
				if !webhook.MuteAlert {
					c.alert(canary, fmt.Sprintf("Halt %s.%s advancement waiting for traffic increase approval %s",
						canary.Name, canary.Namespace, webhook.Name), false, rolloutsv1.SeverityWarn)
				}
				return false
			}
			c.recordEventInfof(canary, "Confirm-traffic-increase check %s passed", webhook.Name)
		}
	}
	return true
}

func (c *Controller) runConfirmRolloutHooks(canary *rolloutsv1.Canary, canaryController canary.Controller) bool {
	for _, webhook := range canary.GetAnalysis().Webhooks {
		if webhook.Type == rolloutsv1.ConfirmRolloutHook {
			err := CallWebhook(*canary, canary.Status.Phase, webhook)
			if err != nil {
				if canary.Status.Phase != rolloutsv1.CanaryPhaseWaiting {
					if err := canaryController.SetStatusPhase(canary, rolloutsv1.CanaryPhaseWaiting); err != nil {
						c.logCanaryEvent(canary, fmt.Sprintf("%v", err), zapcore.ErrorLevel)
					}
					c.recordEventWarningf(canary, "Halt %s.%s advancement waiting for approval %s",
						canary.Name, canary.Namespace, webhook.Name)
					if !webhook.MuteAlert {
						c.alert(canary, fmt.Sprintf("Halt %s.%s advancement waiting for approval %s",
							canary.Name, canary.Namespace, webhook.Name), false, rolloutsv1.SeverityWarn)
					}
				}
				return false
			}
			c.recordEventInfof(canary, "Confirm-rollout check %s passed", webhook.Name)
		}
	}
	return true
}

func (c *Controller) runConfirmPromotionHooks(canary *rolloutsv1.Canary, canaryController canary.Controller) bool {
	for _, webhook := range canary.GetAnalysis().Webhooks {
		if webhook.Type == rolloutsv1.ConfirmPromotionHook {
			err := CallWebhook(*canary, rolloutsv1.CanaryPhaseProgressing, webhook)
			if err != nil {
				if canary.Status.Phase != rolloutsv1.CanaryPhaseWaitingPromotion {
					if err := canaryController.SetStatusPhase(canary, rolloutsv1.CanaryPhaseWaitingPromotion); err != nil {
						c.logCanaryEvent(canary, fmt.Sprintf("%v", err), zapcore.ErrorLevel)
					}
					c.recordEventWarningf(canary, "Halt %s.%s advancement waiting for promotion approval %s",
						canary.Name, canary.Namespace, webhook.Name)
					if !webhook.MuteAlert {
						c.alert(canary, fmt.Sprintf("Halt %s.%s advancement waiting for promotion approval %s",
							canary.Name, canary.Namespace, webhook.Name), false, rolloutsv1.SeverityWarn)
					}
				} else {
					// stay on the last iteration while waiting for approval
					if err := canaryController.SetStatusIterations(canary, canary.GetAnalysis().Iterations-1); err != nil {
						c.recordEventWarningf(canary, "%v", err)
					}
				}
				return false
			} else {
				c.recordEventInfof(canary, "Confirm-promotion check %s passed", webhook.Name)
			}
		}
	}
	return true
}

func (c *Controller) runPreRolloutHooks(canary *rolloutsv1.Canary) bool {
	for _, webhook := range canary.GetAnalysis().Webhooks {
		if webhook.Type == rolloutsv1.PreRolloutHook {
			err := CallWebhook(*canary, rolloutsv1.CanaryPhaseProgressing, webhook)
			if err != nil {
				c.recordEventWarningf(canary, "Halt %s.%s advancement pre-rollout check %s failed %v",
					canary.Name, canary.Namespace, webhook.Name, err)
				return false
			} else {
				c.recordEventInfof(canary, "Pre-rollout check %s passed", webhook.Name)
			}
		}
	}
	return true
}

func (c *Controller) runPostRolloutHooks(canary *rolloutsv1.Canary, phase rolloutsv1.CanaryPhase) bool {
	for _, webhook := range canary.GetAnalysis().Webhooks {
		if webhook.Type == rolloutsv1.PostRolloutHook {
			err := CallWebhook(*canary, phase, webhook)
			if err != nil {
				c.recordEventWarningf(canary, "Post-rollout hook %s failed %v", webhook.Name, err)
				return false
			} else {
				c.recordEventInfof(canary, "Post-rollout check %s passed", webhook.Name)
			}
		}
	}
	return true
}

func (c *Controller) runRollbackHooks(canary *rolloutsv1.Canary, phase rolloutsv1.CanaryPhase) bool {
	for _, webhook := range canary.GetAnalysis().Webhooks {
		if webhook.Type == rolloutsv1.RollbackHook {
			err := CallWebhook(*canary, phase, webhook)
			if err != nil {
				c.recordEventInfof(canary, "Rollback hook %s not signaling a rollback", webhook.Name)
			} else {
				c.recordEventWarningf(canary, "Rollback check %s passed", webhook.Name)
				return true
			}
		}
	}
	return false
}

func (c *Controller) runSkipHooks(canary *rolloutsv1.Canary, phase rolloutsv1.CanaryPhase) bool {
	for _, webhook := range canary.GetAnalysis().Webhooks {
		if webhook.Type == rolloutsv1.SkipHook {
			err := CallWebhook(*canary, phase, webhook)
			if err != nil {
				c.recordEventInfof(canary, "Skip hook %s not signaling a skip", webhook.Name)
			} else {
				c.recordEventWarningf(canary, "Skip check %s passed", webhook.Name)
				return true
			}
		}
	}
	return false
}
