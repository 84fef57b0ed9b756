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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	rolloutsv1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
)

func callWebhook(webhook string, payload interface{}, timeout string, retries int) error {
	payloadBin, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	hook, err := url.Parse(webhook)
	if err != nil {
		return err
	}

	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = retries
	httpClient.Logger = nil

	req, err := retryablehttp.NewRequest("POST", hook.String(), bytes.NewBuffer(payloadBin))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	if timeout == "" {
		timeout = "10s"
	}
	t, err := time.ParseDuration(timeout)
	if err != nil {
		return err
	}

	httpClient.HTTPClient.Timeout = t

	r, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer r.Body.Close()

	b, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("error reading body: %s", err.Error())
	}

	if r.StatusCode > 202 {
		return errors.New(string(b))
	}

	return nil
}

// webhookPayload assembles the canary state snapshot posted to every hook,
// the status metadata is stringified so receivers can treat it uniformly
func webhookPayload(r *rolloutsv1.Canary, phase rolloutsv1.CanaryPhase, hookType rolloutsv1.HookType) rolloutsv1.CanaryWebhookPayload {
	return rolloutsv1.CanaryWebhookPayload{
		Name:          r.Name,
		Namespace:     r.Namespace,
		Phase:         phase,
		Checksum:      r.CanaryChecksum(),
		AnalysisRunID: r.Status.AnalysisRunID,
		Type:          hookType,
		FailedChecks:  r.Status.FailedChecks,
		CanaryWeight:  r.Status.CanaryWeight,
		Iterations:    r.Status.Iterations,
		RemainingTime: r.GetRemainingTime(),
		Metadata: map[string]string{
			"timestamp":        strconv.FormatInt(time.Now().UnixNano()/1000000, 10),
			"phase":            string(r.Status.Phase),
			"failedChecks":     strconv.Itoa(r.Status.FailedChecks),
			"canaryWeight":     strconv.Itoa(r.Status.CanaryWeight),
			"iterations":       strconv.Itoa(r.Status.Iterations),
			"analysisRunId":    r.Status.AnalysisRunID,
			"lastAppliedSpec":  r.Status.LastAppliedSpec,
			"lastPromotedSpec": r.Status.LastPromotedSpec,
		},
	}
}

// mergeWebhookMetadata copies the hook metadata into the payload,
// the canary state keys cannot be overridden
func mergeWebhookMetadata(payload *rolloutsv1.CanaryWebhookPayload, metadata *map[string]string) {
	if metadata == nil {
		return
	}
	for key, value := range *metadata {
		if _, ok := payload.Metadata[key]; ok {
			continue
		}
		payload.Metadata[key] = value
	}
}

// CallWebhook does a HTTP POST to an external service and
// returns an error if the response status code is non-2xx
func CallWebhook(r rolloutsv1.Canary, phase rolloutsv1.CanaryPhase, w rolloutsv1.CanaryWebhook) error {
	payload := webhookPayload(&r, phase, w.Type)
	mergeWebhookMetadata(&payload, w.Metadata)

	if len(w.Timeout) < 2 {
		w.Timeout = "10s"
	}

	return callWebhook(w.URL, payload, w.Timeout, w.GetRetries())
}

// CallEventWebhook posts the canary event to an external endpoint
func CallEventWebhook(r *rolloutsv1.Canary, w rolloutsv1.CanaryWebhook, message, eventtype string) error {
	payload := webhookPayload(r, r.Status.Phase, w.Type)
	payload.Metadata["eventMessage"] = message
	payload.Metadata["eventType"] = eventtype
	mergeWebhookMetadata(&payload, w.Metadata)

	return callWebhook(w.URL, payload, "5s", w.GetRetries())
}
