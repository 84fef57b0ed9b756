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

package observers

import (
	"fmt"
	"strings"
	"text/template"
	"time"
)

// MetricTemplateModel holds the variables exposed to the built-in query templates
type MetricTemplateModel struct {
	Name      string
	Namespace string
	Target    string
	Service   string
	Interval  string
}

// Interface is implemented by the built-in metric observers
type Interface interface {
	// GetRequestSuccessRate returns the percentage of non-5xx requests
	// routed to the canary workload over the given interval
	GetRequestSuccessRate(model MetricTemplateModel) (float64, error)

	// GetRequestDuration returns the P99 latency of the requests
	// routed to the canary workload over the given interval
	GetRequestDuration(model MetricTemplateModel) (time.Duration, error)
}

// RenderQuery executes the query template with the given model
func RenderQuery(queryTemplate string, model MetricTemplateModel) (string, error) {
	t, err := template.New("tmpl").Parse(queryTemplate)
	if err != nil {
		return "", fmt.Errorf("template parsing failed: %w", err)
	}

	var b strings.Builder
	if err := t.Execute(&b, model); err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}

	return b.String(), nil
}
