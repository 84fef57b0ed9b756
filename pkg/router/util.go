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

package router

import "strings"

// includeLabelsByPrefix returns the labels whose key matches one of the
// given prefixes, a single "*" prefix includes everything except the
// flux toolkit labels
func includeLabelsByPrefix(labels map[string]string, includeLabelPrefixes []string) map[string]string {
	filteredLabels := make(map[string]string)
	for key, value := range labels {
		if strings.Contains(key, "toolkit.fluxcd.io") {
			continue
		}
		for _, includeLabelPrefix := range includeLabelPrefixes {
			if includeLabelPrefix == "*" || (includeLabelPrefix != "" && strings.HasPrefix(key, includeLabelPrefix)) {
				filteredLabels[key] = value
				break
			}
		}
	}

	return filteredLabels
}

// filterMetadata copies the metadata and marks the generated object as
// unmanaged by the flux toolkit controllers
func filterMetadata(meta map[string]string) map[string]string {
	res := make(map[string]string)
	for k, v := range meta {
		res[k] = v
	}
	res["kustomize.toolkit.fluxcd.io/reconcile"] = "disabled"
	res["helm.toolkit.fluxcd.io/driftDetection"] = "disabled"
	return res
}
