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

import "errors"

var (
	// ErrNoValuesFound is returned when the query result contains no values,
	// the caller treats it as an inconclusive check rather than a failure
	ErrNoValuesFound = errors.New("no values found")

	// ErrTooManyRequests is returned when the metrics backend throttles the query
	ErrTooManyRequests = errors.New("too many requests")

	// ErrSkipAnalysis signals that the current analysis run should be skipped
	ErrSkipAnalysis = errors.New("skip analysis")

	// ErrHistoricalWindowNotConfigured is returned when a historical value is
	// requested but no history window is set on the provider
	ErrHistoricalWindowNotConfigured = errors.New("historical window not configured")
)
