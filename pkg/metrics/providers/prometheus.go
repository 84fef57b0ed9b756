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

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	rolloutsv1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
)

const prometheusOnlineQuery = "vector(1)"

// PrometheusProvider executes promql queries
type PrometheusProvider struct {
	timeout  time.Duration
	url      url.URL
	username string
	password string
	token    string
	client   *http.Client
}

type prometheusResponse struct {
	Data struct {
		Result []struct {
			Metric struct {
				Name string `json:"name"`
			}
			Value []interface{} `json:"value"`
		}
	}
}

// NewPrometheusProvider takes a provider spec and the credentials map,
// validates the address and returns a Prometheus client
func NewPrometheusProvider(provider rolloutsv1.MetricTemplateProvider, credentials map[string][]byte) (*PrometheusProvider, error) {
	promURL, err := url.Parse(provider.Address)
	if provider.Address == "" || err != nil {
		return nil, fmt.Errorf("%s address %s is not a valid URL", provider.Type, provider.Address)
	}

	// a dedicated client keeps per provider transport settings
	// away from the process wide default
	prom := PrometheusProvider{
		timeout: 5 * time.Second,
		url:     *promURL,
		client:  &http.Client{},
	}

	if provider.InsecureSkipVerify {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		prom.client = &http.Client{Transport: t}
	}

	if provider.SecretRef != nil {
		if username, ok := credentials["username"]; ok {
			prom.username = string(username)
			if password, ok := credentials["password"]; ok {
				prom.password = string(password)
			} else {
				return nil, fmt.Errorf("%s credentials does not contain a password", provider.Type)
			}
		}

		if token, ok := credentials["token"]; ok {
			prom.token = string(token)
		}
	}

	return &prom, nil
}

// ExecuteCurrentQuery executes the promql query and returns the first result as float64
func (p *PrometheusProvider) ExecuteCurrentQuery(query string) (float64, error) {
	query = strings.Replace(query, "\n", "", -1)
	query = strings.Replace(query, "\t", "", -1)
	query = strings.Replace(query, " ", "", -1)

	var value *float64
	result, err := p.RunQuery(query)
	if err != nil {
		return 0, err
	}

	for _, v := range result.Data.Result {
		metricValue := v.Value[1]
		switch metricValue.(type) {
		case string:
			f, err := strconv.ParseFloat(metricValue.(string), 64)
			if err != nil {
				return 0, err
			}
			value = &f
		}
	}
	if value == nil {
		return 0, ErrNoValuesFound
	}

	return *value, nil
}

// GetPreviousMetricValue is not implemented for Prometheus, historical values
// are expressed with offset modifiers inside the query itself
func (p *PrometheusProvider) GetPreviousMetricValue(query string) (float64, error) {
	return 0, ErrHistoricalWindowNotConfigured
}

// RunQuery executes the promql query against the Prometheus HTTP API
func (p *PrometheusProvider) RunQuery(query string) (*prometheusResponse, error) {
	u, err := url.Parse("./api/v1/query")
	if err != nil {
		return nil, fmt.Errorf("url.Parse failed: %w", err)
	}
	u = p.url.ResolveReference(u)

	q := u.Query()
	q.Set("query", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequest("GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("http.NewRequest failed: %w", err)
	}

	if p.token != "" {
		req.Header.Add("Authorization", "Bearer "+p.token)
	} else if p.username != "" && p.password != "" {
		req.SetBasicAuth(p.username, p.password)
	}

	ctx, cancel := context.WithTimeout(req.Context(), p.timeout)
	defer cancel()

	r, err := p.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer r.Body.Close()

	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading body: %w", err)
	}

	if r.StatusCode != http.StatusOK {
		if r.StatusCode == http.StatusTooManyRequests {
			return nil, ErrTooManyRequests
		}
		return nil, fmt.Errorf("error response: %s", string(b))
	}

	var result prometheusResponse
	if err := json.Unmarshal(b, &result); err != nil {
		return nil, fmt.Errorf("error unmarshaling result: %w, '%s'", err, string(b))
	}

	return &result, nil
}

// IsOnline runs a simple promql query to check the API status
func (p *PrometheusProvider) IsOnline() (bool, error) {
	_, err := p.RunQuery(prometheusOnlineQuery)
	if err != nil {
		return false, err
	}
	return true, nil
}
