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
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/h2non/gock.v1"
	corev1 "k8s.io/api/core/v1"

	rolloutsv1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
)

var secretRef = corev1.LocalObjectReference{Name: "prometheus-auth"}

func TestNewPrometheusProvider(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		prom, err := NewPrometheusProvider(rolloutsv1.MetricTemplateProvider{
			Type:    "prometheus",
			Address: "http://prometheus:9090",
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, "http://prometheus:9090", prom.url.String())
	})

	t.Run("invalid address", func(t *testing.T) {
		_, err := NewPrometheusProvider(rolloutsv1.MetricTemplateProvider{
			Type: "prometheus",
		}, nil)
		require.Error(t, err)
	})

	t.Run("missing password", func(t *testing.T) {
		_, err := NewPrometheusProvider(rolloutsv1.MetricTemplateProvider{
			Type:      "prometheus",
			Address:   "http://prometheus:9090",
			SecretRef: &secretRef,
		}, map[string][]byte{"username": []byte("user")})
		require.Error(t, err)
	})
}

func TestPrometheusProvider_ExecuteCurrentQuery(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "sum(rate(http_requests_total[1m]))", r.URL.Query().Get("query"))
			w.Write([]byte(`{"status":"success","data":{"resultType":"vector","result":[{"metric":{},"value":[1643023680,"100"]}]}}`))
		}))
		defer ts.Close()

		prom, err := NewPrometheusProvider(rolloutsv1.MetricTemplateProvider{
			Type:    "prometheus",
			Address: ts.URL,
		}, nil)
		require.NoError(t, err)

		val, err := prom.ExecuteCurrentQuery(`sum(rate(http_requests_total[1m]))`)
		require.NoError(t, err)
		assert.Equal(t, float64(100), val)
	})

	t.Run("no values", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"success","data":{"resultType":"vector","result":[]}}`))
		}))
		defer ts.Close()

		prom, err := NewPrometheusProvider(rolloutsv1.MetricTemplateProvider{
			Type:    "prometheus",
			Address: ts.URL,
		}, nil)
		require.NoError(t, err)

		_, err = prom.ExecuteCurrentQuery("vector(0)")
		require.True(t, errors.Is(err, ErrNoValuesFound))
	})

	t.Run("too many requests", func(t *testing.T) {
		prom, err := NewPrometheusProvider(rolloutsv1.MetricTemplateProvider{
			Type:    "prometheus",
			Address: "http://prometheus:9090",
		}, nil)
		require.NoError(t, err)

		// intercept only the provider client so other tests keep
		// the default transport
		gock.InterceptClient(prom.client)
		defer gock.RestoreClient(prom.client)
		defer gock.Off()
		gock.New("http://prometheus:9090").
			Get("/api/v1/query").
			Reply(http.StatusTooManyRequests)

		_, err = prom.ExecuteCurrentQuery("vector(1)")
		require.True(t, errors.Is(err, ErrTooManyRequests))
	})
}

func TestPrometheusProvider_IsOnline(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, prometheusOnlineQuery, r.URL.Query().Get("query"))
			w.Write([]byte(`{"status":"success","data":{"resultType":"vector","result":[{"metric":{},"value":[1643023680,"1"]}]}}`))
		}))
		defer ts.Close()

		prom, err := NewPrometheusProvider(rolloutsv1.MetricTemplateProvider{
			Type:    "prometheus",
			Address: ts.URL,
		}, nil)
		require.NoError(t, err)

		ok, err := prom.IsOnline()
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("basic auth", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "user", user)
			assert.Equal(t, "pass", pass)
			w.Write([]byte(`{"status":"success","data":{"resultType":"vector","result":[{"metric":{},"value":[1643023680,"1"]}]}}`))
		}))
		defer ts.Close()

		prom, err := NewPrometheusProvider(rolloutsv1.MetricTemplateProvider{
			Type:      "prometheus",
			Address:   ts.URL,
			SecretRef: &secretRef,
		}, map[string][]byte{
			"username": []byte("user"),
			"password": []byte("pass"),
		})
		require.NoError(t, err)

		ok, err := prom.IsOnline()
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unreachable", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer ts.Close()

		prom, err := NewPrometheusProvider(rolloutsv1.MetricTemplateProvider{
			Type:    "prometheus",
			Address: ts.URL,
		}, nil)
		require.NoError(t, err)

		ok, _ := prom.IsOnline()
		assert.False(t, ok)
	})
}
