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

import (
	"context"
	"fmt"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/zap"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"
	gatewayapiclientset "sigs.k8s.io/gateway-api/pkg/client/clientset/versioned"

	rolloutsv1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
)

var (
	pathMatchType   = gatewayv1.PathMatchPathPrefix
	pathMatchValue  = "/"
	headerMatchType = gatewayv1.HeaderMatchExact
)

// GatewayAPIRouter shifts traffic by updating the weighted backends
// of the HTTPRoute generated for the apex service
type GatewayAPIRouter struct {
	gatewayAPIClient gatewayapiclientset.Interface
	kubeClient       kubernetes.Interface
	logger           *zap.SugaredLogger
}

// Reconcile creates or updates the HTTPRoute, the backend weights of an
// existing route are left untouched
func (gwr *GatewayAPIRouter) Reconcile(canary *rolloutsv1.Canary) error {
	if len(canary.Spec.Service.GatewayRefs) == 0 {
		return fmt.Errorf("HTTPRoute %s.%s has no gatewayRefs", canary.Spec.TargetRef.Name, canary.Namespace)
	}

	apexName, _, _ := canary.GetServiceNames()
	hostNames := []gatewayv1.Hostname{}
	for _, host := range canary.Spec.Service.Hosts {
		hostNames = append(hostNames, gatewayv1.Hostname(host))
	}

	matches, err := gwr.mapRouteMatches(canary)
	if err != nil {
		return fmt.Errorf("mapRouteMatches failed: %w", err)
	}

	httpRouteSpec := gatewayv1.HTTPRouteSpec{
		CommonRouteSpec: gatewayv1.CommonRouteSpec{
			ParentRefs: canary.Spec.Service.GatewayRefs,
		},
		Hostnames: hostNames,
		Rules: []gatewayv1.HTTPRouteRule{
			{
				Matches: matches,
				BackendRefs: []gatewayv1.HTTPBackendRef{
					gwr.makeBackendRef(fmt.Sprintf("%s-primary", apexName), 100, canary.Spec.Service.Port),
					gwr.makeBackendRef(fmt.Sprintf("%s-canary", apexName), 0, canary.Spec.Service.Port),
				},
			},
		},
	}

	// A/B testing: the rule matching the configured headers routes to the canary
	if len(canary.GetAnalysis().Match) > 0 && canary.GetAnalysis().Iterations > 0 {
		abMatches, err := gwr.mapHeaderMatches(canary.GetAnalysis().Match)
		if err != nil {
			return fmt.Errorf("mapHeaderMatches failed: %w", err)
		}
		httpRouteSpec.Rules = append([]gatewayv1.HTTPRouteRule{
			{
				Matches: abMatches,
				BackendRefs: []gatewayv1.HTTPBackendRef{
					gwr.makeBackendRef(fmt.Sprintf("%s-canary", apexName), 0, canary.Spec.Service.Port),
				},
			},
		}, httpRouteSpec.Rules...)
	}

	httpRoute, err := gwr.gatewayAPIClient.GatewayV1().HTTPRoutes(canary.Namespace).
		Get(context.TODO(), apexName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		route := &gatewayv1.HTTPRoute{
			ObjectMeta: metav1.ObjectMeta{
				Name:        apexName,
				Namespace:   canary.Namespace,
				Annotations: filterMetadata(canary.Annotations),
				OwnerReferences: []metav1.OwnerReference{
					*metav1.NewControllerRef(canary, rolloutsv1.SchemeGroupVersion.WithKind(rolloutsv1.CanaryKind)),
				},
			},
			Spec: httpRouteSpec,
		}

		_, err := gwr.gatewayAPIClient.GatewayV1().HTTPRoutes(canary.Namespace).
			Create(context.TODO(), route, metav1.CreateOptions{})
		if err != nil {
			return fmt.Errorf("HTTPRoute %s.%s create error: %w", apexName, canary.Namespace, err)
		}
		gwr.logger.With("canary", fmt.Sprintf("%s.%s", canary.Name, canary.Namespace)).
			Infof("HTTPRoute %s.%s created", apexName, canary.Namespace)
		return nil
	} else if err != nil {
		return fmt.Errorf("HTTPRoute %s.%s get error: %w", apexName, canary.Namespace, err)
	}

	ignoreCmpOptions := []cmp.Option{
		cmpopts.IgnoreFields(gatewayv1.BackendRef{}, "Weight"),
		cmpopts.EquateEmpty(),
	}
	if diff := cmp.Diff(httpRouteSpec, httpRoute.Spec, ignoreCmpOptions...); diff != "" {
		routeClone := httpRoute.DeepCopy()
		routeClone.Spec = httpRouteSpec

		// keep the weights of the existing route
		if len(routeClone.Spec.Rules) == len(httpRoute.Spec.Rules) {
			for i, rule := range httpRoute.Spec.Rules {
				if len(routeClone.Spec.Rules[i].BackendRefs) == len(rule.BackendRefs) {
					for j, ref := range rule.BackendRefs {
						routeClone.Spec.Rules[i].BackendRefs[j].Weight = ref.Weight
					}
				}
			}
		}

		_, err := gwr.gatewayAPIClient.GatewayV1().HTTPRoutes(canary.Namespace).
			Update(context.TODO(), routeClone, metav1.UpdateOptions{})
		if err != nil {
			return fmt.Errorf("HTTPRoute %s.%s update error: %w", apexName, canary.Namespace, err)
		}
		gwr.logger.With("canary", fmt.Sprintf("%s.%s", canary.Name, canary.Namespace)).
			Infof("HTTPRoute %s.%s updated", apexName, canary.Namespace)
	}

	return nil
}

// GetRoutes returns the primary and canary backend weights
func (gwr *GatewayAPIRouter) GetRoutes(canary *rolloutsv1.Canary) (
	primaryWeight int,
	canaryWeight int,
	mirrored bool,
	err error,
) {
	apexName, primaryName, canaryName := canary.GetServiceNames()
	httpRoute, err := gwr.gatewayAPIClient.GatewayV1().HTTPRoutes(canary.Namespace).
		Get(context.TODO(), apexName, metav1.GetOptions{})
	if err != nil {
		err = fmt.Errorf("HTTPRoute %s.%s get error: %w", apexName, canary.Namespace, err)
		return
	}

	for _, rule := range httpRoute.Spec.Rules {
		// skip the A/B testing rule
		if len(rule.BackendRefs) < 2 {
			continue
		}
		for _, ref := range rule.BackendRefs {
			if ref.Weight == nil {
				continue
			}
			if string(ref.Name) == primaryName {
				primaryWeight = int(*ref.Weight)
			}
			if string(ref.Name) == canaryName {
				canaryWeight = int(*ref.Weight)
			}
		}
		for _, filter := range rule.Filters {
			if filter.Type == gatewayv1.HTTPRouteFilterRequestMirror && filter.RequestMirror != nil &&
				string(filter.RequestMirror.BackendRef.Name) == canaryName {
				mirrored = true
			}
		}
	}

	return
}

// SetRoutes updates the primary and canary backend weights, the update is
// skipped when the route already carries the desired weights
func (gwr *GatewayAPIRouter) SetRoutes(
	canary *rolloutsv1.Canary,
	primaryWeight int,
	canaryWeight int,
	mirrored bool,
) error {
	pWeight, cWeight, m, err := gwr.GetRoutes(canary)
	if err != nil {
		return err
	}
	if pWeight == primaryWeight && cWeight == canaryWeight && m == mirrored {
		return nil
	}

	apexName, primaryName, canaryName := canary.GetServiceNames()
	httpRoute, err := gwr.gatewayAPIClient.GatewayV1().HTTPRoutes(canary.Namespace).
		Get(context.TODO(), apexName, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("HTTPRoute %s.%s get error: %w", apexName, canary.Namespace, err)
	}

	routeClone := httpRoute.DeepCopy()
	for i, rule := range routeClone.Spec.Rules {
		if len(rule.BackendRefs) < 2 {
			// the A/B testing rule routes all matched requests to the canary
			for j, ref := range rule.BackendRefs {
				if string(ref.Name) == canaryName {
					routeClone.Spec.Rules[i].BackendRefs[j].Weight = int32p(int32(canaryWeight))
				}
			}
			continue
		}

		for j, ref := range rule.BackendRefs {
			if string(ref.Name) == primaryName {
				routeClone.Spec.Rules[i].BackendRefs[j].Weight = int32p(int32(primaryWeight))
			}
			if string(ref.Name) == canaryName {
				routeClone.Spec.Rules[i].BackendRefs[j].Weight = int32p(int32(canaryWeight))
			}
		}

		routeClone.Spec.Rules[i].Filters = gwr.setMirrorFilter(rule.Filters, canaryName, canary.Spec.Service.Port, mirrored)
	}

	_, err = gwr.gatewayAPIClient.GatewayV1().HTTPRoutes(canary.Namespace).
		Update(context.TODO(), routeClone, metav1.UpdateOptions{})
	if err != nil {
		return fmt.Errorf("HTTPRoute %s.%s update error: %w", apexName, canary.Namespace, err)
	}

	return nil
}

// Finalize removes the canary backend weight
func (gwr *GatewayAPIRouter) Finalize(canary *rolloutsv1.Canary) error {
	return gwr.SetRoutes(canary, 100, 0, false)
}

func (gwr *GatewayAPIRouter) makeBackendRef(name string, weight int32, port int32) gatewayv1.HTTPBackendRef {
	return gatewayv1.HTTPBackendRef{
		BackendRef: gatewayv1.BackendRef{
			BackendObjectReference: gatewayv1.BackendObjectReference{
				Name: gatewayv1.ObjectName(name),
				Port: portNumber(port),
			},
			Weight: int32p(weight),
		},
	}
}

func (gwr *GatewayAPIRouter) setMirrorFilter(filters []gatewayv1.HTTPRouteFilter, canaryName string, port int32, mirrored bool) []gatewayv1.HTTPRouteFilter {
	res := make([]gatewayv1.HTTPRouteFilter, 0, len(filters))
	for _, filter := range filters {
		if filter.Type == gatewayv1.HTTPRouteFilterRequestMirror && filter.RequestMirror != nil &&
			string(filter.RequestMirror.BackendRef.Name) == canaryName {
			continue
		}
		res = append(res, filter)
	}

	if mirrored {
		res = append(res, gatewayv1.HTTPRouteFilter{
			Type: gatewayv1.HTTPRouteFilterRequestMirror,
			RequestMirror: &gatewayv1.HTTPRequestMirrorFilter{
				BackendRef: gatewayv1.BackendObjectReference{
					Name: gatewayv1.ObjectName(canaryName),
					Port: portNumber(port),
				},
			},
		})
	}

	return res
}

func (gwr *GatewayAPIRouter) mapRouteMatches(canary *rolloutsv1.Canary) ([]gatewayv1.HTTPRouteMatch, error) {
	matches := []gatewayv1.HTTPRouteMatch{
		{
			Path: &gatewayv1.HTTPPathMatch{
				Type:  &pathMatchType,
				Value: &pathMatchValue,
			},
		},
	}
	return matches, nil
}

func (gwr *GatewayAPIRouter) mapHeaderMatches(match []rolloutsv1.CanaryMatch) ([]gatewayv1.HTTPRouteMatch, error) {
	matches := []gatewayv1.HTTPRouteMatch{}
	for _, m := range match {
		headers := []gatewayv1.HTTPHeaderMatch{}
		for name, value := range m.Headers {
			headers = append(headers, gatewayv1.HTTPHeaderMatch{
				Type:  &headerMatchType,
				Name:  gatewayv1.HTTPHeaderName(name),
				Value: value,
			})
		}
		matches = append(matches, gatewayv1.HTTPRouteMatch{
			Path: &gatewayv1.HTTPPathMatch{
				Type:  &pathMatchType,
				Value: &pathMatchValue,
			},
			Headers: headers,
		})
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("A/B testing requires at least one header match condition")
	}

	return matches, nil
}

func portNumber(port int32) *gatewayv1.PortNumber {
	pn := gatewayv1.PortNumber(port)
	return &pn
}

func int32p(i int32) *int32 {
	return &i
}
