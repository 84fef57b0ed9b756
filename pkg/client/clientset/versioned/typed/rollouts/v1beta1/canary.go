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

import (
	"context"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/rest"

	rolloutsv1beta1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
	"github.com/MoeGolibrary/rollouts/pkg/client/clientset/versioned/scheme"
)

// CanariesGetter has a method to return a CanaryInterface
type CanariesGetter interface {
	Canaries(namespace string) CanaryInterface
}

// CanaryInterface has methods to work with Canary resources
type CanaryInterface interface {
	Create(ctx context.Context, canary *rolloutsv1beta1.Canary, opts metav1.CreateOptions) (*rolloutsv1beta1.Canary, error)
	Update(ctx context.Context, canary *rolloutsv1beta1.Canary, opts metav1.UpdateOptions) (*rolloutsv1beta1.Canary, error)
	UpdateStatus(ctx context.Context, canary *rolloutsv1beta1.Canary, opts metav1.UpdateOptions) (*rolloutsv1beta1.Canary, error)
	Delete(ctx context.Context, name string, opts metav1.DeleteOptions) error
	Get(ctx context.Context, name string, opts metav1.GetOptions) (*rolloutsv1beta1.Canary, error)
	List(ctx context.Context, opts metav1.ListOptions) (*rolloutsv1beta1.CanaryList, error)
	Watch(ctx context.Context, opts metav1.ListOptions) (watch.Interface, error)
}

// canaries implements CanaryInterface
type canaries struct {
	client rest.Interface
	ns     string
}

func newCanaries(c *RolloutsV1beta1Client, namespace string) *canaries {
	return &canaries{
		client: c.RESTClient(),
		ns:     namespace,
	}
}

func (c *canaries) Get(ctx context.Context, name string, opts metav1.GetOptions) (*rolloutsv1beta1.Canary, error) {
	result := &rolloutsv1beta1.Canary{}
	err := c.client.Get().
		Namespace(c.ns).
		Resource("canaries").
		Name(name).
		VersionedParams(&opts, scheme.ParameterCodec).
		Do(ctx).
		Into(result)
	return result, err
}

func (c *canaries) List(ctx context.Context, opts metav1.ListOptions) (*rolloutsv1beta1.CanaryList, error) {
	var timeout time.Duration
	if opts.TimeoutSeconds != nil {
		timeout = time.Duration(*opts.TimeoutSeconds) * time.Second
	}
	result := &rolloutsv1beta1.CanaryList{}
	err := c.client.Get().
		Namespace(c.ns).
		Resource("canaries").
		VersionedParams(&opts, scheme.ParameterCodec).
		Timeout(timeout).
		Do(ctx).
		Into(result)
	return result, err
}

func (c *canaries) Watch(ctx context.Context, opts metav1.ListOptions) (watch.Interface, error) {
	var timeout time.Duration
	if opts.TimeoutSeconds != nil {
		timeout = time.Duration(*opts.TimeoutSeconds) * time.Second
	}
	opts.Watch = true
	return c.client.Get().
		Namespace(c.ns).
		Resource("canaries").
		VersionedParams(&opts, scheme.ParameterCodec).
		Timeout(timeout).
		Watch(ctx)
}

func (c *canaries) Create(ctx context.Context, canary *rolloutsv1beta1.Canary, opts metav1.CreateOptions) (*rolloutsv1beta1.Canary, error) {
	result := &rolloutsv1beta1.Canary{}
	err := c.client.Post().
		Namespace(c.ns).
		Resource("canaries").
		VersionedParams(&opts, scheme.ParameterCodec).
		Body(canary).
		Do(ctx).
		Into(result)
	return result, err
}

func (c *canaries) Update(ctx context.Context, canary *rolloutsv1beta1.Canary, opts metav1.UpdateOptions) (*rolloutsv1beta1.Canary, error) {
	result := &rolloutsv1beta1.Canary{}
	err := c.client.Put().
		Namespace(c.ns).
		Resource("canaries").
		Name(canary.Name).
		VersionedParams(&opts, scheme.ParameterCodec).
		Body(canary).
		Do(ctx).
		Into(result)
	return result, err
}

func (c *canaries) UpdateStatus(ctx context.Context, canary *rolloutsv1beta1.Canary, opts metav1.UpdateOptions) (*rolloutsv1beta1.Canary, error) {
	result := &rolloutsv1beta1.Canary{}
	err := c.client.Put().
		Namespace(c.ns).
		Resource("canaries").
		Name(canary.Name).
		SubResource("status").
		VersionedParams(&opts, scheme.ParameterCodec).
		Body(canary).
		Do(ctx).
		Into(result)
	return result, err
}

func (c *canaries) Delete(ctx context.Context, name string, opts metav1.DeleteOptions) error {
	return c.client.Delete().
		Namespace(c.ns).
		Resource("canaries").
		Name(name).
		Body(&opts).
		Do(ctx).
		Error()
}
