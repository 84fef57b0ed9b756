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

package v1alpha1

import (
	"context"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/rest"

	kedav1alpha1 "github.com/MoeGolibrary/rollouts/pkg/apis/keda/v1alpha1"
	"github.com/MoeGolibrary/rollouts/pkg/client/clientset/versioned/scheme"
)

// ScaledObjectsGetter has a method to return a ScaledObjectInterface
type ScaledObjectsGetter interface {
	ScaledObjects(namespace string) ScaledObjectInterface
}

// ScaledObjectInterface has methods to work with ScaledObject resources
type ScaledObjectInterface interface {
	Create(ctx context.Context, scaledObject *kedav1alpha1.ScaledObject, opts metav1.CreateOptions) (*kedav1alpha1.ScaledObject, error)
	Update(ctx context.Context, scaledObject *kedav1alpha1.ScaledObject, opts metav1.UpdateOptions) (*kedav1alpha1.ScaledObject, error)
	Delete(ctx context.Context, name string, opts metav1.DeleteOptions) error
	Get(ctx context.Context, name string, opts metav1.GetOptions) (*kedav1alpha1.ScaledObject, error)
	List(ctx context.Context, opts metav1.ListOptions) (*kedav1alpha1.ScaledObjectList, error)
	Watch(ctx context.Context, opts metav1.ListOptions) (watch.Interface, error)
}

// scaledObjects implements ScaledObjectInterface
type scaledObjects struct {
	client rest.Interface
	ns     string
}

func newScaledObjects(c *KedaV1alpha1Client, namespace string) *scaledObjects {
	return &scaledObjects{
		client: c.RESTClient(),
		ns:     namespace,
	}
}

func (c *scaledObjects) Get(ctx context.Context, name string, opts metav1.GetOptions) (*kedav1alpha1.ScaledObject, error) {
	result := &kedav1alpha1.ScaledObject{}
	err := c.client.Get().
		Namespace(c.ns).
		Resource("scaledobjects").
		Name(name).
		VersionedParams(&opts, scheme.ParameterCodec).
		Do(ctx).
		Into(result)
	return result, err
}

func (c *scaledObjects) List(ctx context.Context, opts metav1.ListOptions) (*kedav1alpha1.ScaledObjectList, error) {
	var timeout time.Duration
	if opts.TimeoutSeconds != nil {
		timeout = time.Duration(*opts.TimeoutSeconds) * time.Second
	}
	result := &kedav1alpha1.ScaledObjectList{}
	err := c.client.Get().
		Namespace(c.ns).
		Resource("scaledobjects").
		VersionedParams(&opts, scheme.ParameterCodec).
		Timeout(timeout).
		Do(ctx).
		Into(result)
	return result, err
}

func (c *scaledObjects) Watch(ctx context.Context, opts metav1.ListOptions) (watch.Interface, error) {
	var timeout time.Duration
	if opts.TimeoutSeconds != nil {
		timeout = time.Duration(*opts.TimeoutSeconds) * time.Second
	}
	opts.Watch = true
	return c.client.Get().
		Namespace(c.ns).
		Resource("scaledobjects").
		VersionedParams(&opts, scheme.ParameterCodec).
		Timeout(timeout).
		Watch(ctx)
}

func (c *scaledObjects) Create(ctx context.Context, scaledObject *kedav1alpha1.ScaledObject, opts metav1.CreateOptions) (*kedav1alpha1.ScaledObject, error) {
	result := &kedav1alpha1.ScaledObject{}
	err := c.client.Post().
		Namespace(c.ns).
		Resource("scaledobjects").
		VersionedParams(&opts, scheme.ParameterCodec).
		Body(scaledObject).
		Do(ctx).
		Into(result)
	return result, err
}

func (c *scaledObjects) Update(ctx context.Context, scaledObject *kedav1alpha1.ScaledObject, opts metav1.UpdateOptions) (*kedav1alpha1.ScaledObject, error) {
	result := &kedav1alpha1.ScaledObject{}
	err := c.client.Put().
		Namespace(c.ns).
		Resource("scaledobjects").
		Name(scaledObject.Name).
		VersionedParams(&opts, scheme.ParameterCodec).
		Body(scaledObject).
		Do(ctx).
		Into(result)
	return result, err
}

func (c *scaledObjects) Delete(ctx context.Context, name string, opts metav1.DeleteOptions) error {
	return c.client.Delete().
		Namespace(c.ns).
		Resource("scaledobjects").
		Name(name).
		Body(&opts).
		Do(ctx).
		Error()
}
