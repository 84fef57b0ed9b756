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

// Package fake provides an in-memory clientset for tests.
// Writes bump the resource version and stale updates are rejected
// with a conflict, matching the optimistic concurrency of the API server.
package fake

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/rest"

	kedav1alpha1 "github.com/MoeGolibrary/rollouts/pkg/apis/keda/v1alpha1"
	rolloutsv1beta1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
	typedkedav1alpha1 "github.com/MoeGolibrary/rollouts/pkg/client/clientset/versioned/typed/keda/v1alpha1"
	typedrolloutsv1beta1 "github.com/MoeGolibrary/rollouts/pkg/client/clientset/versioned/typed/rollouts/v1beta1"
)

var (
	canariesResource      = schema.GroupResource{Group: "rollouts.moegolibrary.com", Resource: "canaries"}
	scaledObjectsResource = schema.GroupResource{Group: "keda.sh", Resource: "scaledobjects"}
)

// Clientset is an in-memory implementation of versioned.Interface
type Clientset struct {
	mu            sync.RWMutex
	rv            uint64
	canaries      map[string]*rolloutsv1beta1.Canary
	scaledObjects map[string]*kedav1alpha1.ScaledObject
}

// NewSimpleClientset returns a clientset pre-loaded with the given objects
func NewSimpleClientset(objects ...interface{}) *Clientset {
	cs := &Clientset{
		canaries:      make(map[string]*rolloutsv1beta1.Canary),
		scaledObjects: make(map[string]*kedav1alpha1.ScaledObject),
	}
	for _, obj := range objects {
		switch o := obj.(type) {
		case *rolloutsv1beta1.Canary:
			c := o.DeepCopy()
			cs.stamp(&c.ObjectMeta)
			cs.canaries[key(c.Namespace, c.Name)] = c
		case *kedav1alpha1.ScaledObject:
			s := o.DeepCopy()
			cs.stamp(&s.ObjectMeta)
			cs.scaledObjects[key(s.Namespace, s.Name)] = s
		default:
			panic(fmt.Sprintf("fake clientset: unsupported object type %T", obj))
		}
	}
	return cs
}

func (c *Clientset) RolloutsV1beta1() typedrolloutsv1beta1.RolloutsV1beta1Interface {
	return &fakeRollouts{cs: c}
}

func (c *Clientset) KedaV1alpha1() typedkedav1alpha1.KedaV1alpha1Interface {
	return &fakeKeda{cs: c}
}

func key(namespace, name string) string {
	return namespace + "/" + name
}

func (c *Clientset) nextRV() string {
	c.rv++
	return strconv.FormatUint(c.rv, 10)
}

func (c *Clientset) stamp(meta *metav1.ObjectMeta) {
	meta.ResourceVersion = c.nextRV()
	if meta.UID == "" {
		meta.UID = types.UID(fmt.Sprintf("fake-uid-%s", meta.ResourceVersion))
	}
}

type fakeRollouts struct {
	cs *Clientset
}

func (f *fakeRollouts) RESTClient() rest.Interface {
	return nil
}

func (f *fakeRollouts) Canaries(namespace string) typedrolloutsv1beta1.CanaryInterface {
	return &fakeCanaries{cs: f.cs, ns: namespace}
}

type fakeCanaries struct {
	cs *Clientset
	ns string
}

func (f *fakeCanaries) Get(ctx context.Context, name string, opts metav1.GetOptions) (*rolloutsv1beta1.Canary, error) {
	f.cs.mu.RLock()
	defer f.cs.mu.RUnlock()

	c, ok := f.cs.canaries[key(f.ns, name)]
	if !ok {
		return nil, apierrors.NewNotFound(canariesResource, name)
	}
	return c.DeepCopy(), nil
}

func (f *fakeCanaries) List(ctx context.Context, opts metav1.ListOptions) (*rolloutsv1beta1.CanaryList, error) {
	f.cs.mu.RLock()
	defer f.cs.mu.RUnlock()

	list := &rolloutsv1beta1.CanaryList{}
	for _, c := range f.cs.canaries {
		if f.ns == "" || c.Namespace == f.ns {
			list.Items = append(list.Items, *c.DeepCopy())
		}
	}
	return list, nil
}

func (f *fakeCanaries) Watch(ctx context.Context, opts metav1.ListOptions) (watch.Interface, error) {
	return watch.NewFake(), nil
}

func (f *fakeCanaries) Create(ctx context.Context, canary *rolloutsv1beta1.Canary, opts metav1.CreateOptions) (*rolloutsv1beta1.Canary, error) {
	f.cs.mu.Lock()
	defer f.cs.mu.Unlock()

	k := key(f.ns, canary.Name)
	if _, ok := f.cs.canaries[k]; ok {
		return nil, apierrors.NewAlreadyExists(canariesResource, canary.Name)
	}
	c := canary.DeepCopy()
	c.Namespace = f.ns
	f.cs.stamp(&c.ObjectMeta)
	f.cs.canaries[k] = c
	return c.DeepCopy(), nil
}

func (f *fakeCanaries) Update(ctx context.Context, canary *rolloutsv1beta1.Canary, opts metav1.UpdateOptions) (*rolloutsv1beta1.Canary, error) {
	f.cs.mu.Lock()
	defer f.cs.mu.Unlock()

	k := key(f.ns, canary.Name)
	cur, ok := f.cs.canaries[k]
	if !ok {
		return nil, apierrors.NewNotFound(canariesResource, canary.Name)
	}
	if canary.ResourceVersion != "" && canary.ResourceVersion != cur.ResourceVersion {
		return nil, apierrors.NewConflict(canariesResource, canary.Name,
			fmt.Errorf("the object has been modified"))
	}
	c := canary.DeepCopy()
	c.Namespace = f.ns
	c.UID = cur.UID
	c.ResourceVersion = f.cs.nextRV()
	f.cs.canaries[k] = c
	return c.DeepCopy(), nil
}

func (f *fakeCanaries) UpdateStatus(ctx context.Context, canary *rolloutsv1beta1.Canary, opts metav1.UpdateOptions) (*rolloutsv1beta1.Canary, error) {
	f.cs.mu.Lock()
	defer f.cs.mu.Unlock()

	k := key(f.ns, canary.Name)
	cur, ok := f.cs.canaries[k]
	if !ok {
		return nil, apierrors.NewNotFound(canariesResource, canary.Name)
	}
	if canary.ResourceVersion != "" && canary.ResourceVersion != cur.ResourceVersion {
		return nil, apierrors.NewConflict(canariesResource, canary.Name,
			fmt.Errorf("the object has been modified"))
	}
	c := cur.DeepCopy()
	canary.Status.DeepCopyInto(&c.Status)
	c.ResourceVersion = f.cs.nextRV()
	f.cs.canaries[k] = c
	return c.DeepCopy(), nil
}

func (f *fakeCanaries) Delete(ctx context.Context, name string, opts metav1.DeleteOptions) error {
	f.cs.mu.Lock()
	defer f.cs.mu.Unlock()

	k := key(f.ns, name)
	if _, ok := f.cs.canaries[k]; !ok {
		return apierrors.NewNotFound(canariesResource, name)
	}
	delete(f.cs.canaries, k)
	return nil
}

type fakeKeda struct {
	cs *Clientset
}

func (f *fakeKeda) RESTClient() rest.Interface {
	return nil
}

func (f *fakeKeda) ScaledObjects(namespace string) typedkedav1alpha1.ScaledObjectInterface {
	return &fakeScaledObjects{cs: f.cs, ns: namespace}
}

type fakeScaledObjects struct {
	cs *Clientset
	ns string
}

func (f *fakeScaledObjects) Get(ctx context.Context, name string, opts metav1.GetOptions) (*kedav1alpha1.ScaledObject, error) {
	f.cs.mu.RLock()
	defer f.cs.mu.RUnlock()

	s, ok := f.cs.scaledObjects[key(f.ns, name)]
	if !ok {
		return nil, apierrors.NewNotFound(scaledObjectsResource, name)
	}
	return s.DeepCopy(), nil
}

func (f *fakeScaledObjects) List(ctx context.Context, opts metav1.ListOptions) (*kedav1alpha1.ScaledObjectList, error) {
	f.cs.mu.RLock()
	defer f.cs.mu.RUnlock()

	list := &kedav1alpha1.ScaledObjectList{}
	for _, s := range f.cs.scaledObjects {
		if f.ns == "" || s.Namespace == f.ns {
			list.Items = append(list.Items, *s.DeepCopy())
		}
	}
	return list, nil
}

func (f *fakeScaledObjects) Watch(ctx context.Context, opts metav1.ListOptions) (watch.Interface, error) {
	return watch.NewFake(), nil
}

func (f *fakeScaledObjects) Create(ctx context.Context, scaledObject *kedav1alpha1.ScaledObject, opts metav1.CreateOptions) (*kedav1alpha1.ScaledObject, error) {
	f.cs.mu.Lock()
	defer f.cs.mu.Unlock()

	k := key(f.ns, scaledObject.Name)
	if _, ok := f.cs.scaledObjects[k]; ok {
		return nil, apierrors.NewAlreadyExists(scaledObjectsResource, scaledObject.Name)
	}
	s := scaledObject.DeepCopy()
	s.Namespace = f.ns
	f.cs.stamp(&s.ObjectMeta)
	f.cs.scaledObjects[k] = s
	return s.DeepCopy(), nil
}

func (f *fakeScaledObjects) Update(ctx context.Context, scaledObject *kedav1alpha1.ScaledObject, opts metav1.UpdateOptions) (*kedav1alpha1.ScaledObject, error) {
	f.cs.mu.Lock()
	defer f.cs.mu.Unlock()

	k := key(f.ns, scaledObject.Name)
	cur, ok := f.cs.scaledObjects[k]
	if !ok {
		return nil, apierrors.NewNotFound(scaledObjectsResource, scaledObject.Name)
	}
	if scaledObject.ResourceVersion != "" && scaledObject.ResourceVersion != cur.ResourceVersion {
		return nil, apierrors.NewConflict(scaledObjectsResource, scaledObject.Name,
			fmt.Errorf("the object has been modified"))
	}
	s := scaledObject.DeepCopy()
	s.Namespace = f.ns
	s.UID = cur.UID
	s.ResourceVersion = f.cs.nextRV()
	f.cs.scaledObjects[k] = s
	return s.DeepCopy(), nil
}

func (f *fakeScaledObjects) Delete(ctx context.Context, name string, opts metav1.DeleteOptions) error {
	f.cs.mu.Lock()
	defer f.cs.mu.Unlock()

	k := key(f.ns, name)
	if _, ok := f.cs.scaledObjects[k]; !ok {
		return apierrors.NewNotFound(scaledObjectsResource, name)
	}
	delete(f.cs.scaledObjects, k)
	return nil
}
