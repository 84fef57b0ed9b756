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

package scheme

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/runtime/serializer"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"

	kedav1alpha1 "github.com/MoeGolibrary/rollouts/pkg/apis/keda/v1alpha1"
	rolloutsv1beta1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
)

var Scheme = runtime.NewScheme()
var Codecs = serializer.NewCodecFactory(Scheme)
var ParameterCodec = runtime.NewParameterCodec(Scheme)

// KedaSchemeGroupVersion is the group version used to register the KEDA types
var KedaSchemeGroupVersion = schema.GroupVersion{Group: "keda.sh", Version: "v1alpha1"}

func init() {
	metav1.AddToGroupVersion(Scheme, schema.GroupVersion{Version: "v1"})
	utilruntime.Must(AddToScheme(Scheme))
}

// AddToScheme registers the canary and scaled object types
func AddToScheme(scheme *runtime.Scheme) error {
	if err := rolloutsv1beta1.AddToScheme(scheme); err != nil {
		return err
	}

	scheme.AddKnownTypes(KedaSchemeGroupVersion,
		&kedav1alpha1.ScaledObject{},
		&kedav1alpha1.ScaledObjectList{},
	)
	metav1.AddToGroupVersion(scheme, KedaSchemeGroupVersion)
	return nil
}
