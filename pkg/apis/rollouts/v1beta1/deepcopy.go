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
	"k8s.io/apimachinery/pkg/runtime"
	gatewayv1 "sigs.k8s.io/gateway-api/apis/v1"
)

// DeepCopyInto copies the receiver into out
func (in *Canary) DeepCopyInto(out *Canary) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	in.Spec.DeepCopyInto(&out.Spec)
	in.Status.DeepCopyInto(&out.Status)
}

// DeepCopy creates a new Canary
func (in *Canary) DeepCopy() *Canary {
	if in == nil {
		return nil
	}
	out := new(Canary)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject creates a new runtime.Object
func (in *Canary) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

// DeepCopyInto copies the receiver into out
func (in *CanaryList) DeepCopyInto(out *CanaryList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		l := make([]Canary, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&l[i])
		}
		out.Items = l
	}
}

// DeepCopy creates a new CanaryList
func (in *CanaryList) DeepCopy() *CanaryList {
	if in == nil {
		return nil
	}
	out := new(CanaryList)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject creates a new runtime.Object
func (in *CanaryList) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

// DeepCopyInto copies the receiver into out
func (in *CanarySpec) DeepCopyInto(out *CanarySpec) {
	*out = *in
	out.TargetRef = in.TargetRef
	if in.AutoscalerRef != nil {
		out.AutoscalerRef = in.AutoscalerRef.DeepCopy()
	}
	in.Service.DeepCopyInto(&out.Service)
	if in.Analysis != nil {
		out.Analysis = in.Analysis.DeepCopy()
	}
	if in.ProgressDeadlineSeconds != nil {
		v := *in.ProgressDeadlineSeconds
		out.ProgressDeadlineSeconds = &v
	}
}

// DeepCopy creates a new CanarySpec
func (in *CanarySpec) DeepCopy() *CanarySpec {
	if in == nil {
		return nil
	}
	out := new(CanarySpec)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyInto copies the receiver into out
func (in *AutoscalerReference) DeepCopyInto(out *AutoscalerReference) {
	*out = *in
	if in.PrimaryScalerQueries != nil {
		m := make(map[string]string, len(in.PrimaryScalerQueries))
		for k, v := range in.PrimaryScalerQueries {
			m[k] = v
		}
		out.PrimaryScalerQueries = m
	}
	if in.PrimaryScalerReplicas != nil {
		out.PrimaryScalerReplicas = in.PrimaryScalerReplicas.DeepCopy()
	}
}

// DeepCopy creates a new AutoscalerReference
func (in *AutoscalerReference) DeepCopy() *AutoscalerReference {
	if in == nil {
		return nil
	}
	out := new(AutoscalerReference)
	in.DeepCopyInto(out)
	return out
}

// DeepCopy creates a new ScalerReplicas
func (in *ScalerReplicas) DeepCopy() *ScalerReplicas {
	if in == nil {
		return nil
	}
	out := new(ScalerReplicas)
	if in.MinReplicas != nil {
		v := *in.MinReplicas
		out.MinReplicas = &v
	}
	if in.MaxReplicas != nil {
		v := *in.MaxReplicas
		out.MaxReplicas = &v
	}
	return out
}

// DeepCopyInto copies the receiver into out
func (in *CanaryService) DeepCopyInto(out *CanaryService) {
	*out = *in
	out.TargetPort = in.TargetPort
	if in.GatewayRefs != nil {
		l := make([]gatewayv1.ParentReference, len(in.GatewayRefs))
		for i := range in.GatewayRefs {
			in.GatewayRefs[i].DeepCopyInto(&l[i])
		}
		out.GatewayRefs = l
	}
	if in.Hosts != nil {
		out.Hosts = append([]string(nil), in.Hosts...)
	}
	if in.Apex != nil {
		out.Apex = in.Apex.DeepCopy()
	}
	if in.Canary != nil {
		out.Canary = in.Canary.DeepCopy()
	}
	if in.Primary != nil {
		out.Primary = in.Primary.DeepCopy()
	}
	if in.Headers != nil {
		m := make(map[string]string, len(in.Headers))
		for k, v := range in.Headers {
			m[k] = v
		}
		out.Headers = m
	}
	if in.AttributeRouting != nil {
		v := *in.AttributeRouting
		out.AttributeRouting = &v
	}
}

// DeepCopy creates a new CustomMetadata
func (in *CustomMetadata) DeepCopy() *CustomMetadata {
	if in == nil {
		return nil
	}
	out := new(CustomMetadata)
	if in.Labels != nil {
		m := make(map[string]string, len(in.Labels))
		for k, v := range in.Labels {
			m[k] = v
		}
		out.Labels = m
	}
	if in.Annotations != nil {
		m := make(map[string]string, len(in.Annotations))
		for k, v := range in.Annotations {
			m[k] = v
		}
		out.Annotations = m
	}
	return out
}

// DeepCopyInto copies the receiver into out
func (in *CanaryAnalysis) DeepCopyInto(out *CanaryAnalysis) {
	*out = *in
	if in.StepWeights != nil {
		out.StepWeights = append([]int(nil), in.StepWeights...)
	}
	if in.Match != nil {
		l := make([]CanaryMatch, len(in.Match))
		for i := range in.Match {
			if in.Match[i].Headers != nil {
				m := make(map[string]string, len(in.Match[i].Headers))
				for k, v := range in.Match[i].Headers {
					m[k] = v
				}
				l[i].Headers = m
			}
		}
		out.Match = l
	}
	if in.Metrics != nil {
		l := make([]CanaryMetric, len(in.Metrics))
		for i := range in.Metrics {
			in.Metrics[i].DeepCopyInto(&l[i])
		}
		out.Metrics = l
	}
	if in.Webhooks != nil {
		l := make([]CanaryWebhook, len(in.Webhooks))
		for i := range in.Webhooks {
			in.Webhooks[i].DeepCopyInto(&l[i])
		}
		out.Webhooks = l
	}
}

// DeepCopy creates a new CanaryAnalysis
func (in *CanaryAnalysis) DeepCopy() *CanaryAnalysis {
	if in == nil {
		return nil
	}
	out := new(CanaryAnalysis)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyInto copies the receiver into out
func (in *CanaryMetric) DeepCopyInto(out *CanaryMetric) {
	*out = *in
	if in.ThresholdRange != nil {
		tr := new(CanaryThresholdRange)
		if in.ThresholdRange.Min != nil {
			v := *in.ThresholdRange.Min
			tr.Min = &v
		}
		if in.ThresholdRange.Max != nil {
			v := *in.ThresholdRange.Max
			tr.Max = &v
		}
		out.ThresholdRange = tr
	}
	if in.Provider != nil {
		p := *in.Provider
		if in.Provider.SecretRef != nil {
			ref := *in.Provider.SecretRef
			p.SecretRef = &ref
		}
		out.Provider = &p
	}
}

// DeepCopyInto copies the receiver into out
func (in *CanaryWebhook) DeepCopyInto(out *CanaryWebhook) {
	*out = *in
	if in.Metadata != nil {
		m := make(map[string]string, len(*in.Metadata))
		for k, v := range *in.Metadata {
			m[k] = v
		}
		out.Metadata = &m
	}
}

// DeepCopyInto copies the receiver into out
func (in *CanaryStatus) DeepCopyInto(out *CanaryStatus) {
	*out = *in
	if in.TrackedConfigs != nil {
		m := make(map[string]string, len(*in.TrackedConfigs))
		for k, v := range *in.TrackedConfigs {
			m[k] = v
		}
		out.TrackedConfigs = &m
	}
	in.LastTransitionTime.DeepCopyInto(&out.LastTransitionTime)
	in.LastStartTime.DeepCopyInto(&out.LastStartTime)
	if in.Conditions != nil {
		l := make([]CanaryCondition, len(in.Conditions))
		for i := range in.Conditions {
			l[i] = in.Conditions[i]
			in.Conditions[i].LastUpdateTime.DeepCopyInto(&l[i].LastUpdateTime)
			in.Conditions[i].LastTransitionTime.DeepCopyInto(&l[i].LastTransitionTime)
		}
		out.Conditions = l
	}
}

// DeepCopy creates a new CanaryStatus
func (in *CanaryStatus) DeepCopy() *CanaryStatus {
	if in == nil {
		return nil
	}
	out := new(CanaryStatus)
	in.DeepCopyInto(out)
	return out
}
