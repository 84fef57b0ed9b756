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

package canary

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	rolloutsv1 "github.com/MoeGolibrary/rollouts/pkg/apis/rollouts/v1beta1"
	clientset "github.com/MoeGolibrary/rollouts/pkg/client/clientset/versioned"
)

// DeploymentController manages the canary and primary Deployments
type DeploymentController struct {
	kubeClient    kubernetes.Interface
	rolloutClient clientset.Interface
	logger        *zap.SugaredLogger
	labels        []string
	configTracker *ConfigTracker
}

// Initialize creates the primary deployment if it does not exist
func (c *DeploymentController) Initialize(cd *rolloutsv1.Canary) (bool, error) {
	if err := c.createPrimaryDeployment(cd); err != nil {
		return true, fmt.Errorf("createPrimaryDeployment failed: %w", err)
	}

	return true, nil
}

// GetMetadata returns the pod selector label, the label value and the
// container ports discovered on the target deployment
func (c *DeploymentController) GetMetadata(cd *rolloutsv1.Canary) (string, string, map[string]int32, error) {
	targetName := cd.Spec.TargetRef.Name

	canaryDep, err := c.kubeClient.AppsV1().Deployments(cd.Namespace).Get(context.TODO(), targetName, metav1.GetOptions{})
	if err != nil {
		return "", "", nil, fmt.Errorf("deployment %s.%s get query error: %w", targetName, cd.Namespace, err)
	}

	label, labelValue, err := c.getSelectorLabel(canaryDep)
	if err != nil {
		return "", "", nil, fmt.Errorf("getSelectorLabel failed: %w", err)
	}

	var ports map[string]int32
	if cd.Spec.Service.PortDiscovery {
		ports = getPorts(cd, canaryDep.Spec.Template.Spec.Containers)
	}

	return label, labelValue, ports, nil
}

// Promote copies the pod spec, metadata and replicas from canary to primary
func (c *DeploymentController) Promote(cd *rolloutsv1.Canary) error {
	targetName := cd.Spec.TargetRef.Name
	primaryName := fmt.Sprintf("%s-primary", targetName)

	canary, err := c.kubeClient.AppsV1().Deployments(cd.Namespace).Get(context.TODO(), targetName, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("deployment %s.%s get query error: %w", targetName, cd.Namespace, err)
	}

	label, labelValue, err := c.getSelectorLabel(canary)
	if err != nil {
		return fmt.Errorf("getSelectorLabel failed: %w", err)
	}
	primaryLabelValue := fmt.Sprintf("%s-primary", labelValue)

	primary, err := c.kubeClient.AppsV1().Deployments(cd.Namespace).Get(context.TODO(), primaryName, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("deployment %s.%s get query error: %w", primaryName, cd.Namespace, err)
	}

	// sync the primary copies of the tracked config maps and secrets
	configRefs, err := c.configTracker.GetTargetConfigs(cd)
	if err != nil {
		return fmt.Errorf("GetTargetConfigs failed: %w", err)
	}
	if err := c.configTracker.CreatePrimaryConfigs(cd, configRefs); err != nil {
		return fmt.Errorf("CreatePrimaryConfigs failed: %w", err)
	}

	primaryCopy := primary.DeepCopy()
	primaryCopy.Spec.ProgressDeadlineSeconds = canary.Spec.ProgressDeadlineSeconds
	primaryCopy.Spec.MinReadySeconds = canary.Spec.MinReadySeconds
	primaryCopy.Spec.RevisionHistoryLimit = canary.Spec.RevisionHistoryLimit
	primaryCopy.Spec.Strategy = canary.Spec.Strategy

	// update the pod template spec with the primary config refs
	primaryCopy.Spec.Template.Spec = c.configTracker.ApplyPrimaryConfigs(*canary.Spec.Template.Spec.DeepCopy(), configRefs)

	// update the pod selector label
	primaryCopy.Spec.Template.Labels = makePrimaryLabels(canary.Spec.Template.Labels, primaryLabelValue, label)

	// update the pod template annotations
	primaryCopy.Spec.Template.Annotations = filterMetadata(canary.Spec.Template.Annotations)

	_, err = c.kubeClient.AppsV1().Deployments(cd.Namespace).Update(context.TODO(), primaryCopy, metav1.UpdateOptions{})
	if err != nil {
		return fmt.Errorf("updating deployment %s.%s template spec failed: %w", primaryCopy.GetName(), primaryCopy.Namespace, err)
	}

	return nil
}

// HasTargetChanged returns true if the canary deployment pod spec has changed
func (c *DeploymentController) HasTargetChanged(cd *rolloutsv1.Canary) (bool, error) {
	targetName := cd.Spec.TargetRef.Name
	canary, err := c.kubeClient.AppsV1().Deployments(cd.Namespace).Get(context.TODO(), targetName, metav1.GetOptions{})
	if err != nil {
		return false, fmt.Errorf("deployment %s.%s get query error: %w", targetName, cd.Namespace, err)
	}

	return hasSpecChanged(cd, canary.Spec.Template)
}

// HaveDependenciesChanged returns true if the tracked configs have changed
func (c *DeploymentController) HaveDependenciesChanged(cd *rolloutsv1.Canary) (bool, error) {
	return c.configTracker.HasConfigChanged(cd)
}

// ScaleToZero scales the canary deployment to zero replicas
func (c *DeploymentController) ScaleToZero(cd *rolloutsv1.Canary) error {
	targetName := cd.Spec.TargetRef.Name

	dep, err := c.kubeClient.AppsV1().Deployments(cd.Namespace).Get(context.TODO(), targetName, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("deployment %s.%s get query error: %w", targetName, cd.Namespace, err)
	}

	depCopy := dep.DeepCopy()
	depCopy.Spec.Replicas = int32p(0)

	_, err = c.kubeClient.AppsV1().Deployments(dep.Namespace).Update(context.TODO(), depCopy, metav1.UpdateOptions{})
	if err != nil {
		return fmt.Errorf("scaling down %s.%s failed: %w", depCopy.GetName(), depCopy.Namespace, err)
	}
	return nil
}

// ScaleFromZero restores the canary replicas from the primary deployment
func (c *DeploymentController) ScaleFromZero(cd *rolloutsv1.Canary) error {
	targetName := cd.Spec.TargetRef.Name
	primaryName := fmt.Sprintf("%s-primary", targetName)

	dep, err := c.kubeClient.AppsV1().Deployments(cd.Namespace).Get(context.TODO(), targetName, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("deployment %s.%s get query error: %w", targetName, cd.Namespace, err)
	}

	replicas := int32p(1)
	if primary, err := c.kubeClient.AppsV1().Deployments(cd.Namespace).Get(context.TODO(), primaryName, metav1.GetOptions{}); err == nil {
		if primary.Spec.Replicas != nil && *primary.Spec.Replicas > 0 {
			replicas = primary.Spec.Replicas
		}
	}

	depCopy := dep.DeepCopy()
	depCopy.Spec.Replicas = replicas

	_, err = c.kubeClient.AppsV1().Deployments(dep.Namespace).Update(context.TODO(), depCopy, metav1.UpdateOptions{})
	if err != nil {
		return fmt.Errorf("scaling up %s.%s failed: %w", depCopy.GetName(), depCopy.Namespace, err)
	}
	return nil
}

// Finalize scales the canary target back up to its original state
func (c *DeploymentController) Finalize(cd *rolloutsv1.Canary) error {
	if err := c.ScaleFromZero(cd); err != nil {
		return fmt.Errorf("ScaleFromZero failed: %w", err)
	}

	if retriable, err := c.IsCanaryReady(cd); err != nil && retriable {
		return fmt.Errorf("canary not ready during finalizing: %w", err)
	}

	return nil
}

// SyncStatus encodes the canary pod spec and updates the canary status
func (c *DeploymentController) SyncStatus(cd *rolloutsv1.Canary, status rolloutsv1.CanaryStatus) error {
	targetName := cd.Spec.TargetRef.Name
	dep, err := c.kubeClient.AppsV1().Deployments(cd.Namespace).Get(context.TODO(), targetName, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("deployment %s.%s get query error: %w", targetName, cd.Namespace, err)
	}

	configs, err := c.configTracker.GetConfigRefs(cd)
	if err != nil {
		return fmt.Errorf("GetConfigRefs failed: %w", err)
	}

	status.TrackedConfigs = configs
	return syncCanaryStatus(c.rolloutClient, cd, status, dep.Spec.Template, true)
}

// SetStatusFailedChecks updates the canary failed checks counter
func (c *DeploymentController) SetStatusFailedChecks(cd *rolloutsv1.Canary, val int) error {
	return setStatusFailedChecks(c.rolloutClient, cd, val)
}

// SetStatusWeight updates the canary status weight
func (c *DeploymentController) SetStatusWeight(cd *rolloutsv1.Canary, val int) error {
	return setStatusWeight(c.rolloutClient, cd, val)
}

// SetStatusIterations updates the canary status iterations
func (c *DeploymentController) SetStatusIterations(cd *rolloutsv1.Canary, val int) error {
	return setStatusIterations(c.rolloutClient, cd, val)
}

// SetStatusInconclusiveChecks updates the inconclusive check counter
func (c *DeploymentController) SetStatusInconclusiveChecks(cd *rolloutsv1.Canary, val int) error {
	return setStatusInconclusiveChecks(c.rolloutClient, cd, val)
}

// SetStatusPhase updates the canary status phase
func (c *DeploymentController) SetStatusPhase(cd *rolloutsv1.Canary, phase rolloutsv1.CanaryPhase) error {
	return setStatusPhase(c.rolloutClient, cd, phase)
}

// IsPrimaryReady checks the primary deployment status and returns an error if
// the deployment is in the middle of a rolling update or if the pods are unhealthy
func (c *DeploymentController) IsPrimaryReady(cd *rolloutsv1.Canary) (bool, error) {
	primaryName := fmt.Sprintf("%s-primary", cd.Spec.TargetRef.Name)
	primary, err := c.kubeClient.AppsV1().Deployments(cd.Namespace).Get(context.TODO(), primaryName, metav1.GetOptions{})
	if err != nil {
		return true, fmt.Errorf("deployment %s.%s get query error: %w", primaryName, cd.Namespace, err)
	}

	retriable, err := c.isDeploymentReady(primary, cd.GetProgressDeadlineSeconds())
	if err != nil {
		return retriable, fmt.Errorf("primary deployment %s.%s not ready: %w", primaryName, cd.Namespace, err)
	}

	if primary.Spec.Replicas == nil || *primary.Spec.Replicas == 0 {
		return true, fmt.Errorf("halt %s.%s advancement: primary deployment is scaled to zero", cd.Name, cd.Namespace)
	}
	return true, nil
}

// IsCanaryReady checks the canary deployment status and returns an error if
// the deployment is in the middle of a rolling update or if the pods are unhealthy
func (c *DeploymentController) IsCanaryReady(cd *rolloutsv1.Canary) (bool, error) {
	targetName := cd.Spec.TargetRef.Name
	canary, err := c.kubeClient.AppsV1().Deployments(cd.Namespace).Get(context.TODO(), targetName, metav1.GetOptions{})
	if err != nil {
		return true, fmt.Errorf("deployment %s.%s get query error: %w", targetName, cd.Namespace, err)
	}

	retriable, err := c.isDeploymentReady(canary, cd.GetProgressDeadlineSeconds())
	if err != nil {
		if retriable {
			return retriable, fmt.Errorf("canary deployment %s.%s not ready: %w", targetName, cd.Namespace, err)
		}
		return retriable, fmt.Errorf("canary deployment %s.%s not ready and retry limit exceeded: %w", targetName, cd.Namespace, err)
	}
	return true, nil
}

// isDeploymentReady determines if a deployment is ready by checking the
// status conditions, a deployment that exceeded the progress deadline is not retriable
func (c *DeploymentController) isDeploymentReady(deployment *appsv1.Deployment, deadline int) (bool, error) {
	retriable := true
	if deployment.Generation <= deployment.Status.ObservedGeneration {
		progress := c.getDeploymentCondition(deployment.Status, appsv1.DeploymentProgressing)
		if progress != nil && progress.Reason == "ProgressDeadlineExceeded" {
			retriable = false
		}

		if deployment.Spec.Replicas != nil && deployment.Status.UpdatedReplicas < *deployment.Spec.Replicas {
			return retriable, fmt.Errorf("waiting for rollout to finish: %d out of %d new replicas have been updated",
				deployment.Status.UpdatedReplicas, *deployment.Spec.Replicas)
		}
		if deployment.Status.Replicas > deployment.Status.UpdatedReplicas {
			return retriable, fmt.Errorf("waiting for rollout to finish: %d old replicas are pending termination",
				deployment.Status.Replicas-deployment.Status.UpdatedReplicas)
		}
		if deployment.Status.AvailableReplicas < deployment.Status.UpdatedReplicas {
			return retriable, fmt.Errorf("waiting for rollout to finish: %d of %d updated replicas are available",
				deployment.Status.AvailableReplicas, deployment.Status.UpdatedReplicas)
		}
	} else {
		return true, fmt.Errorf("waiting for rollout to finish: observed deployment generation less than desired generation")
	}

	return true, nil
}

func (c *DeploymentController) getDeploymentCondition(
	status appsv1.DeploymentStatus,
	conditionType appsv1.DeploymentConditionType,
) *appsv1.DeploymentCondition {
	for i := range status.Conditions {
		cond := status.Conditions[i]
		if cond.Type == conditionType {
			return &cond
		}
	}
	return nil
}

// createPrimaryDeployment creates the primary deployment from the canary one
func (c *DeploymentController) createPrimaryDeployment(cd *rolloutsv1.Canary) error {
	targetName := cd.Spec.TargetRef.Name
	primaryName := fmt.Sprintf("%s-primary", cd.Spec.TargetRef.Name)

	canaryDep, err := c.kubeClient.AppsV1().Deployments(cd.Namespace).Get(context.TODO(), targetName, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("deployment %s.%s get query error: %w", targetName, cd.Namespace, err)
	}

	if canaryDep.Spec.Selector == nil || len(canaryDep.Spec.Selector.MatchLabels) < 1 {
		return fmt.Errorf("deployment %s.%s has no selector", targetName, cd.Namespace)
	}

	label, labelValue, err := c.getSelectorLabel(canaryDep)
	if err != nil {
		return fmt.Errorf("getSelectorLabel failed: %w", err)
	}
	primaryLabelValue := fmt.Sprintf("%s-primary", labelValue)

	_, err = c.kubeClient.AppsV1().Deployments(cd.Namespace).Get(context.TODO(), primaryName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		// create the primary copies of the tracked config maps and secrets
		configRefs, err := c.configTracker.GetTargetConfigs(cd)
		if err != nil {
			return fmt.Errorf("GetTargetConfigs failed: %w", err)
		}
		if err := c.configTracker.CreatePrimaryConfigs(cd, configRefs); err != nil {
			return fmt.Errorf("CreatePrimaryConfigs failed: %w", err)
		}

		replicas := int32p(1)
		if canaryDep.Spec.Replicas != nil && *canaryDep.Spec.Replicas > 0 {
			replicas = canaryDep.Spec.Replicas
		}

		primaryDep := &appsv1.Deployment{
			ObjectMeta: metav1.ObjectMeta{
				Name:        primaryName,
				Namespace:   cd.Namespace,
				Labels:      makePrimaryLabels(canaryDep.Labels, primaryLabelValue, label),
				Annotations: filterMetadata(canaryDep.Annotations),
				OwnerReferences: []metav1.OwnerReference{
					*metav1.NewControllerRef(cd, rolloutsv1.SchemeGroupVersion.WithKind(rolloutsv1.CanaryKind)),
				},
			},
			Spec: appsv1.DeploymentSpec{
				ProgressDeadlineSeconds: canaryDep.Spec.ProgressDeadlineSeconds,
				MinReadySeconds:         canaryDep.Spec.MinReadySeconds,
				RevisionHistoryLimit:    canaryDep.Spec.RevisionHistoryLimit,
				Replicas:                replicas,
				Strategy:                canaryDep.Spec.Strategy,
				Selector: &metav1.LabelSelector{
					MatchLabels: map[string]string{
						label: primaryLabelValue,
					},
				},
				Template: corev1.PodTemplateSpec{
					ObjectMeta: metav1.ObjectMeta{
						Labels:      makePrimaryLabels(canaryDep.Spec.Template.Labels, primaryLabelValue, label),
						Annotations: filterMetadata(canaryDep.Spec.Template.Annotations),
					},
					Spec: c.configTracker.ApplyPrimaryConfigs(*canaryDep.Spec.Template.Spec.DeepCopy(), configRefs),
				},
			},
		}

		_, err = c.kubeClient.AppsV1().Deployments(cd.Namespace).Create(context.TODO(), primaryDep, metav1.CreateOptions{})
		if err != nil {
			return fmt.Errorf("creating deployment %s.%s failed: %w", primaryDep.Name, cd.Namespace, err)
		}

		c.logger.With("canary", fmt.Sprintf("%s.%s", cd.Name, cd.Namespace)).
			Infof("Deployment %s.%s created", primaryDep.GetName(), cd.Namespace)
	}

	return nil
}

// getSelectorLabel returns the selector match label of the deployment
func (c *DeploymentController) getSelectorLabel(deployment *appsv1.Deployment) (string, string, error) {
	for _, l := range c.labels {
		if _, ok := deployment.Spec.Selector.MatchLabels[l]; ok {
			return l, deployment.Spec.Selector.MatchLabels[l], nil
		}
	}

	return "", "", fmt.Errorf(
		"deployment %s.%s spec.selector.matchLabels must contain one of %v",
		deployment.Name, deployment.Namespace, c.labels,
	)
}

// getPorts returns a list of all container ports
func getPorts(cd *rolloutsv1.Canary, cs []corev1.Container) map[string]int32 {
	ports := make(map[string]int32)

	for _, container := range cs {
		for i, p := range container.Ports {
			name := fmt.Sprintf("tcp-%s-%v", container.Name, i)
			if p.Name != "" {
				name = p.Name
			}
			// exclude the reconciled canary port
			if cd.Spec.Service.TargetPort.String() == "0" && p.ContainerPort == cd.Spec.Service.Port {
				continue
			}
			if fmt.Sprintf("%v", p.ContainerPort) == cd.Spec.Service.TargetPort.String() ||
				p.Name == cd.Spec.Service.TargetPort.String() {
				continue
			}
			ports[name] = p.ContainerPort
		}
	}

	return ports
}

// makePrimaryLabels rewrites the selector label value to the primary one
func makePrimaryLabels(labels map[string]string, labelValue string, label string) map[string]string {
	res := make(map[string]string)
	for k, v := range labels {
		if k != label {
			res[k] = v
		}
	}
	res[label] = labelValue

	return res
}

// filterMetadata removes the kubectl apply annotation
func filterMetadata(meta map[string]string) map[string]string {
	res := make(map[string]string)
	for k, v := range meta {
		if k != "kubectl.kubernetes.io/last-applied-configuration" {
			res[k] = v
		}
	}
	return res
}

func int32p(i int32) *int32 {
	return &i
}
