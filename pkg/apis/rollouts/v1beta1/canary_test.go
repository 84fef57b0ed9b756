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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestCanaryGetRemainingTime(t *testing.T) {
	cd := &Canary{}

	// without a recorded transition the deadline counts as exceeded,
	// never as a negative duration
	assert.Equal(t, time.Duration(0), cd.GetRemainingTime())
	assert.True(t, cd.HasProgressDeadline())

	cd.Status.LastTransitionTime = metav1.Now()
	remaining := cd.GetRemainingTime()
	assert.Greater(t, remaining, 9*time.Minute)
	assert.LessOrEqual(t, remaining, 10*time.Minute)
	assert.False(t, cd.HasProgressDeadline())

	cd.Status.LastTransitionTime = metav1.NewTime(time.Now().Add(-1 * time.Hour))
	assert.Equal(t, time.Duration(0), cd.GetRemainingTime())
	assert.True(t, cd.HasProgressDeadline())
}
