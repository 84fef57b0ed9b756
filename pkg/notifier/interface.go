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

package notifier

// Field holds a key value pair attached to the alert message,
// fields with type link are rendered as buttons where supported
type Field struct {
	Name  string
	Value string
	Type  string
}

// Interface posts alert messages to an external service
type Interface interface {
	Post(workload string, namespace string, message string, fields []Field, severity string) error
}
