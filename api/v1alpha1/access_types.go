/*
Copyright 2025.

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
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// AccessContextSpec defines how to reach a Kubernetes API server
type AccessContextSpec struct {
	// Kubeconfig is a complete kubeconfig document. Secret.
	Kubeconfig string `json:"kubeconfig"`
}

// AccessContextStatus describes the connected API server
type AccessContextStatus struct {
	// Server is the API server URL of the current context
	Server string `json:"server,omitempty"`

	// Connected is true once the client has been built
	Connected bool `json:"connected,omitempty"`
}

// AccessContext is an orchestrator client built from a kubeconfig.
// Kubernetes descriptors name it as their provider.
type AccessContext struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   AccessContextSpec   `json:"spec,omitempty"`
	Status AccessContextStatus `json:"status,omitempty"`
}

// AccessContextKubeconfigField is the field path of the kubeconfig
var AccessContextKubeconfigField = []string{"spec", "kubeconfig"}
