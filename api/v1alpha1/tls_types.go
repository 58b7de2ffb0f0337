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

// KeyAlgorithm is the algorithm of a generated key pair
type KeyAlgorithm string

const (
	// KeyAlgorithmRSA generates an RSA key pair
	KeyAlgorithmRSA KeyAlgorithm = "RSA"
)

// PrivateKeySpec defines the key pair to generate
type PrivateKeySpec struct {
	// Algorithm is the key algorithm
	// +kubebuilder:validation:Enum=RSA
	Algorithm KeyAlgorithm `json:"algorithm"`

	// RSABits is the size of an RSA key
	// +kubebuilder:validation:Minimum=2048
	RSABits int `json:"rsaBits,omitempty"`
}

// PrivateKeyStatus holds the generated key material
type PrivateKeyStatus struct {
	// PublicKeyOpenSSH is the public key in authorized_keys format
	PublicKeyOpenSSH string `json:"publicKeyOpenssh,omitempty"`

	// PrivateKeyPEM is the PEM encoded private key. Secret.
	PrivateKeyPEM string `json:"privateKeyPem,omitempty"`
}

// PrivateKey is a key pair generated once per deployment
type PrivateKey struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   PrivateKeySpec   `json:"spec,omitempty"`
	Status PrivateKeyStatus `json:"status,omitempty"`
}

// Output paths of a PrivateKey
const (
	PrivateKeyPublicKeyPath  = "status.publicKeyOpenssh"
	PrivateKeyPrivateKeyPath = "status.privateKeyPem"
)
