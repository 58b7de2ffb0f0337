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

// Package v1alpha1 contains the descriptor types for the cloud and access
// resources of a cluster topology. Kubernetes resources use k8s.io/api types.
package v1alpha1

import (
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Version is the version of every descriptor group
const Version = "v1alpha1"

const (
	// TLSGroup holds locally generated credential material
	TLSGroup = "tls.infra.clustergraph.io"

	// AzureGroup holds Azure resource descriptors
	AzureGroup = "azure.infra.clustergraph.io"

	// AccessGroup holds orchestrator access contexts
	AccessGroup = "access.infra.clustergraph.io"
)

var (
	// TLSGroupVersion is the group version of credential descriptors
	TLSGroupVersion = schema.GroupVersion{Group: TLSGroup, Version: Version}

	// AzureGroupVersion is the group version of Azure descriptors
	AzureGroupVersion = schema.GroupVersion{Group: AzureGroup, Version: Version}

	// AccessGroupVersion is the group version of access contexts
	AccessGroupVersion = schema.GroupVersion{Group: AccessGroup, Version: Version}
)

const (
	KindPrivateKey     = "PrivateKey"
	KindManagedCluster = "ManagedCluster"
	KindPublicIP       = "PublicIP"
	KindAccessContext  = "AccessContext"
)
