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

package rbac

import (
	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	// ManagedByLabel marks objects created by clustergraph
	ManagedByLabel = "app.kubernetes.io/managed-by"

	// ManagedByValue is the value of ManagedByLabel
	ManagedByValue = "clustergraph"

	// ClusterAdminRole is the built-in cluster role granted to administrators
	ClusterAdminRole = "cluster-admin"
)

// DeveloperVerbs are the verbs granted to developers in their namespace
var DeveloperVerbs = []string{"get", "list", "watch", "create", "update", "delete"}

// DeveloperResources are the resources developers may manage
var DeveloperResources = []string{"pods", "services", "deployments", "replicasets", "persistentvolumeclaims"}

// DeveloperAPIGroups are the API groups of DeveloperResources
var DeveloperAPIGroups = []string{"", "apps"}

// Generator creates the RBAC objects of a cluster topology
type Generator struct {
	labels map[string]string
}

// NewGenerator creates a new RBAC generator
func NewGenerator() *Generator {
	return &Generator{
		labels: map[string]string{ManagedByLabel: ManagedByValue},
	}
}

// AdminBinding binds a directory group to the cluster-admin role
func (g *Generator) AdminBinding(name, groupID string) *rbacv1.ClusterRoleBinding {
	return &rbacv1.ClusterRoleBinding{
		TypeMeta: metav1.TypeMeta{
			APIVersion: rbacv1.SchemeGroupVersion.String(),
			Kind:       "ClusterRoleBinding",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			Labels: g.copyLabels(),
		},
		Subjects: []rbacv1.Subject{groupSubject(groupID)},
		RoleRef: rbacv1.RoleRef{
			APIGroup: rbacv1.GroupName,
			Kind:     "ClusterRole",
			Name:     ClusterAdminRole,
		},
	}
}

// DeveloperRole creates the limited role developers get in a namespace.
// namespace may be left empty when it is wired to an output later.
func (g *Generator) DeveloperRole(name, namespace string) *rbacv1.Role {
	return &rbacv1.Role{
		TypeMeta: metav1.TypeMeta{
			APIVersion: rbacv1.SchemeGroupVersion.String(),
			Kind:       "Role",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    g.copyLabels(),
		},
		Rules: []rbacv1.PolicyRule{
			{
				APIGroups: append([]string(nil), DeveloperAPIGroups...),
				Resources: append([]string(nil), DeveloperResources...),
				Verbs:     append([]string(nil), DeveloperVerbs...),
			},
		},
	}
}

// DeveloperRoleBinding binds a directory group to a namespaced role
func (g *Generator) DeveloperRoleBinding(name, namespace, roleName, groupID string) *rbacv1.RoleBinding {
	return &rbacv1.RoleBinding{
		TypeMeta: metav1.TypeMeta{
			APIVersion: rbacv1.SchemeGroupVersion.String(),
			Kind:       "RoleBinding",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    g.copyLabels(),
		},
		Subjects: []rbacv1.Subject{groupSubject(groupID)},
		RoleRef: rbacv1.RoleRef{
			APIGroup: rbacv1.GroupName,
			Kind:     "Role",
			Name:     roleName,
		},
	}
}

// Labels returns the labels set on generated objects
func (g *Generator) Labels() map[string]string {
	return g.copyLabels()
}

func (g *Generator) copyLabels() map[string]string {
	labels := make(map[string]string, len(g.labels))
	for k, v := range g.labels {
		labels[k] = v
	}
	return labels
}

func groupSubject(groupID string) rbacv1.Subject {
	return rbacv1.Subject{
		APIGroup: rbacv1.GroupName,
		Kind:     rbacv1.GroupKind,
		Name:     groupID,
	}
}
