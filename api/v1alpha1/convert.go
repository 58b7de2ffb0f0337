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
	"fmt"
	"reflect"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// ToUnstructured converts a typed descriptor into an unstructured object of
// the given kind. Status and server-populated metadata are dropped.
func ToUnstructured(obj interface{}, gvk schema.GroupVersionKind) (*unstructured.Unstructured, error) {
	content, err := runtime.DefaultUnstructuredConverter.ToUnstructured(addressable(obj))
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s: %w", gvk.Kind, err)
	}

	u := &unstructured.Unstructured{Object: content}
	u.SetGroupVersionKind(gvk)
	unstructured.RemoveNestedField(u.Object, "status")
	unstructured.RemoveNestedField(u.Object, "metadata", "creationTimestamp")
	return u, nil
}

// FromUnstructured decodes an unstructured object into a typed descriptor
func FromUnstructured(u *unstructured.Unstructured, into interface{}) error {
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(u.Object, into); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", u.GetKind(), u.GetName(), err)
	}
	return nil
}

// SetStatus returns a copy of u with its status replaced by the given
// value. status may be a struct or a pointer to one.
func SetStatus(u *unstructured.Unstructured, status interface{}) (*unstructured.Unstructured, error) {
	content, err := runtime.DefaultUnstructuredConverter.ToUnstructured(addressable(status))
	if err != nil {
		return nil, fmt.Errorf("failed to convert status of %s: %w", u.GetName(), err)
	}

	live := u.DeepCopy()
	if err := unstructured.SetNestedMap(live.Object, content, "status"); err != nil {
		return nil, err
	}
	return live, nil
}

// addressable returns v itself when it is a pointer, otherwise a pointer
// to a copy of v. The unstructured converter only accepts pointers.
func addressable(v interface{}) interface{} {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() == reflect.Pointer {
		return v
	}
	ptr := reflect.New(rv.Type())
	ptr.Elem().Set(rv)
	return ptr.Interface()
}
