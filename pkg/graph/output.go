package graph

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// OutputRefKey marks an output reference embedded in a descriptor.
// A reference is a map with this single key.
const OutputRefKey = "$output"

// Output is a deferred reference to an attribute of another node's live
// object. It resolves only after that node has been provisioned, so it
// exposes no value: it can be embedded into descriptors or exported.
type Output struct {
	node   string
	path   string
	secret bool
}

// NewOutput creates a reference to path on the live object of node.
func NewOutput(node, path string) Output {
	return Output{node: node, path: path}
}

// NodeID returns the ID of the node this output belongs to
func (o Output) NodeID() string { return o.node }

// Path returns the dot-separated field path of this output
func (o Output) Path() string { return o.path }

// IsSecret reports whether the resolved value must be kept out of logs
// and printed output
func (o Output) IsSecret() bool { return o.secret }

// AsSecret returns a copy of the output classified as secret
func (o Output) AsSecret() Output {
	o.secret = true
	return o
}

// IsZero reports whether this is the zero Output
func (o Output) IsZero() bool { return o.node == "" && o.path == "" }

// String implements fmt.Stringer
func (o Output) String() string {
	return fmt.Sprintf("output(%s#%s)", o.node, o.path)
}

// Fields splits the path into field names for unstructured accessors
func (o Output) Fields() []string {
	if o.path == "" {
		return nil
	}
	return strings.Split(o.path, ".")
}

// Ref returns the form of the output embedded in descriptors
func (o Output) Ref() map[string]interface{} {
	ref := map[string]interface{}{
		"node": o.node,
		"path": o.path,
	}
	if o.secret {
		ref["secret"] = true
	}
	return map[string]interface{}{OutputRefKey: ref}
}

// MarshalJSON encodes the output as its embedded reference
func (o Output) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Ref())
}

// UnmarshalJSON decodes an embedded reference
func (o *Output) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out, ok := ParseRef(raw)
	if !ok {
		return fmt.Errorf("not an output reference: %s", string(data))
	}
	*o = out
	return nil
}

// ParseRef returns the Output encoded by v, if v is an output reference
func ParseRef(v interface{}) (Output, bool) {
	m, ok := v.(map[string]interface{})
	if !ok || len(m) != 1 {
		return Output{}, false
	}
	ref, ok := m[OutputRefKey].(map[string]interface{})
	if !ok {
		return Output{}, false
	}
	node, _ := ref["node"].(string)
	path, _ := ref["path"].(string)
	if node == "" || path == "" {
		return Output{}, false
	}
	secret, _ := ref["secret"].(bool)
	return Output{node: node, path: path, secret: secret}, true
}

// SetOutput embeds out into obj at the given field path
func SetOutput(obj *unstructured.Unstructured, out Output, fields ...string) error {
	if obj.Object == nil {
		obj.Object = map[string]interface{}{}
	}
	return unstructured.SetNestedField(obj.Object, out.Ref(), fields...)
}

// References returns every output reference embedded in v, in traversal
// order. Map keys are visited in sorted order so the result is stable.
func References(v interface{}) []Output {
	var refs []Output
	collectRefs(v, &refs)
	return refs
}

func collectRefs(v interface{}, refs *[]Output) {
	if out, ok := ParseRef(v); ok {
		*refs = append(*refs, out)
		return
	}

	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectRefs(val[k], refs)
		}
	case []interface{}:
		for _, item := range val {
			collectRefs(item, refs)
		}
	}
}

// replaceRefs replaces every output reference in v, in place, with the
// value returned by fn. The first error aborts the walk.
func replaceRefs(v interface{}, fn func(Output) (interface{}, error)) (interface{}, error) {
	if out, ok := ParseRef(v); ok {
		return fn(out)
	}

	switch val := v.(type) {
	case map[string]interface{}:
		for k, item := range val {
			r, err := replaceRefs(item, fn)
			if err != nil {
				return nil, err
			}
			val[k] = r
		}
	case []interface{}:
		for i, item := range val {
			r, err := replaceRefs(item, fn)
			if err != nil {
				return nil, err
			}
			val[i] = r
		}
	}
	return v, nil
}
