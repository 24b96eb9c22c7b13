package travis

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// StringList is a list of strings that also accepts a single scalar in the
// source document. Numeric scalars keep their literal spelling, so a version
// written as 3.70 decodes as "3.70", not "3.7".
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	items, err := decodeScalarOrList(value)
	if err != nil {
		return err
	}
	*s = items
	return nil
}

// MarshalYAML implements yaml.Marshaler. Lists always marshal in sequence
// form regardless of how the source spelled them.
func (s StringList) MarshalYAML() (interface{}, error) {
	return []string(s), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *StringList) UnmarshalJSON(data []byte) error {
	items, err := decodeJSONScalarOrList(data)
	if err != nil {
		return err
	}
	*s = items
	return nil
}

// MarshalJSON implements json.Marshaler.
func (s StringList) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string(s))
}

// Version is a runtime version that may be spelled as a bare number in the
// source document (python: 3.7). It decodes from any scalar and keeps the
// literal text.
type Version string

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *Version) UnmarshalYAML(value *yaml.Node) error {
	node := value
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected scalar version, got %s", node.Line, nodeKindName(node.Kind))
	}
	if node.Tag == "!!null" {
		*v = ""
		return nil
	}
	*v = Version(node.Value)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Version) UnmarshalJSON(data []byte) error {
	items, err := decodeJSONScalarOrList(data)
	if err != nil {
		return err
	}
	switch len(items) {
	case 0:
		*v = ""
	case 1:
		*v = Version(items[0])
	default:
		return fmt.Errorf("expected scalar version, got list of %d", len(items))
	}
	return nil
}

// String returns the literal version text.
func (v Version) String() string { return string(v) }

// decodeScalarOrList decodes a YAML node that may be a scalar, a sequence of
// scalars, or null. Scalar text is taken verbatim from the source.
func decodeScalarOrList(value *yaml.Node) ([]string, error) {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			return nil, nil
		}
		return []string{value.Value}, nil
	case yaml.SequenceNode:
		items := make([]string, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: expected scalar list item, got %s", item.Line, nodeKindName(item.Kind))
			}
			if item.Tag == "!!null" {
				continue
			}
			items = append(items, item.Value)
		}
		return items, nil
	case yaml.AliasNode:
		return decodeScalarOrList(value.Alias)
	default:
		return nil, fmt.Errorf("line %d: expected scalar or sequence, got %s", value.Line, nodeKindName(value.Kind))
	}
}

// decodeJSONScalarOrList is the JSON counterpart of decodeScalarOrList.
// Numbers decode via json.Number so version literals keep their spelling.
func decodeJSONScalarOrList(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return flattenJSONValue(raw)
}

func flattenJSONValue(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case json.Number:
		return []string{v.String()}, nil
	case bool:
		return []string{fmt.Sprintf("%t", v)}, nil
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			flat, err := flattenJSONValue(item)
			if err != nil {
				return nil, err
			}
			if len(flat) != 1 {
				return nil, fmt.Errorf("expected scalar list item, got %T", item)
			}
			items = append(items, flat[0])
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected scalar or list, got %T", raw)
	}
}

func nodeKindName(kind yaml.Kind) string {
	switch kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}
