package document

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// MarshalYAML emits an explicit node per variant so that the scalar kind survives a
// round trip: integral floats keep a decimal point, numeric-looking strings get quoted.
func (v Value) MarshalYAML() (any, error) {
	return v.yamlNode(), nil
}

func (v Value) yamlNode() *yaml.Node {
	switch v.kind {
	case KindBool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v.b)}
	case KindInt:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(v.i, 10)}
	case KindFloat:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: formatFloat(v.f)}
	case KindString, KindOpaque:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.s}
	case KindArray:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v.arr {
			node.Content = append(node.Content, item.yamlNode())
		}
		return node
	case KindObject:
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range Document(v.obj).SortedKeys() {
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
				v.obj[k].yamlNode())
		}
		return node
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
}

// UnmarshalYAML accepts any YAML value, including hand-edited ones.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	decoded, err := valueFromNode(node)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

func valueFromNode(node *yaml.Node) (Value, error) {
	switch node.Kind {
	case yaml.AliasNode:
		if node.Alias == nil {
			return Value{}, fmt.Errorf("line %d: dangling alias", node.Line)
		}
		return valueFromNode(node.Alias)
	case yaml.SequenceNode:
		items := make([]Value, 0, len(node.Content))
		for _, child := range node.Content {
			item, err := valueFromNode(child)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		return Value{kind: KindArray, arr: items}, nil
	case yaml.MappingNode:
		fields := make(map[string]Value, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			item, err := valueFromNode(node.Content[i+1])
			if err != nil {
				return Value{}, err
			}
			fields[node.Content[i].Value] = item
		}
		return Value{kind: KindObject, obj: fields}, nil
	case yaml.ScalarNode:
		return scalarFromNode(node)
	}
	return Value{}, fmt.Errorf("line %d: unsupported yaml node kind %d", node.Line, node.Kind)
}

func scalarFromNode(node *yaml.Node) (Value, error) {
	switch node.ShortTag() {
	case "!!null":
		return Null(), nil
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return Value{}, err
		}
		return Bool(b), nil
	case "!!int":
		var i int64
		if err := node.Decode(&i); err != nil {
			// Out of int64 range; keep the magnitude as a float.
			var f float64
			if ferr := node.Decode(&f); ferr != nil {
				return Value{}, err
			}
			return Float(f), nil
		}
		return Int(i), nil
	case "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return Value{}, err
		}
		return Float(f), nil
	default:
		// !!str, and unquoted timestamps a human may have typed, stay strings.
		return String(node.Value), nil
	}
}
