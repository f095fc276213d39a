package merge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Parse reads a value from its YAML text form. JSON is accepted as a subset of YAML.
// Mapping order is preserved. Null values are rejected.
func Parse(data []byte) (Value, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return Value{}, fmt.Errorf("failed to parse value: %w", err)
	}
	if node.Kind == 0 {
		return Value{}, fmt.Errorf("failed to parse value: empty document")
	}
	return FromNode(&node)
}

// ParseString is Parse for string input.
func ParseString(s string) (Value, error) {
	return Parse([]byte(s))
}

// FromNode converts a decoded YAML node into a Value.
func FromNode(n *yaml.Node) (Value, error) {
	if n == nil {
		return Value{}, fmt.Errorf("nil yaml node")
	}

	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Value{}, fmt.Errorf("empty yaml document")
		}
		return FromNode(n.Content[0])

	case yaml.AliasNode:
		return FromNode(n.Alias)

	case yaml.SequenceNode:
		items := make([]Value, 0, len(n.Content))
		for _, child := range n.Content {
			v, err := FromNode(child)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return Value{kind: KindSequence, items: items}, nil

	case yaml.MappingNode:
		entries := make([]Entry, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			keyNode, valueNode := n.Content[i], n.Content[i+1]
			if keyNode.Kind != yaml.ScalarNode {
				return Value{}, fmt.Errorf("line %d: mapping keys must be scalars", keyNode.Line)
			}
			v, err := FromNode(valueNode)
			if err != nil {
				return Value{}, err
			}
			entries = append(entries, Entry{Key: keyNode.Value, Value: v})
		}
		return Map(entries...), nil

	case yaml.ScalarNode:
		return scalarFromNode(n)

	default:
		return Value{}, fmt.Errorf("line %d: unsupported yaml node kind %d", n.Line, n.Kind)
	}
}

func scalarFromNode(n *yaml.Node) (Value, error) {
	switch n.ShortTag() {
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			var f float64
			if ferr := n.Decode(&f); ferr != nil {
				return Value{}, fmt.Errorf("line %d: invalid integer %q: %w", n.Line, n.Value, err)
			}
			return Float(f), nil
		}
		return Int(i), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return Value{}, fmt.Errorf("line %d: invalid float %q: %w", n.Line, n.Value, err)
		}
		return Float(f), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return Value{}, fmt.Errorf("line %d: invalid bool %q: %w", n.Line, n.Value, err)
		}
		return Bool(b), nil
	case "!!null":
		return Value{}, fmt.Errorf("line %d: null values are not supported", n.Line)
	default:
		return String(n.Value), nil
	}
}

// ToNode converts a Value into a YAML node suitable for yaml.Marshal.
func ToNode(v Value) *yaml.Node {
	switch v.kind {
	case KindSequence:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v.items {
			n.Content = append(n.Content, ToNode(item))
		}
		return n
	case KindMapping:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, e := range v.entries {
			n.Content = append(n.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Key},
				ToNode(e.Value),
			)
		}
		return n
	}

	switch s := v.Scalar().(type) {
	case int64:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(s, 10)}
	case float64:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: formatFloat(s)}
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(s)}
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: fmt.Sprint(s)}
	}
}

// MarshalYAML renders the value as YAML text.
func MarshalYAML(v Value) ([]byte, error) {
	return yaml.Marshal(ToNode(v))
}

// Encode returns the canonical byte encoding of v: compact JSON with mapping order
// preserved and floats always carrying a fraction or exponent so they decode back as
// floats. Two values encode identically exactly when Equal reports true.
func Encode(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeTo(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses the canonical encoding produced by Encode.
func Decode(data []byte) (Value, error) {
	return Parse(data)
}

func encodeTo(buf *bytes.Buffer, v Value) error {
	switch v.kind {
	case KindSequence:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeTo(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	case KindMapping:
		buf.WriteByte('{')
		for i, e := range v.entries {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONString(buf, e.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encodeTo(buf, e.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	}

	switch s := v.Scalar().(type) {
	case string:
		return writeJSONString(buf, s)
	case int64:
		buf.WriteString(strconv.FormatInt(s, 10))
	case float64:
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("cannot encode float %v", s)
		}
		buf.WriteString(formatFloat(s))
	case bool:
		buf.WriteString(strconv.FormatBool(s))
	default:
		return fmt.Errorf("unsupported scalar type %T", s)
	}
	return nil
}

// writeJSONString quotes s as JSON, additionally escaping the characters
// json.Marshal leaves raw that a YAML parser rejects, so Decode can always
// read the result back.
func writeJSONString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	for _, r := range string(b) {
		if yamlUnprintable(r) {
			fmt.Fprintf(buf, `\u%04x`, r)
			continue
		}
		buf.WriteRune(r)
	}
	return nil
}

func yamlUnprintable(r rune) bool {
	return r == 0x7f || (r >= 0x80 && r <= 0x9f) || r == 0xfffe || r == 0xffff
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// FromAny converts decoded Go data (as produced by TOML or JSON decoders) into a
// Value. Map keys are sorted since Go maps carry no order.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint64:
		if t > math.MaxInt64 {
			return Float(float64(t)), nil
		}
		return Int(int64(t)), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case time.Time:
		return String(t.Format(time.RFC3339Nano)), nil
	case []any:
		items := make([]Value, 0, len(t))
		for _, elem := range t {
			v, err := FromAny(elem)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return Value{kind: KindSequence, items: items}, nil
	case []map[string]any:
		items := make([]Value, 0, len(t))
		for _, elem := range t {
			v, err := FromAny(elem)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return Value{kind: KindSequence, items: items}, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		entries := make([]Entry, 0, len(keys))
		for _, k := range keys {
			v, err := FromAny(t[k])
			if err != nil {
				return Value{}, err
			}
			entries = append(entries, Entry{Key: k, Value: v})
		}
		return Value{kind: KindMapping, entries: entries}, nil
	case nil:
		return Value{}, fmt.Errorf("null values are not supported")
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", x)
	}
}
