package yaml

import (
	"bytes"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

func Unmarshal(in []byte, out interface{}) (err error) {
	return yaml.Unmarshal(in, out)
}

func Encode(v any, indent int) ([]byte, error) {
	b := bytes.NewBuffer(nil)
	e := yaml.NewEncoder(b)
	e.SetIndent(indent)

	if err := e.Encode(v); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Merge - combine YAML documents, later values override earlier ones,
// nested maps are merged key by key
func Merge(docs ...[]byte) ([]byte, error) {
	dst := map[string]any{}
	for _, doc := range docs {
		var src map[string]any
		if err := yaml.Unmarshal(doc, &src); err != nil {
			return nil, err
		}
		merge(dst, src)
	}
	return Encode(dst, 2)
}

func merge(dst, src map[string]any) {
	for k, v := range src {
		if m, ok := v.(map[string]any); ok {
			if d, ok := dst[k].(map[string]any); ok {
				merge(d, m)
				continue
			}
		}
		dst[k] = v
	}
}

// Duration - float seconds (`0.5`, `2`) or Go duration (`500ms`)
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if f, err := strconv.ParseFloat(node.Value, 64); err == nil {
		*d = Duration(f * float64(time.Second))
		return nil
	}

	v, err := time.ParseDuration(node.Value)
	if err != nil {
		return &yaml.TypeError{Errors: []string{"line " + strconv.Itoa(node.Line) + ": wrong duration: " + node.Value}}
	}

	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}
