package dataset

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Serializer selects how a dataset is rendered into LLM prompts.
type Serializer string

const (
	SerializerCSV  Serializer = "csv"
	SerializerJSON Serializer = "json"
	SerializerYAML Serializer = "yaml"
)

// ParseSerializer maps a config value to a Serializer. Empty means CSV.
func ParseSerializer(s string) (Serializer, error) {
	switch Serializer(strings.ToLower(strings.TrimSpace(s))) {
	case "", SerializerCSV:
		return SerializerCSV, nil
	case SerializerJSON:
		return SerializerJSON, nil
	case SerializerYAML:
		return SerializerYAML, nil
	}
	return "", fmt.Errorf("unknown dataframe serializer %q", s)
}

// Serialize renders the dataset in the given format.
func Serialize(d *Dataset, s Serializer) (string, error) {
	switch s {
	case SerializerCSV, "":
		return serializeCSV(d)
	case SerializerJSON:
		b, err := json.Marshal(records(d))
		if err != nil {
			return "", fmt.Errorf("marshalling dataset to json: %w", err)
		}
		return string(b), nil
	case SerializerYAML:
		b, err := yaml.Marshal(yamlDoc(d))
		if err != nil {
			return "", fmt.Errorf("marshalling dataset to yaml: %w", err)
		}
		return string(b), nil
	}
	return "", fmt.Errorf("unknown dataframe serializer %q", s)
}

func serializeCSV(d *Dataset) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(d.ColumnNames()); err != nil {
		return "", err
	}
	rec := make([]string, len(d.columns))
	for i := 0; i < d.rows; i++ {
		for j, c := range d.columns {
			rec[j] = FormatValue(c.Values[i])
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

func records(d *Dataset) []map[string]any {
	out := make([]map[string]any, d.rows)
	for i := 0; i < d.rows; i++ {
		m := make(map[string]any, len(d.columns))
		for _, c := range d.columns {
			m[c.Name] = jsonValue(c.Values[i])
		}
		out[i] = m
	}
	return out
}

func jsonValue(v any) any {
	if _, ok := v.(string); ok || v == nil {
		return v
	}
	switch v.(type) {
	case int64, float64, bool:
		return v
	}
	return FormatValue(v)
}

// yamlDoc keeps the column order of the dataset in the rendered document.
func yamlDoc(d *Dataset) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for i := 0; i < d.rows; i++ {
		row := &yaml.Node{Kind: yaml.MappingNode}
		for _, c := range d.columns {
			key := &yaml.Node{Kind: yaml.ScalarNode, Value: c.Name}
			val := &yaml.Node{Kind: yaml.ScalarNode, Value: FormatValue(c.Values[i])}
			switch c.Values[i].(type) {
			case nil:
				val.Tag = "!!null"
				val.Value = "null"
			case int64:
				val.Tag = "!!int"
			case float64:
				val.Tag = "!!float"
			case bool:
				val.Tag = "!!bool"
			default:
				val.Tag = "!!str"
			}
			row.Content = append(row.Content, key, val)
		}
		seq.Content = append(seq.Content, row)
	}
	return &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{seq}}
}
