package semantic

import (
	"fmt"
	"strings"

	"github.com/kalambet/semagent/internal/dataset"
)

// sampleRows is how many rows of the dataset are shown to the model.
const sampleRows = 5

const schemaPromptTemplate = `You are a semantic layer designer. Analyze the dataset below and describe it as a semantic layer schema. Your output must be ONLY a valid JSON array of table objects. Do not include any other text, prose, or markdown.

Each table object has:
- "name": the semantic table name used in queries
- "table": the physical table name (use the dataset name given below)
- "measures": aggregatable members, each {"name", "type", "sql"} where type is one of count, sum, avg, min, max
- "dimensions": groupable members, each {"name", "type", "sql"} where type is one of string, int, float, bool, date, time
- "joins": relations to other tables, each {"name", "join_type", "sql"}; use [] when there are none

Rules:
- "sql" is the physical column the member reads from.
- Every column must appear as a dimension.
- Add a "count" measure and a measure for each meaningful numeric column.`

// BuildSchemaPrompt renders the prompt asking a model to describe ds as a
// semantic schema. A sample of the rows is included, rendered with ser.
func BuildSchemaPrompt(ds *dataset.Dataset, ser dataset.Serializer) (string, error) {
	sample, err := dataset.Serialize(ds.Head(sampleRows), ser)
	if err != nil {
		return "", fmt.Errorf("serializing dataset sample: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(schemaPromptTemplate)

	fmt.Fprintf(&sb, "\n\n[Dataset]\nname: %s\nrows: %d\ncolumns:\n", ds.Name(), ds.Len())
	for _, c := range ds.Columns() {
		fmt.Fprintf(&sb, "- %s (%s)\n", c.Name, c.Kind)
	}
	fmt.Fprintf(&sb, "\n[Sample, %s]\n%s", ser, sample)

	return sb.String(), nil
}
