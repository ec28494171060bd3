package semantic

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

const ordersSchemaJSON = `[{"name":"Orders","table":"orders","measures":[{"name":"order_count","type":"count"},{"name":"total_freight","type":"sum","sql":"freight"}],"dimensions":[{"name":"order_id","type":"int","sql":"order_id"},{"name":"customer_id","type":"string","sql":"customer_id"},{"name":"order_date","type":"date","sql":"order_date"},{"name":"ship_city","type":"string","sql":"ship_city"},{"name":"ship_country","type":"string","sql":"ship_country"}],"joins":[]}]`

const ordersTableJSON = `{"name":"Orders","table":"orders","measures":[{"name":"order_count","type":"count"},{"name":"total_freight","type":"sum","sql":"freight"}],"dimensions":[{"name":"order_id","type":"int","sql":"order_id"},{"name":"customer_id","type":"string","sql":"customer_id"},{"name":"order_date","type":"date","sql":"order_date"},{"name":"ship_city","type":"string","sql":"ship_city"},{"name":"ship_country","type":"string","sql":"ship_country"}],"joins":[]}`

func mustParse(t *testing.T, src Source) Schema {
	t.Helper()
	s, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return s
}

func TestParse_StringAndObjectAreEquivalent(t *testing.T) {
	want := mustParse(t, Raw(ordersSchemaJSON))

	var generic any
	if err := json.Unmarshal([]byte(ordersSchemaJSON), &generic); err != nil {
		t.Fatal(err)
	}
	var single map[string]any
	if err := json.Unmarshal([]byte(ordersTableJSON), &single); err != nil {
		t.Fatal(err)
	}

	sources := map[string]Source{
		"single object text": Raw(ordersTableJSON),
		"generic array":      Structured(generic),
		"generic object":     Structured(single),
		"typed schema":       Structured(want),
		"typed table":        Structured(want[0]),
		"table pointer":      Structured(&want[0]),
		"bytes":              Structured([]byte(ordersSchemaJSON)),
	}
	for name, src := range sources {
		got, err := Parse(src)
		if err != nil {
			t.Errorf("%s: Parse: %v", name, err)
			continue
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%s: got %v, want %v", name, got, want)
		}
	}
}

func TestParse_StripsCodeFence(t *testing.T) {
	fenced := "```json\n" + ordersSchemaJSON + "\n```"
	if got, want := mustParse(t, Raw(fenced)), mustParse(t, Raw(ordersSchemaJSON)); !reflect.DeepEqual(got, want) {
		t.Errorf("fenced payload parsed differently: %v", got)
	}
}

func TestParse_TablesWrapper(t *testing.T) {
	want := mustParse(t, Raw(ordersSchemaJSON))

	var generic map[string]any
	if err := json.Unmarshal([]byte(`{"tables":`+ordersSchemaJSON+`}`), &generic); err != nil {
		t.Fatal(err)
	}
	sources := map[string]Source{
		"wrapped array":  Raw(`{"tables":` + ordersSchemaJSON + `}`),
		"wrapped object": Raw(`{"tables":` + ordersTableJSON + `}`),
		"fenced wrapper": Raw("```json\n{\"tables\":" + ordersSchemaJSON + "}\n```"),
		"structured map": Structured(generic),
	}
	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			if got := mustParse(t, src); !reflect.DeepEqual(got, want) {
				t.Errorf("got %+v, want %+v", got, want)
			}
		})
	}

	if _, err := Parse(Raw(`{"tables":"orders"}`)); !errors.Is(err, ErrInvalidSchema) {
		t.Errorf("non-list tables: err = %v, want ErrInvalidSchema", err)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  Source
	}{
		{"empty", Raw("   ")},
		{"prose", Raw("Here is your schema!")},
		{"empty array", Raw("[]")},
		{"broken json", Raw(`[{"name":`)},
		{"missing name", Raw(`[{"table":"t"}]`)},
		{"duplicate table", Raw(`[{"name":"A"},{"name":"A"}]`)},
		{"measure without type", Raw(`{"name":"A","measures":[{"name":"m"}]}`)},
		{"nil structured", Structured(nil)},
		{"nil table pointer", Structured((*Table)(nil))},
	}
	for _, tt := range tests {
		if _, err := Parse(tt.src); !errors.Is(err, ErrInvalidSchema) {
			t.Errorf("%s: err = %v, want ErrInvalidSchema", tt.name, err)
		}
	}
}

func TestParse_Defaults(t *testing.T) {
	s := mustParse(t, Raw(`{"name":"Countries"}`))
	if s[0].Table != "Countries" {
		t.Errorf("Table = %q, want the semantic name", s[0].Table)
	}
	if s[0].Measures == nil || s[0].Dimensions == nil || s[0].Joins == nil {
		t.Error("collections should be empty, not nil")
	}
}

func TestSchema_StringRoundTrip(t *testing.T) {
	s := mustParse(t, Raw(ordersSchemaJSON))
	again := mustParse(t, Raw(s.String()))
	if !reflect.DeepEqual(s, again) {
		t.Errorf("round trip changed schema:\n%v\n%v", s, again)
	}
}

func TestSchema_FindMembers(t *testing.T) {
	s := mustParse(t, Raw(ordersSchemaJSON))

	tbl, d, ok := s.FindDimension("Orders.ship_country")
	if !ok || tbl.Table != "orders" || d.SQL != "ship_country" {
		t.Errorf("FindDimension = %v %v %v", tbl.Name, d, ok)
	}
	if _, m, ok := s.FindMeasure("Orders.total_freight"); !ok || m.SQL != "freight" {
		t.Errorf("FindMeasure = %v %v", m, ok)
	}
	for _, bad := range []string{"Orders", "Orders.", ".x", "Nope.ship_country", "Orders.a.b", "Orders.total_freight"} {
		if _, _, ok := s.FindDimension(bad); ok {
			t.Errorf("FindDimension(%q) should fail", bad)
		}
	}
}
