package filters

import (
	"errors"
	"slices"
	"sort"
	"strings"
	"testing"
)

var allSeverities = []Severity{
	{Value: "info", Label: "Info", Color: "#a7a7a7"},
	{Value: "low", Label: "Low", Color: "#7bbce5"},
	{Value: "medium", Label: "Medium", Color: "#f5c04a"},
	{Value: "high", Label: "High", Color: "#f57c4a"},
	{Value: "critical", Label: "Critical", Color: "#e0475c"},
}

var testCategories = []SourceTypeCategory{
	{Value: "Category1", Types: []SourceType{{Value: "t1"}, {Value: "t2"}}},
	{Value: "Category2", Types: []SourceType{{Value: "t3"}, {Value: "t4"}}},
}

func sourceTypes(values ...string) []SourceType {
	out := make([]SourceType, 0, len(values))
	for _, v := range values {
		out = append(out, SourceType{Value: v})
	}
	return out
}

func sortedValues(types []SourceType) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, t.Value)
	}
	sort.Strings(out)
	return out
}

func TestEncodeSeverities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		selected []Severity
		want     string
	}{
		{name: "all selected", selected: allSeverities, want: ""},
		{name: "single", selected: allSeverities[:1], want: "info"},
		{name: "keeps selection order", selected: []Severity{allSeverities[4], allSeverities[1]}, want: "critical,low"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := EncodeSeverities(tc.selected, allSeverities)
			if err != nil {
				t.Fatalf("EncodeSeverities() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("EncodeSeverities() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestEncodeSeveritiesEmptySelection(t *testing.T) {
	t.Parallel()

	if _, err := EncodeSeverities(nil, allSeverities); !errors.Is(err, ErrInvalidSelection) {
		t.Fatalf("EncodeSeverities(nil) error = %v, want ErrInvalidSelection", err)
	}
	if _, err := EncodeSeverities([]Severity{}, nil); !errors.Is(err, ErrInvalidSelection) {
		t.Fatalf("EncodeSeverities([]) error = %v, want ErrInvalidSelection", err)
	}
}

func TestDecodeSeverities(t *testing.T) {
	t.Parallel()

	if got := DecodeSeverities("", allSeverities); !slices.Equal(got, allSeverities) {
		t.Fatalf("DecodeSeverities(\"\") = %v, want all severities", got)
	}

	got := DecodeSeverities("high,removed,info", allSeverities)
	want := []Severity{allSeverities[3], allSeverities[0]}
	if !slices.Equal(got, want) {
		t.Fatalf("DecodeSeverities() = %v, want %v", got, want)
	}
}

func TestSeverityRoundTrip(t *testing.T) {
	t.Parallel()

	selections := [][]Severity{
		allSeverities[:1],
		allSeverities[1:3],
		{allSeverities[4], allSeverities[0], allSeverities[2]},
		allSeverities,
	}
	for _, selected := range selections {
		encoded, err := EncodeSeverities(selected, allSeverities)
		if err != nil {
			t.Fatalf("EncodeSeverities(%v) error = %v", selected, err)
		}
		decoded := DecodeSeverities(encoded, allSeverities)
		if len(decoded) != len(selected) {
			t.Fatalf("round trip of %v gave %v", selected, decoded)
		}
		for _, s := range selected {
			if !slices.Contains(decoded, s) {
				t.Fatalf("round trip of %v lost %v", selected, s)
			}
		}
	}
}

func TestEncodeSourceTypes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		selected []SourceType
		want     string
	}{
		{name: "everything selected", selected: sourceTypes("t1", "t2", "t3", "t4"), want: ""},
		{name: "whole category", selected: sourceTypes("t1", "t2"), want: "Category1"},
		{name: "leaf before category in scan order", selected: sourceTypes("t1", "t2", "t3"), want: "t3,Category1"},
		{name: "no complete category", selected: sourceTypes("t4", "t1"), want: "t4,t1"},
		{name: "both categories in other order", selected: sourceTypes("t3", "t4", "t2", "t1"), want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := EncodeSourceTypes(tc.selected, testCategories)
			if err != nil {
				t.Fatalf("EncodeSourceTypes() error = %v", err)
			}
			if got != tc.want {
				t.Fatalf("EncodeSourceTypes() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestEncodeSourceTypesSingleCategoryTaxonomy(t *testing.T) {
	t.Parallel()

	categories := []SourceTypeCategory{
		{Value: "Category1", Types: sourceTypes("t1", "t2")},
		{Value: "Category2", Types: sourceTypes("t3", "t4")},
		{Value: "Category3", Types: sourceTypes("t5")},
	}
	got, err := EncodeSourceTypes(sourceTypes("t3", "t4", "t5"), categories)
	if err != nil {
		t.Fatalf("EncodeSourceTypes() error = %v", err)
	}
	parts := strings.Split(got, ",")
	sort.Strings(parts)
	if !slices.Equal(parts, []string{"Category2", "Category3"}) {
		t.Fatalf("EncodeSourceTypes() = %q, want Category2 and Category3", got)
	}
}

func TestEncodeSourceTypesEmptySelection(t *testing.T) {
	t.Parallel()

	if _, err := EncodeSourceTypes(nil, testCategories); !errors.Is(err, ErrInvalidSelection) {
		t.Fatalf("EncodeSourceTypes(nil) error = %v, want ErrInvalidSelection", err)
	}
}

func TestDecodeSourceTypes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		filter string
		want   []string
	}{
		{name: "empty means all", filter: "", want: []string{"t1", "t2", "t3", "t4"}},
		{name: "mixed", filter: "t3,Category1", want: []string{"t1", "t2", "t3"}},
		{name: "unknown tokens dropped", filter: "gone,t4,OldCategory", want: []string{"t4"}},
		{name: "category and its leaf", filter: "Category2,t3", want: []string{"t3", "t4"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := sortedValues(DecodeSourceTypes(tc.filter, testCategories))
			if !slices.Equal(got, tc.want) {
				t.Fatalf("DecodeSourceTypes(%q) = %v, want %v", tc.filter, got, tc.want)
			}
		})
	}
}

func TestSourceTypeRoundTrip(t *testing.T) {
	t.Parallel()

	selections := [][]SourceType{
		sourceTypes("t1"),
		sourceTypes("t1", "t2", "t3"),
		sourceTypes("t2", "t3", "t4"),
		sourceTypes("t4", "t1"),
		sourceTypes("t1", "t2", "t3", "t4"),
	}
	for _, selected := range selections {
		encoded, err := EncodeSourceTypes(selected, testCategories)
		if err != nil {
			t.Fatalf("EncodeSourceTypes(%v) error = %v", selected, err)
		}
		got := sortedValues(DecodeSourceTypes(encoded, testCategories))
		if want := sortedValues(selected); !slices.Equal(got, want) {
			t.Fatalf("round trip via %q = %v, want %v", encoded, got, want)
		}
	}
}

func TestTokens(t *testing.T) {
	t.Parallel()

	if got := Tokens(""); got != nil {
		t.Fatalf("Tokens(\"\") = %v, want nil", got)
	}
	if got := Tokens("a, b,,c "); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("Tokens() = %v", got)
	}
}

func TestByValueResolvers(t *testing.T) {
	t.Parallel()

	severities := SeveritiesByValue([]string{"low", "nope", "critical"}, allSeverities)
	if len(severities) != 2 || severities[0].Value != "low" || severities[1].Value != "critical" {
		t.Fatalf("SeveritiesByValue() = %v", severities)
	}

	types := SourceTypesByValue([]string{"t4", "missing", "t1"}, testCategories)
	if !slices.Equal(types, sourceTypes("t4", "t1")) {
		t.Fatalf("SourceTypesByValue() = %v", types)
	}
}

func TestDuplicateSelectionsKeepFilter(t *testing.T) {
	t.Parallel()

	severities := SeveritiesByValue([]string{"high", "high", "high", "high", "high"}, allSeverities)
	filter, err := EncodeSeverities(severities, allSeverities)
	if err != nil {
		t.Fatalf("EncodeSeverities() error = %v", err)
	}
	if filter != "high" {
		t.Fatalf("EncodeSeverities() = %q, want %q", filter, "high")
	}

	types := SourceTypesByValue([]string{"t1", "t1", "t2", "t3"}, testCategories)
	filter, err = EncodeSourceTypes(types, testCategories)
	if err != nil {
		t.Fatalf("EncodeSourceTypes() error = %v", err)
	}
	if filter == "" {
		t.Fatal("EncodeSourceTypes() = \"\", want a restricting filter")
	}
	if got := sortedValues(DecodeSourceTypes(filter, testCategories)); !slices.Equal(got, []string{"t1", "t2", "t3"}) {
		t.Fatalf("round trip = %v, want [t1 t2 t3]", got)
	}
}
