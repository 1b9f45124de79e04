// Package filters converts between ingestion filter selections and the compact
// comma-joined strings persisted in the settings store.
package filters

import "errors"

// ErrInvalidSelection is returned when encoding an empty selection.
var ErrInvalidSelection = errors.New("at least one item must be selected")

// Severity is a flat, filterable event severity.
type Severity struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Color string `json:"color"`
}

// SourceType is a leaf of the source type taxonomy.
type SourceType struct {
	Value string `json:"value"`
}

// SourceTypeCategory groups source types. A category whose leaves are all
// selected is persisted as its own value.
type SourceTypeCategory struct {
	Value string       `json:"value"`
	Types []SourceType `json:"types"`
}

// LeafCount returns the number of source types across all categories.
func LeafCount(categories []SourceTypeCategory) int {
	n := 0
	for _, category := range categories {
		n += len(category.Types)
	}
	return n
}

// Leaves flattens categories into their source types, in category order.
func Leaves(categories []SourceTypeCategory) []SourceType {
	out := make([]SourceType, 0, LeafCount(categories))
	for _, category := range categories {
		out = append(out, category.Types...)
	}
	return out
}
