package filters

import (
	"slices"
	"strings"
)

const separator = ","

// EncodeSeverities returns the persisted filter for the selected severities.
// Selecting every severity yields "", which means no filtering.
func EncodeSeverities(selected, all []Severity) (string, error) {
	if len(selected) == 0 {
		return "", ErrInvalidSelection
	}
	if len(selected) == len(all) {
		return "", nil
	}
	values := make([]string, 0, len(selected))
	for _, severity := range selected {
		values = append(values, severity.Value)
	}
	return strings.Join(values, separator), nil
}

// DecodeSeverities expands a persisted filter into severities from all.
// Unknown tokens are ignored.
func DecodeSeverities(filter string, all []Severity) []Severity {
	if filter == "" {
		return slices.Clone(all)
	}
	out := make([]Severity, 0, len(all))
	for _, token := range strings.Split(filter, separator) {
		idx := slices.IndexFunc(all, func(s Severity) bool { return s.Value == token })
		if idx >= 0 {
			out = append(out, all[idx])
		}
	}
	return out
}

// EncodeSourceTypes returns the persisted filter for the selected source
// types. Fully selected categories collapse into the category value, appended
// after the leaves that remain uncompressed.
func EncodeSourceTypes(selected []SourceType, categories []SourceTypeCategory) (string, error) {
	if len(selected) == 0 {
		return "", ErrInvalidSelection
	}
	if len(selected) == LeafCount(categories) {
		return "", nil
	}

	tokens := make([]string, 0, len(selected))
	for _, sourceType := range selected {
		tokens = append(tokens, sourceType.Value)
	}
	for _, category := range categories {
		if len(category.Types) == 0 || !containsAll(tokens, category.Types) {
			continue
		}
		tokens = slices.DeleteFunc(tokens, func(token string) bool {
			return slices.ContainsFunc(category.Types, func(t SourceType) bool { return t.Value == token })
		})
		tokens = append(tokens, category.Value)
	}
	return strings.Join(tokens, separator), nil
}

// DecodeSourceTypes expands a persisted filter into source types. Category
// tokens expand to every leaf of the category; unknown tokens are ignored.
func DecodeSourceTypes(filter string, categories []SourceTypeCategory) []SourceType {
	if filter == "" {
		return Leaves(categories)
	}

	out := make([]SourceType, 0, LeafCount(categories))
	seen := make(map[string]struct{}, LeafCount(categories))
	add := func(sourceType SourceType) {
		if _, ok := seen[sourceType.Value]; ok {
			return
		}
		seen[sourceType.Value] = struct{}{}
		out = append(out, sourceType)
	}

	for _, token := range strings.Split(filter, separator) {
		if idx := slices.IndexFunc(categories, func(c SourceTypeCategory) bool { return c.Value == token }); idx >= 0 {
			for _, sourceType := range categories[idx].Types {
				add(sourceType)
			}
			continue
		}
		if sourceType, ok := findSourceType(categories, token); ok {
			add(sourceType)
		}
	}
	return out
}

// Tokens splits a persisted filter into its tokens. The empty filter has none.
func Tokens(filter string) []string {
	if strings.TrimSpace(filter) == "" {
		return nil
	}
	parts := strings.Split(filter, separator)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SeveritiesByValue resolves submitted values against all, keeping the order
// of values and dropping duplicates and values that match nothing.
func SeveritiesByValue(values []string, all []Severity) []Severity {
	out := make([]Severity, 0, len(values))
	for _, value := range stableUnique(values) {
		idx := slices.IndexFunc(all, func(s Severity) bool { return s.Value == value })
		if idx >= 0 {
			out = append(out, all[idx])
		}
	}
	return out
}

// SourceTypesByValue resolves submitted leaf values against the taxonomy.
// Each leaf appears at most once in the result.
func SourceTypesByValue(values []string, categories []SourceTypeCategory) []SourceType {
	out := make([]SourceType, 0, len(values))
	for _, value := range stableUnique(values) {
		if sourceType, ok := findSourceType(categories, value); ok {
			out = append(out, sourceType)
		}
	}
	return out
}

func stableUnique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func containsAll(tokens []string, types []SourceType) bool {
	for _, sourceType := range types {
		if !slices.Contains(tokens, sourceType.Value) {
			return false
		}
	}
	return true
}

func findSourceType(categories []SourceTypeCategory, value string) (SourceType, bool) {
	for _, category := range categories {
		for _, sourceType := range category.Types {
			if sourceType.Value == value {
				return sourceType, true
			}
		}
	}
	return SourceType{}, false
}
