package importer

import (
	"fmt"
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// normalizeHeader lowercases and trims a header.
func normalizeHeader(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// cleanToken collapses non-alphanumeric runs of the normalized value into
// single underscores: "Pallet No." becomes "pallet_no".
func cleanToken(s string) string {
	return strings.Trim(nonAlnum.ReplaceAllString(normalizeHeader(s), "_"), "_")
}

// minContainsLen guards the substring rules: names of this length or
// shorter only match exactly.
const minContainsLen = 3

// matches applies the header rules to one field in precedence order.
func matches(normalized, clean string, f FieldDefinition) bool {
	label := strings.ToLower(strings.TrimSpace(f.Label))
	name := cleanToken(f.Field)

	switch {
	case label != "" && normalized == label:
		return true
	case name != "" && clean == name:
		return true
	case len(f.Field) > minContainsLen && name != "" && strings.Contains(clean, name):
		return true
	case len(f.Label) > minContainsLen && strings.Contains(normalized, label):
		return true
	}
	return false
}

// AutoMap proposes a mapping from headers to fields. Headers are visited in
// file order; for each one the first unclaimed field that matches, required
// before optional, claims it. Headers that match nothing are left out, and a
// field is never claimed twice.
func AutoMap(headers []string, required, optional []FieldDefinition) []ColumnMapping {
	candidates := make([]FieldDefinition, 0, len(required)+len(optional))
	candidates = append(candidates, required...)
	candidates = append(candidates, optional...)

	claimed := make(map[string]bool, len(candidates))
	mapping := make([]ColumnMapping, 0, len(headers))

	for _, header := range headers {
		normalized := normalizeHeader(header)
		if normalized == "" {
			continue
		}
		clean := cleanToken(header)

		for _, f := range candidates {
			if claimed[f.Field] {
				continue
			}
			if matches(normalized, clean, f) {
				claimed[f.Field] = true
				mapping = append(mapping, ColumnMapping{Source: header, Target: f.Field})
				break
			}
		}
	}

	return mapping
}

// AutoMapProfile maps headers against a registered catalog.
func AutoMapProfile(headers []string, p Profile) []ColumnMapping {
	return AutoMap(headers, p.Required, p.Optional)
}

// MappingReport describes problems with a user-edited mapping.
type MappingReport struct {
	UnmappedRequired []string `json:"unmapped_required"`
}

// Err returns an error naming the unmapped required fields, or nil. Callers
// that import without a review step use it to refuse incomplete mappings.
func (r MappingReport) Err() error {
	if len(r.UnmappedRequired) == 0 {
		return nil
	}
	return fmt.Errorf("required field not mapped: %s", strings.Join(r.UnmappedRequired, ", "))
}

// ValidateMapping checks an edited mapping against the headers and the
// catalog. Duplicate targets, unknown sources and unknown fields are errors;
// required fields without a column are reported but allowed, since those
// rows will then fail validation individually.
func ValidateMapping(mapping []ColumnMapping, headers []string, p Profile) (MappingReport, error) {
	known := make(map[string]bool, len(headers))
	for _, h := range headers {
		known[h] = true
	}

	targets := make(map[string]string, len(mapping))
	for _, m := range mapping {
		if !known[m.Source] {
			return MappingReport{}, fmt.Errorf("invalid request: column %q is not in the file", m.Source)
		}
		if _, ok := p.Lookup(m.Target); !ok {
			return MappingReport{}, fmt.Errorf("invalid request: unknown field %q", m.Target)
		}
		if prev, dup := targets[m.Target]; dup {
			return MappingReport{}, fmt.Errorf("field %q mapped more than once (%q and %q)", m.Target, prev, m.Source)
		}
		targets[m.Target] = m.Source
	}

	var report MappingReport
	for _, f := range p.Required {
		if _, ok := targets[f.Field]; !ok {
			report.UnmappedRequired = append(report.UnmappedRequired, f.Field)
		}
	}
	return report, nil
}

// ApplyMapping re-keys parsed rows by target field. Unmapped columns are
// dropped; empty cells become nil.
func ApplyMapping(rows []ParsedRow, mapping []ColumnMapping) []MappedRow {
	out := make([]MappedRow, len(rows))
	for i, row := range rows {
		mapped := make(MappedRow, len(mapping))
		for _, m := range mapping {
			v, ok := row[m.Source]
			if !ok || strings.TrimSpace(v) == "" {
				mapped[m.Target] = nil
				continue
			}
			mapped[m.Target] = v
		}
		out[i] = mapped
	}
	return out
}
