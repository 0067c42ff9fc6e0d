package importer

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTooManyRuns is returned when every run slot stays busy past the wait limit.
	ErrTooManyRuns = errors.New("too many imports in progress, please try again later")

	// ErrRunNotFound is returned for unknown or expired run IDs.
	ErrRunNotFound = errors.New("import run not found")

	// ErrDuplicateKey marks a unique constraint violation reported by storage.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrCancelled is recorded for rows skipped after the run context ended.
	ErrCancelled = errors.New("import cancelled")

	// ErrEmptyImport is returned when an execute request carries no rows.
	ErrEmptyImport = errors.New("no rows to import")

	// ErrGeocodingDisabled is returned by NoopGeocoder.
	ErrGeocodingDisabled = errors.New("geocoding disabled")

	// ErrFileTooLarge is returned by the parser when the upload exceeds its limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrUnknownProfile is returned for a profile key nobody registered.
	ErrUnknownProfile = errors.New("unknown import profile")
)

// ParseError aborts a parse. Line is 1-based and 0 when unknown. Format is
// "csv" or "xlsx"; empty means csv.
type ParseError struct {
	Format string
	Line   int
	Err    error
}

func (e *ParseError) Error() string {
	format := e.Format
	if format == "" {
		format = "csv"
	}
	if e.Line > 0 {
		return fmt.Sprintf("invalid %s at line %d: %v", format, e.Line, e.Err)
	}
	return fmt.Sprintf("invalid %s: %v", format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// RowValidationError lists the fields of one row that failed validation.
type RowValidationError struct {
	Missing  []string
	Problems []string
}

func (e *RowValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing or invalid required fields: "+strings.Join(e.Missing, ", "))
	}
	parts = append(parts, e.Problems...)
	return strings.Join(parts, "; ")
}

// DependencyError reports a failed write for a row: the client, item or
// inventory unit could not be resolved or created.
type DependencyError struct {
	Step string
	Err  error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// DuplicateKeyError names the unique field and value that already exist.
type DuplicateKeyError struct {
	Field      string
	Value      string
	Constraint string
}

func (e *DuplicateKeyError) Error() string {
	name := strings.ReplaceAll(e.Field, "_", " ")
	switch e.Field {
	case FieldPalletNo:
		name = "pallet number"
	case FieldSKU:
		name = "SKU"
	case FieldClientEmail:
		name = "client email"
	}
	if e.Value == "" {
		return fmt.Sprintf("%s already exists (unique constraint violation)", name)
	}
	return fmt.Sprintf("%s %q already exists (unique constraint violation)", name, e.Value)
}

func (e *DuplicateKeyError) Is(target error) bool { return target == ErrDuplicateKey }
