// Package importer implements the bulk inventory import pipeline: parsing an
// uploaded sheet, mapping its columns onto the field catalog, prechecking
// unique keys against storage, and executing the import row by row.
// This package has no HTTP or database dependencies; storage, geocoding and
// password hashing are reached through the interfaces in store.go.
package importer

import (
	"time"

	"github.com/google/uuid"
)

// ParsedRow maps a source column name to its raw cell value.
type ParsedRow map[string]string

// MappedRow maps a target field to its value. Values arrive from JSON so
// they may be strings, numbers, booleans or nil.
type MappedRow map[string]any

// ParsedFile is the Row Parser output. Headers keep file order.
type ParsedFile struct {
	FileName string      `json:"file_name"`
	Headers  []string    `json:"headers"`
	Rows     []ParsedRow `json:"rows"`
}

// FieldType describes how a target field value is interpreted.
type FieldType string

const (
	FieldText    FieldType = "text"
	FieldNumber  FieldType = "number"
	FieldInteger FieldType = "integer"
	FieldBool    FieldType = "boolean"
	FieldDate    FieldType = "date"
	FieldEmail   FieldType = "email"
	FieldURL     FieldType = "url"
)

// FieldDefinition describes one target field offered to the mapper.
type FieldDefinition struct {
	Field string    `json:"field"`
	Label string    `json:"label"`
	Type  FieldType `json:"type"`
}

// ColumnMapping pairs a source column with a target field.
type ColumnMapping struct {
	Source string `json:"csv_column"`
	Target string `json:"db_field"`
}

// RowError records why a single row failed. Row is 1-based.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// Result is the outcome of one import run.
type Result struct {
	Success int        `json:"success"`
	Failed  int        `json:"failed"`
	Errors  []RowError `json:"errors"`
}

// Total returns the number of rows the run accounted for.
func (r Result) Total() int {
	return r.Success + r.Failed
}

func (r *Result) succeed() {
	r.Success++
}

func (r *Result) fail(row int, err error) {
	r.Failed++
	r.Errors = append(r.Errors, RowError{Row: row, Error: err.Error()})
}

// ExistingKeys holds unique values that are already present in storage.
type ExistingKeys struct {
	Pallets []string `json:"existing_pallets"`
	SKUs    []string `json:"existing_skus"`
}

// MediaKind tags a photo attached to an inventory unit.
type MediaKind string

const (
	MediaPallet  MediaKind = "pallet"
	MediaLabel   MediaKind = "label"
	MediaRacking MediaKind = "racking"
	MediaOnsite  MediaKind = "onsite"
)

// NewClient is the record written when an email has no matching client.
type NewClient struct {
	Email        string
	FullName     string
	CompanyName  string
	Role         string
	PasswordHash string
}

// Item is the physical good stored in the warehouse.
type Item struct {
	ClientID    uuid.UUID
	Label       string
	SKU         string
	Description string
	LengthCM    float64
	WidthCM     float64
	HeightCM    float64
	VolumeM3    float64
	WeightKG    float64
	Fragile     bool
	ThisSideUp  bool
	Stackable   bool
	TopLoadKG   float64
	Priority    string
}

// InventoryUnit places an item on a pallet at a site.
type InventoryUnit struct {
	ItemID        uuid.UUID
	ClientID      uuid.UUID
	PalletNo      string
	Site          string
	Location      string
	Zone          string
	Rack          string
	Shelf         string
	Quantity      int
	Status        string
	InventoryDate time.Time
	Latitude      *float64
	Longitude     *float64
	Notes         string
}

// Media links a photo URL to an inventory unit and its item.
type Media struct {
	UnitID uuid.UUID
	ItemID uuid.UUID
	Kind   MediaKind
	URL    string
}

// Coordinates is a resolved latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
