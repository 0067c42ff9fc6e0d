package importer

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Defaults applied to optional fields left empty.
const (
	DefaultTopLoadKG = 500
	DefaultQuantity  = 1
	DefaultStatus    = "in_storage"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report failures under the column field name rather than the Go name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type photo struct {
	kind MediaKind
	url  string
}

// rowRecord is one mapped row after coercion. Zero numbers on required
// fields mean the value was missing or unreadable.
type rowRecord struct {
	Label       string  `json:"label" validate:"required"`
	LengthCM    float64 `json:"length_cm" validate:"required"`
	WidthCM     float64 `json:"width_cm" validate:"required"`
	HeightCM    float64 `json:"height_cm" validate:"required"`
	VolumeM3    float64 `json:"volume_m3" validate:"required"`
	WeightKG    float64 `json:"weight_kg" validate:"required"`
	Site        string  `json:"site" validate:"required"`
	ClientName  string  `json:"client_name" validate:"required,min=2"`
	ClientEmail string  `json:"client_email" validate:"required"`

	Quantity  int      `json:"quantity" validate:"gte=0"`
	TopLoadKG float64  `json:"top_load_kg" validate:"gte=0"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`

	PalletNo      string
	SKU           string
	Description   string
	Priority      string
	Location      string
	Zone          string
	Rack          string
	Shelf         string
	Status        string
	Notes         string
	Fragile       bool
	ThisSideUp    bool
	Stackable     bool
	InventoryDate time.Time
	Photos        []photo
}

// prepareRow coerces a mapped row and validates it. The returned error is
// always a *RowValidationError.
func prepareRow(row MappedRow, now time.Time) (*rowRecord, error) {
	rec := &rowRecord{
		Label:       textValue(row[FieldLabel]),
		Site:        textValue(row[FieldSite]),
		ClientName:  textValue(row[FieldClientName]),
		ClientEmail: strings.ToLower(textValue(row[FieldClientEmail])),

		PalletNo:    textValue(row[FieldPalletNo]),
		SKU:         textValue(row[FieldSKU]),
		Description: textValue(row[FieldDescription]),
		Priority:    textValue(row[FieldPriority]),
		Location:    textValue(row[FieldLocation]),
		Zone:        textValue(row[FieldZone]),
		Rack:        textValue(row[FieldRack]),
		Shelf:       textValue(row[FieldShelf]),
		Notes:       textValue(row[FieldNotes]),
		Fragile:     flagValue(row[FieldFragile]),
		ThisSideUp:  flagValue(row[FieldThisSideUp]),
		Stackable:   true,
	}
	rec.LengthCM, _ = numberValue(row[FieldLengthCM])
	rec.WidthCM, _ = numberValue(row[FieldWidthCM])
	rec.HeightCM, _ = numberValue(row[FieldHeightCM])
	rec.VolumeM3, _ = numberValue(row[FieldVolumeM3])
	rec.WeightKG, _ = numberValue(row[FieldWeightKG])

	var problems []string

	if textValue(row[FieldStackable]) != "" {
		rec.Stackable = flagValue(row[FieldStackable])
	}

	rec.TopLoadKG = DefaultTopLoadKG
	if raw := textValue(row[FieldTopLoadKG]); raw != "" {
		v, ok := numberValue(row[FieldTopLoadKG])
		if !ok {
			problems = append(problems, fmt.Sprintf("top_load_kg %q is not a number", raw))
		}
		rec.TopLoadKG = v
	}

	rec.Quantity = DefaultQuantity
	if raw := textValue(row[FieldQuantity]); raw != "" {
		v, ok := intValue(row[FieldQuantity])
		if !ok {
			problems = append(problems, fmt.Sprintf("quantity %q is not a whole number", raw))
		}
		rec.Quantity = v
	}

	rec.Status = textValue(row[FieldStatus])
	if rec.Status == "" {
		rec.Status = DefaultStatus
	}

	rec.InventoryDate = truncateDay(now)
	if raw := textValue(row[FieldInventoryDate]); raw != "" {
		d, ok := dateValue(row[FieldInventoryDate], now)
		if !ok {
			problems = append(problems, fmt.Sprintf("inventory_date %q is not a date", raw))
		} else {
			rec.InventoryDate = d
		}
	}

	lat, latOK := numberValue(row[FieldLatitude])
	lng, lngOK := numberValue(row[FieldLongitude])
	if latOK && lngOK {
		rec.Latitude, rec.Longitude = &lat, &lng
	}

	for _, p := range photoFields {
		if url := textValue(row[p.field]); url != "" {
			rec.Photos = append(rec.Photos, photo{kind: p.kind, url: url})
		}
	}

	verr := &RowValidationError{Problems: problems}
	if err := validate.Struct(rec); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, &RowValidationError{Problems: []string{err.Error()}}
		}
		for _, fe := range fieldErrs {
			switch fe.Tag() {
			case "required":
				verr.Missing = append(verr.Missing, fe.Field())
			case "min":
				verr.Problems = append(verr.Problems, fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param()))
			default:
				verr.Problems = append(verr.Problems, fmt.Sprintf("%s is out of range", fe.Field()))
			}
		}
	}

	if len(verr.Missing) > 0 || len(verr.Problems) > 0 {
		return nil, verr
	}
	return rec, nil
}
