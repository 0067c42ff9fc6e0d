package web

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/JonMunkholm/warehouse/internal/importer"
)

// Request bodies. Validation tags use go-playground/validator syntax.

type mapRequest struct {
	Profile string                   `json:"profile"`
	Headers []string                 `json:"headers" validate:"required,min=1"`
	Mapping []importer.ColumnMapping `json:"mapping"`
}

type precheckRequest struct {
	Rows    []importer.ParsedRow     `json:"rows" validate:"required"`
	Mapping []importer.ColumnMapping `json:"mapping"`
}

type checkPalletsRequest struct {
	PalletNumbers []string `json:"pallet_numbers" validate:"required"`
}

type checkSKUsRequest struct {
	SKUs []string `json:"skus" validate:"required"`
}

type executeRequest struct {
	Rows []importer.MappedRow `json:"rows" validate:"required"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonTagName)
	})
	return validate
}

func jsonTagName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

// maxJSONBody returns the body limit for JSON requests. Rows repeat every
// field name, so the limit is a multiple of the file limit.
func (s *Server) maxJSONBody() int64 {
	return 4 * s.cfg.Import.MaxFileSize
}

// decodeRequest reads a JSON body into dst and validates it. Every failure
// is reported as an invalid request.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxJSONBody())

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: request body exceeds %d bytes", importer.ErrFileTooLarge, tooLarge.Limit)
		}
		return fmt.Errorf("invalid request: %w", err)
	}

	if err := requestValidator().Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return fmt.Errorf("invalid request: check %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}
