package store

import (
	"errors"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/warehouse/internal/importer"
)

// Postgres error codes handled here.
const (
	codeUniqueViolation = "23505"
)

// constraintFields names the import field behind each unique constraint.
var constraintFields = map[string]string{
	"inventory_units_pallet_no_key": importer.FieldPalletNo,
	"items_sku_key":                 importer.FieldSKU,
	"users_email_lower_key":         importer.FieldClientEmail,
}

// "Key (pallet_no)=(P-100) already exists."
var keyDetail = regexp.MustCompile(`^Key \((.+?)\)=\((.*)\) already exists`)

// translateError turns unique violations into *importer.DuplicateKeyError
// and leaves everything else unchanged.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != codeUniqueViolation {
		return err
	}

	dup := &importer.DuplicateKeyError{Constraint: pgErr.ConstraintName}
	column := ""
	if m := keyDetail.FindStringSubmatch(pgErr.Detail); m != nil {
		column, dup.Value = m[1], m[2]
	}

	if field, ok := constraintFields[pgErr.ConstraintName]; ok {
		dup.Field = field
	} else if column != "" {
		dup.Field = column
	} else {
		dup.Field = pgErr.ConstraintName
	}
	return dup
}
