package importer

import (
	"context"

	"github.com/google/uuid"
)

// Store is the persistence the pipeline needs. The PostgreSQL
// implementation lives in internal/store.
type Store interface {
	// ExistingPalletNumbers returns the subset of values already stored.
	ExistingPalletNumbers(ctx context.Context, values []string) ([]string, error)

	// ExistingSKUs returns the subset of values already stored.
	ExistingSKUs(ctx context.Context, values []string) ([]string, error)

	// InRowTx runs fn in a transaction that commits only when fn returns nil.
	InRowTx(ctx context.Context, fn func(tx RowTx) error) error
}

// RowTx is the write surface available while one row is imported.
type RowTx interface {
	FindClientByEmail(ctx context.Context, role, email string) (uuid.UUID, bool, error)
	CreateClient(ctx context.Context, c NewClient) (uuid.UUID, error)

	HasPermission(ctx context.Context, userID uuid.UUID, appID string) (bool, error)
	GrantPermission(ctx context.Context, userID uuid.UUID, appID string) error

	InsertItem(ctx context.Context, item Item) (uuid.UUID, error)
	InsertInventoryUnit(ctx context.Context, unit InventoryUnit) (uuid.UUID, error)
	InsertMedia(ctx context.Context, m Media) error

	// Savepoint runs fn so that its failure is undone without aborting the
	// surrounding row transaction.
	Savepoint(ctx context.Context, fn func() error) error
}

// Geocoder resolves a free-text site address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Coordinates, error)
}

// PasswordHasher issues credentials for clients created by an import.
type PasswordHasher interface {
	Generate() (string, error)
	Hash(password string) (string, error)
}

// NoopGeocoder never resolves anything. It is used when no API key is set.
type NoopGeocoder struct{}

// Geocode implements Geocoder.
func (NoopGeocoder) Geocode(context.Context, string) (Coordinates, error) {
	return Coordinates{}, ErrGeocodingDisabled
}
