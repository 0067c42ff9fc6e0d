package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/warehouse/internal/importer"
)

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name      string
		err       *pgconn.PgError
		wantField string
		wantValue string
		wantMsg   string
	}{
		{
			name: "pallet number",
			err: &pgconn.PgError{Code: "23505", ConstraintName: "inventory_units_pallet_no_key",
				Detail: "Key (pallet_no)=(P-100) already exists."},
			wantField: importer.FieldPalletNo,
			wantValue: "P-100",
			wantMsg:   `pallet number "P-100" already exists (unique constraint violation)`,
		},
		{
			name: "sku",
			err: &pgconn.PgError{Code: "23505", ConstraintName: "items_sku_key",
				Detail: "Key (sku)=(SKU-9) already exists."},
			wantField: importer.FieldSKU,
			wantValue: "SKU-9",
			wantMsg:   `SKU "SKU-9" already exists (unique constraint violation)`,
		},
		{
			name: "expression index on email",
			err: &pgconn.PgError{Code: "23505", ConstraintName: "users_email_lower_key",
				Detail: "Key (lower(email))=(ops@acme.test) already exists."},
			wantField: importer.FieldClientEmail,
			wantValue: "ops@acme.test",
			wantMsg:   `client email "ops@acme.test" already exists (unique constraint violation)`,
		},
		{
			name: "unknown constraint falls back to column",
			err: &pgconn.PgError{Code: "23505", ConstraintName: "roles_name_key",
				Detail: "Key (name)=(client) already exists."},
			wantField: "name",
			wantValue: "client",
		},
		{
			name:      "no detail",
			err:       &pgconn.PgError{Code: "23505", ConstraintName: "something_key"},
			wantField: "something_key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := translateError(fmt.Errorf("insert: %w", tt.err))

			var dup *importer.DuplicateKeyError
			require.ErrorAs(t, err, &dup)
			assert.Equal(t, tt.wantField, dup.Field)
			assert.Equal(t, tt.wantValue, dup.Value)
			assert.Equal(t, tt.err.ConstraintName, dup.Constraint)
			assert.ErrorIs(t, err, importer.ErrDuplicateKey)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, err.Error())
			}
		})
	}
}

func TestTranslateError_PassesOthersThrough(t *testing.T) {
	assert.NoError(t, translateError(nil))

	fk := &pgconn.PgError{Code: "23503", Message: `insert or update on table "items" violates foreign key constraint "items_client_id_fkey"`}
	assert.Same(t, fk, translateError(fk))

	plain := errors.New("conn closed")
	assert.Same(t, plain, translateError(plain))
}

func TestConvert(t *testing.T) {
	assert.False(t, toPgText("  ").Valid)
	assert.Equal(t, "Leith", toPgText(" Leith ").String)

	assert.True(t, toPgInt4(0).Valid)
	assert.Equal(t, int32(7), toPgInt4(7).Int32)

	assert.False(t, toPgFloat8(nil).Valid)
	lat := 55.95
	assert.Equal(t, 55.95, toPgFloat8(&lat).Float64)

	assert.False(t, toPgDate(time.Time{}).Valid)
	d := toPgDate(time.Date(2025, 11, 2, 18, 30, 0, 0, time.FixedZone("X", 3600)))
	assert.Equal(t, time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC), d.Time)

	assert.False(t, toPgUUID(uuid.Nil).Valid)
	id := uuid.New()
	assert.Equal(t, id, fromPgUUID(toPgUUID(id)))
}

func TestSchemaIsEmbedded(t *testing.T) {
	for _, table := range []string{"roles", "users", "app_permissions", "items", "inventory_units", "media"} {
		assert.Contains(t, Schema(), "CREATE TABLE IF NOT EXISTS "+table)
	}
	for constraint := range constraintFields {
		assert.Contains(t, Schema(), constraint)
	}
}

// openTestStore connects to WAREHOUSE_TEST_DATABASE_URL, skipping when it
// is unset. Each test gets its own schema.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("WAREHOUSE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("WAREHOUSE_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	schema := "test_" + uuid.NewString()[:8]

	admin, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)

	cfg, err := pgxpool.ParseConfig(url)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		pool.Close()
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		admin.Close()
	})

	s := New(pool)
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx), "migrate is repeatable")
	return s
}

func TestStore_RowTransaction(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var clientID uuid.UUID
	err := s.InRowTx(ctx, func(tx importer.RowTx) error {
		var err error
		clientID, err = tx.CreateClient(ctx, importer.NewClient{
			Email: "ops@acme.test", FullName: "Acme", Role: "client", PasswordHash: "x",
		})
		require.NoError(t, err)

		// A failing savepoint leaves the transaction usable.
		err = tx.Savepoint(ctx, func() error {
			return tx.InsertMedia(ctx, importer.Media{UnitID: uuid.New(), ItemID: uuid.New(), Kind: importer.MediaPallet, URL: "x"})
		})
		assert.Error(t, err)

		require.NoError(t, tx.Savepoint(ctx, func() error { return tx.GrantPermission(ctx, clientID, "warehouse") }))
		has, err := tx.HasPermission(ctx, clientID, "warehouse")
		require.NoError(t, err)
		assert.True(t, has)

		itemID, err := tx.InsertItem(ctx, importer.Item{ClientID: clientID, Label: "Sofa", SKU: "SKU-1",
			LengthCM: 1, WidthCM: 1, HeightCM: 1, VolumeM3: 1, WeightKG: 1, Stackable: true, TopLoadKG: 500})
		require.NoError(t, err)

		_, err = tx.InsertInventoryUnit(ctx, importer.InventoryUnit{ItemID: itemID, ClientID: clientID,
			PalletNo: "P-100", Site: "Leith", Quantity: 1, Status: "in_storage", InventoryDate: time.Now()})
		return err
	})
	require.NoError(t, err)

	found, err := s.ExistingPalletNumbers(ctx, []string{"P-100", "P-200"})
	require.NoError(t, err)
	assert.Equal(t, []string{"P-100"}, found)

	// Email lookup ignores case.
	err = s.InRowTx(ctx, func(tx importer.RowTx) error {
		id, ok, err := tx.FindClientByEmail(ctx, "client", "OPS@ACME.TEST")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, clientID, id)
		return nil
	})
	require.NoError(t, err)

	// A failed row leaves nothing behind.
	err = s.InRowTx(ctx, func(tx importer.RowTx) error {
		itemID, err := tx.InsertItem(ctx, importer.Item{ClientID: clientID, Label: "Desk", SKU: "SKU-2",
			LengthCM: 1, WidthCM: 1, HeightCM: 1, VolumeM3: 1, WeightKG: 1})
		require.NoError(t, err)
		_, err = tx.InsertInventoryUnit(ctx, importer.InventoryUnit{ItemID: itemID, ClientID: clientID,
			PalletNo: "P-100", Site: "Leith", Quantity: 1, Status: "in_storage", InventoryDate: time.Now()})
		return err
	})
	var dup *importer.DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, importer.FieldPalletNo, dup.Field)

	skus, err := s.ExistingSKUs(ctx, []string{"SKU-1", "SKU-2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"SKU-1"}, skus)
}
