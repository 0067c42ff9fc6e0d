package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/warehouse/internal/importer"
)

// rowTx is the write side of one row's transaction.
type rowTx struct {
	tx         pgx.Tx
	savepoints int
}

var _ importer.RowTx = (*rowTx)(nil)

func (t *rowTx) FindClientByEmail(ctx context.Context, role, email string) (uuid.UUID, bool, error) {
	var id pgtype.UUID
	err := t.tx.QueryRow(ctx, `
		SELECT u.id
		FROM users u
		JOIN roles r ON r.id = u.role_id
		WHERE r.name = $1 AND lower(u.email) = lower($2)
		LIMIT 1`, role, email).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, translateError(err)
	}
	return fromPgUUID(id), true, nil
}

func (t *rowTx) CreateClient(ctx context.Context, c importer.NewClient) (uuid.UUID, error) {
	var id pgtype.UUID
	err := t.tx.QueryRow(ctx, `
		INSERT INTO users (email, full_name, company_name, role_id, password_hash)
		SELECT $1, $2, $3, r.id, $4
		FROM roles r
		WHERE r.name = $5
		RETURNING id`,
		c.Email, c.FullName, toPgText(c.CompanyName), c.PasswordHash, c.Role,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("role %q does not exist", c.Role)
	}
	if err != nil {
		return uuid.Nil, translateError(err)
	}
	return fromPgUUID(id), nil
}

func (t *rowTx) HasPermission(ctx context.Context, userID uuid.UUID, appID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM app_permissions
			WHERE user_id = $1 AND app_id = $2 AND deleted_at IS NULL
		)`, toPgUUID(userID), appID).Scan(&exists)
	if err != nil {
		return false, translateError(err)
	}
	return exists, nil
}

func (t *rowTx) GrantPermission(ctx context.Context, userID uuid.UUID, appID string) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO app_permissions (user_id, app_id) VALUES ($1, $2)`,
		toPgUUID(userID), appID)
	return translateError(err)
}

func (t *rowTx) InsertItem(ctx context.Context, item importer.Item) (uuid.UUID, error) {
	var id pgtype.UUID
	err := t.tx.QueryRow(ctx, `
		INSERT INTO items (
			client_id, label, sku, description,
			length_cm, width_cm, height_cm, volume_m3, weight_kg,
			fragile, this_side_up, stackable, top_load_kg, priority
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`,
		toPgUUID(item.ClientID), item.Label, toPgText(item.SKU), toPgText(item.Description),
		item.LengthCM, item.WidthCM, item.HeightCM, item.VolumeM3, item.WeightKG,
		item.Fragile, item.ThisSideUp, item.Stackable, item.TopLoadKG, toPgText(item.Priority),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, translateError(err)
	}
	return fromPgUUID(id), nil
}

func (t *rowTx) InsertInventoryUnit(ctx context.Context, unit importer.InventoryUnit) (uuid.UUID, error) {
	var id pgtype.UUID
	err := t.tx.QueryRow(ctx, `
		INSERT INTO inventory_units (
			item_id, client_id, pallet_no, site, location, zone, rack, shelf,
			quantity, status, inventory_date, latitude, longitude, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`,
		toPgUUID(unit.ItemID), toPgUUID(unit.ClientID), toPgText(unit.PalletNo), unit.Site,
		toPgText(unit.Location), toPgText(unit.Zone), toPgText(unit.Rack), toPgText(unit.Shelf),
		toPgInt4(unit.Quantity), unit.Status, toPgDate(unit.InventoryDate),
		toPgFloat8(unit.Latitude), toPgFloat8(unit.Longitude), toPgText(unit.Notes),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, translateError(err)
	}
	return fromPgUUID(id), nil
}

func (t *rowTx) InsertMedia(ctx context.Context, m importer.Media) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO media (unit_id, item_id, kind, url) VALUES ($1, $2, $3, $4)`,
		toPgUUID(m.UnitID), toPgUUID(m.ItemID), string(m.Kind), m.URL)
	return translateError(err)
}

// Savepoint wraps fn in SAVEPOINT / RELEASE, rolling back to the savepoint
// when fn fails so the row transaction stays usable.
func (t *rowTx) Savepoint(ctx context.Context, fn func() error) error {
	t.savepoints++
	name := fmt.Sprintf("sp_%d", t.savepoints)

	if _, err := t.tx.Exec(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("create savepoint: %w", translateError(err))
	}

	if err := fn(); err != nil {
		if _, rbErr := t.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback savepoint: %w", rbErr))
		}
		return err
	}

	_, err := t.tx.Exec(ctx, "RELEASE SAVEPOINT "+name)
	return translateError(err)
}
