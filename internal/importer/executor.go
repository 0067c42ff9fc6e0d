package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/warehouse/internal/logging"
)

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	// AppID is the permission granted to every client touched by an import.
	AppID string

	// ClientRole is the role used to look up and create clients.
	ClientRole string

	// Now returns the current time; tests pin it.
	Now func() time.Time

	Metrics *Metrics
}

// Executor writes mapped rows to storage one at a time.
type Executor struct {
	store    Store
	geocoder Geocoder
	hasher   PasswordHasher
	opts     ExecutorOptions
}

// NewExecutor creates an Executor. A nil geocoder disables geocoding.
func NewExecutor(store Store, geocoder Geocoder, hasher PasswordHasher, opts ExecutorOptions) *Executor {
	if geocoder == nil {
		geocoder = NoopGeocoder{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ClientRole == "" {
		opts.ClientRole = "client"
	}
	return &Executor{store: store, geocoder: geocoder, hasher: hasher, opts: opts}
}

// Run imports rows in order and returns the aggregate result. Row failures
// are recorded and never stop the run. If ctx ends, the remaining rows are
// recorded as cancelled so every row is still accounted for.
//
// Each row is written in its own transaction: a row either lands completely
// (client, item, inventory unit) or not at all. Permission grants and photo
// links are best effort inside savepoints and only logged when they fail.
func (e *Executor) Run(ctx context.Context, rows []MappedRow) Result {
	log := logging.FromContext(ctx)
	result := Result{Errors: []RowError{}}

	// Email to client ID, for clients whose row committed in this run.
	clients := make(map[string]uuid.UUID)

	for i, row := range rows {
		rowNum := i + 1

		if ctx.Err() != nil {
			result.fail(rowNum, ErrCancelled)
			e.opts.Metrics.observeRow(false)
			continue
		}

		err := e.importRow(ctx, log.With("row", rowNum), row, clients)
		if err != nil {
			// A row interrupted by cancellation was rolled back.
			var invalid *RowValidationError
			if ctx.Err() != nil && !errors.As(err, &invalid) {
				err = ErrCancelled
			}
			log.Debug("row failed", "row", rowNum, "error", err)
			result.fail(rowNum, err)
			e.opts.Metrics.observeRow(false)
			continue
		}
		result.succeed()
		e.opts.Metrics.observeRow(true)
	}

	log.Info("import finished", "rows", len(rows), "success", result.Success, "failed", result.Failed)
	return result
}

// Validate checks rows the way Run does before writing, without touching
// storage. Rows that pass are counted as successes.
func (e *Executor) Validate(rows []MappedRow) Result {
	result := Result{Errors: []RowError{}}
	now := e.opts.Now()
	for i, row := range rows {
		if _, err := prepareRow(row, now); err != nil {
			result.fail(i+1, err)
			continue
		}
		result.succeed()
	}
	return result
}

func (e *Executor) importRow(ctx context.Context, log *slog.Logger, row MappedRow, clients map[string]uuid.UUID) error {
	rec, err := prepareRow(row, e.opts.Now())
	if err != nil {
		return err
	}

	if rec.Latitude == nil || rec.Longitude == nil {
		e.geocode(ctx, log, rec)
	}

	var created uuid.UUID
	err = e.store.InRowTx(ctx, func(tx RowTx) error {
		clientID, isNew, err := e.resolveClient(ctx, tx, rec, clients)
		if err != nil {
			return &DependencyError{Step: "resolve client", Err: err}
		}
		if isNew {
			created = clientID
		}

		e.grantAccess(ctx, log, tx, clientID)

		itemID, err := tx.InsertItem(ctx, Item{
			ClientID:    clientID,
			Label:       rec.Label,
			SKU:         rec.SKU,
			Description: rec.Description,
			LengthCM:    rec.LengthCM,
			WidthCM:     rec.WidthCM,
			HeightCM:    rec.HeightCM,
			VolumeM3:    rec.VolumeM3,
			WeightKG:    rec.WeightKG,
			Fragile:     rec.Fragile,
			ThisSideUp:  rec.ThisSideUp,
			Stackable:   rec.Stackable,
			TopLoadKG:   rec.TopLoadKG,
			Priority:    rec.Priority,
		})
		if err != nil {
			return &DependencyError{Step: "create item", Err: err}
		}

		unitID, err := tx.InsertInventoryUnit(ctx, InventoryUnit{
			ItemID:        itemID,
			ClientID:      clientID,
			PalletNo:      rec.PalletNo,
			Site:          rec.Site,
			Location:      rec.Location,
			Zone:          rec.Zone,
			Rack:          rec.Rack,
			Shelf:         rec.Shelf,
			Quantity:      rec.Quantity,
			Status:        rec.Status,
			InventoryDate: rec.InventoryDate,
			Latitude:      rec.Latitude,
			Longitude:     rec.Longitude,
			Notes:         rec.Notes,
		})
		if err != nil {
			return &DependencyError{Step: "create inventory unit", Err: err}
		}

		e.attachPhotos(ctx, log, tx, rec.Photos, unitID, itemID)
		return nil
	})
	if err != nil {
		var dep *DependencyError
		if errors.As(err, &dep) {
			return err
		}
		return &DependencyError{Step: "write row", Err: err}
	}

	// Only cache clients whose creating row committed.
	if created != uuid.Nil {
		clients[rec.ClientEmail] = created
	}
	return nil
}

// resolveClient finds the client for the row's email, creating one if
// needed. isNew reports whether this call created it.
func (e *Executor) resolveClient(ctx context.Context, tx RowTx, rec *rowRecord, clients map[string]uuid.UUID) (id uuid.UUID, isNew bool, err error) {
	email := strings.ToLower(rec.ClientEmail)

	if id, ok := clients[email]; ok {
		return id, false, nil
	}

	id, found, err := tx.FindClientByEmail(ctx, e.opts.ClientRole, email)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("look up %s: %w", email, err)
	}
	if found {
		clients[email] = id
		return id, false, nil
	}

	password, err := e.hasher.Generate()
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("generate password: %w", err)
	}
	hash, err := e.hasher.Hash(password)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("hash password: %w", err)
	}

	id, err = tx.CreateClient(ctx, NewClient{
		Email:        email,
		FullName:     rec.ClientName,
		CompanyName:  rec.ClientName,
		Role:         e.opts.ClientRole,
		PasswordHash: hash,
	})
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("create %s: %w", email, err)
	}
	return id, true, nil
}

// grantAccess gives the client the default app unless a live grant exists.
func (e *Executor) grantAccess(ctx context.Context, log *slog.Logger, tx RowTx, clientID uuid.UUID) {
	if e.opts.AppID == "" {
		return
	}
	err := tx.Savepoint(ctx, func() error {
		has, err := tx.HasPermission(ctx, clientID, e.opts.AppID)
		if err != nil || has {
			return err
		}
		return tx.GrantPermission(ctx, clientID, e.opts.AppID)
	})
	if err != nil {
		log.Warn("permission grant failed", "client_id", clientID, "app_id", e.opts.AppID, "error", err)
		e.opts.Metrics.observeBestEffort("grant")
	}
}

func (e *Executor) attachPhotos(ctx context.Context, log *slog.Logger, tx RowTx, photos []photo, unitID, itemID uuid.UUID) {
	for _, p := range photos {
		err := tx.Savepoint(ctx, func() error {
			return tx.InsertMedia(ctx, Media{UnitID: unitID, ItemID: itemID, Kind: p.kind, URL: p.url})
		})
		if err != nil {
			log.Warn("photo attachment failed", "kind", p.kind, "url", p.url, "error", err)
			e.opts.Metrics.observeBestEffort("media")
		}
	}
}

// geocode fills missing coordinates from the site address. Failures leave
// the coordinates empty.
func (e *Executor) geocode(ctx context.Context, log *slog.Logger, rec *rowRecord) {
	coords, err := e.geocoder.Geocode(ctx, rec.Site)
	if err != nil {
		if !errors.Is(err, ErrGeocodingDisabled) {
			log.Warn("geocoding failed", "site", rec.Site, "error", err)
			e.opts.Metrics.observeBestEffort("geocode")
		}
		rec.Latitude, rec.Longitude = nil, nil
		return
	}
	rec.Latitude, rec.Longitude = &coords.Lat, &coords.Lng
}
