package importer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func newTestExecutor(store *fakeStore, geo Geocoder) *Executor {
	return NewExecutor(store, geo, &fakeHasher{}, ExecutorOptions{
		AppID:      "warehouse",
		ClientRole: "client",
		Now:        func() time.Time { return fixedNow },
	})
}

// validRow returns a row that passes validation; overrides replace fields.
func validRow(overrides map[string]any) MappedRow {
	row := MappedRow{
		FieldLabel:       "Oak wardrobe",
		FieldLengthCM:    "120",
		FieldWidthCM:     60.0,
		FieldHeightCM:    "200",
		FieldVolumeM3:    "1.44",
		FieldWeightKG:    "85",
		FieldSite:        "Unit 4, Harbour Road, Leith",
		FieldClientName:  "Acme Storage",
		FieldClientEmail: "ops@acme.test",
	}
	for k, v := range overrides {
		row[k] = v
	}
	return row
}

func assertCounting(t *testing.T, res Result, total int) {
	t.Helper()
	assert.Equal(t, total, res.Success+res.Failed, "success + failed must equal total rows")
	assert.Len(t, res.Errors, res.Failed, "one error per failed row")
}

func TestExecutor_WeightZeroFailsOnlyThatRow(t *testing.T) {
	store := newFakeStore()
	exec := newTestExecutor(store, nil)

	res := exec.Run(context.Background(), []MappedRow{
		validRow(nil),
		validRow(map[string]any{FieldWeightKG: "0"}),
		validRow(nil),
	})

	assert.Equal(t, 2, res.Success)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 2, res.Errors[0].Row)
	assert.Contains(t, res.Errors[0].Error, "weight")
	assert.Equal(t, 2, store.itemCount())
	assertCounting(t, res, 3)
}

func TestExecutor_EmailCaseResolvesOneClient(t *testing.T) {
	store := newFakeStore()
	exec := newTestExecutor(store, nil)

	res := exec.Run(context.Background(), []MappedRow{
		validRow(map[string]any{FieldClientEmail: "A@B.com"}),
		validRow(map[string]any{FieldClientEmail: "a@b.com"}),
	})

	assert.Equal(t, 2, res.Success)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, store.createCalls, "client created once")
	assert.Equal(t, 1, store.clientCount())

	client, ok := store.clientByEmail("a@b.com")
	require.True(t, ok)
	assert.Equal(t, "Acme Storage", client.FullName)
	assert.Equal(t, "Acme Storage", client.CompanyName)
	assert.Equal(t, "hashed:pw-1", client.PasswordHash)
	assert.Equal(t, "client", client.Role)
	assert.Equal(t, 1, store.grantsFor(client.ID))
}

func TestExecutor_PrecheckedPalletFailsAtWriteTime(t *testing.T) {
	store := newFakeStore()
	store.seedPallet("P-100")
	pre := NewPrechecker(store, nil)

	existing, err := pre.CheckPallets(context.Background(), []string{"P-100", "P-200"})
	require.NoError(t, err)
	assert.Equal(t, []string{"P-100"}, existing)

	// The advisory result does not stop execution.
	exec := newTestExecutor(store, nil)
	res := exec.Run(context.Background(), []MappedRow{
		validRow(map[string]any{FieldPalletNo: "P-100"}),
		validRow(map[string]any{FieldPalletNo: "P-200"}),
	})

	assert.Equal(t, 1, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 1, res.Errors[0].Row)
	assert.Contains(t, res.Errors[0].Error, "create inventory unit")
	assert.Contains(t, res.Errors[0].Error, "pallet number \"P-100\"")
	assert.Contains(t, res.Errors[0].Error, "unique constraint")

	// The failed row left nothing behind; the second row created the client.
	assert.Equal(t, 1, store.itemCount())
	assert.Equal(t, 1, store.clientCount())
}

func TestExecutor_MissingRequiredFieldsNamed(t *testing.T) {
	tests := []struct {
		name     string
		override map[string]any
		want     []string
	}{
		{"empty label", map[string]any{FieldLabel: ""}, []string{"label"}},
		{"nil site", map[string]any{FieldSite: nil}, []string{"site"}},
		{"unreadable length", map[string]any{FieldLengthCM: "long"}, []string{"length_cm"}},
		{"several", map[string]any{FieldLabel: "  ", FieldVolumeM3: 0.0, FieldHeightCM: ""}, []string{"label", "height_cm", "volume_m3"}},
		{"short client name", map[string]any{FieldClientName: "A"}, []string{"client_name must be at least 2 characters"}},
		{"missing email", map[string]any{FieldClientEmail: ""}, []string{"client_email"}},
		{"bad quantity", map[string]any{FieldQuantity: "two"}, []string{"quantity"}},
		{"latitude out of range", map[string]any{FieldLatitude: "95", FieldLongitude: "3"}, []string{"latitude is out of range"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			res := newTestExecutor(store, nil).Run(context.Background(), []MappedRow{validRow(tt.override)})

			require.Len(t, res.Errors, 1)
			for _, w := range tt.want {
				assert.Contains(t, res.Errors[0].Error, w)
			}
			assert.Zero(t, store.itemCount())
			assert.Zero(t, store.unitCount())
			assert.Zero(t, store.clientCount())
		})
	}
}

func TestExecutor_GrantIsIdempotent(t *testing.T) {
	store := newFakeStore()
	clientID := store.seedClient("ops@acme.test", "client")
	store.state.grants = append(store.state.grants, fakeGrant{UserID: clientID, AppID: "warehouse"})

	res := newTestExecutor(store, nil).Run(context.Background(), []MappedRow{validRow(nil), validRow(nil)})

	assert.Equal(t, 2, res.Success)
	assert.Equal(t, 1, store.grantsFor(clientID))
	assert.Zero(t, store.createCalls)
}

func TestExecutor_DeletedGrantIsReplaced(t *testing.T) {
	store := newFakeStore()
	clientID := store.seedClient("ops@acme.test", "client")
	store.state.grants = append(store.state.grants, fakeGrant{UserID: clientID, AppID: "warehouse", Deleted: true})

	res := newTestExecutor(store, nil).Run(context.Background(), []MappedRow{validRow(nil)})

	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 1, store.grantsFor(clientID))
}

func TestExecutor_ClientWithOtherRoleIsNotReused(t *testing.T) {
	store := newFakeStore()
	store.seedClient("ops@acme.test", "admin")

	res := newTestExecutor(store, nil).Run(context.Background(), []MappedRow{validRow(nil)})

	// The email is taken by a non-client user, so creation hits the unique key.
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Error, "resolve client")
	assert.Contains(t, res.Errors[0].Error, "client email")
}

func TestExecutor_BestEffortFailuresDoNotFailRow(t *testing.T) {
	store := newFakeStore()
	store.failGrant = errors.New("permissions table locked")
	store.failMedia = func(m Media) error {
		if m.Kind == MediaLabel {
			return errors.New("media bucket offline")
		}
		return nil
	}
	geo := geocoderFunc(func(context.Context, string) (Coordinates, error) {
		return Coordinates{}, errors.New("OVER_QUERY_LIMIT")
	})

	res := newTestExecutor(store, geo).Run(context.Background(), []MappedRow{validRow(map[string]any{
		FieldPhotoPallet:  "https://cdn.test/p.jpg",
		FieldPhotoLabel:   "https://cdn.test/l.jpg",
		FieldPhotoRacking: "https://cdn.test/r.jpg",
		FieldPhotoOnsite:  "",
	})})

	assert.Equal(t, 1, res.Success)
	assert.Empty(t, res.Errors)

	units := store.units()
	require.Len(t, units, 1)
	assert.Nil(t, units[0].Latitude)
	assert.Nil(t, units[0].Longitude)

	var kinds []MediaKind
	for _, m := range store.state.media {
		kinds = append(kinds, m.Kind)
		assert.Equal(t, units[0].ID, m.UnitID)
	}
	assert.Equal(t, []MediaKind{MediaPallet, MediaRacking}, kinds)
	assert.Empty(t, store.state.grants)
}

func TestExecutor_GeocodesOnlyWhenCoordinatesMissing(t *testing.T) {
	store := newFakeStore()
	var calls []string
	geo := geocoderFunc(func(_ context.Context, address string) (Coordinates, error) {
		calls = append(calls, address)
		return Coordinates{Lat: 55.97, Lng: -3.17}, nil
	})

	res := newTestExecutor(store, geo).Run(context.Background(), []MappedRow{
		validRow(map[string]any{FieldPalletNo: "A"}),
		validRow(map[string]any{FieldPalletNo: "B", FieldLatitude: "51.5", FieldLongitude: -0.12}),
	})
	require.Equal(t, 2, res.Success)

	assert.Equal(t, []string{"Unit 4, Harbour Road, Leith"}, calls)
	for _, u := range store.units() {
		require.NotNil(t, u.Latitude)
		switch u.PalletNo {
		case "A":
			assert.InDelta(t, 55.97, *u.Latitude, 1e-9)
		case "B":
			assert.InDelta(t, 51.5, *u.Latitude, 1e-9)
			assert.InDelta(t, -0.12, *u.Longitude, 1e-9)
		}
	}
}

func TestExecutor_Defaults(t *testing.T) {
	store := newFakeStore()

	res := newTestExecutor(store, nil).Run(context.Background(), []MappedRow{
		validRow(map[string]any{FieldFragile: "true", FieldThisSideUp: "yes", FieldPriority: "high"}),
	})
	require.Equal(t, 1, res.Success)

	var item Item
	for _, it := range store.state.items {
		item = it
	}
	assert.True(t, item.Fragile)
	assert.False(t, item.ThisSideUp, "only TRUE counts")
	assert.True(t, item.Stackable)
	assert.Equal(t, float64(DefaultTopLoadKG), item.TopLoadKG)
	assert.Equal(t, "high", item.Priority)
	assert.Equal(t, 60.0, item.WidthCM)

	unit := store.units()[0]
	assert.Equal(t, DefaultQuantity, unit.Quantity)
	assert.Equal(t, DefaultStatus, unit.Status)
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), unit.InventoryDate)
}

func TestExecutor_FreeTextStoredAsGiven(t *testing.T) {
	store := newFakeStore()
	var queried string
	geo := geocoderFunc(func(_ context.Context, address string) (Coordinates, error) {
		queried = address
		return Coordinates{}, errors.New("no results")
	})

	res := newTestExecutor(store, geo).Run(context.Background(), []MappedRow{
		validRow(map[string]any{
			FieldLabel:       `Monitor 27"`,
			FieldDescription: "'s-Hertogenbosch returns",
			FieldSite:        "Pier 4'",
			FieldNotes:       "=fragile top",
		}),
	})
	require.Equal(t, 1, res.Success, res.Errors)

	unit := store.units()[0]
	assert.Equal(t, "Pier 4'", unit.Site)
	assert.Equal(t, "=fragile top", unit.Notes)
	assert.Equal(t, "Pier 4'", queried)

	item := store.state.items[unit.ItemID]
	assert.Equal(t, `Monitor 27"`, item.Label)
	assert.Equal(t, "'s-Hertogenbosch returns", item.Description)
}

func TestExecutor_ExplicitOptionalValues(t *testing.T) {
	store := newFakeStore()

	res := newTestExecutor(store, nil).Run(context.Background(), []MappedRow{
		validRow(map[string]any{
			FieldStackable:     "FALSE",
			FieldTopLoadKG:     "250 kg",
			FieldQuantity:      3.0,
			FieldStatus:        "reserved",
			FieldInventoryDate: "2025-11-02",
			FieldSKU:           "SKU-9",
			FieldZone:          "B",
		}),
	})
	require.Equal(t, 1, res.Success, res.Errors)

	unit := store.units()[0]
	assert.Equal(t, 3, unit.Quantity)
	assert.Equal(t, "reserved", unit.Status)
	assert.Equal(t, "B", unit.Zone)
	assert.Equal(t, time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC), unit.InventoryDate)

	item := store.state.items[unit.ItemID]
	assert.False(t, item.Stackable)
	assert.Equal(t, 250.0, item.TopLoadKG)
	assert.Equal(t, "SKU-9", item.SKU)
}

func TestExecutor_FailedRowRollsBackNewClient(t *testing.T) {
	store := newFakeStore()
	calls := 0
	store.failUnit = func(InventoryUnit) error {
		calls++
		if calls == 1 {
			return errors.New("connection reset by peer")
		}
		return nil
	}

	res := newTestExecutor(store, nil).Run(context.Background(), []MappedRow{validRow(nil), validRow(nil)})

	assert.Equal(t, 1, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 1, res.Errors[0].Row)
	assert.Contains(t, res.Errors[0].Error, "create inventory unit")

	// The rolled-back client was not cached; row 2 created it again.
	assert.Equal(t, 2, store.createCalls)
	assert.Equal(t, 1, store.clientCount())
	assert.Equal(t, 1, store.itemCount())
}

func TestExecutor_CancelledContextAccountsForEveryRow(t *testing.T) {
	store := newFakeStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newTestExecutor(store, nil).Run(ctx, []MappedRow{validRow(nil), validRow(nil), validRow(nil)})

	assert.Zero(t, res.Success)
	assert.Equal(t, 3, res.Failed)
	for i, e := range res.Errors {
		assert.Equal(t, i+1, e.Row)
		assert.Equal(t, ErrCancelled.Error(), e.Error)
	}
	assertCounting(t, res, 3)
}

func TestExecutor_ErrorsKeepRowOrder(t *testing.T) {
	store := newFakeStore()
	rows := []MappedRow{
		validRow(map[string]any{FieldLabel: ""}),
		validRow(nil),
		validRow(map[string]any{FieldSite: ""}),
		validRow(map[string]any{FieldSKU: "DUP"}),
		validRow(map[string]any{FieldSKU: "DUP"}),
		validRow(map[string]any{FieldClientName: "Z"}),
	}

	res := newTestExecutor(store, nil).Run(context.Background(), rows)

	assertCounting(t, res, len(rows))
	var failedRows []int
	for _, e := range res.Errors {
		failedRows = append(failedRows, e.Row)
	}
	assert.Equal(t, []int{1, 3, 5, 6}, failedRows)
	assert.Contains(t, res.Errors[2].Error, "SKU \"DUP\" already exists")
}

func TestExecutor_EmptyInput(t *testing.T) {
	res := newTestExecutor(newFakeStore(), nil).Run(context.Background(), nil)
	assert.Zero(t, res.Total())
	assert.NotNil(t, res.Errors)
}

func TestExecutor_ValidateWritesNothing(t *testing.T) {
	store := newFakeStore()
	exec := newTestExecutor(store, nil)

	res := exec.Validate([]MappedRow{
		validRow(nil),
		validRow(map[string]any{FieldLabel: ""}),
		validRow(map[string]any{FieldWeightKG: "0"}),
	})

	assertCounting(t, res, 3)
	assert.Equal(t, 1, res.Success)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 2, res.Errors[0].Row)
	assert.Contains(t, res.Errors[0].Error, FieldLabel)
	assert.Equal(t, 3, res.Errors[1].Row)

	assert.Zero(t, store.createCalls)
	assert.Zero(t, store.unitCount())
}
