package importer

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type fakeClient struct {
	NewClient
	ID uuid.UUID
}

type fakeGrant struct {
	UserID  uuid.UUID
	AppID   string
	Deleted bool
}

type fakeUnit struct {
	InventoryUnit
	ID uuid.UUID
}

// fakeState is everything a transaction can change.
type fakeState struct {
	clients map[uuid.UUID]fakeClient
	grants  []fakeGrant
	items   map[uuid.UUID]Item
	units   map[uuid.UUID]fakeUnit
	media   []Media
}

func (s fakeState) clone() fakeState {
	return fakeState{
		clients: maps.Clone(s.clients),
		grants:  slices.Clone(s.grants),
		items:   maps.Clone(s.items),
		units:   maps.Clone(s.units),
		media:   slices.Clone(s.media),
	}
}

// fakeStore is an in-memory Store with real rollback semantics for rows
// and savepoints, and hooks for injecting failures.
type fakeStore struct {
	mu    sync.Mutex
	state fakeState

	createCalls int
	lookups     [][]string

	failItem   func(Item) error
	failUnit   func(InventoryUnit) error
	failMedia  func(Media) error
	failGrant  error
	failLookup error
}

func newFakeStore() *fakeStore {
	return &fakeStore{state: fakeState{
		clients: map[uuid.UUID]fakeClient{},
		items:   map[uuid.UUID]Item{},
		units:   map[uuid.UUID]fakeUnit{},
	}}
}

func (s *fakeStore) seedClient(email, role string) uuid.UUID {
	id := uuid.New()
	s.state.clients[id] = fakeClient{ID: id, NewClient: NewClient{Email: email, Role: role, FullName: email}}
	return id
}

func (s *fakeStore) seedPallet(pallet string) {
	id := uuid.New()
	s.state.units[id] = fakeUnit{ID: id, InventoryUnit: InventoryUnit{PalletNo: pallet}}
}

func (s *fakeStore) seedSKU(sku string) {
	s.state.items[uuid.New()] = Item{SKU: sku}
}

func (s *fakeStore) ExistingPalletNumbers(_ context.Context, values []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLookup != nil {
		return nil, s.failLookup
	}
	s.lookups = append(s.lookups, values)

	var found []string
	for _, v := range values {
		for _, u := range s.state.units {
			if u.PalletNo == v {
				found = append(found, v)
				break
			}
		}
	}
	return found, nil
}

func (s *fakeStore) ExistingSKUs(_ context.Context, values []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLookup != nil {
		return nil, s.failLookup
	}
	s.lookups = append(s.lookups, values)

	var found []string
	for _, v := range values {
		for _, it := range s.state.items {
			if it.SKU == v {
				found = append(found, v)
				break
			}
		}
	}
	return found, nil
}

func (s *fakeStore) InRowTx(ctx context.Context, fn func(tx RowTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.state.clone()
	if err := fn(&fakeTx{s: s}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

// Counts for assertions.

func (s *fakeStore) clientCount() int { return len(s.state.clients) }
func (s *fakeStore) itemCount() int   { return len(s.state.items) }
func (s *fakeStore) unitCount() int   { return len(s.state.units) }

func (s *fakeStore) grantsFor(id uuid.UUID) int {
	n := 0
	for _, g := range s.state.grants {
		if g.UserID == id && !g.Deleted {
			n++
		}
	}
	return n
}

func (s *fakeStore) clientByEmail(email string) (fakeClient, bool) {
	for _, c := range s.state.clients {
		if strings.EqualFold(c.Email, email) {
			return c, true
		}
	}
	return fakeClient{}, false
}

func (s *fakeStore) units() []fakeUnit {
	return slices.Collect(maps.Values(s.state.units))
}

// fakeTx runs with the store lock held.
type fakeTx struct {
	s *fakeStore
}

func (t *fakeTx) FindClientByEmail(_ context.Context, role, email string) (uuid.UUID, bool, error) {
	for _, c := range t.s.state.clients {
		if c.Role == role && strings.EqualFold(c.Email, email) {
			return c.ID, true, nil
		}
	}
	return uuid.Nil, false, nil
}

func (t *fakeTx) CreateClient(_ context.Context, c NewClient) (uuid.UUID, error) {
	t.s.createCalls++
	if _, exists := t.s.clientByEmail(c.Email); exists {
		return uuid.Nil, &DuplicateKeyError{Field: FieldClientEmail, Value: c.Email}
	}
	id := uuid.New()
	t.s.state.clients[id] = fakeClient{ID: id, NewClient: c}
	return id, nil
}

func (t *fakeTx) HasPermission(_ context.Context, userID uuid.UUID, appID string) (bool, error) {
	for _, g := range t.s.state.grants {
		if g.UserID == userID && g.AppID == appID && !g.Deleted {
			return true, nil
		}
	}
	return false, nil
}

func (t *fakeTx) GrantPermission(_ context.Context, userID uuid.UUID, appID string) error {
	if t.s.failGrant != nil {
		return t.s.failGrant
	}
	t.s.state.grants = append(t.s.state.grants, fakeGrant{UserID: userID, AppID: appID})
	return nil
}

func (t *fakeTx) InsertItem(_ context.Context, item Item) (uuid.UUID, error) {
	if t.s.failItem != nil {
		if err := t.s.failItem(item); err != nil {
			return uuid.Nil, err
		}
	}
	if item.SKU != "" {
		for _, it := range t.s.state.items {
			if it.SKU == item.SKU {
				return uuid.Nil, &DuplicateKeyError{Field: FieldSKU, Value: item.SKU, Constraint: "items_sku_key"}
			}
		}
	}
	if _, ok := t.s.state.clients[item.ClientID]; !ok {
		return uuid.Nil, errors.New("violates foreign key constraint items_client_id_fkey")
	}
	id := uuid.New()
	t.s.state.items[id] = item
	return id, nil
}

func (t *fakeTx) InsertInventoryUnit(_ context.Context, unit InventoryUnit) (uuid.UUID, error) {
	if t.s.failUnit != nil {
		if err := t.s.failUnit(unit); err != nil {
			return uuid.Nil, err
		}
	}
	if unit.PalletNo != "" {
		for _, u := range t.s.state.units {
			if u.PalletNo == unit.PalletNo {
				return uuid.Nil, &DuplicateKeyError{Field: FieldPalletNo, Value: unit.PalletNo, Constraint: "inventory_units_pallet_no_key"}
			}
		}
	}
	id := uuid.New()
	t.s.state.units[id] = fakeUnit{ID: id, InventoryUnit: unit}
	return id, nil
}

func (t *fakeTx) InsertMedia(_ context.Context, m Media) error {
	if t.s.failMedia != nil {
		if err := t.s.failMedia(m); err != nil {
			return err
		}
	}
	t.s.state.media = append(t.s.state.media, m)
	return nil
}

func (t *fakeTx) Savepoint(_ context.Context, fn func() error) error {
	snapshot := t.s.state.clone()
	if err := fn(); err != nil {
		t.s.state = snapshot
		return err
	}
	return nil
}

// fakeHasher issues predictable credentials.
type fakeHasher struct {
	n int
}

func (h *fakeHasher) Generate() (string, error) {
	h.n++
	return fmt.Sprintf("pw-%d", h.n), nil
}

func (h *fakeHasher) Hash(password string) (string, error) {
	return "hashed:" + password, nil
}

// geocoderFunc adapts a function to Geocoder.
type geocoderFunc func(ctx context.Context, address string) (Coordinates, error)

func (f geocoderFunc) Geocode(ctx context.Context, address string) (Coordinates, error) {
	return f(ctx, address)
}
