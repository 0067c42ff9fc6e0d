package web

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/JonMunkholm/warehouse/internal/importer"
)

// memStore is a small in-memory importer.Store. A row's writes become
// visible only when its transaction function returns nil.
type memStore struct {
	mu      sync.Mutex
	clients map[string]uuid.UUID
	grants  map[uuid.UUID]bool
	pallets map[string]bool
	skus    map[string]bool
	units   int
	media   int

	pingErr error
}

func newMemStore() *memStore {
	return &memStore{
		clients: make(map[string]uuid.UUID),
		grants:  make(map[uuid.UUID]bool),
		pallets: make(map[string]bool),
		skus:    make(map[string]bool),
	}
}

func (s *memStore) Ping(context.Context) error { return s.pingErr }

func (s *memStore) ExistingPalletNumbers(_ context.Context, values []string) ([]string, error) {
	return s.existing(s.pallets, values), nil
}

func (s *memStore) ExistingSKUs(_ context.Context, values []string) ([]string, error) {
	return s.existing(s.skus, values), nil
}

func (s *memStore) existing(set map[string]bool, values []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, v := range values {
		if set[v] {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return out
}

func (s *memStore) InRowTx(ctx context.Context, fn func(tx importer.RowTx) error) error {
	tx := &memTx{store: s, clients: make(map[string]uuid.UUID)}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for email, id := range tx.clients {
		s.clients[email] = id
	}
	for _, id := range tx.grants {
		s.grants[id] = true
	}
	for _, p := range tx.pallets {
		s.pallets[p] = true
	}
	for _, sku := range tx.skus {
		s.skus[sku] = true
	}
	s.units += tx.units
	s.media += tx.media
	return nil
}

type memTx struct {
	store   *memStore
	clients map[string]uuid.UUID
	grants  []uuid.UUID
	pallets []string
	skus    []string
	units   int
	media   int
}

func (t *memTx) FindClientByEmail(_ context.Context, _ string, email string) (uuid.UUID, bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	id, ok := t.store.clients[strings.ToLower(email)]
	return id, ok, nil
}

func (t *memTx) CreateClient(_ context.Context, c importer.NewClient) (uuid.UUID, error) {
	if c.PasswordHash == "" {
		return uuid.Nil, errors.New("password hash required")
	}
	id := uuid.New()
	t.clients[strings.ToLower(c.Email)] = id
	return id, nil
}

func (t *memTx) HasPermission(_ context.Context, userID uuid.UUID, _ string) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.grants[userID], nil
}

func (t *memTx) GrantPermission(_ context.Context, userID uuid.UUID, _ string) error {
	t.grants = append(t.grants, userID)
	return nil
}

func (t *memTx) InsertItem(_ context.Context, item importer.Item) (uuid.UUID, error) {
	if item.SKU != "" {
		t.store.mu.Lock()
		taken := t.store.skus[item.SKU]
		t.store.mu.Unlock()
		if taken {
			return uuid.Nil, &importer.DuplicateKeyError{Field: importer.FieldSKU, Value: item.SKU, Constraint: "items_sku_key"}
		}
		t.skus = append(t.skus, item.SKU)
	}
	return uuid.New(), nil
}

func (t *memTx) InsertInventoryUnit(_ context.Context, unit importer.InventoryUnit) (uuid.UUID, error) {
	if unit.PalletNo != "" {
		t.store.mu.Lock()
		taken := t.store.pallets[unit.PalletNo]
		t.store.mu.Unlock()
		if taken {
			return uuid.Nil, &importer.DuplicateKeyError{Field: importer.FieldPalletNo, Value: unit.PalletNo, Constraint: "inventory_units_pallet_no_key"}
		}
		t.pallets = append(t.pallets, unit.PalletNo)
	}
	t.units++
	return uuid.New(), nil
}

func (t *memTx) InsertMedia(context.Context, importer.Media) error {
	t.media++
	return nil
}

func (t *memTx) Savepoint(_ context.Context, fn func() error) error {
	return fn()
}

type stubHasher struct{}

func (stubHasher) Generate() (string, error)      { return "generated", nil }
func (stubHasher) Hash(pw string) (string, error) { return "hash:" + pw, nil }
