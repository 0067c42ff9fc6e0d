package importer

import (
	"context"
	"fmt"
	"strings"
)

// keyBatchSize bounds the number of values sent in one lookup query.
const keyBatchSize = 1000

// CollectUniqueValues returns the distinct non-empty trimmed values of
// column across rows, in first-seen order.
func CollectUniqueValues(rows []ParsedRow, column string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, row := range rows {
		v := strings.TrimSpace(row[column])
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// Prechecker flags unique values that already exist in storage. Its answer
// is advisory: the executor does not consult it, and storage constraints
// remain the final word.
type Prechecker struct {
	store   Store
	metrics *Metrics
}

// NewPrechecker creates a Prechecker. metrics may be nil.
func NewPrechecker(store Store, metrics *Metrics) *Prechecker {
	return &Prechecker{store: store, metrics: metrics}
}

// Check inspects the pallet number and SKU columns named in mapping. Rows
// should be the edited data when the operator changed cells in review.
func (p *Prechecker) Check(ctx context.Context, rows []ParsedRow, mapping []ColumnMapping) (ExistingKeys, error) {
	keys := ExistingKeys{Pallets: []string{}, SKUs: []string{}}

	for _, m := range mapping {
		var err error
		switch m.Target {
		case FieldPalletNo:
			keys.Pallets, err = p.CheckPallets(ctx, CollectUniqueValues(rows, m.Source))
		case FieldSKU:
			keys.SKUs, err = p.CheckSKUs(ctx, CollectUniqueValues(rows, m.Source))
		}
		if err != nil {
			return ExistingKeys{}, err
		}
	}

	return keys, nil
}

// CheckPallets returns which pallet numbers already exist.
func (p *Prechecker) CheckPallets(ctx context.Context, values []string) ([]string, error) {
	found, err := p.lookup(ctx, values, p.store.ExistingPalletNumbers)
	if err != nil {
		return nil, fmt.Errorf("check pallet numbers: %w", err)
	}
	p.metrics.observeConflicts(FieldPalletNo, len(found))
	return found, nil
}

// CheckSKUs returns which SKUs already exist.
func (p *Prechecker) CheckSKUs(ctx context.Context, values []string) ([]string, error) {
	found, err := p.lookup(ctx, values, p.store.ExistingSKUs)
	if err != nil {
		return nil, fmt.Errorf("check skus: %w", err)
	}
	p.metrics.observeConflicts(FieldSKU, len(found))
	return found, nil
}

func (p *Prechecker) lookup(ctx context.Context, values []string, query func(context.Context, []string) ([]string, error)) ([]string, error) {
	values = dedupeTrimmed(values)
	found := []string{}

	for start := 0; start < len(values); start += keyBatchSize {
		end := min(start+keyBatchSize, len(values))
		batch, err := query(ctx, values[start:end])
		if err != nil {
			return nil, err
		}
		found = append(found, batch...)
	}

	return found, nil
}

func dedupeTrimmed(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
