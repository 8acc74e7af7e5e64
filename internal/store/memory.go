package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tradescope/supplier-match/internal/match"
)

type rollupKey struct {
	supplierID int64
	prefix     string
}

// Memory is an in-memory SupplierStore and TransactionStore. It backs the
// engine tests and mirrors the Postgres implementation's semantics,
// including all-or-nothing merges.
type Memory struct {
	mu           sync.Mutex
	suppliers    map[int64]*SupplierRecord
	transactions []TransactionRecord
	rollups      map[rollupKey]*LinkageRollup
	writes       int

	getErr   map[int64]error
	mergeErr map[int64]error
	listErr  error
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		suppliers: make(map[int64]*SupplierRecord),
		rollups:   make(map[rollupKey]*LinkageRollup),
		getErr:    make(map[int64]error),
		mergeErr:  make(map[int64]error),
	}
}

// Add seeds one supplier record.
func (m *Memory) Add(rec SupplierRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suppliers[rec.ID] = cloneSupplier(&rec)
}

// AddTransaction seeds one shipment-manifest line.
func (m *Memory) AddTransaction(t TransactionRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions = append(m.transactions, t)
}

// FailGet makes Get return err for the given id.
func (m *Memory) FailGet(id int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr[id] = err
}

// FailMergeInto makes MergeInto fail for the given duplicate id without
// applying any writes, simulating a rolled-back transaction.
func (m *Memory) FailMergeInto(duplicateID int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mergeErr[duplicateID] = err
}

// FailList makes the listing operations return err.
func (m *Memory) FailList(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

// WriteCount reports how many mutating operations have been applied.
func (m *Memory) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Suppliers returns deep clones of every record, ordered by id.
func (m *Memory) Suppliers() []SupplierRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SupplierRecord, 0, len(m.suppliers))
	for _, rec := range m.suppliers {
		out = append(out, *cloneSupplier(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListByCountry returns candidate shapes for one country block.
func (m *Memory) ListByCountry(ctx context.Context, country string) ([]match.CandidateRecord, error) {
	return m.list(func(rec *SupplierRecord) bool { return rec.Country == country })
}

// ListAll returns the whole population, creation-time ascending.
func (m *Memory) ListAll(ctx context.Context) ([]match.CandidateRecord, error) {
	return m.list(func(*SupplierRecord) bool { return true })
}

func (m *Memory) list(keep func(*SupplierRecord) bool) ([]match.CandidateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []match.CandidateRecord
	for _, rec := range m.suppliers {
		if keep(rec) {
			out = append(out, rec.Candidate())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Get fetches one full record.
func (m *Memory) Get(ctx context.Context, id int64) (*SupplierRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.getErr[id]; err != nil {
		return nil, err
	}
	rec, ok := m.suppliers[id]
	if !ok {
		return nil, fmt.Errorf("supplier %d: %w", id, ErrNotFound)
	}
	return cloneSupplier(rec), nil
}

// Count returns the supplier population size.
func (m *Memory) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.suppliers), nil
}

// MergeInto mirrors the Postgres merge transaction in memory.
func (m *Memory) MergeInto(ctx context.Context, fused *SupplierRecord, duplicateID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.mergeErr[duplicateID]; err != nil {
		return err
	}
	primary, ok := m.suppliers[fused.ID]
	if !ok {
		return fmt.Errorf("primary %d: %w", fused.ID, ErrNotFound)
	}
	dup, ok := m.suppliers[duplicateID]
	if !ok {
		return fmt.Errorf("duplicate %d: %w", duplicateID, ErrNotFound)
	}

	updated := cloneSupplier(fused)
	updated.CreatedAt = primary.CreatedAt

	// Re-parent the duplicate's specializations, dropping HTS codes the
	// primary already covers.
	covered := make(map[string]bool, len(updated.Specializations))
	updated.Specializations = nil
	for _, sp := range primary.Specializations {
		covered[sp.HTSCode] = true
		updated.Specializations = append(updated.Specializations, sp)
	}
	for _, sp := range dup.Specializations {
		if covered[sp.HTSCode] {
			continue
		}
		sp.SupplierID = updated.ID
		updated.Specializations = append(updated.Specializations, sp)
		covered[sp.HTSCode] = true
	}

	// Fold the duplicate's rollups into the primary's.
	for key, r := range m.rollups {
		if key.supplierID != duplicateID {
			continue
		}
		target := rollupKey{supplierID: updated.ID, prefix: key.prefix}
		dst, ok := m.rollups[target]
		if !ok {
			moved := *r
			moved.SupplierID = updated.ID
			m.rollups[target] = &moved
		} else {
			dst.ShipmentCount += r.ShipmentCount
			dst.TotalQuantity += r.TotalQuantity
			dst.TotalValue += r.TotalValue
			if r.LastTransactionDate.After(dst.LastTransactionDate) {
				dst.LastTransactionDate = r.LastTransactionDate
			}
		}
		delete(m.rollups, key)
	}

	m.suppliers[updated.ID] = updated
	delete(m.suppliers, duplicateID)
	m.writes++
	return nil
}

// UpsertRollup increments a rollup row with create-if-absent semantics.
func (m *Memory) UpsertRollup(ctx context.Context, delta RollupDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := rollupKey{supplierID: delta.SupplierID, prefix: delta.ProductPrefix}
	r, ok := m.rollups[key]
	if !ok {
		r = &LinkageRollup{SupplierID: delta.SupplierID, ProductPrefix: delta.ProductPrefix}
		m.rollups[key] = r
	}
	r.ShipmentCount += delta.Shipments
	r.TotalQuantity += delta.Quantity
	r.TotalValue += delta.Value
	if delta.TransactionDate.After(r.LastTransactionDate) {
		r.LastTransactionDate = delta.TransactionDate
	}
	m.writes++
	return nil
}

// RollupsForSupplier returns the supplier's rollup rows with the derived
// average unit value.
func (m *Memory) RollupsForSupplier(ctx context.Context, supplierID int64) ([]LinkageRollup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []LinkageRollup
	for key, r := range m.rollups {
		if key.supplierID != supplierID {
			continue
		}
		row := *r
		if row.TotalQuantity > 0 {
			row.AvgUnitValue = row.TotalValue / row.TotalQuantity
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductPrefix < out[j].ProductPrefix })
	return out, nil
}

// DistinctShippers enumerates (name, country) pairs in first-seen order.
func (m *Memory) DistinctShippers(ctx context.Context) ([]Shipper, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[Shipper]bool)
	var out []Shipper
	for _, t := range m.transactions {
		s := Shipper{Name: t.ShipperName, Country: t.ShipperCountry}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out, nil
}

// ByShipper returns all transaction lines for one shipper in seed order.
func (m *Memory) ByShipper(ctx context.Context, name, country string) ([]TransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []TransactionRecord
	for _, t := range m.transactions {
		if t.ShipperName == name && t.ShipperCountry == country {
			out = append(out, t)
		}
	}
	return out, nil
}

func cloneSupplier(rec *SupplierRecord) *SupplierRecord {
	out := *rec
	out.Certifications = append([]string(nil), rec.Certifications...)
	out.Materials = append([]string(nil), rec.Materials...)
	out.HTSChapters = append([]string(nil), rec.HTSChapters...)
	out.ProductCategories = append([]string(nil), rec.ProductCategories...)
	out.Specializations = append([]Specialization(nil), rec.Specializations...)
	return &out
}
