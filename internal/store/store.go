// Package store defines the record-store boundary of the matching engine
// and its Postgres and in-memory implementations. The engine only ever
// talks to these interfaces; schema and migrations are owned elsewhere.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/tradescope/supplier-match/internal/match"
)

// ErrNotFound is returned when a record id does not exist in the store.
var ErrNotFound = errors.New("record not found")

// SupplierRecord is the full supplier shape held by the record store.
// Slice-valued fields are sets; order is not significant.
type SupplierRecord struct {
	ID                int64
	Name              string
	Country           string
	City              string
	Website           string
	Email             string
	Phone             string
	Description       string
	Certifications    []string
	Materials         []string
	HTSChapters       []string
	ProductCategories []string
	ReliabilityScore  float64
	QualityScore      float64
	OverallScore      float64
	CreatedAt         time.Time
	Specializations   []Specialization
}

// Specialization is a per-HTS-code child row. When a supplier is absorbed
// by a merge its specializations are re-parented, never value-merged.
type Specialization struct {
	SupplierID    int64
	HTSCode       string
	ShipmentShare float64
}

// Candidate converts the full record to its matching shape.
func (s *SupplierRecord) Candidate() match.CandidateRecord {
	return match.CandidateRecord{
		ID:        s.ID,
		Name:      s.Name,
		Country:   s.Country,
		City:      s.City,
		Website:   s.Website,
		CreatedAt: s.CreatedAt,
	}
}

// TransactionRecord is one shipment-manifest line.
type TransactionRecord struct {
	ShipperName     string
	ShipperCountry  string
	ProductCode     string
	Quantity        float64
	DeclaredValue   float64
	TransactionDate time.Time
}

// Shipper is a distinct (name, country) pair observed in transactions.
type Shipper struct {
	Name    string
	Country string
}

// RollupDelta is one increment applied to a linkage rollup row.
type RollupDelta struct {
	SupplierID      int64
	ProductPrefix   string
	Shipments       int64
	Quantity        float64
	Value           float64
	TransactionDate time.Time
}

// LinkageRollup is the aggregate row keyed by (supplier, product prefix).
// AvgUnitValue is derived on read and zero when TotalQuantity is zero.
type LinkageRollup struct {
	SupplierID          int64
	ProductPrefix       string
	ShipmentCount       int64
	TotalQuantity       float64
	TotalValue          float64
	AvgUnitValue        float64
	LastTransactionDate time.Time
}

// SupplierStore exposes the supplier side of the record store.
type SupplierStore interface {
	// ListByCountry returns candidate shapes for one country block,
	// creation-time ascending.
	ListByCountry(ctx context.Context, country string) ([]match.CandidateRecord, error)
	// ListAll returns the whole population, creation-time ascending.
	ListAll(ctx context.Context) ([]match.CandidateRecord, error)
	// Get fetches one full record including child collections.
	Get(ctx context.Context, id int64) (*SupplierRecord, error)
	// Count returns the supplier population size.
	Count(ctx context.Context) (int, error)
	// MergeInto applies the fused field values to the primary, re-parents
	// the duplicate's children to the primary and deletes the duplicate,
	// all in one transaction.
	MergeInto(ctx context.Context, fused *SupplierRecord, duplicateID int64) error
	// UpsertRollup increments a linkage rollup row, creating it if absent.
	// The last transaction date only ever moves forward.
	UpsertRollup(ctx context.Context, delta RollupDelta) error
	// RollupsForSupplier returns the supplier's rollup rows.
	RollupsForSupplier(ctx context.Context, supplierID int64) ([]LinkageRollup, error)
}

// TransactionStore exposes the shipment-manifest side of the record store.
type TransactionStore interface {
	// DistinctShippers enumerates (name, country) pairs in first-seen order.
	DistinctShippers(ctx context.Context) ([]Shipper, error)
	// ByShipper returns all transaction lines for one shipper.
	ByShipper(ctx context.Context, name, country string) ([]TransactionRecord, error)
}
