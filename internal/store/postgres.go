package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/tradescope/supplier-match/internal/match"
)

// Postgres implements SupplierStore and TransactionStore over database/sql.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open connection. The schema is assumed to exist;
// see sql/schema.sql for the reference DDL.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const candidateColumns = `supplier_id, name, country_code, COALESCE(city, ''), COALESCE(website, ''), created_at`

// ListByCountry returns candidate shapes for one country block.
func (p *Postgres) ListByCountry(ctx context.Context, country string) ([]match.CandidateRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+candidateColumns+`
		FROM supplier
		WHERE country_code = $1
		ORDER BY created_at, supplier_id
	`, country)
	if err != nil {
		return nil, fmt.Errorf("query suppliers by country: %w", err)
	}
	defer rows.Close()
	return scanCandidates(rows)
}

// ListAll returns the whole population, creation-time ascending.
func (p *Postgres) ListAll(ctx context.Context) ([]match.CandidateRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+candidateColumns+`
		FROM supplier
		ORDER BY created_at, supplier_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query all suppliers: %w", err)
	}
	defer rows.Close()
	return scanCandidates(rows)
}

func scanCandidates(rows *sql.Rows) ([]match.CandidateRecord, error) {
	var out []match.CandidateRecord
	for rows.Next() {
		var rec match.CandidateRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Country, &rec.City, &rec.Website, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan supplier row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get fetches one full supplier record including specializations.
func (p *Postgres) Get(ctx context.Context, id int64) (*SupplierRecord, error) {
	rec := &SupplierRecord{}
	err := p.db.QueryRowContext(ctx, `
		SELECT supplier_id, name, country_code,
		       COALESCE(city, ''), COALESCE(website, ''), COALESCE(email, ''),
		       COALESCE(phone, ''), COALESCE(description, ''),
		       certifications, materials, hts_chapters, product_categories,
		       reliability_score, quality_score, overall_score, created_at
		FROM supplier
		WHERE supplier_id = $1
	`, id).Scan(
		&rec.ID, &rec.Name, &rec.Country,
		&rec.City, &rec.Website, &rec.Email,
		&rec.Phone, &rec.Description,
		pq.Array(&rec.Certifications), pq.Array(&rec.Materials),
		pq.Array(&rec.HTSChapters), pq.Array(&rec.ProductCategories),
		&rec.ReliabilityScore, &rec.QualityScore, &rec.OverallScore, &rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("supplier %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch supplier %d: %w", id, err)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT supplier_id, hts_code, shipment_share
		FROM supplier_specialization
		WHERE supplier_id = $1
		ORDER BY hts_code
	`, id)
	if err != nil {
		return nil, fmt.Errorf("fetch specializations for supplier %d: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var sp Specialization
		if err := rows.Scan(&sp.SupplierID, &sp.HTSCode, &sp.ShipmentShare); err != nil {
			return nil, fmt.Errorf("scan specialization row: %w", err)
		}
		rec.Specializations = append(rec.Specializations, sp)
	}
	return rec, rows.Err()
}

// Count returns the supplier population size.
func (p *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM supplier`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count suppliers: %w", err)
	}
	return n, nil
}

// MergeInto applies the fused record to the primary, re-parents the
// duplicate's specializations and rollups, and deletes the duplicate.
// The whole sequence runs in one transaction so a failure leaves neither
// orphaned children nor a half-updated primary.
func (p *Postgres) MergeInto(ctx context.Context, fused *SupplierRecord, duplicateID int64) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE supplier SET
			city = NULLIF($2, ''),
			website = NULLIF($3, ''),
			email = NULLIF($4, ''),
			phone = NULLIF($5, ''),
			description = NULLIF($6, ''),
			certifications = $7,
			materials = $8,
			hts_chapters = $9,
			product_categories = $10,
			reliability_score = $11,
			quality_score = $12,
			overall_score = $13
		WHERE supplier_id = $1
	`, fused.ID,
		fused.City, fused.Website, fused.Email, fused.Phone, fused.Description,
		pq.Array(fused.Certifications), pq.Array(fused.Materials),
		pq.Array(fused.HTSChapters), pq.Array(fused.ProductCategories),
		fused.ReliabilityScore, fused.QualityScore, fused.OverallScore)
	if err != nil {
		return fmt.Errorf("update primary %d: %w", fused.ID, err)
	}

	// Re-parent specializations; rows whose HTS code the primary already
	// covers are dropped rather than duplicated.
	_, err = tx.ExecContext(ctx, `
		UPDATE supplier_specialization s SET supplier_id = $1
		WHERE s.supplier_id = $2
		  AND NOT EXISTS (
			SELECT 1 FROM supplier_specialization q
			WHERE q.supplier_id = $1 AND q.hts_code = s.hts_code
		  )
	`, fused.ID, duplicateID)
	if err != nil {
		return fmt.Errorf("re-parent specializations %d -> %d: %w", duplicateID, fused.ID, err)
	}
	if _, err = tx.ExecContext(ctx, `
		DELETE FROM supplier_specialization WHERE supplier_id = $1
	`, duplicateID); err != nil {
		return fmt.Errorf("drop leftover specializations for %d: %w", duplicateID, err)
	}

	// Fold the duplicate's trade rollups into the primary's.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO supplier_trade_rollup
			(supplier_id, product_prefix, shipment_count, total_quantity, total_value, last_transaction_date)
		SELECT $1, product_prefix, shipment_count, total_quantity, total_value, last_transaction_date
		FROM supplier_trade_rollup
		WHERE supplier_id = $2
		ON CONFLICT (supplier_id, product_prefix) DO UPDATE SET
			shipment_count = supplier_trade_rollup.shipment_count + EXCLUDED.shipment_count,
			total_quantity = supplier_trade_rollup.total_quantity + EXCLUDED.total_quantity,
			total_value = supplier_trade_rollup.total_value + EXCLUDED.total_value,
			last_transaction_date = GREATEST(supplier_trade_rollup.last_transaction_date, EXCLUDED.last_transaction_date)
	`, fused.ID, duplicateID)
	if err != nil {
		return fmt.Errorf("re-parent rollups %d -> %d: %w", duplicateID, fused.ID, err)
	}
	if _, err = tx.ExecContext(ctx, `
		DELETE FROM supplier_trade_rollup WHERE supplier_id = $1
	`, duplicateID); err != nil {
		return fmt.Errorf("drop leftover rollups for %d: %w", duplicateID, err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM supplier WHERE supplier_id = $1`, duplicateID)
	if err != nil {
		return fmt.Errorf("delete duplicate %d: %w", duplicateID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("duplicate %d: %w", duplicateID, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit merge of %d into %d: %w", duplicateID, fused.ID, err)
	}
	return nil
}

// UpsertRollup increments a linkage rollup row with create-if-absent
// semantics. The last transaction date is monotonic.
func (p *Postgres) UpsertRollup(ctx context.Context, delta RollupDelta) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO supplier_trade_rollup
			(supplier_id, product_prefix, shipment_count, total_quantity, total_value, last_transaction_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (supplier_id, product_prefix) DO UPDATE SET
			shipment_count = supplier_trade_rollup.shipment_count + EXCLUDED.shipment_count,
			total_quantity = supplier_trade_rollup.total_quantity + EXCLUDED.total_quantity,
			total_value = supplier_trade_rollup.total_value + EXCLUDED.total_value,
			last_transaction_date = GREATEST(supplier_trade_rollup.last_transaction_date, EXCLUDED.last_transaction_date)
	`, delta.SupplierID, delta.ProductPrefix, delta.Shipments, delta.Quantity, delta.Value, delta.TransactionDate)
	if err != nil {
		return fmt.Errorf("upsert rollup (%d, %s): %w", delta.SupplierID, delta.ProductPrefix, err)
	}
	return nil
}

// RollupsForSupplier returns the supplier's rollup rows with the derived
// average unit value.
func (p *Postgres) RollupsForSupplier(ctx context.Context, supplierID int64) ([]LinkageRollup, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT supplier_id, product_prefix, shipment_count, total_quantity, total_value, last_transaction_date
		FROM supplier_trade_rollup
		WHERE supplier_id = $1
		ORDER BY product_prefix
	`, supplierID)
	if err != nil {
		return nil, fmt.Errorf("query rollups for supplier %d: %w", supplierID, err)
	}
	defer rows.Close()

	var out []LinkageRollup
	for rows.Next() {
		var r LinkageRollup
		if err := rows.Scan(&r.SupplierID, &r.ProductPrefix, &r.ShipmentCount,
			&r.TotalQuantity, &r.TotalValue, &r.LastTransactionDate); err != nil {
			return nil, fmt.Errorf("scan rollup row: %w", err)
		}
		if r.TotalQuantity > 0 {
			r.AvgUnitValue = r.TotalValue / r.TotalQuantity
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DistinctShippers enumerates (name, country) pairs in first-seen order.
func (p *Postgres) DistinctShippers(ctx context.Context) ([]Shipper, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT shipper_name, shipper_country
		FROM shipment_transaction
		GROUP BY shipper_name, shipper_country
		ORDER BY MIN(transaction_id)
	`)
	if err != nil {
		return nil, fmt.Errorf("query distinct shippers: %w", err)
	}
	defer rows.Close()

	var out []Shipper
	for rows.Next() {
		var s Shipper
		if err := rows.Scan(&s.Name, &s.Country); err != nil {
			return nil, fmt.Errorf("scan shipper row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ByShipper returns all transaction lines for one shipper.
func (p *Postgres) ByShipper(ctx context.Context, name, country string) ([]TransactionRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT shipper_name, shipper_country, product_code, quantity, declared_value, transaction_date
		FROM shipment_transaction
		WHERE shipper_name = $1 AND shipper_country = $2
		ORDER BY transaction_date, transaction_id
	`, name, country)
	if err != nil {
		return nil, fmt.Errorf("query transactions for shipper %q: %w", name, err)
	}
	defer rows.Close()

	var out []TransactionRecord
	for rows.Next() {
		var t TransactionRecord
		if err := rows.Scan(&t.ShipperName, &t.ShipperCountry, &t.ProductCode,
			&t.Quantity, &t.DeclaredValue, &t.TransactionDate); err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
