// Package linkage links free-text shipment-manifest shipper names to
// canonical supplier entities and maintains per-(supplier, product-prefix)
// trade rollups.
package linkage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tradescope/supplier-match/internal/match"
	"github.com/tradescope/supplier-match/internal/normalize"
	"github.com/tradescope/supplier-match/internal/store"
)

// ProductPrefixDigits is the number of significant product-code digits a
// rollup is keyed by (HTS subheading granularity).
const ProductPrefixDigits = 6

// Summary is the result of one linkage run.
type Summary struct {
	Linked   int
	Unlinked int
	Elapsed  time.Duration
}

// Aggregator links manifest shippers to suppliers and writes rollups.
type Aggregator struct {
	suppliers    store.SupplierStore
	transactions store.TransactionStore
	log          *zap.Logger
}

// NewAggregator creates an aggregator over the two store sides.
func NewAggregator(suppliers store.SupplierStore, transactions store.TransactionStore, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{
		suppliers:    suppliers,
		transactions: transactions,
		log:          log,
	}
}

// RunShipmentLinkage resolves every distinct (shipper, country) pair to at
// most one supplier and rolls that shipper's transactions up by product
// prefix. Unmatched shippers are counted but produce no placeholder
// entity. Per-shipper failures are logged and counted as unlinked; only a
// failure to enumerate shippers at all is fatal.
func (a *Aggregator) RunShipmentLinkage(ctx context.Context, minScore int) (*Summary, error) {
	started := time.Now()

	shippers, err := a.transactions.DistinctShippers(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerating shippers: %w", err)
	}

	summary := &Summary{}
	for _, shipper := range shippers {
		if err := ctx.Err(); err != nil {
			summary.Elapsed = time.Since(started)
			return summary, err
		}

		linked, err := a.linkShipper(ctx, shipper, minScore)
		if err != nil {
			summary.Unlinked++
			a.log.Warn("shipper linkage failed",
				zap.String("shipper", shipper.Name),
				zap.String("country", shipper.Country),
				zap.Error(err))
			continue
		}
		if linked {
			summary.Linked++
		} else {
			summary.Unlinked++
		}
	}

	summary.Elapsed = time.Since(started)
	a.log.Info("shipment linkage complete",
		zap.Int("shippers", len(shippers)),
		zap.Int("linked", summary.Linked),
		zap.Int("unlinked", summary.Unlinked),
		zap.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

// linkShipper picks the single best-scoring supplier in the shipper's
// country block. A shipper name consisting only of legal-suffix tokens
// normalizes to nothing and is unlinkable; suppliers in the same state
// are skipped, so two content-free names can never pair up at 100.
// Scanning keeps the first-seen candidate on an exact tie; scores are
// effectively continuous, so exact ties are rare and this is the
// accepted policy rather than something to tune around.
func (a *Aggregator) linkShipper(ctx context.Context, shipper store.Shipper, minScore int) (bool, error) {
	if shipper.Country == "" || normalize.CompanyName(shipper.Name) == "" {
		return false, nil
	}

	candidates, err := a.suppliers.ListByCountry(ctx, shipper.Country)
	if err != nil {
		return false, fmt.Errorf("candidate retrieval for country %q: %w", shipper.Country, err)
	}

	bestScore := -1
	var best match.CandidateRecord
	for _, cand := range candidates {
		if cand.Validate() != nil {
			continue
		}
		if score := match.NameScore(shipper.Name, cand.Name); score > bestScore {
			bestScore = score
			best = cand
		}
	}
	if bestScore < minScore {
		return false, nil
	}

	if err := a.rollUp(ctx, best.ID, shipper); err != nil {
		return false, err
	}

	a.log.Debug("shipper linked",
		zap.String("shipper", shipper.Name),
		zap.Int64("supplier_id", best.ID),
		zap.Int("score", bestScore))
	return true, nil
}

// rollUp aggregates the shipper's transactions by product prefix and
// applies one increment per prefix.
func (a *Aggregator) rollUp(ctx context.Context, supplierID int64, shipper store.Shipper) error {
	txs, err := a.transactions.ByShipper(ctx, shipper.Name, shipper.Country)
	if err != nil {
		return fmt.Errorf("fetching transactions for %q: %w", shipper.Name, err)
	}

	deltas := make(map[string]*store.RollupDelta)
	var order []string
	for _, t := range txs {
		prefix := ProductPrefix(t.ProductCode)
		d, ok := deltas[prefix]
		if !ok {
			d = &store.RollupDelta{SupplierID: supplierID, ProductPrefix: prefix}
			deltas[prefix] = d
			order = append(order, prefix)
		}
		d.Shipments++
		d.Quantity += t.Quantity
		d.Value += t.DeclaredValue
		if t.TransactionDate.After(d.TransactionDate) {
			d.TransactionDate = t.TransactionDate
		}
	}

	for _, prefix := range order {
		if err := a.suppliers.UpsertRollup(ctx, *deltas[prefix]); err != nil {
			return fmt.Errorf("rollup upsert for prefix %q: %w", prefix, err)
		}
	}
	return nil
}

// ProductPrefix truncates a product code to its leading significant
// digits; separators and other non-digit characters are ignored. Codes
// with fewer digits roll up under their full digit string.
func ProductPrefix(code string) string {
	var b strings.Builder
	for _, r := range code {
		if r < '0' || r > '9' {
			continue
		}
		b.WriteRune(r)
		if b.Len() == ProductPrefixDigits {
			break
		}
	}
	return b.String()
}
