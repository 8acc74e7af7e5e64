package dedupe

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tradescope/supplier-match/internal/audit"
	"github.com/tradescope/supplier-match/internal/match"
	"github.com/tradescope/supplier-match/internal/store"
)

// trackerSpy records audit calls in place of a database-backed tracker.
type trackerSpy struct {
	started   int
	completed []audit.RunRecord
	merges    []audit.MergeRecord
}

func (s *trackerSpy) StartRun(ctx context.Context, runID uuid.UUID, threshold int, startedAt time.Time) error {
	s.started++
	return nil
}

func (s *trackerSpy) CompleteRun(ctx context.Context, rec audit.RunRecord) error {
	s.completed = append(s.completed, rec)
	return nil
}

func (s *trackerSpy) RecordMerge(ctx context.Context, rec audit.MergeRecord) error {
	s.merges = append(s.merges, rec)
	return nil
}

var base = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFindDuplicateGroups(t *testing.T) {
	st := store.NewMemory()
	st.Add(store.SupplierRecord{ID: 1, Name: "Shenzhen Elite Electronics Ltd", Country: "CN", CreatedAt: base})
	st.Add(store.SupplierRecord{ID: 2, Name: "Shenzhen Elite Electronics Co", Country: "CN", CreatedAt: base.Add(time.Hour)})
	st.Add(store.SupplierRecord{ID: 3, Name: "Guangzhou Metals", Country: "CN", CreatedAt: base.Add(2 * time.Hour)})
	st.Add(store.SupplierRecord{ID: 4, Name: "Shenzhen Elite Electronics Ltd", Country: "US", CreatedAt: base.Add(3 * time.Hour)})

	groups, skipped, err := NewBuilder(st, nil).FindDuplicateGroups(context.Background(), 80)
	if err != nil {
		t.Fatalf("FindDuplicateGroups: %v", err)
	}
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1: %+v", len(groups), groups)
	}

	g := groups[0]
	if g.PrimaryID != 1 {
		t.Errorf("primary = %d, want earliest-created record 1", g.PrimaryID)
	}
	if len(g.Duplicates) != 1 || g.Duplicates[0].ID != 2 {
		t.Fatalf("duplicates = %+v, want just supplier 2", g.Duplicates)
	}
	if g.Duplicates[0].Score != 85 {
		t.Errorf("duplicate score = %d, want 85", g.Duplicates[0].Score)
	}
}

func TestFindDuplicateGroupsEarliestPrimary(t *testing.T) {
	st := store.NewMemory()
	st.Add(store.SupplierRecord{ID: 1, Name: "Acme Corp", Country: "US", CreatedAt: base})
	st.Add(store.SupplierRecord{ID: 2, Name: "Acme Corporation", Country: "US", CreatedAt: base.Add(time.Hour)})
	st.Add(store.SupplierRecord{ID: 3, Name: "Acme Inc", Country: "US", CreatedAt: base.Add(2 * time.Hour)})

	groups, _, err := NewBuilder(st, nil).FindDuplicateGroups(context.Background(), 80)
	if err != nil {
		t.Fatalf("FindDuplicateGroups: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	if groups[0].PrimaryID != 1 {
		t.Errorf("primary = %d, want 1", groups[0].PrimaryID)
	}

	var ids []int64
	for _, d := range groups[0].Duplicates {
		ids = append(ids, d.ID)
	}
	if !reflect.DeepEqual(ids, []int64{2, 3}) {
		t.Errorf("duplicate ids = %v, want [2 3]", ids)
	}
}

func TestFindDuplicateGroupsSkipsInvalid(t *testing.T) {
	st := store.NewMemory()
	st.Add(store.SupplierRecord{ID: 1, Name: "Ltd", Country: "CN", CreatedAt: base})
	st.Add(store.SupplierRecord{ID: 2, Name: "Guangzhou Metals", Country: "CN", CreatedAt: base.Add(time.Hour)})

	groups, skipped, err := NewBuilder(st, nil).FindDuplicateGroups(context.Background(), 80)
	if err != nil {
		t.Fatalf("FindDuplicateGroups: %v", err)
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if len(groups) != 0 {
		t.Errorf("got %d groups, want none: %+v", len(groups), groups)
	}
}

func TestFuse(t *testing.T) {
	primary := &store.SupplierRecord{
		ID:               1,
		Website:          "hanseatic.de",
		Phone:            "+49 40 1",
		Certifications:   []string{"ISO9001"},
		ReliabilityScore: 80,
		QualityScore:     70,
		OverallScore:     75,
	}
	dup := &store.SupplierRecord{
		ID:               2,
		City:             "Hamburg",
		Website:          "hanseatic-metals.de",
		Email:            "sales@hanseatic.de",
		Phone:            "+49 40 2",
		Certifications:   []string{"ISO9001", "ISO14001"},
		Materials:        []string{"steel"},
		ReliabilityScore: 90,
		QualityScore:     60,
		OverallScore:     80,
	}

	fused := Fuse(primary, dup)

	if fused.ID != 1 {
		t.Errorf("fused id = %d, want primary 1", fused.ID)
	}
	if fused.City != "Hamburg" {
		t.Errorf("city = %q, want duplicate's value filling the gap", fused.City)
	}
	if fused.Website != "hanseatic.de" || fused.Phone != "+49 40 1" {
		t.Errorf("primary scalars overwritten: website %q phone %q", fused.Website, fused.Phone)
	}
	if fused.Email != "sales@hanseatic.de" {
		t.Errorf("email = %q, want duplicate's", fused.Email)
	}
	if !reflect.DeepEqual(fused.Certifications, []string{"ISO9001", "ISO14001"}) {
		t.Errorf("certifications = %v, want union", fused.Certifications)
	}
	if !reflect.DeepEqual(fused.Materials, []string{"steel"}) {
		t.Errorf("materials = %v, want [steel]", fused.Materials)
	}
	if fused.ReliabilityScore != 90 || fused.QualityScore != 70 || fused.OverallScore != 80 {
		t.Errorf("scores = %v/%v/%v, want per-field maximum 90/70/80",
			fused.ReliabilityScore, fused.QualityScore, fused.OverallScore)
	}
}

func seedMergePair(st *store.Memory) {
	st.Add(store.SupplierRecord{
		ID: 1, Name: "Hanseatic Metals GmbH", Country: "DE", CreatedAt: base,
		Phone:            "+49 40 1",
		Certifications:   []string{"ISO9001"},
		ReliabilityScore: 80, QualityScore: 70, OverallScore: 75,
		Specializations: []store.Specialization{{SupplierID: 1, HTSCode: "850440", ShipmentShare: 0.5}},
	})
	st.Add(store.SupplierRecord{
		ID: 2, Name: "Hanseatic Metals Ltd", Country: "DE", CreatedAt: base.Add(time.Hour),
		Email:            "sales@hanseatic.de",
		Phone:            "+49 40 2",
		Certifications:   []string{"ISO9001", "ISO14001"},
		ReliabilityScore: 90, QualityScore: 60, OverallScore: 80,
		Specializations: []store.Specialization{
			{SupplierID: 2, HTSCode: "850440", ShipmentShare: 0.2},
			{SupplierID: 2, HTSCode: "721391", ShipmentShare: 0.3},
		},
	})
}

func TestRunDeduplicationLive(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedMergePair(st)
	if err := st.UpsertRollup(ctx, store.RollupDelta{
		SupplierID: 2, ProductPrefix: "850440",
		Shipments: 3, Quantity: 10, Value: 100,
		TransactionDate: base,
	}); err != nil {
		t.Fatalf("seeding rollup: %v", err)
	}

	summary, err := NewRunner(st, nil, nil).RunDeduplication(ctx, 80, false)
	if err != nil {
		t.Fatalf("RunDeduplication: %v", err)
	}
	if summary.TotalRecords != 2 || len(summary.Groups) != 1 || summary.MergedCount != 1 {
		t.Fatalf("summary = total %d groups %d merged %d, want 2/1/1",
			summary.TotalRecords, len(summary.Groups), summary.MergedCount)
	}
	if len(summary.Failures) != 0 {
		t.Fatalf("unexpected failures: %+v", summary.Failures)
	}

	if _, err := st.Get(ctx, 2); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("duplicate still present: err = %v, want ErrNotFound", err)
	}

	primary, err := st.Get(ctx, 1)
	if err != nil {
		t.Fatalf("fetching primary: %v", err)
	}
	if primary.Email != "sales@hanseatic.de" || primary.Phone != "+49 40 1" {
		t.Errorf("scalar fusion: email %q phone %q", primary.Email, primary.Phone)
	}
	if !reflect.DeepEqual(primary.Certifications, []string{"ISO9001", "ISO14001"}) {
		t.Errorf("certifications = %v, want union", primary.Certifications)
	}
	if primary.ReliabilityScore != 90 || primary.QualityScore != 70 || primary.OverallScore != 80 {
		t.Errorf("scores = %v/%v/%v, want 90/70/80",
			primary.ReliabilityScore, primary.QualityScore, primary.OverallScore)
	}

	// The primary keeps its own 850440 row; the duplicate's 721391 row is
	// re-parented.
	shares := make(map[string]float64)
	for _, sp := range primary.Specializations {
		if sp.SupplierID != 1 {
			t.Errorf("specialization %q still parented to %d", sp.HTSCode, sp.SupplierID)
		}
		shares[sp.HTSCode] = sp.ShipmentShare
	}
	if !reflect.DeepEqual(shares, map[string]float64{"850440": 0.5, "721391": 0.3}) {
		t.Errorf("specializations = %v", shares)
	}

	rollups, err := st.RollupsForSupplier(ctx, 1)
	if err != nil {
		t.Fatalf("RollupsForSupplier: %v", err)
	}
	if len(rollups) != 1 || rollups[0].ShipmentCount != 3 || rollups[0].TotalQuantity != 10 {
		t.Errorf("rollups not folded into primary: %+v", rollups)
	}
}

func TestRunDeduplicationDryRun(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedMergePair(st)

	before := st.Suppliers()
	writesBefore := st.WriteCount()

	summary, err := NewRunner(st, nil, nil).RunDeduplication(ctx, 80, true)
	if err != nil {
		t.Fatalf("RunDeduplication: %v", err)
	}
	if !summary.DryRun {
		t.Error("summary does not report dry-run mode")
	}
	if len(summary.Groups) != 1 || summary.MergedCount != 0 {
		t.Errorf("summary = groups %d merged %d, want 1/0", len(summary.Groups), summary.MergedCount)
	}

	if got := st.WriteCount(); got != writesBefore {
		t.Errorf("dry run performed %d writes", got-writesBefore)
	}
	if after := st.Suppliers(); !reflect.DeepEqual(before, after) {
		t.Errorf("dry run changed the store:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestRunDeduplicationMergeFailureContinues(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	st.Add(store.SupplierRecord{ID: 1, Name: "Acme Corp", Country: "US", CreatedAt: base})
	st.Add(store.SupplierRecord{ID: 2, Name: "Acme Corporation", Country: "US", CreatedAt: base.Add(time.Hour)})
	st.Add(store.SupplierRecord{ID: 3, Name: "Baltic Timber Oy", Country: "FI", CreatedAt: base.Add(2 * time.Hour)})
	st.Add(store.SupplierRecord{ID: 4, Name: "Baltic Timber Ab", Country: "FI", CreatedAt: base.Add(3 * time.Hour)})
	st.FailMergeInto(2, errors.New("disk full"))

	summary, err := NewRunner(st, nil, nil).RunDeduplication(ctx, 80, false)
	if err != nil {
		t.Fatalf("RunDeduplication: %v", err)
	}
	if summary.MergedCount != 1 {
		t.Errorf("merged = %d, want 1 (second group still processed)", summary.MergedCount)
	}
	if len(summary.Failures) != 1 {
		t.Fatalf("failures = %+v, want exactly one", summary.Failures)
	}
	f := summary.Failures[0]
	if f.PrimaryID != 1 || f.DuplicateID != 2 || !strings.Contains(f.Reason, "disk full") {
		t.Errorf("failure = %+v", f)
	}

	// The failed pair survives intact; the second group's duplicate is gone.
	if _, err := st.Get(ctx, 2); err != nil {
		t.Errorf("supplier 2 should survive the failed merge: %v", err)
	}
	if _, err := st.Get(ctx, 4); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("supplier 4 should be absorbed: err = %v", err)
	}
}

func TestMergeGroupConflicts(t *testing.T) {
	ctx := context.Background()
	runID := uuid.New()

	t.Run("self merge", func(t *testing.T) {
		st := store.NewMemory()
		st.Add(store.SupplierRecord{ID: 1, Name: "Acme Corp", Country: "US", CreatedAt: base})

		group := match.DuplicateGroup{PrimaryID: 1, Duplicates: []match.DuplicateRef{{ID: 1}}}
		merged, failures := NewMerger(st, nil, nil).MergeGroup(ctx, runID, group, map[int64]int64{})
		if merged != 0 || len(failures) != 1 {
			t.Fatalf("merged %d failures %+v, want 0 merges and one failure", merged, failures)
		}
		if !strings.Contains(failures[0].Reason, ErrSelfMerge.Error()) {
			t.Errorf("reason = %q", failures[0].Reason)
		}
	})

	t.Run("already absorbed abandons group", func(t *testing.T) {
		st := store.NewMemory()
		st.Add(store.SupplierRecord{ID: 1, Name: "Acme Corp", Country: "US", CreatedAt: base})
		st.Add(store.SupplierRecord{ID: 2, Name: "Acme Corporation", Country: "US", CreatedAt: base.Add(time.Hour)})
		st.Add(store.SupplierRecord{ID: 3, Name: "Acme Inc", Country: "US", CreatedAt: base.Add(2 * time.Hour)})

		group := match.DuplicateGroup{PrimaryID: 1, Duplicates: []match.DuplicateRef{{ID: 2}, {ID: 3}}}
		absorbed := map[int64]int64{2: 99}
		merged, failures := NewMerger(st, nil, nil).MergeGroup(ctx, runID, group, absorbed)
		if merged != 0 || len(failures) != 1 {
			t.Fatalf("merged %d failures %+v, want group abandoned on first conflict", merged, failures)
		}
		if _, err := st.Get(ctx, 3); err != nil {
			t.Errorf("supplier 3 must survive the abandoned group: %v", err)
		}
	})

	t.Run("retrieval failure skips one duplicate", func(t *testing.T) {
		st := store.NewMemory()
		st.Add(store.SupplierRecord{ID: 1, Name: "Acme Corp", Country: "US", CreatedAt: base})
		st.Add(store.SupplierRecord{ID: 2, Name: "Acme Corporation", Country: "US", CreatedAt: base.Add(time.Hour)})
		st.Add(store.SupplierRecord{ID: 3, Name: "Acme Inc", Country: "US", CreatedAt: base.Add(2 * time.Hour)})
		st.FailGet(2, errors.New("io timeout"))

		group := match.DuplicateGroup{PrimaryID: 1, Duplicates: []match.DuplicateRef{{ID: 2}, {ID: 3}}}
		merged, failures := NewMerger(st, nil, nil).MergeGroup(ctx, runID, group, map[int64]int64{})
		if merged != 1 || len(failures) != 1 {
			t.Fatalf("merged %d failures %+v, want the readable duplicate still merged", merged, failures)
		}
		if _, err := st.Get(ctx, 3); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("supplier 3 should be absorbed: err = %v", err)
		}
	})
}

func TestRunDeduplicationCancelled(t *testing.T) {
	st := store.NewMemory()
	seedMergePair(st)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	spy := &trackerSpy{}
	_, err := NewRunner(st, spy, nil).RunDeduplication(ctx, 80, false)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	// Even a cancelled run must close its audit row.
	if spy.started != 1 || len(spy.completed) != 1 {
		t.Errorf("audit trail: started %d completed %d, want 1/1", spy.started, len(spy.completed))
	}
}

func TestRunDeduplicationAuditTrail(t *testing.T) {
	ctx := context.Background()

	t.Run("live run records start, merges and completion", func(t *testing.T) {
		st := store.NewMemory()
		seedMergePair(st)
		spy := &trackerSpy{}

		summary, err := NewRunner(st, spy, nil).RunDeduplication(ctx, 80, false)
		if err != nil {
			t.Fatalf("RunDeduplication: %v", err)
		}
		if spy.started != 1 || len(spy.completed) != 1 {
			t.Fatalf("audit trail: started %d completed %d, want 1/1", spy.started, len(spy.completed))
		}
		rec := spy.completed[0]
		if rec.RunID != summary.RunID || rec.MergedCount != 1 || rec.GroupCount != 1 {
			t.Errorf("completion record = %+v", rec)
		}
		if rec.FinishedAt.IsZero() {
			t.Error("completion record carries no finish time")
		}
		if len(spy.merges) != 1 || spy.merges[0].Outcome != "merged" {
			t.Errorf("merge records = %+v", spy.merges)
		}
	})

	t.Run("aborted discovery still closes the run row", func(t *testing.T) {
		st := store.NewMemory()
		seedMergePair(st)
		st.FailList(errors.New("connection reset"))
		spy := &trackerSpy{}

		_, err := NewRunner(st, spy, nil).RunDeduplication(ctx, 80, false)
		if err == nil {
			t.Fatal("expected error from failing list")
		}
		if spy.started != 1 || len(spy.completed) != 1 {
			t.Fatalf("audit trail: started %d completed %d, want the row opened and closed", spy.started, len(spy.completed))
		}
		rec := spy.completed[0]
		if rec.GroupCount != 0 || rec.MergedCount != 0 || rec.FinishedAt.IsZero() {
			t.Errorf("partial completion record = %+v", rec)
		}
	})

	t.Run("dry run writes no audit rows", func(t *testing.T) {
		st := store.NewMemory()
		seedMergePair(st)
		spy := &trackerSpy{}

		if _, err := NewRunner(st, spy, nil).RunDeduplication(ctx, 80, true); err != nil {
			t.Fatalf("RunDeduplication: %v", err)
		}
		if spy.started != 0 || len(spy.completed) != 0 || len(spy.merges) != 0 {
			t.Errorf("dry run touched the audit trail: %+v", spy)
		}
	})
}
