package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tradescope/supplier-match/internal/audit"
	"github.com/tradescope/supplier-match/internal/config"
	"github.com/tradescope/supplier-match/internal/db"
	"github.com/tradescope/supplier-match/internal/dedupe"
	"github.com/tradescope/supplier-match/internal/linkage"
	"github.com/tradescope/supplier-match/internal/match"
	"github.com/tradescope/supplier-match/internal/store"
)

var (
	// Global database connection and logger, shared by all subcommands.
	dbConn *db.Connection
	logger *zap.Logger
)

func main() {
	config.LoadEnv()

	var err error
	logger, err = zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	dbConn, err = db.NewConnection()
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer dbConn.Close()

	rootCmd := &cobra.Command{
		Use:   "supplierctl",
		Short: "Supplier entity resolution and deduplication",
		Long:  `Administrative jobs for the supplier matching engine: duplicate discovery and merge, and shipment-manifest linkage`,
	}

	rootCmd.AddCommand(createDedupeCmd())
	rootCmd.AddCommand(createLinkageCmd())
	rootCmd.AddCommand(createPingCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// createDedupeCmd creates the dedupe subcommand.
func createDedupeCmd() *cobra.Command {
	var threshold int
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Find and merge duplicate supplier records",
		Run: func(cmd *cobra.Command, args []string) {
			st := store.NewPostgres(dbConn.DB)
			tracker := audit.NewTracker(dbConn.DB)
			runner := dedupe.NewRunner(st, tracker, logger)

			summary, err := runner.RunDeduplication(cmd.Context(), threshold, dryRun)
			if err != nil {
				logger.Fatal("deduplication failed", zap.Error(err))
			}
			printDedupeSummary(summary)
		},
	}

	defaults := match.DefaultThresholds()
	cmd.Flags().IntVar(&threshold, "threshold",
		config.GetEnvInt("DEDUPE_THRESHOLD", defaults.Dedupe),
		"minimum overall score to auto-classify a match")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false,
		"report duplicate groups without writing to the store")
	return cmd
}

func printDedupeSummary(summary *dedupe.Summary) {
	mode := "live"
	if summary.DryRun {
		mode = "dry-run"
	}
	fmt.Printf("Deduplication (%s) at threshold %d: %d records, %d duplicate groups, %d merged, %d skipped\n",
		mode, summary.Threshold, summary.TotalRecords, len(summary.Groups),
		summary.MergedCount, summary.Skipped)

	for _, group := range summary.Groups {
		fmt.Printf("  %s (id=%d): %d duplicate(s)\n", group.PrimaryName, group.PrimaryID, len(group.Duplicates))
		for _, dup := range group.Duplicates {
			fmt.Printf("    <- %s (id=%d, score=%d)\n", dup.Name, dup.ID, dup.Score)
		}
	}
	for _, f := range summary.Failures {
		fmt.Printf("  merge failure: duplicate %d into %d: %s\n", f.DuplicateID, f.PrimaryID, f.Reason)
	}
}

// createLinkageCmd creates the linkage subcommand.
func createLinkageCmd() *cobra.Command {
	var minScore int

	cmd := &cobra.Command{
		Use:   "linkage",
		Short: "Link shipment-manifest shippers to suppliers and build trade rollups",
		Run: func(cmd *cobra.Command, args []string) {
			st := store.NewPostgres(dbConn.DB)
			agg := linkage.NewAggregator(st, st, logger)

			summary, err := agg.RunShipmentLinkage(cmd.Context(), minScore)
			if err != nil {
				logger.Fatal("shipment linkage failed", zap.Error(err))
			}
			fmt.Printf("Shipment linkage: %d shipper(s) linked, %d unlinked\n",
				summary.Linked, summary.Unlinked)
		},
	}

	cmd.Flags().IntVar(&minScore, "min-score",
		config.GetEnvInt("LINKAGE_MIN_SCORE", match.DefaultThresholds().Linkage),
		"minimum name score to confirm a shipper-to-supplier link")
	return cmd
}

// createPingCmd creates a command to test database connectivity.
func createPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Test database connectivity",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Database connection successful!")

			var count int
			if err := dbConn.DB.QueryRowContext(cmd.Context(), "SELECT COUNT(*) FROM supplier").Scan(&count); err != nil {
				logger.Warn("counting supplier records", zap.Error(err))
			} else {
				fmt.Printf("Suppliers loaded: %d\n", count)
			}

			if err := dbConn.DB.QueryRowContext(cmd.Context(), "SELECT COUNT(*) FROM shipment_transaction").Scan(&count); err != nil {
				logger.Warn("counting shipment transactions", zap.Error(err))
			} else {
				fmt.Printf("Shipment transactions loaded: %d\n", count)
			}
		},
	}
}
