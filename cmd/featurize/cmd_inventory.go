package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/weather-feature-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/weather-feature-etl/internal/domain"
)

var inventoryFlags struct {
	archive string
	latest  bool
}

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Summarize a local feature archive",
	Long:  `Print row counts and the observed time range of a SQLite feature archive.`,
	RunE:  runInventory,
}

func init() {
	rootCmd.AddCommand(inventoryCmd)
	inventoryCmd.Flags().StringVar(&inventoryFlags.archive, "archive", "", "SQLite archive path (required)")
	inventoryCmd.Flags().BoolVar(&inventoryFlags.latest, "latest", false, "also print the most recent batch as JSON")
	_ = inventoryCmd.MarkFlagRequired("archive")
}

func runInventory(cmd *cobra.Command, _ []string) error {
	if _, err := os.Stat(inventoryFlags.archive); err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	store, err := sqlite.Open(cmd.Context(), inventoryFlags.archive, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	inv, err := store.Inventory(cmd.Context())
	if err != nil {
		return err
	}
	if err := printInventory(cmd.OutOrStdout(), inv); err != nil {
		return err
	}

	if !inventoryFlags.latest {
		return nil
	}
	batch, err := store.LatestBatch(cmd.Context())
	if errors.Is(err, sqlite.ErrNoBatches) {
		fmt.Fprintln(cmd.OutOrStdout(), "no batches archived")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nlatest run %s for tick %s\n", batch.RunID, domain.CanonicalTimestamp(batch.Tick))
	return writeFeatures(cmd.OutOrStdout(), batch.Records)
}

func printInventory(w io.Writer, inv sqlite.Inventory) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "runs\t%d\n", inv.Runs)
	fmt.Fprintf(tw, "features\t%d\n", inv.Features)
	fmt.Fprintf(tw, "raw blobs\t%d\n", inv.RawBlobs)
	for _, source := range domain.SourceTypes {
		fmt.Fprintf(tw, "  %s\t%d\n", source, inv.RawBySource[source])
	}
	if inv.FirstObserved.IsZero() {
		fmt.Fprintf(tw, "observed\tnone\n")
	} else {
		fmt.Fprintf(tw, "observed\t%s .. %s\n",
			domain.CanonicalTimestamp(inv.FirstObserved), domain.CanonicalTimestamp(inv.LastObserved))
	}
	return tw.Flush()
}
