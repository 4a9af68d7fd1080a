package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var clearLedger bool

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show or clear row ids pending retry for an output file",
	Args:  cobra.NoArgs,
	Run:   runLedger,
}

func init() {
	ledgerCmd.Flags().BoolVar(&clearLedger, "clear", false, "delete the failure ledger")
	rootCmd.AddCommand(ledgerCmd)
}

func runLedger(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(exitError)
	}

	ctx := context.Background()
	failures, closeLedger, err := openLedger(ctx, cfg, outputPath)
	if err != nil {
		slog.Error("Failed to open failure ledger", "error", err)
		os.Exit(exitError)
	}
	defer closeLedger()

	if clearLedger {
		if err := failures.Clear(ctx); err != nil {
			slog.Error("Failed to clear ledger", "ledger", failures.String(), "error", err)
			closeLedger()
			os.Exit(exitError)
		}
		slog.Info("Ledger cleared", "ledger", failures.String())
		return
	}

	ids, err := failures.Load(ctx)
	if err != nil {
		slog.Error("Failed to load ledger", "ledger", failures.String(), "error", err)
		closeLedger()
		os.Exit(exitError)
	}

	// Duplicates are kept in the ledger, show how often each id failed
	counts := make(map[string]int, len(ids))
	var order []string
	for _, id := range ids {
		if counts[id] == 0 {
			order = append(order, id)
		}
		counts[id]++
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tENTRIES")
	for _, id := range order {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", id, counts[id])
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(os.Stdout, "%d row(s) pending retry in %s\n", len(order), failures.String())
}
