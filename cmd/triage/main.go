package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/aegis-clinical/triage/internal/casestore"
	"github.com/aegis-clinical/triage/internal/config"
	"github.com/aegis-clinical/triage/internal/pipeline"
	"github.com/aegis-clinical/triage/internal/render"
	"github.com/aegis-clinical/triage/internal/retrieval"
)

var (
	configPath string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:   "triage",
		Short: "Hybrid edge/cloud clinical triage assistant",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newHistoryCmd())
	root.AddCommand(newCorpusCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "triage.yaml"
	}
	return home + "/.triage/config.yaml"
}

func newAnalyzeCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "analyze \"<symptom description>\"",
		Short: "Run a triage analysis for a free-text symptom description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			opts := pipeline.Options{}
			if cfg.ArchiveEnabled() {
				store, err := casestore.Open(cfg.DBPath)
				if err != nil {
					slog.Warn("case archive unavailable", "error", err)
				} else {
					defer store.Close()
					opts.Store = store
				}
			}

			p, err := pipeline.NewFromConfig(cfg, opts)
			if err != nil {
				return err
			}

			query := strings.Join(args, " ")
			spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
			spin.Suffix = " analyzing..."
			spin.Start()
			result, err := p.Analyze(cmd.Context(), query)
			spin.Stop()
			if err != nil {
				return err
			}

			if asJSON {
				b, err := render.RenderJSON(&result)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(b))
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), render.RenderText(&result))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the raw JSON result")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived analyses, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			store, err := casestore.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no archived cases")
				return nil
			}
			for _, r := range records {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-6s  %-5s  %.2f  %s\n",
					r.CreatedAt, r.Severity, r.Source, r.Confidence, r.Query)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum cases to show (0 for all)")
	return cmd
}

func newCorpusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "corpus",
		Short: "List the embedded clinical-guideline corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, doc := range retrieval.DefaultIndex().Documents() {
				specialty := doc.Metadata["specialty"]
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s  %-16s  %s\n", doc.ID, specialty, doc.Source)
			}
			return nil
		},
	}
}
