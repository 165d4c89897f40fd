package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"floodattr/adapters/api"
	"floodattr/adapters/excel"
	"floodattr/adapters/geojoin"
	"floodattr/adapters/glm"
	"floodattr/adapters/postgres"
	"floodattr/app"
	"floodattr/domain/attrib"
	"floodattr/domain/core"
	"floodattr/internal"
	"floodattr/internal/config"
	"floodattr/ports"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "floodattr",
		Short: "Flood-attributable malaria burden estimation",
		Long: `floodattr fits a fixed-effects Poisson model to a city-week malaria
panel, quantifies the flood-attributable case burden per municipality with
delta-method confidence intervals, and projects the burden under SSP
population scenarios.`,
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newExportCmd(),
		newServeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	var panelFile string
	var projectionsFile string
	var estimator string
	var ciMode string
	var level float64

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one attribution analysis over a panel file",
		Long: `Run the full pipeline: load the panel, fit the model, estimate per-city
and global attribution, project scenarios, and write the report to the output
directory (and to the ledger when DATABASE_URL is set).

Example: floodattr run --panel data/panel.xlsx --projections data/ssp.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if panelFile != "" {
				cfg.Data.PanelFile = panelFile
			}
			if projectionsFile != "" {
				cfg.Data.ProjectionsFile = projectionsFile
			}
			if cmd.Flags().Changed("estimator") {
				cfg.Analysis.Estimator = estimator
			}
			if cmd.Flags().Changed("ci") {
				cfg.Analysis.CIAggregation = ciMode
			}
			if cmd.Flags().Changed("level") {
				cfg.Analysis.ConfidenceLevel = level
			}
			if cfg.Data.PanelFile == "" {
				return fmt.Errorf("no panel file: pass --panel or set PANEL_FILE")
			}
			return runAttribution(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&panelFile, "panel", "", "Panel file (.xlsx or .csv)")
	cmd.Flags().StringVar(&projectionsFile, "projections", "", "Population projection file (.xlsx or .csv)")
	cmd.Flags().StringVar(&estimator, "estimator", "paf", "Attribution estimator: paf or difference")
	cmd.Flags().StringVar(&ciMode, "ci", "delta", "City CI aggregation: delta or sum-bounds")
	cmd.Flags().Float64Var(&level, "level", 0.95, "Confidence level")

	return cmd
}

func runAttribution(ctx context.Context, cfg *config.Config) error {
	log := internal.DefaultLogger

	rows, err := excel.NewPanelLoader(cfg.Data.PanelFile).LoadRows(ctx)
	if err != nil {
		return err
	}
	log.Info("loaded %d panel rows from %s", len(rows), cfg.Data.PanelFile)

	var projections []attrib.PopulationProjection
	if cfg.Data.ProjectionsFile != "" {
		projections, err = excel.NewProjectionLoader(cfg.Data.ProjectionsFile).LoadProjections(ctx)
		if err != nil {
			return err
		}
		log.Info("loaded %d population projections from %s", len(projections), cfg.Data.ProjectionsFile)
	}

	var ledger *postgres.Ledger
	if cfg.Database.URL != "" {
		ledger, err = postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer ledger.Close()
	}

	service := app.NewAttributionService(glm.NewFitter(), ledgerWriter(ledger), log)
	report, err := service.Run(ctx, app.AttributionRequest{
		Rows:        rows,
		Projections: projections,
		Config: attrib.Config{
			ConfidenceLevel: cfg.Analysis.ConfidenceLevel,
			Estimator:       attrib.Estimator(cfg.Analysis.Estimator),
			CIMode:          attrib.CIAggregation(cfg.Analysis.CIAggregation),
		},
	})
	if err != nil {
		return err
	}

	return exportReport(report, cfg.Output.Dir, log)
}

func newExportCmd() *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Re-export a persisted run from the ledger",
		Long: `Export a run report from the ledger to the output directory without
re-fitting. Defaults to the most recent run.

Example: floodattr export --run 0195f3a2-...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("export requires DATABASE_URL")
			}
			ctx := cmd.Context()
			ledger, err := postgres.Open(ctx, cfg.Database.URL)
			if err != nil {
				return err
			}
			defer ledger.Close()

			var report *attrib.RunReport
			if runID == "" {
				report, err = ledger.LatestReport(ctx)
			} else {
				var id core.RunID
				if id, err = core.ParseRunID(runID); err == nil {
					report, err = ledger.GetReport(ctx, id)
				}
			}
			if err != nil {
				return err
			}
			return exportReport(report, cfg.Output.Dir, internal.DefaultLogger)
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Run ID to export (default: latest)")

	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve persisted run reports over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("serve requires DATABASE_URL")
			}
			ledger, err := postgres.Open(cmd.Context(), cfg.Database.URL)
			if err != nil {
				return err
			}
			defer ledger.Close()

			server := api.NewServer(ledger, internal.DefaultLogger)
			return server.ListenAndServe(cfg.Server.Port)
		},
	}
}

// exportReport writes every output artifact for a run: the JSON report, the
// Excel workbook, the ADM3 join tables, and the markdown summary.
func exportReport(report *attrib.RunReport, dir string, log *internal.Logger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	jsonPath := filepath.Join(dir, "report.json")
	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if err := os.WriteFile(jsonPath, payload, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", jsonPath, err)
	}

	xlsxPath := filepath.Join(dir, "report.xlsx")
	if err := excel.NewReportWriter().Write(report, xlsxPath); err != nil {
		return err
	}

	if err := writeCSV(filepath.Join(dir, "city_attribution.csv"), func(f *os.File) error {
		return geojoin.WriteCityTable(f, report)
	}); err != nil {
		return err
	}
	if len(report.Scenarios) > 0 {
		if err := writeCSV(filepath.Join(dir, "scenario_projection.csv"), func(f *os.File) error {
			return geojoin.WriteScenarioTable(f, report)
		}); err != nil {
			return err
		}
	}

	mdPath := filepath.Join(dir, "summary.md")
	if err := os.WriteFile(mdPath, []byte(api.SummaryMarkdown(report)), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", mdPath, err)
	}

	log.Info("exported run %s to %s", report.RunID, dir)
	return nil
}

func writeCSV(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	if err := write(f); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// ledgerWriter converts a possibly-nil concrete ledger into the optional
// writer dependency without passing a non-nil interface holding a nil pointer.
func ledgerWriter(l *postgres.Ledger) ports.LedgerWriterPort {
	if l == nil {
		return nil
	}
	return l
}
