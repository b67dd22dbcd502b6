// Package cli assembles the asterhunt command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/spf13/cobra"

	"asterhunt/internal/config"
	"asterhunt/internal/fits"
	"asterhunt/internal/report"
	"asterhunt/internal/server"
	"asterhunt/internal/storage"
	"asterhunt/internal/tracker"
)

// Version is stamped at build time.
var Version = "dev"

// NewRootCmd creates the root command.
func NewRootCmd(cfg *config.Config, log *slog.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "asterhunt",
		Short: "asterhunt finds faint moving objects in FITS image sequences",
		Long: `asterhunt digitally re-stacks groups of FITS exposures along a grid of
motion hypotheses (synthetic tracking). Under the right hypothesis a
moving object's light accumulates across frames and becomes detectable
while the stars smear.`,
	}

	rootCmd.AddCommand(newHuntCmd(cfg, log))
	rootCmd.AddCommand(newServeCmd(cfg, log))
	rootCmd.AddCommand(newConfigCmd(cfg))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newHuntCmd(cfg *config.Config, log *slog.Logger) *cobra.Command {
	var (
		reportDir string
		dbPath    string
		addr      string
		serve     bool
	)

	cmd := &cobra.Command{
		Use:   "hunt <fits_directory>",
		Short: "Run the synthetic-tracking pipeline over a directory of FITS files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			if reportDir == "" {
				reportDir = cfg.Paths.ReportDir
			}
			if dbPath == "" {
				dbPath = cfg.Paths.DatabasePath
			}

			loaded, err := fits.LoadDir(input, log)
			if err != nil {
				return fmt.Errorf("load frames: %w", err)
			}

			pipe, err := tracker.NewPipeline(loaded.Groups, loaded.PixScale, cfg.TrackerParams(), log)
			if err != nil {
				return err
			}

			store, err := storage.New(dbPath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer store.Close()

			runID, err := store.BeginRun(input, loaded.Loaded, cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if serve {
				srv := server.New(addr, store, pipe, log)
				go func() {
					if err := srv.Start(ctx); err != nil {
						log.Warn("status server stopped", "error", err)
					}
				}()
			}

			movers, err := pipe.Run(ctx)
			if err != nil {
				return fmt.Errorf("pipeline: %w", err)
			}

			rep, err := report.New(reportDir)
			if err != nil {
				return err
			}
			defer rep.Close()
			if err := rep.Save(movers); err != nil {
				return fmt.Errorf("write report: %w", err)
			}

			if err := store.FinishRun(runID, movers); err != nil {
				return fmt.Errorf("record run: %w", err)
			}

			log.Info("hunt complete",
				"run", runID,
				"frames", loaded.Loaded,
				"movers", len(movers))
			for i, m := range movers {
				fmt.Printf("%2d  x=%4.0f y=%4.0f  motion=%.2f\"/min  PA=%.1f°  errMid=%.2f  score=%.2f\n",
					i,
					m.Objects[0].Location.X, m.Objects[0].Location.Y,
					m.Motion, float64(m.PA)*180/math.Pi, m.ErrMid, m.Score)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&reportDir, "report-dir", "", "directory for mover log files")
	cmd.Flags().StringVar(&dbPath, "db", "", "path to the run database")
	cmd.Flags().StringVar(&addr, "addr", cfg.Server.Addr, "status server address")
	cmd.Flags().BoolVar(&serve, "serve", false, "expose live status while hunting")
	return cmd
}

func newServeCmd(cfg *config.Config, log *slog.Logger) *cobra.Command {
	var (
		dbPath string
		addr   string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve recorded runs and movers over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = cfg.Paths.DatabasePath
			}
			store, err := storage.New(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()
			return server.New(addr, store, nil, log).Start(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "path to the run database")
	cmd.Flags().StringVar(&addr, "addr", cfg.Server.Addr, "listen address")
	return cmd
}

func newConfigCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the asterhunt version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("asterhunt", Version)
		},
	}
}
