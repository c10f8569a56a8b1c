package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"restorable.io/restorable-home/internal/config"
	"restorable.io/restorable-home/internal/initiation"
	"restorable.io/restorable-home/internal/logging"
	"restorable.io/restorable-home/internal/report"
	"restorable.io/restorable-home/internal/restore"
	"restorable.io/restorable-home/internal/scope"
	"restorable.io/restorable-home/internal/storage"
	"restorable.io/restorable-home/internal/verify"
	"restorable.io/restorable-home/internal/volume"
)

var dryRun bool

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restores the state directory from the latest backup",
	Long: `Restores the configured state directory from the latest backup chain.

This command performs the following steps:
1. Reads the backup version, the version of the state on disk and the list
   of files tracked by the backup metadata.
2. Decides for every tracked file whether the backup or the copy on disk
   wins. The copy on disk wins only if the state was upgraded past the
   version of the backup.
3. Fetches all volumes of the latest backup chain in parallel, and applies
   them in chain order.
4. Initializes a new environment instead if storage is not configured or
   holds no backup.
5. Verifies the result and writes a signed report.

With --dry-run, only steps 1 and 2 are performed and the plan is printed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		fmt.Fprintln(out, "✓ Configuration loaded.")

		lg, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = lg.Sync() }()

		st, err := storage.NewFromConfig(cfg, lg)
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		proc, err := newProcedure(cfg, st, lg)
		if err != nil {
			return err
		}

		if dryRun {
			plan, err := proc.Plan(ctx)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrRestoreFailed, err)
			}
			printPlan(out, cfg, plan)
			return nil
		}

		if st == nil {
			fmt.Fprintln(out, "No backup storage configured.")
		} else {
			fmt.Fprintf(out, "Restoring from storage: %s\n", st.Identifier())
		}
		res, errRestore := proc.PerformRestore(ctx)
		if errRestore != nil {
			fmt.Fprintf(out, "✗ Restore failed: %v\n", errRestore)
		} else if res.Fresh {
			fmt.Fprintf(out, "✓ New environment initialized in %s.\n", cfg.Restore.TargetDir)
		} else {
			fmt.Fprintf(out, "✓ Restored %d archive(s) up to %s in %s.\n",
				len(res.Archives), res.LastArchive, res.Duration.Round(time.Millisecond))
		}

		var checks []verify.CheckResult
		if errRestore == nil {
			checks = runChecks(ctx, out, cfg, st, res, lg)
		}

		if cfg.Report.Enabled {
			if err := writeReport(out, cfg, res, errRestore, checks); err != nil {
				return err
			}
		}

		if errRestore != nil {
			return fmt.Errorf("%w: %w", ErrRestoreFailed, errRestore)
		}
		if critical, _, _ := verify.CountFailures(checks); critical > 0 {
			return fmt.Errorf("%w: verification failed with %d critical failure(s)", ErrRestoreFailed, critical)
		}
		return nil
	},
}

// newProcedure wires the restore procedure described by cfg.
func newProcedure(cfg *config.Config, st storage.Storage, lg *logging.Logger) (*restore.Procedure, error) {
	vol, err := volume.New(cfg.Volume.Format)
	if err != nil {
		return nil, err
	}
	sc, err := scope.New(cfg.Scope.Excludes, lg)
	if err != nil {
		return nil, err
	}
	return restore.NewProcedure(restore.Options{
		Storage:     st,
		Volume:      vol,
		Scope:       sc,
		Strategy:    initiation.NewFromConfig(&cfg.Hooks, lg),
		TargetDir:   cfg.Restore.TargetDir,
		ScratchDir:  cfg.Restore.ScratchDir,
		Overwrite:   cfg.Restore.Overwrite,
		Workers:     cfg.Restore.Workers,
		VersionFile: cfg.Restore.VersionFile,
	}, lg), nil
}

func printPlan(out io.Writer, cfg *config.Config, plan *restore.Plan) {
	if plan.Fresh {
		fmt.Fprintf(out, "Would initialize a new environment in %s.\n", cfg.Restore.TargetDir)
		return
	}
	fmt.Fprintf(out, "Disk version:    %s\n", plan.DiskVersion)
	fmt.Fprintf(out, "Storage version: %s\n", plan.StorageVersion)
	if plan.Upgrade {
		fmt.Fprintln(out, "State on disk is newer than the backup; tracked files on disk are kept.")
	} else {
		fmt.Fprintln(out, "Backup copies of tracked files replace copies on disk.")
	}
	fmt.Fprintf(out, "Tracked files:   %d\n", len(plan.Decisions))
	fmt.Fprintf(out, "Archives (%d):\n", len(plan.Archives))
	for _, id := range plan.Archives {
		fmt.Fprintf(out, "  %s\n", id)
	}
}

func runChecks(
	ctx context.Context, out io.Writer, cfg *config.Config,
	st storage.Storage, res *restore.Result, lg *logging.Logger,
) []verify.CheckResult {
	var tracked []string
	if st != nil && !res.Fresh {
		names, err := st.ListMetadataForExistingFiles(ctx)
		if err != nil {
			lg.Warnw("Failed to list tracked files for verification.", "err", err)
		}
		tracked = names
		sort.Strings(tracked)
	}

	fmt.Fprintln(out, "Running verification checks...")
	results := verify.RunChecks(ctx, verify.DefaultCheckers(), &verify.State{
		TargetDir:   cfg.Restore.TargetDir,
		VersionFile: cfg.Restore.VersionFile,
		Result:      res,
		Tracked:     tracked,
	})
	for _, r := range results {
		status := "✓"
		if !r.Passed {
			status = "✗"
		}
		fmt.Fprintf(out, "  %s [%s] %s: %s\n", status, r.Level, r.Name, r.Message)
	}

	critical, warning, _ := verify.CountFailures(results)
	if critical > 0 {
		fmt.Fprintf(out, "✗ Verification failed with %d critical failure(s).\n", critical)
	} else if warning > 0 {
		fmt.Fprintf(out, "⚠ Verification passed with %d warning(s).\n", warning)
	} else {
		fmt.Fprintln(out, "✓ All verification checks passed.")
	}
	return results
}

func writeReport(
	out io.Writer, cfg *config.Config,
	res *restore.Result, errRestore error, checks []verify.CheckResult,
) error {
	rpt := report.NewReportBuilder().
		WithMachineID(cfg.MachineID).
		WithTargetDir(cfg.Restore.TargetDir).
		WithResult(res).
		WithError(errRestore).
		WithChecks(checks).
		Build()
	if rpt.ID == "" {
		rpt.ID = uuid.NewString()
	}

	if cfg.Signing.PrivateKeyPath != "" {
		privateKey, err := report.LoadPrivateKey(cfg.Signing.PrivateKeyPath)
		if err != nil {
			return fmt.Errorf("failed to load signing key: %w", err)
		}
		if err := report.Sign(rpt, privateKey); err != nil {
			return fmt.Errorf("failed to sign report: %w", err)
		}
		fmt.Fprintln(out, "✓ Report signed.")
	}

	path, err := report.WriteJSON(rpt, cfg.Report.Dir)
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Fprintf(out, "✓ Report saved to %s\n", path)
	return nil
}

func init() {
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the restore plan without changing anything")
}
