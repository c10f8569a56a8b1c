package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"restorable.io/restorable-home/internal/report"
)

// ErrInvalidSignature is returned by 'report verify' for reports whose
// signature does not match.
var ErrInvalidSignature = errors.New("invalid report signature")

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Manage restore reports",
	Long:  `List, view, and verify the reports written by restore runs.`,
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all restore reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		reports, err := report.ListReports(cfg.Report.Dir)
		if err != nil {
			return fmt.Errorf("failed to list reports: %w", err)
		}
		if len(reports) == 0 {
			fmt.Fprintln(out, "No reports found.")
			return nil
		}

		fmt.Fprintf(out, "%-36s  %-20s  %-24s  %s\n", "ID", "Timestamp", "Outcome", "Status")
		fmt.Fprintln(out, strings.Repeat("-", 100))
		for _, r := range reports {
			status := "✓ Success"
			if !r.Success {
				status = "✗ Failed"
			}
			outcome := "restored " + r.LastArchive
			switch {
			case r.Fresh:
				outcome = "new environment"
			case r.LastArchive == "":
				outcome = "-"
			}
			fmt.Fprintf(out, "%-36s  %-20s  %-24s  %s\n",
				r.ID,
				r.Timestamp.Format("2006-01-02 15:04:05"),
				outcome,
				status,
			)
		}
		return nil
	},
}

var reportShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Display a restore report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		rpt, path, err := findReport(cfg.Report.Dir, args[0])
		if err != nil {
			return err
		}

		showJSON, _ := cmd.Flags().GetBool("json")
		if showJSON {
			data, err := json.MarshalIndent(rpt, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		printReport(out, rpt, path)
		return nil
	},
}

var reportVerifyCmd = &cobra.Command{
	Use:   "verify <id>",
	Short: "Verify a report's signature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Signing.PrivateKeyPath == "" {
			return fmt.Errorf("signing.private_key_path is not configured")
		}

		rpt, _, err := findReport(cfg.Report.Dir, args[0])
		if err != nil {
			return err
		}

		pubKey, err := report.LoadPublicKey(report.PublicKeyPath(cfg.Signing.PrivateKeyPath))
		if err != nil {
			return fmt.Errorf("failed to load public key: %w", err)
		}

		valid, err := report.Verify(rpt, pubKey)
		if err != nil {
			return fmt.Errorf("signature verification failed: %w", err)
		}
		if !valid {
			fmt.Fprintln(out, "✗ Signature is INVALID")
			return fmt.Errorf("%w: %s", ErrInvalidSignature, rpt.ID)
		}
		fmt.Fprintln(out, "✓ Signature is valid")
		return nil
	},
}

func printReport(out io.Writer, rpt *report.Report, path string) {
	fmt.Fprintf(out, "Report: %s\n", rpt.ID)
	fmt.Fprintf(out, "Path: %s\n", path)
	fmt.Fprintf(out, "Timestamp: %s\n", rpt.Timestamp.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(out, "Machine: %s\n", rpt.MachineID)
	fmt.Fprintf(out, "Target: %s\n", rpt.TargetDir)
	fmt.Fprintln(out)

	if res := rpt.Restore; res != nil {
		if res.StorageID != "" {
			fmt.Fprintf(out, "Storage: %s\n", res.StorageID)
		}
		fmt.Fprintf(out, "Versions: disk %s, storage %s", res.DiskVersion, res.StorageVersion)
		if res.Upgrade {
			fmt.Fprint(out, " (upgrade, disk copies kept)")
		}
		fmt.Fprintln(out)
		if res.Fresh {
			fmt.Fprintln(out, "Outcome: new environment initialized")
		} else {
			fmt.Fprintf(out, "Outcome: restored %d archive(s), last %s\n", len(res.Archives), res.LastArchive)
		}
		fmt.Fprintln(out)
	}
	if rpt.Error != "" {
		fmt.Fprintf(out, "Error: %s\n\n", rpt.Error)
	}

	fmt.Fprintln(out, "Summary:")
	if rpt.Summary.Success {
		fmt.Fprintln(out, "  Status: ✓ Success")
	} else {
		fmt.Fprintln(out, "  Status: ✗ Failed")
	}
	fmt.Fprintf(out, "  Checks: %d/%d passed\n", rpt.Summary.PassedChecks, rpt.Summary.TotalChecks)
	if rpt.Summary.CriticalFailures > 0 {
		fmt.Fprintf(out, "  Critical Failures: %d\n", rpt.Summary.CriticalFailures)
	}
	if rpt.Summary.WarningFailures > 0 {
		fmt.Fprintf(out, "  Warnings: %d\n", rpt.Summary.WarningFailures)
	}
	if rpt.Summary.RestoreDuration != "" {
		fmt.Fprintf(out, "  Restore Duration: %s\n", rpt.Summary.RestoreDuration)
	}
	fmt.Fprintln(out)

	if len(rpt.Checks) > 0 {
		fmt.Fprintln(out, "Checks:")
		for _, c := range rpt.Checks {
			status := "✓"
			if !c.Passed {
				status = "✗"
			}
			fmt.Fprintf(out, "  %s [%s] %s: %s\n", status, c.Level, c.Name, c.Message)
		}
		fmt.Fprintln(out)
	}

	if rpt.Signature != "" {
		fmt.Fprintf(out, "Signature: %s...\n", rpt.Signature[:min(32, len(rpt.Signature))])
	} else {
		fmt.Fprintln(out, "Signature: (not signed)")
	}
}

// findReport resolves id by exact match, unique prefix or file name.
func findReport(dir string, id string) (*report.Report, string, error) {
	reports, err := report.ListReports(dir)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list reports: %w", err)
	}

	var matches []*report.ReportSummary
	for _, r := range reports {
		if r.ID == id {
			rpt, err := report.LoadReport(r.Path)
			return rpt, r.Path, err
		}
		if strings.HasPrefix(r.ID, id) {
			matches = append(matches, r)
		}
	}

	switch len(matches) {
	case 0:
		files, _ := filepath.Glob(filepath.Join(dir, "*"+id+"*.json"))
		if len(files) == 1 {
			rpt, err := report.LoadReport(files[0])
			return rpt, files[0], err
		}
		return nil, "", fmt.Errorf("report not found: %s", id)
	case 1:
		rpt, err := report.LoadReport(matches[0].Path)
		return rpt, matches[0].Path, err
	default:
		return nil, "", fmt.Errorf("ambiguous report ID %q matches %d reports", id, len(matches))
	}
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportListCmd)
	reportCmd.AddCommand(reportShowCmd)
	reportCmd.AddCommand(reportVerifyCmd)

	reportShowCmd.Flags().Bool("json", false, "Output report as JSON")
}
