package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"restorable.io/restorable-home/internal/config"
	"restorable.io/restorable-home/internal/initiation"
	"restorable.io/restorable-home/internal/report"
	"restorable.io/restorable-home/internal/storage"
	"restorable.io/restorable-home/internal/volume"
)

// execute runs the command line with fresh flag values and returns its
// output.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	configPath = ""
	verbose = false
	dryRun = false
	require.NoError(t, reportShowCmd.Flags().Set("json", "false"))

	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeBackup(t *testing.T, dir string, archives ...string) {
	t.Helper()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	write(storage.VersionKey, "3\n")
	write(storage.LatestBackupKey, strings.Join(archives, "\n")+"\n")
	write(storage.ExistingFilesKey, "config.xml\n")

	c, err := volume.ZipVolume{}.Create(filepath.Join(dir, "full-1"))
	require.NoError(t, err)
	for name, content := range map[string]string{
		"config.xml":    "<hudson/>",
		"state.version": "3\n",
	} {
		e := &volume.Entry{Name: name, Type: volume.TypeFile, Mode: 0644, Size: int64(len(content))}
		require.NoError(t, c.Add(e, strings.NewReader(content)))
	}
	require.NoError(t, c.Close())
}

// initConfig runs init with answers for a local, unencrypted storage.
func initConfig(t *testing.T, storageType, backupDir string) (string, *config.Config) {
	t.Helper()
	base := t.TempDir()
	cfgPath := filepath.Join(base, "config.yaml")
	target := filepath.Join(base, "state")

	answers := []string{"machine-a", target, "2", "", storageType}
	if storageType == "local" {
		answers = append(answers, backupDir, "no")
	}
	out, err := execute(t, strings.Join(answers, "\n")+"\n", "init", "--config", cfgPath)
	require.NoError(t, err)
	require.Contains(t, out, "Wrote config")

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	return cfgPath, cfg
}

func TestInitWritesConfigAndKeys(t *testing.T) {
	cfgPath, cfg := initConfig(t, "local", "/srv/backups")
	require.Equal(t, "machine-a", cfg.MachineID)
	require.Equal(t, 2, cfg.Restore.Workers)
	require.Equal(t, volume.FormatZip, cfg.Volume.Format)
	require.Equal(t, "/srv/backups", cfg.Storage.Local.Path)
	require.Nil(t, cfg.Encryption)
	require.FileExists(t, cfg.Signing.PrivateKeyPath)
	require.FileExists(t, report.PublicKeyPath(cfg.Signing.PrivateKeyPath))

	_, err := execute(t, "", "init", "--config", cfgPath)
	require.ErrorContains(t, err, "already exists")
}

func TestRestoreAndVerifyReport(t *testing.T) {
	backupDir := t.TempDir()
	writeBackup(t, backupDir, "full-1")
	cfgPath, cfg := initConfig(t, "local", backupDir)

	out, err := execute(t, "", "restore", "--config", cfgPath)
	require.NoError(t, err, out)
	require.Contains(t, out, "Restored 1 archive(s) up to full-1")
	require.Contains(t, out, "All verification checks passed")

	data, err := os.ReadFile(filepath.Join(cfg.Restore.TargetDir, "config.xml"))
	require.NoError(t, err)
	require.Equal(t, "<hudson/>", string(data))

	reports, err := report.ListReports(cfg.Report.Dir)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.True(t, reports[0].Success)

	out, err = execute(t, "", "report", "list", "--config", cfgPath)
	require.NoError(t, err)
	require.Contains(t, out, "restored full-1")

	out, err = execute(t, "", "report", "show", reports[0].ID[:8], "--config", cfgPath)
	require.NoError(t, err)
	require.Contains(t, out, "Outcome: restored 1 archive(s), last full-1")

	out, err = execute(t, "", "report", "verify", reports[0].ID, "--config", cfgPath)
	require.NoError(t, err)
	require.Contains(t, out, "Signature is valid")

	// Tamper with the stored report.
	rpt, err := report.LoadReport(reports[0].Path)
	require.NoError(t, err)
	rpt.Summary.Success = false
	require.NoError(t, os.Remove(reports[0].Path))
	_, err = report.WriteJSON(rpt, cfg.Report.Dir)
	require.NoError(t, err)

	_, err = execute(t, "", "report", "verify", reports[0].ID, "--config", cfgPath)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestRestoreDryRun(t *testing.T) {
	backupDir := t.TempDir()
	writeBackup(t, backupDir, "full-1")
	cfgPath, cfg := initConfig(t, "local", backupDir)

	out, err := execute(t, "", "restore", "--dry-run", "--config", cfgPath)
	require.NoError(t, err)
	require.Contains(t, out, "Storage version: 3")
	require.Contains(t, out, "  full-1")
	require.NoDirExists(t, cfg.Restore.TargetDir)
}

func TestRestoreWithoutStorage(t *testing.T) {
	cfgPath, cfg := initConfig(t, "none", "")

	out, err := execute(t, "", "restore", "--config", cfgPath)
	require.NoError(t, err, out)
	require.Contains(t, out, "New environment initialized")

	m, err := initiation.ReadMarker(cfg.Restore.TargetDir)
	require.NoError(t, err)
	require.True(t, m.Fresh)
}

func TestRestoreFailure(t *testing.T) {
	backupDir := t.TempDir()
	writeBackup(t, backupDir, "full-1", "incr-missing")
	cfgPath, cfg := initConfig(t, "local", backupDir)

	out, err := execute(t, "", "restore", "--config", cfgPath)
	require.ErrorIs(t, err, ErrRestoreFailed)
	require.Contains(t, out, "Restore failed")
	require.Contains(t, err.Error(), "incr-missing")

	reports, err := report.ListReports(cfg.Report.Dir)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.False(t, reports[0].Success)

	rpt, err := report.LoadReport(reports[0].Path)
	require.NoError(t, err)
	require.NotNil(t, rpt.Restore)
	require.Equal(t, rpt.Restore.RunID, rpt.ID)
	require.Equal(t, "3", rpt.Restore.StorageVersion)
	require.Zero(t, rpt.Summary.ArchivesRestored)
}

func TestRestoreWithoutConfig(t *testing.T) {
	_, err := execute(t, "", "restore", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, config.ErrNotFound)
	require.NotErrorIs(t, err, ErrRestoreFailed)
}
