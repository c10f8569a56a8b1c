package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"restorable.io/restorable-home/internal/config"
	"restorable.io/restorable-home/internal/report"
	versionpkg "restorable.io/restorable-home/internal/version"
	"restorable.io/restorable-home/internal/volume"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap config and keys",
	Long: `Creates a config file and a new Ed25519 keypair for signing restore
reports.

Without --config, the files are placed in '~/.restorable-home'.  The command
prompts for the state directory and the backup storage to get you started.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Bootstrapping restorable-home...")

		path := configPath
		if path == "" {
			p, err := config.DefaultPath()
			if err != nil {
				return err
			}
			path = p
		}
		baseDir := filepath.Dir(path)

		if err := os.MkdirAll(filepath.Join(baseDir, "keys"), 0755); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", baseDir, err)
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("a config file already exists at %s", path)
		}

		p := &prompter{r: bufio.NewReader(cmd.InOrStdin()), w: out}
		cfg, err := promptConfig(p, baseDir)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		pubKey, privKey, err := report.GenerateKeyPair()
		if err != nil {
			return fmt.Errorf("failed to generate signing key pair: %w", err)
		}

		yamlData, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
		if err := os.WriteFile(path, yamlData, 0644); err != nil {
			return fmt.Errorf("failed to write config file: %w", err)
		}
		fmt.Fprintf(out, "✓ Wrote config to %s\n", path)

		if err := report.WriteKeyPair(cfg.Signing.PrivateKeyPath, pubKey, privKey); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Wrote signing keys to %s and %s\n",
			cfg.Signing.PrivateKeyPath, report.PublicKeyPath(cfg.Signing.PrivateKeyPath))
		fmt.Fprintln(out, "\nInitialized. Please review config.yaml and provide secrets via environment variables.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func promptConfig(p *prompter, baseDir string) (*config.Config, error) {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "restorable-home-01"
	}
	machineID, err := p.withDefault("Machine ID", hostname)
	if err != nil {
		return nil, err
	}
	targetDir, err := p.withDefault("State directory to restore", "/var/lib/jenkins")
	if err != nil {
		return nil, err
	}
	workers, err := p.intWithDefault("Parallel downloads (0 = number of CPUs)", 0)
	if err != nil {
		return nil, err
	}
	format, err := p.withDefault("Backup volume format (zip/tar.zst/tar.gz)", volume.FormatZip)
	if err != nil {
		return nil, err
	}

	cfg := &config.Config{
		Version:   1,
		MachineID: machineID,
		Restore: config.Restore{
			TargetDir:   targetDir,
			Workers:     workers,
			VersionFile: versionpkg.DefaultFileName,
		},
		Volume: config.Volume{Format: format},
		Hooks:  config.Hooks{TimeoutMinutes: 10},
		Report: config.Report{
			Enabled: true,
			Dir:     filepath.Join(baseDir, "reports"),
		},
		Signing: config.Signing{
			PrivateKeyPath: filepath.Join(baseDir, "keys", "signing.key"),
		},
		Logging: config.Logging{Level: "info"},
	}

	storageType, err := p.withDefault("Backup storage type (none/local/s3)", "local")
	if err != nil {
		return nil, err
	}
	cfg.Storage.Type = storageType
	switch storageType {
	case "none":
		return cfg, nil
	case "local":
		path, err := p.str("Path to backup directory")
		if err != nil {
			return nil, err
		}
		cfg.Storage.Local = &config.Local{Path: path}
	case "s3":
		bucket, err := p.withDefault("S3 bucket", "restorable-backups")
		if err != nil {
			return nil, err
		}
		endpoint, err := p.str("S3 endpoint (optional)")
		if err != nil {
			return nil, err
		}
		prefix, err := p.str("S3 key prefix (optional)")
		if err != nil {
			return nil, err
		}
		cfg.Storage.S3 = &config.S3{
			Endpoint:     endpoint,
			Bucket:       bucket,
			Region:       "eu-central-1",
			AccessKeyEnv: "RESTORABLE_S3_KEY",
			SecretKeyEnv: "RESTORABLE_S3_SECRET",
			Prefix:       prefix,
		}
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
	cfg.Storage.Retry.MaxElapsedSeconds = 300

	useEncryption, err := p.withDefault("Are the backups encrypted? (yes/no)", "yes")
	if err != nil {
		return nil, err
	}
	if strings.ToLower(useEncryption) == "yes" {
		keyPath, err := p.withDefault("Path to age identity file", filepath.Join(baseDir, "keys", "backup.key"))
		if err != nil {
			return nil, err
		}
		cfg.Encryption = &config.Encryption{
			Method:         "age",
			PrivateKeyPath: keyPath,
		}
	}
	return cfg, nil
}

// prompter reads answers line by line.
type prompter struct {
	r *bufio.Reader
	w io.Writer
}

// str asks the user for input without a default value.
func (p *prompter) str(label string) (string, error) {
	fmt.Fprintf(p.w, "%s: ", label)
	return p.readLine()
}

// withDefault asks the user for input, providing a default if input is empty.
func (p *prompter) withDefault(label, defaultValue string) (string, error) {
	fmt.Fprintf(p.w, "%s (%s): ", label, defaultValue)
	input, err := p.readLine()
	if err != nil {
		return "", err
	}
	if input == "" {
		return defaultValue, nil
	}
	return input, nil
}

// intWithDefault is a convenience wrapper for integer prompts.
func (p *prompter) intWithDefault(label string, defaultValue int) (int, error) {
	valStr, err := p.withDefault(label, strconv.Itoa(defaultValue))
	if err != nil {
		return 0, err
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, fmt.Errorf("invalid number provided: %q", valStr)
	}
	return val, nil
}

// readLine accepts a final line without newline.
func (p *prompter) readLine() (string, error) {
	input, err := p.r.ReadString('\n')
	if err != nil && !(err == io.EOF && input != "") {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
