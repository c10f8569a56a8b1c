package initiation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"restorable.io/restorable-home/internal/config"
)

const defaultHookTimeout = 10 * time.Minute

// Environment variables exported to hook commands.
const (
	EnvTargetDir   = "RESTORABLE_TARGET_DIR"
	EnvLastArchive = "RESTORABLE_LAST_ARCHIVE"
)

// Logger is the subset of the zap sugared logger used by this package.
type Logger interface {
	Infow(msg string, kv ...interface{})
}

// Hooks runs shell commands after the wrapped strategy has initialized the
// state directory. Empty commands are skipped.
type Hooks struct {
	Strategy
	NewEnvironment      string
	RestoredEnvironment string
	Timeout             time.Duration
	lg                  Logger
}

var _ Strategy = &Hooks{}

// NewFromConfig returns the default strategy, wrapped with hooks if any
// are configured.
func NewFromConfig(cfg *config.Hooks, lg Logger) Strategy {
	var s Strategy = Default{}
	if cfg == nil || (cfg.NewEnvironment == "" && cfg.RestoredEnvironment == "") {
		return s
	}
	return &Hooks{
		Strategy:            s,
		NewEnvironment:      cfg.NewEnvironment,
		RestoredEnvironment: cfg.RestoredEnvironment,
		Timeout:             time.Duration(cfg.TimeoutMinutes) * time.Minute,
		lg:                  lg,
	}
}

func (h *Hooks) InitializeNewEnvironment(ctx context.Context, targetDir string) error {
	if err := h.Strategy.InitializeNewEnvironment(ctx, targetDir); err != nil {
		return err
	}
	return h.run(ctx, h.NewEnvironment, targetDir, "")
}

func (h *Hooks) InitializeRestoredEnvironment(ctx context.Context, targetDir, lastArchive string) error {
	if err := h.Strategy.InitializeRestoredEnvironment(ctx, targetDir, lastArchive); err != nil {
		return err
	}
	return h.run(ctx, h.RestoredEnvironment, targetDir, lastArchive)
}

// run executes command with sh -c in targetDir.
func (h *Hooks) run(ctx context.Context, command, targetDir, lastArchive string) error {
	if command == "" {
		return nil
	}
	timeout := h.Timeout
	if timeout == 0 {
		timeout = defaultHookTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = targetDir
	// Background children of the hook may hold the output pipes open.
	cmd.WaitDelay = 5 * time.Second
	cmd.Env = append(os.Environ(),
		EnvTargetDir+"="+targetDir,
		EnvLastArchive+"="+lastArchive,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if h.lg != nil {
		h.lg.Infow("Running initialization hook.", "command", command)
	}
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("hook timed out after %v: %s", timeout, command)
		}
		return fmt.Errorf("hook failed: %w\nstderr: %s", err, stderr.String())
	}
	if h.lg != nil && stdout.Len() > 0 {
		h.lg.Infow("Initialization hook finished.", "command", command, "output", stdout.String())
	}
	return nil
}
