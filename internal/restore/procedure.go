package restore

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"restorable.io/restorable-home/internal/initiation"
	"restorable.io/restorable-home/internal/scope"
	"restorable.io/restorable-home/internal/storage"
	"restorable.io/restorable-home/internal/version"
	"restorable.io/restorable-home/internal/volume"
)

const scratchPattern = "restorable-restore-tmp-*"

// Options configures a Procedure.
type Options struct {
	// Storage may be nil, in which case every restore initializes a new
	// environment.
	Storage  storage.Storage
	Volume   volume.Volume
	Scope    scope.Scope
	Strategy initiation.Strategy

	TargetDir string
	// ScratchDir is the parent of the per-run scratch directory. Empty
	// selects the system temp dir.
	ScratchDir string
	// Overwrite controls whether files that are not tracked by the backup
	// metadata are replaced if they already exist.
	Overwrite bool
	Workers   int
	// VersionFile is the name of the version file below TargetDir.
	VersionFile string
}

// Procedure restores a state directory from storage.
type Procedure struct {
	opts Options
	lg   Logger
}

func NewProcedure(opts Options, lg Logger) *Procedure {
	if opts.VersionFile == "" {
		opts.VersionFile = version.DefaultFileName
	}
	return &Procedure{opts: opts, lg: lg}
}

// Plan is what a restore would do, computed without fetching any volume.
type Plan struct {
	// Fresh is set if a new environment would be initialized.
	Fresh          bool
	DiskVersion    version.Version
	StorageVersion version.Version
	Upgrade        bool
	Decisions      DecisionMap
	Archives       []string
}

// Plan reads the versions and the backup catalog and builds the decision
// map.
func (p *Procedure) Plan(ctx context.Context) (*Plan, error) {
	st := p.opts.Storage
	if st == nil {
		return &Plan{Fresh: true}, nil
	}

	storageVersion, err := st.VersionInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage version: %w", err)
	}
	diskVersion := version.ReadFileSystemVersion(p.opts.TargetDir, p.opts.VersionFile)

	tracked, err := st.ListMetadataForExistingFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked files: %w", err)
	}
	decisions, upgrade := BuildDecisionMap(diskVersion, storageVersion, tracked)

	archives, err := st.FindLatestBackup(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find latest backup: %w", err)
	}

	return &Plan{
		Fresh:          len(archives) == 0,
		DiskVersion:    diskVersion,
		StorageVersion: storageVersion,
		Upgrade:        upgrade,
		Decisions:      decisions,
		Archives:       archives,
	}, nil
}

// PerformRestore restores the latest backup chain into the target
// directory, or initializes a new environment if there is none. Once the
// plan is known a failure still returns the partial result, with Archives
// and LastArchive unset, alongside the error.
func (p *Procedure) PerformRestore(ctx context.Context) (*Result, error) {
	res := &Result{
		RunID:   uuid.NewString(),
		Started: time.Now().UTC(),
	}
	if p.opts.Storage != nil {
		res.StorageID = p.opts.Storage.Identifier()
	}

	plan, err := p.Plan(ctx)
	if err != nil {
		return nil, err
	}
	res.DiskVersion = plan.DiskVersion.String()
	res.StorageVersion = plan.StorageVersion.String()
	res.Upgrade = plan.Upgrade
	res.TrackedFiles = len(plan.Decisions)

	if plan.Fresh {
		if p.opts.Storage == nil {
			p.lg.Infow("No backup storage configured, initializing new environment.", "target", p.opts.TargetDir)
		} else {
			p.lg.Infow("No backup found in storage, initializing new environment.",
				"target", p.opts.TargetDir, "storage", res.StorageID)
		}
		if err := p.opts.Strategy.InitializeNewEnvironment(ctx, p.opts.TargetDir); err != nil {
			res.Duration = time.Since(res.Started)
			return res, fmt.Errorf("failed to initialize new environment: %w", err)
		}
		res.Fresh = true
		res.Duration = time.Since(res.Started)
		return res, nil
	}

	p.lg.Infow("Restoring backup.",
		"target", p.opts.TargetDir,
		"archives", len(plan.Archives),
		"diskVersion", res.DiskVersion,
		"storageVersion", res.StorageVersion,
		"upgrade", plan.Upgrade,
	)

	if err := p.runPipeline(ctx, plan); err != nil {
		res.Duration = time.Since(res.Started)
		return res, err
	}

	last := plan.Archives[len(plan.Archives)-1]
	if err := p.opts.Strategy.InitializeRestoredEnvironment(ctx, p.opts.TargetDir, last); err != nil {
		res.Duration = time.Since(res.Started)
		return res, fmt.Errorf("failed to initialize restored environment: %w", err)
	}

	res.Archives = plan.Archives
	res.LastArchive = last
	res.Duration = time.Since(res.Started)
	p.lg.Infow("Restore complete.", "lastArchive", last, "duration", res.Duration)
	return res, nil
}

// runPipeline runs the pipeline in a fresh scratch directory, which is
// removed afterwards on all paths.
func (p *Procedure) runPipeline(ctx context.Context, plan *Plan) error {
	if p.opts.ScratchDir != "" {
		if err := os.MkdirAll(p.opts.ScratchDir, 0700); err != nil {
			return fmt.Errorf("failed to create scratch root: %w", err)
		}
	}
	scratch, err := os.MkdirTemp(p.opts.ScratchDir, scratchPattern)
	if err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			p.lg.Warnw("Failed to remove scratch directory.", "path", scratch, "err", err)
		}
	}()

	pl := NewPipeline(p.opts.Storage, p.opts.Volume, p.opts.Scope, p.opts.Workers, p.lg)
	return pl.Run(ctx, plan.Archives, plan.Decisions, scratch, p.opts.TargetDir, p.opts.Overwrite)
}
