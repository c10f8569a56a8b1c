package restore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
	"restorable.io/restorable-home/internal/scope"
	"restorable.io/restorable-home/internal/storage"
	"restorable.io/restorable-home/internal/volume"
)

// ErrPanic wraps a panic recovered while restoring a volume.
var ErrPanic = errors.New("panic while restoring backup volume")

// Pipeline fetches the volumes of a backup chain in parallel and extracts
// them one after the other in chain order.
type Pipeline struct {
	storage storage.Storage
	volume  volume.Volume
	scope   scope.Scope
	workers int
	lg      Logger
}

// NewPipeline creates a pipeline. workers bounds the number of concurrent
// fetches; zero selects the number of CPUs.
func NewPipeline(s storage.Storage, v volume.Volume, sc scope.Scope, workers int, lg Logger) *Pipeline {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pipeline{storage: s, volume: v, scope: sc, workers: workers, lg: lg}
}

// extraction holds the parameters shared by all tasks of one run. It is
// read-only while the run is in progress.
type extraction struct {
	decisions DecisionMap
	targetDir string
	overwrite bool
}

// task fetches and extracts one volume. done is closed when the task has
// reached its terminal state; err is safe to read after that.
type task struct {
	archive string
	path    string
	prev    *task
	done    chan struct{}
	err     error
}

// Run restores archives into targetDir, using scratchDir for the fetched
// volumes. Extraction of archive i starts only after archive i-1 has been
// extracted. The first failure in chain order stops all later extractions
// and is returned; later failures are dropped.
func (p *Pipeline) Run(
	ctx context.Context, archives []string, decisions DecisionMap,
	scratchDir, targetDir string, overwrite bool,
) error {
	if len(archives) == 0 {
		return nil
	}
	x := &extraction{decisions: decisions, targetDir: targetDir, overwrite: overwrite}

	tasks := make([]*task, len(archives))
	var prev *task
	for i, id := range archives {
		tasks[i] = &task{
			archive: id,
			path:    filepath.Join(scratchDir, scratchName(i, id)),
			prev:    prev,
			done:    make(chan struct{}),
		}
		prev = tasks[i]
	}

	p.lg.Debugw("Loading backup volumes from storage.", "count", len(tasks))

	// Go blocks while the pool is full. Tasks only ever wait for earlier
	// tasks, which have already been started, so the pool cannot deadlock.
	var g errgroup.Group
	g.SetLimit(p.workers)
	last := tasks[len(tasks)-1]
	for _, t := range tasks[:len(tasks)-1] {
		g.Go(func() error {
			p.exec(ctx, t, x)
			return nil
		})
	}
	// The last task runs here and transitively waits for the whole chain.
	p.exec(ctx, last, x)
	_ = g.Wait()

	return last.err
}

func (p *Pipeline) exec(ctx context.Context, t *task, x *extraction) {
	defer close(t.done)
	defer func() {
		if r := recover(); r != nil {
			t.err = fmt.Errorf("%w %s: %v", ErrPanic, t.archive, r)
		}
	}()
	defer p.removeScratch(t.path)

	t.err = p.fetchExtract(ctx, t, x)
}

func (p *Pipeline) fetchExtract(ctx context.Context, t *task, x *extraction) error {
	p.lg.Debugw("Fetching backup volume.", "archive", t.archive, "path", t.path)
	errFetch := p.storage.LoadFile(ctx, t.archive, t.path)
	if errFetch != nil {
		errFetch = fmt.Errorf("fetch backup %s: %w", t.archive, errFetch)
	}

	// The previous volume must be extracted before this one. Waiting also
	// after a failed fetch makes the earliest failure in the chain win.
	if t.prev != nil {
		p.lg.Debugw("Waiting for previous volume.", "archive", t.archive, "previous", t.prev.archive)
		<-t.prev.done
		if t.prev.err != nil {
			return t.prev.err
		}
	}
	if errFetch != nil {
		return errFetch
	}

	p.lg.Debugw("Extracting backup volume.", "archive", t.archive)
	return p.extract(t, x)
}

func (p *Pipeline) extract(t *task, x *extraction) (err error) {
	ex, err := p.volume.Extract(t.path)
	if err != nil {
		return fmt.Errorf("extract backup %s: %w", t.archive, err)
	}
	defer func() {
		if errClose := ex.Close(); errClose != nil && err == nil {
			err = fmt.Errorf("close backup %s: %w", t.archive, errClose)
		}
	}()

	if err := p.scope.ExtractFiles(x.targetDir, ex, x.overwrite, x.decisions); err != nil {
		return fmt.Errorf("extract backup %s: %w", t.archive, err)
	}
	return nil
}

func (p *Pipeline) removeScratch(path string) {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		p.lg.Debugw("Failed to remove scratch volume.", "path", path, "err", err)
	}
}

// scratchName derives a unique local file name for the i-th archive.
func scratchName(i int, id string) string {
	base := path.Base(strings.ReplaceAll(id, "\\", "/"))
	switch base {
	case ".", "..", "/":
		base = "volume"
	}
	return fmt.Sprintf("%04d-%s", i, base)
}
