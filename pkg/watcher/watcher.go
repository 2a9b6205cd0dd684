// Package watcher monitors the ingress directory for issue files and
// feeds them to the pipeline. It polls on a fixed interval (fsnotify
// events only wake the loop early) and defends against partially
// written files with a quiet-interval size check plus a staging-rename
// exclusivity check before any file is processed.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/triadworks/triad/pkg/models"
)

// RunFunc executes one pipeline run for an issue that arrived via the
// given ingress file. A non-nil error routes the file to poisoned.
type RunFunc func(ctx context.Context, issue *models.Issue, sourcePath string) error

// Config tunes a watcher instance.
type Config struct {
	IngressDir   string
	ProcessedDir string
	PoisonedDir  string
	StagingDir   string

	// PollInterval is the directory scan period.
	PollInterval time.Duration
	// QuietInterval is how long a file's size must hold steady before
	// it is eligible.
	QuietInterval time.Duration
	// Workers bounds concurrent runs. With one worker, files are
	// processed in ascending modification-time order.
	Workers int
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.QuietInterval <= 0 {
		c.QuietInterval = time.Second
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
}

// sizeSample tracks when a file's size was last seen to change.
type sizeSample struct {
	size  int64
	since time.Time
}

// Watcher is a single ingress-directory monitor. The seen-set and
// size map are local to the instance.
type Watcher struct {
	cfg    Config
	run    RunFunc
	logger *slog.Logger

	mu    sync.Mutex
	seen  map[string]struct{}
	sizes map[string]sizeSample

	slots    chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a watcher. The directories must already exist.
func New(cfg Config, run RunFunc) *Watcher {
	cfg.applyDefaults()
	return &Watcher{
		cfg:    cfg,
		run:    run,
		logger: slog.Default().With("component", "watcher", "ingress", cfg.IngressDir),
		seen:   make(map[string]struct{}),
		sizes:  make(map[string]sizeSample),
		slots:  make(chan struct{}, cfg.Workers),
		stopCh: make(chan struct{}),
	}
}

// Start runs the poll loop until Stop is called or ctx is canceled.
// On shutdown it stops accepting new files and waits for in-flight
// runs to finish; files still in ingress are left for the next
// invocation.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create filesystem watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(w.cfg.IngressDir); err != nil {
		return fmt.Errorf("watch %s: %w", w.cfg.IngressDir, err)
	}

	w.logger.Info("Watcher started",
		"poll_interval", w.cfg.PollInterval,
		"quiet_interval", w.cfg.QuietInterval,
		"workers", w.cfg.Workers)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			w.logger.Info("Watcher stopping, draining in-flight runs")
			w.wg.Wait()
			w.logger.Info("Watcher stopped")
			return nil
		case <-ctx.Done():
			w.Stop()
		case <-ticker.C:
			w.poll(ctx)
		case event := <-fsw.Events:
			// OS events fire on partial writes too; they only make the
			// next inspection happen sooner. The quiet-interval check
			// still gates eligibility.
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) {
				w.poll(ctx)
			}
		case err := <-fsw.Errors:
			if err != nil {
				w.logger.Warn("Filesystem watcher error", "error", err)
			}
		}
	}
}

// Stop signals shutdown. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// poll scans ingress once and dispatches every eligible file that a
// worker slot is free for. Saturation leaves files in ingress; the
// filesystem is the queue.
func (w *Watcher) poll(ctx context.Context) {
	select {
	case <-w.stopCh:
		return
	default:
	}

	candidates, err := w.listCandidates()
	if err != nil {
		w.logger.Warn("Ingress listing failed", "error", err)
		return
	}

	for _, path := range candidates {
		if !w.eligible(path) {
			continue
		}
		select {
		case w.slots <- struct{}{}:
		default:
			// Pool saturated; the file stays in ingress for a later poll.
			return
		}
		if !w.dispatch(ctx, path) {
			<-w.slots
		}
	}
}

// listCandidates returns unseen *.json files sorted by modification
// time ascending.
func (w *Watcher) listCandidates() ([]string, error) {
	entries, err := os.ReadDir(w.cfg.IngressDir)
	if err != nil {
		return nil, fmt.Errorf("read ingress directory: %w", err)
	}

	type candidate struct {
		path  string
		mtime time.Time
	}
	var list []candidate

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(w.cfg.IngressDir, entry.Name())
		if _, ok := w.seen[path]; ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		list = append(list, candidate{path: path, mtime: info.ModTime()})
	}

	sort.Slice(list, func(i, j int) bool { return list[i].mtime.Before(list[j].mtime) })
	paths := make([]string, len(list))
	for i, c := range list {
		paths[i] = c.path
	}
	return paths, nil
}

// eligible applies the quiet-interval size check: the file's size must
// be unchanged for at least QuietInterval across polls. Files that
// vanish are forgotten without a trace.
func (w *Watcher) eligible(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		w.mu.Lock()
		delete(w.sizes, path)
		w.mu.Unlock()
		return false
	}

	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	sample, ok := w.sizes[path]
	if !ok || sample.size != info.Size() {
		w.sizes[path] = sizeSample{size: info.Size(), since: now}
		return false
	}
	return now.Sub(sample.since) >= w.cfg.QuietInterval
}

// dispatch claims the file by renaming it into the staging directory
// (the exclusivity check: a concurrent claimer loses the rename) and
// hands it to a worker goroutine. Returns false when the claim fails.
func (w *Watcher) dispatch(ctx context.Context, path string) bool {
	name := filepath.Base(path)
	stagingPath := filepath.Join(w.cfg.StagingDir, stampedName(name))
	if err := os.Rename(path, stagingPath); err != nil {
		w.logger.Debug("Staging claim failed, leaving file for next poll", "path", path, "error", err)
		return false
	}

	w.mu.Lock()
	w.seen[path] = struct{}{}
	delete(w.sizes, path)
	w.mu.Unlock()
	w.logger.Info("Ingress file claimed", "path", path)

	// Shutdown must drain claimed files, so the run outlives the poll
	// loop's cancellation.
	runCtx := context.WithoutCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.slots }()
		w.process(runCtx, path, stagingPath, name)
	}()
	return true
}

// process parses the staged file, runs the pipeline, and relocates the
// file to processed or poisoned. The seen-set entry is dropped only
// after the relocation succeeds.
func (w *Watcher) process(ctx context.Context, ingressPath, stagingPath, name string) {
	data, err := os.ReadFile(stagingPath)
	if err != nil {
		w.logger.Error("Staged file unreadable", "path", stagingPath, "error", err)
		w.relocate(ingressPath, stagingPath, w.cfg.PoisonedDir, name)
		return
	}

	issue, err := models.ParseIssue(data)
	if err != nil {
		w.logger.Warn("Ingress file failed issue validation, poisoning",
			"path", ingressPath, "error", err)
		w.relocate(ingressPath, stagingPath, w.cfg.PoisonedDir, name)
		return
	}

	if err := w.run(ctx, issue, ingressPath); err != nil {
		w.logger.Error("Run errored, poisoning ingress file",
			"path", ingressPath, "issue_id", issue.IssueID, "error", err)
		w.relocate(ingressPath, stagingPath, w.cfg.PoisonedDir, name)
		return
	}

	w.logger.Info("Ingress file processed", "path", ingressPath, "issue_id", issue.IssueID)
	w.relocate(ingressPath, stagingPath, w.cfg.ProcessedDir, name)
}

// relocate moves the staged file into its terminal directory with the
// timestamp prefix, then releases the seen-set entry.
func (w *Watcher) relocate(ingressPath, stagingPath, destDir, name string) {
	dest := filepath.Join(destDir, stampedName(name))
	if err := os.Rename(stagingPath, dest); err != nil {
		// The file stays in staging and the path stays seen, so it is
		// never re-processed; operators resolve manually.
		w.logger.Error("Relocation failed", "from", stagingPath, "to", dest, "error", err)
		return
	}
	w.logger.Info("Ingress file relocated", "from", ingressPath, "to", dest)

	w.mu.Lock()
	delete(w.seen, ingressPath)
	w.mu.Unlock()
}

func stampedName(name string) string {
	return time.Now().UTC().Format("20060102150405") + "_" + name
}
