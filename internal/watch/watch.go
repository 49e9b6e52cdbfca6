// Package watch implements the fsnotify-driven daemon mode SPEC_FULL.md
// §5/§6 describes: a long-lived goroutine that scans binaries dropped
// into a directory, sharing the same *pipeline.Pipeline (and therefore
// the same ConflictResolver and worker pool) as the batch CLI path. There
// is no fsnotify usage anywhere in the teacher repo to generalize from
// (its testfsnotify/ submodule is an empty placeholder), so this package
// is grounded on the teacher's cmd/schema-registry/main.go shutdown-signal
// idiom instead: a select over a done channel and a context, closed on
// SIGINT/SIGTERM, with the fsnotify event loop itself built directly
// against the fsnotify.Watcher API.
package watch

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/protosalvage/protosalvage/internal/conflict"
	"github.com/protosalvage/protosalvage/internal/detect"
	"github.com/protosalvage/protosalvage/internal/metricsd"
	"github.com/protosalvage/protosalvage/internal/pipeline"
)

// Options configures the daemon.
type Options struct {
	Dir      string
	Debounce time.Duration
	// Metrics, if non-nil, is updated with each watched file's resolver
	// counters as it's processed.
	Metrics *metricsd.Metrics
}

// Run watches opts.Dir for created or written files, admits each one
// through internal/detect, and feeds admitted paths to p one at a time.
// It blocks until ctx is cancelled, at which point it stops watching and
// returns nil; it never returns on its own otherwise.
func Run(ctx context.Context, opts Options, p *pipeline.Pipeline, log *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(opts.Dir); err != nil {
		return err
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	pending := map[string]*time.Timer{}
	ready := make(chan string, 64)
	// p's ConflictResolver accumulates totals across every call to
	// p.Run, so Observe must be fed the delta since the last watched
	// file, not the running snapshot, or the exported counters would
	// multiply with every additional file processed.
	var last conflict.Counters

	for {
		select {
		case <-ctx.Done():
			for _, t := range pending {
				t.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			path := event.Name
			if t, exists := pending[path]; exists {
				t.Stop()
			}
			pending[path] = time.AfterFunc(debounce, func() {
				ready <- path
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("fsnotify error", "error", err)

		case path := <-ready:
			delete(pending, path)
			ok, reason := detect.Admit(path)
			if !ok {
				log.Debug("rejected watched file", "path", path, "reason", reason)
				continue
			}
			log.Info("scanning watched file", "path", path)
			summary, err := p.Run(ctx, []string{path})
			if err != nil {
				log.Error("pipeline run failed", "path", path, "error", err)
				continue
			}
			if opts.Metrics != nil {
				opts.Metrics.IncBinariesScanned()
				opts.Metrics.Observe(conflict.Counters{
					Found:             summary.Counters.Found - last.Found,
					DuplicatesSkipped: summary.Counters.DuplicatesSkipped - last.DuplicatesSkipped,
					ConflictsRenamed:  summary.Counters.ConflictsRenamed - last.ConflictsRenamed,
					ConflictsSkipped:  summary.Counters.ConflictsSkipped - last.ConflictsSkipped,
					Written:           summary.Counters.Written - last.Written,
				})
				last = summary.Counters
			}
		}
	}
}
