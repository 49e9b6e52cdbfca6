// Package pipeline wires scan -> decode -> reconstruct -> (optional
// verify) -> resolve into the per-binary pipeline spec.md §5 describes,
// and runs one such pipeline per input binary on a bounded worker pool.
// The only state shared across pipelines is the *conflict.Resolver;
// everything else is binary-local, so golang.org/x/sync/errgroup (already
// pulled in transitively by this module's other dependencies) is used
// directly here for the first time, with SetLimit bounding concurrency
// the way spec.md §5's "conforming implementation may run per-binary
// pipelines on a worker pool" calls for.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/protosalvage/protosalvage/internal/conflict"
	"github.com/protosalvage/protosalvage/internal/decode"
	"github.com/protosalvage/protosalvage/internal/perr"
	"github.com/protosalvage/protosalvage/internal/reconstruct"
	"github.com/protosalvage/protosalvage/internal/scanner"
	"github.com/protosalvage/protosalvage/internal/verify"
)

// Options configures a run across one or more binaries.
type Options struct {
	OutputDir        string
	Force            bool
	DryRun           bool
	ListOnly         bool
	ScannerOptions   scanner.Options
	ConflictStrategy conflict.Strategy
	Verify           bool
	Jobs             int // 0 means runtime.GOMAXPROCS(0)
}

// ListedArtifact is one descriptor's result when ListOnly or DryRun
// suppresses the actual write, carrying enough for the CLI to honor
// either --format value (proto prints Rendered, filename prints
// CanonicalFilename).
type ListedArtifact struct {
	CanonicalFilename string
	Rendered          string
}

// Summary is the aggregate, run-wide result spec.md §6's "Summary line"
// reports.
type Summary struct {
	RunID    string
	Counters conflict.Counters
	Warnings []*perr.Warning
	Listed   []ListedArtifact
}

// Pipeline runs the scan/decode/reconstruct/resolve sequence over a set of
// binaries, serializing all ConflictResolver access behind its own mutex.
type Pipeline struct {
	opts     Options
	resolver *conflict.Resolver
	log      *slog.Logger

	mu       sync.Mutex
	warnings []*perr.Warning
	listed   []ListedArtifact
}

// New creates a Pipeline. log may be nil, in which case slog.Default() is
// used.
func New(opts Options, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		opts:     opts,
		resolver: conflict.New(opts.ConflictStrategy),
		log:      log,
	}
}

// Run processes every path in paths, respecting ctx cancellation at
// binary granularity (spec.md §5): a scan in progress always runs to
// completion, but the pool will not start a new binary once ctx is done.
func (p *Pipeline) Run(ctx context.Context, paths []string) (Summary, error) {
	runID := uuid.NewString()
	log := p.log.With("run_id", runID)

	g, gctx := errgroup.WithContext(ctx)
	jobs := p.opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(jobs)

	for _, path := range paths {
		path := path
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			p.processBinary(gctx, path, log)
			return nil
		})
	}
	_ = g.Wait() // per-binary errors are recorded as warnings, never fatal

	p.mu.Lock()
	warnings := append([]*perr.Warning(nil), p.warnings...)
	listed := append([]ListedArtifact(nil), p.listed...)
	p.mu.Unlock()

	return Summary{
		RunID:    runID,
		Counters: p.resolver.Counters(),
		Warnings: warnings,
		Listed:   listed,
	}, nil
}

func (p *Pipeline) recordWarning(w *perr.Warning) {
	p.mu.Lock()
	p.warnings = append(p.warnings, w)
	p.mu.Unlock()
}

func (p *Pipeline) recordListed(a ListedArtifact) {
	p.mu.Lock()
	p.listed = append(p.listed, a)
	p.mu.Unlock()
}

// processBinary runs the full scan->decode->reconstruct->resolve sequence
// for a single file. It never returns an error for per-descriptor
// problems (spec.md §7 policy): those become warnings. A read failure is
// fatal for this binary only.
func (p *Pipeline) processBinary(ctx context.Context, path string, log *slog.Logger) {
	data, err := os.ReadFile(path)
	if err != nil {
		p.recordWarning(perr.NewWarning(perr.ErrIO, path, "", 0, err))
		return
	}

	hits := scanner.Scan(data, p.opts.ScannerOptions)
	log.Debug("scanned binary", "path", path, "descriptors", len(hits))

	for _, hit := range hits {
		p.processHit(path, data[hit.Start:hit.End], log)
	}
}

func (p *Pipeline) processHit(binaryPath string, raw []byte, log *slog.Logger) {
	model, err := decode.Decode(raw)
	if err != nil {
		p.recordWarning(perr.NewWarning(warningKind(err), binaryPath, "", 0, err))
		return
	}

	rendered, err := reconstruct.Render(model)
	if err != nil {
		p.recordWarning(perr.NewWarning(perr.ErrInvalidSchema, binaryPath, model.Name, 0, err))
		return
	}

	if p.opts.Verify {
		if err := verify.Verify(context.Background(), model, rendered); err != nil {
			p.recordWarning(perr.NewWarning(perr.ErrVerifyMismatch, binaryPath, model.Name, 0, err))
		}
	}

	if p.opts.ListOnly || p.opts.DryRun {
		p.recordListed(ListedArtifact{CanonicalFilename: model.Name, Rendered: rendered})
		return
	}

	decision := p.resolver.Resolve(conflict.Artifact{
		CanonicalFilename: model.Name,
		Content:           []byte(rendered),
		SourceBinaryPath:  binaryPath,
	})
	if decision.Action != "write" {
		return
	}

	if err := p.writeOutput(decision.OutputFilename, rendered); err != nil {
		p.recordWarning(perr.NewWarning(perr.ErrIO, binaryPath, decision.OutputFilename, 0, err))
	}
}

// warningKind returns the sentinel kind already wrapped into err by decode
// (ErrDecodeFailure or ErrInvalidSchema), falling back to ErrInvalidSchema
// for anything unrecognized.
func warningKind(err error) error {
	if errors.Is(err, perr.ErrDecodeFailure) {
		return perr.ErrDecodeFailure
	}
	return perr.ErrInvalidSchema
}

func (p *Pipeline) writeOutput(relName, content string) error {
	full := filepath.Join(p.opts.OutputDir, filepath.FromSlash(relName))
	if !p.opts.Force {
		if _, err := os.Stat(full); err == nil {
			return fmt.Errorf("%w: %s already exists", perr.ErrIO, full)
		}
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	f, err := os.Create(full)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(content)
	return err
}
