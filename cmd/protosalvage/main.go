// Package main is the entry point for the protosalvage CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/protosalvage/protosalvage/internal/config"
	"github.com/protosalvage/protosalvage/internal/conflict"
	"github.com/protosalvage/protosalvage/internal/detect"
	"github.com/protosalvage/protosalvage/internal/metricsd"
	"github.com/protosalvage/protosalvage/internal/obslog"
	"github.com/protosalvage/protosalvage/internal/perr"
	"github.com/protosalvage/protosalvage/internal/pipeline"
	"github.com/protosalvage/protosalvage/internal/scanner"
	"github.com/protosalvage/protosalvage/internal/watch"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// flags shared by the scan and watch commands. Explicit flags always win
// over a loaded config file, which in turn wins over config.DefaultConfig.
type sharedFlags struct {
	configPath       string
	outputDir        string
	force            bool
	conflictStrategy string
	verify           bool
	jobs             int
	verbosity        int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func newRootCmd() *cobra.Command {
	flags := &sharedFlags{}
	sf := &scanFlags{}

	root := &cobra.Command{
		Use:   "protosalvage",
		Short: "Recover .proto schemas embedded in compiled binaries",
		Long: `protosalvage scans one or more binaries for embedded FileDescriptorProto
payloads, reconstructs readable .proto source from each one found, and
writes the result to an output directory, resolving filename collisions
across binaries as it goes.

Invoking protosalvage with no subcommand runs a scan, so "protosalvage -f
app.bin" and "protosalvage scan -f app.bin" are equivalent.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), cmd, flags, sf)
		},
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to a YAML configuration file")
	root.PersistentFlags().StringVarP(&flags.outputDir, "output", "o", "", "output directory for reconstructed .proto files (default \".\")")
	root.PersistentFlags().BoolVar(&flags.force, "force", false, "overwrite existing output files")
	root.PersistentFlags().StringVar(&flags.conflictStrategy, "conflict-strategy", "", "hash-suffix, source-suffix, or skip-conflicts (default hash-suffix)")
	root.PersistentFlags().BoolVar(&flags.verify, "verify", false, "round-trip each reconstructed file through a compiler before writing it")
	root.PersistentFlags().IntVar(&flags.jobs, "jobs", 0, "number of binaries to process concurrently (default GOMAXPROCS)")
	root.PersistentFlags().CountVarP(&flags.verbosity, "verbose", "v", "increase log verbosity (repeatable)")
	registerScanFlags(root, sf)

	root.AddCommand(newScanCmd(flags))
	root.AddCommand(newWatchCmd(flags))
	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("protosalvage %s (commit: %s, built: %s)\n", version, commit, buildDate)
		},
	}
}

// scanFlags holds the flags specific to the scan command (also the root
// command's implicit default action, since a dropped binary into the CLI
// is almost always "go find the schemas in this").
type scanFlags struct {
	file           string
	dir            string
	maxDescriptors int
	dryRun         bool
	listOnly       bool
	format         string
}

func newScanCmd(shared *sharedFlags) *cobra.Command {
	sf := &scanFlags{}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan one file or a directory of binaries for embedded descriptors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), cmd, shared, sf)
		},
	}
	registerScanFlags(cmd, sf)
	return cmd
}

func registerScanFlags(cmd *cobra.Command, sf *scanFlags) {
	cmd.Flags().StringVarP(&sf.file, "file", "f", "", "scan a single binary")
	cmd.Flags().StringVarP(&sf.dir, "dir", "d", "", "scan every admitted file in a directory")
	cmd.Flags().IntVar(&sf.maxDescriptors, "max-descriptors", 0, "stop after this many descriptors per binary (0 means unlimited)")
	cmd.Flags().BoolVar(&sf.dryRun, "dry-run", false, "report what would be written without writing it")
	cmd.Flags().BoolVar(&sf.listOnly, "list-only", false, "print each candidate descriptor instead of writing files")
	cmd.Flags().StringVar(&sf.format, "format", "", "proto or filename; governs --list-only/--dry-run output (default proto)")
}

func newWatchCmd(shared *sharedFlags) *cobra.Command {
	var metricsAddr string
	var syslogAddr string
	var debounceMS int

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Watch a directory and scan binaries as they appear",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), cmd, shared, args[0], metricsAddr, syslogAddr, debounceMS)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve /metrics and /healthz on (empty disables)")
	cmd.Flags().StringVar(&syslogAddr, "syslog", "", "syslog server address for log forwarding (host:port)")
	cmd.Flags().IntVar(&debounceMS, "debounce", 0, "milliseconds to wait after a file event before scanning it (default 250)")
	return cmd
}

// loadEffectiveConfig loads the config file (if any), then overlays the
// flags the caller actually set, since cobra always reports its defaults
// as "set" unless the caller checks Changed.
func loadEffectiveConfig(cmd *cobra.Command, shared *sharedFlags) (*config.Config, error) {
	cfg, err := config.Load(shared.configPath)
	if err != nil {
		return nil, perr.ConfigErrorf("%w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Scan.OutputDir = shared.outputDir
	}
	if flags.Changed("force") {
		cfg.Scan.Force = shared.force
	}
	if flags.Changed("conflict-strategy") {
		cfg.Conflict.Strategy = shared.conflictStrategy
	}
	if flags.Changed("verify") {
		cfg.Verify.Enabled = shared.verify
	}
	if flags.Changed("jobs") {
		cfg.Scan.Jobs = shared.jobs
	}
	if shared.verbosity > 0 {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, perr.ConfigErrorf("%w", err)
	}
	return cfg, nil
}

func runScan(ctx context.Context, cmd *cobra.Command, shared *sharedFlags, sf *scanFlags) error {
	cfg, err := loadEffectiveConfig(cmd, shared)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("list-only") {
		cfg.Scan.ListOnly = sf.listOnly
	}
	if cmd.Flags().Changed("dry-run") {
		cfg.Scan.DryRun = sf.dryRun
	}
	if cmd.Flags().Changed("max-descriptors") {
		cfg.Scan.MaxDescriptors = sf.maxDescriptors
	}
	if cmd.Flags().Changed("format") {
		cfg.Scan.Format = sf.format
	}
	if err := cfg.Validate(); err != nil {
		return perr.ConfigErrorf("%w", err)
	}

	log, closer, err := obslog.New(cfg.Logging)
	if err != nil {
		return perr.IOErrorf("%w", err)
	}
	defer closer.Close()

	if (sf.file == "") == (sf.dir == "") {
		return perr.ConfigErrorf("exactly one of --file or --dir must be given")
	}

	var paths []string
	if sf.file != "" {
		paths = []string{sf.file}
	} else {
		paths, err = admittedFiles(sf.dir)
		if err != nil {
			return perr.IOErrorf("%w", err)
		}
		if len(paths) == 0 {
			fmt.Fprintln(os.Stderr, "no candidate binaries found")
			os.Exit(2)
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(pipeline.Options{
		OutputDir:        cfg.Scan.OutputDir,
		Force:            cfg.Scan.Force,
		DryRun:           cfg.Scan.DryRun,
		ListOnly:         cfg.Scan.ListOnly,
		ScannerOptions:   scanner.Options{MaxDescriptors: cfg.Scan.MaxDescriptors},
		ConflictStrategy: conflict.Strategy(cfg.Conflict.Strategy),
		Verify:           cfg.Verify.Enabled,
		Jobs:             cfg.Scan.Jobs,
	}, log)

	summary, err := p.Run(ctx, paths)
	if err != nil {
		return perr.IOErrorf("%w", err)
	}

	for _, w := range summary.Warnings {
		log.Warn(w.Error())
	}

	if cfg.Scan.ListOnly || cfg.Scan.DryRun {
		for _, item := range summary.Listed {
			if cfg.Scan.Format == "filename" {
				fmt.Println(item.CanonicalFilename)
			} else {
				fmt.Println(item.Rendered)
			}
		}
	}

	printSummary(summary.Counters, conflict.Strategy(cfg.Conflict.Strategy))
	return nil
}

func printSummary(c conflict.Counters, strategy conflict.Strategy) {
	fmt.Printf("Summary: %d found, %d duplicates skipped, %d conflicts renamed, %d written\n",
		c.Found, c.DuplicatesSkipped, c.ConflictsRenamed, c.Written)
	if strategy == conflict.StrategySkipConflicts && c.ConflictsSkipped > 0 {
		fmt.Printf("  (%d conflicts skipped under skip-conflicts strategy)\n", c.ConflictsSkipped)
	}
}

// admittedFiles walks dir (non-recursively, matching spec.md §6's
// directory-scan mode) and returns every entry detect.Admit accepts.
func admittedFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		full := filepath.Join(dir, e.Name())
		if ok, _ := detect.Admit(full); ok {
			out = append(out, full)
		}
	}
	return out, nil
}

func runWatch(ctx context.Context, cmd *cobra.Command, shared *sharedFlags, dir, metricsAddr, syslogAddr string, debounceMS int) error {
	cfg, err := loadEffectiveConfig(cmd, shared)
	if err != nil {
		return err
	}
	if metricsAddr != "" {
		cfg.Metrics.Address = metricsAddr
	}
	if syslogAddr != "" {
		cfg.Logging.SyslogAddr = syslogAddr
	}
	if debounceMS > 0 {
		cfg.Watch.Debounce = debounceMS
	}

	log, closer, err := obslog.New(cfg.Logging)
	if err != nil {
		return perr.IOErrorf("%w", err)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(pipeline.Options{
		OutputDir:        cfg.Scan.OutputDir,
		Force:            cfg.Scan.Force,
		ConflictStrategy: conflict.Strategy(cfg.Conflict.Strategy),
		Verify:           cfg.Verify.Enabled,
		Jobs:             cfg.Scan.Jobs,
	}, log)

	var m *metricsd.Metrics
	if cfg.Metrics.Address != "" {
		m = metricsd.New()
		go func() {
			if err := metricsd.Serve(ctx, cfg.Metrics.Address, m); err != nil {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	log.Info("watching directory", "dir", dir)
	return watch.Run(ctx, watch.Options{
		Dir:      dir,
		Debounce: time.Duration(cfg.Watch.Debounce) * time.Millisecond,
		Metrics:  m,
	}, p, log)
}

// exitCodeFor maps a top-level error to spec.md §6's exit code contract:
// 1 for argument/configuration/I-O errors, 0 otherwise. Exit code 2 (no
// candidate binaries) is raised directly via os.Exit in runScan since it
// isn't an error condition cobra needs to see.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintln(os.Stderr, "protosalvage:", err)
	return 1
}
