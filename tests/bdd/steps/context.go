//go:build bdd

// Package steps holds godog step definitions shared across the scan
// feature suite, grounded on the teacher's tests/bdd/steps.TestContext
// pattern of one struct carrying scenario-scoped state into every step.
package steps

import (
	"context"
	"os"
	"path/filepath"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/protosalvage/protosalvage/internal/conflict"
	"github.com/protosalvage/protosalvage/internal/pipeline"
	"github.com/protosalvage/protosalvage/internal/scanner"
)

// TestContext carries one scenario's working directory, the binaries it
// builds, and the pipeline summary produced by the most recent scan.
type TestContext struct {
	Dir     string
	OutDir  string
	Paths   []string
	Summary pipeline.Summary

	// lastName is the most recently asserted-written output filename,
	// set by the "a file named ... should be written" step so later
	// "the written file should contain/begin with ..." steps in the
	// same scenario know which file to re-read.
	lastName string
}

// NewTestContext creates a TestContext rooted at dir (a fresh
// *testing.T.TempDir equivalent the caller is responsible for creating).
func NewTestContext(dir string) *TestContext {
	return &TestContext{
		Dir:    dir,
		OutDir: filepath.Join(dir, "out"),
	}
}

// AddBinary marshals descriptors into name and writes the result to dir,
// padded with junk bytes on either side the way a real binary's rodata
// surrounds an embedded descriptor.
func (tc *TestContext) AddBinary(name string, descriptors ...*descriptorpb.FileDescriptorProto) (string, error) {
	var buf []byte
	buf = append(buf, []byte("\x7fELF junk header padding")...)
	for _, fdp := range descriptors {
		raw, err := proto.Marshal(fdp)
		if err != nil {
			return "", err
		}
		buf = append(buf, raw...)
		buf = append(buf, []byte("gapgapgap")...)
	}

	path := filepath.Join(tc.Dir, name)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return "", err
	}
	tc.Paths = append(tc.Paths, path)
	return path, nil
}

// Scan runs the pipeline over every path added so far with strategy (a
// zero value means hash-suffix).
func (tc *TestContext) Scan(strategy conflict.Strategy) error {
	p := pipeline.New(pipeline.Options{
		OutputDir:        tc.OutDir,
		ScannerOptions:   scanner.Options{},
		ConflictStrategy: strategy,
		Jobs:             2,
	}, nil)

	summary, err := p.Run(context.Background(), tc.Paths)
	if err != nil {
		return err
	}
	tc.Summary = summary
	return nil
}

// WrittenFile reads name back from the output directory.
func (tc *TestContext) WrittenFile(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(tc.OutDir, name))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// HasRenamedSibling reports whether the output directory contains any
// file matching stem~*.proto for the given canonical name.
func (tc *TestContext) HasRenamedSibling(canonical string) (bool, error) {
	stem := canonical[:len(canonical)-len(filepath.Ext(canonical))]
	entries, err := os.ReadDir(tc.OutDir)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		n := e.Name()
		if n != canonical && filepath.Ext(n) == ".proto" && len(n) > len(stem)+1 && n[:len(stem)+1] == stem+"~" {
			return true, nil
		}
	}
	return false, nil
}
