package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/protosalvage/protosalvage/internal/conflict"
	"github.com/protosalvage/protosalvage/internal/scanner"
)

// buildBinary marshals a FileDescriptorProto and returns it embedded in a
// buffer with junk on either side, mimicking a real binary's rodata.
func buildBinary(t *testing.T, name string) []byte {
	t.Helper()
	fdp := &descriptorpb.FileDescriptorProto{
		Name:    proto.String(name),
		Syntax:  proto.String("proto3"),
		Package: proto.String("pipelinetest"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("Msg"),
				Field: []*descriptorpb.FieldDescriptorProto{
					{
						Name:   proto.String("id"),
						Number: proto.Int32(1),
						Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
						Type:   descriptorpb.FieldDescriptorProto_TYPE_INT32.Enum(),
					},
				},
			},
		},
	}
	raw, err := proto.Marshal(fdp)
	require.NoError(t, err)

	buf := append([]byte("junkjunkjunk"), raw...)
	buf = append(buf, []byte("trailerbytes")...)
	return buf
}

func TestPipelineRunWritesReconstructedFile(t *testing.T) {
	dir := t.TempDir()
	binPath := filepath.Join(dir, "app.bin")
	require.NoError(t, os.WriteFile(binPath, buildBinary(t, "pipeline_test.proto"), 0o644))

	outDir := filepath.Join(dir, "out")
	p := New(Options{
		OutputDir:        outDir,
		ScannerOptions:   scanner.Options{},
		ConflictStrategy: conflict.StrategyHashSuffix,
		Jobs:             2,
	}, nil)

	summary, err := p.Run(context.Background(), []string{binPath})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Counters.Found)
	require.Equal(t, 1, summary.Counters.Written)
	require.Empty(t, summary.Warnings)

	contents, err := os.ReadFile(filepath.Join(outDir, "pipeline_test.proto"))
	require.NoError(t, err)
	require.Contains(t, string(contents), "message Msg")
}

func TestPipelineDefaultJobsProcessesAllBinaries(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 4; i++ {
		name := filepath.Join(dir, "app"+string(rune('0'+i))+".bin")
		require.NoError(t, os.WriteFile(name, buildBinary(t, "multi"+string(rune('0'+i))+".proto"), 0o644))
		paths = append(paths, name)
	}

	outDir := filepath.Join(dir, "out")
	p := New(Options{
		OutputDir:        outDir,
		ScannerOptions:   scanner.Options{},
		ConflictStrategy: conflict.StrategyHashSuffix,
	}, nil)

	summary, err := p.Run(context.Background(), paths)
	require.NoError(t, err)
	require.Equal(t, 4, summary.Counters.Found)
	require.Equal(t, 4, summary.Counters.Written)
}

func TestPipelineListOnlyWritesNothing(t *testing.T) {
	dir := t.TempDir()
	binPath := filepath.Join(dir, "app.bin")
	require.NoError(t, os.WriteFile(binPath, buildBinary(t, "list_only.proto"), 0o644))

	outDir := filepath.Join(dir, "out")
	p := New(Options{
		OutputDir: outDir,
		ListOnly:  true,
	}, nil)

	summary, err := p.Run(context.Background(), []string{binPath})
	require.NoError(t, err)
	require.Equal(t, 0, summary.Counters.Written)
	require.Len(t, summary.Listed, 1)
	require.Equal(t, "list_only.proto", summary.Listed[0].CanonicalFilename)
	require.Contains(t, summary.Listed[0].Rendered, "message Msg")

	_, statErr := os.Stat(outDir)
	require.True(t, os.IsNotExist(statErr))
}

func TestPipelineRefusesOverwriteWithoutForce(t *testing.T) {
	dir := t.TempDir()
	binPath := filepath.Join(dir, "app.bin")
	require.NoError(t, os.WriteFile(binPath, buildBinary(t, "exists.proto"), 0o644))

	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(outDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "exists.proto"), []byte("old"), 0o644))

	p := New(Options{OutputDir: outDir}, nil)
	summary, err := p.Run(context.Background(), []string{binPath})
	require.NoError(t, err)
	require.Len(t, summary.Warnings, 1)

	contents, err := os.ReadFile(filepath.Join(outDir, "exists.proto"))
	require.NoError(t, err)
	require.Equal(t, "old", string(contents))
}

func TestPipelineMissingBinaryRecordsWarning(t *testing.T) {
	dir := t.TempDir()
	p := New(Options{OutputDir: filepath.Join(dir, "out")}, nil)

	summary, err := p.Run(context.Background(), []string{filepath.Join(dir, "missing.bin")})
	require.NoError(t, err)
	require.Len(t, summary.Warnings, 1)
	require.Equal(t, 0, summary.Counters.Found)
}
