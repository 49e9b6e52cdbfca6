package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/protosalvage/protosalvage/internal/conflict"
	"github.com/protosalvage/protosalvage/internal/metricsd"
	"github.com/protosalvage/protosalvage/internal/pipeline"
)

func buildBinary(t *testing.T, name string) []byte {
	t.Helper()
	fdp := &descriptorpb.FileDescriptorProto{
		Name:   proto.String(name),
		Syntax: proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{Name: proto.String("Watched")},
		},
	}
	raw, err := proto.Marshal(fdp)
	require.NoError(t, err)
	return append(append([]byte("padpadpad"), raw...), []byte("tailtail")...)
}

func TestRunProcessesDroppedFile(t *testing.T) {
	watchDir := t.TempDir()
	outDir := t.TempDir()

	p := pipeline.New(pipeline.Options{
		OutputDir:        outDir,
		ConflictStrategy: conflict.StrategyHashSuffix,
	}, slog.Default())

	m := metricsd.New()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{Dir: watchDir, Debounce: 20 * time.Millisecond, Metrics: m}, p, slog.Default())
	}()

	time.Sleep(30 * time.Millisecond)
	binPath := filepath.Join(watchDir, "dropped.bin")
	require.NoError(t, os.WriteFile(binPath, buildBinary(t, "watched.proto"), 0o644))

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(outDir, "watched.proto"))
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
