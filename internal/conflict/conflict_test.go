package conflict

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveFirstWriteIsAsIs(t *testing.T) {
	r := New(StrategyHashSuffix)
	d := r.Resolve(Artifact{CanonicalFilename: "a.proto", Content: []byte("one")})
	require.Equal(t, "write", d.Action)
	require.Equal(t, "a.proto", d.OutputFilename)
	require.Equal(t, 1, r.Counters().Written)
	require.Equal(t, 1, r.Counters().Found)
}

func TestResolveSameHashIsDuplicate(t *testing.T) {
	r := New(StrategyHashSuffix)
	r.Resolve(Artifact{CanonicalFilename: "a.proto", Content: []byte("one")})
	d := r.Resolve(Artifact{CanonicalFilename: "a.proto", Content: []byte("one")})
	require.Equal(t, "skip-duplicate", d.Action)
	require.Equal(t, 1, r.Counters().DuplicatesSkipped)
}

func TestResolveHashSuffixOnConflict(t *testing.T) {
	r := New(StrategyHashSuffix)
	r.Resolve(Artifact{CanonicalFilename: "a.proto", Content: []byte("one")})
	d := r.Resolve(Artifact{CanonicalFilename: "a.proto", Content: []byte("two")})
	require.Equal(t, "write", d.Action)
	require.Regexp(t, `^a~[0-9a-f]{8}\.proto$`, d.OutputFilename)
	require.Equal(t, 1, r.Counters().ConflictsRenamed)
}

func TestResolveSourceSuffixOnConflict(t *testing.T) {
	r := New(StrategySourceSuffix)
	r.Resolve(Artifact{CanonicalFilename: "a.proto", Content: []byte("one"), SourceBinaryPath: "/bin/first"})
	d := r.Resolve(Artifact{CanonicalFilename: "a.proto", Content: []byte("two"), SourceBinaryPath: "/opt/my app!"})
	require.Equal(t, "write", d.Action)
	require.Equal(t, "a~from-my_app_.proto", d.OutputFilename)
}

func TestResolveSkipConflictsStrategy(t *testing.T) {
	r := New(StrategySkipConflicts)
	r.Resolve(Artifact{CanonicalFilename: "a.proto", Content: []byte("one")})
	d := r.Resolve(Artifact{CanonicalFilename: "a.proto", Content: []byte("two")})
	require.Equal(t, "skip-conflict", d.Action)
}

func TestResolveDiscriminatorOnRenameCollision(t *testing.T) {
	r := New(StrategySourceSuffix)
	r.Resolve(Artifact{CanonicalFilename: "a.proto", Content: []byte("one"), SourceBinaryPath: "/bin/x"})
	d1 := r.Resolve(Artifact{CanonicalFilename: "a.proto", Content: []byte("two"), SourceBinaryPath: "/bin/y"})
	d2 := r.Resolve(Artifact{CanonicalFilename: "a.proto", Content: []byte("three"), SourceBinaryPath: "/bin/y"})
	require.Equal(t, "a~from-y.proto", d1.OutputFilename)
	require.Equal(t, "a~from-y~2.proto", d2.OutputFilename)
}

func TestResolveIsConcurrencySafe(t *testing.T) {
	r := New(StrategyHashSuffix)
	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func(i int) {
			r.Resolve(Artifact{CanonicalFilename: "same.proto", Content: []byte{byte(i)}})
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 20; i++ {
		<-done
	}
	require.Equal(t, 20, r.Counters().Found)
}
