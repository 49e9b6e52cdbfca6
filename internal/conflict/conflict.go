// Package conflict implements the ConflictResolver described in
// spec.md §4.4: a mutex-guarded filename->hash map that decides, for each
// incoming artifact, whether to write it as-is, skip it as a duplicate, or
// rename it to avoid colliding with a different file of the same
// canonical name. The lock-the-whole-decision-then-release style is
// grounded in the teacher's internal/cache package, generalized here to
// span the decision and the filename reservation in one critical section.
// Writing the output file is left to the caller and happens after Resolve
// returns, outside that lock; the reservation only guarantees that no two
// callers are handed the same output filename.
package conflict

import (
	"crypto/sha256"
	"fmt"
	"path"
	"strings"
	"sync"
)

// Strategy selects how a filename collision between different content is
// resolved.
type Strategy string

const (
	StrategyHashSuffix   Strategy = "hash-suffix"
	StrategySourceSuffix Strategy = "source-suffix"
	StrategySkipConflicts Strategy = "skip-conflicts"
)

// Artifact is a tuple of reconstructed .proto text awaiting a final name,
// spec.md §3's ExtractedArtifact.
type Artifact struct {
	CanonicalFilename string
	Content           []byte
	SourceBinaryPath  string
}

// ContentHash returns a stable digest of the artifact's bytes.
func (a Artifact) ContentHash() [32]byte {
	return sha256.Sum256(a.Content)
}

// Decision is the resolver's verdict for one artifact.
type Decision struct {
	// Action is one of "write", "skip-duplicate", or "skip-conflict".
	Action string
	// OutputFilename is set when Action == "write".
	OutputFilename string
}

// Counters are the per-run totals spec.md §4.4 requires in the summary
// line. Only one of ConflictsRenamed/ConflictsSkipped is ever nonzero for
// a given run, since the two are produced by mutually exclusive
// strategies: spec.md §8 property 7 requires
// found = written + duplicatesSkipped + conflictsRenamed outside
// skip-conflicts mode, and found = written + duplicatesSkipped +
// conflictsSkipped under it.
type Counters struct {
	Found             int
	DuplicatesSkipped int
	ConflictsRenamed  int
	ConflictsSkipped  int
	Written           int
}

type seen struct {
	hash         [32]byte
	reservedName string
}

// Resolver is safe for concurrent use by multiple pipeline workers.
type Resolver struct {
	strategy Strategy

	mu       sync.Mutex
	byName   map[string][]seen // canonical filename -> every distinct hash/name pair seen
	counters Counters
}

// New creates a Resolver using strategy (defaulting to hash-suffix for an
// empty value).
func New(strategy Strategy) *Resolver {
	if strategy == "" {
		strategy = StrategyHashSuffix
	}
	return &Resolver{
		strategy: strategy,
		byName:   make(map[string][]seen),
	}
}

// Resolve decides what to do with a, reserving the chosen output filename
// under the same lock that recorded it, per spec.md §5.
func (r *Resolver) Resolve(a Artifact) Decision {
	hash := a.ContentHash()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.counters.Found++

	existing := r.byName[a.CanonicalFilename]
	for _, s := range existing {
		if s.hash == hash {
			r.counters.DuplicatesSkipped++
			return Decision{Action: "skip-duplicate"}
		}
	}

	if len(existing) == 0 {
		r.byName[a.CanonicalFilename] = append(existing, seen{hash: hash, reservedName: a.CanonicalFilename})
		r.counters.Written++
		return Decision{Action: "write", OutputFilename: a.CanonicalFilename}
	}

	if r.strategy == StrategySkipConflicts {
		r.counters.ConflictsSkipped++
		return Decision{Action: "skip-conflict"}
	}

	name := r.renamedFilename(a, hash, existing)
	r.byName[a.CanonicalFilename] = append(existing, seen{hash: hash, reservedName: name})
	r.counters.ConflictsRenamed++
	r.counters.Written++
	return Decision{Action: "write", OutputFilename: name}
}

// renamedFilename builds stem~<suffix>.proto per the configured strategy,
// appending a numeric discriminator if that name itself collides with a
// prior rename of a different hash.
func (r *Resolver) renamedFilename(a Artifact, hash [32]byte, existing []seen) string {
	stem := strings.TrimSuffix(a.CanonicalFilename, ".proto")

	var base string
	switch r.strategy {
	case StrategySourceSuffix:
		base = fmt.Sprintf("%s~from-%s.proto", stem, sanitizeSource(a.SourceBinaryPath))
	default: // StrategyHashSuffix
		base = fmt.Sprintf("%s~%s.proto", stem, hex8(hash))
	}

	candidate := base
	for n := 2; nameReserved(existing, candidate); n++ {
		candidate = fmt.Sprintf("%s~%d.proto", strings.TrimSuffix(base, ".proto"), n)
	}
	return candidate
}

func nameReserved(existing []seen, name string) bool {
	for _, s := range existing {
		if s.reservedName == name {
			return true
		}
	}
	return false
}

// sanitizeSource takes the basename of a source binary path and replaces
// every character outside [A-Za-z0-9_-] with an underscore.
func sanitizeSource(p string) string {
	base := path.Base(p)
	var b strings.Builder
	for _, c := range base {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_' || c == '-':
			b.WriteRune(c)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// hex8 returns the low 32 bits of hash as lowercase hex, zero-padded to 8
// characters.
func hex8(hash [32]byte) string {
	low32 := hash[len(hash)-4:]
	return fmt.Sprintf("%02x%02x%02x%02x", low32[0], low32[1], low32[2], low32[3])
}

// Counters returns a snapshot of the resolver's running totals.
func (r *Resolver) Counters() Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters
}
