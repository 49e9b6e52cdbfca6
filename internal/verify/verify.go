// Package verify implements the opt-in round-trip check described in
// SPEC_FULL.md §4.5: compile the reconstructor's rendered text in-memory
// and compare the resulting descriptor against the original model. It
// substitutes for a real protoc binary dependency using
// github.com/bufbuild/protocompile, grounded on the same
// compile-then-walk pattern the teacher's compatibility checker uses for
// schema diffing (internal/compatibility/protobuf/checker.go).
package verify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bufbuild/protocompile"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/protosalvage/protosalvage/internal/perr"
	"github.com/protosalvage/protosalvage/internal/schema"
)

// Verify compiles rendered against an in-memory resolver seeded only with
// the rendered text itself, then compares the resulting descriptor's
// shape against model field-by-field, order-independent, per spec.md §8
// property 5 ("modulo source-code-info, comments, and ordering of
// non-ordered sets"). It never returns a structural panic; any mismatch
// (including an unresolved import, since a salvaged descriptor rarely
// carries its dependencies) is reported as a single wrapped error.
func Verify(ctx context.Context, model *schema.File, rendered string) error {
	resolver := mapResolver{sources: map[string]string{model.Name: rendered}}
	compiler := protocompile.Compiler{
		Resolver:       resolver,
		SourceInfoMode: protocompile.SourceInfoNone,
	}

	files, err := compiler.Compile(ctx, model.Name)
	if err != nil {
		return fmt.Errorf("%w: compile failed: %v", perr.ErrVerifyMismatch, err)
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: no file compiled", perr.ErrVerifyMismatch)
	}

	if err := compareShape(model, files[0]); err != nil {
		return fmt.Errorf("%w: %v", perr.ErrVerifyMismatch, err)
	}
	return nil
}

type mapResolver struct {
	sources map[string]string
}

func (r mapResolver) FindFileByPath(path string) (protocompile.SearchResult, error) {
	src, ok := r.sources[path]
	if !ok {
		return protocompile.SearchResult{}, fmt.Errorf("file not found: %s", path)
	}
	return protocompile.SearchResult{Source: strings.NewReader(src)}, nil
}

// compareShape checks that the package matches and that every top-level
// message, enum, and service the model declares is present in fd,
// ignoring declaration order. Messages are also compared by field name
// and number; field cardinalities and types are not compared, nested
// messages are not checked, and enums and services are matched by name
// only.
func compareShape(model *schema.File, fd protoreflect.FileDescriptor) error {
	if string(fd.Package()) != model.Package {
		return fmt.Errorf("package mismatch: want %q, got %q", model.Package, fd.Package())
	}

	gotMessages := map[string]protoreflect.MessageDescriptor{}
	for i := 0; i < fd.Messages().Len(); i++ {
		m := fd.Messages().Get(i)
		gotMessages[string(m.Name())] = m
	}
	for _, wantMsg := range model.Messages {
		gotMsg, ok := gotMessages[wantMsg.Name]
		if !ok {
			return fmt.Errorf("message %q missing from compiled output", wantMsg.Name)
		}
		if err := compareMessageFields(wantMsg, gotMsg); err != nil {
			return fmt.Errorf("message %q: %w", wantMsg.Name, err)
		}
	}

	gotEnums := map[string]bool{}
	for i := 0; i < fd.Enums().Len(); i++ {
		gotEnums[string(fd.Enums().Get(i).Name())] = true
	}
	for _, e := range model.Enums {
		if !gotEnums[e.Name] {
			return fmt.Errorf("enum %q missing from compiled output", e.Name)
		}
	}

	gotServices := map[string]bool{}
	for i := 0; i < fd.Services().Len(); i++ {
		gotServices[string(fd.Services().Get(i).Name())] = true
	}
	for _, s := range model.Services {
		if !gotServices[s.Name] {
			return fmt.Errorf("service %q missing from compiled output", s.Name)
		}
	}

	return nil
}

func compareMessageFields(want *schema.Message, got protoreflect.MessageDescriptor) error {
	gotNumbers := map[int32]string{}
	for i := 0; i < got.Fields().Len(); i++ {
		f := got.Fields().Get(i)
		gotNumbers[int32(f.Number())] = string(f.Name())
	}

	var missing []string
	for _, f := range want.Fields {
		name, ok := gotNumbers[f.Number]
		if !ok || name != f.Name {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("fields missing or renumbered: %s", strings.Join(missing, ", "))
	}
	return nil
}
