//go:build bdd

package steps

import (
	"fmt"
	"strings"

	"github.com/cucumber/godog"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/protosalvage/protosalvage/internal/conflict"
)

// RegisterScanSteps registers every step definition the scan feature
// uses, following the teacher's one-Register-function-per-concern style.
func RegisterScanSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ctx.Step(`^a binary containing a descriptor named "([^"]*)" with package "([^"]*)"$`,
		func(name, pkg string) error {
			fdp := simpleDescriptor(name, pkg)
			_, err := tc.AddBinary(defaultBinaryName(name), fdp)
			return err
		})

	ctx.Step(`^a binary "([^"]*)" containing a descriptor named "([^"]*)" with package "([^"]*)"$`,
		func(binary, name, pkg string) error {
			fdp := simpleDescriptor(name, pkg)
			_, err := tc.AddBinary(binary, fdp)
			return err
		})

	ctx.Step(`^a binary containing two adjacent descriptors named "([^"]*)" and "([^"]*)"$`,
		func(first, second string) error {
			_, err := tc.AddBinary("adjacent.bin", simpleDescriptor(first, "pkg1"), simpleDescriptor(second, "pkg2"))
			return err
		})

	ctx.Step(`^a binary containing a descriptor named "([^"]*)" with a string-to-int32 map field "([^"]*)"$`,
		func(name, field string) error {
			_, err := tc.AddBinary(defaultBinaryName(name), mapFieldDescriptor(name, field))
			return err
		})

	ctx.Step(`^a binary containing a proto2 descriptor named "([^"]*)" with an optional string field "([^"]*)" defaulting to "([^"]*)"$`,
		func(name, field, def string) error {
			_, err := tc.AddBinary(defaultBinaryName(name), proto2DefaultDescriptor(name, field, def))
			return err
		})

	ctx.Step(`^I scan the binary$`, func() error {
		return tc.Scan(conflict.StrategyHashSuffix)
	})

	ctx.Step(`^I scan both binaries in order$`, func() error {
		return tc.Scan(conflict.StrategyHashSuffix)
	})

	ctx.Step(`^the scan should find (\d+) descriptors?$`, func(n int) error {
		if tc.Summary.Counters.Found != n {
			return fmt.Errorf("expected %d found, got %d", n, tc.Summary.Counters.Found)
		}
		return nil
	})

	ctx.Step(`^a file named "([^"]*)" should be written$`, func(name string) error {
		_, err := tc.WrittenFile(name)
		if err == nil {
			tc.lastName = name
		}
		return err
	})

	ctx.Step(`^the written file should begin with "((?:[^"\\]|\\.)*)"$`, func(prefix string) error {
		content, err := tc.lastWritten()
		if err != nil {
			return err
		}
		prefix = unescapeQuotes(prefix)
		if !strings.HasPrefix(content, prefix) {
			return fmt.Errorf("expected output to begin with %q, got: %s", prefix, firstLine(content))
		}
		return nil
	})

	ctx.Step(`^the written file should contain "((?:[^"\\]|\\.)*)"$`, func(substr string) error {
		content, err := tc.lastWritten()
		if err != nil {
			return err
		}
		substr = unescapeQuotes(substr)
		if !strings.Contains(content, substr) {
			return fmt.Errorf("expected output to contain %q", substr)
		}
		return nil
	})

	ctx.Step(`^the written file should not contain "([^"]*)"$`, func(substr string) error {
		content, err := tc.lastWritten()
		if err != nil {
			return err
		}
		if strings.Contains(content, substr) {
			return fmt.Errorf("expected output not to contain %q", substr)
		}
		return nil
	})

	ctx.Step(`^the summary should report (\d+) duplicates skipped, (\d+) conflicts renamed and (\d+) written$`,
		func(dup, renamed, written int) error {
			c := tc.Summary.Counters
			if c.DuplicatesSkipped != dup || c.ConflictsRenamed != renamed || c.Written != written {
				return fmt.Errorf("expected dup=%d renamed=%d written=%d, got dup=%d renamed=%d written=%d",
					dup, renamed, written, c.DuplicatesSkipped, c.ConflictsRenamed, c.Written)
			}
			return nil
		})

	ctx.Step(`^a renamed sibling of "([^"]*)" should be written$`, func(canonical string) error {
		ok, err := tc.HasRenamedSibling(canonical)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("expected a renamed sibling of %q in the output directory", canonical)
		}
		return nil
	})
}

// lastWritten re-reads the output file most recently confirmed by a
// "a file named ... should be written" step.
func (tc *TestContext) lastWritten() (string, error) {
	if tc.lastName == "" {
		return "", fmt.Errorf("no output file has been named yet")
	}
	return tc.WrittenFile(tc.lastName)
}

func defaultBinaryName(descriptorName string) string {
	return strings.TrimSuffix(descriptorName, ".proto") + ".bin"
}

func simpleDescriptor(name, pkg string) *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String(name),
		Package: proto.String(pkg),
		Syntax:  proto.String("proto3"),
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
}

func mapFieldDescriptor(name, field string) *descriptorpb.FileDescriptorProto {
	entryName := strings.ToUpper(field[:1]) + field[1:] + "Entry"
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String(name),
		Package: proto.String("maptest"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("Msg"),
				Field: []*descriptorpb.FieldDescriptorProto{
					{
						Name:     proto.String(field),
						Number:   proto.Int32(1),
						Label:    descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum(),
						Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
						TypeName: proto.String("." + entryName),
					},
				},
				NestedType: []*descriptorpb.DescriptorProto{
					{
						Name: proto.String(entryName),
						Options: &descriptorpb.MessageOptions{
							MapEntry: proto.Bool(true),
						},
						Field: []*descriptorpb.FieldDescriptorProto{
							{
								Name:   proto.String("key"),
								Number: proto.Int32(1),
								Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
								Type:   descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(),
							},
							{
								Name:   proto.String("value"),
								Number: proto.Int32(2),
								Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
								Type:   descriptorpb.FieldDescriptorProto_TYPE_INT32.Enum(),
							},
						},
					},
				},
			},
		},
	}
}

func proto2DefaultDescriptor(name, field, def string) *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String(name),
		Package: proto.String("defaulttest"),
		Syntax:  proto.String("proto2"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("Msg"),
				Field: []*descriptorpb.FieldDescriptorProto{
					{
						Name:         proto.String(field),
						Number:       proto.Int32(1),
						Label:        descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
						Type:         descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(),
						DefaultValue: proto.String(def),
					},
				},
			},
		},
	}
}

func unescapeQuotes(s string) string {
	return strings.ReplaceAll(s, `\"`, `"`)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
