package decode

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/protosalvage/protosalvage/internal/schema"
)

func strp(s string) *string { return &s }
func i32p(v int32) *int32   { return &v }

func TestDecodeBasicMessage(t *testing.T) {
	fdp := &descriptorpb.FileDescriptorProto{
		Name:    strp("simple.proto"),
		Package: strp("pkg"),
		Syntax:  strp("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: strp("Msg"),
				Field: []*descriptorpb.FieldDescriptorProto{
					{
						Name:   strp("id"),
						Number: i32p(1),
						Type:   descriptorpb.FieldDescriptorProto_TYPE_INT32.Enum(),
						Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
					},
				},
			},
		},
	}
	raw, err := proto.Marshal(fdp)
	require.NoError(t, err)

	f, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, "simple.proto", f.Name)
	require.Equal(t, "pkg", f.Package)
	require.Equal(t, "proto3", f.Syntax)
	require.Len(t, f.Messages, 1)
	require.Equal(t, "Msg", f.Messages[0].Name)
	require.Len(t, f.Messages[0].Fields, 1)
	require.Equal(t, "id", f.Messages[0].Fields[0].Name)
	require.Equal(t, int32(1), f.Messages[0].Fields[0].Number)
}

func TestDecodeRejectsEmptyName(t *testing.T) {
	fdp := &descriptorpb.FileDescriptorProto{Syntax: strp("proto3")}
	raw, err := proto.Marshal(fdp)
	require.NoError(t, err)

	_, err = Decode(raw)
	require.Error(t, err)
}

func TestDecodeDefaultsToProto2Syntax(t *testing.T) {
	fdp := &descriptorpb.FileDescriptorProto{Name: strp("legacy.proto")}
	raw, err := proto.Marshal(fdp)
	require.NoError(t, err)

	f, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, "proto2", f.Syntax)
}

func TestDecodeMapEntryMessage(t *testing.T) {
	fdp := &descriptorpb.FileDescriptorProto{
		Name:   strp("mapped.proto"),
		Syntax: strp("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: strp("Holder"),
				Field: []*descriptorpb.FieldDescriptorProto{
					{
						Name:     strp("tags"),
						Number:   i32p(1),
						Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
						Label:    descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum(),
						TypeName: strp(".Holder.TagsEntry"),
					},
				},
				NestedType: []*descriptorpb.DescriptorProto{
					{
						Name: strp("TagsEntry"),
						Field: []*descriptorpb.FieldDescriptorProto{
							{Name: strp("key"), Number: i32p(1), Type: descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum()},
							{Name: strp("value"), Number: i32p(2), Type: descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum()},
						},
						Options: &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)},
					},
				},
			},
		},
	}
	raw, err := proto.Marshal(fdp)
	require.NoError(t, err)

	f, err := Decode(raw)
	require.NoError(t, err)
	require.True(t, f.Messages[0].Nested[0].MapEntry)
}

func TestDecodeFieldCType(t *testing.T) {
	fdp := &descriptorpb.FileDescriptorProto{
		Name:   strp("ctype.proto"),
		Syntax: strp("proto2"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: strp("Msg"),
				Field: []*descriptorpb.FieldDescriptorProto{
					{
						Name:   strp("body"),
						Number: i32p(1),
						Type:   descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(),
						Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
						Options: &descriptorpb.FieldOptions{
							Ctype: descriptorpb.FieldOptions_CORD.Enum(),
						},
					},
					{
						Name:   strp("plain"),
						Number: i32p(2),
						Type:   descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(),
						Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
					},
				},
			},
		},
	}
	raw, err := proto.Marshal(fdp)
	require.NoError(t, err)

	f, err := Decode(raw)
	require.NoError(t, err)
	require.True(t, f.Messages[0].Fields[0].Options.HasCType)
	require.Equal(t, "CORD", f.Messages[0].Fields[0].Options.CType)
	require.False(t, f.Messages[0].Fields[1].Options.HasCType)
}

func TestDecodeEnumReservedRangeIsNormalizedToExclusiveEnd(t *testing.T) {
	fdp := &descriptorpb.FileDescriptorProto{
		Name:   strp("enum_reserved.proto"),
		Syntax: strp("proto3"),
		EnumType: []*descriptorpb.EnumDescriptorProto{
			{
				Name: strp("Status"),
				Value: []*descriptorpb.EnumValueDescriptorProto{
					{Name: strp("UNKNOWN"), Number: i32p(0)},
				},
				ReservedRange: []*descriptorpb.EnumDescriptorProto_EnumReservedRange{
					{Start: i32p(5), End: i32p(10)},
					{Start: i32p(20), End: i32p(20)},
				},
			},
		},
	}
	raw, err := proto.Marshal(fdp)
	require.NoError(t, err)

	f, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, f.Enums[0].ReservedRanges, 2)
	require.Equal(t, schema.ReservedRange{Start: 5, End: 11}, f.Enums[0].ReservedRanges[0])
	require.Equal(t, schema.ReservedRange{Start: 20, End: 21}, f.Enums[0].ReservedRanges[1])
}
