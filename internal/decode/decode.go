// Package decode turns a validated descriptor byte range (a
// scanner.DescriptorHit's slice) into a *schema.File, the Go-native tree
// the reconstructor renders from. It is the "external decoder" spec.md
// places out of scope: this repository implements it on top of
// google.golang.org/protobuf, following the same unmarshal-then-walk
// pattern as the teacher's internal/schema/protobuf parser.
package decode

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/protosalvage/protosalvage/internal/perr"
	"github.com/protosalvage/protosalvage/internal/schema"
)

// Decode unmarshals raw into a descriptorpb.FileDescriptorProto and
// converts it into a *schema.File. It never attempts to resolve
// cross-file type references against a full descriptor pool — embedded
// descriptors are salvaged in isolation, so TypeName strings are carried
// through as-is (already fully qualified with a leading dot, per
// spec.md §3) rather than resolved to concrete descriptors.
func Decode(raw []byte) (*schema.File, error) {
	fdp := &descriptorpb.FileDescriptorProto{}
	if err := proto.Unmarshal(raw, fdp); err != nil {
		return nil, fmt.Errorf("%w: %v", perr.ErrDecodeFailure, err)
	}

	if fdp.GetName() == "" {
		return nil, fmt.Errorf("%w: empty file name", perr.ErrInvalidSchema)
	}

	// protodesc validates descriptor-internal consistency (field number
	// uniqueness, map-entry shape, and so on) the way the teacher's
	// protobuf parser leans on protocompile for. AllowUnresolvable lets a
	// salvaged, dependency-less descriptor through even though its
	// imports can never be resolved here; an empty protoregistry.Files
	// never has anything to resolve against, by design.
	fd, err := protodesc.FileOptions{AllowUnresolvable: true}.New(fdp, &protoregistry.Files{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", perr.ErrInvalidSchema, err)
	}

	return fromFileDescriptor(fd, fdp), nil
}

// fromFileDescriptor builds the schema.File entirely from the raw
// FileDescriptorProto (syntax, defaults, field order, options, reserved
// ranges) so nothing is lost to resolution failures on unresolvable
// types. The resolved protoreflect.FileDescriptor is accepted but not
// read; protodesc's role in Decode is validation only.
func fromFileDescriptor(fd protoreflect.FileDescriptor, fdp *descriptorpb.FileDescriptorProto) *schema.File {
	f := &schema.File{
		Name:               fdp.GetName(),
		Package:            fdp.GetPackage(),
		Syntax:             syntaxOf(fdp),
		Dependencies:       append([]string(nil), fdp.GetDependency()...),
		PublicDependencies: fdp.GetPublicDependency(),
		WeakDependencies:   fdp.GetWeakDependency(),
		Options:            fileOptionsOf(fdp.GetOptions()),
	}

	for _, m := range fdp.GetMessageType() {
		f.Messages = append(f.Messages, messageOf(m))
	}
	for _, e := range fdp.GetEnumType() {
		f.Enums = append(f.Enums, enumOf(e))
	}
	for _, s := range fdp.GetService() {
		f.Services = append(f.Services, serviceOf(s))
	}
	for _, x := range fdp.GetExtension() {
		f.Extensions = append(f.Extensions, fieldOf(x))
	}

	return f
}

func syntaxOf(fdp *descriptorpb.FileDescriptorProto) string {
	if fdp.GetSyntax() == "proto3" {
		return "proto3"
	}
	return "proto2"
}

func fileOptionsOf(o *descriptorpb.FileOptions) *schema.FileOptions {
	if o == nil {
		return nil
	}
	return &schema.FileOptions{
		JavaPackage:       o.GetJavaPackage(),
		GoPackage:         o.GetGoPackage(),
		CSharpNamespace:   o.GetCsharpNamespace(),
		ObjcClassPrefix:   o.GetObjcClassPrefix(),
		PhpNamespace:      o.GetPhpNamespace(),
		CCEnableArenas:    o.GetCcEnableArenas(),
		HasCCEnableArenas: o.CcEnableArenas != nil,
		Deprecated:        o.GetDeprecated(),
	}
}

func messageOf(d *descriptorpb.DescriptorProto) *schema.Message {
	m := &schema.Message{
		Name:     d.GetName(),
		MapEntry: d.GetOptions().GetMapEntry(),
	}
	for _, f := range d.GetField() {
		m.Fields = append(m.Fields, fieldOf(f))
	}
	for _, o := range d.GetOneofDecl() {
		m.Oneofs = append(m.Oneofs, oneofOf(o))
	}
	for _, n := range d.GetNestedType() {
		m.Nested = append(m.Nested, messageOf(n))
	}
	for _, e := range d.GetEnumType() {
		m.Enums = append(m.Enums, enumOf(e))
	}
	for _, r := range d.GetReservedRange() {
		m.ReservedRanges = append(m.ReservedRanges, schema.ReservedRange{Start: r.GetStart(), End: r.GetEnd()})
	}
	m.ReservedNames = append(m.ReservedNames, d.GetReservedName()...)
	return m
}

func fieldOf(d *descriptorpb.FieldDescriptorProto) *schema.Field {
	f := &schema.Field{
		Name:     d.GetName(),
		Number:   d.GetNumber(),
		Label:    labelOf(d.GetLabel()),
		Type:     typeOf(d.GetType()),
		TypeName: d.GetTypeName(),
		Extendee: d.GetExtendee(),
	}
	if d.DefaultValue != nil {
		f.DefaultValue = d.GetDefaultValue()
		f.HasDefault = true
	}
	if d.OneofIndex != nil {
		f.OneofIndex = d.GetOneofIndex()
		f.HasOneof = true
	}
	f.Proto3Optional = d.GetProto3Optional()
	f.Options = fieldOptionsOf(d.GetOptions())
	return f
}

func fieldOptionsOf(o *descriptorpb.FieldOptions) schema.FieldOptions {
	var fo schema.FieldOptions
	if o == nil {
		return fo
	}
	if o.Packed != nil {
		fo.Packed = o.GetPacked()
		fo.HasPacked = true
	}
	fo.Deprecated = o.GetDeprecated()
	if o.JsonName != nil {
		fo.JSONName = o.GetJsonName()
		fo.HasJSONName = true
	}
	if o.Ctype != nil {
		fo.CType = o.GetCtype().String()
		fo.HasCType = true
	}
	return fo
}

func labelOf(l descriptorpb.FieldDescriptorProto_Label) schema.FieldLabel {
	switch l {
	case descriptorpb.FieldDescriptorProto_LABEL_REQUIRED:
		return schema.LabelRequired
	case descriptorpb.FieldDescriptorProto_LABEL_REPEATED:
		return schema.LabelRepeated
	default:
		return schema.LabelOptional
	}
}

func typeOf(t descriptorpb.FieldDescriptorProto_Type) schema.FieldType {
	switch t {
	case descriptorpb.FieldDescriptorProto_TYPE_DOUBLE:
		return schema.TypeDouble
	case descriptorpb.FieldDescriptorProto_TYPE_FLOAT:
		return schema.TypeFloat
	case descriptorpb.FieldDescriptorProto_TYPE_INT64:
		return schema.TypeInt64
	case descriptorpb.FieldDescriptorProto_TYPE_UINT64:
		return schema.TypeUint64
	case descriptorpb.FieldDescriptorProto_TYPE_INT32:
		return schema.TypeInt32
	case descriptorpb.FieldDescriptorProto_TYPE_FIXED64:
		return schema.TypeFixed64
	case descriptorpb.FieldDescriptorProto_TYPE_FIXED32:
		return schema.TypeFixed32
	case descriptorpb.FieldDescriptorProto_TYPE_BOOL:
		return schema.TypeBool
	case descriptorpb.FieldDescriptorProto_TYPE_STRING:
		return schema.TypeString
	case descriptorpb.FieldDescriptorProto_TYPE_GROUP:
		return schema.TypeGroup
	case descriptorpb.FieldDescriptorProto_TYPE_MESSAGE:
		return schema.TypeMessage
	case descriptorpb.FieldDescriptorProto_TYPE_BYTES:
		return schema.TypeBytes
	case descriptorpb.FieldDescriptorProto_TYPE_UINT32:
		return schema.TypeUint32
	case descriptorpb.FieldDescriptorProto_TYPE_ENUM:
		return schema.TypeEnum
	case descriptorpb.FieldDescriptorProto_TYPE_SFIXED32:
		return schema.TypeSfixed32
	case descriptorpb.FieldDescriptorProto_TYPE_SFIXED64:
		return schema.TypeSfixed64
	case descriptorpb.FieldDescriptorProto_TYPE_SINT32:
		return schema.TypeSint32
	case descriptorpb.FieldDescriptorProto_TYPE_SINT64:
		return schema.TypeSint64
	default:
		return schema.TypeString
	}
}

func oneofOf(d *descriptorpb.OneofDescriptorProto) *schema.Oneof {
	name := d.GetName()
	return &schema.Oneof{
		Name:      name,
		Synthetic: len(name) > 0 && name[0] == '_',
	}
}

func enumOf(d *descriptorpb.EnumDescriptorProto) *schema.Enum {
	e := &schema.Enum{
		Name:       d.GetName(),
		AllowAlias: d.GetOptions().GetAllowAlias(),
	}
	for _, v := range d.GetValue() {
		e.Values = append(e.Values, schema.EnumValue{
			Name:       v.GetName(),
			Number:     v.GetNumber(),
			Deprecated: v.GetOptions().GetDeprecated(),
		})
	}
	for _, r := range d.GetReservedRange() {
		// EnumReservedRange.end is inclusive, unlike DescriptorProto's
		// ReservedRange.end (descriptor.proto calls this out explicitly).
		// Normalized to the same exclusive-end convention as message
		// reserved ranges so schema.ReservedRange has one meaning everywhere.
		e.ReservedRanges = append(e.ReservedRanges, schema.ReservedRange{Start: r.GetStart(), End: r.GetEnd() + 1})
	}
	e.ReservedNames = append(e.ReservedNames, d.GetReservedName()...)
	return e
}

func serviceOf(d *descriptorpb.ServiceDescriptorProto) *schema.Service {
	s := &schema.Service{Name: d.GetName()}
	for _, m := range d.GetMethod() {
		s.Methods = append(s.Methods, schema.Method{
			Name:            m.GetName(),
			InputType:       m.GetInputType(),
			OutputType:      m.GetOutputType(),
			ClientStreaming: m.GetClientStreaming(),
			ServerStreaming: m.GetServerStreaming(),
			Deprecated:      m.GetOptions().GetDeprecated(),
		})
	}
	return s
}
