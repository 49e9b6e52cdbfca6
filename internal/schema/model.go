// Package schema defines the logical tree an implementer operates on once
// a descriptor's bytes have been decoded: File, Message, Field, Enum,
// Oneof, and Service. It is the boundary between internal/decode (which
// builds a Model from wire bytes) and internal/reconstruct (which renders
// one back to .proto text).
package schema

// File is the root of a decoded schema: one FileDescriptorProto.
type File struct {
	Name    string
	Package string
	// Syntax is "proto2" or "proto3". Descriptors that omit it are proto2.
	Syntax string

	Dependencies       []string
	PublicDependencies []int32
	WeakDependencies   []int32

	Options *FileOptions

	Messages   []*Message
	Enums      []*Enum
	Services   []*Service
	Extensions []*Field
}

// FileOptions carries the subset of FileOptions the reconstructor renders
// explicitly (spec.md §4.3 step 4), plus the file-level deprecated flag.
type FileOptions struct {
	JavaPackage      string
	GoPackage        string
	CSharpNamespace  string
	ObjcClassPrefix  string
	PhpNamespace     string
	CCEnableArenas   bool
	HasCCEnableArenas bool

	// Deprecated is decoded but not emitted by the reconstructor.
	// OptimizeFor, CCGenericServices and other file options are not
	// decoded at all.
	Deprecated bool
}

// Message is a DescriptorProto node.
type Message struct {
	Name string

	Fields  []*Field
	Oneofs  []*Oneof
	Nested  []*Message
	Enums   []*Enum

	ReservedRanges []ReservedRange
	ReservedNames  []string

	// MapEntry mirrors MessageOptions.map_entry: true for the synthetic
	// nested type backing a map<K, V> field. The reconstructor omits
	// map-entry messages from nested output and renders the owning field
	// as a map instead.
	MapEntry bool
}

// ReservedRange is an inclusive-exclusive field number range, matching
// DescriptorProto.ReservedRange semantics (end is exclusive in the wire
// format but rendered inclusive, i.e. end-1, in .proto text).
type ReservedRange struct {
	Start int32
	End   int32
}

// FieldLabel mirrors FieldDescriptorProto_Label.
type FieldLabel int

const (
	LabelOptional FieldLabel = iota
	LabelRequired
	LabelRepeated
)

// FieldType mirrors FieldDescriptorProto_Type, using the canonical .proto
// scalar keyword as the Go constant name where one exists.
type FieldType int

const (
	TypeDouble FieldType = iota
	TypeFloat
	TypeInt64
	TypeUint64
	TypeInt32
	TypeFixed64
	TypeFixed32
	TypeBool
	TypeString
	TypeGroup
	TypeMessage
	TypeBytes
	TypeUint32
	TypeEnum
	TypeSfixed32
	TypeSfixed64
	TypeSint32
	TypeSint64
)

// Field is a FieldDescriptorProto node, shared by Message.Fields,
// Oneof-member lookups, and File.Extensions.
type Field struct {
	Name   string
	Number int32
	Label  FieldLabel
	Type   FieldType

	// TypeName is the fully qualified message/enum type as stored in the
	// descriptor, leading dot included, for Type == TypeMessage ||
	// Type == TypeEnum. The reconstructor strips the dot when rendering.
	TypeName string

	// DefaultValue is the raw descriptor default_value string, rendered
	// only in proto2 (spec.md §4.3 field rendering).
	DefaultValue string
	HasDefault   bool

	OneofIndex  int32
	HasOneof    bool
	Proto3Optional bool

	Options FieldOptions

	// Extendee is set for extension fields (File.Extensions members):
	// the fully qualified type being extended.
	Extendee string
}

// FieldOptions carries the options spec.md §4.3 names explicitly, in their
// required rendering order (packed, deprecated, json_name, then others
// alphabetically). Options other than these four are not carried.
type FieldOptions struct {
	Packed     bool
	HasPacked  bool
	Deprecated bool
	JSONName   string
	HasJSONName bool

	// CType mirrors FieldOptions.ctype's enum value name (STRING, CORD,
	// STRING_PIECE); rendered only when explicitly set, since STRING is
	// the implicit default.
	CType    string
	HasCType bool
}

// IsMap reports whether f is a repeated field whose type points at a
// synthetic map-entry nested message, given that message's definition.
func (f *Field) IsMap(resolved *Message) bool {
	return f.Label == LabelRepeated && resolved != nil && resolved.MapEntry
}

// Oneof is a OneofDescriptorProto node. Fields reference it by index via
// Field.OneofIndex.
type Oneof struct {
	Name string

	// Synthetic is true for the compiler-generated oneof backing a
	// proto3-optional scalar field; its name begins with "_" and it is
	// never rendered as a oneof block (spec.md §4.3).
	Synthetic bool
}

// Enum is an EnumDescriptorProto node.
type Enum struct {
	Name        string
	Values      []EnumValue
	AllowAlias  bool

	ReservedRanges []ReservedRange
	ReservedNames  []string
}

// EnumValue is an EnumValueDescriptorProto node.
type EnumValue struct {
	Name       string
	Number     int32
	Deprecated bool
}

// Service is a ServiceDescriptorProto node.
type Service struct {
	Name    string
	Methods []Method
}

// Method is a MethodDescriptorProto node.
type Method struct {
	Name             string
	InputType        string
	OutputType       string
	ClientStreaming  bool
	ServerStreaming  bool
	Deprecated       bool
}

// FieldByOneof returns the fields of msg belonging to oneof index idx, in
// declaration order.
func FieldByOneof(msg *Message, idx int32) []*Field {
	var out []*Field
	for _, f := range msg.Fields {
		if f.HasOneof && f.OneofIndex == idx {
			out = append(out, f)
		}
	}
	return out
}

// FindNested returns the nested message with the given name, or nil.
func (m *Message) FindNested(name string) *Message {
	for _, n := range m.Nested {
		if n.Name == name {
			return n
		}
	}
	return nil
}
