// Package reconstruct renders a *schema.File back into .proto source text
// (spec.md §4.3). The traversal and builder-based emission style are
// grounded in the retrieved zjx20/protodump ProtoDefinition writer, adapted
// to walk this repository's own schema.File tree instead of
// protoreflect descriptors, since a salvaged descriptor's dependencies are
// rarely available to resolve against.
package reconstruct

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/protosalvage/protosalvage/internal/perr"
	"github.com/protosalvage/protosalvage/internal/schema"
)

// maxFieldNumber is the highest legal protobuf field number; a reserved
// range whose end reaches it renders as "max" (spec.md §4.3).
const maxFieldNumber = 536870911

// Render produces deterministic .proto text for f. Rendering never fails
// on partial schemas — missing optional fields are simply omitted — except
// when the file itself is structurally unrenderable.
func Render(f *schema.File) (string, error) {
	if f.Name == "" || !utf8.ValidString(f.Name) {
		return "", fmt.Errorf("%w: file name is empty or not valid UTF-8", perr.ErrInvalidSchema)
	}

	r := &renderer{syntax: f.Syntax}
	r.writeFile(f)
	return r.sb.String(), nil
}

type renderer struct {
	sb     strings.Builder
	indent int
	syntax string
}

func (r *renderer) write(s string)          { r.sb.WriteString(s) }
func (r *renderer) writeIndent()            { r.sb.WriteString(strings.Repeat("  ", r.indent)) }
func (r *renderer) writeLine(s string)      { r.writeIndent(); r.write(s); r.write("\n") }
func (r *renderer) blank()                  { r.write("\n") }

func (r *renderer) writeFile(f *schema.File) {
	syntax := f.Syntax
	if syntax != "proto2" && syntax != "proto3" {
		syntax = "proto2"
	}
	r.write("syntax = \"")
	r.write(syntax)
	r.write("\";\n\n")

	if f.Package != "" {
		r.write("package ")
		r.write(f.Package)
		r.write(";\n\n")
	}

	if len(f.Dependencies) > 0 {
		publics := toSet(f.PublicDependencies)
		weaks := toSet(f.WeakDependencies)
		for i, dep := range f.Dependencies {
			r.write("import ")
			idx := int32(i)
			if publics[idx] {
				r.write("public ")
			} else if weaks[idx] {
				r.write("weak ")
			}
			r.write("\"")
			r.write(dep)
			r.write("\";\n")
		}
		r.blank()
	}

	if r.writeFileOptions(f.Options) {
		r.blank()
	}

	for _, e := range f.Enums {
		r.writeEnum(e)
	}
	for _, m := range f.Messages {
		r.writeMessage(m)
	}
	for _, x := range f.Extensions {
		r.writeExtension(x)
	}
	for _, s := range f.Services {
		r.writeService(s)
	}
}

func toSet(idx []int32) map[int32]bool {
	m := make(map[int32]bool, len(idx))
	for _, i := range idx {
		m[i] = true
	}
	return m
}

// writeFileOptions emits the options spec.md §4.3 step 4 names explicitly.
// It returns whether anything was written.
func (r *renderer) writeFileOptions(o *schema.FileOptions) bool {
	if o == nil {
		return false
	}
	wrote := false
	writeStr := func(name, v string) {
		if v == "" {
			return
		}
		r.write("option ")
		r.write(name)
		r.write(" = \"")
		r.write(strings.ReplaceAll(v, "\\", "\\\\"))
		r.write("\";\n")
		wrote = true
	}
	writeStr("java_package", o.JavaPackage)
	writeStr("go_package", o.GoPackage)
	writeStr("csharp_namespace", o.CSharpNamespace)
	writeStr("objc_class_prefix", o.ObjcClassPrefix)
	writeStr("php_namespace", o.PhpNamespace)
	if o.HasCCEnableArenas {
		r.write("option cc_enable_arenas = ")
		r.write(strconv.FormatBool(o.CCEnableArenas))
		r.write(";\n")
		wrote = true
	}
	return wrote
}

func (r *renderer) writeEnum(e *schema.Enum) {
	r.writeIndent()
	r.write("enum ")
	r.write(e.Name)
	r.write(" {\n")
	r.indent++
	if e.AllowAlias {
		r.writeLine("option allow_alias = true;")
	}
	for _, name := range e.ReservedNames {
		r.writeIndent()
		r.write("reserved \"")
		r.write(name)
		r.write("\";\n")
	}
	for _, rr := range e.ReservedRanges {
		r.writeIndent()
		r.write("reserved ")
		r.write(reservedRangeText(rr, 1<<31-1))
		r.write(";\n")
	}
	for _, v := range e.Values {
		r.writeIndent()
		r.write(v.Name)
		r.write(" = ")
		r.write(strconv.Itoa(int(v.Number)))
		opts := enumValueOptionText(v)
		if opts != "" {
			r.write(" [")
			r.write(opts)
			r.write("]")
		}
		r.write(";\n")
	}
	r.indent--
	r.writeLine("}")
	r.blank()
}

func enumValueOptionText(v schema.EnumValue) string {
	if v.Deprecated {
		return "deprecated = true"
	}
	return ""
}

func reservedRangeText(rr schema.ReservedRange, max int32) string {
	start, end := rr.Start, rr.End-1
	if start == end {
		return strconv.Itoa(int(start))
	}
	if end >= max {
		return fmt.Sprintf("%d to max", start)
	}
	return fmt.Sprintf("%d to %d", start, end)
}

func (r *renderer) writeMessage(m *schema.Message) {
	r.writeIndent()
	r.write("message ")
	r.write(m.Name)
	r.write(" {\n")
	r.indent++

	for _, name := range m.ReservedNames {
		r.writeIndent()
		r.write("reserved \"")
		r.write(name)
		r.write("\";\n")
	}
	for _, rr := range m.ReservedRanges {
		r.writeIndent()
		r.write("reserved ")
		r.write(reservedRangeText(rr, maxFieldNumber))
		r.write(";\n")
	}

	for _, e := range m.Enums {
		r.writeEnum(e)
	}

	mapEntries := mapEntryNames(m)
	for _, n := range m.Nested {
		if mapEntries[n.Name] {
			continue
		}
		r.writeMessage(n)
	}

	for i, o := range m.Oneofs {
		if o.Synthetic {
			continue
		}
		r.writeOneof(m, int32(i), o)
	}

	for i, f := range m.Fields {
		if o := oneofAt(m, f.OneofIndex); f.HasOneof && o != nil && !o.Synthetic {
			continue
		}
		r.writeField(m, f, i)
	}

	r.indent--
	r.writeLine("}")
	r.blank()
}

// oneofAt returns the oneof at idx, or nil when idx is out of range: a
// field whose oneof_index doesn't resolve to a declared oneof (possible
// on a truncated or corrupted descriptor) is rendered as a standalone
// field rather than silently dropped.
func oneofAt(m *schema.Message, idx int32) *schema.Oneof {
	if idx < 0 || int(idx) >= len(m.Oneofs) {
		return nil
	}
	return m.Oneofs[idx]
}

// mapEntryNames returns the set of nested message names that back a
// repeated map<K, V> field, so writeMessage can omit them from the nested
// output (spec.md §4.3 message rendering).
func mapEntryNames(m *schema.Message) map[string]bool {
	out := map[string]bool{}
	for _, f := range m.Fields {
		if f.Label != schema.LabelRepeated || f.Type != schema.TypeMessage {
			continue
		}
		nested := m.FindNested(localTypeName(f.TypeName))
		if f.IsMap(nested) {
			out[nested.Name] = true
		}
	}
	return out
}

func localTypeName(typeName string) string {
	i := strings.LastIndexByte(typeName, '.')
	if i == -1 {
		return typeName
	}
	return typeName[i+1:]
}

func (r *renderer) writeOneof(m *schema.Message, idx int32, o *schema.Oneof) {
	r.writeIndent()
	r.write("oneof ")
	r.write(o.Name)
	r.write(" {\n")
	r.indent++
	for i, f := range schema.FieldByOneof(m, idx) {
		r.writeField(m, f, i)
	}
	r.indent--
	r.writeLine("}")
}

func (r *renderer) writeField(m *schema.Message, f *schema.Field, fieldIdx int) {
	r.writeIndent()

	if nested := m.FindNested(localTypeName(f.TypeName)); f.Type == schema.TypeMessage && f.IsMap(nested) {
		key := fieldTypeText(nested.Fields[0])
		val := fieldTypeText(nested.Fields[1])
		r.write(fmt.Sprintf("map<%s, %s> %s = %d", key, val, f.Name, f.Number))
		r.writeFieldOptionsAndTerminator(f)
		return
	}

	switch {
	case f.HasOneof && f.Proto3Optional:
		r.write("optional ")
	case r.syntax == "proto2" && f.Label == schema.LabelRequired:
		r.write("required ")
	case r.syntax == "proto2" && f.Label == schema.LabelOptional && !f.HasOneof:
		r.write("optional ")
	case f.Label == schema.LabelRepeated:
		r.write("repeated ")
	}

	r.write(fieldTypeText(f))
	r.write(" ")
	r.write(f.Name)
	r.write(" = ")
	r.write(strconv.Itoa(int(f.Number)))
	r.writeFieldOptionsAndTerminator(f)
}

func (r *renderer) writeFieldOptionsAndTerminator(f *schema.Field) {
	opts := fieldOptionText(f, r.syntax != "proto3")
	if opts != "" {
		r.write(" [")
		r.write(opts)
		r.write("]")
	}
	r.write(";\n")
}

func fieldTypeText(f *schema.Field) string {
	switch f.Type {
	case schema.TypeDouble:
		return "double"
	case schema.TypeFloat:
		return "float"
	case schema.TypeInt64:
		return "int64"
	case schema.TypeUint64:
		return "uint64"
	case schema.TypeInt32:
		return "int32"
	case schema.TypeFixed64:
		return "fixed64"
	case schema.TypeFixed32:
		return "fixed32"
	case schema.TypeBool:
		return "bool"
	case schema.TypeString:
		return "string"
	case schema.TypeGroup:
		return "group"
	case schema.TypeMessage:
		return strings.TrimPrefix(f.TypeName, ".")
	case schema.TypeBytes:
		return "bytes"
	case schema.TypeUint32:
		return "uint32"
	case schema.TypeEnum:
		return strings.TrimPrefix(f.TypeName, ".")
	case schema.TypeSfixed32:
		return "sfixed32"
	case schema.TypeSfixed64:
		return "sfixed64"
	case schema.TypeSint32:
		return "sint32"
	case schema.TypeSint64:
		return "sint64"
	default:
		return "string"
	}
}

// fieldOptionText renders a field's bracketed option list: packed,
// deprecated, json_name, then other standard options alphabetically (only
// ctype at present; custom extension options are not recovered). Default
// values are included here too when withDefault is set (everything but
// proto3), since they share the same bracket in proto2 output.
func fieldOptionText(f *schema.Field, withDefault bool) string {
	var parts []string
	if f.Options.HasPacked {
		parts = append(parts, fmt.Sprintf("packed = %s", strconv.FormatBool(f.Options.Packed)))
	}
	if f.Options.Deprecated {
		parts = append(parts, "deprecated = true")
	}
	if f.Options.HasJSONName {
		parts = append(parts, fmt.Sprintf("json_name = \"%s\"", escapeProtoString(f.Options.JSONName)))
	}
	if f.Options.HasCType {
		parts = append(parts, fmt.Sprintf("ctype = %s", f.Options.CType))
	}
	if withDefault && f.HasDefault {
		parts = append(parts, fmt.Sprintf("default = %s", defaultValueText(f)))
	}
	return strings.Join(parts, ", ")
}

func defaultValueText(f *schema.Field) string {
	switch f.Type {
	case schema.TypeString:
		return "\"" + escapeProtoString(f.DefaultValue) + "\""
	case schema.TypeBytes:
		return "\"" + escapeProtoString(f.DefaultValue) + "\""
	case schema.TypeBool:
		if f.DefaultValue == "1" || strings.EqualFold(f.DefaultValue, "true") {
			return "true"
		}
		return "false"
	case schema.TypeEnum:
		return f.DefaultValue
	default:
		return f.DefaultValue
	}
}

// escapeProtoString escapes the string default-value rendering rules of
// spec.md §4.3: backslash and double-quote, the common control-character
// shorthands, and \xNN for any other byte outside printable ASCII.
func escapeProtoString(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if c >= 0x80 || c < 0x20 {
				fmt.Fprintf(&b, `\x%02x`, c)
			} else {
				b.WriteByte(c)
			}
		}
	}
	return b.String()
}

func (r *renderer) writeExtension(f *schema.Field) {
	r.writeIndent()
	r.write("extend ")
	r.write(strings.TrimPrefix(f.Extendee, "."))
	r.write(" {\n")
	r.indent++
	r.writeField(&schema.Message{}, f, 0)
	r.indent--
	r.writeLine("}")
	r.blank()
}

func (r *renderer) writeService(s *schema.Service) {
	r.writeIndent()
	r.write("service ")
	r.write(s.Name)
	r.write(" {\n")
	r.indent++
	for _, m := range s.Methods {
		r.writeIndent()
		r.write("rpc ")
		r.write(m.Name)
		r.write(" (")
		if m.ClientStreaming {
			r.write("stream ")
		}
		r.write(strings.TrimPrefix(m.InputType, "."))
		r.write(") returns (")
		if m.ServerStreaming {
			r.write("stream ")
		}
		r.write(strings.TrimPrefix(m.OutputType, "."))
		r.write(")")
		if m.Deprecated {
			r.write(" {\n")
			r.indent++
			r.writeLine("option deprecated = true;")
			r.indent--
			r.writeLine("}")
		} else {
			r.write(";\n")
		}
	}
	r.indent--
	r.writeLine("}")
	r.blank()
}
