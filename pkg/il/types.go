package il

import "fmt"

// Kind classifies the scalar and aggregate types a routine can manipulate.
type Kind uint8

const (
	KindNone Kind = iota
	KindUint8
	KindInt32
	KindInt64
	KindAddress
	KindString
	KindStruct
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindUint8:
		return "uint8"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindAddress:
		return "address"
	case KindString:
		return "string"
	case KindStruct:
		return "struct"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Size returns the in-memory width of a scalar kind. Strings and structs
// have no scalar width.
func (k Kind) Size() int64 {
	switch k {
	case KindUint8:
		return 1
	case KindInt32:
		return 4
	case KindInt64, KindAddress:
		return 8
	default:
		return 0
	}
}

// Type describes a value type. Struct types carry a named field layout so
// generated code can address fields by (struct, field) name.
type Type struct {
	Kind Kind
	Name string

	size   int64
	align  int64
	fields []Field
	byName map[string]int
}

// Field is one laid-out member of a struct type.
type Field struct {
	Name   string
	Type   *Type
	Offset int64
}

// FieldDef declares a struct member. A Trailing field occupies no space and
// addresses the bytes immediately following the fixed part of the record
// (a flexible array member); it must be declared last.
type FieldDef struct {
	Name     string
	Type     *Type
	Trailing bool
}

// Size returns the size of the type in bytes.
func (t *Type) Size() int64 { return t.size }

// String returns the type name.
func (t *Type) String() string { return t.Name }

// Fields returns the struct layout in declaration order.
func (t *Type) Fields() []Field { return t.fields }

// Field looks up a struct member by name.
func (t *Type) Field(name string) (Field, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Field{}, false
	}
	return t.fields[i], true
}

// IsScalar reports whether values of the type fit in a machine word.
func (t *Type) IsScalar() bool {
	switch t.Kind {
	case KindUint8, KindInt32, KindInt64, KindAddress:
		return true
	}
	return false
}

// TypeDictionary holds the primitive types and the named record layouts
// shared by every routine built against it.
type TypeDictionary struct {
	NoType  *Type
	Uint8   *Type
	Int32   *Type
	Int64   *Type
	Address *Type
	String  *Type

	structs map[string]*Type
}

// NewTypeDictionary creates a dictionary containing only primitive types.
func NewTypeDictionary() *TypeDictionary {
	scalar := func(k Kind) *Type {
		return &Type{Kind: k, Name: k.String(), size: k.Size(), align: k.Size()}
	}
	return &TypeDictionary{
		NoType:  &Type{Kind: KindNone, Name: "none"},
		Uint8:   scalar(KindUint8),
		Int32:   scalar(KindInt32),
		Int64:   scalar(KindInt64),
		Address: scalar(KindAddress),
		String:  &Type{Kind: KindString, Name: "string"},
		structs: make(map[string]*Type),
	}
}

// DefineStruct lays out a record type with natural alignment and registers
// it under name.
func (d *TypeDictionary) DefineStruct(name string, defs ...FieldDef) (*Type, error) {
	if _, exists := d.structs[name]; exists {
		return nil, fmt.Errorf("il: struct %q already defined", name)
	}

	t := &Type{Kind: KindStruct, Name: name, align: 1, byName: make(map[string]int, len(defs))}
	var offset int64
	for i, def := range defs {
		if def.Type == nil || !def.Type.IsScalar() {
			return nil, fmt.Errorf("il: struct %s field %q: unsupported field type", name, def.Name)
		}
		if _, dup := t.byName[def.Name]; dup {
			return nil, fmt.Errorf("il: struct %s: duplicate field %q", name, def.Name)
		}
		if def.Trailing && i != len(defs)-1 {
			return nil, fmt.Errorf("il: struct %s: trailing field %q must be last", name, def.Name)
		}

		offset = alignUp(offset, def.Type.align)
		t.byName[def.Name] = len(t.fields)
		t.fields = append(t.fields, Field{Name: def.Name, Type: def.Type, Offset: offset})
		if def.Type.align > t.align {
			t.align = def.Type.align
		}
		if !def.Trailing {
			offset += def.Type.size
		}
	}
	t.size = alignUp(offset, t.align)

	d.structs[name] = t
	return t, nil
}

// LookupStruct returns a previously defined record type.
func (d *TypeDictionary) LookupStruct(name string) (*Type, bool) {
	t, ok := d.structs[name]
	return t, ok
}

// FieldOffset resolves a (struct, field) pair.
func (d *TypeDictionary) FieldOffset(structName, field string) (Field, error) {
	t, ok := d.structs[structName]
	if !ok {
		return Field{}, fmt.Errorf("il: unknown struct %q", structName)
	}
	f, ok := t.Field(field)
	if !ok {
		return Field{}, fmt.Errorf("il: struct %s has no field %q", structName, field)
	}
	return f, nil
}

func alignUp(n, align int64) int64 {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}
