package il

import "testing"

func TestDefineStructLayout(t *testing.T) {
	d := NewTypeDictionary()
	rec, err := d.DefineStruct("Rec",
		FieldDef{Name: "flag", Type: d.Uint8},
		FieldDef{Name: "count", Type: d.Int64},
		FieldDef{Name: "small", Type: d.Int32},
		FieldDef{Name: "body", Type: d.Uint8, Trailing: true},
	)
	if err != nil {
		t.Fatalf("DefineStruct: %v", err)
	}

	want := map[string]int64{"flag": 0, "count": 8, "small": 16, "body": 20}
	for name, off := range want {
		f, ok := rec.Field(name)
		if !ok {
			t.Fatalf("field %q missing", name)
		}
		if f.Offset != off {
			t.Errorf("%s offset = %d, want %d", name, f.Offset, off)
		}
	}
	if rec.Size() != 24 {
		t.Errorf("size = %d, want 24", rec.Size())
	}

	f, err := d.FieldOffset("Rec", "count")
	if err != nil || f.Offset != 8 {
		t.Errorf("FieldOffset = %+v, %v", f, err)
	}
}

func TestDefineStructErrors(t *testing.T) {
	tests := []struct {
		name string
		defs []FieldDef
	}{
		{"nil field type", []FieldDef{{Name: "a", Type: nil}}},
		{"trailing not last", []FieldDef{
			{Name: "t", Type: NewTypeDictionary().Uint8, Trailing: true},
			{Name: "b", Type: NewTypeDictionary().Int64},
		}},
		{"non-scalar field", []FieldDef{{Name: "s", Type: NewTypeDictionary().String}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewTypeDictionary()
			if _, err := d.DefineStruct("X", tt.defs...); err == nil {
				t.Error("expected error")
			}
		})
	}

	d := NewTypeDictionary()
	if _, err := d.DefineStruct("X", FieldDef{Name: "a", Type: d.Int64}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.DefineStruct("X", FieldDef{Name: "a", Type: d.Int64}); err == nil {
		t.Error("redefinition accepted")
	}
	if _, err := d.FieldOffset("X", "missing"); err == nil {
		t.Error("missing field resolved")
	}
	if _, err := d.FieldOffset("Y", "a"); err == nil {
		t.Error("missing struct resolved")
	}
}
