package il

import (
	"errors"
	"testing"
)

func TestMemoryAllocAlignment(t *testing.T) {
	m := NewMemory(256)

	a, err := m.Alloc(3, 1)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if a < nullGuard {
		t.Errorf("first allocation at 0x%x overlaps the null guard", a)
	}

	b, err := m.Alloc(8, 8)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if b%8 != 0 {
		t.Errorf("8-aligned allocation at 0x%x", b)
	}
	if b < a+3 {
		t.Errorf("allocations overlap: 0x%x then 0x%x", a, b)
	}
}

func TestMemoryOutOfSpace(t *testing.T) {
	m := NewMemory(64)
	if _, err := m.Alloc(40, 8); err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if _, err := m.Alloc(40, 8); err == nil {
		t.Fatal("expected out-of-memory error")
	}
}

func TestMemoryScalarRoundTrip(t *testing.T) {
	m := NewMemory(128)
	addr, _ := m.Alloc(8, 8)

	tests := []struct {
		kind Kind
		in   int64
		want int64
	}{
		{KindInt64, -42, -42},
		{KindAddress, 0x1234, 0x1234},
		{KindInt32, -7, -7},
		{KindInt32, 1 << 33, 0},
		{KindUint8, 0x1FF, 0xFF},
		{KindUint8, -1, 255},
	}

	for _, tt := range tests {
		m.Store(tt.kind, addr, tt.in)
		if got := m.Load(tt.kind, addr); got != tt.want {
			t.Errorf("%s store %d: load = %d, want %d", tt.kind, tt.in, got, tt.want)
		}
	}
}

func TestMemoryLittleEndian(t *testing.T) {
	m := NewMemory(64)
	addr, _ := m.Alloc(8, 8)
	m.StoreInt64(addr, 0x0102030405060708)

	got := m.Read(addr, 8)
	want := []byte{8, 7, 6, 5, 4, 3, 2, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d (bytes %v)", i, got[i], want[i], got)
		}
	}
	if b := m.LoadUint8(addr); b != 8 {
		t.Errorf("LoadUint8 = %d, want 8", b)
	}
}

func TestMemoryFault(t *testing.T) {
	m := NewMemory(64)

	tests := []struct {
		name string
		fn   func()
	}{
		{"null", func() { m.LoadInt64(0) }},
		{"past end", func() { m.StoreInt64(60, 1) }},
		{"write past end", func() { m.Write(62, []byte{1, 2, 3}) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				r := recover()
				f, ok := r.(*Fault)
				if !ok {
					t.Fatalf("recovered %v, want *Fault", r)
				}
				var target *Fault
				if !errors.As(error(f), &target) {
					t.Errorf("Fault does not satisfy error")
				}
			}()
			tt.fn()
		})
	}
}
