package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadManifest(t *testing.T) {
	// Create a temporary directory with a vmgen.toml
	dir := t.TempDir()
	tomlContent := `
[diagnostics]
trace = true
pop-sentinel = true
sentinel = 0xbeef
checks = false

[memory]
size = 65536
stack-slots = 64

[jit]
enabled = false
threshold = 5

[cache]
path = "routines.db"

[log]
verbosity = 2
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !m.Diagnostics.Trace || m.Diagnostics.TraceState {
		t.Errorf("trace = %v, trace-state = %v", m.Diagnostics.Trace, m.Diagnostics.TraceState)
	}
	if !m.Diagnostics.PopSentinel || m.Diagnostics.Sentinel != 0xbeef {
		t.Errorf("sentinel = %v/0x%x, want true/0xbeef", m.Diagnostics.PopSentinel, m.Diagnostics.Sentinel)
	}
	if *m.Diagnostics.Checks {
		t.Error("checks should be false")
	}
	if m.Memory.Size != 65536 || m.Memory.StackSlots != 64 {
		t.Errorf("memory = %+v", m.Memory)
	}
	if *m.JIT.Enabled || m.JIT.Threshold != 5 {
		t.Errorf("jit = %v/%d, want false/5", *m.JIT.Enabled, m.JIT.Threshold)
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("verbosity = %d, want 2", m.Log.Verbosity)
	}
	if got, want := m.CachePath(), filepath.Join(m.Dir, "routines.db"); got != want {
		t.Errorf("CachePath() = %q, want %q", got, want)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("[log]\nverbosity = 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	d := Default()
	if m.Memory != d.Memory {
		t.Errorf("memory = %+v, want %+v", m.Memory, d.Memory)
	}
	if m.Diagnostics.Sentinel != 0xdead {
		t.Errorf("sentinel = 0x%x, want 0xdead", m.Diagnostics.Sentinel)
	}
	if !*m.Diagnostics.Checks || !*m.JIT.Enabled || m.JIT.Threshold != 2 {
		t.Errorf("defaults not applied: checks=%v jit=%v threshold=%d", *m.Diagnostics.Checks, *m.JIT.Enabled, m.JIT.Threshold)
	}
	if m.CachePath() != "" {
		t.Errorf("CachePath() = %q, want empty", m.CachePath())
	}
}

func TestLoadManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "[memory\nsize = 1"},
		{"negative size", "[memory]\nsize = -1"},
		{"negative threshold", "[jit]\nthreshold = -3"},
		{"wrong type", "[memory]\nsize = \"big\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(dir); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, FileName), []byte("[jit]\nthreshold = 7\n"), 0644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	m, err := FindAndLoad(sub)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil || m.JIT.Threshold != 7 {
		t.Fatalf("manifest = %+v, want threshold 7", m)
	}
}

func TestFindAndLoadNoManifest(t *testing.T) {
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m != nil {
		t.Errorf("expected nil manifest, got %+v", m)
	}
}
