// Package manifest handles vmgen.toml configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "vmgen.toml"

// Manifest represents a vmgen.toml configuration.
type Manifest struct {
	Diagnostics Diagnostics `toml:"diagnostics"`
	Memory      Memory      `toml:"memory"`
	JIT         JIT         `toml:"jit"`
	Cache       Cache       `toml:"cache"`
	Log         Log         `toml:"log"`

	// Dir is the directory containing the vmgen.toml file (set at load time).
	Dir string `toml:"-"`
}

// Diagnostics configures checks and tracing in generated code.
type Diagnostics struct {
	Trace       bool  `toml:"trace"`
	TraceState  bool  `toml:"trace-state"`
	PopSentinel bool  `toml:"pop-sentinel"`
	Sentinel    int64 `toml:"sentinel"`
	Checks      *bool `toml:"checks"`
}

// Memory sizes the VM arena.
type Memory struct {
	Size       int `toml:"size"`
	StackSlots int `toml:"stack-slots"`
}

// JIT configures tiered execution.
type JIT struct {
	Enabled   *bool `toml:"enabled"`
	Threshold int   `toml:"threshold"`
}

// Cache configures the routine listing cache.
type Cache struct {
	Path string `toml:"path"`
}

// Log configures logging.
type Log struct {
	Verbosity int `toml:"verbosity"`
}

// Default returns the configuration used without a vmgen.toml.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Diagnostics.Sentinel == 0 {
		m.Diagnostics.Sentinel = 0xdead
	}
	if m.Diagnostics.Checks == nil {
		m.Diagnostics.Checks = boolPtr(true)
	}
	if m.Memory.Size == 0 {
		m.Memory.Size = 1 << 20
	}
	if m.Memory.StackSlots == 0 {
		m.Memory.StackSlots = 1024
	}
	if m.JIT.Enabled == nil {
		m.JIT.Enabled = boolPtr(true)
	}
	if m.JIT.Threshold == 0 {
		m.JIT.Threshold = 2
	}
}

func boolPtr(b bool) *bool { return &b }

// Validate reports settings no VM can run with.
func (m *Manifest) Validate() error {
	if m.Memory.Size < 0 {
		return fmt.Errorf("memory.size must not be negative, got %d", m.Memory.Size)
	}
	if m.Memory.StackSlots < 0 {
		return fmt.Errorf("memory.stack-slots must not be negative, got %d", m.Memory.StackSlots)
	}
	if m.JIT.Threshold < 0 {
		return fmt.Errorf("jit.threshold must not be negative, got %d", m.JIT.Threshold)
	}
	return nil
}

// Load parses a vmgen.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a vmgen.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// CachePath returns the cache database path resolved against the manifest
// directory, or "" when caching is off.
func (m *Manifest) CachePath() string {
	if m.Cache.Path == "" || m.Cache.Path == ":memory:" || filepath.IsAbs(m.Cache.Path) || m.Dir == "" {
		return m.Cache.Path
	}
	return filepath.Join(m.Dir, m.Cache.Path)
}
