package model

import "fmt"

// Mode selects how generated code relates to virtual machine memory.
type Mode uint8

const (
	// Real generates a generic interpreter reading live memory at run time.
	Real Mode = iota
	// Virt generates a function-specific routine; values may be known at
	// generation time.
	Virt
	// Pure caches like Virt but has no backing storage.
	Pure
)

func (m Mode) String() string {
	switch m {
	case Real:
		return "REAL"
	case Virt:
		return "VIRT"
	case Pure:
		return "PURE"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// Caches reports whether components of this mode hold generation-time state.
func (m Mode) Caches() bool { return m != Real }

// HasMemory reports whether components of this mode have a backing address.
func (m Mode) HasMemory() bool { return m != Pure }
