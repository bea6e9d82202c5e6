// Package model provides mode-polymorphic building blocks for describing a
// virtual machine's state during code generation.
//
// Each component (Register, OperandStack, OperandArray, Pc) comes in three
// flavours selected once, when a generation pass is set up:
//
//   - Real components emit code that reads and writes live memory. The
//     generated code is a generic interpreter; nothing is cached.
//   - Virt components cache symbolic values while a function-specific routine
//     is generated, touching memory only on Initialize, Commit and Reload.
//   - Pure components cache like Virt but have no backing memory at all.
//
// All flavours share the same state contract (Initialize, Commit, Reload,
// MergeInto, Clone) so that generation can fork at branches and reconcile at
// joins without knowing which mode it runs in.
package model
