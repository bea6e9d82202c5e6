// Package vm builds executable code for vmgen bytecode functions from one
// set of opcode handlers.
//
// This package contains:
//   - Memory layouts of the Interpreter and Func records
//   - Func descriptors and the handle table resolving them
//   - Machine, the per-path VM state threaded through generation
//   - Opcode handlers and the immutable HandlerTable
//   - Compiler, specializing one function into a straight-line routine
//   - BuildInterpreter, emitting the generic dispatch loop
//   - Verify, a dry run with no backing memory
//   - Engine, running functions interpreted and compiling hot ones
//   - RoutineCache, persisting listings of generated routines
package vm
