package il

// VMState is the per-path virtual machine state threaded through generation.
// Implementations reconcile cached generation-time values with memory and
// with other paths:
//
//   - Commit flushes cached values to memory.
//   - Reload re-reads memory into the cache after an external call.
//   - MergeInto writes this state's values into the slots dest already uses,
//     so code generated after a join sees one canonical set of values.
//   - MakeCopy produces an independent state for a successor path.
type VMState interface {
	Commit(b *Builder)
	Reload(b *Builder)
	MergeInto(b *Builder, dest VMState)
	MakeCopy(b *Builder) VMState
}

// GotoWithState transfers s to target and jumps there. The first predecessor
// to reach target donates a copy of its state; every later predecessor merges
// into it, so all incoming edges agree on where each live value resides.
func (b *Builder) GotoWithState(target *Block, s VMState) {
	if s != nil {
		if target.state == nil {
			target.state = s.MakeCopy(b)
		} else {
			s.MergeInto(b, target.state)
		}
	}
	b.Goto(target)
}
