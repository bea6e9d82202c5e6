package model

import "github.com/chazu/vmgen/pkg/il"

// Trap emits code that aborts the running routine with a diagnostic. It is
// only invoked from run-time guards in Real mode.
type Trap func(b *il.Builder, reason string)

// Options tune the code emitted by memory-backed components.
type Options struct {
	// Checks enables run-time guards (stack bounds, local index range) in
	// Real mode. Virt and Pure always check at generation time.
	Checks bool
	// StackSlots bounds Virt and Pure stacks, reserved slots included.
	// Zero leaves them unbounded.
	StackSlots uint64
	// Sentinel makes Pop overwrite the vacated slot with SentinelValue.
	Sentinel      bool
	SentinelValue int64
	// Trap is called when a run-time guard fails. With a nil Trap the guards
	// are not emitted.
	Trap Trap
}

// DefaultSentinel is the value written to popped slots when Sentinel is set.
const DefaultSentinel = 0xdead

// DefaultOptions enables checks without a sentinel.
func DefaultOptions() Options {
	return Options{Checks: true, SentinelValue: DefaultSentinel}
}

func (o Options) guard(b *il.Builder, bad *il.Value, reason string) {
	if !o.Checks || o.Trap == nil {
		return
	}
	b.IfThen(bad, func(tb *il.Builder) { o.Trap(tb, reason) })
}
