package sim

import "github.com/clegans/clegans/sim/trace"

// TraceInto records every hook dispatch of n's tree into st. Passing a nil
// trace stops recording.
func TraceInto(n Node, st *trace.SimulationTrace) {
	if st == nil {
		SetHookObserver(n, nil)
		return
	}
	SetHookObserver(n, func(kind HookKind, hook HookName, cur Node) {
		st.RecordDispatch(string(kind), string(hook), cur.Base().Name())
	})
}
