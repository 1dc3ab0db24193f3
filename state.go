package hangar

// LoopState is a state of the specialist reason/act/observe machine.
type LoopState int

const (
	StateReasoning LoopState = iota // waiting on the reasoning engine
	StateActing                     // executing requested tool calls
	StateDone                       // final answer produced
	StateDegraded                   // iteration cap hit; best-effort answer
)

var loopStateNames = [...]string{
	StateReasoning: "reasoning",
	StateActing:    "acting",
	StateDone:      "done",
	StateDegraded:  "degraded",
}

// String returns the lower-case state name.
func (s LoopState) String() string {
	if s < 0 || int(s) >= len(loopStateNames) {
		return "unknown"
	}
	return loopStateNames[s]
}

// Terminal reports whether no transition leaves s.
func (s LoopState) Terminal() bool {
	return s == StateDone || s == StateDegraded
}
