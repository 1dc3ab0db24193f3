package hangar

// Question is the immutable input of one invocation.
type Question struct {
	Text      string
	SessionID string // opaque caller-supplied identifier; not interpreted
}
