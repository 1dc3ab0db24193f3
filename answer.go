package hangar

// Answer is the outcome of one invocation.
type Answer struct {
	Domain     Domain
	Text       string
	Messages   []Message // transcript, starting with the question
	Degraded   bool      // loop hit its iteration cap or got an empty reply; Text carries a caveat
	Iterations int       // acting steps performed
	Usage      Usage
}
