package lifecycle

// State is the disposal state of a Lifecycle. It only moves forward.
type State int

const (
	// Initialized is the state of a live lifecycle.
	Initialized State = iota
	// AwaitingDisposal means Dispose was called and registered awaitables are draining.
	AwaitingDisposal
	// Disposing means managed children are being disposed.
	Disposing
	// Disposed is terminal.
	Disposed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case AwaitingDisposal:
		return "awaiting_disposal"
	case Disposing:
		return "disposing"
	case Disposed:
		return "disposed"
	default:
		return "unknown"
	}
}
