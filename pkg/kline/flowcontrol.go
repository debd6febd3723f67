package kline

import "fmt"

// State is the flow-control state of one connection.
type State uint8

const (
	// Idle: no transaction in flight.
	Idle State = iota
	// WaitingCTS: a frame has been sent, waiting for the 0x00
	// clear-to-send byte.
	WaitingCTS
	// Ready: CTS observed, the response frame may be read.
	Ready
	// Failed: a transport operation failed; Reset is required before
	// the next transaction.
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case WaitingCTS:
		return "waiting-cts"
	case Ready:
		return "ready"
	case Failed:
		return "error"
	}
	return "unknown"
}

// FlowControlManager serializes transactions on one connection. It is
// the sole mutator of the state and doubles as the in-flight guard:
// only a connection in Idle may send. Not safe for concurrent use, by
// design — one logical worker owns each connection.
type FlowControlManager struct {
	state State
}

func NewFlowControlManager() *FlowControlManager {
	return &FlowControlManager{state: Idle}
}

func (f *FlowControlManager) State() State { return f.state }

// FrameSent moves Idle -> WaitingCTS. Any other origin state means a
// transaction is already in flight.
func (f *FlowControlManager) FrameSent() error {
	if f.state != Idle {
		return fmt.Errorf("transaction already in flight (state %s)", f.state)
	}
	f.state = WaitingCTS
	return nil
}

// CTSReceived moves WaitingCTS -> Ready.
func (f *FlowControlManager) CTSReceived() error {
	if f.state != WaitingCTS {
		return fmt.Errorf("unexpected CTS in state %s", f.state)
	}
	f.state = Ready
	return nil
}

// ResponseConsumed moves Ready -> Idle, completing the transaction.
func (f *FlowControlManager) ResponseConsumed() error {
	if f.state != Ready {
		return fmt.Errorf("no response pending in state %s", f.state)
	}
	f.state = Idle
	return nil
}

// Fail moves to Failed from any state.
func (f *FlowControlManager) Fail() {
	f.state = Failed
}

// Reset returns to Idle, clearing a failure or abandoning an attempt.
func (f *FlowControlManager) Reset() {
	f.state = Idle
}
