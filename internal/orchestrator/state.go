package orchestrator

import (
	"fmt"

	dErrors "zerotrust/pkg/domain-errors"
)

// State is a verification request's position in its lifecycle.
type State int

const (
	StateReceived State = iota + 1
	StateVerified
	StateNullifierChecked
	StatePolicyEvaluated
	StateAudited
	StateCompleted
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateVerified:
		return "verified"
	case StateNullifierChecked:
		return "nullifier_checked"
	case StatePolicyEvaluated:
		return "policy_evaluated"
	case StateAudited:
		return "audited"
	case StateCompleted:
		return "completed"
	case StateRejected:
		return "rejected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// next is the only forward edge out of each state. Rejected is reachable
// from any non-terminal state and is handled separately.
var next = map[State]State{
	StateReceived:         StateVerified,
	StateVerified:         StateNullifierChecked,
	StateNullifierChecked: StatePolicyEvaluated,
	StatePolicyEvaluated:  StateAudited,
	StateAudited:          StateCompleted,
}

func (s State) terminal() bool {
	return s == StateCompleted || s == StateRejected
}

// lifecycle tracks one request. It is owned by a single goroutine.
type lifecycle struct {
	state   State
	history []State
	reason  dErrors.Code
}

func newLifecycle() *lifecycle {
	return &lifecycle{state: StateReceived, history: []State{StateReceived}}
}

func (l *lifecycle) advance(to State) error {
	if want, ok := next[l.state]; !ok || want != to {
		return dErrors.New(dErrors.CodeInvariantViolation,
			fmt.Sprintf("illegal transition %s -> %s", l.state, to))
	}
	l.state = to
	l.history = append(l.history, to)
	return nil
}

func (l *lifecycle) reject(err error) {
	if l.state.terminal() {
		return
	}
	code, ok := dErrors.CodeOf(err)
	if !ok {
		code = dErrors.CodeInternal
	}
	l.reason = code
	l.state = StateRejected
	l.history = append(l.history, StateRejected)
}
