package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// State is a device's lifecycle state (spec.md §4.2).
type State string

const (
	StateDiscovered    State = "discovered"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateStreaming     State = "streaming"
	StatePaused        State = "paused"
	StateDisconnecting State = "disconnecting"
	StateClosed        State = "closed"
	StateErrored       State = "errored"
)

// validTransitions enumerates every allowed state change. Any state may
// transition to Errored, so that edge is added once below rather than
// repeated per-source-state.
var validTransitions = map[State]map[State]bool{
	StateDiscovered:    {StateConnecting: true},
	StateConnecting:    {StateConnected: true},
	StateConnected:     {StateStreaming: true, StateDisconnecting: true},
	StateStreaming:     {StatePaused: true, StateDisconnecting: true},
	StatePaused:        {StateStreaming: true, StateDisconnecting: true},
	StateDisconnecting: {StateClosed: true},
	StateClosed:        {StateConnecting: true},
	StateErrored:       {StateConnecting: true},
}

func init() {
	for state, targets := range validTransitions {
		if state == StateErrored {
			continue
		}
		targets[StateErrored] = true
	}
}

// FSM tracks one device's lifecycle state and reconnect backoff. It is
// safe for concurrent use.
type FSM struct {
	mu    sync.Mutex
	state State
	bo    *backoff.ExponentialBackOff
}

// NewFSM builds an FSM starting in StateDiscovered, with the backoff
// policy from spec.md §4.2: exponential, capped at 30s, jittered ±20%.
func NewFSM() *FSM {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 30 * time.Second
	bo.Multiplier = 2.0
	bo.RandomizationFactor = 0.2

	return &FSM{state: StateDiscovered, bo: bo}
}

// State returns the FSM's current state.
func (f *FSM) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Transition moves the FSM to to, returning an error if the transition
// is not allowed from the current state. Re-entering Connecting from
// Errored or Closed resets the backoff.
func (f *FSM) Transition(to State) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	allowed, ok := validTransitions[f.state]
	if !ok || !allowed[to] {
		return fmt.Errorf("device: invalid transition %s -> %s", f.state, to)
	}

	if to == StateConnecting && (f.state == StateErrored || f.state == StateClosed) {
		f.bo.Reset()
	}
	if to == StateConnected {
		f.bo.Reset()
	}

	f.state = to
	return nil
}

// NextBackoff returns the next reconnect delay, advancing the backoff's
// internal state.
func (f *FSM) NextBackoff() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.bo.NextBackOff()
	if d == backoff.Stop {
		return f.bo.MaxInterval
	}
	return d
}
