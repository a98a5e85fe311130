package lifecycle

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// State constants for statekit integration.
// These must remain as untyped string constants for statekit.StateID compatibility.
const (
	StateIdle          = "idle"
	StateLoading       = "loading"
	StateShowingResult = "showing_result"
	StateShowingError  = "showing_error"
)

// Events accepted by the panel machine.
const (
	EventSubmit  = "submit"
	EventSucceed = "succeed"
	EventFail    = "fail"
	EventDismiss = "dismiss"
	EventReset   = "reset"
)

// State is the panel state of a controller.
type State string

func (s State) String() string { return string(s) }

// panelMachine wraps the statekit interpreter. It is not safe for concurrent
// use; the Controller serialises access.
type panelMachine struct {
	interpreter *statekit.Interpreter[struct{}]
}

func newPanelMachine() (*panelMachine, error) {
	builder := statekit.NewMachine[struct{}]("result-panel").
		WithInitial(statekit.StateID(StateIdle)).
		WithContext(struct{}{})

	builder.State(StateIdle).
		On(EventSubmit).Target(StateLoading).
		Done()

	builder.State(StateLoading).
		On(EventSucceed).Target(StateShowingResult).
		On(EventFail).Target(StateShowingError).
		On(EventReset).Target(StateIdle).
		Done()

	builder.State(StateShowingResult).
		On(EventSubmit).Target(StateLoading).
		On(EventDismiss).Target(StateIdle).
		On(EventReset).Target(StateIdle).
		Done()

	builder.State(StateShowingError).
		On(EventSubmit).Target(StateLoading).
		On(EventDismiss).Target(StateIdle).
		On(EventReset).Target(StateIdle).
		Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build panel state machine: %w", err)
	}

	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()

	return &panelMachine{interpreter: interpreter}, nil
}

// send fires event and returns an error if the machine did not move.
func (m *panelMachine) send(event string) error {
	before := m.current()
	m.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
	if m.current() != before {
		return nil
	}
	return fmt.Errorf("event %q is not allowed while the panel is %q", event, before)
}

func (m *panelMachine) current() State {
	return State(m.interpreter.State().Value)
}
