package device

import (
	"context"
	"errors"

	"github.com/looplab/fsm"

	fsmutil "github.com/autopeer-io/denhub/internal/pkg/util/fsm"
)

// Connection states.
const (
	StateIdle       = "idle"
	StateConnecting = "connecting"
	StateConnected  = "connected"
	StateWaiting    = "waiting"
	StateStopped    = "stopped"
)

const (
	// EventDial (Active) starts a new channel.
	EventDial = "event_dial"
	// EventOpen marks the channel as open.
	EventOpen = "event_open"
	// EventLose marks the channel as gone; a reconnect is pending.
	EventLose = "event_lose"
	// EventStop ends the lifecycle.
	EventStop = "event_stop"
)

// ConnectionStateMachine tracks the lifecycle of the device connection.
type ConnectionStateMachine struct {
	*fsm.FSM

	observer Observer
}

func NewConnectionStateMachine(observer Observer) *ConnectionStateMachine {
	if observer == nil {
		observer = NopObserver{}
	}
	f := &ConnectionStateMachine{observer: observer}

	events := fsm.Events{
		{Name: EventDial, Src: []string{StateIdle, StateWaiting, StateConnecting, StateConnected}, Dst: StateConnecting},
		{Name: EventOpen, Src: []string{StateConnecting}, Dst: StateConnected},
		{Name: EventLose, Src: []string{StateConnecting, StateConnected}, Dst: StateWaiting},
		{Name: EventStop, Src: []string{StateIdle, StateConnecting, StateConnected, StateWaiting}, Dst: StateStopped},
	}

	callbacks := fsm.Callbacks{
		"enter_state": fsmutil.WrapEvent(f.ActionEnterState),
	}

	f.FSM = fsm.NewFSM(StateIdle, events, callbacks)
	return f
}

// ActionEnterState reports every transition to the observer.
func (f *ConnectionStateMachine) ActionEnterState(_ context.Context, e *fsm.Event) error {
	f.observer.StateChanged(e.Src, e.Dst)
	return nil
}

// Fire triggers event. Transitions that are not allowed or change nothing
// are not errors.
func (f *ConnectionStateMachine) Fire(event string) error {
	err := f.Event(context.Background(), event)
	if isFsmRealError(err) {
		return err
	}
	return nil
}

func isFsmRealError(err error) bool {
	if err == nil {
		return false
	}

	var noTransition fsm.NoTransitionError
	var invalid fsm.InvalidEventError
	var canceled fsm.CanceledError

	if errors.As(err, &noTransition) || errors.As(err, &invalid) || errors.As(err, &canceled) {
		return false
	}

	return true
}
