package sync

// State is a step of the orchestrator's batch state machine.
type State string

const (
	StateIdle                 State = "idle"
	StateScanning             State = "scanning"
	StateDiffing              State = "diffing"
	StateAwaitingConfirmation State = "awaiting-confirmation"
	StateBackingUp            State = "backing-up"
	StateMutating             State = "mutating"
	StateCommitting           State = "committing"
	StateSaving               State = "saving"
	StateRollingBack          State = "rolling-back"
)

// transitions lists the legal successors of each state. Removal batches
// start at BackingUp and explicit rollbacks at RollingBack. Committing
// follows a successful save and cannot roll back.
var transitions = map[State][]State{
	StateIdle:                 {StateScanning, StateBackingUp, StateRollingBack},
	StateScanning:             {StateDiffing, StateIdle},
	StateDiffing:              {StateAwaitingConfirmation, StateBackingUp, StateIdle},
	StateAwaitingConfirmation: {StateBackingUp, StateIdle},
	StateBackingUp:            {StateMutating, StateIdle},
	StateMutating:             {StateSaving, StateRollingBack},
	StateSaving:               {StateCommitting, StateRollingBack},
	StateCommitting:           {StateIdle},
	StateRollingBack:          {StateIdle},
}

// CanTransition reports whether the machine may move from s to next.
func (s State) CanTransition(next State) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Mutating reports whether the store may hold unsaved changes in this state.
func (s State) Mutating() bool {
	switch s {
	case StateMutating, StateSaving:
		return true
	default:
		return false
	}
}
