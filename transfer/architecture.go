package transfer

type State interface{}

type TransitionResult struct {
	NewState State
	Events   []Event
}

type StateTransitionCallback func(chainState *ChainState, stateChange StateChange) TransitionResult

// StateManager keeps the current chain state. It is not safe for concurrent
// use; the owner serializes Dispatch.
type StateManager struct {
	StateTransition StateTransitionCallback
	CurrentState    *ChainState
}

func NewStateManager(transition StateTransitionCallback, state *ChainState) *StateManager {
	return &StateManager{StateTransition: transition, CurrentState: state}
}

// Dispatch applies stateChange. The previous state is left untouched so it
// can still be read by holders of older snapshots.
func (self *StateManager) Dispatch(stateChange StateChange) []Event {
	iteration := self.StateTransition(self.CurrentState, stateChange)
	if next, ok := iteration.NewState.(*ChainState); ok && next != nil {
		self.CurrentState = next
	}
	return iteration.Events
}
