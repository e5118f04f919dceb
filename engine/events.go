package engine

// EventType identifies what an Event carries.
type EventType string

const (
	// EventTurnStart marks the beginning of a model turn. Turn is set.
	EventTurnStart EventType = "turn_start"
	// EventText carries one text fragment in Content.
	EventText EventType = "text"
	// EventToolCallRequest carries a reassembled call in ID, Name and
	// Arguments. It is emitted even when the tool is unknown.
	EventToolCallRequest EventType = "tool_call_request"
	// EventToolCallResponse carries the tool result for ID in Content.
	EventToolCallResponse EventType = "tool_call_response"
)

// Event is one element of the sequence returned by Run.Events.
type Event struct {
	Type      EventType
	Turn      int
	ID        string
	Name      string
	Arguments string
	Content   string
}

// State is the position of a Run in the iteration state machine.
type State string

const (
	StateAwaitingResponse State = "awaiting_response"
	StateStreaming        State = "streaming"
	StateDispatching      State = "dispatching"
	StateDone             State = "done"
	StateFailed           State = "failed"
	// StateAbandoned is entered when the consumer stops pulling events
	// before the run completes.
	StateAbandoned State = "abandoned"
)

// Terminal reports whether no further events can be produced.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateFailed, StateAbandoned:
		return true
	default:
		return false
	}
}
