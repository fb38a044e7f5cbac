package adaptor

// State is the lifecycle state of a Controller.
type State string

// Lifecycle states.
const (
	StateIdle               State = "idle"
	StateStarting           State = "starting"
	StateAwaitingClientInit State = "awaiting_client_init"
	StateReady              State = "ready"
	StateRendering          State = "rendering"
	StateCleaningUp         State = "cleaning_up"
	StateStopped            State = "stopped"
	StateFaulted            State = "faulted"
)

func (s State) String() string {
	return string(s)
}
