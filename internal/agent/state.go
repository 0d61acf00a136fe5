package agent

// State is the orchestrator's position while handling one user message.
type State string

const (
	StateNotConfigured   State = "NOT_CONFIGURED"
	StateAwaitModel      State = "AWAIT_MODEL"
	StateAwaitTool       State = "AWAIT_TOOL"
	StateAwaitModelFinal State = "AWAIT_MODEL_FINAL"
	StateDone            State = "DONE"
	StateFailed          State = "FAILED"
)
