package schema

// Event type constants for run transcripts.
const (
	EventRunStarted    = "run_started"
	EventRunCompleted  = "run_completed"
	EventRunTerminated = "run_terminated"
	EventRunFailed     = "run_failed"

	EventFlowEntered  = "flow_entered"
	EventFlowReturned = "flow_returned"
	EventFlowExited   = "flow_exited"
	EventFlowFailed   = "flow_failed"

	EventSpoke          = "spoke"
	EventListenStarted  = "listen_started"
	EventHeard          = "heard"
	EventListenTimedOut = "listen_timed_out"
	EventHandover       = "handover"
)

// InvocationStatus is the lifecycle state of one flow invocation.
type InvocationStatus string

const (
	InvocationPending   InvocationStatus = "pending"
	InvocationRunning   InvocationStatus = "running"
	InvocationSuspended InvocationStatus = "suspended"
	InvocationExited    InvocationStatus = "exited"
	InvocationReturned  InvocationStatus = "returned"
	InvocationFailed    InvocationStatus = "failed"
)

// RunStatus is the final state of a whole run.
type RunStatus string

const (
	RunStatusRunning    RunStatus = "running"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusTerminated RunStatus = "terminated"
	RunStatusFailed     RunStatus = "failed"
)
