package domain

// CommandKind names a command accepted by the pipeline.
type CommandKind string

const (
	CommandEnqueue       CommandKind = "enqueue"
	CommandCancelCurrent CommandKind = "cancel_current"
	CommandCancelAll     CommandKind = "cancel_all"
)

// Command is a typed request from a producer (HTTP, websocket, CLI) to the pipeline.
type Command interface {
	Kind() CommandKind
}

// EnqueueCommand asks for a new job.
type EnqueueCommand struct {
	Request CacheRequest
}

// Kind returns the command kind.
func (EnqueueCommand) Kind() CommandKind { return CommandEnqueue }

// CancelCurrentCommand stops the in-flight job only.
type CancelCurrentCommand struct{}

// Kind returns the command kind.
func (CancelCurrentCommand) Kind() CommandKind { return CommandCancelCurrent }

// CancelAllCommand discards the queue and stops the in-flight job.
type CancelAllCommand struct{}

// Kind returns the command kind.
func (CancelAllCommand) Kind() CommandKind { return CommandCancelAll }

// ParseCommandKind maps a wire name to a cancel command.
// Enqueue needs a payload and is not accepted here.
func ParseCommandKind(kind string) (Command, error) {
	switch CommandKind(kind) {
	case CommandCancelCurrent:
		return CancelCurrentCommand{}, nil
	case CommandCancelAll:
		return CancelAllCommand{}, nil
	default:
		return nil, NewValidationError("command", kind, ErrUnsupportedCommand.Error())
	}
}

// CommandResult is what the dispatcher returns for a command.
type CommandResult struct {
	// Job is set for enqueue commands
	Job *CacheJob `json:"job,omitempty"`

	// Canceled reports whether a cancel command stopped an in-flight job
	Canceled bool `json:"canceled"`

	// Removed is the number of queued jobs discarded by cancel-all
	Removed int `json:"removed"`
}
