package wire

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// NewCommandID returns a fresh command identifier. UUIDv4 gives the 128 bits
// of randomness the correlation table relies on for collision-free ids.
func NewCommandID() string {
	return uuid.New().String()
}

// ValidateCommandID checks that an id is a well-formed UUID. Frames carrying
// malformed ids are rejected before they can touch the correlation table.
func ValidateCommandID(id string) error {
	if id == "" {
		return fmt.Errorf("command id cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid command id %q: %w", id, err)
	}
	return nil
}

// NewCommandRequest builds a command_request envelope. Params are marshaled
// here so an encoding failure surfaces before anything is sent.
func NewCommandRequest(channel, id, command string, params any) (*Envelope, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode params for %s: %w", command, err)
	}
	return &Envelope{
		Type:    MessageCommandRequest,
		ID:      id,
		Command: command,
		Channel: channel,
		Params:  raw,
	}, nil
}

// NewJoin builds the join frame for a channel.
func NewJoin(channel string) *Envelope {
	return &Envelope{Type: MessageJoin, Channel: channel}
}

// NewJoinAck builds the relay's acknowledgement of a join.
func NewJoinAck(channel string) *Envelope {
	return &Envelope{Type: MessageJoin, Channel: channel, OK: true}
}

// NewCommandResult builds a success command_result envelope.
func NewCommandResult(id string, result any) (*Envelope, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	ok := true
	return &Envelope{
		Type:    MessageCommandResult,
		ID:      id,
		Success: &ok,
		Result:  raw,
	}, nil
}

// NewCommandError builds a failure command_result envelope.
func NewCommandError(id, message string) *Envelope {
	ok := false
	return &Envelope{
		Type:    MessageCommandResult,
		ID:      id,
		Success: &ok,
		Error:   message,
	}
}

// NewProgress builds a progress_event envelope.
func NewProgress(id string, progress int, status ProgressStatus, message string) *Envelope {
	return &Envelope{
		Type:     MessageProgressEvent,
		ID:       id,
		Progress: progress,
		Status:   status,
		Message:  message,
	}
}

// Encode serializes an envelope to its wire bytes.
func Encode(env *Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s frame: %w", env.Type, err)
	}
	return data, nil
}

// Decode parses wire bytes into an envelope and validates the fields the
// router depends on. Unknown message types are an error here; callers decide
// whether that is fatal for the connection or just for the frame.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	switch env.Type {
	case MessageJoin:
		if env.Channel == "" {
			return nil, fmt.Errorf("join frame missing channel")
		}
	case MessageCommandRequest:
		if err := ValidateCommandID(env.ID); err != nil {
			return nil, err
		}
		if env.Command == "" {
			return nil, fmt.Errorf("command_request %s missing command name", env.ID)
		}
	case MessageCommandResult:
		if err := ValidateCommandID(env.ID); err != nil {
			return nil, err
		}
		if env.Success == nil {
			return nil, fmt.Errorf("command_result %s missing success flag", env.ID)
		}
	case MessageProgressEvent:
		if err := ValidateCommandID(env.ID); err != nil {
			return nil, err
		}
		if !env.Status.Valid() {
			return nil, fmt.Errorf("progress_event %s has unknown status %q", env.ID, env.Status)
		}
		if env.Progress < 0 || env.Progress > 100 {
			return nil, fmt.Errorf("progress_event %s progress %d out of range", env.ID, env.Progress)
		}
	case MessageInitSettings:
		if env.Settings == nil {
			return nil, fmt.Errorf("init_settings frame missing settings")
		}
	case "":
		return nil, fmt.Errorf("frame missing type")
	default:
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}

	return &env, nil
}

// ProgressFromEnvelope converts a progress_event envelope to its caller view.
func ProgressFromEnvelope(env *Envelope) *ProgressEvent {
	return &ProgressEvent{
		CommandID: env.ID,
		Progress:  env.Progress,
		Status:    env.Status,
		Message:   env.Message,
		Result:    env.Result,
	}
}
