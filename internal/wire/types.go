// Package wire defines the frame types exchanged between the bridge, the
// relay, and the design-tool plugin, plus the codec that moves them on and
// off the socket. Frames are JSON text messages; framing itself belongs to
// the websocket transport.
package wire

import (
	"encoding/json"
	"time"
)

// MessageType discriminates the frame kinds on the wire.
type MessageType string

const (
	// MessageJoin is sent by each side right after dialing to enter a
	// channel. The relay echoes it back with OK set as the join ack.
	MessageJoin MessageType = "join"

	// MessageCommandRequest carries a command toward the plugin.
	MessageCommandRequest MessageType = "command_request"

	// MessageCommandResult carries the terminal outcome of a command back
	// to the bridge.
	MessageCommandResult MessageType = "command_result"

	// MessageProgressEvent carries an intermediate (or terminal-doubling)
	// status update for an in-flight command.
	MessageProgressEvent MessageType = "progress_event"

	// MessageInitSettings adjusts client-local settings at runtime, e.g.
	// the auto-reconnect flag. It never crosses the relay.
	MessageInitSettings MessageType = "init_settings"
)

// ProgressStatus is the status field of a progress event.
type ProgressStatus string

const (
	StatusStarted    ProgressStatus = "started"
	StatusInProgress ProgressStatus = "in_progress"
	StatusCompleted  ProgressStatus = "completed"
	StatusError      ProgressStatus = "error"
)

// Terminal reports whether the status ends the command it belongs to.
// Terminal progress events double as the command result (completed carries
// the payload, error carries the failure message).
func (s ProgressStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Valid reports whether the status is one of the recognized values.
func (s ProgressStatus) Valid() bool {
	switch s {
	case StatusStarted, StatusInProgress, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Envelope is the single frame shape for every message kind. Fields not used
// by a kind are omitted from the JSON. Params and Result stay raw: the bridge
// is parameter-agnostic and only the command catalog interprets them.
type Envelope struct {
	Type    MessageType `json:"type"`
	ID      string      `json:"id,omitempty"`      // command identifier (UUID)
	Command string      `json:"command,omitempty"` // command name
	Channel string      `json:"channel,omitempty"` // channel identifier

	Params json.RawMessage `json:"params,omitempty"`

	// command_result fields
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`

	// progress_event fields
	Progress int            `json:"progress,omitempty"` // 0-100
	Status   ProgressStatus `json:"status,omitempty"`
	Message  string         `json:"message,omitempty"`

	// join ack
	OK bool `json:"ok,omitempty"`

	// init_settings
	Settings *Settings `json:"settings,omitempty"`
}

// Settings is the payload of an init_settings frame.
type Settings struct {
	AutoReconnect bool `json:"auto_reconnect"`
}

// ProgressEvent is the decoded, caller-facing view of a progress frame.
type ProgressEvent struct {
	CommandID string          `json:"command_id"`
	Progress  int             `json:"progress"`
	Status    ProgressStatus  `json:"status"`
	Message   string          `json:"message,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Received  time.Time       `json:"-"`
}
