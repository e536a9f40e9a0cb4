// Package validation checks the externally supplied identifiers that cross
// the bridge: channel ids arrive from agent input and command names from the
// catalog or the wire, and both end up in logs and map keys.
package validation

import (
	"fmt"
	"regexp"
)

const (
	// MaxChannelIDLength bounds channel identifiers.
	MaxChannelIDLength = 64

	// MaxCommandNameLength bounds command names.
	MaxCommandNameLength = 64
)

var (
	channelIDPattern   = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)
	commandNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
)

// ValidateChannelID checks a channel identifier.
func ValidateChannelID(id string) error {
	if id == "" {
		return fmt.Errorf("channel id cannot be empty")
	}
	if len(id) > MaxChannelIDLength {
		return fmt.Errorf("channel id exceeds %d characters", MaxChannelIDLength)
	}
	if !channelIDPattern.MatchString(id) {
		return fmt.Errorf("channel id %q contains invalid characters (allowed: alphanumerics, hyphen, underscore)", id)
	}
	return nil
}

// ValidateCommandName checks a command name.
func ValidateCommandName(name string) error {
	if name == "" {
		return fmt.Errorf("command name cannot be empty")
	}
	if len(name) > MaxCommandNameLength {
		return fmt.Errorf("command name exceeds %d characters", MaxCommandNameLength)
	}
	if !commandNamePattern.MatchString(name) {
		return fmt.Errorf("command name %q must be lower_snake_case", name)
	}
	return nil
}
