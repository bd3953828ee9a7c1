package main

import (
	"errors"
	"fmt"
)

// ===========================
// User-facing failures
// ===========================

// Failure is an error that should be shown to the invoking user as a failure
// embed instead of being reported to the developer.
type Failure struct {
	Message string
}

func (f *Failure) Error() string {
	return f.Message
}

func Failuref(format string, v ...any) *Failure {
	return &Failure{Message: fmt.Sprintf(format, v...)}
}

func IsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

const (
	MsgFailInteractionTimeout = "The interaction timed out."
	MsgFailInteractionCancel  = "You cancelled the request."
	MsgFailPromptNotYours     = "This prompt is not for you."
	MsgFailGuildOnly          = "This command can only be used in a server."
	MsgFailOwnerOnly          = "This command is restricted to the bot owner."
	MsgFailNoVoiceChannel     = "You are not connected to a voice channel."
	MsgFailWrongVoiceChannel  = "You are not connected to %s."
	MsgFailMissingPerms       = "I require the %s permission(s) to do that."
	MsgFailUserMissingPerms   = "You need the %s permission to do that."
	MsgFailNotConnected       = "I am not connected to a voice channel."
	MsgFailNodeUnavailable    = "The audio node is not available right now."
)
