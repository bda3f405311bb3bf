package domain

import "errors"

// Sentinel errors translated to wire error codes at the transport edge only.
var (
	ErrNotFound           = errors.New("not found")
	ErrProjectNotFound    = errors.New("project not found")
	ErrRunNotFound        = errors.New("run not found")
	ErrTerminalRun        = errors.New("run is in a terminal status")
	ErrInvalidTransition  = errors.New("invalid run status transition")
	ErrInvalidResumeToken = errors.New("invalid or expired resume token")
	ErrInvalidCursor      = errors.New("invalid pagination cursor")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrResourceExhausted  = errors.New("resource exhausted")
	ErrUnavailable        = errors.New("store unavailable")
	ErrConflict           = errors.New("conflicting write")
)
