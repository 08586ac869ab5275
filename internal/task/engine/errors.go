package engine

import "errors"

var (
	ErrStopped   = errors.New("task engine not running")
	ErrQueueFull = errors.New("task engine queue full")
	ErrBusy      = errors.New("task already queued or running")
)
