package domain

import "errors"

var (
	ErrJobAlreadyRunning     = errors.New("job is already running")
	ErrInvalidJobType        = errors.New("invalid job type")
	ErrInvalidSchedule       = errors.New("invalid job schedule")
	ErrExecutionFinished     = errors.New("job execution already finished")
	ErrNotFound              = errors.New("not found")
	ErrRevocationAlreadyOpen = errors.New("revocation request already open for mandate")
	ErrInvalidNotifType      = errors.New("invalid notification type")
)
