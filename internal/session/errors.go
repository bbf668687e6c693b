package session

import "errors"

var (
	ErrRepsRequired         = errors.New("reps are required")
	ErrInvalidInput         = errors.New("invalid input")
	ErrTimerRunning         = errors.New("a timer is running")
	ErrSessionFinished      = errors.New("session is finished")
	ErrIndexOutOfRange      = errors.New("index out of range")
	ErrNoTimer              = errors.New("exercise has no such timer")
	ErrCompletionInProgress = errors.New("completion already in progress")
)
