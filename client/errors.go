package client

import "errors"

var (
	ErrWorkerAlreadyRegistered = errors.New("worker already registered")
	ErrWorkerNotFound          = errors.New("no worker registered")
	ErrDuplicateTrigger        = errors.New("identical repeating trigger already registered")
	ErrInvalidTrigger          = errors.New("invalid repeating trigger")
	ErrInvalidConcurrency      = errors.New("concurrency must be at least 1")
	ErrAlreadyStarted          = errors.New("job manager already started")
	ErrNotStarted              = errors.New("job manager not started")
)
