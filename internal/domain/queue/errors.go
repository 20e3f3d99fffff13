package queue

import "errors"

var (
	ErrEntryNotFound     = errors.New("queue entry not found")
	ErrAlreadyQueued     = errors.New("appointment is already in the queue")
	ErrQueueEmpty        = errors.New("no one is waiting in the queue")
	ErrInvalidEntryState = errors.New("queue entry is not in a state that allows this action")
	ErrNoPractitioner    = errors.New("appointment has no practitioner to queue for")
)
