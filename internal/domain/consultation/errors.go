package consultation

import "errors"

var (
	ErrSessionNotFound = errors.New("consultation session not found")
	ErrSessionExists   = errors.New("a consultation session already exists for this appointment")
	ErrSessionClosed   = errors.New("consultation session has ended; use addenda")
	ErrSessionOpen     = errors.New("addenda can only be added to an ended session")
	ErrEmptyAddendum   = errors.New("addendum content is required")
)
