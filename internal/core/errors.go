package core

import "errors"

var (
	ErrNotFound         = errors.New("record not found")
	ErrEmailTaken       = errors.New("email already registered")
	ErrAlreadyAssistant = errors.New("player is already an assistant of this league")
)
