package sentinel

import "errors"

// Store errors. Backends return these (optionally wrapped) and the consent
// layer translates them into domain errors exactly once.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidInput = errors.New("invalid input")
)
