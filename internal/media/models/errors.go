package models

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidArgument    = errors.New("invalid arguments")
	ErrUnknownContentKind = errors.New("unknown content kind")
)
