package model

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrForbidden           = errors.New("forbidden")
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")
	ErrIOError             = errors.New("io error")
	ErrInvalidRating       = errors.New("rating value must be between 1 and 5")
)
