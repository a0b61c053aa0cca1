package dto

import "errors"

var (
	// ErrNotFound is returned by stores when a requested row does not exist
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert violates a uniqueness constraint
	ErrDuplicate = errors.New("duplicate key")
	// ErrIllegalTransition is returned when a lead status change violates the lifecycle
	ErrIllegalTransition = errors.New("illegal lead status transition")
)
