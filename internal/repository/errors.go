package repository

import "errors"

// ErrNotFound indicates a missing record.
var ErrNotFound = errors.New("record not found")

// ErrInvalidArgument indicates the store rejected a malformed value.
var ErrInvalidArgument = errors.New("invalid argument")
