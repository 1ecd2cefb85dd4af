package domain

import "errors"

var (
	// ErrNotFound indicates that a job or candidate id is absent from the store.
	ErrNotFound = errors.New("not found")

	// ErrCollaboratorUnavailable indicates that an embedding, generation or store
	// call failed or timed out. Retrying is left to the caller.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// ErrMalformedGenerationOutput indicates that a generation response could not
	// be parsed into the expected structured shape.
	ErrMalformedGenerationOutput = errors.New("malformed generation output")

	// ErrInvalidConfiguration indicates a fatal configuration problem such as
	// score weights not summing to 1.0 or mismatching vector dimensions.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidInput indicates malformed arguments.
	ErrInvalidInput = errors.New("invalid input")
)
