package analysis

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a user or a stored result does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientData is returned when a user has fewer than
	// MinObservations ratings.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrUnresolvedCategoryData is returned when a rated movie has no
	// category affinities.
	ErrUnresolvedCategoryData = errors.New("unresolved category data")

	// ErrPersistence is returned when reading or writing the store fails.
	ErrPersistence = errors.New("persistence failure")
)

// InsufficientDataError carries the observation count that failed the
// minimum-sample check.
type InsufficientDataError struct {
	Count    int
	Required int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: %d ratings, at least %d required", ErrInsufficientData, e.Count, e.Required)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// UnresolvedCategoryError names the movie whose categories could not be resolved.
type UnresolvedCategoryError struct {
	MovieID int64
	Err     error
}

func (e *UnresolvedCategoryError) Error() string {
	return fmt.Sprintf("%s for movie %d: %v", ErrUnresolvedCategoryData, e.MovieID, e.Err)
}

func (e *UnresolvedCategoryError) Is(target error) bool { return target == ErrUnresolvedCategoryData }

func (e *UnresolvedCategoryError) Unwrap() error { return e.Err }

// PersistenceError wraps a store failure with the operation that caused it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPersistence, e.Op, e.Err)
}

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func (e *PersistenceError) Unwrap() error { return e.Err }
