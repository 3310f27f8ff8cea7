package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned on unique constraint violations.
	ErrAlreadyExists = errors.New("already exists")
	// ErrVersionConflict is returned when a conditional write lost its race.
	ErrVersionConflict = errors.New("version conflict")
)

// VersionConflictError reports the version a writer expected and the one stored.
type VersionConflictError struct {
	Expected int64
	Current  int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict: expected %d, current %d", e.Expected, e.Current)
}

func (e *VersionConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}
