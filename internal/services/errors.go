// Package services defines the business logic for civic issue reports.
// This file centralizes service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrIssueNotFound indicates that the referenced issue does not exist.
	ErrIssueNotFound = errors.New("issue not found")

	// ErrForbidden is returned when the caller's role does not allow the
	// operation (status changes need an employee or admin role).
	ErrForbidden = errors.New("insufficient permissions")

	// ErrValidation is the parent of every input validation error below;
	// handlers map it to 400.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidStatus is returned for a status outside
	// open, in_progress, resolved, rejected.
	ErrInvalidStatus = fmt.Errorf("%w: status must be one of open, in_progress, resolved, rejected", ErrValidation)

	// ErrEmptyTitle is returned when a report has no title.
	ErrEmptyTitle = fmt.Errorf("%w: title is required", ErrValidation)

	// ErrEmptyComment is returned when a comment is blank after trimming.
	ErrEmptyComment = fmt.Errorf("%w: comment text is required", ErrValidation)

	// ErrInvalidCoordinates is returned for latitudes outside [-90, 90],
	// longitudes outside [-180, 180], or non-finite values.
	ErrInvalidCoordinates = fmt.Errorf("%w: coordinates out of range", ErrValidation)
)
