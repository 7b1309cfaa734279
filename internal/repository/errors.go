// Package repository implements sqlx-backed persistence. Sentinel errors
// let services map storage outcomes onto typed business failures without
// inspecting SQL state themselves.
package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrSectionNotFound is returned when the target section does not exist.
var ErrSectionNotFound = errors.New("section not found")

// ErrSectionUnavailable is returned when the section is not open for
// enrollment (cancelled or closed).
var ErrSectionUnavailable = errors.New("section unavailable")

// ErrSectionFull is returned when a seat reservation finds no capacity.
var ErrSectionFull = errors.New("section full")

// ErrAlreadyEnrolled is returned when an active enrollment already
// exists for the (student, section) pair.
var ErrAlreadyEnrolled = errors.New("already enrolled")

// ErrNotEnrolled is returned when a drop finds no active enrollment.
var ErrNotEnrolled = errors.New("not enrolled")

// ErrAlreadyWaitlisted is returned when an active waitlist entry already
// exists for the (student, section) pair.
var ErrAlreadyWaitlisted = errors.New("already waitlisted")

// ErrNotWaitlisted is returned when a removal finds no active entry.
var ErrNotWaitlisted = errors.New("not waitlisted")

// ErrWaitlistEmpty is returned by promotion when no active entry remains.
var ErrWaitlistEmpty = errors.New("waitlist empty")

// Postgres SQLSTATE codes that indicate the transaction lost a
// serialization or deadlock race and can be retried verbatim.
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// IsRetryable reports whether err is a transient serialization conflict
// worth retrying inside the bounded reserve loop.
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	code := string(pqErr.Code)
	return code == pqSerializationFailure || code == pqDeadlockDetected
}
