// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios. For
// example, ErrSlotConflict indicates that another appointment already
// occupies the requested slot and date, while ErrIllegalTransition
// signals that a requested status change is not permitted by the
// appointment state machine.
package repository

import "errors"

// ErrSlotConflict is returned when a (slot, date) pair is already
// claimed by an appointment in an occupying status. Handlers should
// translate this into an HTTP 409 response.
var ErrSlotConflict = errors.New("slot already booked")

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrIllegalTransition is returned when a status change is requested
// that the appointment state machine does not allow, such as
// rescheduling a cancelled appointment.
var ErrIllegalTransition = errors.New("illegal status transition")

// ErrAlreadyPaid is returned when a payment row already exists for an
// appointment. The reconciler treats it as proof of a prior
// confirmation, not as a failure.
var ErrAlreadyPaid = errors.New("payment already recorded")
