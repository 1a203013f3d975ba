package model

import "time"

// AppointmentStatus is the closed set of lifecycle states an
// appointment can be in.  Status strings are stored verbatim in the
// appointments.status column, so the constants below must match the
// database enumeration exactly.
type AppointmentStatus string

const (
    // StatusPending is the initial state: the slot is claimed but the
    // payment window is still open.
    StatusPending AppointmentStatus = "PENDING"
    // StatusConfirmed means a verified payment was applied exactly once.
    StatusConfirmed AppointmentStatus = "CONFIRMED"
    // StatusCancelled is terminal; set by the patient, by staff, or by
    // a verified payment failure.
    StatusCancelled AppointmentStatus = "CANCELLED"
    // StatusFailedTimeout is terminal; set when the payment window
    // lapses without a confirmation.
    StatusFailedTimeout AppointmentStatus = "FAILED_TIMEOUT"
    // StatusCompleted is terminal; set by staff after the visit.
    StatusCompleted AppointmentStatus = "COMPLETED"
)

// transitions encodes every legal status change.  Any (from, to) pair
// not present here is illegal.  The repository layer encodes the same
// pairs in the WHERE clauses of its conditional updates; this table is
// the single statement of what those clauses must allow.
var transitions = map[AppointmentStatus][]AppointmentStatus{
    StatusPending:   {StatusConfirmed, StatusCancelled, StatusFailedTimeout},
    StatusConfirmed: {StatusCancelled, StatusCompleted},
}

// CanTransition reports whether moving from one status to another is a
// legal state-machine transition.  Terminal states have no outgoing
// transitions.
func CanTransition(from, to AppointmentStatus) bool {
    for _, next := range transitions[from] {
        if next == to {
            return true
        }
    }
    return false
}

// IsTerminal reports whether a status has no outgoing transitions.
func (s AppointmentStatus) IsTerminal() bool {
    return len(transitions[s]) == 0
}

// IsOccupying reports whether an appointment in this status counts as
// holding its slot.  Slot availability everywhere in the system is
// derived from this predicate; there is no separate occupancy table.
func (s AppointmentStatus) IsOccupying() bool {
    return s == StatusPending || s == StatusConfirmed
}

// OccupyingStatuses lists the statuses that hold a slot, in the order
// they are interpolated into SQL IN clauses.
func OccupyingStatuses() []AppointmentStatus {
    return []AppointmentStatus{StatusPending, StatusConfirmed}
}

// Appointment records a patient's claim on a schedule slot for a
// specific date together with its lifecycle state.  Rows are never
// hard-deleted; terminal states are retained for audit.
//
// Fields:
//  ID               – primary key identifier.
//  PatientID        – user who booked the appointment.
//  ServiceID        – procedure being booked (price lives on the service).
//  ScheduleID       – slot being claimed.
//  AppointmentDate  – calendar date of the visit.
//  Status           – lifecycle state (see AppointmentStatus).
//  GatewaySessionID – checkout session reference at the payment
//                     gateway; nil until a session is opened.
//  CreatedAt        – creation timestamp; the payment window is
//                     measured from this value.
//  UpdatedAt        – last transition timestamp.
type Appointment struct {
    ID               uint64            // appointments.id
    PatientID        uint64            // appointments.patient_id
    ServiceID        uint64            // appointments.service_id
    ScheduleID       uint64            // appointments.schedule_id
    AppointmentDate  time.Time         // appointments.appointment_date
    Status           AppointmentStatus // appointments.status
    GatewaySessionID *string           // appointments.gateway_session_id (nullable)
    CreatedAt        time.Time         // appointments.created_at
    UpdatedAt        time.Time         // appointments.updated_at
}
