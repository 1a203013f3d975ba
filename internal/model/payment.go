package model

import "time"

// Payment records a confirmed gateway payment for an appointment.  A
// row exists if and only if the appointment reached CONFIRMED: the
// reconciler creates it exactly once, in the same flow that wins the
// PENDING→CONFIRMED conditional update, and a unique key on
// appointment_id enforces the at-most-once side in the database.
//
// Fields:
//  ID            – primary key identifier.
//  AppointmentID – the confirmed appointment (unique).
//  AmountCents   – amount paid, in centavos.
//  Method        – payment method label reported by the gateway
//                  (GCash, Maya, card, ...).
//  TransactionRef – gateway checkout session or transaction id.
//  Status        – payment status; "completed" is the only value the
//                  engine ever writes or inspects.
//  PaidAt        – when the gateway reported the payment.
//  CreatedAt     – timestamp of creation.
type Payment struct {
    ID             uint64    // payments.id
    AppointmentID  uint64    // payments.appointment_id
    AmountCents    uint32    // payments.amount_cents
    Method         string    // payments.method
    TransactionRef string    // payments.transaction_ref
    Status         string    // payments.status
    PaidAt         time.Time // payments.paid_at
    CreatedAt      time.Time // payments.created_at
}

// PaymentStatusCompleted is the only payment status the engine cares
// about; anything else means "no confirmed payment yet".
const PaymentStatusCompleted = "completed"
