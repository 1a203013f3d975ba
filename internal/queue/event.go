// Package queue defines message payloads exchanged over the message broker.
package queue

// AppointmentConfirmedEvent is published when a payment is verified and an
// appointment is confirmed.  It carries enough information for downstream
// consumers to send receipts or notifications without querying the primary
// database.
type AppointmentConfirmedEvent struct {
	AppointmentID   uint64 `json:"appointment_id"`
	PatientID       uint64 `json:"patient_id"`
	PatientEmail    string `json:"patient_email"`
	ServiceName     string `json:"service_name"`
	AppointmentDate string `json:"appointment_date"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	AmountCents     uint32 `json:"amount_cents"`
	TransactionRef  string `json:"transaction_ref"`
	ConfirmedAt     string `json:"confirmed_at"`
}
