package events

import "time"

type Kind string

const (
	KindRequested Kind = "requested"
	KindAccepted  Kind = "accepted"
	KindRejected  Kind = "rejected"
)

// BookingEvent describes one booking state transition. Consumers use it
// for derived, advisory state only; the Ride document stays the single
// source of truth.
type BookingEvent struct {
	RideID      string    `json:"ride_id"`
	HostUserID  string    `json:"host_user_id"`
	RiderUserID string    `json:"rider_user_id"`
	Kind        Kind      `json:"kind"`
	At          time.Time `json:"at"`
}

// Publisher emits booking events. Publishing is fire-and-forget from
// the coordinator's point of view.
type Publisher interface {
	PublishBooking(ev BookingEvent) error
}
