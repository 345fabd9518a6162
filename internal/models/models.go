package models

import "time"

type Coord struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}

type RideStatus string

const (
	RideOpen      RideStatus = "open"
	RideBooked    RideStatus = "booked"
	RideCompleted RideStatus = "completed"
	RideCancelled RideStatus = "cancelled"
)

type BookingStatus string

const (
	BookingPending  BookingStatus = "pending"
	BookingAccepted BookingStatus = "accepted"
	BookingRejected BookingStatus = "rejected"
)

// BookingRequest is one rider's attempt to join a ride. It lives inside
// the Ride document; there is no separate booking collection.
type BookingRequest struct {
	RiderUserID string        `json:"riderUserId" bson:"rider_user_id"`
	Status      BookingStatus `json:"status" bson:"status"`
}

// Ride is a host-published trip offer. BookedBy keeps arrival order.
type Ride struct {
	ID              string           `json:"rideId" bson:"_id,omitempty"`
	Name            string           `json:"name" bson:"name"`
	Email           string           `json:"email" bson:"email"`
	HostUserID      string           `json:"hostUserId" bson:"host_user_id"`
	StartTime       time.Time        `json:"startTime" bson:"start_time"`
	InitialLocation Coord            `json:"initialLocation" bson:"initial_location"`
	FinalLocation   Coord            `json:"finalLocation" bson:"final_location"`
	Cap             int              `json:"cap,omitempty" bson:"cap,omitempty"` // 0 = uncapped
	Status          RideStatus       `json:"status" bson:"status"`
	BookedBy        []BookingRequest `json:"bookedBy" bson:"booked_by"`
}

// AcceptedCount reports how many seats have been granted.
func (r *Ride) AcceptedCount() int {
	n := 0
	for _, b := range r.BookedBy {
		if b.Status == BookingAccepted {
			n++
		}
	}
	return n
}

// RequestFor returns the rider's entry, if any.
func (r *Ride) RequestFor(riderUserID string) (BookingRequest, bool) {
	for _, b := range r.BookedBy {
		if b.RiderUserID == riderUserID {
			return b, true
		}
	}
	return BookingRequest{}, false
}

type Message struct {
	Sender    string    `json:"sender" bson:"sender"`
	Text      string    `json:"text" bson:"text"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

type User struct {
	ID       string `json:"id" bson:"_id,omitempty"`
	Username string `json:"username" bson:"username"`
	Email    string `json:"email" bson:"email"`
}

// NotificationView is derived from Ride state on every read; it is never
// persisted.
type NotificationView struct {
	Text          string    `json:"text"`
	RideID        string    `json:"rideId"`
	RequesterID   string    `json:"requesterId"`
	RideName      string    `json:"rideName"`
	RequesterName string    `json:"requesterName"`
	CreatedAt     time.Time `json:"createdAt"`
}

type HostContact struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// BookingSummary is the rider-facing view of one of their requests,
// joined with the host's contact details.
type BookingSummary struct {
	RideID          string        `json:"rideId"`
	RideName        string        `json:"rideName"`
	Host            HostContact   `json:"host"`
	StartTime       time.Time     `json:"startTime"`
	InitialLocation Coord         `json:"initialLocation"`
	FinalLocation   Coord         `json:"finalLocation"`
	Status          BookingStatus `json:"status"`
}

type TripEstimate struct {
	DurationMinutes float64 `json:"durationMinutes"`
	DistanceMeters  float64 `json:"distanceMeters"`
}
