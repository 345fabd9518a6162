package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/ride-pooling/internal/booking"
	"github.com/example/ride-pooling/internal/models"
	"github.com/example/ride-pooling/internal/observability"
	"github.com/example/ride-pooling/internal/routing"
)

type submitRideRequest struct {
	Name            string       `json:"name"`
	Email           string       `json:"email"`
	StartTime       time.Time    `json:"startTime"`
	InitialLocation models.Coord `json:"initialLocation"`
	FinalLocation   models.Coord `json:"finalLocation"`
	Cap             int          `json:"cap"`
}

type submitRideResponse struct {
	RideID          string   `json:"rideId"`
	DistanceMeters  *float64 `json:"distanceMeters,omitempty"`
	DurationMinutes *float64 `json:"durationMinutes,omitempty"`
	RoutingStatus   string   `json:"routingStatus"`
}

// handleSubmitRide persists the ride first, then enriches the response
// with trip metrics. An estimate failure degrades the response; it
// never unwinds the ride, which stays open.
func (s *Server) handleSubmitRide(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required"})
		return
	}
	var req submitRideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: body: %v", booking.ErrInvalidArgument, err))
		return
	}
	if req.Name == "" {
		writeError(w, fmt.Errorf("%w: missing field name", booking.ErrInvalidArgument))
		return
	}
	if req.Email == "" {
		writeError(w, fmt.Errorf("%w: missing field email", booking.ErrInvalidArgument))
		return
	}
	if req.StartTime.IsZero() {
		writeError(w, fmt.Errorf("%w: missing field startTime", booking.ErrInvalidArgument))
		return
	}
	if req.Cap < 0 {
		writeError(w, fmt.Errorf("%w: cap must be >= 0", booking.ErrInvalidArgument))
		return
	}

	ride := &models.Ride{
		Name:            req.Name,
		Email:           req.Email,
		HostUserID:      identity.UserID,
		StartTime:       req.StartTime,
		InitialLocation: req.InitialLocation,
		FinalLocation:   req.FinalLocation,
		Cap:             req.Cap,
		Status:          models.RideOpen,
	}
	rideID, err := s.Store.CreateRide(r.Context(), ride)
	if err != nil {
		s.logger.Error("create ride failed", "error", err)
		writeError(w, booking.ErrStorage)
		return
	}
	observability.RidesCreatedTotal.Inc()

	resp := submitRideResponse{RideID: rideID, RoutingStatus: "ok"}
	est, err := s.Routing.Estimate(r.Context(), req.InitialLocation, req.FinalLocation)
	switch {
	case err == nil:
		resp.DistanceMeters = &est.DistanceMeters
		resp.DurationMinutes = &est.DurationMinutes
	case errors.Is(err, routing.ErrRouteNotFound):
		resp.RoutingStatus = "no_route"
	default:
		s.logger.Warn("trip estimate failed", "ride_id", rideID, "error", err)
		resp.RoutingStatus = "unavailable"
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListBookings(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	out, err := s.Coordinator.ListForRider(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	out, err := s.Projector.Pending(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRequestBooking(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required"})
		return
	}
	rideID := mux.Vars(r)["rideId"]
	req, err := s.Coordinator.RequestSeat(r.Context(), rideID, identity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

type decideRequest struct {
	RiderUserID string `json:"riderUserId"`
	Decision    string `json:"decision"`
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required"})
		return
	}
	rideID := mux.Vars(r)["rideId"]
	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: body: %v", booking.ErrInvalidArgument, err))
		return
	}
	ride, err := s.Coordinator.Decide(r.Context(), rideID, req.RiderUserID, req.Decision, identity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "authentication required"})
		return
	}
	roomID := mux.Vars(r)["roomId"]
	log, err := s.Relay.History(r.Context(), roomID, identity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}
