package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/ride-pooling/internal/config"
	"github.com/example/ride-pooling/internal/models"
	"github.com/example/ride-pooling/internal/users"
)

func newTestServer(t *testing.T, routingHandler http.HandlerFunc) (*Server, *httptest.Server) {
	t.Helper()
	if routingHandler == nil {
		routingHandler = func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"code":"Ok","routes":[{"duration":600,"distance":4200}]}`))
		}
	}
	osrm := httptest.NewServer(routingHandler)
	t.Cleanup(osrm.Close)

	cfg := config.ServerConfig{
		RoutingEndpoint: osrm.URL,
		RoutingTimeout:  time.Second,
		RoutingCacheTTL: time.Minute,
	}
	srv, err := NewServer(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, ts
}

func doJSON(t *testing.T, method, url, userID string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func submitRideBody() map[string]any {
	return map[string]any{
		"name":            "weekend trip",
		"email":           "host@example.com",
		"startTime":       time.Now().Add(24 * time.Hour).Format(time.RFC3339),
		"initialLocation": map[string]float64{"lat": 52.52, "lng": 13.405},
		"finalLocation":   map[string]float64{"lat": 52.50, "lng": 13.42},
		"cap":             1,
	}
}

func TestSubmitRideRequiresIdentity(t *testing.T) {
	_, ts := newTestServer(t, nil)
	resp := doJSON(t, "POST", ts.URL+"/api/v1/rides", "", submitRideBody())
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", resp.StatusCode)
	}
}

func TestSubmitRideWithEstimate(t *testing.T) {
	_, ts := newTestServer(t, nil)
	host := models.NewID()
	resp := doJSON(t, "POST", ts.URL+"/api/v1/rides", host, submitRideBody())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status %d, want 201", resp.StatusCode)
	}
	var out submitRideResponse
	decodeInto(t, resp, &out)
	if !models.ValidID(out.RideID) {
		t.Fatalf("invalid ride id %q", out.RideID)
	}
	if out.RoutingStatus != "ok" || out.DurationMinutes == nil || *out.DurationMinutes != 10 {
		t.Fatalf("unexpected response %+v", out)
	}
	if out.DistanceMeters == nil || *out.DistanceMeters != 4200 {
		t.Fatalf("unexpected distance %+v", out.DistanceMeters)
	}
}

func TestSubmitRideMissingFields(t *testing.T) {
	_, ts := newTestServer(t, nil)
	body := submitRideBody()
	delete(body, "name")
	resp := doJSON(t, "POST", ts.URL+"/api/v1/rides", models.NewID(), body)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}
}

// An estimate failure degrades the response but the ride persists open.
func TestSubmitRideDegradedOnRoutingFailure(t *testing.T) {
	srv, ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})
	host := models.NewID()
	resp := doJSON(t, "POST", ts.URL+"/api/v1/rides", host, submitRideBody())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status %d, want 201", resp.StatusCode)
	}
	var out submitRideResponse
	decodeInto(t, resp, &out)
	if out.RoutingStatus != "unavailable" || out.DurationMinutes != nil {
		t.Fatalf("unexpected degraded response %+v", out)
	}
	ride, err := srv.Store.GetRide(context.Background(), out.RideID)
	if err != nil {
		t.Fatalf("ride not persisted: %v", err)
	}
	if ride.Status != models.RideOpen {
		t.Fatalf("expected open ride, got %s", ride.Status)
	}
}

func TestSubmitRideNoRoute(t *testing.T) {
	_, ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"NoRoute","routes":[]}`))
	})
	resp := doJSON(t, "POST", ts.URL+"/api/v1/rides", models.NewID(), submitRideBody())
	var out submitRideResponse
	decodeInto(t, resp, &out)
	if resp.StatusCode != http.StatusCreated || out.RoutingStatus != "no_route" {
		t.Fatalf("status %d routing %q, want 201/no_route", resp.StatusCode, out.RoutingStatus)
	}
}

func TestMalformedIDsRejected(t *testing.T) {
	_, ts := newTestServer(t, nil)
	for _, url := range []string{
		ts.URL + "/api/v1/bookings/user/not-hex",
		ts.URL + "/api/v1/notifications/xyz",
	} {
		resp, err := http.Get(url)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: status %d, want 400", url, resp.StatusCode)
		}
	}
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	host := models.NewID()
	riderA := models.NewID()
	riderB := models.NewID()
	srv.Users.(*users.MemoryDirectory).Add(models.User{ID: riderA, Username: "ana", Email: "ana@example.com"})

	// Host publishes a cap=1 ride.
	resp := doJSON(t, "POST", ts.URL+"/api/v1/rides", host, submitRideBody())
	var created submitRideResponse
	decodeInto(t, resp, &created)
	rideID := created.RideID

	// Rider A requests a seat.
	resp = doJSON(t, "POST", ts.URL+"/api/v1/bookings/"+rideID, riderA, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("request status %d, want 201", resp.StatusCode)
	}
	resp.Body.Close()

	// Duplicate request conflicts.
	resp = doJSON(t, "POST", ts.URL+"/api/v1/bookings/"+rideID, riderA, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate status %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	// Host sees one pending notification naming ana.
	resp = doJSON(t, "GET", fmt.Sprintf("%s/api/v1/notifications/%s", ts.URL, host), "", nil)
	var views []models.NotificationView
	decodeInto(t, resp, &views)
	if len(views) != 1 || views[0].RequesterName != "ana" {
		t.Fatalf("unexpected notifications %+v", views)
	}

	// Non-host cannot decide.
	resp = doJSON(t, "POST", ts.URL+"/api/v1/bookings/"+rideID+"/decide", riderB,
		map[string]string{"riderUserId": riderA, "decision": "accepted"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("impostor decide status %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()

	// Host accepts A; cap=1 closes the ride.
	resp = doJSON(t, "POST", ts.URL+"/api/v1/bookings/"+rideID+"/decide", host,
		map[string]string{"riderUserId": riderA, "decision": "accepted"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("decide status %d, want 200", resp.StatusCode)
	}
	var ride models.Ride
	decodeInto(t, resp, &ride)
	if ride.Status != models.RideBooked {
		t.Fatalf("expected booked ride, got %s", ride.Status)
	}

	// Notifications drained.
	resp = doJSON(t, "GET", fmt.Sprintf("%s/api/v1/notifications/%s", ts.URL, host), "", nil)
	views = nil
	decodeInto(t, resp, &views)
	if len(views) != 0 {
		t.Fatalf("expected empty feed, got %+v", views)
	}

	// Ride is closed for rider B.
	resp = doJSON(t, "POST", ts.URL+"/api/v1/bookings/"+rideID, riderB, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("late request status %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	// A's listing shows accepted.
	resp = doJSON(t, "GET", fmt.Sprintf("%s/api/v1/bookings/user/%s", ts.URL, riderA), "", nil)
	var summaries []models.BookingSummary
	decodeInto(t, resp, &summaries)
	if len(summaries) != 1 || summaries[0].Status != models.BookingAccepted {
		t.Fatalf("unexpected summaries %+v", summaries)
	}
}

func TestChatHistoryAuthz(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	host := models.NewID()
	resp := doJSON(t, "POST", ts.URL+"/api/v1/rides", host, submitRideBody())
	var created submitRideResponse
	decodeInto(t, resp, &created)

	if _, err := srv.Relay.Send(context.Background(), created.RideID, models.Identity{UserID: host}, "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}

	resp = doJSON(t, "GET", ts.URL+"/api/v1/chat/"+created.RideID+"/history", host, nil)
	var log []models.Message
	decodeInto(t, resp, &log)
	if len(log) != 1 || log[0].Text != "hello" {
		t.Fatalf("unexpected history %+v", log)
	}

	resp = doJSON(t, "GET", ts.URL+"/api/v1/chat/"+created.RideID+"/history", models.NewID(), nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("stranger history status %d, want 403", resp.StatusCode)
	}

	resp = doJSON(t, "GET", ts.URL+"/api/v1/chat/"+created.RideID+"/history", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous history status %d, want 401", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t, nil)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}
}
