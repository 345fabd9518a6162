package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-pooling/internal/booking"
	"github.com/example/ride-pooling/internal/chat"
	"github.com/example/ride-pooling/internal/config"
	"github.com/example/ride-pooling/internal/events"
	"github.com/example/ride-pooling/internal/notify"
	"github.com/example/ride-pooling/internal/routing"
	"github.com/example/ride-pooling/internal/storage"
	"github.com/example/ride-pooling/internal/users"
)

type Server struct {
	Store       storage.RideStore
	Users       users.Directory
	Coordinator *booking.Coordinator
	Projector   *notify.Projector
	Relay       *chat.Relay
	Routing     routing.Client
	Producer    *events.KafkaProducer // nil when Kafka is not configured

	logger *slog.Logger
	mux    *mux.Router
}

// NewServer wires the service from config. Backends degrade gracefully:
// no Mongo/Postgres means in-memory stores, no Kafka means no event
// stream, no Redis means single-instance chat fan-out.
func NewServer(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		rideStore storage.RideStore
		chatStore chat.Store
		directory users.Directory
	)
	switch {
	case cfg.MongoURI != "":
		db, err := storage.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		rideStore = storage.NewMongoStore(db)
		chatStore = chat.NewMongoChatStore(db)
		directory = users.NewMongoDirectory(db)
	case cfg.PGDSN != "":
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		rideStore = ps
		chatStore = chat.NewMemoryStore()
		directory = users.NewMemoryDirectory()
	default:
		rideStore = storage.NewMemoryStore()
		chatStore = chat.NewMemoryStore()
		directory = users.NewMemoryDirectory()
	}

	var producer *events.KafkaProducer
	var publisher events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer = events.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		publisher = producer
	}

	relay := chat.NewRelay(chatStore, rideStore, logger)
	if cfg.RedisAddr != "" {
		relay.Bridge = chat.NewRedisBridge(cfg.RedisAddr, cfg.RedisPassword, logger)
	}

	rc := &routing.CachedClient{
		Inner: routing.NewOSRMClient(cfg.RoutingEndpoint, cfg.RoutingTimeout),
		Cache: routing.NewCache(cfg.RoutingCacheTTL),
	}

	s := &Server{
		Store:       rideStore,
		Users:       directory,
		Coordinator: booking.NewCoordinator(rideStore, directory, publisher, logger),
		Projector:   notify.NewProjector(rideStore, directory, logger),
		Relay:       relay,
		Routing:     rc,
		Producer:    producer,
		logger:      logger,
		mux:         mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/rides", s.handleSubmitRide).Methods("POST")
	api.HandleFunc("/bookings/user/{userId}", s.handleListBookings).Methods("GET")
	api.HandleFunc("/notifications/{userId}", s.handleNotifications).Methods("GET")
	api.HandleFunc("/bookings/{rideId}", s.handleRequestBooking).Methods("POST")
	api.HandleFunc("/bookings/{rideId}/decide", s.handleDecide).Methods("POST")
	api.HandleFunc("/chat/{roomId}/history", s.handleChatHistory).Methods("GET")

	s.mux.HandleFunc("/ws/chat", s.handleChatWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// Start launches background loops (currently the chat bridge). It
// returns immediately; loops stop when ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	if s.Relay.Bridge != nil {
		go s.Relay.Bridge.Run(ctx, s.Relay)
	}
}

func (s *Server) Close() error {
	if s.Producer != nil {
		return s.Producer.Close()
	}
	return nil
}
