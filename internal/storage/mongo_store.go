package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/ride-pooling/internal/models"
)

// MongoStore backs RideStore with a single rides collection. Booking
// mutations are filtered single-document updates: the precondition is
// part of the filter, so a concurrent writer can never sneak between
// check and write.
type MongoStore struct {
	rides *mongo.Collection
}

// ConnectMongo dials and pings; the database handle is shared with the
// other Mongo-backed components (chat log, user directory).
func ConnectMongo(ctx context.Context, uri, dbName string) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return client.Database(dbName), nil
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{rides: db.Collection("rides")}
}

// mongoRide mirrors models.Ride with a native ObjectID primary key.
type mongoRide struct {
	ID              primitive.ObjectID      `bson:"_id"`
	Name            string                  `bson:"name"`
	Email           string                  `bson:"email"`
	HostUserID      string                  `bson:"host_user_id"`
	StartTime       time.Time               `bson:"start_time"`
	InitialLocation models.Coord            `bson:"initial_location"`
	FinalLocation   models.Coord            `bson:"final_location"`
	Cap             int                     `bson:"cap,omitempty"`
	Status          models.RideStatus       `bson:"status"`
	BookedBy        []models.BookingRequest `bson:"booked_by"`
}

func (d *mongoRide) toModel() *models.Ride {
	booked := d.BookedBy
	if booked == nil {
		booked = []models.BookingRequest{}
	}
	return &models.Ride{
		ID:              d.ID.Hex(),
		Name:            d.Name,
		Email:           d.Email,
		HostUserID:      d.HostUserID,
		StartTime:       d.StartTime,
		InitialLocation: d.InitialLocation,
		FinalLocation:   d.FinalLocation,
		Cap:             d.Cap,
		Status:          d.Status,
		BookedBy:        booked,
	}
}

func (m *MongoStore) CreateRide(ctx context.Context, r *models.Ride) (string, error) {
	oid := primitive.NewObjectID()
	if r.ID != "" {
		parsed, err := primitive.ObjectIDFromHex(r.ID)
		if err != nil {
			return "", fmt.Errorf("ride id: %w", err)
		}
		oid = parsed
	}
	status := r.Status
	if status == "" {
		status = models.RideOpen
	}
	doc := mongoRide{
		ID:              oid,
		Name:            r.Name,
		Email:           r.Email,
		HostUserID:      r.HostUserID,
		StartTime:       r.StartTime,
		InitialLocation: r.InitialLocation,
		FinalLocation:   r.FinalLocation,
		Cap:             r.Cap,
		Status:          status,
		BookedBy:        []models.BookingRequest{},
	}
	if _, err := m.rides.InsertOne(ctx, doc); err != nil {
		return "", err
	}
	r.ID = oid.Hex()
	r.Status = status
	return r.ID, nil
}

func (m *MongoStore) GetRide(ctx context.Context, rideID string) (*models.Ride, error) {
	oid, err := primitive.ObjectIDFromHex(rideID)
	if err != nil {
		return nil, ErrRideNotFound
	}
	var doc mongoRide
	err = m.rides.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrRideNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toModel(), nil
}

func (m *MongoStore) FindByHost(ctx context.Context, hostUserID string) ([]models.Ride, error) {
	return m.find(ctx, bson.M{"host_user_id": hostUserID})
}

func (m *MongoStore) FindPendingForHost(ctx context.Context, hostUserID string) ([]models.Ride, error) {
	return m.find(ctx, bson.M{
		"host_user_id":     hostUserID,
		"booked_by.status": models.BookingPending,
	})
}

func (m *MongoStore) FindByRiderMembership(ctx context.Context, riderUserID string) ([]models.Ride, error) {
	return m.find(ctx, bson.M{"booked_by.rider_user_id": riderUserID})
}

func (m *MongoStore) find(ctx context.Context, filter bson.M) ([]models.Ride, error) {
	cur, err := m.rides.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.Ride
	for cur.Next(ctx) {
		var doc mongoRide
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, *doc.toModel())
	}
	return out, cur.Err()
}

func (m *MongoStore) AppendBookingRequest(ctx context.Context, rideID, riderUserID string) error {
	oid, err := primitive.ObjectIDFromHex(rideID)
	if err != nil {
		return ErrRideNotFound
	}
	filter := bson.M{
		"_id":    oid,
		"status": models.RideOpen,
		"booked_by.rider_user_id": bson.M{"$ne": riderUserID},
	}
	update := bson.M{"$push": bson.M{"booked_by": bson.M{
		"rider_user_id": riderUserID,
		"status":        models.BookingPending,
	}}}
	res, err := m.rides.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return m.diagnoseAppend(ctx, rideID, riderUserID)
	}
	return nil
}

// diagnoseAppend re-reads the ride to name the precondition that failed.
// The guard itself already ran atomically in the update filter.
func (m *MongoStore) diagnoseAppend(ctx context.Context, rideID, riderUserID string) error {
	r, err := m.GetRide(ctx, rideID)
	if err != nil {
		return err
	}
	if _, ok := r.RequestFor(riderUserID); ok {
		return ErrDuplicateRequest
	}
	if r.Status != models.RideOpen {
		return ErrRideClosed
	}
	return ErrDuplicateRequest
}

func (m *MongoStore) DecideBookingRequest(ctx context.Context, rideID, riderUserID string, accept bool) (*models.Ride, error) {
	oid, err := primitive.ObjectIDFromHex(rideID)
	if err != nil {
		return nil, ErrRideNotFound
	}
	if !accept {
		return m.reject(ctx, oid, rideID, riderUserID)
	}
	return m.accept(ctx, oid, rideID, riderUserID)
}

func (m *MongoStore) reject(ctx context.Context, oid primitive.ObjectID, rideID, riderUserID string) (*models.Ride, error) {
	filter := bson.M{
		"_id": oid,
		"booked_by": bson.M{"$elemMatch": bson.M{
			"rider_user_id": riderUserID,
			"status":        models.BookingPending,
		}},
	}
	update := bson.M{"$set": bson.M{"booked_by.$[el].status": models.BookingRejected}}
	opts := options.FindOneAndUpdate().
		SetArrayFilters(options.ArrayFilters{Filters: []interface{}{
			bson.M{"el.rider_user_id": riderUserID},
		}}).
		SetReturnDocument(options.After)
	var doc mongoRide
	err := m.rides.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, m.diagnoseDecide(ctx, rideID, riderUserID, false)
	}
	if err != nil {
		return nil, err
	}
	return doc.toModel(), nil
}

// accept runs as a pipeline update so the capacity check, the status
// flip of the entry, and the ride's own open->booked transition commit
// as one document write.
func (m *MongoStore) accept(ctx context.Context, oid primitive.ObjectID, rideID, riderUserID string) (*models.Ride, error) {
	acceptedSize := bson.M{"$size": bson.M{"$filter": bson.M{
		"input": "$booked_by",
		"as":    "b",
		"cond":  bson.M{"$eq": bson.A{"$$b.status", models.BookingAccepted}},
	}}}
	capSet := bson.M{"$gt": bson.A{bson.M{"$ifNull": bson.A{"$cap", 0}}, 0}}
	filter := bson.M{
		"_id": oid,
		"booked_by": bson.M{"$elemMatch": bson.M{
			"rider_user_id": riderUserID,
			"status":        models.BookingPending,
		}},
		"$expr": bson.M{"$or": bson.A{
			bson.M{"$not": bson.A{capSet}},
			bson.M{"$lt": bson.A{acceptedSize, "$cap"}},
		}},
	}
	flipEntry := bson.M{"$set": bson.M{"booked_by": bson.M{"$map": bson.M{
		"input": "$booked_by",
		"as":    "b",
		"in": bson.M{"$cond": bson.A{
			bson.M{"$and": bson.A{
				bson.M{"$eq": bson.A{"$$b.rider_user_id", riderUserID}},
				bson.M{"$eq": bson.A{"$$b.status", models.BookingPending}},
			}},
			bson.M{"$mergeObjects": bson.A{"$$b", bson.M{"status": models.BookingAccepted}}},
			"$$b",
		}},
	}}}}
	// Evaluated against the output of flipEntry, so the count includes
	// the accept we just applied.
	closeWhenFull := bson.M{"$set": bson.M{"status": bson.M{"$cond": bson.A{
		bson.M{"$and": bson.A{capSet, bson.M{"$gte": bson.A{acceptedSize, "$cap"}}}},
		models.RideBooked,
		"$status",
	}}}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc mongoRide
	err := m.rides.FindOneAndUpdate(ctx, filter, bson.A{flipEntry, closeWhenFull}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, m.diagnoseDecide(ctx, rideID, riderUserID, true)
	}
	if err != nil {
		return nil, err
	}
	return doc.toModel(), nil
}

func (m *MongoStore) diagnoseDecide(ctx context.Context, rideID, riderUserID string, accept bool) error {
	r, err := m.GetRide(ctx, rideID)
	if err != nil {
		return err
	}
	entry, ok := r.RequestFor(riderUserID)
	if !ok {
		return ErrRequestNotFound
	}
	if entry.Status != models.BookingPending {
		return ErrAlreadyDecided
	}
	if accept && r.Cap > 0 && r.AcceptedCount() >= r.Cap {
		return ErrCapacityExceeded
	}
	// The blocking condition resolved between the update and this read;
	// report the state the caller will now observe.
	return ErrAlreadyDecided
}
