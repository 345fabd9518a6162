package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// NewID mints a store-canonical identifier: 24 hex chars, ObjectID
// compatible so the Mongo backend can use it as a native _id.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// ValidID reports whether s is a well-formed identifier. Every boundary
// checks this before touching a store.
func ValidID(s string) bool {
	_, err := primitive.ObjectIDFromHex(s)
	return err == nil
}
