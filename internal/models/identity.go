package models

// Identity is the authenticated caller, materialized by the transport
// layer and passed explicitly into every operation that needs it.
// Authentication itself happens upstream; nothing here is ambient.
type Identity struct {
	UserID string
}
