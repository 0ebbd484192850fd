package types

import (
	"github.com/google/uuid"
)

// CollectionID identifies one stored version of a customer's mapping collection.
// UUIDv7 keeps versions time-ordered so "latest" is an index scan.
type CollectionID string

// NewCollectionID generates a UUIDv7 collection identifier.
// Panics on clock regression (uuid.Must).
func NewCollectionID() CollectionID {
	return CollectionID(uuid.Must(uuid.NewV7()).String())
}

// ParseCollectionID validates and converts a string to CollectionID.
func ParseCollectionID(s string) (CollectionID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return CollectionID(s), nil
}
