package api

import (
	"encoding/hex"
	"regexp"

	"github.com/google/uuid"
)

var runIDPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// NewRunID generates a new run ID: 32 lowercase hex characters, the dashless
// form of a random UUID that tracking servers use.
func NewRunID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// ValidateRunID checks whether the given string is a valid run ID
// (32 lowercase hex characters).
func ValidateRunID(id string) bool {
	return runIDPattern.MatchString(id)
}
