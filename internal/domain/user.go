package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the identity record supplied by the persistence collaborator.
// Only the fields the realtime core needs are mapped here.
type User struct {
	UserID      uuid.UUID  `json:"user_id"`
	DisplayName string     `json:"display_name"`
	Role        string     `json:"role"` // patient, caregiver, admin
	PairedWith  *uuid.UUID `json:"paired_with,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Presence is the derived online state of one identity
type Presence struct {
	Identity string    `json:"identity"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}
