package call

import "carelink-backend/internal/domain"

// Media is the scoped microphone/camera resource of a live call.
// It is acquired when a session enters Outgoing or Connected and
// released exactly once on every path into Ended, including abrupt
// peer disconnect.
type Media interface {
	Acquire(callType domain.CallType) error
	Release()
}

// NopMedia is a Media that does nothing, for clients without capture
// devices and for tests.
type NopMedia struct{}

// Acquire implements Media
func (NopMedia) Acquire(domain.CallType) error { return nil }

// Release implements Media
func (NopMedia) Release() {}
