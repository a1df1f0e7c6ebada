// Package audit defines the immutable records the engine appends for every
// enforcement decision worth reviewing later.
package audit

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	SessionLock          Kind = "session-lock"
	SessionUnlock        Kind = "session-unlock"
	WarningIssued        Kind = "warning-issued"
	OverrideGranted      Kind = "override-granted"
	OverrideExpired      Kind = "override-expired"
	OverrideRevoked      Kind = "override-revoked"
	OverrideDenied       Kind = "override-denied"
	HeartbeatLost        Kind = "heartbeat-lost"
	ClockJumpDetected    Kind = "clock-jump-detected"
	TimezoneChanged      Kind = "timezone-changed"
	PolicyViolation      Kind = "policy-violation"
	CollectorUnavailable Kind = "collector-unavailable"
)

// Event is one audit record. Both clock readings are kept because the wall
// clock may have been tampered with; Mono is only comparable between events
// sharing a BootID.
type Event struct {
	ID        string            `cbor:"id" json:"id" yaml:"id"`
	Kind      Kind              `cbor:"kind" json:"kind" yaml:"kind"`
	ProfileID string            `cbor:"profile" json:"profile" yaml:"profile"`
	Wall      time.Time         `cbor:"wall" json:"wall" yaml:"wall"`
	Mono      time.Duration     `cbor:"mono" json:"mono" yaml:"mono"`
	BootID    string            `cbor:"boot" json:"boot,omitempty" yaml:"boot,omitempty"`
	Payload   map[string]string `cbor:"payload" json:"payload,omitempty" yaml:"payload,omitempty"`
}

// New returns an event with a fresh ID. kv are payload key/value pairs; a
// trailing key without a value is dropped.
func New(kind Kind, profileID string, wall time.Time, mono time.Duration, boot string, kv ...string) Event {
	e := Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		ProfileID: profileID,
		Wall:      wall,
		Mono:      mono,
		BootID:    boot,
	}
	if len(kv) >= 2 {
		e.Payload = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			e.Payload[kv[i]] = kv[i+1]
		}
	}
	return e
}
