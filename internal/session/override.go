package session

import "time"

// Override is a time-boxed exception granted by an administrator. GrantedAt
// and GrantedMono record the grant on both clocks; expiry is whichever of
// the two estimates comes first.
type Override struct {
	ID          string        `cbor:"id"`
	Grantor     string        `cbor:"grantor"`
	Reason      string        `cbor:"reason,omitempty"`
	GrantedAt   time.Time     `cbor:"granted_at"`
	GrantedMono time.Duration `cbor:"granted_mono"`
	BootID      string        `cbor:"boot"`
	Duration    time.Duration `cbor:"duration"`
}

func (o Override) ExpiresAt() time.Time {
	return o.GrantedAt.Add(o.Duration)
}

// Remaining returns the time left on the override, the smaller of the wall
// and, within the same boot, monotonic estimates.
func (o Override) Remaining(wall time.Time, mono time.Duration, boot string) time.Duration {
	left := o.ExpiresAt().Sub(wall)
	if boot == o.BootID {
		if monoLeft := o.GrantedMono + o.Duration - mono; monoLeft < left {
			left = monoLeft
		}
	}
	if left < 0 {
		return 0
	}
	return left
}

func (o Override) Expired(wall time.Time, mono time.Duration, boot string) bool {
	return o.Remaining(wall, mono, boot) <= 0
}
