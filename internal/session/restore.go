package session

// Restore prepares a session loaded from the store for enforcement at in,
// after a daemon restart or reboot. Usage is never reduced.
//
// Within one boot the monotonic clock kept running, so the time since the
// snapshot is charged as usage if the session was present: continuous
// operation would have charged it too. After a reboot monotonic readings
// restart; every monotonic reference is shifted so that ages are preserved
// and the downtime itself neither rolls the budget day nor ends grace.
func (s *Session) Restore(in Input) {
	if s.BootID == in.Boot && in.Mono >= s.LastMono {
		if s.Present && !s.Suspended && s.State != Locked {
			s.Used += in.Mono - s.LastMono
		}
	} else {
		shift := in.Mono - s.LastMono
		s.DayAnchor += shift
		s.GraceStart += shift
		s.LastWarnMono += shift
		s.LastHeartbeatMono += shift
		if s.Latch != nil {
			s.Latch.Mono += shift
		}
		if s.Override != nil {
			s.Override.GrantedMono += shift
			s.Override.BootID = in.Boot
		}
		s.Present = false
		s.Suspended = false
	}
	s.LastMono = in.Mono
	s.BootID = in.Boot
}
