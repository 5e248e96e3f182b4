package neighbor

import "voxelcascade.ai/internal/sim/grid"

// DrainSession holds the counters of the drain currently in progress. It is
// owned by the outermost triggering call: acquired when the first update
// arrives on an idle updater and reset once the stack and layer buffer are
// both empty.
type DrainSession struct {
	offered  int // admitted + dropped
	admitted int
	dropped  int
	failed   int

	origin       grid.Pos
	firstDropped grid.Pos
}

func (s *DrainSession) Active() bool { return s.offered > 0 }

// admit records an offered update and reports whether it fits under max.
// A negative max means unlimited.
func (s *DrainSession) admit(pos grid.Pos, max int) bool {
	if s.offered == 0 {
		s.origin = pos
	}
	cutoff := max >= 0 && s.offered >= max
	s.offered++
	if cutoff {
		s.dropped++
		if s.dropped == 1 {
			s.firstDropped = pos
		}
		return false
	}
	s.admitted++
	return true
}

func (s *DrainSession) report() DrainReport {
	r := DrainReport{
		Origin:   s.origin,
		Admitted: s.admitted,
		Dropped:  s.dropped,
		Failed:   s.failed,
	}
	if s.dropped > 0 {
		p := s.firstDropped
		r.FirstDropped = &p
	}
	return r
}

func (s *DrainSession) release() {
	*s = DrainSession{}
}
