package indicator

// Phase is the warm-up state of an indicator. It is driven only by the
// number of observations consumed; Reset is the only way back to Fresh.
type Phase int

const (
	Fresh   Phase = iota // no observations consumed
	Warming              // fewer observations than the indicator needs
	Steady               // the full recurrence applies
)

func (p Phase) String() string {
	switch p {
	case Fresh:
		return "fresh"
	case Warming:
		return "warming"
	case Steady:
		return "steady"
	default:
		return "unknown"
	}
}

// phaseOf maps an observation count onto a phase for an indicator that
// needs `need` observations.
func phaseOf(seen, need int) Phase {
	switch {
	case seen <= 0:
		return Fresh
	case seen < need:
		return Warming
	default:
		return Steady
	}
}
