package domain

import "fmt"

// InstantKind classifies an instant of the timeline.
type InstantKind int

const (
	InstantPreventive InstantKind = iota
	InstantOutage
	InstantAuto
	InstantCurative
)

func (k InstantKind) String() string {
	switch k {
	case InstantPreventive:
		return "PREVENTIVE"
	case InstantOutage:
		return "OUTAGE"
	case InstantAuto:
		return "AUTO"
	default:
		return "CURATIVE"
	}
}

// Instant is a point of the totally ordered timeline.
type Instant struct {
	ID    string
	Kind  InstantKind
	Order int
}

// Standard instants.
var (
	PreventiveInstant = Instant{ID: "preventive", Kind: InstantPreventive, Order: 0}
	OutageInstant     = Instant{ID: "outage", Kind: InstantOutage, Order: 1}
	AutoInstant       = Instant{ID: "auto", Kind: InstantAuto, Order: 2}
	CurativeInstant   = Instant{ID: "curative", Kind: InstantCurative, Order: 3}
)

// InstantByID resolves one of the standard instants.
func InstantByID(id string) (Instant, error) {
	for _, i := range []Instant{PreventiveInstant, OutageInstant, AutoInstant, CurativeInstant} {
		if i.ID == id {
			return i, nil
		}
	}
	return Instant{}, fmt.Errorf("%w: unknown instant %q", ErrInvalid, id)
}

// State is an (optional contingency, instant) pair.
type State struct {
	ID          string
	Contingency string
	Instant     Instant
}

// NewState builds a state. The preventive state has no contingency, every other state has one.
func NewState(contingency string, instant Instant) (*State, error) {
	if instant.Kind == InstantPreventive {
		if contingency != "" {
			return nil, fmt.Errorf("%w: preventive state cannot have contingency %q", ErrInvalid, contingency)
		}
		return &State{ID: instant.ID, Instant: instant}, nil
	}
	if contingency == "" {
		return nil, fmt.Errorf("%w: %s state needs a contingency", ErrInvalid, instant.ID)
	}
	return &State{
		ID:          contingency + " - " + instant.ID,
		Contingency: contingency,
		Instant:     instant,
	}, nil
}

// IsPreventive reports whether s is the preventive state.
func (s *State) IsPreventive() bool {
	return s.Instant.Kind == InstantPreventive
}

// Precedes reports whether s is on the same branch as other and strictly before it.
func (s *State) Precedes(other *State) bool {
	if s.Instant.Order >= other.Instant.Order {
		return false
	}
	return s.IsPreventive() || s.Contingency == other.Contingency
}

func (s *State) String() string {
	return s.ID
}
