package domain

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// RangeActionKind is the technology behind a range action.
type RangeActionKind int

const (
	PstAction RangeActionKind = iota
	HvdcAction
	InjectionAction
	CounterTradeAction
)

func (k RangeActionKind) String() string {
	switch k {
	case PstAction:
		return "PST"
	case HvdcAction:
		return "HVDC"
	case InjectionAction:
		return "INJECTION"
	default:
		return "COUNTER_TRADE"
	}
}

// ParseRangeActionKind converts the textual form used on the wire.
func ParseRangeActionKind(s string) (RangeActionKind, error) {
	switch s {
	case "PST":
		return PstAction, nil
	case "HVDC":
		return HvdcAction, nil
	case "INJECTION":
		return InjectionAction, nil
	case "COUNTER_TRADE":
		return CounterTradeAction, nil
	}
	return PstAction, fmt.Errorf("%w: unknown range action kind %q", ErrInvalid, s)
}

// RangeType tells what a range is relative to.
type RangeType int

const (
	RangeAbsolute RangeType = iota
	RangeRelativeToInitial
	RangeRelativeToPrevious
)

// Range limits a range action. PST ranges are in taps, the others in MW.
type Range struct {
	Type RangeType
	Min  float64
	Max  float64
}

// TapTable is the non-uniform tap to angle conversion of a phase shifter.
type TapTable struct {
	TapToAngle map[int]float64
	InitialTap int
}

// RangeAction is a continuously controllable device.
type RangeAction struct {
	ID              string
	Name            string
	Operator        string
	GroupID         string
	NetworkElement  string
	Kind            RangeActionKind
	Ranges          []Range
	InitialSetpoint float64
	Taps            *TapTable
}

// NewRangeAction validates ra and returns a copy. For phase shifters the initial
// setpoint is the angle of the initial tap.
func NewRangeAction(ra RangeAction) (*RangeAction, error) {
	var errs []error
	if ra.ID == "" {
		errs = append(errs, fmt.Errorf("%w: range action id is empty", ErrInvalid))
	}
	for _, r := range ra.Ranges {
		if r.Min > r.Max {
			errs = append(errs, fmt.Errorf("%w: range action %s has range min %.2f above max %.2f", ErrInvalid, ra.ID, r.Min, r.Max))
		}
	}
	if ra.Kind == PstAction {
		switch {
		case ra.Taps == nil || len(ra.Taps.TapToAngle) < 2:
			errs = append(errs, fmt.Errorf("%w: pst %s needs a tap table with at least two taps", ErrInvalid, ra.ID))
		default:
			low, high := tapTableBounds(ra.Taps)
			for t := low; t <= high; t++ {
				if _, ok := ra.Taps.TapToAngle[t]; !ok {
					errs = append(errs, fmt.Errorf("%w: pst %s tap table misses tap %d", ErrInvalid, ra.ID, t))
				}
			}
			if angle, ok := ra.Taps.TapToAngle[ra.Taps.InitialTap]; ok {
				ra.InitialSetpoint = angle
			} else {
				errs = append(errs, fmt.Errorf("%w: pst %s initial tap %d is not in its table", ErrInvalid, ra.ID, ra.Taps.InitialTap))
			}
		}
	} else if ra.Taps != nil {
		errs = append(errs, fmt.Errorf("%w: %s action %s cannot have a tap table", ErrInvalid, ra.Kind, ra.ID))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	out := ra
	out.Ranges = append([]Range(nil), ra.Ranges...)
	if ra.Taps != nil {
		table := make(map[int]float64, len(ra.Taps.TapToAngle))
		for k, v := range ra.Taps.TapToAngle {
			table[k] = v
		}
		out.Taps = &TapTable{TapToAngle: table, InitialTap: ra.Taps.InitialTap}
	}
	return &out, nil
}

// SameAction reports whether a and b act on the same device.
func SameAction(a, b *RangeAction) bool {
	if a.ID == b.ID {
		return true
	}
	return a.NetworkElement != "" && a.NetworkElement == b.NetworkElement
}

func tapTableBounds(t *TapTable) (low, high int) {
	first := true
	for tap := range t.TapToAngle {
		if first || tap < low {
			low = tap
		}
		if first || tap > high {
			high = tap
		}
		first = false
	}
	return low, high
}

// TapBounds returns the lowest and highest taps of a phase shifter table.
func TapBounds(ra *RangeAction) (low, high int) {
	return tapTableBounds(ra.Taps)
}

// TapToAngle converts a tap into its angle.
func TapToAngle(ra *RangeAction, tap int) (float64, error) {
	angle, ok := ra.Taps.TapToAngle[tap]
	if !ok {
		return 0, fmt.Errorf("%w: pst %s has no tap %d", ErrInvalid, ra.ID, tap)
	}
	return angle, nil
}

// AngleToTap returns the tap whose angle is closest to angle.
func AngleToTap(ra *RangeAction, angle float64) int {
	low, high := TapBounds(ra)
	best, bestDist := low, math.Inf(1)
	for t := low; t <= high; t++ {
		if d := math.Abs(ra.Taps.TapToAngle[t] - angle); d < bestDist {
			best, bestDist = t, d
		}
	}
	return best
}

// SmallestAngleStep is the smallest absolute angle difference between two consecutive taps.
func SmallestAngleStep(ra *RangeAction) float64 {
	low, high := TapBounds(ra)
	step := math.Inf(1)
	for t := low; t < high; t++ {
		step = math.Min(step, math.Abs(ra.Taps.TapToAngle[t+1]-ra.Taps.TapToAngle[t]))
	}
	return step
}

// SetpointLimits are the absolute bounds of a setpoint and the bounds of its
// variation relative to the previous instant.
type SetpointLimits struct {
	MinAbsolute float64
	MaxAbsolute float64
	MinRelative float64
	MaxRelative float64
}

// Limits combines all ranges of ra. PST limits are converted to angles; relative
// tap ranges use the smallest angle step so that the angular range never exceeds
// the tap range.
func Limits(ra *RangeAction) SetpointLimits {
	l := SetpointLimits{
		MinAbsolute: math.Inf(-1),
		MaxAbsolute: math.Inf(1),
		MinRelative: math.Inf(-1),
		MaxRelative: math.Inf(1),
	}
	if ra.Kind != PstAction {
		for _, r := range ra.Ranges {
			switch r.Type {
			case RangeAbsolute:
				l.MinAbsolute = math.Max(l.MinAbsolute, r.Min)
				l.MaxAbsolute = math.Min(l.MaxAbsolute, r.Max)
			case RangeRelativeToInitial:
				l.MinAbsolute = math.Max(l.MinAbsolute, ra.InitialSetpoint+r.Min)
				l.MaxAbsolute = math.Min(l.MaxAbsolute, ra.InitialSetpoint+r.Max)
			case RangeRelativeToPrevious:
				l.MinRelative = math.Max(l.MinRelative, r.Min)
				l.MaxRelative = math.Min(l.MaxRelative, r.Max)
			}
		}
		return l
	}
	minTap, maxTap := TapBounds(ra)
	minRelTap, maxRelTap := math.Inf(-1), math.Inf(1)
	for _, r := range ra.Ranges {
		switch r.Type {
		case RangeAbsolute:
			minTap = max(minTap, int(r.Min))
			maxTap = min(maxTap, int(r.Max))
		case RangeRelativeToInitial:
			minTap = max(minTap, ra.Taps.InitialTap+int(r.Min))
			maxTap = min(maxTap, ra.Taps.InitialTap+int(r.Max))
		case RangeRelativeToPrevious:
			minRelTap = math.Max(minRelTap, r.Min)
			maxRelTap = math.Min(maxRelTap, r.Max)
		}
	}
	a, b := ra.Taps.TapToAngle[minTap], ra.Taps.TapToAngle[maxTap]
	l.MinAbsolute, l.MaxAbsolute = math.Min(a, b), math.Max(a, b)
	step := SmallestAngleStep(ra)
	l.MinRelative = minRelTap * step
	l.MaxRelative = maxRelTap * step
	return l
}

// TapLimits returns the admissible tap interval of a phase shifter given the
// tap it had at the previous instant.
func TapLimits(ra *RangeAction, previousTap int) (minTap, maxTap int) {
	minTap, maxTap = TapBounds(ra)
	for _, r := range ra.Ranges {
		switch r.Type {
		case RangeAbsolute:
			minTap = max(minTap, int(r.Min))
			maxTap = min(maxTap, int(r.Max))
		case RangeRelativeToInitial:
			minTap = max(minTap, ra.Taps.InitialTap+int(r.Min))
			maxTap = min(maxTap, ra.Taps.InitialTap+int(r.Max))
		case RangeRelativeToPrevious:
			minTap = max(minTap, previousTap+int(r.Min))
			maxTap = min(maxTap, previousTap+int(r.Max))
		}
	}
	return minTap, maxTap
}

// AdmissibleRange returns the lowest and highest setpoints reachable from
// previousSetpoint. It fails with ErrEmptyRange when the ranges of ra leave
// no setpoint at all.
func AdmissibleRange(ra *RangeAction, previousSetpoint float64) (float64, float64, error) {
	if ra.Kind == PstAction {
		minTap, maxTap := TapLimits(ra, AngleToTap(ra, previousSetpoint))
		if minTap > maxTap {
			return 0, 0, fmt.Errorf("%w: %s has no tap between %d and %d", ErrEmptyRange, ra.ID, minTap, maxTap)
		}
		a, b := ra.Taps.TapToAngle[minTap], ra.Taps.TapToAngle[maxTap]
		return math.Min(a, b), math.Max(a, b), nil
	}
	l := Limits(ra)
	lo := math.Max(l.MinAbsolute, previousSetpoint+l.MinRelative)
	hi := math.Min(l.MaxAbsolute, previousSetpoint+l.MaxRelative)
	if lo > hi {
		return 0, 0, fmt.Errorf("%w: %s has no setpoint between %.2f and %.2f", ErrEmptyRange, ra.ID, lo, hi)
	}
	return lo, hi, nil
}

// SortRangeActions orders actions by id in place and returns them.
func SortRangeActions(actions []*RangeAction) []*RangeAction {
	sort.Slice(actions, func(i, j int) bool { return actions[i].ID < actions[j].ID })
	return actions
}
