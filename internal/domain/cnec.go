package domain

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ElementKind is the category of a monitored element.
type ElementKind int

const (
	FlowElement ElementKind = iota
	AngleElement
	VoltageElement
)

func (k ElementKind) String() string {
	switch k {
	case AngleElement:
		return "ANGLE"
	case VoltageElement:
		return "VOLTAGE"
	default:
		return "FLOW"
	}
}

// Threshold bounds the flow on one side. Absent bounds are infinite.
type Threshold struct {
	Side Side
	Unit Unit
	Min  float64
	Max  float64
}

// LoopFlowThreshold is the maximum admissible loop flow on an element.
type LoopFlowThreshold struct {
	Value float64
	Unit  Unit
}

// Cnec is a monitored element ("critical network element and contingency").
type Cnec struct {
	ID                string
	NetworkElement    string
	Operator          string
	Kind              ElementKind
	State             *State
	Thresholds        []Threshold
	NominalVoltage    [2]float64
	ReliabilityMargin float64
	Optimized         bool
	Monitored         bool
	LoopFlowThreshold *LoopFlowThreshold
}

// NewCnec validates c and returns a copy. All failures are reported at once.
func NewCnec(c Cnec) (*Cnec, error) {
	var errs []error
	if c.ID == "" {
		errs = append(errs, fmt.Errorf("%w: cnec id is empty", ErrInvalid))
	}
	if c.State == nil {
		errs = append(errs, fmt.Errorf("%w: cnec %s has no state", ErrInvalid, c.ID))
	}
	if c.Kind == FlowElement && len(c.Thresholds) == 0 {
		errs = append(errs, fmt.Errorf("%w: flow cnec %s has no threshold", ErrInvalid, c.ID))
	}
	for _, t := range c.Thresholds {
		if t.Unit != Megawatt && t.Unit != Ampere {
			errs = append(errs, fmt.Errorf("%w: cnec %s threshold unit %s is not a flow unit", ErrInvalid, c.ID, t.Unit))
		}
		if t.Min > t.Max {
			errs = append(errs, fmt.Errorf("%w: cnec %s threshold min %.2f above max %.2f", ErrInvalid, c.ID, t.Min, t.Max))
		}
		if t.Unit == Ampere && c.NominalVoltage[t.Side] <= 0 {
			errs = append(errs, fmt.Errorf("%w: cnec %s needs a nominal voltage on side %s", ErrInvalid, c.ID, t.Side))
		}
	}
	if c.LoopFlowThreshold != nil && c.LoopFlowThreshold.Value < 0 {
		errs = append(errs, fmt.Errorf("%w: cnec %s loop-flow threshold is negative", ErrInvalid, c.ID))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	out := c
	out.Thresholds = append([]Threshold(nil), c.Thresholds...)
	return &out, nil
}

// MonitoredSides returns the sides carrying at least one threshold, left first.
func MonitoredSides(c *Cnec) []Side {
	var left, right bool
	for _, t := range c.Thresholds {
		if t.Side == SideLeft {
			left = true
		} else {
			right = true
		}
	}
	sides := make([]Side, 0, 2)
	if left {
		sides = append(sides, SideLeft)
	}
	if right {
		sides = append(sides, SideRight)
	}
	return sides
}

// UpperBound returns the tightest maximum flow on side, in unit, reduced by the
// reliability margin. ok is false when the side has no finite maximum or c is
// not a flow element.
func UpperBound(c *Cnec, side Side, unit Unit) (bound float64, ok bool) {
	if c.Kind != FlowElement {
		return 0, false
	}
	bound = math.Inf(1)
	for _, t := range c.Thresholds {
		if t.Side != side || math.IsInf(t.Max, 1) {
			continue
		}
		v := t.Max * mustMultiplier(c, side, t.Unit, unit)
		if v < bound {
			bound = v
		}
	}
	if math.IsInf(bound, 1) {
		return 0, false
	}
	return bound - c.ReliabilityMargin*mustMultiplier(c, side, Megawatt, unit), true
}

// LowerBound is the symmetric of UpperBound for minimum flows.
func LowerBound(c *Cnec, side Side, unit Unit) (bound float64, ok bool) {
	if c.Kind != FlowElement {
		return 0, false
	}
	bound = math.Inf(-1)
	for _, t := range c.Thresholds {
		if t.Side != side || math.IsInf(t.Min, -1) {
			continue
		}
		v := t.Min * mustMultiplier(c, side, t.Unit, unit)
		if v > bound {
			bound = v
		}
	}
	if math.IsInf(bound, -1) {
		return 0, false
	}
	return bound + c.ReliabilityMargin*mustMultiplier(c, side, Megawatt, unit), true
}

// Margin returns the distance between flow (given in unit) and the closest bound.
func Margin(c *Cnec, side Side, flow float64, unit Unit) float64 {
	margin := math.Inf(1)
	if ub, ok := UpperBound(c, side, unit); ok {
		margin = ub - flow
	}
	if lb, ok := LowerBound(c, side, unit); ok {
		margin = math.Min(margin, flow-lb)
	}
	return margin
}

// LargestThreshold returns the largest absolute finite bound over cnecs, in unit.
func LargestThreshold(cnecs []*Cnec, unit Unit) float64 {
	largest := 0.0
	for _, c := range cnecs {
		for _, side := range MonitoredSides(c) {
			if ub, ok := UpperBound(c, side, unit); ok {
				largest = math.Max(largest, math.Abs(ub))
			}
			if lb, ok := LowerBound(c, side, unit); ok {
				largest = math.Max(largest, math.Abs(lb))
			}
		}
	}
	return largest
}

// SortCnecs orders cnecs by id in place and returns them.
func SortCnecs(cnecs []*Cnec) []*Cnec {
	sort.Slice(cnecs, func(i, j int) bool { return cnecs[i].ID < cnecs[j].ID })
	return cnecs
}
