// Package domain holds the network business types consumed by the optimisation model:
// monitored elements, range actions, states, perimeters and per-iteration results.
package domain

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalid is wrapped by every validation failure of this package.
var ErrInvalid = errors.New("invalid domain object")

// ErrEmptyRange is returned when a range action cannot reach any setpoint.
var ErrEmptyRange = errors.New("empty admissible range")

// Unit is the physical unit a value is expressed in.
type Unit int

const (
	Megawatt Unit = iota
	Ampere
	Degree
	TapUnit
)

func (u Unit) String() string {
	switch u {
	case Megawatt:
		return "MEGAWATT"
	case Ampere:
		return "AMPERE"
	case Degree:
		return "DEGREE"
	case TapUnit:
		return "TAP"
	default:
		return fmt.Sprintf("UNIT(%d)", int(u))
	}
}

// ParseUnit converts the textual form used on the wire.
func ParseUnit(s string) (Unit, error) {
	switch s {
	case "MEGAWATT", "MW", "":
		return Megawatt, nil
	case "AMPERE", "A":
		return Ampere, nil
	case "DEGREE":
		return Degree, nil
	case "TAP":
		return TapUnit, nil
	}
	return Megawatt, fmt.Errorf("%w: unknown unit %q", ErrInvalid, s)
}

// Side is one end of a monitored branch.
type Side int

const (
	SideLeft Side = iota
	SideRight
)

func (s Side) String() string {
	if s == SideRight {
		return "right"
	}
	return "left"
}

// ParseSide converts the textual form used on the wire.
func ParseSide(s string) (Side, error) {
	switch s {
	case "left", "LEFT", "one", "ONE":
		return SideLeft, nil
	case "right", "RIGHT", "two", "TWO":
		return SideRight, nil
	}
	return SideLeft, fmt.Errorf("%w: unknown side %q", ErrInvalid, s)
}

// FlowUnitMultiplier returns the factor converting a flow on the given side of c
// from one unit to another. Only MW and A are convertible.
func FlowUnitMultiplier(c *Cnec, side Side, from, to Unit) (float64, error) {
	if from == to {
		return 1, nil
	}
	v := c.NominalVoltage[side]
	if v <= 0 {
		return 0, fmt.Errorf("%w: cnec %s has no nominal voltage on side %s", ErrInvalid, c.ID, side)
	}
	switch {
	case from == Megawatt && to == Ampere:
		return 1000 / (math.Sqrt(3) * v), nil
	case from == Ampere && to == Megawatt:
		return math.Sqrt(3) * v / 1000, nil
	}
	return 0, fmt.Errorf("%w: cannot convert %s to %s", ErrInvalid, from, to)
}

// mustMultiplier is used where the cnec was validated at construction.
func mustMultiplier(c *Cnec, side Side, from, to Unit) float64 {
	m, err := FlowUnitMultiplier(c, side, from, to)
	if err != nil {
		return math.NaN()
	}
	return m
}
