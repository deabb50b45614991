package linearproblem

import (
	"strings"

	"github.com/aristath/rao/internal/domain"
)

const (
	sep = "_"

	varSuffix = "variable"
	conSuffix = "constraint"

	flow                 = "flow"
	setpoint             = "setpoint"
	relative             = "relative"
	iterativeShrink      = "iterative_shrink"
	virtualSetpoint      = "virtualsetpoint"
	virtualTap           = "virtualtap"
	absoluteVariation    = "absolutevariation"
	tapVariation         = "tapvariation"
	tapToAngleConversion = "taptoangleconversion"
	isVariation          = "isvariation"
	upOrDownVariation    = "upordownvariation"
	tap                  = "tap"
	minMargin            = "minmargin"
	minRelMargin         = "minrelmargin"
	minRelMarginPositive = "minrelmarginispositive"
	mnecViolation        = "mnecviolation"
	mnecFlow             = "mnecflow"
	maxLoopFlow          = "maxloopflow"
	loopFlowViolation    = "loopflowviolation"
	optimizeCnec         = "optimizecnec"
	maxRa                = "maxra"
	maxTso               = "maxtso"
	maxRaPerTso          = "maxrapertso"
	maxPstPerTso         = "maxpstpertso"
	tsoRaUsed            = "tsoraused"
	preperimeter         = "preperimeter"
	previousIteration    = "previous_iteration"
	absVariationNegative = "negative"
	absVariationPositive = "positive"
	thresholdAbove       = "above_threshold"
	thresholdBelow       = "below_threshold"
	boundUpper           = "upper_bound"
	boundLower           = "lower_bound"
)

// VariationDirection is the direction of a tap move.
type VariationDirection int

const (
	Upward VariationDirection = iota
	Downward
)

func (d VariationDirection) String() string {
	if d == Downward {
		return "downward"
	}
	return "upward"
}

// AbsExtension selects one of the two one-sided constraints of an absolute value.
type AbsExtension int

const (
	Negative AbsExtension = iota
	Positive
)

func (e AbsExtension) String() string {
	if e == Positive {
		return absVariationPositive
	}
	return absVariationNegative
}

// MarginExtension selects the constraint built from the maximum (above) or
// the minimum (below) threshold of a cnec side.
type MarginExtension int

const (
	BelowThreshold MarginExtension = iota
	AboveThreshold
)

func (e MarginExtension) String() string {
	if e == AboveThreshold {
		return thresholdAbove
	}
	return thresholdBelow
}

// BoundExtension selects the lower or upper loop-flow constraint.
type BoundExtension int

const (
	LowerBound BoundExtension = iota
	UpperBound
)

func (e BoundExtension) String() string {
	if e == UpperBound {
		return boundUpper
	}
	return boundLower
}

// ReferenceKind tells what an in-direction constraint compares the tap against.
type ReferenceKind int

const (
	PrePerimeter ReferenceKind = iota
	PreviousIteration
)

func (r ReferenceKind) String() string {
	if r == PreviousIteration {
		return previousIteration
	}
	return preperimeter
}

func name(parts ...string) string {
	return strings.Join(parts, sep)
}

func cnecSide(c *domain.Cnec, side domain.Side) string {
	return name(c.ID, side.String())
}

func raState(ra *domain.RangeAction, s *domain.State) string {
	return name(ra.ID, s.ID)
}

func FlowVariableID(c *domain.Cnec, side domain.Side) string {
	return name(cnecSide(c, side), flow, varSuffix)
}

func FlowConstraintID(c *domain.Cnec, side domain.Side) string {
	return name(cnecSide(c, side), flow, conSuffix)
}

func SetpointVariableID(ra *domain.RangeAction, s *domain.State) string {
	return name(raState(ra, s), setpoint, varSuffix)
}

func RelativeSetpointConstraintID(ra *domain.RangeAction, s *domain.State) string {
	return name(raState(ra, s), relative, setpoint, conSuffix)
}

func IterativeShrinkConstraintID(ra *domain.RangeAction, s *domain.State) string {
	return name(raState(ra, s), relative, setpoint, iterativeShrink, conSuffix)
}

func AbsoluteVariationVariableID(ra *domain.RangeAction, s *domain.State) string {
	return name(raState(ra, s), absoluteVariation, varSuffix)
}

func AbsoluteVariationConstraintID(ra *domain.RangeAction, s *domain.State, ext AbsExtension) string {
	return name(raState(ra, s), absoluteVariation+ext.String(), conSuffix)
}

func GroupSetpointVariableID(groupID string, s *domain.State) string {
	return name(groupID, s.ID, virtualSetpoint, varSuffix)
}

func GroupSetpointConstraintID(ra *domain.RangeAction, s *domain.State) string {
	return name(raState(ra, s), ra.GroupID, virtualSetpoint, conSuffix)
}

func GroupTapVariableID(groupID string, s *domain.State) string {
	return name(groupID, s.ID, virtualTap, varSuffix)
}

func GroupTapConstraintID(ra *domain.RangeAction, s *domain.State) string {
	return name(raState(ra, s), ra.GroupID, virtualTap, conSuffix)
}

func TapVariationVariableID(ra *domain.RangeAction, s *domain.State, d VariationDirection) string {
	return name(raState(ra, s), tapVariation+d.String(), varSuffix)
}

func TapVariationBinaryID(ra *domain.RangeAction, s *domain.State, d VariationDirection) string {
	return name(raState(ra, s), isVariation+d.String(), varSuffix)
}

func TapToAngleConversionConstraintID(ra *domain.RangeAction, s *domain.State) string {
	return name(raState(ra, s), tapToAngleConversion, conSuffix)
}

func UpOrDownConstraintID(ra *domain.RangeAction, s *domain.State) string {
	return name(raState(ra, s), upOrDownVariation, conSuffix)
}

func IsVariationInDirectionConstraintID(ra *domain.RangeAction, s *domain.State, ref ReferenceKind, d VariationDirection) string {
	return name(raState(ra, s), isVariation, ref.String(), d.String(), conSuffix)
}

func RelativeTapConstraintID(ra *domain.RangeAction, s *domain.State) string {
	return name(raState(ra, s), relative, tap, conSuffix)
}

func RangeActionUsedVariableID(ra *domain.RangeAction, s *domain.State) string {
	return name(raState(ra, s), isVariation, varSuffix)
}

func MinMarginVariableID() string {
	return name(minMargin, varSuffix)
}

func MinMarginConstraintID(c *domain.Cnec, side domain.Side, ext MarginExtension) string {
	return name(cnecSide(c, side), minMargin, ext.String(), conSuffix)
}

func MinRelMarginVariableID() string {
	return name(minRelMargin, varSuffix)
}

func MinRelMarginConstraintID(c *domain.Cnec, side domain.Side, ext MarginExtension) string {
	return name(cnecSide(c, side), minRelMargin, ext.String(), conSuffix)
}

func MinRelMarginSignBinaryID() string {
	return name(minRelMarginPositive, varSuffix)
}

func MinRelMarginSignDefinitionConstraintID() string {
	return name(minRelMarginPositive, conSuffix)
}

func MinRelMarginSetToZeroConstraintID() string {
	return name(minRelMargin, conSuffix)
}

func MnecViolationVariableID(c *domain.Cnec, side domain.Side) string {
	return name(cnecSide(c, side), mnecViolation, varSuffix)
}

func MnecFlowConstraintID(c *domain.Cnec, side domain.Side, ext MarginExtension) string {
	return name(cnecSide(c, side), mnecFlow, ext.String(), conSuffix)
}

func MaxLoopFlowConstraintID(c *domain.Cnec, side domain.Side, ext BoundExtension) string {
	return name(cnecSide(c, side), maxLoopFlow, ext.String(), conSuffix)
}

func LoopFlowViolationVariableID(c *domain.Cnec, side domain.Side) string {
	return name(cnecSide(c, side), loopFlowViolation, varSuffix)
}

func OptimizeCnecBinaryID(c *domain.Cnec, side domain.Side) string {
	return name(cnecSide(c, side), optimizeCnec, varSuffix)
}

func DontOptimizeCnecConstraintID(c *domain.Cnec, side domain.Side, ext MarginExtension) string {
	return name(cnecSide(c, side), optimizeCnec+ext.String(), conSuffix)
}

func MaxRaConstraintID(s *domain.State) string {
	return name(maxRa, s.ID, conSuffix)
}

func MaxTsoConstraintID(s *domain.State) string {
	return name(maxTso, s.ID, conSuffix)
}

func MaxRaPerTsoConstraintID(operator string, s *domain.State) string {
	return name(maxRaPerTso, operator, s.ID, conSuffix)
}

func MaxPstPerTsoConstraintID(operator string, s *domain.State) string {
	return name(maxPstPerTso, operator, s.ID, conSuffix)
}

func TsoRaUsedVariableID(operator string, s *domain.State) string {
	return name(tsoRaUsed, operator, s.ID, varSuffix)
}

func TsoRaUsedConstraintID(operator string, ra *domain.RangeAction, s *domain.State) string {
	return name(tsoRaUsed, operator, ra.ID, s.ID, conSuffix)
}
