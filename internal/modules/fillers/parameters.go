// Package fillers contains the building blocks of the remedial-action linear
// problem. Each filler adds its variables and constraints once and refreshes
// them in place between iterations.
package fillers

import (
	"fmt"

	"github.com/aristath/rao/internal/domain"
)

// PtdfApproximation tells which PTDF-based quantities are recomputed between iterations.
type PtdfApproximation int

const (
	FixedPtdf PtdfApproximation = iota
	UpdatePtdfWithTopo
	UpdatePtdfWithTopoAndPst
)

func (p PtdfApproximation) String() string {
	switch p {
	case UpdatePtdfWithTopo:
		return "UPDATE_PTDF_WITH_TOPO"
	case UpdatePtdfWithTopoAndPst:
		return "UPDATE_PTDF_WITH_TOPO_AND_PST"
	default:
		return "FIXED_PTDF"
	}
}

// ParsePtdfApproximation converts the textual form used on the wire.
func ParsePtdfApproximation(s string) (PtdfApproximation, error) {
	switch s {
	case "", "FIXED_PTDF":
		return FixedPtdf, nil
	case "UPDATE_PTDF_WITH_TOPO":
		return UpdatePtdfWithTopo, nil
	case "UPDATE_PTDF_WITH_TOPO_AND_PST":
		return UpdatePtdfWithTopoAndPst, nil
	}
	return FixedPtdf, fmt.Errorf("%w: unknown ptdf approximation %q", domain.ErrInvalid, s)
}

// ShouldUpdatePtdfWithPstChange reports whether PTDF values move with PST setpoints.
func (p PtdfApproximation) ShouldUpdatePtdfWithPstChange() bool {
	return p == UpdatePtdfWithTopoAndPst
}

// RangeActionParameters tunes the core filler.
type RangeActionParameters struct {
	PstSensitivityThreshold       float64
	HvdcSensitivityThreshold      float64
	InjectionSensitivityThreshold float64
	PstPenaltyCost                float64
	HvdcPenaltyCost               float64
	InjectionPenaltyCost          float64
	RangeShrinking                bool
}

// DefaultRangeActionParameters returns the usual thresholds and costs.
func DefaultRangeActionParameters() RangeActionParameters {
	return RangeActionParameters{
		PstSensitivityThreshold:       1e-6,
		HvdcSensitivityThreshold:      1e-6,
		InjectionSensitivityThreshold: 1e-6,
		PstPenaltyCost:                0.01,
		HvdcPenaltyCost:               0.001,
		InjectionPenaltyCost:          0.001,
	}
}

// sensitivityThreshold is the smallest sensitivity kept in flow constraints.
// Counter-trading actions share the injection settings.
func (p RangeActionParameters) sensitivityThreshold(ra *domain.RangeAction) float64 {
	switch ra.Kind {
	case domain.PstAction:
		return p.PstSensitivityThreshold
	case domain.HvdcAction:
		return p.HvdcSensitivityThreshold
	default:
		return p.InjectionSensitivityThreshold
	}
}

func (p RangeActionParameters) penaltyCost(ra *domain.RangeAction) float64 {
	switch ra.Kind {
	case domain.PstAction:
		return p.PstPenaltyCost
	case domain.HvdcAction:
		return p.HvdcPenaltyCost
	default:
		return p.InjectionPenaltyCost
	}
}

// RelativeMarginParameters tunes the relative margin objective.
type RelativeMarginParameters struct {
	// PtdfSumLowerBound keeps cnecs with a tiny PTDF sum from dominating the
	// relative margin. It must be positive.
	PtdfSumLowerBound float64
	PtdfApproximation PtdfApproximation
}

func DefaultRelativeMarginParameters() RelativeMarginParameters {
	return RelativeMarginParameters{PtdfSumLowerBound: 0.01}
}

// MnecParameters tunes the monitored-element filler.
type MnecParameters struct {
	AcceptableMarginDecrease        float64
	ViolationCost                   float64
	ConstraintAdjustmentCoefficient float64
}

// LoopFlowParameters tunes the loop-flow filler.
type LoopFlowParameters struct {
	AcceptableIncrease              float64
	ViolationCost                   float64
	ConstraintAdjustmentCoefficient float64
	PtdfApproximation               PtdfApproximation
}

// UsageLimits caps how many range actions may be activated in one state. A nil
// pointer or an empty map means the limit is not configured.
type UsageLimits struct {
	MaxRangeActions       *int
	MaxTso                *int
	MaxTsoExclusion       []string
	MaxRangeActionsPerTso map[string]int
	MaxPstPerTso          map[string]int
}

// IsEmpty reports whether no limit is configured.
func (u UsageLimits) IsEmpty() bool {
	return u.MaxRangeActions == nil && u.MaxTso == nil && len(u.MaxRangeActionsPerTso) == 0 && len(u.MaxPstPerTso) == 0
}

// UnoptimizedCnecParameters selects the cnecs that may be left out of the margin objective.
type UnoptimizedCnecParameters struct {
	// OperatorsNotToOptimize enables the margin-decrease rule for their cnecs.
	OperatorsNotToOptimize []string
	// CnecsSecuredByTheirPst maps a cnec id to the id of the PST that secures it
	// and enables the PST-limitation rule.
	CnecsSecuredByTheirPst map[string]string
}
