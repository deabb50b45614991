// Package rao runs remedial-action optimisations: it assembles the filler
// chain for a perimeter, iterates solve and refresh, and keeps track of runs.
package rao

import (
	"errors"
	"fmt"

	"github.com/aristath/rao/internal/domain"
	"github.com/aristath/rao/internal/modules/fillers"
)

// PstModel tells how phase shifters are represented in the model.
type PstModel int

const (
	// PstContinuous optimises angles continuously and rounds them to taps afterwards.
	PstContinuous PstModel = iota
	// PstApproximatedIntegers adds integer tap variables.
	PstApproximatedIntegers
)

func (m PstModel) String() string {
	if m == PstApproximatedIntegers {
		return "APPROXIMATED_INTEGERS"
	}
	return "CONTINUOUS"
}

// ParsePstModel converts the textual form used on the wire.
func ParsePstModel(s string) (PstModel, error) {
	switch s {
	case "", "CONTINUOUS":
		return PstContinuous, nil
	case "APPROXIMATED_INTEGERS":
		return PstApproximatedIntegers, nil
	}
	return PstContinuous, fmt.Errorf("%w: unknown pst model %q", domain.ErrInvalid, s)
}

// Objective selects the margin maximised by the optimisation.
type Objective struct {
	Unit     domain.Unit
	Relative bool
}

// Parameters configures one optimisation run.
type Parameters struct {
	Objective      Objective
	PstModel       PstModel
	RangeActions   fillers.RangeActionParameters
	RelativeMargin fillers.RelativeMarginParameters
	// Mnec and LoopFlow enable their filler when set.
	Mnec          *fillers.MnecParameters
	LoopFlow      *fillers.LoopFlowParameters
	UsageLimits   map[string]fillers.UsageLimits
	Unoptimized   fillers.UnoptimizedCnecParameters
	MaxIterations int
}

// DefaultParameters returns a megawatt max-min margin run with continuous PSTs.
func DefaultParameters() Parameters {
	return Parameters{
		Objective:      Objective{Unit: domain.Megawatt},
		RangeActions:   fillers.DefaultRangeActionParameters(),
		RelativeMargin: fillers.DefaultRelativeMarginParameters(),
		MaxIterations:  10,
	}
}

// Validate reports every inconsistent setting at once.
func (p Parameters) Validate() error {
	var errs []error
	if p.Objective.Unit != domain.Megawatt && p.Objective.Unit != domain.Ampere {
		errs = append(errs, fmt.Errorf("%w: objective unit %s is not a flow unit", domain.ErrInvalid, p.Objective.Unit))
	}
	if p.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("%w: max iterations %d must be positive", domain.ErrInvalid, p.MaxIterations))
	}
	if p.Objective.Relative && p.RelativeMargin.PtdfSumLowerBound < 0 {
		errs = append(errs, fmt.Errorf("%w: ptdf sum lower bound %g is negative", domain.ErrInvalid, p.RelativeMargin.PtdfSumLowerBound))
	}
	if p.LoopFlow != nil && p.LoopFlow.ViolationCost < 0 {
		errs = append(errs, fmt.Errorf("%w: loop-flow violation cost is negative", domain.ErrInvalid))
	}
	if p.Mnec != nil && p.Mnec.ViolationCost < 0 {
		errs = append(errs, fmt.Errorf("%w: mnec violation cost is negative", domain.ErrInvalid))
	}
	return errors.Join(errs...)
}

func (p Parameters) hasUsageLimits() bool {
	for _, l := range p.UsageLimits {
		if !l.IsEmpty() {
			return true
		}
	}
	return false
}

func (p Parameters) hasUnoptimizedCnecs() bool {
	return len(p.Unoptimized.OperatorsNotToOptimize) > 0 || len(p.Unoptimized.CnecsSecuredByTheirPst) > 0
}
