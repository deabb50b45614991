package linearproblem

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/rao/internal/domain"
)

// Filler contributes variables, constraints and objective terms to a linear
// problem. Fill runs once; Update refreshes coefficients and bounds in place
// with the results of a new iteration.
type Filler interface {
	Fill(lp *LinearProblem, flows domain.FlowResult, sens domain.SensitivityResult) error
	Update(lp *LinearProblem, flows domain.FlowResult, sens domain.SensitivityResult, setpoints domain.SetpointResult) error
}

// LinearProblem is a Model with an ordered filler chain. Later fillers may
// read and rewrite what earlier ones created, so order matters.
type LinearProblem struct {
	*Model
	fillers []Filler
	filled  bool
	log     zerolog.Logger
}

// New creates a linear problem over a fresh model. The filler order is kept.
func New(log zerolog.Logger, fillers ...Filler) (*LinearProblem, error) {
	var errs []error
	if len(fillers) == 0 {
		errs = append(errs, errors.New("linear problem needs at least one filler"))
	}
	for i, f := range fillers {
		if f == nil {
			errs = append(errs, fmt.Errorf("filler %d is nil", i))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &LinearProblem{
		Model:   NewModel(log),
		fillers: fillers,
		log:     log.With().Str("component", "linear_problem").Logger(),
	}, nil
}

// Fill runs every filler once against the initial results.
func (lp *LinearProblem) Fill(flows domain.FlowResult, sens domain.SensitivityResult) error {
	if lp.filled {
		return fmt.Errorf("fill linear problem: %w", ErrAlreadyCreated)
	}
	for _, f := range lp.fillers {
		if err := f.Fill(lp, flows, sens); err != nil {
			return fmt.Errorf("fill linear problem: %w", err)
		}
	}
	lp.filled = true
	lp.log.Debug().
		Int("variables", lp.NumVariables()).
		Int("constraints", lp.NumConstraints()).
		Msg("Linear problem filled")
	return nil
}

// Update refreshes every filler with the results of a new iteration.
func (lp *LinearProblem) Update(flows domain.FlowResult, sens domain.SensitivityResult, setpoints domain.SetpointResult) error {
	if !lp.filled {
		return ErrNotFilled
	}
	for _, f := range lp.fillers {
		if err := f.Update(lp, flows, sens, setpoints); err != nil {
			return fmt.Errorf("update linear problem: %w", err)
		}
	}
	return nil
}

// Solve solves the underlying model. Solving before Fill is reported as not solved.
func (lp *LinearProblem) Solve(ctx context.Context, opts ...SolveOption) Status {
	if !lp.filled {
		return StatusNotSolved
	}
	return lp.Model.Solve(ctx, opts...)
}

func (lp *LinearProblem) Filled() bool { return lp.filled }

func (lp *LinearProblem) AddFlowVariable(lb, ub float64, c *domain.Cnec, side domain.Side) (*Variable, error) {
	return lp.AddNumVariable(lb, ub, FlowVariableID(c, side))
}

func (lp *LinearProblem) FlowVariable(c *domain.Cnec, side domain.Side) (*Variable, error) {
	return lp.Variable(FlowVariableID(c, side))
}

func (lp *LinearProblem) AddFlowConstraint(lb, ub float64, c *domain.Cnec, side domain.Side) (*Constraint, error) {
	return lp.AddConstraint(lb, ub, FlowConstraintID(c, side))
}

func (lp *LinearProblem) FlowConstraint(c *domain.Cnec, side domain.Side) (*Constraint, error) {
	return lp.Constraint(FlowConstraintID(c, side))
}

func (lp *LinearProblem) AddSetpointVariable(lb, ub float64, ra *domain.RangeAction, s *domain.State) (*Variable, error) {
	return lp.AddNumVariable(lb, ub, SetpointVariableID(ra, s))
}

func (lp *LinearProblem) SetpointVariable(ra *domain.RangeAction, s *domain.State) (*Variable, error) {
	return lp.Variable(SetpointVariableID(ra, s))
}

func (lp *LinearProblem) AddRelativeSetpointConstraint(lb, ub float64, ra *domain.RangeAction, s *domain.State) (*Constraint, error) {
	return lp.AddConstraint(lb, ub, RelativeSetpointConstraintID(ra, s))
}

func (lp *LinearProblem) RelativeSetpointConstraint(ra *domain.RangeAction, s *domain.State) (*Constraint, error) {
	return lp.Constraint(RelativeSetpointConstraintID(ra, s))
}

func (lp *LinearProblem) AddIterativeShrinkConstraint(lb, ub float64, ra *domain.RangeAction, s *domain.State) (*Constraint, error) {
	return lp.AddConstraint(lb, ub, IterativeShrinkConstraintID(ra, s))
}

func (lp *LinearProblem) IterativeShrinkConstraint(ra *domain.RangeAction, s *domain.State) (*Constraint, error) {
	return lp.Constraint(IterativeShrinkConstraintID(ra, s))
}

func (lp *LinearProblem) AddAbsoluteVariationVariable(lb, ub float64, ra *domain.RangeAction, s *domain.State) (*Variable, error) {
	return lp.AddNumVariable(lb, ub, AbsoluteVariationVariableID(ra, s))
}

func (lp *LinearProblem) AbsoluteVariationVariable(ra *domain.RangeAction, s *domain.State) (*Variable, error) {
	return lp.Variable(AbsoluteVariationVariableID(ra, s))
}

func (lp *LinearProblem) AddAbsoluteVariationConstraint(lb, ub float64, ra *domain.RangeAction, s *domain.State, ext AbsExtension) (*Constraint, error) {
	return lp.AddConstraint(lb, ub, AbsoluteVariationConstraintID(ra, s, ext))
}

func (lp *LinearProblem) AbsoluteVariationConstraint(ra *domain.RangeAction, s *domain.State, ext AbsExtension) (*Constraint, error) {
	return lp.Constraint(AbsoluteVariationConstraintID(ra, s, ext))
}

func (lp *LinearProblem) AddGroupSetpointVariable(lb, ub float64, groupID string, s *domain.State) (*Variable, error) {
	return lp.AddNumVariable(lb, ub, GroupSetpointVariableID(groupID, s))
}

func (lp *LinearProblem) GroupSetpointVariable(groupID string, s *domain.State) (*Variable, error) {
	return lp.Variable(GroupSetpointVariableID(groupID, s))
}

func (lp *LinearProblem) AddGroupSetpointConstraint(lb, ub float64, ra *domain.RangeAction, s *domain.State) (*Constraint, error) {
	return lp.AddConstraint(lb, ub, GroupSetpointConstraintID(ra, s))
}

func (lp *LinearProblem) GroupSetpointConstraint(ra *domain.RangeAction, s *domain.State) (*Constraint, error) {
	return lp.Constraint(GroupSetpointConstraintID(ra, s))
}

func (lp *LinearProblem) AddGroupTapVariable(lb, ub float64, groupID string, s *domain.State) (*Variable, error) {
	return lp.AddIntVariable(lb, ub, GroupTapVariableID(groupID, s))
}

func (lp *LinearProblem) GroupTapVariable(groupID string, s *domain.State) (*Variable, error) {
	return lp.Variable(GroupTapVariableID(groupID, s))
}

func (lp *LinearProblem) AddGroupTapConstraint(lb, ub float64, ra *domain.RangeAction, s *domain.State) (*Constraint, error) {
	return lp.AddConstraint(lb, ub, GroupTapConstraintID(ra, s))
}

func (lp *LinearProblem) GroupTapConstraint(ra *domain.RangeAction, s *domain.State) (*Constraint, error) {
	return lp.Constraint(GroupTapConstraintID(ra, s))
}

func (lp *LinearProblem) AddTapVariationVariable(lb, ub float64, ra *domain.RangeAction, s *domain.State, d VariationDirection) (*Variable, error) {
	return lp.AddIntVariable(lb, ub, TapVariationVariableID(ra, s, d))
}

func (lp *LinearProblem) TapVariationVariable(ra *domain.RangeAction, s *domain.State, d VariationDirection) (*Variable, error) {
	return lp.Variable(TapVariationVariableID(ra, s, d))
}

func (lp *LinearProblem) AddTapVariationBinary(ra *domain.RangeAction, s *domain.State, d VariationDirection) (*Variable, error) {
	return lp.AddBoolVariable(TapVariationBinaryID(ra, s, d))
}

func (lp *LinearProblem) TapVariationBinary(ra *domain.RangeAction, s *domain.State, d VariationDirection) (*Variable, error) {
	return lp.Variable(TapVariationBinaryID(ra, s, d))
}

func (lp *LinearProblem) AddTapToAngleConversionConstraint(lb, ub float64, ra *domain.RangeAction, s *domain.State) (*Constraint, error) {
	return lp.AddConstraint(lb, ub, TapToAngleConversionConstraintID(ra, s))
}

func (lp *LinearProblem) TapToAngleConversionConstraint(ra *domain.RangeAction, s *domain.State) (*Constraint, error) {
	return lp.Constraint(TapToAngleConversionConstraintID(ra, s))
}

func (lp *LinearProblem) AddUpOrDownConstraint(lb, ub float64, ra *domain.RangeAction, s *domain.State) (*Constraint, error) {
	return lp.AddConstraint(lb, ub, UpOrDownConstraintID(ra, s))
}

func (lp *LinearProblem) UpOrDownConstraint(ra *domain.RangeAction, s *domain.State) (*Constraint, error) {
	return lp.Constraint(UpOrDownConstraintID(ra, s))
}

func (lp *LinearProblem) AddIsVariationInDirectionConstraint(lb, ub float64, ra *domain.RangeAction, s *domain.State, ref ReferenceKind, d VariationDirection) (*Constraint, error) {
	return lp.AddConstraint(lb, ub, IsVariationInDirectionConstraintID(ra, s, ref, d))
}

func (lp *LinearProblem) IsVariationInDirectionConstraint(ra *domain.RangeAction, s *domain.State, ref ReferenceKind, d VariationDirection) (*Constraint, error) {
	return lp.Constraint(IsVariationInDirectionConstraintID(ra, s, ref, d))
}

func (lp *LinearProblem) AddRelativeTapConstraint(lb, ub float64, ra *domain.RangeAction, s *domain.State) (*Constraint, error) {
	return lp.AddConstraint(lb, ub, RelativeTapConstraintID(ra, s))
}

func (lp *LinearProblem) RelativeTapConstraint(ra *domain.RangeAction, s *domain.State) (*Constraint, error) {
	return lp.Constraint(RelativeTapConstraintID(ra, s))
}

func (lp *LinearProblem) AddRangeActionUsedBinary(ra *domain.RangeAction, s *domain.State) (*Variable, error) {
	return lp.AddBoolVariable(RangeActionUsedVariableID(ra, s))
}

func (lp *LinearProblem) RangeActionUsedBinary(ra *domain.RangeAction, s *domain.State) (*Variable, error) {
	return lp.Variable(RangeActionUsedVariableID(ra, s))
}

func (lp *LinearProblem) AddMinMarginVariable(lb, ub float64) (*Variable, error) {
	return lp.AddNumVariable(lb, ub, MinMarginVariableID())
}

func (lp *LinearProblem) MinMarginVariable() (*Variable, error) {
	return lp.Variable(MinMarginVariableID())
}

func (lp *LinearProblem) AddMinMarginConstraint(lb, ub float64, c *domain.Cnec, side domain.Side, ext MarginExtension) (*Constraint, error) {
	return lp.AddConstraint(lb, ub, MinMarginConstraintID(c, side, ext))
}

func (lp *LinearProblem) MinMarginConstraint(c *domain.Cnec, side domain.Side, ext MarginExtension) (*Constraint, error) {
	return lp.Constraint(MinMarginConstraintID(c, side, ext))
}

func (lp *LinearProblem) AddMinRelMarginVariable(lb, ub float64) (*Variable, error) {
	return lp.AddNumVariable(lb, ub, MinRelMarginVariableID())
}

func (lp *LinearProblem) MinRelMarginVariable() (*Variable, error) {
	return lp.Variable(MinRelMarginVariableID())
}

func (lp *LinearProblem) AddMinRelMarginConstraint(lb, ub float64, c *domain.Cnec, side domain.Side, ext MarginExtension) (*Constraint, error) {
	return lp.AddConstraint(lb, ub, MinRelMarginConstraintID(c, side, ext))
}

func (lp *LinearProblem) MinRelMarginConstraint(c *domain.Cnec, side domain.Side, ext MarginExtension) (*Constraint, error) {
	return lp.Constraint(MinRelMarginConstraintID(c, side, ext))
}

func (lp *LinearProblem) AddMinRelMarginSignBinary() (*Variable, error) {
	return lp.AddBoolVariable(MinRelMarginSignBinaryID())
}

func (lp *LinearProblem) MinRelMarginSignBinary() (*Variable, error) {
	return lp.Variable(MinRelMarginSignBinaryID())
}

func (lp *LinearProblem) AddMinRelMarginSignDefinitionConstraint(lb, ub float64) (*Constraint, error) {
	return lp.AddConstraint(lb, ub, MinRelMarginSignDefinitionConstraintID())
}

func (lp *LinearProblem) MinRelMarginSignDefinitionConstraint() (*Constraint, error) {
	return lp.Constraint(MinRelMarginSignDefinitionConstraintID())
}

func (lp *LinearProblem) AddMinRelMarginSetToZeroConstraint(lb, ub float64) (*Constraint, error) {
	return lp.AddConstraint(lb, ub, MinRelMarginSetToZeroConstraintID())
}

func (lp *LinearProblem) MinRelMarginSetToZeroConstraint() (*Constraint, error) {
	return lp.Constraint(MinRelMarginSetToZeroConstraintID())
}

func (lp *LinearProblem) AddMnecViolationVariable(lb, ub float64, c *domain.Cnec, side domain.Side) (*Variable, error) {
	return lp.AddNumVariable(lb, ub, MnecViolationVariableID(c, side))
}

func (lp *LinearProblem) MnecViolationVariable(c *domain.Cnec, side domain.Side) (*Variable, error) {
	return lp.Variable(MnecViolationVariableID(c, side))
}

func (lp *LinearProblem) AddMnecFlowConstraint(lb, ub float64, c *domain.Cnec, side domain.Side, ext MarginExtension) (*Constraint, error) {
	return lp.AddConstraint(lb, ub, MnecFlowConstraintID(c, side, ext))
}

func (lp *LinearProblem) MnecFlowConstraint(c *domain.Cnec, side domain.Side, ext MarginExtension) (*Constraint, error) {
	return lp.Constraint(MnecFlowConstraintID(c, side, ext))
}

func (lp *LinearProblem) AddMaxLoopFlowConstraint(lb, ub float64, c *domain.Cnec, side domain.Side, ext BoundExtension) (*Constraint, error) {
	return lp.AddConstraint(lb, ub, MaxLoopFlowConstraintID(c, side, ext))
}

func (lp *LinearProblem) MaxLoopFlowConstraint(c *domain.Cnec, side domain.Side, ext BoundExtension) (*Constraint, error) {
	return lp.Constraint(MaxLoopFlowConstraintID(c, side, ext))
}

func (lp *LinearProblem) AddLoopFlowViolationVariable(lb, ub float64, c *domain.Cnec, side domain.Side) (*Variable, error) {
	return lp.AddNumVariable(lb, ub, LoopFlowViolationVariableID(c, side))
}

func (lp *LinearProblem) LoopFlowViolationVariable(c *domain.Cnec, side domain.Side) (*Variable, error) {
	return lp.Variable(LoopFlowViolationVariableID(c, side))
}

func (lp *LinearProblem) AddOptimizeCnecBinary(c *domain.Cnec, side domain.Side) (*Variable, error) {
	return lp.AddBoolVariable(OptimizeCnecBinaryID(c, side))
}

func (lp *LinearProblem) OptimizeCnecBinary(c *domain.Cnec, side domain.Side) (*Variable, error) {
	return lp.Variable(OptimizeCnecBinaryID(c, side))
}

func (lp *LinearProblem) AddDontOptimizeCnecConstraint(lb, ub float64, c *domain.Cnec, side domain.Side, ext MarginExtension) (*Constraint, error) {
	return lp.AddConstraint(lb, ub, DontOptimizeCnecConstraintID(c, side, ext))
}

func (lp *LinearProblem) DontOptimizeCnecConstraint(c *domain.Cnec, side domain.Side, ext MarginExtension) (*Constraint, error) {
	return lp.Constraint(DontOptimizeCnecConstraintID(c, side, ext))
}

func (lp *LinearProblem) AddMaxRaConstraint(lb, ub float64, s *domain.State) (*Constraint, error) {
	return lp.AddConstraint(lb, ub, MaxRaConstraintID(s))
}

func (lp *LinearProblem) MaxRaConstraint(s *domain.State) (*Constraint, error) {
	return lp.Constraint(MaxRaConstraintID(s))
}

func (lp *LinearProblem) AddMaxTsoConstraint(lb, ub float64, s *domain.State) (*Constraint, error) {
	return lp.AddConstraint(lb, ub, MaxTsoConstraintID(s))
}

func (lp *LinearProblem) MaxTsoConstraint(s *domain.State) (*Constraint, error) {
	return lp.Constraint(MaxTsoConstraintID(s))
}

func (lp *LinearProblem) AddMaxRaPerTsoConstraint(lb, ub float64, operator string, s *domain.State) (*Constraint, error) {
	return lp.AddConstraint(lb, ub, MaxRaPerTsoConstraintID(operator, s))
}

func (lp *LinearProblem) MaxRaPerTsoConstraint(operator string, s *domain.State) (*Constraint, error) {
	return lp.Constraint(MaxRaPerTsoConstraintID(operator, s))
}

func (lp *LinearProblem) AddMaxPstPerTsoConstraint(lb, ub float64, operator string, s *domain.State) (*Constraint, error) {
	return lp.AddConstraint(lb, ub, MaxPstPerTsoConstraintID(operator, s))
}

func (lp *LinearProblem) MaxPstPerTsoConstraint(operator string, s *domain.State) (*Constraint, error) {
	return lp.Constraint(MaxPstPerTsoConstraintID(operator, s))
}

func (lp *LinearProblem) AddTsoRaUsedVariable(lb, ub float64, operator string, s *domain.State) (*Variable, error) {
	return lp.AddNumVariable(lb, ub, TsoRaUsedVariableID(operator, s))
}

func (lp *LinearProblem) TsoRaUsedVariable(operator string, s *domain.State) (*Variable, error) {
	return lp.Variable(TsoRaUsedVariableID(operator, s))
}

func (lp *LinearProblem) AddTsoRaUsedConstraint(lb, ub float64, operator string, ra *domain.RangeAction, s *domain.State) (*Constraint, error) {
	return lp.AddConstraint(lb, ub, TsoRaUsedConstraintID(operator, ra, s))
}

func (lp *LinearProblem) TsoRaUsedConstraint(operator string, ra *domain.RangeAction, s *domain.State) (*Constraint, error) {
	return lp.Constraint(TsoRaUsedConstraintID(operator, ra, s))
}
