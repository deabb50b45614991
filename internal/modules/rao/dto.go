package rao

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/aristath/rao/internal/domain"
	"github.com/aristath/rao/internal/modules/fillers"
)

// StateDTO names a state by contingency and instant.
type StateDTO struct {
	Contingency string `json:"contingency,omitempty"`
	Instant     string `json:"instant"`
}

// ThresholdDTO is one flow threshold. A missing bound is unlimited.
type ThresholdDTO struct {
	Side string   `json:"side"`
	Unit string   `json:"unit"`
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
}

// LoopFlowThresholdDTO is the loop-flow limit of a cnec.
type LoopFlowThresholdDTO struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// CnecDTO describes one monitored element.
type CnecDTO struct {
	ID                string                `json:"id"`
	NetworkElement    string                `json:"network_element"`
	Operator          string                `json:"operator"`
	State             StateDTO              `json:"state"`
	Thresholds        []ThresholdDTO        `json:"thresholds"`
	NominalVoltage    [2]float64            `json:"nominal_voltage"`
	ReliabilityMargin float64               `json:"reliability_margin"`
	Optimized         bool                  `json:"optimized"`
	Monitored         bool                  `json:"monitored"`
	LoopFlowThreshold *LoopFlowThresholdDTO `json:"loop_flow_threshold,omitempty"`
}

// RangeDTO is one range of a range action.
type RangeDTO struct {
	Type string  `json:"type"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// RangeActionDTO describes a range action available in one state.
type RangeActionDTO struct {
	ID              string          `json:"id"`
	Name            string          `json:"name,omitempty"`
	Operator        string          `json:"operator"`
	GroupID         string          `json:"group_id,omitempty"`
	NetworkElement  string          `json:"network_element"`
	Kind            string          `json:"kind"`
	State           StateDTO        `json:"state"`
	Ranges          []RangeDTO      `json:"ranges"`
	InitialSetpoint float64         `json:"initial_setpoint"`
	Taps            map[int]float64 `json:"taps,omitempty"`
	InitialTap      int             `json:"initial_tap,omitempty"`
}

// FlowDTO carries the initial results of one cnec side, in MW.
type FlowDTO struct {
	CnecID         string  `json:"cnec_id"`
	Side           string  `json:"side"`
	Flow           float64 `json:"flow"`
	PtdfSum        float64 `json:"ptdf_sum,omitempty"`
	CommercialFlow float64 `json:"commercial_flow,omitempty"`
}

// SensitivityDTO is the sensitivity of one cnec side to one action, in MW per
// setpoint unit.
type SensitivityDTO struct {
	CnecID   string  `json:"cnec_id"`
	Side     string  `json:"side"`
	ActionID string  `json:"action_id"`
	Value    float64 `json:"value"`
}

// MnecParametersDTO enables the monitored-element filler.
type MnecParametersDTO struct {
	AcceptableMarginDecrease        float64 `json:"acceptable_margin_decrease"`
	ViolationCost                   float64 `json:"violation_cost"`
	ConstraintAdjustmentCoefficient float64 `json:"constraint_adjustment_coefficient"`
}

// LoopFlowParametersDTO enables the loop-flow filler.
type LoopFlowParametersDTO struct {
	AcceptableIncrease              float64 `json:"acceptable_increase"`
	ViolationCost                   float64 `json:"violation_cost"`
	ConstraintAdjustmentCoefficient float64 `json:"constraint_adjustment_coefficient"`
	PtdfApproximation               string  `json:"ptdf_approximation,omitempty"`
}

// UsageLimitsDTO caps activations in one state.
type UsageLimitsDTO struct {
	MaxRangeActions       *int           `json:"max_range_actions,omitempty"`
	MaxTso                *int           `json:"max_tso,omitempty"`
	MaxTsoExclusion       []string       `json:"max_tso_exclusion,omitempty"`
	MaxRangeActionsPerTso map[string]int `json:"max_range_actions_per_tso,omitempty"`
	MaxPstPerTso          map[string]int `json:"max_pst_per_tso,omitempty"`
}

// ParametersDTO is the wire form of Parameters. Zero values take the defaults.
type ParametersDTO struct {
	ObjectiveUnit          string                    `json:"objective_unit,omitempty"`
	RelativeMargin         bool                      `json:"relative_margin,omitempty"`
	PstModel               string                    `json:"pst_model,omitempty"`
	PtdfSumLowerBound      *float64                  `json:"ptdf_sum_lower_bound,omitempty"`
	PtdfApproximation      string                    `json:"ptdf_approximation,omitempty"`
	RangeShrinking         bool                      `json:"range_shrinking,omitempty"`
	PstPenaltyCost         *float64                  `json:"pst_penalty_cost,omitempty"`
	HvdcPenaltyCost        *float64                  `json:"hvdc_penalty_cost,omitempty"`
	InjectionPenaltyCost   *float64                  `json:"injection_penalty_cost,omitempty"`
	MaxIterations          int                       `json:"max_iterations,omitempty"`
	Mnec                   *MnecParametersDTO        `json:"mnec,omitempty"`
	LoopFlow               *LoopFlowParametersDTO    `json:"loop_flow,omitempty"`
	UsageLimits            map[string]UsageLimitsDTO `json:"usage_limits,omitempty"`
	OperatorsNotToOptimize []string                  `json:"operators_not_to_optimize,omitempty"`
	CnecsSecuredByTheirPst map[string]string         `json:"cnecs_secured_by_their_pst,omitempty"`
}

// ProblemRequest is the JSON body of a run.
type ProblemRequest struct {
	MainState     StateDTO         `json:"main_state"`
	Cnecs         []CnecDTO        `json:"cnecs"`
	LoopFlowCnecs []string         `json:"loop_flow_cnecs,omitempty"`
	RangeActions  []RangeActionDTO `json:"range_actions"`
	InitialFlows  []FlowDTO        `json:"initial_flows"`
	Sensitivities []SensitivityDTO `json:"sensitivities"`
	FailedStates  []string         `json:"failed_states,omitempty"`
	Parameters    ParametersDTO    `json:"parameters"`
}

// stateRegistry hands out one *State per state id.
type stateRegistry map[string]*domain.State

func (r stateRegistry) get(dto StateDTO) (*domain.State, error) {
	instant, err := domain.InstantByID(dto.Instant)
	if err != nil {
		return nil, err
	}
	s, err := domain.NewState(dto.Contingency, instant)
	if err != nil {
		return nil, err
	}
	if known, ok := r[s.ID]; ok {
		return known, nil
	}
	r[s.ID] = s
	return s, nil
}

// ToProblem validates the request and builds the domain problem. maxIterations
// applies when the request does not set its own.
func (req ProblemRequest) ToProblem(maxIterations int) (Problem, error) {
	states := stateRegistry{}
	var errs []error

	mainState, err := states.get(req.MainState)
	if err != nil {
		errs = append(errs, fmt.Errorf("main state: %w", err))
	}

	cnecs := make([]*domain.Cnec, 0, len(req.Cnecs))
	byID := make(map[string]*domain.Cnec, len(req.Cnecs))
	for _, dto := range req.Cnecs {
		c, err := dto.toCnec(states)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		cnecs = append(cnecs, c)
		byID[c.ID] = c
	}
	var loopFlowCnecs []*domain.Cnec
	for _, id := range req.LoopFlowCnecs {
		c, ok := byID[id]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: unknown loop-flow cnec %s", domain.ErrInvalid, id))
			continue
		}
		loopFlowCnecs = append(loopFlowCnecs, c)
	}

	actions := make(map[*domain.State][]*domain.RangeAction)
	actionsByID := make(map[string]*domain.RangeAction)
	for _, dto := range req.RangeActions {
		state, err := states.get(dto.State)
		if err != nil {
			errs = append(errs, fmt.Errorf("range action %s: %w", dto.ID, err))
			continue
		}
		ra, err := dto.toRangeAction()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		actions[state] = append(actions[state], ra)
		actionsByID[ra.ID] = ra
	}

	params, err := req.Parameters.toParameters(maxIterations)
	if err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return Problem{}, err
	}

	perimeter, err := domain.NewPerimeter(mainState, cnecs, loopFlowCnecs, actions)
	if err != nil {
		return Problem{}, err
	}

	flows := domain.NewFlowSnapshot()
	for _, f := range req.InitialFlows {
		side, err := domain.ParseSide(f.Side)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, ok := byID[f.CnecID]; !ok {
			errs = append(errs, fmt.Errorf("%w: flow for unknown cnec %s", domain.ErrInvalid, f.CnecID))
			continue
		}
		key := domain.FlowKey{CnecID: f.CnecID, Side: side}
		flows.Flows[key] = f.Flow
		flows.PtdfSums[key] = f.PtdfSum
		flows.CommercialFlows[key] = f.CommercialFlow
	}

	sens := domain.NewSensitivitySnapshot()
	for _, s := range req.Sensitivities {
		side, err := domain.ParseSide(s.Side)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, ok := actionsByID[s.ActionID]; !ok {
			errs = append(errs, fmt.Errorf("%w: sensitivity to unknown range action %s", domain.ErrInvalid, s.ActionID))
			continue
		}
		sens.Values[domain.SensitivityKey{CnecID: s.CnecID, Side: side, ActionID: s.ActionID}] = s.Value
	}
	for _, id := range req.FailedStates {
		sens.FailedStates[id] = true
	}
	if err := errors.Join(errs...); err != nil {
		return Problem{}, err
	}

	setpoints := domain.NewSetpointSnapshot()
	for _, ra := range perimeter.AllRangeActions() {
		setpoints.Reference[ra.ID] = ra.InitialSetpoint
	}

	return Problem{
		Perimeter:             perimeter,
		InitialFlows:          flows,
		Sensitivities:         sens,
		PrePerimeterSetpoints: setpoints,
		Parameters:            params,
	}, nil
}

func (dto CnecDTO) toCnec(states stateRegistry) (*domain.Cnec, error) {
	state, err := states.get(dto.State)
	if err != nil {
		return nil, fmt.Errorf("cnec %s: %w", dto.ID, err)
	}
	var errs []error
	thresholds := make([]domain.Threshold, 0, len(dto.Thresholds))
	for _, t := range dto.Thresholds {
		side, err := domain.ParseSide(t.Side)
		if err != nil {
			errs = append(errs, err)
		}
		unit, err := domain.ParseUnit(t.Unit)
		if err != nil {
			errs = append(errs, err)
		}
		th := domain.Threshold{Side: side, Unit: unit, Min: math.Inf(-1), Max: math.Inf(1)}
		if t.Min != nil {
			th.Min = *t.Min
		}
		if t.Max != nil {
			th.Max = *t.Max
		}
		thresholds = append(thresholds, th)
	}
	var loopFlow *domain.LoopFlowThreshold
	if dto.LoopFlowThreshold != nil {
		unit, err := domain.ParseUnit(dto.LoopFlowThreshold.Unit)
		if err != nil {
			errs = append(errs, err)
		}
		loopFlow = &domain.LoopFlowThreshold{Value: dto.LoopFlowThreshold.Value, Unit: unit}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("cnec %s: %w", dto.ID, err)
	}
	return domain.NewCnec(domain.Cnec{
		ID:                dto.ID,
		NetworkElement:    dto.NetworkElement,
		Operator:          dto.Operator,
		Kind:              domain.FlowElement,
		State:             state,
		Thresholds:        thresholds,
		NominalVoltage:    dto.NominalVoltage,
		ReliabilityMargin: dto.ReliabilityMargin,
		Optimized:         dto.Optimized,
		Monitored:         dto.Monitored,
		LoopFlowThreshold: loopFlow,
	})
}

func parseRangeType(s string) (domain.RangeType, error) {
	switch s {
	case "", "ABSOLUTE":
		return domain.RangeAbsolute, nil
	case "RELATIVE_TO_INITIAL":
		return domain.RangeRelativeToInitial, nil
	case "RELATIVE_TO_PREVIOUS":
		return domain.RangeRelativeToPrevious, nil
	}
	return domain.RangeAbsolute, fmt.Errorf("%w: unknown range type %q", domain.ErrInvalid, s)
}

func (dto RangeActionDTO) toRangeAction() (*domain.RangeAction, error) {
	kind, err := domain.ParseRangeActionKind(dto.Kind)
	if err != nil {
		return nil, fmt.Errorf("range action %s: %w", dto.ID, err)
	}
	ranges := make([]domain.Range, 0, len(dto.Ranges))
	for _, r := range dto.Ranges {
		typ, err := parseRangeType(r.Type)
		if err != nil {
			return nil, fmt.Errorf("range action %s: %w", dto.ID, err)
		}
		ranges = append(ranges, domain.Range{Type: typ, Min: r.Min, Max: r.Max})
	}
	ra := domain.RangeAction{
		ID:              dto.ID,
		Name:            dto.Name,
		Operator:        dto.Operator,
		GroupID:         dto.GroupID,
		NetworkElement:  dto.NetworkElement,
		Kind:            kind,
		Ranges:          ranges,
		InitialSetpoint: dto.InitialSetpoint,
	}
	if len(dto.Taps) > 0 {
		ra.Taps = &domain.TapTable{TapToAngle: dto.Taps, InitialTap: dto.InitialTap}
	}
	return domain.NewRangeAction(ra)
}

func (dto ParametersDTO) toParameters(maxIterations int) (Parameters, error) {
	p := DefaultParameters()
	if maxIterations > 0 {
		p.MaxIterations = maxIterations
	}
	if dto.MaxIterations > 0 {
		p.MaxIterations = dto.MaxIterations
	}
	var errs []error
	unit, err := domain.ParseUnit(dto.ObjectiveUnit)
	if err != nil {
		errs = append(errs, err)
	}
	p.Objective = Objective{Unit: unit, Relative: dto.RelativeMargin}
	if p.PstModel, err = ParsePstModel(dto.PstModel); err != nil {
		errs = append(errs, err)
	}
	if dto.PtdfSumLowerBound != nil {
		p.RelativeMargin.PtdfSumLowerBound = *dto.PtdfSumLowerBound
	}
	if p.RelativeMargin.PtdfApproximation, err = fillers.ParsePtdfApproximation(dto.PtdfApproximation); err != nil {
		errs = append(errs, err)
	}
	p.RangeActions.RangeShrinking = dto.RangeShrinking
	if dto.PstPenaltyCost != nil {
		p.RangeActions.PstPenaltyCost = *dto.PstPenaltyCost
	}
	if dto.HvdcPenaltyCost != nil {
		p.RangeActions.HvdcPenaltyCost = *dto.HvdcPenaltyCost
	}
	if dto.InjectionPenaltyCost != nil {
		p.RangeActions.InjectionPenaltyCost = *dto.InjectionPenaltyCost
	}
	if dto.Mnec != nil {
		p.Mnec = &fillers.MnecParameters{
			AcceptableMarginDecrease:        dto.Mnec.AcceptableMarginDecrease,
			ViolationCost:                   dto.Mnec.ViolationCost,
			ConstraintAdjustmentCoefficient: dto.Mnec.ConstraintAdjustmentCoefficient,
		}
	}
	if dto.LoopFlow != nil {
		approx, err := fillers.ParsePtdfApproximation(dto.LoopFlow.PtdfApproximation)
		if err != nil {
			errs = append(errs, err)
		}
		p.LoopFlow = &fillers.LoopFlowParameters{
			AcceptableIncrease:              dto.LoopFlow.AcceptableIncrease,
			ViolationCost:                   dto.LoopFlow.ViolationCost,
			ConstraintAdjustmentCoefficient: dto.LoopFlow.ConstraintAdjustmentCoefficient,
			PtdfApproximation:               approx,
		}
	}
	if len(dto.UsageLimits) > 0 {
		p.UsageLimits = make(map[string]fillers.UsageLimits, len(dto.UsageLimits))
		for stateID, l := range dto.UsageLimits {
			p.UsageLimits[stateID] = fillers.UsageLimits{
				MaxRangeActions:       l.MaxRangeActions,
				MaxTso:                l.MaxTso,
				MaxTsoExclusion:       l.MaxTsoExclusion,
				MaxRangeActionsPerTso: l.MaxRangeActionsPerTso,
				MaxPstPerTso:          l.MaxPstPerTso,
			}
		}
	}
	p.Unoptimized = fillers.UnoptimizedCnecParameters{
		OperatorsNotToOptimize: dto.OperatorsNotToOptimize,
		CnecsSecuredByTheirPst: dto.CnecsSecuredByTheirPst,
	}
	if err := errors.Join(errs...); err != nil {
		return p, err
	}
	return p, p.Validate()
}

// SetpointDTO is the optimised setpoint of one action in one state.
type SetpointDTO struct {
	ActionID string  `json:"action_id"`
	State    string  `json:"state"`
	Setpoint float64 `json:"setpoint"`
	Tap      *int    `json:"tap,omitempty"`
}

// CnecResultDTO is the flow and margin of one cnec side after optimisation.
type CnecResultDTO struct {
	CnecID string  `json:"cnec_id"`
	Side   string  `json:"side"`
	Flow   float64 `json:"flow"`
	Margin float64 `json:"margin"`
}

// RunResult is the wire form of Result.
type RunResult struct {
	Status        string          `json:"status"`
	SolverStatus  string          `json:"solver_status"`
	Iterations    int             `json:"iterations"`
	WorstMargin   float64         `json:"worst_margin"`
	Setpoints     []SetpointDTO   `json:"setpoints"`
	Cnecs         []CnecResultDTO `json:"cnecs"`
	ExcludedCnecs []string        `json:"excluded_cnecs,omitempty"`
	DurationMs    int64           `json:"duration_ms"`
}

// NewRunResult flattens a result. Flows and margins are in the objective
// unit; sides without a flow or with an unlimited margin are left out.
func NewRunResult(p Problem, res *Result) *RunResult {
	unit := p.Parameters.Objective.Unit
	out := &RunResult{
		Status:        string(res.Status),
		SolverStatus:  res.SolverStatus.String(),
		Iterations:    res.Iterations,
		WorstMargin:   res.WorstMargin,
		ExcludedCnecs: res.ExcludedCnecs,
		DurationMs:    res.Duration.Milliseconds(),
	}
	for _, state := range p.Perimeter.States() {
		for _, ra := range p.Perimeter.RangeActions(state) {
			sp := SetpointDTO{ActionID: ra.ID, State: state.ID, Setpoint: res.Setpoints.Setpoint(ra, state)}
			if ra.Kind == domain.PstAction {
				tap := res.Setpoints.Tap(ra, state)
				sp.Tap = &tap
			}
			out.Setpoints = append(out.Setpoints, sp)
		}
	}
	for _, c := range p.Perimeter.FlowCnecs() {
		for _, side := range domain.MonitoredSides(c) {
			flow := res.Flows.Flow(c, side, unit)
			margin := res.Flows.Margin(c, side, unit)
			if math.IsNaN(flow) || math.IsNaN(margin) || math.IsInf(margin, 0) {
				continue
			}
			out.Cnecs = append(out.Cnecs, CnecResultDTO{CnecID: c.ID, Side: side.String(), Flow: flow, Margin: margin})
		}
	}
	sort.SliceStable(out.Setpoints, func(i, j int) bool {
		if out.Setpoints[i].ActionID != out.Setpoints[j].ActionID {
			return out.Setpoints[i].ActionID < out.Setpoints[j].ActionID
		}
		return out.Setpoints[i].State < out.Setpoints[j].State
	})
	return out
}
