package domain

import "math"

// ComputationStatus is the outcome of a sensitivity computation for one state.
type ComputationStatus int

const (
	ComputationOK ComputationStatus = iota
	ComputationFailure
)

// FlowResult provides flows and flow-derived quantities for one iteration.
type FlowResult interface {
	Flow(c *Cnec, side Side, unit Unit) float64
	Margin(c *Cnec, side Side, unit Unit) float64
	PtdfZonalSum(c *Cnec, side Side) float64
	CommercialFlow(c *Cnec, side Side, unit Unit) float64
	LoopFlow(c *Cnec, side Side, unit Unit) float64
}

// SensitivityResult provides the derivative of flows with respect to setpoints.
type SensitivityResult interface {
	Sensitivity(c *Cnec, side Side, ra *RangeAction, unit Unit) float64
	Status(state *State) ComputationStatus
}

// SetpointResult provides the setpoint of every range action in every state.
type SetpointResult interface {
	Setpoint(ra *RangeAction, state *State) float64
	Tap(ra *RangeAction, state *State) int
}

// FlowKey identifies one side of one cnec.
type FlowKey struct {
	CnecID string
	Side   Side
}

// FlowSnapshot is an immutable FlowResult backed by maps. Values are in MW.
// Missing flows read as NaN.
type FlowSnapshot struct {
	Flows           map[FlowKey]float64
	PtdfSums        map[FlowKey]float64
	CommercialFlows map[FlowKey]float64
}

// NewFlowSnapshot returns an empty snapshot ready to be filled.
func NewFlowSnapshot() *FlowSnapshot {
	return &FlowSnapshot{
		Flows:           make(map[FlowKey]float64),
		PtdfSums:        make(map[FlowKey]float64),
		CommercialFlows: make(map[FlowKey]float64),
	}
}

func (f *FlowSnapshot) Flow(c *Cnec, side Side, unit Unit) float64 {
	v, ok := f.Flows[FlowKey{c.ID, side}]
	if !ok {
		return math.NaN()
	}
	return v * mustMultiplier(c, side, Megawatt, unit)
}

func (f *FlowSnapshot) Margin(c *Cnec, side Side, unit Unit) float64 {
	return Margin(c, side, f.Flow(c, side, unit), unit)
}

func (f *FlowSnapshot) PtdfZonalSum(c *Cnec, side Side) float64 {
	return f.PtdfSums[FlowKey{c.ID, side}]
}

func (f *FlowSnapshot) CommercialFlow(c *Cnec, side Side, unit Unit) float64 {
	return f.CommercialFlows[FlowKey{c.ID, side}] * mustMultiplier(c, side, Megawatt, unit)
}

// LoopFlow is the part of the flow not explained by commercial exchanges.
func (f *FlowSnapshot) LoopFlow(c *Cnec, side Side, unit Unit) float64 {
	return f.Flow(c, side, unit) - f.CommercialFlow(c, side, unit)
}

// SensitivityKey identifies the sensitivity of one cnec side to one action.
type SensitivityKey struct {
	CnecID   string
	Side     Side
	ActionID string
}

// SensitivitySnapshot is an immutable SensitivityResult backed by maps. Values
// are in MW per setpoint unit. Missing sensitivities read as zero.
type SensitivitySnapshot struct {
	Values       map[SensitivityKey]float64
	FailedStates map[string]bool
}

// NewSensitivitySnapshot returns an empty snapshot ready to be filled.
func NewSensitivitySnapshot() *SensitivitySnapshot {
	return &SensitivitySnapshot{
		Values:       make(map[SensitivityKey]float64),
		FailedStates: make(map[string]bool),
	}
}

func (s *SensitivitySnapshot) Sensitivity(c *Cnec, side Side, ra *RangeAction, unit Unit) float64 {
	return s.Values[SensitivityKey{c.ID, side, ra.ID}] * mustMultiplier(c, side, Megawatt, unit)
}

func (s *SensitivitySnapshot) Status(state *State) ComputationStatus {
	if s.FailedStates[state.ID] {
		return ComputationFailure
	}
	return ComputationOK
}

// SetpointKey identifies the setpoint of one action in one state.
type SetpointKey struct {
	ActionID string
	StateID  string
}

// SetpointSnapshot is an immutable SetpointResult. A state without its own value
// falls back to the action reference, then to the action initial setpoint.
type SetpointSnapshot struct {
	PerState  map[SetpointKey]float64
	Reference map[string]float64
}

// NewSetpointSnapshot returns an empty snapshot ready to be filled.
func NewSetpointSnapshot() *SetpointSnapshot {
	return &SetpointSnapshot{
		PerState:  make(map[SetpointKey]float64),
		Reference: make(map[string]float64),
	}
}

func (s *SetpointSnapshot) Setpoint(ra *RangeAction, state *State) float64 {
	if state != nil {
		if v, ok := s.PerState[SetpointKey{ra.ID, state.ID}]; ok {
			return v
		}
	}
	if v, ok := s.Reference[ra.ID]; ok {
		return v
	}
	return ra.InitialSetpoint
}

func (s *SetpointSnapshot) Tap(ra *RangeAction, state *State) int {
	if ra.Kind != PstAction {
		return 0
	}
	return AngleToTap(ra, s.Setpoint(ra, state))
}
