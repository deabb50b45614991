package fillers

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/rao/internal/domain"
	"github.com/aristath/rao/internal/modules/linearproblem"
)

// UsageLimitsFiller caps the number of range actions, operators, actions per
// operator and PSTs per operator used in a state. An action counts as used
// when its binary is set; the binary must be set as soon as the setpoint
// leaves its pre-perimeter value:
//
//	S[r] - (max[r] - S0[r]) * U[r] <= S0[r]
//	S[r] + (S0[r] - min[r]) * U[r] >= S0[r]
type UsageLimitsFiller struct {
	perimeter    *domain.Perimeter
	prePerimeter domain.SetpointResult
	limits       map[string]UsageLimits
	bigM         float64
	log          zerolog.Logger
}

// NewUsageLimitsFiller creates the filler. limits are keyed by state id;
// states without limits get no variable.
func NewUsageLimitsFiller(log zerolog.Logger, perimeter *domain.Perimeter, prePerimeter domain.SetpointResult, limits map[string]UsageLimits) *UsageLimitsFiller {
	return &UsageLimitsFiller{
		perimeter:    perimeter,
		prePerimeter: prePerimeter,
		limits:       limits,
		bigM:         BigM(perimeter.FlowCnecs(), domain.Megawatt),
		log:          log.With().Str("component", "usage_limits_filler").Logger(),
	}
}

func (f *UsageLimitsFiller) Fill(lp *linearproblem.LinearProblem, _ domain.FlowResult, _ domain.SensitivityResult) error {
	for _, state := range f.perimeter.States() {
		limits, ok := f.limits[state.ID]
		if !ok || limits.IsEmpty() {
			continue
		}
		actions := f.perimeter.RangeActions(state)
		used := make(map[string]*linearproblem.Variable, len(actions))
		for _, ra := range actions {
			b, err := f.buildUsedBinary(lp, ra, state)
			if err != nil {
				return err
			}
			used[ra.ID] = b
		}

		if limits.MaxRangeActions != nil {
			con, err := lp.AddMaxRaConstraint(0, float64(*limits.MaxRangeActions), state)
			if err != nil {
				return err
			}
			for _, ra := range actions {
				con.SetCoefficient(used[ra.ID], 1)
			}
		}
		if limits.MaxTso != nil {
			if err := f.buildMaxTso(lp, state, actions, used, limits); err != nil {
				return err
			}
		}
		for _, op := range sortedKeys(limits.MaxRangeActionsPerTso) {
			con, err := lp.AddMaxRaPerTsoConstraint(0, float64(limits.MaxRangeActionsPerTso[op]), op, state)
			if err != nil {
				return err
			}
			for _, ra := range actions {
				if ra.Operator == op {
					con.SetCoefficient(used[ra.ID], 1)
				}
			}
		}
		for _, op := range sortedKeys(limits.MaxPstPerTso) {
			con, err := lp.AddMaxPstPerTsoConstraint(0, float64(limits.MaxPstPerTso[op]), op, state)
			if err != nil {
				return err
			}
			for _, ra := range actions {
				if ra.Operator == op && ra.Kind == domain.PstAction {
					con.SetCoefficient(used[ra.ID], 1)
				}
			}
		}
		f.log.Debug().Str("state", state.ID).Int("range_actions", len(actions)).Msg("Usage limits built")
	}
	return nil
}

func (f *UsageLimitsFiller) Update(*linearproblem.LinearProblem, domain.FlowResult, domain.SensitivityResult, domain.SetpointResult) error {
	return nil
}

func (f *UsageLimitsFiller) buildUsedBinary(lp *linearproblem.LinearProblem, ra *domain.RangeAction, state *domain.State) (*linearproblem.Variable, error) {
	sv, err := lp.SetpointVariable(ra, state)
	if err != nil {
		return nil, err
	}
	b, err := lp.AddRangeActionUsedBinary(ra, state)
	if err != nil {
		return nil, err
	}

	initial := f.prePerimeter.Setpoint(ra, state)
	var lo, hi float64
	if _, _, ok := f.perimeter.PreviousAction(ra, state); ok {
		limits := domain.Limits(ra)
		lo, hi = limits.MinAbsolute, limits.MaxAbsolute
	} else if lo, hi, err = domain.AdmissibleRange(ra, initial); err != nil {
		return nil, err
	}
	// The setpoint variable may overshoot its range by setpointEpsilon.
	up := f.span(hi - initial + setpointEpsilon)
	down := f.span(initial - lo + setpointEpsilon)

	upward, err := lp.AddIsVariationInDirectionConstraint(math.Inf(-1), initial, ra, state, linearproblem.PrePerimeter, linearproblem.Upward)
	if err != nil {
		return nil, err
	}
	upward.SetCoefficient(sv, 1)
	upward.SetCoefficient(b, -up)

	downward, err := lp.AddIsVariationInDirectionConstraint(initial, linearproblem.Infinity(), ra, state, linearproblem.PrePerimeter, linearproblem.Downward)
	if err != nil {
		return nil, err
	}
	downward.SetCoefficient(sv, 1)
	downward.SetCoefficient(b, down)
	return b, nil
}

// span replaces an unbounded setpoint range by the shared big-M.
func (f *UsageLimitsFiller) span(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return f.bigM
	}
	return math.Max(v, 0)
}

// buildMaxTso counts the operators using at least one action. Excluded
// operators get no variable.
func (f *UsageLimitsFiller) buildMaxTso(lp *linearproblem.LinearProblem, state *domain.State, actions []*domain.RangeAction, used map[string]*linearproblem.Variable, limits UsageLimits) error {
	byOperator := make(map[string][]*domain.RangeAction)
	for _, ra := range actions {
		if ra.Operator == "" || contains(limits.MaxTsoExclusion, ra.Operator) {
			continue
		}
		byOperator[ra.Operator] = append(byOperator[ra.Operator], ra)
	}
	con, err := lp.AddMaxTsoConstraint(0, float64(*limits.MaxTso), state)
	if err != nil {
		return err
	}
	for _, op := range sortedKeys(byOperator) {
		tsoUsed, err := lp.AddTsoRaUsedVariable(0, 1, op, state)
		if err != nil {
			return err
		}
		con.SetCoefficient(tsoUsed, 1)
		for _, ra := range byOperator[op] {
			link, err := lp.AddTsoRaUsedConstraint(0, linearproblem.Infinity(), op, ra, state)
			if err != nil {
				return err
			}
			link.SetCoefficient(tsoUsed, 1)
			link.SetCoefficient(used[ra.ID], -1)
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
