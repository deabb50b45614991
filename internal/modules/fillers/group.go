package fillers

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/rao/internal/domain"
	"github.com/aristath/rao/internal/modules/linearproblem"
)

// groupsOf returns the group ids shared by at least two actions of state
// accepted by keep, sorted, with their members. A nil keep accepts every action.
func groupsOf(perimeter *domain.Perimeter, state *domain.State, keep func(*domain.RangeAction) bool) ([]string, map[string][]*domain.RangeAction) {
	members := make(map[string][]*domain.RangeAction)
	for _, ra := range perimeter.RangeActions(state) {
		if keep != nil && !keep(ra) {
			continue
		}
		if ra.GroupID != "" {
			members[ra.GroupID] = append(members[ra.GroupID], ra)
		}
	}
	ids := make([]string, 0, len(members))
	for id, ras := range members {
		if len(ras) < 2 {
			delete(members, id)
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, members
}

func isPst(ra *domain.RangeAction) bool { return ra.Kind == domain.PstAction }

func isNotPst(ra *domain.RangeAction) bool { return ra.Kind != domain.PstAction }

// ContinuousGroupFiller forces the setpoints of grouped actions to be equal:
//
//	S[r] - G[group] = 0
type ContinuousGroupFiller struct {
	perimeter *domain.Perimeter
	keep      func(*domain.RangeAction) bool
	log       zerolog.Logger
}

func NewContinuousGroupFiller(log zerolog.Logger, perimeter *domain.Perimeter) *ContinuousGroupFiller {
	return &ContinuousGroupFiller{
		perimeter: perimeter,
		log:       log.With().Str("component", "continuous_group_filler").Logger(),
	}
}

// WithoutPsts restricts the filler to HVDC, injection and counter-trading
// actions. Grouped PSTs are then handled by the discrete group filler.
func (f *ContinuousGroupFiller) WithoutPsts() *ContinuousGroupFiller {
	f.keep = isNotPst
	return f
}

func (f *ContinuousGroupFiller) Fill(lp *linearproblem.LinearProblem, _ domain.FlowResult, _ domain.SensitivityResult) error {
	count := 0
	for _, state := range f.perimeter.States() {
		ids, members := groupsOf(f.perimeter, state, f.keep)
		for _, id := range ids {
			group, err := lp.AddGroupSetpointVariable(math.Inf(-1), linearproblem.Infinity(), id, state)
			if err != nil {
				return err
			}
			for _, ra := range members[id] {
				sv, err := lp.SetpointVariable(ra, state)
				if err != nil {
					return err
				}
				con, err := lp.AddGroupSetpointConstraint(0, 0, ra, state)
				if err != nil {
					return err
				}
				con.SetCoefficient(sv, 1)
				con.SetCoefficient(group, -1)
			}
			count++
		}
	}
	f.log.Debug().Int("groups", count).Msg("Continuous group filler done")
	return nil
}

func (f *ContinuousGroupFiller) Update(*linearproblem.LinearProblem, domain.FlowResult, domain.SensitivityResult, domain.SetpointResult) error {
	return nil
}

// DiscreteGroupFiller forces grouped phase shifters onto the same tap. It reads
// the tap variation variables of the discrete tap filler, which must run first:
//
//	up[r] - down[r] - T[group] = -currentTap[r]
type DiscreteGroupFiller struct {
	perimeter    *domain.Perimeter
	prePerimeter domain.SetpointResult
	log          zerolog.Logger
}

func NewDiscreteGroupFiller(log zerolog.Logger, perimeter *domain.Perimeter, prePerimeter domain.SetpointResult) *DiscreteGroupFiller {
	return &DiscreteGroupFiller{
		perimeter:    perimeter,
		prePerimeter: prePerimeter,
		log:          log.With().Str("component", "discrete_group_filler").Logger(),
	}
}

func (f *DiscreteGroupFiller) Fill(lp *linearproblem.LinearProblem, _ domain.FlowResult, _ domain.SensitivityResult) error {
	count := 0
	for _, state := range f.perimeter.States() {
		ids, members := groupsOf(f.perimeter, state, isPst)
		for _, id := range ids {
			group, err := lp.AddGroupTapVariable(math.Inf(-1), linearproblem.Infinity(), id, state)
			if err != nil {
				return err
			}
			for _, ra := range members[id] {
				up, err := lp.TapVariationVariable(ra, state, linearproblem.Upward)
				if err != nil {
					return err
				}
				down, err := lp.TapVariationVariable(ra, state, linearproblem.Downward)
				if err != nil {
					return err
				}
				con, err := lp.AddGroupTapConstraint(0, 0, ra, state)
				if err != nil {
					return err
				}
				con.SetCoefficient(up, 1)
				con.SetCoefficient(down, -1)
				con.SetCoefficient(group, -1)
			}
			count++
		}
	}
	if err := f.refresh(lp, f.prePerimeter); err != nil {
		return err
	}
	f.log.Debug().Int("groups", count).Msg("Discrete group filler done")
	return nil
}

func (f *DiscreteGroupFiller) Update(lp *linearproblem.LinearProblem, _ domain.FlowResult, _ domain.SensitivityResult, setpoints domain.SetpointResult) error {
	return f.refresh(lp, setpoints)
}

// refresh moves the right-hand side to the current tap of each member.
func (f *DiscreteGroupFiller) refresh(lp *linearproblem.LinearProblem, setpoints domain.SetpointResult) error {
	for _, state := range f.perimeter.States() {
		for _, ra := range f.perimeter.RangeActions(state) {
			con, err := lp.GroupTapConstraint(ra, state)
			if isNotCreated(err) {
				continue
			}
			if err != nil {
				return err
			}
			tap := float64(setpoints.Tap(ra, state))
			con.SetBounds(-tap, -tap)
		}
	}
	return nil
}
