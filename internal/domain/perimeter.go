package domain

import (
	"errors"
	"fmt"
	"sort"
)

// Perimeter is the set of monitored elements and usable range actions of one
// optimisation pass.
type Perimeter struct {
	mainState     *State
	flowCnecs     []*Cnec
	loopFlowCnecs []*Cnec
	states        []*State
	actions       map[*State][]*RangeAction
}

// NewPerimeter validates and indexes a perimeter. Loop-flow cnecs must also be
// flow cnecs of the perimeter.
func NewPerimeter(mainState *State, flowCnecs, loopFlowCnecs []*Cnec, actionsPerState map[*State][]*RangeAction) (*Perimeter, error) {
	var errs []error
	if mainState == nil {
		errs = append(errs, fmt.Errorf("%w: perimeter has no main state", ErrInvalid))
	}
	ids := make(map[string]bool, len(flowCnecs))
	for _, c := range flowCnecs {
		if ids[c.ID] {
			errs = append(errs, fmt.Errorf("%w: duplicate cnec %s", ErrInvalid, c.ID))
		}
		ids[c.ID] = true
	}
	for _, c := range loopFlowCnecs {
		if !ids[c.ID] {
			errs = append(errs, fmt.Errorf("%w: loop-flow cnec %s is not in the perimeter", ErrInvalid, c.ID))
		}
		if c.LoopFlowThreshold == nil {
			errs = append(errs, fmt.Errorf("%w: loop-flow cnec %s has no loop-flow threshold", ErrInvalid, c.ID))
		}
	}
	p := &Perimeter{
		mainState:     mainState,
		flowCnecs:     SortCnecs(append([]*Cnec(nil), flowCnecs...)),
		loopFlowCnecs: SortCnecs(append([]*Cnec(nil), loopFlowCnecs...)),
		actions:       make(map[*State][]*RangeAction, len(actionsPerState)),
	}
	for state, actions := range actionsPerState {
		seen := make(map[string]bool, len(actions))
		for _, ra := range actions {
			if seen[ra.ID] {
				errs = append(errs, fmt.Errorf("%w: range action %s listed twice in state %s", ErrInvalid, ra.ID, state.ID))
			}
			seen[ra.ID] = true
		}
		p.states = append(p.states, state)
		p.actions[state] = SortRangeActions(append([]*RangeAction(nil), actions...))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	sort.Slice(p.states, func(i, j int) bool {
		if p.states[i].Instant.Order != p.states[j].Instant.Order {
			return p.states[i].Instant.Order < p.states[j].Instant.Order
		}
		return p.states[i].ID < p.states[j].ID
	})
	return p, nil
}

// MainState is the state the perimeter is optimised for.
func (p *Perimeter) MainState() *State { return p.mainState }

// FlowCnecs returns the in-scope cnecs sorted by id.
func (p *Perimeter) FlowCnecs() []*Cnec { return p.flowCnecs }

// LoopFlowCnecs returns the cnecs with a loop-flow threshold sorted by id.
func (p *Perimeter) LoopFlowCnecs() []*Cnec { return p.loopFlowCnecs }

// States returns the states with usable range actions, by instant order then id.
func (p *Perimeter) States() []*State { return p.states }

// RangeActions returns the actions usable in state, sorted by id.
func (p *Perimeter) RangeActions(state *State) []*RangeAction { return p.actions[state] }

// AllRangeActions returns every action of the perimeter once, sorted by id.
func (p *Perimeter) AllRangeActions() []*RangeAction {
	seen := make(map[string]bool)
	var out []*RangeAction
	for _, s := range p.states {
		for _, ra := range p.actions[s] {
			if !seen[ra.ID] {
				seen[ra.ID] = true
				out = append(out, ra)
			}
		}
	}
	return SortRangeActions(out)
}

// StatesUpTo returns the perimeter states on the branch of state that are not
// after it, latest first.
func (p *Perimeter) StatesUpTo(state *State) []*State {
	var out []*State
	for i := len(p.states) - 1; i >= 0; i-- {
		s := p.states[i]
		if s.ID == state.ID || s.Precedes(state) {
			out = append(out, s)
		}
	}
	return out
}

// LastStateWithAction returns the latest state not after state in which an
// action on the same device as ra is usable, with that action. ok is false when
// there is none.
func (p *Perimeter) LastStateWithAction(ra *RangeAction, state *State) (*RangeAction, *State, bool) {
	for _, s := range p.StatesUpTo(state) {
		for _, other := range p.actions[s] {
			if SameAction(ra, other) {
				return other, s, true
			}
		}
	}
	return nil, nil, false
}

// PreviousAction returns the action on the same device as ra available in the
// latest state strictly before state.
func (p *Perimeter) PreviousAction(ra *RangeAction, state *State) (*RangeAction, *State, bool) {
	for _, s := range p.StatesUpTo(state) {
		if s.ID == state.ID {
			continue
		}
		for _, other := range p.actions[s] {
			if SameAction(ra, other) {
				return other, s, true
			}
		}
	}
	return nil, nil, false
}
