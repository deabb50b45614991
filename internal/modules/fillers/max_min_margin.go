package fillers

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/rao/internal/domain"
	"github.com/aristath/rao/internal/modules/linearproblem"
)

// MaxMinMarginFiller maximises the smallest margin of the optimised cnecs,
// expressed in unit:
//
//	F[c] + k[c] * MM <= fmax[c]
//	-F[c] + k[c] * MM <= -fmin[c]
//
// k[c] converts unit into MW on the side of c.
type MaxMinMarginFiller struct {
	cnecs []*domain.Cnec
	unit  domain.Unit
	log   zerolog.Logger
}

func NewMaxMinMarginFiller(log zerolog.Logger, perimeter *domain.Perimeter, unit domain.Unit) *MaxMinMarginFiller {
	return &MaxMinMarginFiller{
		cnecs: optimizedCnecs(perimeter),
		unit:  unit,
		log:   log.With().Str("component", "max_min_margin_filler").Logger(),
	}
}

func optimizedCnecs(perimeter *domain.Perimeter) []*domain.Cnec {
	var out []*domain.Cnec
	for _, c := range perimeter.FlowCnecs() {
		if c.Optimized {
			out = append(out, c)
		}
	}
	return out
}

func (f *MaxMinMarginFiller) Fill(lp *linearproblem.LinearProblem, _ domain.FlowResult, _ domain.SensitivityResult) error {
	mm, err := lp.AddMinMarginVariable(math.Inf(-1), linearproblem.Infinity())
	if err != nil {
		return err
	}
	count := 0
	for _, cs := range cnecSides(f.cnecs) {
		fv, err := lp.FlowVariable(cs.cnec, cs.side)
		if isNotCreated(err) {
			continue
		}
		if err != nil {
			return err
		}
		k, err := unitToMegawatt(cs.cnec, cs.side, f.unit)
		if err != nil {
			return err
		}
		if lb, ok := domain.LowerBound(cs.cnec, cs.side, domain.Megawatt); ok {
			con, err := lp.AddMinMarginConstraint(math.Inf(-1), -lb, cs.cnec, cs.side, linearproblem.BelowThreshold)
			if err != nil {
				return err
			}
			con.SetCoefficient(fv, -1)
			con.SetCoefficient(mm, k)
			count++
		}
		if ub, ok := domain.UpperBound(cs.cnec, cs.side, domain.Megawatt); ok {
			con, err := lp.AddMinMarginConstraint(math.Inf(-1), ub, cs.cnec, cs.side, linearproblem.AboveThreshold)
			if err != nil {
				return err
			}
			con.SetCoefficient(fv, 1)
			con.SetCoefficient(mm, k)
			count++
		}
	}
	lp.Objective().SetMinimization()
	lp.Objective().SetCoefficient(mm, -1)

	f.log.Debug().Int("constraints", count).Str("unit", f.unit.String()).Msg("Max-min margin filler done")
	return nil
}

func (f *MaxMinMarginFiller) Update(*linearproblem.LinearProblem, domain.FlowResult, domain.SensitivityResult, domain.SetpointResult) error {
	return nil
}
