package fillers

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/rao/internal/domain"
	"github.com/aristath/rao/internal/modules/linearproblem"
)

// MaxMinRelativeMarginFiller extends the absolute margin objective with a
// relative margin, the margin divided by the zonal PTDF sum of the cnec. The
// relative margin only counts while every margin is positive:
//
//	MM <= 0
//	F[c] + k[c] * max(ptdf[c], lb) * MRM <= fmax[c]
//	MM - M * b >= -M
//	MRM - (M / lb) * b <= 0
type MaxMinRelativeMarginFiller struct {
	absolute *MaxMinMarginFiller
	params   RelativeMarginParameters
	bigM     float64
	log      zerolog.Logger
}

func NewMaxMinRelativeMarginFiller(log zerolog.Logger, perimeter *domain.Perimeter, unit domain.Unit, params RelativeMarginParameters) *MaxMinRelativeMarginFiller {
	if !(params.PtdfSumLowerBound > 0) {
		params.PtdfSumLowerBound = DefaultRelativeMarginParameters().PtdfSumLowerBound
	}
	return &MaxMinRelativeMarginFiller{
		absolute: NewMaxMinMarginFiller(log, perimeter, unit),
		params:   params,
		bigM:     BigM(perimeter.FlowCnecs(), unit),
		log:      log.With().Str("component", "relative_margin_filler").Logger(),
	}
}

func (f *MaxMinRelativeMarginFiller) Fill(lp *linearproblem.LinearProblem, flows domain.FlowResult, sens domain.SensitivityResult) error {
	if err := f.absolute.Fill(lp, flows, sens); err != nil {
		return err
	}
	mm, err := lp.MinMarginVariable()
	if err != nil {
		return err
	}
	mm.SetUB(0)

	maxRelative := f.bigM / f.params.PtdfSumLowerBound
	mrm, err := lp.AddMinRelMarginVariable(math.Inf(-1), maxRelative)
	if err != nil {
		return err
	}
	for _, cs := range cnecSides(f.absolute.cnecs) {
		fv, err := lp.FlowVariable(cs.cnec, cs.side)
		if isNotCreated(err) {
			continue
		}
		if err != nil {
			return err
		}
		if lb, ok := domain.LowerBound(cs.cnec, cs.side, domain.Megawatt); ok {
			con, err := lp.AddMinRelMarginConstraint(math.Inf(-1), -lb, cs.cnec, cs.side, linearproblem.BelowThreshold)
			if err != nil {
				return err
			}
			con.SetCoefficient(fv, -1)
		}
		if ub, ok := domain.UpperBound(cs.cnec, cs.side, domain.Megawatt); ok {
			con, err := lp.AddMinRelMarginConstraint(math.Inf(-1), ub, cs.cnec, cs.side, linearproblem.AboveThreshold)
			if err != nil {
				return err
			}
			con.SetCoefficient(fv, 1)
		}
	}
	if err := f.setRelativeCoefficients(lp, flows); err != nil {
		return err
	}

	positive, err := lp.AddMinRelMarginSignBinary()
	if err != nil {
		return err
	}
	sign, err := lp.AddMinRelMarginSignDefinitionConstraint(-f.bigM, linearproblem.Infinity())
	if err != nil {
		return err
	}
	sign.SetCoefficient(mm, 1)
	sign.SetCoefficient(positive, -f.bigM)

	zero, err := lp.AddMinRelMarginSetToZeroConstraint(math.Inf(-1), 0)
	if err != nil {
		return err
	}
	zero.SetCoefficient(mrm, 1)
	zero.SetCoefficient(positive, -maxRelative)

	lp.Objective().SetCoefficient(mrm, -1)
	f.log.Debug().Float64("big_m", f.bigM).Msg("Relative margin filler done")
	return nil
}

func (f *MaxMinRelativeMarginFiller) Update(lp *linearproblem.LinearProblem, flows domain.FlowResult, _ domain.SensitivityResult, _ domain.SetpointResult) error {
	if !f.params.PtdfApproximation.ShouldUpdatePtdfWithPstChange() {
		return nil
	}
	return f.setRelativeCoefficients(lp, flows)
}

// setRelativeCoefficients writes k[c] * max(ptdf[c], lb) on every relative
// margin constraint.
func (f *MaxMinRelativeMarginFiller) setRelativeCoefficients(lp *linearproblem.LinearProblem, flows domain.FlowResult) error {
	mrm, err := lp.MinRelMarginVariable()
	if err != nil {
		return err
	}
	for _, cs := range cnecSides(f.absolute.cnecs) {
		k, err := unitToMegawatt(cs.cnec, cs.side, f.absolute.unit)
		if err != nil {
			return err
		}
		ptdf := math.Max(flows.PtdfZonalSum(cs.cnec, cs.side), f.params.PtdfSumLowerBound)
		for _, ext := range []linearproblem.MarginExtension{linearproblem.BelowThreshold, linearproblem.AboveThreshold} {
			con, err := lp.MinRelMarginConstraint(cs.cnec, cs.side, ext)
			if isNotCreated(err) {
				continue
			}
			if err != nil {
				return err
			}
			con.SetCoefficient(mrm, k*ptdf)
		}
	}
	return nil
}
