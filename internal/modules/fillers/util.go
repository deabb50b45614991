package fillers

import (
	"errors"
	"fmt"
	"math"

	"github.com/aristath/rao/internal/domain"
	"github.com/aristath/rao/internal/modules/linearproblem"
)

type cnecSide struct {
	cnec *domain.Cnec
	side domain.Side
}

// cnecSides flattens cnecs into their monitored sides, in cnec order.
func cnecSides(cnecs []*domain.Cnec) []cnecSide {
	var out []cnecSide
	for _, c := range cnecs {
		for _, side := range domain.MonitoredSides(c) {
			out = append(out, cnecSide{cnec: c, side: side})
		}
	}
	return out
}

// unitToMegawatt converts a margin expressed in unit into MW on the given side.
func unitToMegawatt(c *domain.Cnec, side domain.Side, unit domain.Unit) (float64, error) {
	return domain.FlowUnitMultiplier(c, side, unit, domain.Megawatt)
}

// isNotCreated reports whether err is a lookup of a missing variable or constraint.
func isNotCreated(err error) bool {
	return errors.Is(err, linearproblem.ErrNotCreated)
}

// validFlow rejects flows the flow result could not provide.
func validFlow(c *domain.Cnec, side domain.Side, flow float64) error {
	if math.IsNaN(flow) {
		return fmt.Errorf("%w: no flow for cnec %s on side %s", domain.ErrInvalid, c.ID, side)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
