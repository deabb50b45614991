package rao

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rao/internal/events"
	testingpkg "github.com/aristath/rao/internal/testing"
)

func ptr[T any](v T) *T { return &v }

var preventive = StateDTO{Instant: "preventive"}

// pstRequest describes one line limited to +-100 MW and one PST moving the
// flow by 20 MW per degree, with taps two degrees apart.
func pstRequest(initialFlow float64) *ProblemRequest {
	return &ProblemRequest{
		MainState: preventive,
		Cnecs: []CnecDTO{{
			ID:             "cnec1",
			NetworkElement: "line1",
			Operator:       "opA",
			State:          preventive,
			Thresholds: []ThresholdDTO{
				{Side: "left", Unit: "MEGAWATT", Min: ptr(-100.0), Max: ptr(100.0)},
			},
			NominalVoltage: [2]float64{400, 400},
			Optimized:      true,
		}},
		RangeActions: []RangeActionDTO{{
			ID:             "pst1",
			Operator:       "opA",
			NetworkElement: "pst1",
			Kind:           "PST",
			State:          preventive,
			Taps:           map[int]float64{-2: -4, -1: -2, 0: 0, 1: 2, 2: 4},
		}},
		InitialFlows:  []FlowDTO{{CnecID: "cnec1", Side: "left", Flow: initialFlow}},
		Sensitivities: []SensitivityDTO{{CnecID: "cnec1", Side: "left", ActionID: "pst1", Value: 20}},
	}
}

func pstProblem(t *testing.T, initialFlow float64) Problem {
	t.Helper()
	p, err := pstRequest(initialFlow).ToProblem(5)
	require.NoError(t, err)
	return p
}

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	db, _ := testingpkg.NewTestDB(t, "runs")
	return NewRepository(db.Conn(), zerolog.Nop())
}

// recorder collects every event published on a bus.
type recorder struct {
	events chan *events.Event
}

func newRecorder(bus *events.Bus) *recorder {
	r := &recorder{events: make(chan *events.Event, 64)}
	for _, typ := range events.AllTypes {
		bus.Subscribe(typ, func(e *events.Event) { r.events <- e })
	}
	return r
}

func (r *recorder) types() []events.EventType {
	var out []events.EventType
	for {
		select {
		case e := <-r.events:
			out = append(out, e.Type)
		default:
			return out
		}
	}
}
