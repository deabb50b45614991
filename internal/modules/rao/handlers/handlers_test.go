package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rao/internal/events"
	"github.com/aristath/rao/internal/modules/rao"
	testingpkg "github.com/aristath/rao/internal/testing"
)

const runBody = `{
  "main_state": {"instant": "preventive"},
  "cnecs": [{
    "id": "cnec1", "network_element": "line1", "operator": "opA",
    "state": {"instant": "preventive"},
    "thresholds": [{"side": "left", "unit": "MEGAWATT", "min": -100, "max": 100}],
    "optimized": true
  }],
  "range_actions": [{
    "id": "pst1", "operator": "opA", "network_element": "pst1", "kind": "PST",
    "state": {"instant": "preventive"},
    "taps": {"-2": -4, "-1": -2, "0": 0, "1": 2, "2": 4}
  }],
  "initial_flows": [{"cnec_id": "cnec1", "side": "left", "flow": 150}],
  "sensitivities": [{"cnec_id": "cnec1", "side": "left", "action_id": "pst1", "value": 20}]
}`

func setupRouter(t *testing.T) chi.Router {
	t.Helper()
	logger := zerolog.New(nil).Level(zerolog.Disabled)

	db, _ := testingpkg.NewTestDB(t, "runs")

	service := rao.NewService(
		rao.NewOptimizer(logger, nil),
		rao.NewRepository(db.Conn(), logger),
		events.NewManager(events.NewBus(), logger),
		nil,
		rao.ServiceConfig{MaxIterations: 5, MaxParallelRuns: 2},
		logger,
	)

	router := chi.NewRouter()
	NewHandler(service, logger).RegisterRoutes(router)
	return router
}

type runEnvelope struct {
	Data rao.Run `json:"data"`
}

func TestRegisterRoutes(t *testing.T) {
	router := setupRouter(t)

	var routes []string
	require.NoError(t, chi.Walk(router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, method+" "+route)
		return nil
	}))
	assert.ElementsMatch(t, []string{
		"POST /runs/",
		"POST /runs/batch",
		"GET /runs/",
		"GET /runs/{id}",
		"DELETE /runs/{id}",
	}, routes)
}

func TestRunLifecycle(t *testing.T) {
	router := setupRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/runs/", strings.NewReader(runBody)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created runEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, rao.StatusCompleted, created.Data.Status)
	require.NotNil(t, created.Data.Result)
	assert.Equal(t, "OPTIMIZED", created.Data.Result.Status)
	assert.InDelta(t, 30, created.Data.Result.WorstMargin, 1e-6)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/"+created.Data.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched runEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Equal(t, created.Data.ID, fetched.Data.ID)
	require.NotNil(t, fetched.Data.Request)
	assert.Equal(t, 4.0, fetched.Data.Request.RangeActions[0].Taps[2])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/?limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Data struct {
			Runs  []rao.Run `json:"runs"`
			Count int       `json:"count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Equal(t, 1, listed.Data.Count)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/runs/"+created.Data.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/"+created.Data.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRun_BadRequests(t *testing.T) {
	router := setupRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/runs/", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	invalid := strings.Replace(runBody, `"kind": "PST"`, `"kind": "SWITCH"`, 1)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/runs/", strings.NewReader(invalid)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "SWITCH")
}

func TestCreateBatch(t *testing.T) {
	router := setupRouter(t)

	body := `{"problems": [` + runBody + `,` + runBody + `]}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/runs/batch", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Data struct {
			BatchID string    `json:"batch_id"`
			Runs    []rao.Run `json:"runs"`
			Count   int       `json:"count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Data.BatchID)
	assert.Equal(t, 2, resp.Data.Count)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/?batch_id="+resp.Data.BatchID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":2`)
}
