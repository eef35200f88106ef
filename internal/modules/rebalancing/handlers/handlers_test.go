package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/capitol/internal/domain"
	"github.com/aristath/capitol/internal/modules/blending"
	"github.com/aristath/capitol/internal/modules/rebalancing"
	testingpkg "github.com/aristath/capitol/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	blendErr error
	cycleErr error
	dryRuns  []bool
	limit    int
	runs     []rebalancing.RunRecord
}

func (f *fakeRunner) Blend(ctx context.Context) (*blending.Result, error) {
	if f.blendErr != nil {
		return nil, f.blendErr
	}
	return &blending.Result{
		TotalEquity: 100000,
		Positions:   []domain.TargetPosition{testingpkg.NewTarget("AAPL", 5000, "congressional")},
	}, nil
}

func (f *fakeRunner) RunCycle(ctx context.Context, dryRun bool) (*rebalancing.CycleResult, error) {
	f.dryRuns = append(f.dryRuns, dryRun)
	if f.cycleErr != nil {
		return nil, f.cycleErr
	}
	return &rebalancing.CycleResult{
		Mode:   "paper",
		DryRun: dryRun,
		Equity: 100000,
		Plan:   &rebalancing.RebalancePlan{CycleID: "cycle-1"},
	}, nil
}

func (f *fakeRunner) Runs(ctx context.Context, limit int) ([]rebalancing.RunRecord, error) {
	f.limit = limit
	return f.runs, nil
}

func setupRouter(t *testing.T, runner *fakeRunner) (http.Handler, *rebalancing.FlagRepository) {
	flags := rebalancing.NewFlagRepository(testingpkg.NewMemoryDB(t, "capitol"), zerolog.Nop())
	r := chi.NewRouter()
	r.Route("/api", NewHandler(runner, flags, zerolog.Nop()).RegisterRoutes)
	return r, flags
}

func do(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w, body
}

func TestHandleBlend(t *testing.T) {
	h, _ := setupRouter(t, &fakeRunner{})

	w, body := do(t, h, http.MethodPost, "/api/portfolio/blend")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	data := body["data"].(map[string]interface{})
	assert.Equal(t, 100000.0, data["total_equity"])
	assert.Len(t, data["positions"], 1)
	assert.Contains(t, body["metadata"], "timestamp")
}

func TestHandleBlend_InvalidPortfolioConfig(t *testing.T) {
	h, _ := setupRouter(t, &fakeRunner{blendErr: fmt.Errorf("bad weights: %w", domain.ErrUnknownStrategy)})

	w, body := do(t, h, http.MethodPost, "/api/portfolio/blend")

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INVALID_PORTFOLIO_CONFIG", body["error"].(map[string]interface{})["code"])
}

func TestHandlePlanAndRun(t *testing.T) {
	runner := &fakeRunner{}
	h, _ := setupRouter(t, runner)

	w, body := do(t, h, http.MethodPost, "/api/rebalancing/plan")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["metadata"].(map[string]interface{})["dry_run"])

	w, body = do(t, h, http.MethodPost, "/api/rebalancing/run")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["metadata"].(map[string]interface{})["dry_run"])
	assert.Equal(t, "paper", body["metadata"].(map[string]interface{})["mode"])

	assert.Equal(t, []bool{true, false}, runner.dryRuns)
}

func TestHandleRun_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"cycle in progress", rebalancing.ErrCycleInProgress, http.StatusConflict, "CYCLE_IN_PROGRESS"},
		{"empty weights", domain.ErrEmptyWeights, http.StatusUnprocessableEntity, "INVALID_PORTFOLIO_CONFIG"},
		{"broker down", errors.New("failed to get account: connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := setupRouter(t, &fakeRunner{cycleErr: tt.err})

			w, body := do(t, h, http.MethodPost, "/api/rebalancing/run")

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr, body["error"].(map[string]interface{})["code"])
		})
	}
}

func TestHandleGetRuns(t *testing.T) {
	runner := &fakeRunner{runs: []rebalancing.RunRecord{{CycleID: "c-2"}, {CycleID: "c-1"}}}
	h, _ := setupRouter(t, runner)

	w, body := do(t, h, http.MethodGet, "/api/rebalancing/runs?limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, runner.limit)
	assert.Equal(t, 2.0, body["data"].(map[string]interface{})["count"])

	w, _ = do(t, h, http.MethodGet, "/api/rebalancing/runs?limit=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, h, http.MethodGet, "/api/rebalancing/runs?limit=0")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleUntradeable_ListAndClear(t *testing.T) {
	h, flags := setupRouter(t, &fakeRunner{})
	ctx := context.Background()

	w, body := do(t, h, http.MethodGet, "/api/rebalancing/untradeable")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.0, body["data"].(map[string]interface{})["count"])

	require.NoError(t, flags.Flag(ctx, "BRKX", rebalancing.FlagNotionalTooSmall, time.Hour))

	w, body = do(t, h, http.MethodGet, "/api/rebalancing/untradeable")
	require.Equal(t, http.StatusOK, w.Code)
	symbols := body["data"].(map[string]interface{})["symbols"].([]interface{})
	require.Len(t, symbols, 1)
	assert.Equal(t, "BRKX", symbols[0].(map[string]interface{})["symbol"])

	w, _ = do(t, h, http.MethodDelete, "/api/rebalancing/untradeable/BRKX")
	assert.Equal(t, http.StatusOK, w.Code)

	flagged, err := flags.IsFlagged(ctx, "BRKX")
	require.NoError(t, err)
	assert.False(t, flagged)

	w, body = do(t, h, http.MethodDelete, "/api/rebalancing/untradeable/BRKX")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", body["error"].(map[string]interface{})["code"])

	w, _ = do(t, h, http.MethodDelete, "/api/rebalancing/untradeable/brk.b")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
