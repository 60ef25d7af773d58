// Package handlers contains the HTTP handlers of the forecasting API:
//   - City listing (GET /v1/cities)
//   - Best cities (GET /v1/rankings/best)
//   - On-demand ranking (POST /v1/rankings)
//   - Rating report as CSV (GET /v1/rankings/report)
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"forecasting/internal/core"
	"forecasting/internal/pipeline"
	"forecasting/internal/report"
	"forecasting/internal/types"
)

// RankingService is the contract the handler needs from the forecasts
// service.
type RankingService interface {
	Cities() []string
	Rank(ctx context.Context, cities []string) (*pipeline.Result, error)
	RankWithReport(ctx context.Context, cities []string, sink report.Sink) (*pipeline.Result, error)
}

// RankingRequest is the body of POST /v1/rankings. An empty list ranks
// every known city; at most 64 names are accepted.
type RankingRequest struct {
	Cities []string `json:"cities" validate:"max=64,dive,cityname"`
}

// RankingResponse describes one finished ranking run.
type RankingResponse struct {
	RunID      string           `json:"run_id"`
	Best       []types.BestCity `json:"best"`
	Ranked     int              `json:"ranked"`
	Failed     int              `json:"failed"`
	DurationMS int64            `json:"duration_ms"`
}

// CitiesResponse lists the known cities.
type CitiesResponse struct {
	Cities []string `json:"cities"`
}

// RankingHandler maps HTTP requests to RankingService calls.
type RankingHandler struct {
	service   RankingService
	validator *core.Validator
	logger    *slog.Logger
}

// NewRankingHandler creates a RankingHandler.
func NewRankingHandler(svc RankingService, val *core.Validator, logger *slog.Logger) *RankingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if val == nil {
		val = core.NewValidator(logger)
	}
	return &RankingHandler{
		service:   svc,
		validator: val,
		logger:    logger,
	}
}

// RegisterRoutes mounts the ranking endpoints onto r.
func (h *RankingHandler) RegisterRoutes(r chi.Router) {
	r.Get("/cities", h.HandleListCities)
	r.Route("/rankings", func(r chi.Router) {
		r.Post("/", h.HandleCreateRanking)
		r.Get("/best", h.HandleGetBest)
		r.Get("/report", h.HandleGetReport)
	})
}

// HandleListCities handles GET /v1/cities.
func (h *RankingHandler) HandleListCities(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, CitiesResponse{Cities: h.service.Cities()})
}

// HandleGetBest handles GET /v1/rankings/best. Cities are selected with
// repeated or comma-separated "city" query parameters.
func (h *RankingHandler) HandleGetBest(w http.ResponseWriter, r *http.Request) {
	req, err := h.queryRequest(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	h.rank(w, r, req)
}

// HandleCreateRanking handles POST /v1/rankings.
func (h *RankingHandler) HandleCreateRanking(w http.ResponseWriter, r *http.Request) {
	var req RankingRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	h.rank(w, r, req)
}

// HandleGetReport handles GET /v1/rankings/report and returns the rating
// table as CSV.
func (h *RankingHandler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	req, err := h.queryRequest(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	sink := &report.MemorySink{}
	result, err := h.service.RankWithReport(r.Context(), req.Cities, sink)
	if err != nil {
		h.logFailure(r, err)
		core.Error(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="rating.csv"`)
	w.Header().Set("X-Run-Id", result.RunID)
	w.WriteHeader(http.StatusOK)
	if err := report.Encode(w, sink.Table(), false); err != nil {
		h.logger.ErrorContext(r.Context(), "writing report response failed",
			"request_id", types.GetRequestID(r.Context()),
			"error", err,
		)
	}
}

func (h *RankingHandler) rank(w http.ResponseWriter, r *http.Request, req RankingRequest) {
	result, err := h.service.Rank(r.Context(), req.Cities)
	if err != nil {
		h.logFailure(r, err)
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, RankingResponse{
		RunID:      result.RunID,
		Best:       result.BestCities(),
		Ranked:     result.Totals.Succeeded,
		Failed:     result.Failed(),
		DurationMS: result.Duration.Milliseconds(),
	})
}

// queryRequest collects the "city" query parameters into a validated
// RankingRequest.
func (h *RankingHandler) queryRequest(r *http.Request) (RankingRequest, error) {
	var req RankingRequest
	for _, v := range r.URL.Query()["city"] {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				req.Cities = append(req.Cities, strings.ToUpper(name))
			}
		}
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return RankingRequest{}, err
	}
	return req, nil
}

func (h *RankingHandler) logFailure(r *http.Request, err error) {
	h.logger.WarnContext(r.Context(), "ranking request failed",
		"request_id", types.GetRequestID(r.Context()),
		"path", r.URL.Path,
		"error", err,
	)
}
