package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"FinCast/internal/domain/models"
	"FinCast/internal/usecase"
	xhttp "FinCast/pkg/http"
	"FinCast/pkg/http/middleware"
	xlogger "FinCast/pkg/logger"
	"FinCast/pkg/util"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// ForecastEchoHandler serves the forecasting API.
type ForecastEchoHandler struct {
	logger    *xlogger.Logger
	uc        *usecase.ForecastUseCase
	scheduler *usecase.TrainScheduler
	limiter   middleware.Allower
	checks    map[string]HealthCheck
}

// NewForecastEchoHandler builds the handler. scheduler and limiter may be nil:
// without a scheduler training runs in-process, without a limiter the
// predict routes are unthrottled.
func NewForecastEchoHandler(
	logger *xlogger.Logger,
	uc *usecase.ForecastUseCase,
	scheduler *usecase.TrainScheduler,
	limiter middleware.Allower,
	checks map[string]HealthCheck,
) *ForecastEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &ForecastEchoHandler{logger: logger, uc: uc, scheduler: scheduler, limiter: limiter, checks: checks}
}

func (h *ForecastEchoHandler) RegisterRoutes(e *echo.Echo) {
	limit := middleware.RateLimit(h.limiter)

	g := e.Group("/api")
	g.POST("/predict", h.Predict, limit)
	g.GET("/predictions", h.Predictions, limit)
	g.GET("/report", h.Report, limit)
	g.GET("/records", h.Records)
	g.POST("/train", h.Train)
	g.POST("/model/reload", h.Reload)
	g.GET("/model", h.Model)

	e.GET("/health", h.Health)
}

// Predict forecasts from the records in the request body.
func (h *ForecastEchoHandler) Predict(c echo.Context) error {
	q := &models.PredictQuery{}
	if verr := xhttp.ReadAndValidateQuery(c, q); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	var records []models.RecordInput
	if verr := xhttp.ReadJSONBody(c, &records); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	traj, err := h.uc.Predict(c.Request().Context(), models.PredictInput{
		Records:       records,
		TimeInterval:  time.Duration(q.TimeInterval) * time.Second,
		Intervals:     q.Intervals,
		TimeToPredict: time.Duration(q.TimeToPredict) * time.Second,
	})
	if err != nil {
		return h.fail(c, "predict", err)
	}
	return xhttp.SuccessResponse(c, traj.Records())
}

// Records returns the stored history of one asset.
func (h *ForecastEchoHandler) Records(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateQuery(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, appErr := parseRange(req.Start, req.End)
	if appErr != nil {
		return xhttp.AppErrorResponse(c, appErr)
	}

	s, err := h.uc.History(c.Request().Context(), req.Asset, from, to)
	if err != nil {
		return h.fail(c, "records", err)
	}
	return xhttp.ListResponse(c, s.Records, int64(len(s.Records)))
}

// Predictions forecasts from stored history.
func (h *ForecastEchoHandler) Predictions(c echo.Context) error {
	p, appErr, verr := h.historyParams(c)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if appErr != nil {
		return xhttp.AppErrorResponse(c, appErr)
	}

	res, err := h.uc.HistoryForecast(c.Request().Context(), p.params)
	if err != nil {
		return h.fail(c, "predictions", err)
	}
	return xhttp.SuccessResponse(c, res)
}

// Report assesses liquidity risk over stored history and its forecast.
func (h *ForecastEchoHandler) Report(c echo.Context) error {
	p, appErr, verr := h.historyParams(c)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if appErr != nil {
		return xhttp.AppErrorResponse(c, appErr)
	}

	res, err := h.uc.Report(c.Request().Context(), p.params, p.window)
	if err != nil {
		return h.fail(c, "report", err)
	}
	return xhttp.SuccessResponse(c, res)
}

type historyQuery struct {
	params usecase.HistoryForecastParams
	window int
}

func (h *ForecastEchoHandler) historyParams(c echo.Context) (*historyQuery, *xhttp.AppError, interface{}) {
	req := &models.HistoryForecastRequest{}
	if verr := xhttp.ReadAndValidateQuery(c, req); verr != nil {
		return nil, nil, verr
	}
	from, to, appErr := parseRange(req.Start, req.End)
	if appErr != nil {
		return nil, appErr, nil
	}
	return &historyQuery{
		params: usecase.HistoryForecastParams{
			Asset:     req.Asset,
			From:      from,
			To:        to,
			Interval:  time.Duration(req.TimeInterval) * time.Second,
			Intervals: req.Intervals,
		},
		window: req.Window,
	}, nil, nil
}

// Train starts a training run, queued when a scheduler is configured.
func (h *ForecastEchoHandler) Train(c echo.Context) error {
	req := &models.TrainRequest{}
	if verr := xhttp.ReadAndValidateQuery(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if h.scheduler != nil {
		job, err := h.scheduler.Schedule(c.Request().Context(), req.Asset)
		if err != nil {
			return h.fail(c, "train", err)
		}
		return xhttp.AcceptedResponse(c, map[string]interface{}{"job_id": job.ID, "queued": true})
	}

	job := models.TrainJob{ID: uuid.NewString(), Asset: req.Asset, RequestedAt: time.Now().UTC()}
	if err := h.uc.TrainAsync(job); err != nil {
		return h.fail(c, "train", err)
	}
	return xhttp.AcceptedResponse(c, map[string]interface{}{"job_id": job.ID, "queued": false})
}

// Reload re-reads the model artifact from disk.
func (h *ForecastEchoHandler) Reload(c echo.Context) error {
	info, err := h.uc.Reload(c.Request().Context())
	if err != nil {
		return h.fail(c, "reload", err)
	}
	return xhttp.SuccessResponse(c, info)
}

// Model describes the loaded artifact.
func (h *ForecastEchoHandler) Model(c echo.Context) error {
	info, err := h.uc.ModelInfo()
	if err != nil {
		return h.fail(c, "model", err)
	}
	return xhttp.SuccessResponse(c, info)
}

// Health reports dependency status. Any failing check turns the response
// into a 503.
func (h *ForecastEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	res := map[string]string{"model": "ok"}
	if !h.uc.Ready() {
		res["model"] = "not loaded"
		status = http.StatusServiceUnavailable
	}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			res[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		res[name] = "ok"
	}
	return xhttp.DataResponse(c, status, res)
}

func (h *ForecastEchoHandler) fail(c echo.Context, route string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(route+" failed", xlogger.Error(err))
	} else {
		h.logger.Debug(route+" rejected", xlogger.String("code", appErr.Code), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

// toAppError maps domain errors onto HTTP errors.
func toAppError(err error) *xhttp.AppError {
	var (
		appErr  *xhttp.AppError
		invalid *models.InvalidInputError
		model   *models.ModelUnavailableError
		source  *models.DataSourceError
	)
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &invalid):
		e := xhttp.NewAppError("ERR_INVALID_INPUT", "", invalid.Error(), http.StatusBadRequest).WithError(err)
		if len(invalid.Missing) > 0 {
			e.WithParam("missing", invalid.Missing)
		}
		return e
	case errors.As(err, &model):
		return xhttp.ServiceUnavailableError("ERR_MODEL_UNAVAILABLE", "model artifact is not available: "+model.Path).
			WithParam("artifact", model.Path).
			WithError(err)
	case errors.As(err, &source):
		e := xhttp.BadGatewayError("ERR_DATA_SOURCE", source.Error()).WithError(err)
		if len(source.Missing) > 0 {
			e.WithParam("missing", source.Missing)
		}
		return e
	case errors.Is(err, models.ErrTrainingInProgress):
		return xhttp.ConflictError("ERR_TRAINING_IN_PROGRESS", err.Error()).WithError(err)
	case errors.Is(err, models.ErrNoRecords):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	default:
		return xhttp.InternalError("Something went wrong").WithError(err)
	}
}

func parseRange(start, end string) (time.Time, time.Time, *xhttp.AppError) {
	var from, to time.Time
	if start != "" {
		t, err := util.ParseTimestamp(start)
		if err != nil {
			return from, to, xhttp.BadRequestErrorf("start: %v", err).WithParam("field", "start")
		}
		from = t
	}
	if end != "" {
		t, err := util.ParseTimestamp(end)
		if err != nil {
			return from, to, xhttp.BadRequestErrorf("end: %v", err).WithParam("field", "end")
		}
		to = t
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return from, to, xhttp.BadRequestError("end is before start")
	}
	return from, to, nil
}
