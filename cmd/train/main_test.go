package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"FinCast/internal/domain/models"
	xhttp "FinCast/pkg/http"
	applogger "FinCast/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func modelServer(reloaded, serving models.ModelInfo) *httptest.Server {
	e := echo.New()
	e.POST("/api/model/reload", func(c echo.Context) error { return xhttp.SuccessResponse(c, reloaded) })
	e.GET("/api/model", func(c echo.Context) error { return xhttp.SuccessResponse(c, serving) })
	return httptest.NewServer(e)
}

func TestNotifyServer(t *testing.T) {
	info := models.ModelInfo{Framing: "single", WindowSize: 5, TrainedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	srv := modelServer(info, info)
	defer srv.Close()

	require.NoError(t, notifyServer(context.Background(), srv.URL, applogger.Nop()))
}

func TestNotifyServerStaleModel(t *testing.T) {
	reloaded := models.ModelInfo{TrainedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
	serving := models.ModelInfo{TrainedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	srv := modelServer(reloaded, serving)
	defer srv.Close()

	err := notifyServer(context.Background(), srv.URL, applogger.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2024-01-01T00:00:00Z")
}

func TestNotifyServerReloadRejected(t *testing.T) {
	e := echo.New()
	e.POST("/api/model/reload", func(c echo.Context) error {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("ERR_MODEL_UNAVAILABLE", "model is not available"))
	})
	srv := httptest.NewServer(e)
	defer srv.Close()

	err := notifyServer(context.Background(), srv.URL, applogger.Nop())
	var rerr *xhttp.ResponseError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, http.StatusServiceUnavailable, rerr.Status)
}
