package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type horizonQuery struct {
	Interval int64 `query:"interval" default:"60" validate:"gte=1"`
	Alias    int64 `query:"interval_length"`
	Steps    int   `query:"steps" default:"5" validate:"gte=1,lte=10"`
}

func (q *horizonQuery) Normalize() {
	if q.Interval == 0 {
		q.Interval = q.Alias
	}
}

func newContext(method, target, body string) echo.Context {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return echo.New().NewContext(req, httptest.NewRecorder())
}

func TestReadAndValidateQuery(t *testing.T) {
	var q horizonQuery
	require.Nil(t, ReadAndValidateQuery(newContext(http.MethodPost, "/?interval_length=300", `[]`), &q))
	assert.Equal(t, int64(300), q.Interval)
	assert.Equal(t, 5, q.Steps)

	var bad horizonQuery
	errs := ReadAndValidateQuery(newContext(http.MethodPost, "/?steps=50", `[]`), &bad)
	require.NotNil(t, errs)
	list, ok := errs.([]ValidationError)
	require.True(t, ok)
	assert.Equal(t, "ERR_LTE", list[0].Code)
	assert.Equal(t, "steps", list[0].Field)
}

func TestReadJSONBody(t *testing.T) {
	var rows []map[string]interface{}
	require.Nil(t, ReadJSONBody(newContext(http.MethodPost, "/", `[{"a":1},{"a":2}]`), &rows))
	assert.Len(t, rows, 2)

	errs := ReadJSONBody(newContext(http.MethodPost, "/", ``), &rows)
	assert.Equal(t, "ERR_REQUIRED", errs.([]ValidationError)[0].Code)

	errs = ReadJSONBody(newContext(http.MethodPost, "/", `{`), &rows)
	assert.Equal(t, "ERR_INVALID_JSON", errs.([]ValidationError)[0].Code)
}

func TestAppErrorResponseUsesStatus(t *testing.T) {
	c := newContext(http.MethodGet, "/", "")
	require.NoError(t, AppErrorResponse(c, ServiceUnavailableError("ERR_MODEL_UNAVAILABLE", "no model")))
	rec := c.Response().Writer.(*httptest.ResponseRecorder)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_MODEL_UNAVAILABLE")
}
