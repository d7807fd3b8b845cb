package http

import (
	"time"

	"FinCast/pkg/util"

	"github.com/labstack/echo/v4"
)

// QueryTime reads a timestamp query parameter. Empty values yield def;
// unparsable values are reported.
func QueryTime(c echo.Context, name string, def time.Time) (time.Time, *AppError) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	t, err := util.ParseTimestamp(raw)
	if err != nil {
		return time.Time{}, BadRequestErrorf("%s: %v", name, err).WithParam("field", name)
	}
	return t, nil
}

// QueryIntDefault reads an integer query parameter or returns def.
func QueryIntDefault(c echo.Context, name string, def int) int {
	return util.ParseIntDefault(c.QueryParam(name), def)
}
