package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/edurise/core/mirror"
)

var reservedParams = map[string]bool{"wait": true}

// bindFilter turns the query string (?class_id=c1&section=A) into a cache filter.
// Only the first value of a repeated param is kept.
func bindFilter(ctx echo.Context) mirror.Filter {
	data := ctx.QueryParams()
	filter := make(mirror.Filter, len(data)+1)
	for col, vals := range data {
		if reservedParams[col] || len(vals) == 0 {
			continue
		}
		filter[col] = vals[0]
	}
	return filter
}
