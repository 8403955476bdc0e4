package handler

import (
	"net/http"
	"strconv"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type page struct {
	Limit  int
	Offset int
}

// parsePage reads limit with either offset or a 1-based page number.
// Out-of-range values fall back to the defaults.
func parsePage(r *http.Request) page {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}

	offset, _ := strconv.Atoi(q.Get("offset"))
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 && q.Get("offset") == "" {
		offset = (n - 1) * limit
	}
	if offset < 0 {
		offset = 0
	}

	return page{Limit: limit, Offset: offset}
}
