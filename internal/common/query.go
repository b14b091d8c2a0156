package common

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// PageParams is a validated page/limit pair taken from a list query.
type PageParams struct {
	Page  int
	Limit int
}

// Offset is the number of rows skipped before the page.
func (p PageParams) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Pagination is the block list endpoints return next to "data".
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
}

// ParsePage reads page and limit from values. Limit falls back to
// defaultLimit and is clamped to maxLimit when maxLimit is positive.
func ParsePage(values url.Values, defaultLimit, maxLimit int) (PageParams, error) {
	if defaultLimit < 1 {
		defaultLimit = 20
	}
	page, err := QueryInt(values, "page", 1, 1, math.MaxInt32)
	if err != nil {
		return PageParams{}, err
	}
	limit, err := QueryInt(values, "limit", defaultLimit, 1, math.MaxInt32)
	if err != nil {
		return PageParams{}, err
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return PageParams{Page: page, Limit: limit}, nil
}

// QueryInt parses the named query value within [min, max]. An absent value
// yields def; a malformed or out of range one is a 400 tagged with name.
func QueryInt(values url.Values, name string, def, min, max int) (int, error) {
	raw := strings.TrimSpace(values.Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || v > max {
		return 0, BadRequest(name, rangeMessage(name, min, max), err)
	}
	return v, nil
}

func rangeMessage(name string, min, max int) string {
	if min == 1 && max == math.MaxInt32 {
		return name + " must be a positive integer"
	}
	return fmt.Sprintf("%s must be between %d and %d", name, min, max)
}
