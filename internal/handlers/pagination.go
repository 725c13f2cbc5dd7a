package handlers

import (
	"strconv"
	"strings"
	"time"

	"storefront/internal/apperr"
)

const (
	defaultPage  = int64(1)
	defaultLimit = int64(20)
)

func parsePaginationParams(pageStr, limitStr string) (int64, int64, error) {
	page := defaultPage
	limit := defaultLimit

	if pageStr != "" {
		p, err := strconv.ParseInt(pageStr, 10, 64)
		if err != nil || p < 1 {
			return 0, 0, apperr.Validation("validation failed", "page must be a positive integer")
		}
		page = p
	}

	if limitStr != "" {
		l, err := strconv.ParseInt(limitStr, 10, 64)
		if err != nil || l < 1 {
			return 0, 0, apperr.Validation("validation failed", "limit must be a positive integer")
		}
		limit = l
	}

	return page, limit, nil
}

func parseFloatParam(raw, name string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return nil, apperr.Validation("validation failed", name+" is invalid")
	}
	return &v, nil
}

func parseBoolParam(raw, name string) (*bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperr.Validation("validation failed", name+" must be true or false")
	}
	return &v, nil
}

// parseDateParam accepts RFC 3339 timestamps or plain dates. A plain date
// used as an upper bound covers the whole day.
func parseDateParam(raw, name string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, apperr.Validation("validation failed", name+" must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
