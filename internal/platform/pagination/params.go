package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize is used when the client omits pageSize.
	DefaultPageSize = 20
	// MaxPageSize caps pageSize to keep queries bounded.
	MaxPageSize = 100
)

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid pageSize")
	ErrInvalidPageToken = errors.New("pagination: invalid pageToken")
)

// Params holds the page window requested by the client.
type Params struct {
	PageSize  int
	PageToken string
	Cursor    Cursor
}

// Parse reads pageSize and pageToken from query values. Oversized pages are clamped, not rejected.
func Parse(values url.Values) (Params, error) {
	size, err := ParsePageSize(values.Get("pageSize"))
	if err != nil {
		return Params{}, err
	}
	params := Params{PageSize: size}

	if raw := strings.TrimSpace(values.Get("pageToken")); raw != "" {
		cursor, err := DecodeToken(raw)
		if err != nil {
			return Params{}, err
		}
		params.PageToken = raw
		params.Cursor = cursor
	}
	return params, nil
}

// ParsePageSize validates a raw pageSize value.
func ParsePageSize(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultPageSize, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: must be an integer", ErrInvalidPageSize)
	}
	return ClampPageSize(value)
}

// ClampPageSize applies the default for zero and the upper bound for large values.
func ClampPageSize(size int) (int, error) {
	switch {
	case size < 0:
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidPageSize)
	case size == 0:
		return DefaultPageSize, nil
	case size > MaxPageSize:
		return MaxPageSize, nil
	default:
		return size, nil
	}
}
