package pagination

import (
	"errors"
	"net/url"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	params, err := Parse(url.Values{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.PageSize != DefaultPageSize {
		t.Fatalf("expected default page size, got %d", params.PageSize)
	}
	if !params.Cursor.IsZero() {
		t.Fatalf("expected zero cursor, got %+v", params.Cursor)
	}
}

func TestParse_ClampsAndRejectsPageSize(t *testing.T) {
	params, err := Parse(url.Values{"pageSize": {"500"}})
	if err != nil || params.PageSize != MaxPageSize {
		t.Fatalf("expected clamp to %d, got %d (%v)", MaxPageSize, params.PageSize, err)
	}
	for _, raw := range []string{"abc", "-1"} {
		if _, err := Parse(url.Values{"pageSize": {raw}}); !errors.Is(err, ErrInvalidPageSize) {
			t.Fatalf("pageSize %q: expected ErrInvalidPageSize, got %v", raw, err)
		}
	}
}

func TestParse_PageToken(t *testing.T) {
	cursor := Cursor{CreatedAt: time.Date(2025, 3, 1, 18, 30, 0, 0, time.UTC), ID: "ord_01J"}
	token, err := EncodeToken(cursor)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	params, err := Parse(url.Values{"pageToken": {token}, "pageSize": {"5"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.PageSize != 5 || params.PageToken != token {
		t.Fatalf("unexpected params %+v", params)
	}
	if params.Cursor.ID != cursor.ID || !params.Cursor.CreatedAt.Equal(cursor.CreatedAt) {
		t.Fatalf("cursor mismatch: %+v", params.Cursor)
	}
}

func TestDecodeToken_Invalid(t *testing.T) {
	for _, token := range []string{"%%%", "e30"} { // e30 is base64 for {}
		if _, err := DecodeToken(token); !errors.Is(err, ErrInvalidPageToken) {
			t.Fatalf("token %q: expected ErrInvalidPageToken, got %v", token, err)
		}
	}
	if token, _ := EncodeToken(Cursor{}); token != "" {
		t.Fatalf("expected empty token for zero cursor, got %q", token)
	}
}
