package pagination

import (
	"net/url"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if params.Page != 1 || params.Limit != DefaultLimit {
		t.Fatalf("unexpected defaults %+v", params)
	}
	if params.Offset() != 0 {
		t.Fatalf("expected zero offset, got %d", params.Offset())
	}
}

func TestParseExplicitValues(t *testing.T) {
	values := url.Values{"page": []string{"3"}, "limit": []string{"10"}}
	params, err := Parse(values, Options{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if params.Page != 3 || params.Limit != 10 {
		t.Fatalf("unexpected params %+v", params)
	}
	if params.Offset() != 20 {
		t.Fatalf("expected offset 20, got %d", params.Offset())
	}
}

func TestParseClampsLimit(t *testing.T) {
	values := url.Values{"limit": []string{"5000"}}
	params, err := Parse(values, Options{MaxLimit: 50})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if params.Limit != 50 {
		t.Fatalf("expected clamped limit 50, got %d", params.Limit)
	}
}

func TestParseRejectsInvalidValues(t *testing.T) {
	cases := []url.Values{
		{"page": []string{"abc"}},
		{"page": []string{"0"}},
		{"page": []string{"-2"}},
		{"limit": []string{"abc"}},
		{"limit": []string{"0"}},
	}
	for _, values := range cases {
		if _, err := Parse(values, Options{}); err == nil {
			t.Fatalf("expected error for %v", values)
		}
	}
}

func TestTotalPages(t *testing.T) {
	cases := []struct {
		total int64
		limit int
		want  int
	}{
		{0, 20, 0},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{100, 10, 10},
	}
	for _, tc := range cases {
		if got := TotalPages(tc.total, tc.limit); got != tc.want {
			t.Fatalf("TotalPages(%d, %d) = %d, want %d", tc.total, tc.limit, got, tc.want)
		}
	}
}
