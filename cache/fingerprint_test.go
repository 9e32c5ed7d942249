package cache

import (
	"strings"
	"testing"
)

var bookingDefaults = QueryDefaults{Limit: 10, SortField: "createdAt", SortDir: "desc"}

func TestQueryState_Normalize(t *testing.T) {
	q := QueryState{
		Search:     "  AB12 ",
		SortDir:    "ASC",
		ServiceIDs: []string{"svc-2", " svc-1", "svc-2", ""},
		Extra:      map[string]string{"supplierId": "s1", "empty": " "},
	}

	got := q.Normalize(bookingDefaults)

	if got.Search != "AB12" {
		t.Errorf("expected trimmed search, got %q", got.Search)
	}
	if got.SortDir != SortAsc {
		t.Errorf("expected lowercase sort dir, got %q", got.SortDir)
	}
	if got.SortField != "createdAt" {
		t.Errorf("expected default sort field, got %q", got.SortField)
	}
	if got.Page != 1 || got.Limit != 10 {
		t.Errorf("expected page 1 limit 10, got page %d limit %d", got.Page, got.Limit)
	}
	if strings.Join(got.ServiceIDs, ",") != "svc-1,svc-2" {
		t.Errorf("expected sorted unique service ids, got %v", got.ServiceIDs)
	}
	if len(got.Extra) != 1 || got.Extra["supplierId"] != "s1" {
		t.Errorf("expected blank extra values dropped, got %v", got.Extra)
	}
	if len(q.ServiceIDs) != 4 {
		t.Error("normalize must not mutate the input")
	}
}

func TestQueryState_NormalizeUnknownSortDir(t *testing.T) {
	got := QueryState{SortDir: "sideways"}.Normalize(QueryDefaults{})
	if got.SortDir != SortDesc {
		t.Errorf("expected unknown direction to fall back to desc, got %q", got.SortDir)
	}
}

func TestQueryState_Offset(t *testing.T) {
	tests := []struct {
		q    QueryState
		want int
	}{
		{QueryState{Page: 1, Limit: 10}, 0},
		{QueryState{Page: 3, Limit: 25}, 50},
		{QueryState{Page: 0, Limit: 25}, 0},
		{QueryState{Page: 2, Limit: 0}, 0},
	}
	for _, tt := range tests {
		if got := tt.q.Offset(); got != tt.want {
			t.Errorf("Offset(%+v) = %d, want %d", tt.q, got, tt.want)
		}
	}
}

func TestFingerprintBuilder_Determinism(t *testing.T) {
	builder := NewFingerprintBuilder(nil)

	tests := []struct {
		name string
		a    QueryState
		b    QueryState
	}{
		{
			name: "omitted vs explicit defaults",
			a:    QueryState{Status: "pending"},
			b:    QueryState{Status: "pending", Page: 1, Limit: 10, SortField: "createdAt", SortDir: "desc"},
		},
		{
			name: "nil vs empty collections",
			a:    QueryState{ServiceIDs: nil, Extra: nil},
			b:    QueryState{ServiceIDs: []string{}, Extra: map[string]string{}},
		},
		{
			name: "service id order",
			a:    QueryState{ServiceIDs: []string{"b", "a"}},
			b:    QueryState{ServiceIDs: []string{"a", "b", "a"}},
		},
		{
			name: "whitespace and case",
			a:    QueryState{Search: "ford ", SortDir: "DESC"},
			b:    QueryState{Search: "ford", SortDir: "desc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fa := builder.Build("bookings", tt.a, bookingDefaults)
			fb := builder.Build("bookings", tt.b, bookingDefaults)
			if fa != fb {
				t.Errorf("expected equal fingerprints:\n%s\n%s", fa.Canonical, fb.Canonical)
			}
			if fa.String() != fb.String() {
				t.Errorf("expected equal keys %s and %s", fa, fb)
			}
		})
	}
}

func TestFingerprintBuilder_Distinguishes(t *testing.T) {
	builder := NewFingerprintBuilder(nil)

	base := builder.Build("bookings", QueryState{Status: "pending"}, bookingDefaults)

	others := []QueryState{
		{Status: "arrived"},
		{Status: "pending", Page: 2},
		{Status: "pending", AssigneeID: "u1"},
		{Status: "pending", Extra: map[string]string{"bay": "3"}},
	}
	for _, q := range others {
		if got := builder.Build("bookings", q, bookingDefaults); got.String() == base.String() {
			t.Errorf("expected %+v to produce a different key", q)
		}
	}

	if builder.Build("invoices", QueryState{Status: "pending"}, bookingDefaults).String() == base.String() {
		t.Error("expected namespaces to produce different keys")
	}

	pairs := []struct {
		name string
		a    QueryState
		b    QueryState
	}{
		{
			name: "search containing a field separator",
			a:    QueryState{Search: "x,From:y"},
			b:    QueryState{Search: "x", From: "y,From:"},
		},
		{
			name: "extra value containing a pair",
			a:    QueryState{Extra: map[string]string{"a": "1,b=2"}},
			b:    QueryState{Extra: map[string]string{"a": "1", "b": "2"}},
		},
		{
			name: "service id containing a comma",
			a:    QueryState{ServiceIDs: []string{"svc-1,svc-2"}},
			b:    QueryState{ServiceIDs: []string{"svc-1", "svc-2"}},
		},
	}
	for _, tt := range pairs {
		t.Run(tt.name, func(t *testing.T) {
			fa := builder.Build("bookings", tt.a, bookingDefaults)
			fb := builder.Build("bookings", tt.b, bookingDefaults)
			if fa.Canonical == fb.Canonical || fa.String() == fb.String() {
				t.Errorf("expected different keys:\n%s\n%s", fa.Canonical, fb.Canonical)
			}
		})
	}
}

func TestFingerprint_StringIsFixedWidth(t *testing.T) {
	fp := Fingerprint{Namespace: "bookings", Sum: 0xff3924627626464}
	if got, want := fp.String(), "bookings::0ff3924627626464"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	built := NewFingerprintBuilder(nil).Build("parts", QueryState{}, QueryDefaults{Limit: 20})
	digest := strings.TrimPrefix(built.String(), built.Prefix())
	if len(digest) != 16 {
		t.Errorf("expected 16 hex digits, got %q", digest)
	}
}

func TestFingerprint_Prefix(t *testing.T) {
	fp := NewFingerprintBuilder(nil).Build("parts", QueryState{}, QueryDefaults{Limit: 20})
	if !strings.HasPrefix(fp.String(), fp.Prefix()) {
		t.Errorf("key %q does not start with prefix %q", fp.String(), fp.Prefix())
	}
	if fp.Prefix() != "parts"+KeySeparator {
		t.Errorf("unexpected prefix %q", fp.Prefix())
	}
}
