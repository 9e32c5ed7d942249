package listsync

import (
	"encoding/json"
	"strings"
	"testing"
)

func raws(literals ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(literals))
	for i, l := range literals {
		out[i] = json.RawMessage(l)
	}
	return out
}

func TestNormalizeOneResolvesAliases(t *testing.T) {
	tests := []struct {
		name    string
		n       Normalizer
		raw     string
		wantID  string
		wantRaw string
	}{
		{
			name:    "canonical id",
			raw:     `{"id":"b1"}`,
			wantID:  "b1",
			wantRaw: `{"id":"b1"}`,
		},
		{
			name:    "mongo style id",
			raw:     `{"_id":"b2","status":"pending"}`,
			wantID:  "b2",
			wantRaw: `{"_id":"b2","status":"pending","id":"b2"}`,
		},
		{
			name:    "numeric id",
			raw:     `{"id":42}`,
			wantID:  "42",
			wantRaw: `{"id":42}`,
		},
		{
			name:    "custom alias",
			n:       Normalizer{IDAliases: []string{"invoiceNo"}},
			raw:     `{"invoiceNo":"INV-7"}`,
			wantID:  "INV-7",
			wantRaw: `{"invoiceNo":"INV-7","id":"INV-7"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, err := tt.n.NormalizeOne(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if item.ID != tt.wantID {
				t.Errorf("expected id %q, got %q", tt.wantID, item.ID)
			}
			if string(item.Raw) != tt.wantRaw {
				t.Errorf("expected raw %s, got %s", tt.wantRaw, item.Raw)
			}
		})
	}
}

func TestNormalizeOneDoesNotMutateInput(t *testing.T) {
	raw := json.RawMessage(`{"_id":"b1"}`)
	if _, err := (Normalizer{}).NormalizeOne(raw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(raw) != `{"_id":"b1"}` {
		t.Errorf("input was modified: %s", raw)
	}
}

func TestNormalizeOneFillsDefaults(t *testing.T) {
	n := Normalizer{Defaults: map[string]any{"status": "pending", "notes": ""}}

	item, err := n.NormalizeOne(json.RawMessage(`{"id":"b1","status":"arrived"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := item.Status(""); got != "arrived" {
		t.Errorf("existing field overwritten, got %q", got)
	}
	if !item.Get("notes").Exists() {
		t.Errorf("expected notes default to be filled: %s", item.Raw)
	}
}

func TestNormalizeOneSyntheticID(t *testing.T) {
	n := Normalizer{}
	a, err := n.NormalizeOne(json.RawMessage(`{"name":"Oil filter"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := n.NormalizeOne(json.RawMessage(`{"name":"Oil filter"}`))
	c, _ := n.NormalizeOne(json.RawMessage(`{"name":"Air filter"}`))

	if !strings.HasPrefix(a.ID, "tmp-") {
		t.Errorf("expected synthetic id, got %q", a.ID)
	}
	if a.ID != b.ID {
		t.Errorf("synthetic id not stable: %q vs %q", a.ID, b.ID)
	}
	if a.ID == c.ID {
		t.Errorf("distinct records share synthetic id %q", a.ID)
	}
}

func TestNormalizeOneRejectsNonObjects(t *testing.T) {
	for _, raw := range []string{`[]`, `"b1"`, `{`, ``} {
		if _, err := (Normalizer{}).NormalizeOne(json.RawMessage(raw)); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestNormalizeNumbersAndDrops(t *testing.T) {
	items, dropped := Normalizer{}.Normalize(raws(
		`{"id":"b1"}`,
		`not json`,
		`{"id":"b2"}`,
		`{"_id":"b1"}`,
		`{"id":"b3"}`,
	), 20)

	if dropped != 2 {
		t.Errorf("expected 2 dropped, got %d", dropped)
	}
	wantIDs := []string{"b1", "b2", "b3"}
	if len(items) != len(wantIDs) {
		t.Fatalf("expected %d items, got %d", len(wantIDs), len(items))
	}
	for i, it := range items {
		if it.ID != wantIDs[i] {
			t.Errorf("item %d: expected id %q, got %q", i, wantIDs[i], it.ID)
		}
		if it.Seq != 21+i {
			t.Errorf("item %d: expected seq %d, got %d", i, 21+i, it.Seq)
		}
	}
}
