package cache

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Sort directions understood by list resources.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// QueryState is the filter/sort/pagination snapshot a list view wants satisfied.
// It is passed by value; Normalize returns a canonical copy.
type QueryState struct {
	Search     string
	From       string
	To         string
	Status     string
	ServiceIDs []string
	AssigneeID string
	SortField  string
	SortDir    string
	Page       int
	Limit      int
	Extra      map[string]string
}

// QueryDefaults are the per-resource values used for fields a caller left empty.
type QueryDefaults struct {
	Limit     int
	SortField string
	SortDir   string
	Status    string
}

// Normalize returns the canonical form of q: trimmed strings, a lowercase sort
// direction, sorted unique service ids, empty collections collapsed to nil and
// zero fields filled from d.
func (q QueryState) Normalize(d QueryDefaults) QueryState {
	out := QueryState{
		Search:     strings.TrimSpace(q.Search),
		From:       strings.TrimSpace(q.From),
		To:         strings.TrimSpace(q.To),
		Status:     strings.TrimSpace(q.Status),
		AssigneeID: strings.TrimSpace(q.AssigneeID),
		SortField:  strings.TrimSpace(q.SortField),
		SortDir:    strings.ToLower(strings.TrimSpace(q.SortDir)),
		Page:       q.Page,
		Limit:      q.Limit,
	}

	if out.Status == "" {
		out.Status = d.Status
	}
	if out.SortField == "" {
		out.SortField = d.SortField
	}
	if out.SortDir == "" {
		out.SortDir = strings.ToLower(d.SortDir)
	}
	if out.SortDir != "" && out.SortDir != SortAsc && out.SortDir != SortDesc {
		out.SortDir = SortDesc
	}
	if out.Page < 1 {
		out.Page = 1
	}
	if out.Limit < 1 {
		out.Limit = d.Limit
	}

	if len(q.ServiceIDs) > 0 {
		seen := make(map[string]struct{}, len(q.ServiceIDs))
		ids := make([]string, 0, len(q.ServiceIDs))
		for _, id := range q.ServiceIDs {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		sort.Strings(ids)
		if len(ids) > 0 {
			out.ServiceIDs = ids
		}
	}

	for k, v := range q.Extra {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]string, len(q.Extra))
		}
		out.Extra[k] = v
	}

	return out
}

// Offset is the zero based index of the first row of the requested page.
func (q QueryState) Offset() int {
	if q.Page < 1 || q.Limit < 1 {
		return 0
	}
	return (q.Page - 1) * q.Limit
}

// Fingerprint is the cache key derived from a normalized QueryState.
type Fingerprint struct {
	Namespace string
	Canonical string
	Sum       uint64
}

// String renders the fingerprint as "namespace::digest"; it is the store key.
func (f Fingerprint) String() string {
	return f.Namespace + KeySeparator + fmt.Sprintf("%016x", f.Sum)
}

// Prefix returns the key prefix shared by every fingerprint in the namespace.
func (f Fingerprint) Prefix() string {
	return NamespacePrefix(f.Namespace)
}

// NamespacePrefix returns the key prefix for entries of a namespace.
func NamespacePrefix(namespace string) string {
	return namespace + KeySeparator
}

// FingerprintBuilder derives fingerprints from query states.
type FingerprintBuilder struct {
	serializer KeySerializer
}

// NewFingerprintBuilder returns a builder using serializer, or the default
// canonical serializer when serializer is nil.
func NewFingerprintBuilder(serializer KeySerializer) *FingerprintBuilder {
	if serializer == nil {
		serializer = NewDefaultKeySerializer()
	}
	return &FingerprintBuilder{serializer: serializer}
}

// Build normalizes q with d and returns its fingerprint. It never fails.
func (b *FingerprintBuilder) Build(namespace string, q QueryState, d QueryDefaults) Fingerprint {
	canonical := b.serializer.SerializeKey(namespace, q.Normalize(d))
	return Fingerprint{
		Namespace: namespace,
		Canonical: canonical,
		Sum:       xxhash.Sum64String(canonical),
	}
}
