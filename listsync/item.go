package listsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// CanonicalIDField is the field every normalized record carries its id in.
const CanonicalIDField = "id"

// DefaultStatusField is where records keep their status unless configured otherwise.
const DefaultStatusField = "status"

var errInvalidRecord = errors.New("listsync: record is not a JSON object")

// Item is a server record with a normalized identifier and a display-only
// sequence number.
type Item struct {
	ID  string          `json:"id"`
	Seq int             `json:"seq"`
	Raw json.RawMessage `json:"raw"`
}

// Get reads a field of the underlying record using gjson path syntax.
func (i Item) Get(path string) gjson.Result {
	return gjson.GetBytes(i.Raw, path)
}

// Status returns the record status read from field, or from "status" when field is empty.
func (i Item) Status(field string) string {
	if field == "" {
		field = DefaultStatusField
	}
	return i.Get(field).String()
}

// Normalizer turns server-shaped records into Items.
type Normalizer struct {
	// IDAliases are gjson paths tried in order to find the record id.
	// Defaults to "id" then "_id".
	IDAliases []string
	// Defaults are written into records that lack the given path.
	Defaults map[string]any
}

func (n Normalizer) aliases() []string {
	if len(n.IDAliases) == 0 {
		return []string{CanonicalIDField, "_id"}
	}
	return n.IDAliases
}

// NormalizeOne resolves the id of raw, writes it to the canonical field and
// fills defaults. Records without any id get a content-derived synthetic id.
func (n Normalizer) NormalizeOne(raw json.RawMessage) (Item, error) {
	if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
		return Item{}, errInvalidRecord
	}

	doc := append([]byte(nil), raw...)

	id := ""
	for _, alias := range n.aliases() {
		if r := gjson.GetBytes(doc, alias); r.Exists() && strings.TrimSpace(r.String()) != "" {
			id = strings.TrimSpace(r.String())
			break
		}
	}
	if id == "" {
		id = "tmp-" + strconv.FormatUint(xxhash.Sum64(doc), 16)
	}

	var err error
	if gjson.GetBytes(doc, CanonicalIDField).String() != id {
		if doc, err = sjson.SetBytes(doc, CanonicalIDField, id); err != nil {
			return Item{}, fmt.Errorf("listsync: set canonical id: %w", err)
		}
	}

	for path, value := range n.Defaults {
		if gjson.GetBytes(doc, path).Exists() {
			continue
		}
		if doc, err = sjson.SetBytes(doc, path, value); err != nil {
			return Item{}, fmt.Errorf("listsync: fill default %s: %w", path, err)
		}
	}

	return Item{ID: id, Raw: doc}, nil
}

// Normalize converts a response page into Items numbered from offset+1.
// Invalid records and repeated ids are dropped; dropped reports how many.
func (n Normalizer) Normalize(raws []json.RawMessage, offset int) (items []Item, dropped int) {
	items = make([]Item, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))

	for _, raw := range raws {
		item, err := n.NormalizeOne(raw)
		if err != nil {
			dropped++
			continue
		}
		if _, dup := seen[item.ID]; dup {
			dropped++
			continue
		}
		seen[item.ID] = struct{}{}
		item.Seq = offset + len(items) + 1
		items = append(items, item)
	}

	return items, dropped
}
