package remote

import (
	"context"
	"encoding/json"
	"net/url"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"

	"github.com/goliatone/go-garage-sync/cache"
	"github.com/goliatone/go-garage-sync/listsync"
)

// Resource is the Lister and Mutator of one REST collection.
type Resource struct {
	client *Client
	path   string
}

var (
	_ listsync.Lister  = (*Resource)(nil)
	_ listsync.Mutator = (*Resource)(nil)
)

// Path returns the collection path.
func (r *Resource) Path() string { return r.path }

// List fetches one page. Query fields map to page, limit, search, from, to,
// status, serviceIds, assigneeId, sortBy and sortOrder; Extra entries are
// sent as is.
func (r *Resource) List(ctx context.Context, q cache.QueryState) (listsync.ListResponse, error) {
	res, err := r.client.do(ctx, fasthttp.MethodGet, r.path, func(args *fasthttp.Args) {
		encodeQuery(args, q)
	}, nil)
	if err != nil {
		return listsync.ListResponse{}, err
	}
	if !res.ok {
		return listsync.ListResponse{OK: false, Error: res.message}, nil
	}

	items := firstExisting(res.body, "data.items", "items", "data")
	if !items.IsArray() {
		items = gjson.Result{}
	}
	raws := make([]json.RawMessage, 0, len(items.Array()))
	items.ForEach(func(_, v gjson.Result) bool {
		raws = append(raws, json.RawMessage(v.Raw))
		return true
	})

	var page listsync.Pagination
	if p := firstExisting(res.body, "pagination", "data.pagination", "meta.pagination", "meta"); p.IsObject() {
		if err := json.Unmarshal([]byte(p.Raw), &page); err != nil {
			return listsync.ListResponse{}, err
		}
	}

	return listsync.ListResponse{OK: true, Items: raws, Pagination: page}, nil
}

// Create posts payload to the collection.
func (r *Resource) Create(ctx context.Context, payload any) (listsync.MutationResponse, error) {
	return r.mutate(ctx, fasthttp.MethodPost, r.path, payload)
}

// Update puts patch to the item.
func (r *Resource) Update(ctx context.Context, id string, patch any) (listsync.MutationResponse, error) {
	return r.mutate(ctx, fasthttp.MethodPut, r.itemPath(id), patch)
}

// SetStatus patches the status of the item.
func (r *Resource) SetStatus(ctx context.Context, id, status string) (listsync.MutationResponse, error) {
	return r.mutate(ctx, fasthttp.MethodPatch, r.itemPath(id)+"/status", map[string]string{"status": status})
}

func (r *Resource) itemPath(id string) string {
	return r.path + "/" + url.PathEscape(id)
}

func (r *Resource) mutate(ctx context.Context, method, path string, payload any) (listsync.MutationResponse, error) {
	res, err := r.client.do(ctx, method, path, nil, payload)
	if err != nil {
		return listsync.MutationResponse{}, err
	}
	if !res.ok {
		return listsync.MutationResponse{OK: false, Error: res.message}, nil
	}

	item := firstExisting(res.body, "data", "item")
	if !item.IsObject() {
		item = res.body
	}
	return listsync.MutationResponse{OK: true, Item: json.RawMessage(item.Raw)}, nil
}

func encodeQuery(args *fasthttp.Args, q cache.QueryState) {
	set := func(key, value string) {
		if value != "" {
			args.Set(key, value)
		}
	}

	if q.Page > 0 {
		args.SetUint("page", q.Page)
	}
	if q.Limit > 0 {
		args.SetUint("limit", q.Limit)
	}
	set("search", q.Search)
	set("from", q.From)
	set("to", q.To)
	set("status", q.Status)
	set("serviceIds", strings.Join(q.ServiceIDs, ","))
	set("assigneeId", q.AssigneeID)
	set("sortBy", q.SortField)
	set("sortOrder", q.SortDir)

	keys := make([]string, 0, len(q.Extra))
	for k := range q.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		set(k, q.Extra[k])
	}
}
