package listsync

// PageMeta describes the page currently published. It is copied from the
// server's pagination block on every successful fetch and never inferred
// locally; mutations leave it untouched.
type PageMeta struct {
	Page        int  `json:"page"`
	TotalPages  int  `json:"totalPages"`
	TotalItems  int  `json:"totalItems"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

func pageFrom(p Pagination) PageMeta {
	return PageMeta{
		Page:        p.Page,
		TotalPages:  p.TotalPages,
		TotalItems:  p.Total,
		HasNextPage: p.HasNextPage,
		HasPrevPage: p.HasPrevPage,
	}
}

// Snapshot is the unit written to the store: one page of items and its meta.
type Snapshot struct {
	Items []Item   `json:"items"`
	Page  PageMeta `json:"page"`
}

func (s Snapshot) clone() Snapshot {
	return Snapshot{Items: append([]Item(nil), s.Items...), Page: s.Page}
}
