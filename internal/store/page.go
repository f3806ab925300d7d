package store

// SortOrder orders a page by price. SortNone keeps the store's default order.
type SortOrder string

const (
	SortNone SortOrder = ""
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
)

type PageRequest struct {
	Page  int
	Limit int
	Sort  SortOrder
}

// Normalized returns the request with defaults applied to non-positive values.
func (r PageRequest) Normalized() PageRequest {
	if r.Page < 1 {
		r.Page = DefaultPage
	}
	if r.Limit < 1 {
		r.Limit = DefaultLimit
	}
	return r
}

// Offset is the number of documents skipped before the page.
func (r PageRequest) Offset() int {
	return (r.Page - 1) * r.Limit
}

// Page is one slice of a paginated query plus navigation metadata.
type Page struct {
	Docs        []Product
	TotalDocs   int
	Limit       int
	Page        int
	TotalPages  int
	PrevPage    *int
	NextPage    *int
	HasPrevPage bool
	HasNextPage bool
}

// NewPage computes navigation metadata. There is always at least one page,
// and a page past the end has no next page.
func NewPage(docs []Product, totalDocs int, req PageRequest) *Page {
	req = req.Normalized()
	totalPages := (totalDocs + req.Limit - 1) / req.Limit
	if totalPages < 1 {
		totalPages = 1
	}
	if docs == nil {
		docs = []Product{}
	}
	p := &Page{
		Docs:       docs,
		TotalDocs:  totalDocs,
		Limit:      req.Limit,
		Page:       req.Page,
		TotalPages: totalPages,
	}
	if req.Page > 1 {
		prev := req.Page - 1
		p.PrevPage = &prev
		p.HasPrevPage = true
	}
	if req.Page < totalPages {
		next := req.Page + 1
		p.NextPage = &next
		p.HasNextPage = true
	}
	return p
}
