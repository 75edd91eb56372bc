// Package pagination implements the two listing strategies of the gateway: eager slicing of a
// fully materialized collection, and forwarding of one backend page with its cursor markers.
package pagination

import (
	"math"
	"strings"

	"github.com/samber/lo"

	"github.com/memohai/chatgate/internal/apperr"
)

// Default page arguments applied when the caller omits them.
const (
	DefaultPageSize   = 10
	DefaultPageNumber = 1
)

// Request is a 1-indexed page request.
type Request struct {
	Number int `json:"pageNumber" query:"pageNumber"`
	Size   int `json:"pageSize" query:"pageSize"`
}

// DefaultRequest returns {pageSize: 10, pageNumber: 1}.
func DefaultRequest() Request {
	return Request{Number: DefaultPageNumber, Size: DefaultPageSize}
}

// Validate fails fast on a non-positive page size or page number.
func (r Request) Validate() error {
	if r.Size <= 0 {
		return apperr.Validation("pageSize", "must be greater than zero")
	}
	if r.Number < 1 {
		return apperr.Validation("pageNumber", "must be at least 1")
	}
	return nil
}

// BackendPage converts the 1-indexed page number to the backend's 0-indexed page parameter.
func (r Request) BackendPage() int {
	return r.Number - 1
}

// Offset is the index of the first item of the page. It saturates at math.MaxInt for
// page numbers far past any collection. req must be valid.
func (r Request) Offset() int {
	if r.Number-1 > math.MaxInt/r.Size {
		return math.MaxInt
	}
	return (r.Number - 1) * r.Size
}

// Page is one page of a listing. TotalPages and TotalCount are only set by eager slicing,
// HasPrevious only by cursor forwarding.
type Page[T any] struct {
	Items       []T   `json:"data"`
	HasNext     bool  `json:"hasNext"`
	HasPrevious *bool `json:"hasPrevious,omitempty"`
	TotalPages  *int  `json:"pageCount,omitempty"`
	TotalCount  *int  `json:"count,omitempty"`
}

// Slice cuts one page out of a fully materialized collection.
func Slice[T any](items []T, req Request) (Page[T], error) {
	if err := req.Validate(); err != nil {
		return Page[T]{}, err
	}
	return Counted(window(items, req), len(items), req), nil
}

// Counted builds an eager page from items already limited to the requested page, given the
// collection's total count. Stores that slice server-side use it after validating req.
func Counted[T any](pageItems []T, total int, req Request) Page[T] {
	if pageItems == nil {
		pageItems = []T{}
	}
	pages := 0
	if req.Size > 0 {
		pages = total / req.Size
		if total%req.Size != 0 {
			pages++
		}
	}
	return Page[T]{
		Items:      pageItems,
		HasNext:    req.Number < pages,
		TotalPages: lo.ToPtr(pages),
		TotalCount: lo.ToPtr(total),
	}
}

func window[T any](items []T, req Request) []T {
	start := req.Offset()
	if start >= len(items) {
		return []T{}
	}
	return items[start : start+min(req.Size, len(items)-start)]
}

// Forward wraps one backend page, copying the adjacency markers verbatim.
func Forward[T any](items []T, prevID, nextID string) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:       items,
		HasNext:     nextID != "",
		HasPrevious: lo.ToPtr(prevID != ""),
	}
}

// Map converts the items of a page, keeping its markers.
func Map[T, U any](p Page[T], fn func(T) U) Page[U] {
	return Page[U]{
		Items:       lo.Map(p.Items, func(item T, _ int) U { return fn(item) }),
		HasNext:     p.HasNext,
		HasPrevious: p.HasPrevious,
		TotalPages:  p.TotalPages,
		TotalCount:  p.TotalCount,
	}
}

// Filter keeps items whose display name is set and whose name contains none of the excluded
// substrings (case-insensitive).
func Filter[T any](items []T, exclude []string, name, displayName func(T) string) []T {
	needles := lo.FilterMap(exclude, func(s string, _ int) (string, bool) {
		s = strings.ToLower(strings.TrimSpace(s))
		return s, s != ""
	})
	return lo.Filter(items, func(item T, _ int) bool {
		if displayName(item) == "" {
			return false
		}
		lower := strings.ToLower(name(item))
		return !lo.SomeBy(needles, func(n string) bool { return strings.Contains(lower, n) })
	})
}
