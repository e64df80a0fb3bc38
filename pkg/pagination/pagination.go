// Package pagination reads limit/offset query parameters and wraps listing
// results with totals and page links.
package pagination

import (
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Params struct {
	Limit  int
	Offset int
}

// FromContext reads ?limit= and ?offset=. Missing or unusable values fall
// back to DefaultLimit and 0; limit is capped at MaxLimit.
func FromContext(c echo.Context) Params {
	p := Params{Limit: DefaultLimit}
	if n, err := strconv.Atoi(c.QueryParam("limit")); err == nil && n > 0 {
		p.Limit = min(n, MaxLimit)
	}
	if n, err := strconv.Atoi(c.QueryParam("offset")); err == nil && n > 0 {
		p.Offset = n
	}
	return p
}

type Link struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

// Response is one page of a listing. Data is never null in JSON.
type Response[T any] struct {
	Data    []T    `json:"data"`
	Total   int    `json:"total"`
	Limit   int    `json:"limit"`
	Offset  int    `json:"offset"`
	HasMore bool   `json:"has_more"`
	Links   []Link `json:"links,omitempty"`
}

// NewPage builds the page for items out of total matches. Links keep the
// filter parameters of u.
func NewPage[T any](items []T, total int, p Params, u *url.URL) *Response[T] {
	if items == nil {
		items = []T{}
	}
	r := &Response[T]{
		Data:    items,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.Offset+p.Limit < total,
	}
	if u != nil {
		r.Links = p.links(u, total)
	}
	return r
}

func (p Params) links(u *url.URL, total int) []Link {
	links := []Link{{Relation: "self", URL: pageURL(u, p.Offset, p.Limit)}}
	if p.Offset+p.Limit < total {
		links = append(links, Link{Relation: "next", URL: pageURL(u, p.Offset+p.Limit, p.Limit)})
	}
	if p.Offset > 0 {
		links = append(links, Link{Relation: "previous", URL: pageURL(u, max(p.Offset-p.Limit, 0), p.Limit)})
	}
	return links
}

func pageURL(u *url.URL, offset, limit int) string {
	q := u.Query()
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))
	return u.Path + "?" + q.Encode()
}
