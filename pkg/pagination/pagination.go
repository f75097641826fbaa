// Package pagination implements page-number pagination with absolute
// next/previous links.
package pagination

import (
	"net/http"
	"net/url"
	"strconv"

	"library-api/pkg/apierror"
)

const PageParam = "page"

type Page[T any] struct {
	Count    int64   `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

type Request struct {
	Number int
	Size   int
}

// Parse reads the page number from the query. A missing page means 1.
func Parse(q url.Values, size int) (Request, error) {
	req := Request{Number: 1, Size: size}
	raw := q.Get(PageParam)
	if raw == "" || raw == "last" {
		if raw == "last" {
			req.Number = -1
		}
		return req, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return req, invalidPage()
	}
	req.Number = n
	return req, nil
}

// Resolve validates the request against the total count. Page 1 is valid
// even when there are no rows.
func (r Request) Resolve(count int64) (Request, error) {
	pages := r.pages(count)
	if r.Number == -1 {
		r.Number = pages
	}
	if r.Number > pages {
		return r, invalidPage()
	}
	return r, nil
}

func (r Request) Offset() int {
	return (r.Number - 1) * r.Size
}

func (r Request) pages(count int64) int {
	if count == 0 {
		return 1
	}
	return int((count + int64(r.Size) - 1) / int64(r.Size))
}

// New assembles the response body. base is the absolute URL of the current
// request; its other query parameters are kept in the links.
func New[T any](base *url.URL, r Request, count int64, results []T) Page[T] {
	if results == nil {
		results = []T{}
	}
	page := Page[T]{Count: count, Results: results}
	if r.Number < r.pages(count) {
		next := link(base, r.Number+1)
		page.Next = &next
	}
	if r.Number > 1 {
		prev := link(base, r.Number-1)
		page.Previous = &prev
	}
	return page
}

func link(base *url.URL, number int) string {
	u := *base
	q := u.Query()
	if number == 1 {
		q.Del(PageParam)
	} else {
		q.Set(PageParam, strconv.Itoa(number))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// AbsoluteURL rebuilds the request URL with scheme and host.
func AbsoluteURL(r *http.Request) *url.URL {
	u := *r.URL
	u.Host = r.Host
	u.Scheme = "http"
	if r.TLS != nil {
		u.Scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		u.Scheme = proto
	}
	return &u
}

func invalidPage() error {
	return apierror.New(http.StatusNotFound, "Invalid page.")
}
