// Package pagination parses page/limit query parameters and builds the
// metadata returned alongside list responses.
package pagination

import (
	"net/http"
	"strconv"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
	// MaxPage keeps (page-1)*limit far from int overflow.
	MaxPage = 1_000_000
)

type Params struct {
	Page  int
	Limit int
}

// Offset returns the SQL OFFSET for the page.
func (p Params) Offset() int {
	if p.Page <= 1 || p.Limit <= 0 {
		return 0
	}
	page := min(p.Page, MaxPage)
	return (page - 1) * min(p.Limit, MaxLimit)
}

// Normalize clamps out-of-range values to the defaults.
func (p Params) Normalize() Params {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	return p
}

// Meta mirrors the fields the gallery front end reads from list responses.
type Meta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int64 `json:"totalPages"`
}

func NewMeta(p Params, total int64) Meta {
	var pages int64
	if p.Limit > 0 {
		pages = (total + int64(p.Limit) - 1) / int64(p.Limit)
	}
	return Meta{Total: total, Page: p.Page, Limit: p.Limit, TotalPages: pages}
}

// FromRequest reads "page" and "limit"; invalid values fall back to defaults.
func FromRequest(r *http.Request) Params {
	q := r.URL.Query()
	return Params{
		Page:  parseInt(q.Get("page"), DefaultPage),
		Limit: parseInt(q.Get("limit"), DefaultLimit),
	}.Normalize()
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
