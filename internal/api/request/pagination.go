package request

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/edvin/tenant-backup/internal/platform"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// cursorPattern matches a job token, which is what list pages are keyed on.
var cursorPattern = regexp.MustCompile(`^` + platform.TokenPrefix + `[0-9a-z]{1,26}$`)

// Page is a requested slice of a tenant's job list. Cursor is the token of
// the last job on the previous page; empty means start from the newest.
type Page struct {
	Limit  int
	Cursor string
}

// ParsePagination reads limit and cursor from the query string. A missing
// limit means DefaultLimit and anything above MaxLimit is clamped.
func ParsePagination(r *http.Request) (Page, error) {
	q := r.URL.Query()
	p := Page{Limit: DefaultLimit, Cursor: q.Get("cursor")}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return Page{}, fmt.Errorf("limit must be a positive integer")
		}
		p.Limit = min(limit, MaxLimit)
	}

	if p.Cursor != "" && !cursorPattern.MatchString(p.Cursor) {
		return Page{}, fmt.Errorf("invalid cursor %q", p.Cursor)
	}
	return p, nil
}
