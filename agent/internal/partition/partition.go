// Package partition maps time-slice keys to destination paths.
//
// A path pattern such as "/logs/%Y/%m/%d/app.log" implies the granularity of
// its time slices: the finest placeholder present wins (%S, then %M, then %H,
// else one slice per day). Keys are the slice start rendered with that
// granularity ("20140101", "2014010113", ...), so they sort lexically in time
// order.
package partition

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"
)

// ErrUnrootedPath is returned for path patterns that do not start with "/".
var ErrUnrootedPath = errors.New("partition: path must start with '/'")

type granularity struct {
	placeholder string // "" matches any pattern
	sliceFormat string // strftime form, as documented for users
	layout      string // equivalent Go layout used to parse keys
}

// granularities is ordered finest first.
var granularities = []granularity{
	{"%S", "%Y%m%d%H%M%S", "20060102150405"},
	{"%M", "%Y%m%d%H%M", "200601021504"},
	{"%H", "%Y%m%d%H", "2006010215"},
	{"", "%Y%m%d", "20060102"},
}

func granularityOf(pattern string) granularity {
	for _, g := range granularities {
		if g.placeholder == "" || strings.Contains(pattern, g.placeholder) {
			return g
		}
	}
	return granularities[len(granularities)-1]
}

// SliceFormat returns the strftime format of the partition keys implied by
// pattern.
func SliceFormat(pattern string) string {
	return granularityOf(pattern).sliceFormat
}

// Key returns the UTC partition key of the slice containing t for pattern.
func Key(t time.Time, pattern string) string {
	return t.UTC().Format(granularityOf(pattern).layout)
}

// Router resolves partition keys against one validated path pattern.
// A Router is immutable and safe for concurrent use.
type Router struct {
	pattern string
	path    *strftime.Strftime
	gran    granularity
	loc     *time.Location
}

// NewRouter validates pattern and returns a Router for it. Keys produced by
// Router.Key are computed in loc; nil means UTC.
func NewRouter(pattern string, loc *time.Location) (*Router, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("%w, but %q", ErrUnrootedPath, pattern)
	}
	p, err := strftime.New(pattern)
	if err != nil {
		return nil, fmt.Errorf("partition: invalid path pattern %q: %w", pattern, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Router{pattern: pattern, path: p, gran: granularityOf(pattern), loc: loc}, nil
}

// Pattern returns the path pattern.
func (r *Router) Pattern() string { return r.pattern }

// SliceFormat returns the strftime format of this router's keys.
func (r *Router) SliceFormat() string { return r.gran.sliceFormat }

// Key returns the partition key of the slice containing t.
func (r *Router) Key(t time.Time) string {
	return t.In(r.loc).Format(r.gran.layout)
}

// Resolve parses key at the router's granularity and renders the path
// pattern with the parsed instant. The same key always yields the same path.
func (r *Router) Resolve(key string) (string, error) {
	// Keys carry wall-clock fields only; parsing and rendering in UTC keeps
	// those fields intact whatever zone produced the key.
	t, err := time.ParseInLocation(r.gran.layout, key, time.UTC)
	if err != nil {
		return "", fmt.Errorf("partition: key %q does not match %s: %w", key, r.gran.sliceFormat, err)
	}
	return r.path.FormatString(t), nil
}

// Resolve is a one-shot NewRouter(pattern, nil).Resolve(key).
func Resolve(key, pattern string) (string, error) {
	r, err := NewRouter(pattern, nil)
	if err != nil {
		return "", err
	}
	return r.Resolve(key)
}
