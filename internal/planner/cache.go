package planner

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/Yiling-J/theine-go"
	"github.com/cespare/xxhash/v2"

	"entitygraph/internal/schema"
)

// PlanCache keeps compiled plans keyed by request fingerprint.
type PlanCache struct {
	cache  *theine.Cache[uint64, *QueryPlan]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewPlanCache returns a cache holding at most size plans.
func NewPlanCache(size int64) (*PlanCache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("plan cache size must be positive, got %d", size)
	}
	built, err := theine.NewBuilder[uint64, *QueryPlan](size).Build()
	if err != nil {
		return nil, err
	}
	return &PlanCache{cache: built}, nil
}

// Get returns the plan stored for key.
func (c *PlanCache) Get(key uint64) (*QueryPlan, bool) {
	plan, ok := c.cache.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return plan, ok
}

// Set stores plan under key.
func (c *PlanCache) Set(key uint64, plan *QueryPlan) {
	c.cache.Set(key, plan, 1)
}

// Len returns the number of cached plans.
func (c *PlanCache) Len() int {
	return c.cache.Len()
}

// Stats returns the hit and miss counts since creation.
func (c *PlanCache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Close stops the cache's maintenance goroutines.
func (c *PlanCache) Close() {
	c.cache.Close()
}

// Fingerprint hashes everything in a request that affects its plan,
// including filter values, so equal fingerprints compile to equal SQL.
func Fingerprint(req *Request, opts schema.Options) uint64 {
	h := xxhash.New()
	w := func(format string, args ...any) {
		_, _ = fmt.Fprintf(h, format, args...)
	}
	w("entity=%s;single=%t;opts=%+v;", req.Entity.Name, req.Single, opts)
	writeWhere(w, req.Where)
	writePage(w, req.Page)
	writeOrder(w, req.OrderBy)
	if req.Distinct != nil {
		w("distinct=%t;", *req.Distinct)
	}
	for _, sel := range req.Select {
		w("select[%s]", sel.Alias)
		writeSelection(w, sel.Children)
	}
	w("totals=%q;pages=%q;", req.Totals, req.Pages)
	for _, agg := range req.Aggregates {
		w("agg[%s]counts=%+v;", agg.Alias, agg.Counts)
		for _, g := range agg.Groups {
			w("group[%s/%s/%s]counts=%+v;", g.Container, g.Alias, g.Association, g.Counts)
			for _, by := range g.By {
				w("by[%s/%s]", by.Alias, by.Field)
				if by.Order != nil {
					w("%s", *by.Order)
				}
			}
		}
	}
	return h.Sum64()
}

type writer func(format string, args ...any)

func writeSelection(w writer, nodes []*SelectionNode) {
	w("(")
	for _, n := range nodes {
		w("%s:%s;", n.Alias, n.Field)
		if n.Order != nil {
			w("order=%s;", *n.Order)
		}
		if n.Optional != nil {
			w("optional=%t;", *n.Optional)
		}
		writeWhere(w, n.Where)
		writePage(w, n.Page)
		writeOrder(w, n.OrderBy)
		if len(n.Children) > 0 {
			writeSelection(w, n.Children)
		}
	}
	w(")")
}

func writeWhere(w writer, node *WhereNode) {
	if node == nil {
		return
	}
	w("{%d:%q:%d:", node.Kind, node.Path, node.Op)
	writeValue(w, node.Value)
	for _, child := range node.Children {
		writeWhere(w, child)
	}
	w("}")
}

// writeValue prints values with their types so 1 and "1" differ.
func writeValue(w writer, v any) {
	switch val := v.(type) {
	case []any:
		w("[")
		for _, item := range val {
			writeValue(w, item)
			w(",")
		}
		w("]")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		w("<")
		for _, k := range keys {
			w("%q=", k)
			writeValue(w, val[k])
			w(",")
		}
		w(">")
	default:
		w("%T(%v)", val, val)
	}
}

func writePage(w writer, page *PageSpec) {
	if page != nil {
		w("page=%+v;", *page)
	}
}

func writeOrder(w writer, order []OrderSpec) {
	for _, o := range order {
		w("order=%s %s;", o.Field, o.Direction)
	}
}
