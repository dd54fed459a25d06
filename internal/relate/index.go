// Package relate records which organization names refer to the same employer.
package relate

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/placement-monitor/internal/model"
	"github.com/sells-group/placement-monitor/internal/normalize"
)

// ErrGenericName is returned when an edge endpoint is made only of stopwords.
var ErrGenericName = eris.New("relate: name is too generic to relate")

// ErrMissingName is returned when an edge endpoint normalizes to nothing.
var ErrMissingName = eris.New("relate: parent and alias are required")

// Result is the outcome of a relatedness lookup.
type Result struct {
	Match  bool
	Reason string
}

// Groups lists aliases per normalized parent, split by edge origin.
type Groups struct {
	Manual         map[string][]string `json:"manual"`
	AutoDiscovered map[string][]string `json:"auto_discovered"`
}

type edge struct {
	model.RelatednessEdge
	parentKey string
	aliasKey  string
}

// Index is an in-memory set of relatedness edges. It is safe for concurrent use.
type Index struct {
	vocab *normalize.Vocab
	now   func() time.Time

	mu    sync.RWMutex
	edges []edge
	// byKey maps a normalized name to the positions of edges touching it.
	byKey map[string][]int
}

// NewIndex builds an index from previously persisted edges. Edges with a
// generic endpoint are skipped.
func NewIndex(vocab *normalize.Vocab, edges []model.RelatednessEdge) *Index {
	if vocab == nil {
		vocab = normalize.Default()
	}
	ix := &Index{vocab: vocab, now: time.Now, byKey: make(map[string][]int)}
	for _, e := range edges {
		_, _, _ = ix.add(e)
	}
	return ix
}

// Add registers parent→alias. It returns the stored edge and whether it was
// new. Adding an edge that already exists (either direction) is a no-op.
func (ix *Index) Add(parent, alias string, origin model.EdgeOrigin) (model.RelatednessEdge, bool, error) {
	return ix.add(model.RelatednessEdge{
		Parent:    strings.TrimSpace(parent),
		Alias:     strings.TrimSpace(alias),
		Origin:    origin,
		CreatedAt: ix.now().UTC(),
	})
}

func (ix *Index) add(e model.RelatednessEdge) (model.RelatednessEdge, bool, error) {
	pk, ak := ix.vocab.Organization(e.Parent), ix.vocab.Organization(e.Alias)
	if pk == "" || ak == "" {
		return e, false, ErrMissingName
	}
	if ix.vocab.IsGeneric(e.Parent) || ix.vocab.IsGeneric(e.Alias) {
		return e, false, eris.Wrapf(ErrGenericName, "relate: %q -> %q", e.Parent, e.Alias)
	}
	if pk == ak {
		return e, false, nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, i := range ix.byKey[pk] {
		existing := ix.edges[i]
		if (existing.parentKey == pk && existing.aliasKey == ak) || (existing.parentKey == ak && existing.aliasKey == pk) {
			return existing.RelatednessEdge, false, nil
		}
	}
	if e.Origin == "" {
		e.Origin = model.OriginManual
	}
	ix.edges = append(ix.edges, edge{RelatednessEdge: e, parentKey: pk, aliasKey: ak})
	pos := len(ix.edges) - 1
	ix.byKey[pk] = append(ix.byKey[pk], pos)
	ix.byKey[ak] = append(ix.byKey[ak], pos)
	return e, true, nil
}

// Related reports whether two organization names refer to the same employer,
// either because they normalize identically or because one edge links them.
func (ix *Index) Related(a, b string) Result {
	na, nb := ix.vocab.Organization(a), ix.vocab.Organization(b)
	if na == "" || nb == "" {
		return Result{Reason: "empty name"}
	}
	if ix.vocab.IsGeneric(a) || ix.vocab.IsGeneric(b) {
		return Result{Reason: "generic name"}
	}
	if na == nb {
		return Result{Match: true, Reason: "same normalized name"}
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	for _, i := range ix.byKey[na] {
		e := ix.edges[i]
		other := e.aliasKey
		if other == na {
			other = e.parentKey
		}
		if other == nb {
			return Result{Match: true, Reason: string(e.Origin) + " relationship: " + e.Parent + " / " + e.Alias}
		}
	}
	return Result{Reason: "no relationship"}
}

// Aliases returns the raw names one edge away from name.
func (ix *Index) Aliases(name string) []string {
	key := ix.vocab.Organization(name)
	if key == "" {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out []string
	for _, i := range ix.byKey[key] {
		e := ix.edges[i]
		if e.parentKey == key {
			out = append(out, e.Alias)
		} else {
			out = append(out, e.Parent)
		}
	}
	return out
}

// Edges returns a copy of every stored edge in insertion order.
func (ix *Index) Edges() []model.RelatednessEdge {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]model.RelatednessEdge, len(ix.edges))
	for i, e := range ix.edges {
		out[i] = e.RelatednessEdge
	}
	return out
}

// Grouped returns aliases keyed by normalized parent, split into manual and
// auto-discovered edges. Alias lists are sorted.
func (ix *Index) Grouped() Groups {
	g := Groups{Manual: map[string][]string{}, AutoDiscovered: map[string][]string{}}

	ix.mu.RLock()
	for _, e := range ix.edges {
		target := g.Manual
		if e.Origin == model.OriginAuto {
			target = g.AutoDiscovered
		}
		target[e.parentKey] = append(target[e.parentKey], e.Alias)
	}
	ix.mu.RUnlock()

	for _, m := range []map[string][]string{g.Manual, g.AutoDiscovered} {
		for k := range m {
			sort.Strings(m[k])
		}
	}
	return g
}
