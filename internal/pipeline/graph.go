package pipeline

import (
	"strings"
	"unicode"
)

// Graph layout constants: the merge prompt asks the model to cluster new
// nodes around this point so the UI can animate them distinctly.
const (
	graphCenterX = 350.0
	graphCenterY = 200.0
)

// Slugify produces the canonical kebab-case id for an entity label. The
// model is asked for kebab-case ids but is not trusted to keep them stable
// across calls; reconciliation keys on this slug instead.
func Slugify(label string) string {
	var b strings.Builder
	prevDash := true // suppress leading dash
	for _, r := range strings.ToLower(label) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// reconcileGraph validates the model's merged graph against the previous
// snapshot and repairs it deterministically:
//
//   - any node or edge carrying an unknown type fails validation (ok=false,
//     caller keeps the previous graph);
//   - a previously-known node the model renamed is mapped back via its label
//     slug, and edges touching the old id are rewired;
//   - a previously-known node the model dropped is re-inserted unchanged;
//   - previous edges missing from the output are re-inserted when both
//     endpoints still exist; edges with unknown endpoints are discarded.
//
// Dropped prior nodes are treated as a model error, not intended pruning.
func reconcileGraph(prev, next GraphState) (GraphState, bool) {
	for _, n := range next.Nodes {
		if !n.Type.Valid() {
			return GraphState{}, false
		}
	}
	for _, e := range next.Edges {
		if e.EdgeType == "" {
			continue // defaulted below
		}
		if !e.EdgeType.Valid() {
			return GraphState{}, false
		}
	}

	merged := GraphState{Nodes: []GraphNode{}, Edges: []GraphEdge{}}

	byID := make(map[string]int)     // node id -> index in merged.Nodes
	bySlug := make(map[string]int)   // label slug -> index in merged.Nodes
	remap := make(map[string]string) // stale id -> current id

	for _, n := range next.Nodes {
		if n.ID == "" {
			n.ID = Slugify(n.Label)
		}
		if _, dup := byID[n.ID]; dup {
			continue
		}
		byID[n.ID] = len(merged.Nodes)
		if s := Slugify(n.Label); s != "" {
			if _, seen := bySlug[s]; !seen {
				bySlug[s] = len(merged.Nodes)
			}
		}
		merged.Nodes = append(merged.Nodes, n)
	}

	for _, pn := range prev.Nodes {
		if _, ok := byID[pn.ID]; ok {
			continue
		}
		if idx, ok := bySlug[Slugify(pn.Label)]; ok {
			// model renamed the id; rewire references to the new one
			remap[pn.ID] = merged.Nodes[idx].ID
			continue
		}
		// model dropped the node entirely; re-insert it
		repaired := pn
		repaired.IsNew = false
		byID[repaired.ID] = len(merged.Nodes)
		if s := Slugify(repaired.Label); s != "" {
			if _, seen := bySlug[s]; !seen {
				bySlug[s] = len(merged.Nodes)
			}
		}
		merged.Nodes = append(merged.Nodes, repaired)
	}

	resolve := func(id string) (string, bool) {
		if mapped, ok := remap[id]; ok {
			id = mapped
		}
		_, ok := byID[id]
		return id, ok
	}

	seenEdges := make(map[string]bool) // source->target
	for _, e := range next.Edges {
		src, okS := resolve(e.Source)
		dst, okT := resolve(e.Target)
		if !okS || !okT {
			continue
		}
		e.Source, e.Target = src, dst
		if e.EdgeType == "" {
			e.EdgeType = EdgeNormal
		}
		key := src + "->" + dst
		if seenEdges[key] {
			continue
		}
		seenEdges[key] = true
		merged.Edges = append(merged.Edges, e)
	}
	for _, pe := range prev.Edges {
		src, okS := resolve(pe.Source)
		dst, okT := resolve(pe.Target)
		if !okS || !okT {
			continue
		}
		key := src + "->" + dst
		if seenEdges[key] {
			continue
		}
		seenEdges[key] = true
		pe.Source, pe.Target = src, dst
		pe.IsNew = false
		merged.Edges = append(merged.Edges, pe)
	}

	return merged, true
}

// graphIsSuperset reports whether every node label known to prev survives in
// next. Reconciled output always satisfies this; exposed for tests.
func graphIsSuperset(prev, next GraphState) bool {
	have := make(map[string]bool, len(next.Nodes))
	for _, n := range next.Nodes {
		have[Slugify(n.Label)] = true
	}
	for _, n := range prev.Nodes {
		if !have[Slugify(n.Label)] {
			return false
		}
	}
	return true
}
