package models

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Node is a single node of a regression tree. Leaves have Left and Right set to -1.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Value     float64 `json:"v"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Gain      float64 `json:"g,omitempty"`
}

func (n Node) Leaf() bool {
	return n.Left < 0
}

// Tree is a binary regression tree stored as a flat node slice with the root first. Rows go left
// when the split feature is less than or equal to the threshold.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) predictRow(row []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf() {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Depth returns the number of splits on the longest root to leaf path.
func (t *Tree) Depth() int {
	if len(t.Nodes) == 0 {
		return 0
	}
	var depth func(i int) int
	depth = func(i int) int {
		n := t.Nodes[i]
		if n.Leaf() {
			return 0
		}
		return 1 + max(depth(n.Left), depth(n.Right))
	}
	return depth(0)
}

// Leaves returns the number of terminal nodes.
func (t *Tree) Leaves() int {
	var leaves int
	for _, n := range t.Nodes {
		if n.Leaf() {
			leaves++
		}
	}
	return leaves
}

// treeParams controls growth of a tree fit on first and second order gradient statistics. With a
// gradient of -y, unit hessians and no penalties the leaves are target means and the split gain is
// the reduction in squared error.
type treeParams struct {
	maxDepth       int
	minSamplesLeaf int
	minChildWeight float64
	maxFeatures    float64
	lambda         float64
	alpha          float64
}

type treeBuilder struct {
	x        *mat.Dense
	g, h     []float64
	p        treeParams
	features []int
	rng      *rand.Rand
	nodes    []Node
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

// growTree fits a tree on the given rows of x. rows may repeat for bootstrap samples and features
// restricts the columns considered for splits.
func growTree(x *mat.Dense, rows []int, g, h []float64, features []int, p treeParams, rng *rand.Rand) *Tree {
	b := &treeBuilder{
		x:        x,
		g:        g,
		h:        h,
		p:        p,
		features: features,
		rng:      rng,
	}
	b.grow(rows, 0)
	return &Tree{Nodes: b.nodes}
}

func (b *treeBuilder) leafValue(gs, hs float64) float64 {
	return -SoftThreshold(gs, b.p.alpha) / (hs + b.p.lambda)
}

func (b *treeBuilder) score(gs, hs float64) float64 {
	t := SoftThreshold(gs, b.p.alpha)
	return t * t / (hs + b.p.lambda)
}

func (b *treeBuilder) grow(rows []int, depth int) int {
	var gs, hs float64
	for _, r := range rows {
		gs += b.g[r]
		hs += b.h[r]
	}
	idx := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1, Left: -1, Right: -1, Value: b.leafValue(gs, hs)})

	if depth >= b.p.maxDepth || len(rows) < 2*b.p.minSamplesLeaf || hs < 2*b.p.minChildWeight {
		return idx
	}
	s, ok := b.bestSplit(rows, gs, hs)
	if !ok {
		return idx
	}

	var left, right []int
	for _, r := range rows {
		if b.x.At(r, s.feature) <= s.threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)

	n := &b.nodes[idx]
	n.Feature = s.feature
	n.Threshold = s.threshold
	n.Left = l
	n.Right = r
	n.Gain = s.gain
	return idx
}

func (b *treeBuilder) candidates() []int {
	if b.p.maxFeatures >= 1 || b.rng == nil {
		return b.features
	}
	k := max(int(b.p.maxFeatures*float64(len(b.features))), 1)
	perm := b.rng.Perm(len(b.features))[:k]
	out := make([]int, k)
	for i, p := range perm {
		out[i] = b.features[p]
	}
	return out
}

func (b *treeBuilder) bestSplit(rows []int, gs, hs float64) (split, bool) {
	parent := b.score(gs, hs)
	best := split{gain: 1e-12 * math.Max(math.Abs(parent), 1)}
	found := false

	sorted := make([]int, len(rows))
	for _, j := range b.candidates() {
		copy(sorted, rows)
		slices.SortStableFunc(sorted, func(a, c int) int {
			return cmp.Compare(b.x.At(a, j), b.x.At(c, j))
		})

		var gl, hl float64
		for i := 0; i < len(sorted)-1; i++ {
			r := sorted[i]
			gl += b.g[r]
			hl += b.h[r]

			nl := i + 1
			if nl < b.p.minSamplesLeaf {
				continue
			}
			if len(sorted)-nl < b.p.minSamplesLeaf {
				break
			}
			v, next := b.x.At(r, j), b.x.At(sorted[i+1], j)
			if v == next {
				continue
			}
			if hl < b.p.minChildWeight || hs-hl < b.p.minChildWeight {
				continue
			}
			gain := b.score(gl, hl) + b.score(gs-gl, hs-hl) - parent
			if gain > best.gain {
				best = split{feature: j, threshold: (v + next) / 2, gain: gain}
				found = true
			}
		}
	}
	return best, found
}

// treeRows evaluates fn over every row of x.
func treeRows(x mat.Matrix, fn func(row []float64) float64) []float64 {
	m, n := x.Dims()
	res := make([]float64, m)
	row := make([]float64, n)
	for i := 0; i < m; i++ {
		mat.Row(row, i, x)
		res[i] = fn(row)
	}
	return res
}

func indices(n int) []int {
	f := make([]int, n)
	for i := range f {
		f[i] = i
	}
	return f
}

// importances sums split gains per feature over all trees, normalized to sum to 1.
func importances(trees []*Tree, n int) []float64 {
	imp := make([]float64, n)
	var total float64
	for _, t := range trees {
		for _, node := range t.Nodes {
			if node.Leaf() {
				continue
			}
			imp[node.Feature] += node.Gain
			total += node.Gain
		}
	}
	if total > 0 {
		for i := range imp {
			imp[i] /= total
		}
	}
	return imp
}
