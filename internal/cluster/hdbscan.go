// Package cluster implements density-based clustering (HDBSCAN) over dense
// vectors. It satisfies ports.Clusterer.
package cluster

import (
	"context"
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-finder/internal/model"
	"github.com/sells-group/company-finder/internal/ports"
)

// maxLambda caps 1/distance for coincident points so stabilities stay finite.
const maxLambda = 1e9

var _ ports.Clusterer = (*HDBSCAN)(nil)

// HDBSCAN clusters vectors by building the mutual-reachability minimum
// spanning tree, condensing the single-linkage hierarchy by minimum cluster
// size, and selecting clusters by excess of mass. The root cluster is never
// selected, so a dataset that forms a single dense group comes back as noise.
type HDBSCAN struct {
	// MinSamples sets the core-distance neighbourhood. Zero means use the
	// minimum cluster size.
	MinSamples int
}

// New returns an HDBSCAN clusterer with library defaults.
func New() *HDBSCAN {
	return &HDBSCAN{}
}

// Cluster returns one label per vector; model.NoiseLabel marks noise.
func (h *HDBSCAN) Cluster(ctx context.Context, vectors [][]float32, minClusterSize int, metric ports.Metric) ([]int, error) {
	if metric != ports.Euclidean {
		return nil, eris.Errorf("cluster: unsupported metric %q", metric)
	}
	if minClusterSize < 2 {
		return nil, eris.Errorf("cluster: min cluster size must be >= 2, got %d", minClusterSize)
	}

	n := len(vectors)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = model.NoiseLabel
	}
	if n < 2 {
		return labels, nil
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, eris.Errorf("cluster: vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "cluster: canceled")
	}

	minSamples := h.MinSamples
	if minSamples <= 0 {
		minSamples = minClusterSize
	}

	dist := pairwise(vectors)
	core := coreDistances(dist, minSamples)
	edges := primMST(dist, core)
	tree := singleLinkage(n, edges)
	condensed := condense(tree, n, minClusterSize)
	selected := selectClusters(condensed)

	return assignLabels(condensed, selected, labels), nil
}

func pairwise(vectors [][]float32) [][]float64 {
	n := len(vectors)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var sum float64
			for k := range vectors[i] {
				d := float64(vectors[i][k]) - float64(vectors[j][k])
				sum += d * d
			}
			d := math.Sqrt(sum)
			dist[i][j] = d
			dist[j][i] = d
		}
	}
	return dist
}

// coreDistances returns, per point, the distance to its k-th nearest
// neighbour where the point itself counts as the first neighbour.
func coreDistances(dist [][]float64, minSamples int) []float64 {
	n := len(dist)
	core := make([]float64, n)
	if minSamples <= 1 {
		return core
	}
	others := make([]float64, 0, n-1)
	for i := 0; i < n; i++ {
		others = others[:0]
		for j := 0; j < n; j++ {
			if i != j {
				others = append(others, dist[i][j])
			}
		}
		sort.Float64s(others)
		k := minSamples - 2
		if k >= len(others) {
			k = len(others) - 1
		}
		core[i] = others[k]
	}
	return core
}

type edge struct {
	a, b   int
	weight float64
}

// primMST builds the minimum spanning tree of the mutual-reachability graph.
func primMST(dist [][]float64, core []float64) []edge {
	n := len(dist)
	inTree := make([]bool, n)
	best := make([]float64, n)
	from := make([]int, n)
	for i := range best {
		best[i] = math.Inf(1)
	}

	edges := make([]edge, 0, n-1)
	current := 0
	inTree[0] = true
	for len(edges) < n-1 {
		next, nextW := -1, math.Inf(1)
		for j := 0; j < n; j++ {
			if inTree[j] {
				continue
			}
			mr := math.Max(dist[current][j], math.Max(core[current], core[j]))
			if mr < best[j] {
				best[j] = mr
				from[j] = current
			}
			if best[j] < nextW {
				next, nextW = j, best[j]
			}
		}
		inTree[next] = true
		edges = append(edges, edge{a: from[next], b: next, weight: nextW})
		current = next
	}
	return edges
}

type linkNode struct {
	left, right int
	dist        float64
	size        int
}

// singleLinkage turns MST edges into a binary merge tree. Leaves are 0..n-1
// and merge nodes n..2n-2; the last node is the root.
func singleLinkage(n int, edges []edge) []linkNode {
	sorted := append([]edge(nil), edges...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].weight < sorted[j].weight })

	parent := make([]int, 2*n-1)
	size := make([]int, 2*n-1)
	for i := range parent {
		parent[i] = i
		if i < n {
			size[i] = 1
		}
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	tree := make([]linkNode, 0, n-1)
	next := n
	for _, e := range sorted {
		ra, rb := find(e.a), find(e.b)
		size[next] = size[ra] + size[rb]
		tree = append(tree, linkNode{left: ra, right: rb, dist: e.weight, size: size[next]})
		parent[ra] = next
		parent[rb] = next
		next++
	}
	return tree
}

type condensedEntry struct {
	parent    int
	child     int // cluster id when isCluster, else point index
	lambda    float64
	size      int
	isCluster bool
}

type condensedTree struct {
	entries  []condensedEntry
	clusters int // cluster ids are 0..clusters-1; 0 is the root
}

func lambdaOf(d float64) float64 {
	if d <= 0 {
		return maxLambda
	}
	return math.Min(1/d, maxLambda)
}

// condense walks the merge tree from the root and keeps only splits where
// both sides have at least minClusterSize points.
func condense(tree []linkNode, n, minClusterSize int) condensedTree {
	root := 2*n - 2
	nodeSize := func(id int) int {
		if id < n {
			return 1
		}
		return tree[id-n].size
	}
	var leaves func(id int, fn func(point int))
	leaves = func(id int, fn func(point int)) {
		if id < n {
			fn(id)
			return
		}
		node := tree[id-n]
		leaves(node.left, fn)
		leaves(node.right, fn)
	}

	ct := condensedTree{clusters: 1}
	relabel := map[int]int{root: 0}

	queue := []int{root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id < n {
			continue
		}
		node := tree[id-n]
		cid := relabel[id]
		lambda := lambdaOf(node.dist)
		lSize, rSize := nodeSize(node.left), nodeSize(node.right)

		fallOut := func(sub int) {
			leaves(sub, func(p int) {
				ct.entries = append(ct.entries, condensedEntry{parent: cid, child: p, lambda: lambda, size: 1})
			})
		}

		switch {
		case lSize >= minClusterSize && rSize >= minClusterSize:
			for _, c := range []struct{ id, size int }{{node.left, lSize}, {node.right, rSize}} {
				relabel[c.id] = ct.clusters
				ct.entries = append(ct.entries, condensedEntry{
					parent: cid, child: ct.clusters, lambda: lambda, size: c.size, isCluster: true,
				})
				ct.clusters++
				queue = append(queue, c.id)
			}
		case lSize < minClusterSize && rSize < minClusterSize:
			fallOut(node.left)
			fallOut(node.right)
		case lSize < minClusterSize:
			fallOut(node.left)
			relabel[node.right] = cid
			queue = append(queue, node.right)
		default:
			fallOut(node.right)
			relabel[node.left] = cid
			queue = append(queue, node.left)
		}
	}
	return ct
}

// selectClusters applies excess-of-mass selection. The root is not eligible.
func selectClusters(ct condensedTree) []bool {
	birth := make([]float64, ct.clusters)
	children := make([][]int, ct.clusters)
	for _, e := range ct.entries {
		if e.isCluster {
			birth[e.child] = e.lambda
			children[e.parent] = append(children[e.parent], e.child)
		}
	}

	stability := make([]float64, ct.clusters)
	for _, e := range ct.entries {
		stability[e.parent] += (e.lambda - birth[e.parent]) * float64(e.size)
	}

	selected := make([]bool, ct.clusters)
	for c := 1; c < ct.clusters; c++ {
		selected[c] = true
	}

	var deselect func(c int)
	deselect = func(c int) {
		for _, ch := range children[c] {
			selected[ch] = false
			deselect(ch)
		}
	}

	// Children always have larger ids than their parent.
	for c := ct.clusters - 1; c >= 1; c-- {
		var childSum float64
		for _, ch := range children[c] {
			childSum += stability[ch]
		}
		if len(children[c]) > 0 && childSum > stability[c] {
			selected[c] = false
			stability[c] = childSum
			continue
		}
		deselect(c)
	}
	return selected
}

func assignLabels(ct condensedTree, selected []bool, labels []int) []int {
	parentOf := make([]int, ct.clusters)
	parentOf[0] = -1
	for _, e := range ct.entries {
		if e.isCluster {
			parentOf[e.child] = e.parent
		}
	}

	labelOf := make(map[int]int)
	for c := 0; c < ct.clusters; c++ {
		if selected[c] {
			labelOf[c] = len(labelOf)
		}
	}

	for _, e := range ct.entries {
		if e.isCluster {
			continue
		}
		for c := e.parent; c > 0; c = parentOf[c] {
			if l, ok := labelOf[c]; ok {
				labels[e.child] = l
				break
			}
		}
	}
	return labels
}
