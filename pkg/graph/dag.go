package graph

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"sort"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
)

// DAG is a validated Graph ready for execution. An edge dep -> node means
// dep must be ready before node is provisioned.
type DAG struct {
	g     graph.Graph[string, string]
	nodes []*Node
	byID  map[string]*Node
	// pos is the declaration index, used to break ordering ties.
	pos   map[string]int
	order []string

	// dependents is the successor set of every node.
	dependents map[string]map[string]graph.Edge[string]
}

// BuildDAG validates g and derives its execution order: of the nodes whose
// dependencies are all ordered, the one declared first comes next.
func BuildDAG(g *Graph) (*DAG, error) {
	if g == nil {
		return nil, fmt.Errorf("graph cannot be nil")
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}

	d := &DAG{
		g:    graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles()),
		byID: make(map[string]*Node, len(g.Nodes)),
		pos:  make(map[string]int, len(g.Nodes)),
	}
	for i := range g.Nodes {
		n := &g.Nodes[i]
		d.nodes = append(d.nodes, n)
		d.byID[n.ID] = n
		d.pos[n.ID] = i

		label := n.ID + "\n" + n.Object.GetKind()
		if err := d.g.AddVertex(n.ID, graph.VertexAttribute("label", label)); err != nil {
			return nil, fmt.Errorf("vertex %s: %w", n.ID, err)
		}
	}
	for _, n := range d.nodes {
		for _, dep := range n.Edges() {
			if err := d.g.AddEdge(dep, n.ID); err != nil {
				return nil, fmt.Errorf("edge %s -> %s: %w", dep, n.ID, err)
			}
		}
	}

	var err error
	if d.dependents, err = d.g.AdjacencyMap(); err != nil {
		return nil, fmt.Errorf("adjacency: %w", err)
	}
	if d.order, err = d.kahn(); err != nil {
		return nil, fmt.Errorf("ordering graph: %w", err)
	}
	return d, nil
}

// kahn orders the graph with a ready queue kept sorted by declaration index.
func (d *DAG) kahn() ([]string, error) {
	preds, err := d.g.PredecessorMap()
	if err != nil {
		return nil, err
	}

	waiting := make(map[string]int, len(preds))
	var ready []string
	for _, n := range d.nodes {
		if waiting[n.ID] = len(preds[n.ID]); waiting[n.ID] == 0 {
			ready = append(ready, n.ID)
		}
	}

	order := make([]string, 0, len(d.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for _, next := range d.sorted(d.dependents[id]) {
			if waiting[next]--; waiting[next] == 0 {
				i, _ := slices.BinarySearchFunc(ready, next, func(a, b string) int {
					return cmp.Compare(d.pos[a], d.pos[b])
				})
				ready = slices.Insert(ready, i, next)
			}
		}
	}
	if len(order) != len(d.nodes) {
		return nil, fmt.Errorf("cycle among %d nodes", len(d.nodes)-len(order))
	}
	return order, nil
}

func (d *DAG) declaredBefore(a, b string) bool {
	return d.pos[a] < d.pos[b]
}

func (d *DAG) GetNode(id string) (*Node, bool) {
	n, ok := d.byID[id]
	return n, ok
}

// GetOrder returns node IDs so that every node follows its dependencies.
func (d *DAG) GetOrder() []string {
	return d.order
}

// GetDependencies returns the edges of id as reported by Node.Edges.
func (d *DAG) GetDependencies(id string) ([]string, error) {
	n, ok := d.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return n.Edges(), nil
}

// GetDependents returns the nodes waiting on id, in declaration order.
func (d *DAG) GetDependents(id string) ([]string, error) {
	succ, ok := d.dependents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return d.sorted(succ), nil
}

func (d *DAG) Size() int {
	return len(d.nodes)
}

// GetRootNodes returns nodes without dependencies.
func (d *DAG) GetRootNodes() []string {
	var roots []string
	for _, n := range d.nodes {
		if len(n.Edges()) == 0 {
			roots = append(roots, n.ID)
		}
	}
	return roots
}

// GetLeafNodes returns nodes nothing depends on.
func (d *DAG) GetLeafNodes() []string {
	var leaves []string
	for _, n := range d.nodes {
		if len(d.dependents[n.ID]) == 0 {
			leaves = append(leaves, n.ID)
		}
	}
	return leaves
}

func (d *DAG) sorted(set map[string]graph.Edge[string]) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return d.declaredBefore(ids[i], ids[j]) })
	return ids
}

// WriteDOT renders the DAG for Graphviz.
func (d *DAG) WriteDOT(w io.Writer) error {
	return draw.DOT(d.g, w)
}
