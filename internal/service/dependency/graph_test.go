package dependency

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-ingest/internal/domain"
)

func edge(parent, child int64) domain.DependencyEdge {
	return domain.DependencyEdge{ParentMappingID: parent, ChildMappingID: child, Kind: domain.DependencyKindData}
}

// assertTopological checks that order is a permutation of ids respecting
// every in-set edge.
func assertTopological(t *testing.T, ids []int64, edges []domain.DependencyEdge, order []int64) {
	t.Helper()
	pos := make(map[int64]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	assert.ElementsMatch(t, ids, order)
	for _, e := range edges {
		pp, okP := pos[e.ParentMappingID]
		cp, okC := pos[e.ChildMappingID]
		if okP && okC {
			assert.Less(t, pp, cp, "parent %d must precede child %d", e.ParentMappingID, e.ChildMappingID)
		}
	}
}

// assertClosedWalk checks that cycle is a closed walk over edges.
func assertClosedWalk(t *testing.T, edges []domain.DependencyEdge, cycle []int64) {
	t.Helper()
	require.NotEmpty(t, cycle)
	has := make(map[[2]int64]bool, len(edges))
	for _, e := range edges {
		has[[2]int64{e.ParentMappingID, e.ChildMappingID}] = true
	}
	for i, id := range cycle {
		next := cycle[(i+1)%len(cycle)]
		assert.True(t, has[[2]int64{id, next}], "missing edge %d -> %d", id, next)
	}
}

func TestResolveOrder(t *testing.T) {
	tests := []struct {
		name  string
		ids   []int64
		edges []domain.DependencyEdge
		want  []int64
	}{
		{name: "empty", ids: nil, want: []int64{}},
		{name: "no edges keeps input order", ids: []int64{3, 1, 2}, want: []int64{3, 1, 2}},
		{name: "linear chain", ids: []int64{3, 2, 1}, edges: []domain.DependencyEdge{edge(1, 2), edge(2, 3)}, want: []int64{1, 2, 3}},
		{name: "diamond", ids: []int64{1, 2, 3, 4}, edges: []domain.DependencyEdge{edge(1, 2), edge(1, 3), edge(2, 4), edge(3, 4)}, want: []int64{1, 2, 3, 4}},
		{name: "parent outside set is satisfied", ids: []int64{2, 3}, edges: []domain.DependencyEdge{edge(1, 2), edge(2, 3)}, want: []int64{2, 3}},
		{name: "duplicate ids and edges collapse", ids: []int64{1, 2, 1}, edges: []domain.DependencyEdge{edge(1, 2), edge(1, 2)}, want: []int64{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := NewGraph(tt.ids, tt.edges, nil).ResolveOrder()
			require.NoError(t, err)
			assert.Equal(t, tt.want, order)
		})
	}
}

func TestResolveOrder_Cycles(t *testing.T) {
	tests := []struct {
		name      string
		ids       []int64
		edges     []domain.DependencyEdge
		wantNodes []int64
	}{
		{name: "two node cycle", ids: []int64{1, 2}, edges: []domain.DependencyEdge{edge(1, 2), edge(2, 1)}, wantNodes: []int64{1, 2}},
		{name: "self dependency", ids: []int64{1, 2}, edges: []domain.DependencyEdge{edge(2, 2)}, wantNodes: []int64{2}},
		{
			name:      "cycle downstream of acyclic prefix",
			ids:       []int64{1, 2, 3, 4, 5},
			edges:     []domain.DependencyEdge{edge(1, 2), edge(2, 3), edge(3, 4), edge(4, 2), edge(4, 5)},
			wantNodes: []int64{2, 3, 4},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codes := map[int64]string{1: "A", 2: "B", 3: "C", 4: "D", 5: "E"}
			order, err := NewGraph(tt.ids, tt.edges, codes).ResolveOrder()
			require.Error(t, err)
			assert.Nil(t, order)

			var cycleErr *domain.CycleError
			require.ErrorAs(t, err, &cycleErr)
			assert.ElementsMatch(t, tt.wantNodes, cycleErr.Cycle)
			assertClosedWalk(t, tt.edges, cycleErr.Cycle)
			assert.Len(t, cycleErr.Codes, len(cycleErr.Cycle))
			assert.Contains(t, err.Error(), "dependency cycle detected")
		})
	}
}

func TestDetectCycle_AcyclicReturnsNil(t *testing.T) {
	g := NewGraph([]int64{1, 2, 3}, []domain.DependencyEdge{edge(1, 2), edge(2, 3)}, nil)
	assert.Nil(t, g.DetectCycle([]int64{1, 2, 3}))
}

func TestExecutionLevels_ABC(t *testing.T) {
	// B depends on A; C is independent.
	const a, b, c = 1, 2, 3
	g := NewGraph([]int64{a, b, c}, []domain.DependencyEdge{edge(a, b)}, map[int64]string{a: "A", b: "B", c: "C"})

	order, err := g.ResolveOrder()
	require.NoError(t, err)
	assert.Equal(t, []int64{a, c, b}, order)

	levels, err := g.ExecutionLevels()
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{a, c}, {b}}, levels)
	assert.Equal(t, []string{"A", "C"}, g.Codes(levels[0]))
}

func TestExecutionLevels_CyclePropagates(t *testing.T) {
	_, err := NewGraph([]int64{1, 2}, []domain.DependencyEdge{edge(1, 2), edge(2, 1)}, nil).ExecutionLevels()
	var cycleErr *domain.CycleError
	assert.ErrorAs(t, err, &cycleErr)
}

// Random DAGs: edges only go from lower to higher index of a shuffled
// permutation, so the graph is acyclic by construction.
func TestProperties_RandomDAGs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 200; iter++ {
		n := 1 + rng.Intn(12)
		perm := rng.Perm(n)
		ids := make([]int64, n)
		for i, p := range perm {
			ids[i] = int64(p + 1)
		}
		var edges []domain.DependencyEdge
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if rng.Intn(4) == 0 {
					edges = append(edges, edge(ids[i], ids[j]))
				}
			}
		}
		input := append([]int64(nil), ids...)
		rng.Shuffle(len(input), func(i, j int) { input[i], input[j] = input[j], input[i] })

		g := NewGraph(input, edges, nil)
		order, err := g.ResolveOrder()
		require.NoError(t, err)
		assertTopological(t, input, edges, order)

		levels, err := g.ExecutionLevels()
		require.NoError(t, err)
		var flat []int64
		levelOf := make(map[int64]int)
		for li, level := range levels {
			require.NotEmpty(t, level)
			for _, id := range level {
				levelOf[id] = li
			}
			flat = append(flat, level...)
		}
		assertTopological(t, input, edges, flat)
		for _, e := range edges {
			assert.Less(t, levelOf[e.ParentMappingID], levelOf[e.ChildMappingID])
		}
	}
}

// Random graphs with a planted back edge always contain a cycle.
func TestProperties_RandomCycles(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 200; iter++ {
		n := 2 + rng.Intn(10)
		ids := make([]int64, n)
		for i := range ids {
			ids[i] = int64(i + 1)
		}
		var edges []domain.DependencyEdge
		for i := 0; i+1 < n; i++ {
			edges = append(edges, edge(ids[i], ids[i+1]))
		}
		from := rng.Intn(n)
		to := rng.Intn(from + 1)
		edges = append(edges, edge(ids[from], ids[to]))

		_, err := NewGraph(ids, edges, nil).ResolveOrder()
		var cycleErr *domain.CycleError
		require.ErrorAs(t, err, &cycleErr)
		assertClosedWalk(t, edges, cycleErr.Cycle)
	}
}
