package dependency

// DetectCycle searches the subgraph induced by unprocessed for a cycle and
// returns its nodes in traversal order, each node naming a parent of the
// next and the last a parent of the first. A self-dependency yields a
// one-node cycle. It returns nil when the subgraph is acyclic.
func (g *Graph) DetectCycle(unprocessed []int64) []int64 {
	const (
		white = iota
		grey
		black
	)
	color := make(map[int64]int, len(unprocessed))
	for _, id := range unprocessed {
		if g.Contains(id) {
			color[id] = white
		}
	}

	var (
		stack []int64
		found []int64
		visit func(id int64) bool
	)
	visit = func(id int64) bool {
		color[id] = grey
		stack = append(stack, id)
		for _, child := range g.children[id] {
			c, ok := color[child]
			if !ok {
				continue
			}
			switch c {
			case grey:
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == child {
						found = append([]int64(nil), stack[i:]...)
						return true
					}
				}
			case white:
				if visit(child) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for _, id := range unprocessed {
		if c, ok := color[id]; ok && c == white {
			if visit(id) {
				return found
			}
		}
	}
	return nil
}
