package dependency

// ExecutionLevels groups the graph's nodes into levels: every node's
// in-set parents sit in strictly earlier levels, and nodes within a level
// are independent. Within a level nodes keep their topological order.
func (g *Graph) ExecutionLevels() ([][]int64, error) {
	order, err := g.ResolveOrder()
	if err != nil {
		return nil, err
	}

	placed := make(map[int64]struct{}, len(order))
	remaining := order
	var levels [][]int64
	for len(remaining) > 0 {
		var level, next []int64
		for _, id := range remaining {
			if g.parentsPlaced(id, placed) {
				level = append(level, id)
			} else {
				next = append(next, id)
			}
		}
		for _, id := range level {
			placed[id] = struct{}{}
		}
		levels = append(levels, level)
		remaining = next
	}
	return levels, nil
}

func (g *Graph) parentsPlaced(id int64, placed map[int64]struct{}) bool {
	for _, p := range g.parents[id] {
		if _, ok := placed[p]; !ok {
			return false
		}
	}
	return true
}
