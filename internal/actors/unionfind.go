package actors

// unionFind is a disjoint-set arena over integer handles. Parents are
// indexes into the arena, find compresses paths, and union is by rank.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind() *unionFind {
	return &unionFind{}
}

// add allocates a new singleton set and returns its handle.
func (u *unionFind) add() int {
	i := len(u.parent)
	u.parent = append(u.parent, i)
	u.rank = append(u.rank, 0)
	return i
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

// union joins the sets containing a and b and returns the surviving root.
func (u *unionFind) union(a, b int) int {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return ra
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
	return ra
}

func (u *unionFind) size() int {
	return len(u.parent)
}
