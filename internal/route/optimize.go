package route

import (
	"math"
	"strings"
)

// Optimize reorders the route for walking. Completed points keep their
// relative order at the front. Remaining points are split into those whose
// address contains keyword (case-insensitive) and the rest; each group is
// ordered greedily by nearest unvisited neighbour starting from its first
// point. An empty keyword disables the priority group.
//
// This is a heuristic, not an optimal tour. Ties go to the point that
// appears first in the input.
func Optimize(points []Point, keyword string) []Point {
	keyword = strings.ToLower(strings.TrimSpace(keyword))

	var done, priority, rest []Point
	for _, p := range points {
		switch {
		case p.Completed:
			done = append(done, p)
		case keyword != "" && strings.Contains(strings.ToLower(p.Address), keyword):
			priority = append(priority, p)
		default:
			rest = append(rest, p)
		}
	}

	out := make([]Point, 0, len(points))
	out = append(out, done...)
	out = append(out, nearestNeighbour(priority)...)
	out = append(out, nearestNeighbour(rest)...)
	return out
}

func nearestNeighbour(points []Point) []Point {
	if len(points) < 2 {
		return append([]Point(nil), points...)
	}
	visited := make([]bool, len(points))
	order := make([]Point, 0, len(points))

	cur := 0
	visited[cur] = true
	order = append(order, points[cur])
	for len(order) < len(points) {
		next := -1
		best := math.Inf(1)
		for i, p := range points {
			if visited[i] {
				continue
			}
			if d := distance(points[cur], p); d < best {
				best = d
				next = i
			}
		}
		visited[next] = true
		order = append(order, points[next])
		cur = next
	}
	return order
}

// distance is planar Euclidean distance in degrees, good enough for ranking
// points within one neighbourhood.
func distance(a, b Point) float64 {
	return math.Hypot(a.Lat-b.Lat, a.Lng-b.Lng)
}
