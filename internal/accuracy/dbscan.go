package accuracy

// dbscan clusters points by density over a pairwise distance function.
// Returns a cluster ID per point; -1 marks noise. Cluster IDs are
// assigned in point order, so output is deterministic for a fixed
// input order.
func dbscan(n int, dist func(i, j int) float64, eps float64, minPoints int) []int {
	const (
		unvisited = -2
		noise     = -1
	)

	labels := make([]int, n)
	for i := range labels {
		labels[i] = unvisited
	}

	neighbors := func(p int) []int {
		var out []int
		for q := 0; q < n; q++ {
			if q != p && dist(p, q) <= eps {
				out = append(out, q)
			}
		}
		return out
	}

	cluster := 0
	for p := 0; p < n; p++ {
		if labels[p] != unvisited {
			continue
		}
		seeds := neighbors(p)
		// minPoints counts the point itself.
		if len(seeds)+1 < minPoints {
			labels[p] = noise
			continue
		}

		labels[p] = cluster
		for i := 0; i < len(seeds); i++ {
			q := seeds[i]
			if labels[q] == noise {
				labels[q] = cluster // border point
			}
			if labels[q] != unvisited {
				continue
			}
			labels[q] = cluster
			qn := neighbors(q)
			if len(qn)+1 >= minPoints {
				seeds = append(seeds, qn...)
			}
		}
		cluster++
	}
	return labels
}
