// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analyze

import (
	"math"
	"math/rand"
)

// Products are wrapped in explicit float64 conversions so the compiler
// never fuses them into multiply-adds; clusterings match across
// architectures.

type clustering struct {
	labels    []int
	centroids [][]float64
	inertia   float64
}

// kmeans clusters points into k groups. It runs restarts k-means++ seeded
// Lloyd runs from one random source and keeps the run with the lowest
// inertia, the earliest on ties. Labels are canonical: cluster 0 holds
// point 0, and each new label is the next unused number in point order.
func kmeans(points [][]float64, k int, seed int64, restarts, maxIter int) clustering {
	if restarts < 1 {
		restarts = 1
	}
	rng := rand.New(rand.NewSource(seed))

	var best clustering
	for r := 0; r < restarts; r++ {
		c := lloyd(points, seedCentroids(points, k, rng), maxIter)
		if r == 0 || c.inertia < best.inertia {
			best = c
		}
	}
	return relabel(best, k)
}

// seedCentroids picks k initial centroids with k-means++: the first
// uniformly, each next with probability proportional to its squared
// distance from the nearest centroid chosen so far.
func seedCentroids(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(points)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(points[rng.Intn(n)]))

	dist := make([]float64, n)
	for i, p := range points {
		dist[i] = sqDist(p, centroids[0])
	}
	for len(centroids) < k {
		var total float64
		for _, d := range dist {
			total += d
		}
		next := 0
		if total > 0 {
			target := float64(rng.Float64() * total)
			var acc float64
			for i, d := range dist {
				acc += d
				if acc >= target && d > 0 {
					next = i
					break
				}
				next = i
			}
		} else {
			next = rng.Intn(n)
		}
		c := clone(points[next])
		centroids = append(centroids, c)
		for i, p := range points {
			if d := sqDist(p, c); d < dist[i] {
				dist[i] = d
			}
		}
	}
	return centroids
}

func lloyd(points, centroids [][]float64, maxIter int) clustering {
	if maxIter < 1 {
		maxIter = 1
	}
	k := len(centroids)
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = -1
	}

	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, p := range points {
			if l := nearest(p, centroids); l != labels[i] {
				labels[i] = l
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}
		centroids = recompute(points, labels, centroids, k)
	}

	// Final assignment against the last centroids.
	var inertia float64
	for i, p := range points {
		labels[i] = nearest(p, centroids)
		inertia += sqDist(p, centroids[labels[i]])
	}
	return clustering{labels: labels, centroids: centroids, inertia: inertia}
}

// recompute moves each centroid to the mean of its members. An empty
// cluster takes the point farthest from its current centroid.
func recompute(points [][]float64, labels []int, prev [][]float64, k int) [][]float64 {
	dim := len(points[0])
	sums := make([][]float64, k)
	counts := make([]int, k)
	for c := range sums {
		sums[c] = make([]float64, dim)
	}
	for i, p := range points {
		counts[labels[i]]++
		for j, v := range p {
			sums[labels[i]][j] += v
		}
	}

	taken := make(map[int]bool)
	for c := 0; c < k; c++ {
		if counts[c] > 0 {
			for j := range sums[c] {
				sums[c][j] /= float64(counts[c])
			}
			continue
		}
		far, farDist := -1, -1.0
		for i, p := range points {
			if taken[i] {
				continue
			}
			if d := sqDist(p, prev[labels[i]]); d > farDist {
				far, farDist = i, d
			}
		}
		if far < 0 {
			copy(sums[c], prev[c])
			continue
		}
		taken[far] = true
		copy(sums[c], points[far])
	}
	return sums
}

func relabel(c clustering, k int) clustering {
	mapping := make(map[int]int, k)
	for _, l := range c.labels {
		if _, ok := mapping[l]; !ok {
			mapping[l] = len(mapping)
		}
	}
	labels := make([]int, len(c.labels))
	for i, l := range c.labels {
		labels[i] = mapping[l]
	}
	centroids := make([][]float64, len(mapping))
	for old, nu := range mapping {
		centroids[nu] = c.centroids[old]
	}
	return clustering{labels: labels, centroids: centroids, inertia: c.inertia}
}

// nearest returns the index of the closest centroid, the lowest on ties.
func nearest(p []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := sqDist(p, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func sqDist(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += float64(d * d)
	}
	return sum
}

func clone(p []float64) []float64 {
	out := make([]float64, len(p))
	copy(out, p)
	return out
}
