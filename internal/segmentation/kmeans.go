package segmentation

import (
	"math"
	"math/rand"
)

type kmeansConfig struct {
	K        int
	Seed     int64
	Restarts int
	MaxIter  int
}

// runKMeans partitions points into cfg.K clusters. The seed fixes every
// random choice, so identical inputs always produce identical assignments.
// Restarts re-seed the centroids and the best run by inertia wins.
func runKMeans(points [][]float64, cfg kmeansConfig) ([]int, [][]float64, float64) {
	rng := rand.New(rand.NewSource(cfg.Seed))

	bestInertia := math.Inf(1)
	var bestAssign []int
	var bestCentroids [][]float64

	for restart := 0; restart < cfg.Restarts; restart++ {
		centroids := seedCentroids(points, cfg.K, rng)
		assign := make([]int, len(points))

		for iter := 0; iter < cfg.MaxIter; iter++ {
			changed := false
			for i, p := range points {
				c := nearestCentroid(p, centroids)
				if c != assign[i] {
					assign[i] = c
					changed = true
				}
			}
			recomputeCentroids(points, assign, centroids)
			fixEmptyClusters(points, assign, centroids)
			if !changed && iter > 0 {
				break
			}
		}

		inertia := 0.0
		for i, p := range points {
			inertia += squaredDistance(p, centroids[assign[i]])
		}
		if inertia < bestInertia {
			bestInertia = inertia
			bestAssign = assign
			bestCentroids = centroids
		}
	}

	return bestAssign, bestCentroids, bestInertia
}

// seedCentroids picks initial centers with k-means++ weighting.
func seedCentroids(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)

	first := points[rng.Intn(len(points))]
	centroids = append(centroids, append([]float64(nil), first...))

	dist := make([]float64, len(points))
	for len(centroids) < k {
		total := 0.0
		for i, p := range points {
			dist[i] = squaredDistance(p, centroids[0])
			for _, c := range centroids[1:] {
				if d := squaredDistance(p, c); d < dist[i] {
					dist[i] = d
				}
			}
			total += dist[i]
		}

		if total == 0 {
			// all remaining points coincide with a centroid
			p := points[rng.Intn(len(points))]
			centroids = append(centroids, append([]float64(nil), p...))
			continue
		}

		target := rng.Float64() * total
		acc := 0.0
		chosen := len(points) - 1
		for i, d := range dist {
			acc += d
			if acc >= target {
				chosen = i
				break
			}
		}
		centroids = append(centroids, append([]float64(nil), points[chosen]...))
	}

	return centroids
}

func nearestCentroid(p []float64, centroids [][]float64) int {
	best := 0
	bestDist := squaredDistance(p, centroids[0])
	for c := 1; c < len(centroids); c++ {
		if d := squaredDistance(p, centroids[c]); d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best
}

func recomputeCentroids(points [][]float64, assign []int, centroids [][]float64) {
	dims := len(centroids[0])
	counts := make([]int, len(centroids))
	sums := make([][]float64, len(centroids))
	for c := range sums {
		sums[c] = make([]float64, dims)
	}
	for i, p := range points {
		counts[assign[i]]++
		for d, v := range p {
			sums[assign[i]][d] += v
		}
	}
	for c := range centroids {
		if counts[c] == 0 {
			continue
		}
		for d := 0; d < dims; d++ {
			centroids[c][d] = sums[c][d] / float64(counts[c])
		}
	}
}

// fixEmptyClusters re-seeds any centroid that lost all members onto the
// point farthest from its current centroid.
func fixEmptyClusters(points [][]float64, assign []int, centroids [][]float64) {
	counts := make([]int, len(centroids))
	for _, a := range assign {
		counts[a]++
	}
	for c := range centroids {
		if counts[c] > 0 {
			continue
		}
		farthest, farthestDist := -1, -1.0
		for i, p := range points {
			if counts[assign[i]] <= 1 {
				continue
			}
			if d := squaredDistance(p, centroids[assign[i]]); d > farthestDist {
				farthest = i
				farthestDist = d
			}
		}
		if farthest < 0 {
			continue
		}
		counts[assign[farthest]]--
		assign[farthest] = c
		counts[c] = 1
		copy(centroids[c], points[farthest])
	}
}

func squaredDistance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}
