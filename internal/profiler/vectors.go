package profiler

import (
	"math"
	"sort"
)

// pageVector is the typographic fingerprint of one page: character-mass
// fractions in the giant/large/medium/body size bands plus an image flag.
type pageVector [5]float64

func vectorDist(a, b pageVector) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// pageVectors fingerprints every page inside the cluster scan window.
// Index i holds physical page i+1.
func (p *Profiler) pageVectors(slots map[int][]observation, bodySize float64) []pageVector {
	type bandStats struct {
		giant, large, medium, body, total int
	}
	stats := make([]bandStats, p.opts.ClusterScanLimit)

	for _, idx := range sortedKeys(slots) {
		for _, o := range slots[idx] {
			if o.page > p.opts.ClusterScanLimit {
				continue
			}
			s := &stats[o.page-1]
			switch {
			case o.size > bodySize*p.opts.VectorGiantThreshold:
				s.giant += o.chars
			case o.size > bodySize*p.opts.VectorLargeThreshold:
				s.large += o.chars
			case o.size > bodySize*p.opts.VectorMediumThreshold:
				s.medium += o.chars
			default:
				s.body += o.chars
			}
			s.total += o.chars
		}
	}

	vectors := make([]pageVector, p.opts.ClusterScanLimit)
	for i := range vectors {
		hasImage := 0.0
		if p.src.HasImage(i + 1) {
			hasImage = 1.0
		}
		s := stats[i]
		if s.total == 0 {
			vectors[i] = pageVector{0, 0, 0, 0, hasImage}
			continue
		}
		t := float64(s.total)
		vectors[i] = pageVector{
			float64(s.giant) / t,
			float64(s.large) / t,
			float64(s.medium) / t,
			float64(s.body) / t,
			hasImage,
		}
	}
	return vectors
}

// typoCluster groups pages with near-identical typographic fingerprints.
type typoCluster struct {
	centroid pageVector
	pages    []int // 1-based physical pages, in scan order
}

// clusterPageVectors runs a single-pass online clustering with moving-average
// centroids, then orders clusters by population.
func clusterPageVectors(vectors []pageVector, threshold float64) []typoCluster {
	var clusters []typoCluster
	for i, vec := range vectors {
		page := i + 1
		bestDist := math.Inf(1)
		bestIdx := -1
		for ci := range clusters {
			if d := vectorDist(vec, clusters[ci].centroid); d < bestDist {
				bestDist = d
				bestIdx = ci
			}
		}
		if bestIdx >= 0 && bestDist < threshold {
			c := &clusters[bestIdx]
			c.pages = append(c.pages, page)
			n := float64(len(c.pages))
			for k := range c.centroid {
				c.centroid[k] = (c.centroid[k]*(n-1) + vec[k]) / n
			}
		} else {
			clusters = append(clusters, typoCluster{centroid: vec, pages: []int{page}})
		}
	}
	sort.SliceStable(clusters, func(i, j int) bool {
		return len(clusters[i].pages) > len(clusters[j].pages)
	})
	return clusters
}

// representativePages picks up to eight pages that jointly exemplify the
// document's distinct layouts: the centroid-nearest page of each of the top
// eight clusters, topped up from remaining cluster pages when fewer than
// eight clusters exist.
func representativePages(clusters []typoCluster, vectors []pageVector) []int {
	selected := make([]int, 0, 8)
	isSelected := make(map[int]bool)

	for _, c := range clusters[:min(8, len(clusters))] {
		best := c.pages[0]
		bestDist := math.Inf(1)
		for _, page := range c.pages {
			if d := vectorDist(vectors[page-1], c.centroid); d < bestDist {
				bestDist = d
				best = page
			}
		}
		selected = append(selected, best)
		isSelected[best] = true
	}

	if len(selected) < 8 {
		var candidates []int
		for _, c := range clusters {
			pages := make([]int, len(c.pages))
			copy(pages, c.pages)
			sort.SliceStable(pages, func(i, j int) bool {
				return vectorDist(vectors[pages[i]-1], c.centroid) < vectorDist(vectors[pages[j]-1], c.centroid)
			})
			for _, page := range pages {
				if !isSelected[page] {
					candidates = append(candidates, page)
				}
			}
		}
		for _, page := range candidates {
			if len(selected) == 8 {
				break
			}
			if !isSelected[page] {
				selected = append(selected, page)
				isSelected[page] = true
			}
		}
	}

	sort.Ints(selected)
	return selected
}
