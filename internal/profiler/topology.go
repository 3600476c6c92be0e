package profiler

import (
	"math"
	"sort"

	"github.com/pagemap/relink/internal/rulebook"
	"github.com/pagemap/relink/internal/urn"
)

// streamKey separates candidate observations by numbering type and margin
// band; each combination is scored independently and the best one wins.
type streamKey struct {
	kind urn.Numbering
	band string
}

// inducePageMap turns raw page-number observations into the physical→printed
// segment map. A monotone chain is extracted per stream with a longest-path
// pass, gated on linear correlation, penalized for horizontal jitter, and the
// winning chain is stitched into contiguous segments.
func (p *Profiler) inducePageMap(cands map[int][]pageNumberObs, bodySize float64) ([]rulebook.Segment, error) {
	streams := make(map[streamKey][]pageNumberObs)
	for _, obs := range cands {
		for _, o := range obs {
			k := streamKey{kind: o.kind, band: o.band}
			streams[k] = append(streams[k], o)
		}
	}

	keys := make([]streamKey, 0, len(streams))
	for k := range streams {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].kind != keys[j].kind {
			return keys[i].kind < keys[j].kind
		}
		return keys[i].band < keys[j].band
	})

	bestScore := -1.0
	var winner []pageNumberObs
	var winnerKey streamKey

	for _, k := range keys {
		chain := longestMonotoneChain(streams[k])
		if len(chain) < 3 {
			continue
		}

		r, slope, ok := pearson(chain)
		if !ok || r < 0.5 || slope < 0.2 {
			continue
		}

		// Recto and verso pages carry numbers at different x positions, so
		// jitter is measured per parity and averaged.
		var evenX, oddX []float64
		for _, c := range chain {
			if c.page%2 == 0 {
				evenX = append(evenX, c.x)
			} else {
				oddX = append(oddX, c.x)
			}
		}
		avgStdX := (sampleStdev(evenX) + sampleStdev(oddX)) / 2

		score := float64(len(chain)) * r / (avgStdX + 1)
		if score > bestScore {
			bestScore = score
			winner = chain
			winnerKey = k
		}
	}

	if winner == nil {
		return nil, ErrTopologyInduction
	}
	p.log.Info("page-number stream selected",
		"numbering", winnerKey.kind, "band", winnerKey.band,
		"score", bestScore, "chain_len", len(winner))

	pageMap := p.stitchSegments(winner, bodySize)
	if len(pageMap) == 0 {
		return nil, ErrTopologyInduction
	}
	return pageMap, nil
}

// longestMonotoneChain runs a quadratic longest-path pass over the stream
// treated as a DAG: an edge exists where both physical page and printed value
// strictly increase and the two gaps differ by at most 20 pages.
func longestMonotoneChain(stream []pageNumberObs) []pageNumberObs {
	if len(stream) < 3 {
		return nil
	}
	sort.Slice(stream, func(i, j int) bool {
		if stream[i].page != stream[j].page {
			return stream[i].page < stream[j].page
		}
		return stream[i].x < stream[j].x
	})

	n := len(stream)
	lengths := make([]int, n)
	prev := make([]int, n)
	for i := range lengths {
		lengths[i] = 1
		prev[i] = -1
	}

	for i := 1; i < n; i++ {
		for j := 0; j < i; j++ {
			pGap := stream[i].page - stream[j].page
			vGap := stream[i].val - stream[j].val
			if pGap <= 0 || vGap <= 0 {
				continue
			}
			if shift := pGap - vGap; shift < -20 || shift > 20 {
				continue
			}
			if lengths[j]+1 > lengths[i] {
				lengths[i] = lengths[j] + 1
				prev[i] = j
			}
		}
	}

	maxIdx := 0
	for i := 1; i < n; i++ {
		if lengths[i] > lengths[maxIdx] {
			maxIdx = i
		}
	}

	var chain []pageNumberObs
	for cur := maxIdx; cur != -1; cur = prev[cur] {
		chain = append(chain, stream[cur])
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// pearson returns the correlation and regression slope of printed value
// against physical page. ok=false means a degenerate (zero-variance) chain.
func pearson(chain []pageNumberObs) (r, slope float64, ok bool) {
	n := float64(len(chain))
	var meanP, meanV float64
	for _, c := range chain {
		meanP += float64(c.page)
		meanV += float64(c.val)
	}
	meanP /= n
	meanV /= n

	var varP, varV, cov float64
	for _, c := range chain {
		dp := float64(c.page) - meanP
		dv := float64(c.val) - meanV
		varP += dp * dp
		varV += dv * dv
		cov += dp * dv
	}
	if varP == 0 || varV == 0 {
		return 0, 0, false
	}
	return cov / math.Sqrt(varP*varV), cov / varP, true
}

func sampleStdev(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	sum := 0.0
	for _, v := range vals {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(vals)-1))
}

// segBuilder accumulates one in-progress segment during stitching.
type segBuilder struct {
	physStart, physEnd       int
	printedStart, printedEnd int
	last, run                int
	numbering                urn.Numbering
	stride                   int // 0 until locked by the first continuation
	spacers                  []int
}

func newSegBuilder(phys, printed int, numbering urn.Numbering) *segBuilder {
	return &segBuilder{
		physStart: phys, physEnd: phys,
		printedStart: printed, printedEnd: printed,
		last: printed, run: 1, numbering: numbering,
	}
}

func (s *segBuilder) segment() rulebook.Segment {
	return rulebook.Segment{
		PhysicalStart: s.physStart,
		PhysicalEnd:   s.physEnd,
		PrintedStart:  s.printedStart,
		PrintedEnd:    s.printedEnd,
		Numbering:     s.numbering,
		Spacers:       s.spacers,
	}
}

// stitchSegments walks the winning chain in physical order and grows
// contiguous segments, deciding per gap whether the unnumbered pages absorb
// printed numbers or become spacers.
func (p *Profiler) stitchSegments(chain []pageNumberObs, bodySize float64) []rulebook.Segment {
	byPage := make(map[int]pageNumberObs, len(chain))
	for _, c := range chain {
		byPage[c.page] = c
	}

	var pageMap []rulebook.Segment
	var cur *segBuilder

	flush := func() {
		if cur == nil {
			return
		}
		if cur.run < 3 {
			p.log.Warn("short segment retained",
				"physical_start", cur.physStart, "physical_end", cur.physEnd,
				"printed_start", cur.printedStart, "printed_end", cur.printedEnd,
				"numbering", cur.numbering, "run", cur.run)
		}
		pageMap = append(pageMap, cur.segment())
		cur = nil
	}

	for page := 1; page <= p.opts.TopoScanLimit; page++ {
		obs, found := byPage[page]
		if !found {
			continue
		}

		if cur == nil || obs.kind != cur.numbering {
			flush()
			cur = newSegBuilder(page, obs.val, obs.kind)
			continue
		}
		if obs.val <= cur.last {
			flush()
			cur = newSegBuilder(page, obs.val, obs.kind)
			continue
		}

		stride := cur.stride
		if stride == 0 {
			stride = 1
		}
		printedDelta := obs.val - cur.last
		missingPrinted := 0
		if printedDelta%stride == 0 {
			missingPrinted = printedDelta/stride - 1
			if missingPrinted < 0 {
				missingPrinted = 0
			}
		}
		gapPhysical := page - cur.physEnd - 1

		switch {
		case gapPhysical == 0 && missingPrinted == 0:
			if cur.run == 1 {
				cur.stride = obs.val - cur.last
			}
			cur.extend(page, obs.val, 1)

		case gapPhysical > missingPrinted:
			// More physical pages than printed numbers: the heaviest gap
			// pages absorb the numbers, the rest are unnumbered inserts.
			spacers := p.classifySpacers(cur.physEnd+1, page, missingPrinted, bodySize)
			cur.spacers = append(cur.spacers, spacers...)
			cur.extend(page, obs.val, 1+missingPrinted)

		case gapPhysical == missingPrinted:
			cur.extend(page, obs.val, 1+missingPrinted)

		default: // gapPhysical < missingPrinted: printed numbering jumped
			flush()
			cur = newSegBuilder(page, obs.val, obs.kind)
		}
	}
	flush()
	return pageMap
}

func (s *segBuilder) extend(phys, printed, runDelta int) {
	s.physEnd = phys
	s.printedEnd = printed
	s.last = printed
	s.run += runDelta
}

// classifySpacers weighs each physical page in the open interval and returns
// the lowest-weight ones as spacers, keeping the heaviest missingPrinted
// pages as number-bearing.
func (p *Profiler) classifySpacers(physFrom, physTo, missingPrinted int, bodySize float64) []int {
	type weighted struct {
		page   int
		weight float64
	}
	var gap []weighted
	for phys := physFrom; phys < physTo; phys++ {
		gap = append(gap, weighted{page: phys, weight: contentWeight(p.src, phys, bodySize)})
	}
	sort.SliceStable(gap, func(i, j int) bool { return gap[i].weight > gap[j].weight })

	var spacers []int
	for _, w := range gap[min(missingPrinted, len(gap)):] {
		spacers = append(spacers, w.page)
	}
	return spacers
}
