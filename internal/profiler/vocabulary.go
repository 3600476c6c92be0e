package profiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pagemap/relink/internal/oracle"
	"github.com/pagemap/relink/internal/registry"
	"github.com/pagemap/relink/internal/rulebook"
)

// resolveVocabulary walks the priority chain for the document's structural
// vocabulary: CLI override, auto-ingested manual responses, registry lookup,
// oracle call, manual review packet, then statistical/default fallbacks.
func (p *Profiler) resolveVocabulary(ctx context.Context, slots map[int][]observation, clusters map[int]cluster, bodySize float64) (rulebook.StructuralVocabulary, error) {
	if p.opts.Mode == ModeOverride {
		marker := p.opts.VocabOverride
		if marker == "" {
			marker = "Chapter"
		}
		p.log.Info("vocabulary resolved from CLI override",
			"doc", p.opts.DocName, "primary_marker", marker,
			"note", "runtime only, not persisted to the registry")
		return rulebook.StructuralVocabulary{
			PrimaryMarker: marker,
			Source:        rulebook.SourceCLIOverride,
			Confidence:    1.0,
		}, nil
	}

	manualIngested := false
	if p.manualDir != "" {
		ok, err := p.store.IngestResponses(p.manualDir, p.opts.DocName)
		if err != nil {
			p.log.Warn("manual response auto-ingest failed", "error", err)
		}
		manualIngested = ok
	}

	// Typographic page clustering: drives both the representative-page
	// sample and the template count reported to the oracle.
	vectors := p.pageVectors(slots, bodySize)
	typoClusters := clusterPageVectors(vectors, p.opts.ClusterDistance)
	selected := representativePages(typoClusters, vectors)
	p.log.Debug("typographic page clustering",
		"pages_scanned", p.opts.ClusterScanLimit,
		"clusters", len(typoClusters), "representatives", selected)

	// Samples from clusters well above body size validate stored markers.
	var validationSamples []string
	for _, idx := range sortedKeys(clusters) {
		if clusters[idx].center > bodySize*1.5 {
			validationSamples = append(validationSamples, clusters[idx].samples...)
		}
	}

	basePrompt := p.buildPrompt(clusters, len(typoClusters))

	validator := func(e registry.Entry) bool {
		if e.PrimaryMarker == "" {
			return false
		}
		marker := strings.ToLower(e.PrimaryMarker)
		for _, sample := range validationSamples {
			if strings.Contains(strings.ToLower(sample), marker) {
				return true
			}
		}
		return false
	}

	hit := p.store.Get(p.opts.DocName, validator, validationSamples)

	if p.opts.Mode == ModeManualOnly {
		if hit.Source == rulebook.SourceManualIngest {
			p.log.Info("vocabulary resolved from manual ingest",
				"doc", p.opts.DocName, "primary_marker", hit.PrimaryMarker, "confidence", hit.Confidence)
			return vocabFromEntry(hit), nil
		}
		return rulebook.StructuralVocabulary{}, fmt.Errorf("%w: %s", registry.ErrVocabRequired, p.opts.DocName)
	}

	if hit.Source == rulebook.SourceManualIngest || hit.Source == rulebook.SourceOracle {
		path := "registry_hit"
		if manualIngested {
			path = "manual_auto_ingested"
		}
		p.log.Info("vocabulary resolved from registry",
			"doc", p.opts.DocName, "path", path, "source", hit.Source,
			"primary_marker", hit.PrimaryMarker, "confidence", hit.Confidence)
		return vocabFromEntry(hit), nil
	}

	if p.opts.Mode != ModeNoAPI && p.opts.Mode != ModeOffline && p.oracle != nil && p.sampler != nil {
		vocab, ok := p.consultOracle(ctx, basePrompt, selected)
		if ok {
			return vocab, nil
		}
	}

	if p.opts.Mode != ModeOffline {
		p.writeReviewPacket(basePrompt, selected)
	}

	note := ""
	switch hit.Source {
	case rulebook.SourceDefaultFallback:
		note = "save the oracle response into the review directory and rerun"
	case rulebook.SourceStatisticalFallback:
		note = "low confidence, consider manual review"
	}
	p.log.Info("vocabulary resolved from fallback",
		"doc", p.opts.DocName, "source", hit.Source,
		"primary_marker", hit.PrimaryMarker, "confidence", hit.Confidence, "note", note)
	return vocabFromEntry(hit), nil
}

func (p *Profiler) buildPrompt(clusters map[int]cluster, nTemplates int) string {
	idxs := sortedKeys(clusters)
	sort.SliceStable(idxs, func(i, j int) bool {
		return clusters[idxs[i]].center > clusters[idxs[j]].center
	})
	stats := make([]oracle.ClusterStat, 0, 8)
	for _, idx := range idxs[:min(8, len(idxs))] {
		c := clusters[idx]
		stats = append(stats, oracle.ClusterStat{Size: c.center, AvgPerPage: c.avgPerPage})
	}
	return oracle.BuildBasePrompt(p.totalPages, stats, nTemplates)
}

// consultOracle samples the representative pages into a standalone PDF and
// asks the oracle for a layout schema. Successful schemas are persisted to
// the registry at API confidence.
func (p *Profiler) consultOracle(ctx context.Context, basePrompt string, pages []int) (rulebook.StructuralVocabulary, bool) {
	pdfBytes, err := p.sampler(pages)
	if err != nil {
		p.log.Warn("representative page sampling failed", "error", err)
		return rulebook.StructuralVocabulary{}, false
	}

	schema, err := p.oracle.ProposeLayoutSchema(ctx, basePrompt, pdfBytes)
	if err != nil {
		p.log.Warn("structural vocabulary oracle call failed", "error", err)
		return rulebook.StructuralVocabulary{}, false
	}

	entry := registry.Entry{
		PrimaryMarker: schema.PrimaryMarker,
		ChapterCount:  schema.ChapterCount,
		Confidence:    0.95,
	}
	if err := p.store.WriteAPIResult(p.opts.DocName, entry); err != nil {
		p.log.Warn("registry write failed", "error", err)
	}
	p.log.Info("vocabulary resolved from oracle",
		"doc", p.opts.DocName, "primary_marker", schema.PrimaryMarker, "confidence", 0.95)
	return rulebook.StructuralVocabulary{
		PrimaryMarker: schema.PrimaryMarker,
		Source:        rulebook.SourceOracle,
		Confidence:    0.95,
	}, true
}

// writeReviewPacket materializes everything a human reviewer needs: the
// sampled pages, the per-document prompt, a pending flag, and regenerated
// batch prompts covering all pending documents in groups of three.
func (p *Profiler) writeReviewPacket(basePrompt string, pages []int) {
	if p.sampler == nil || p.manualDir == "" {
		return
	}
	if err := os.MkdirAll(p.manualDir, 0o755); err != nil {
		p.log.Error("manual review packet failed", "error", err)
		return
	}

	pdfBytes, err := p.sampler(pages)
	if err != nil {
		p.log.Error("manual review packet failed", "error", err)
		return
	}
	packetPDF := filepath.Join(p.manualDir, p.opts.DocName+"_pages.pdf")
	if err := os.WriteFile(packetPDF, pdfBytes, 0o644); err != nil {
		p.log.Error("manual review packet failed", "error", err)
		return
	}

	prompt := oracle.BuildPacketPrompt(basePrompt, p.opts.DocName)
	if err := os.WriteFile(filepath.Join(p.manualDir, p.opts.DocName+"_prompt.txt"), []byte(prompt), 0o644); err != nil {
		p.log.Error("manual review packet failed", "error", err)
		return
	}
	if err := registry.WritePending(p.manualDir, p.opts.DocName); err != nil {
		p.log.Error("manual review packet failed", "error", err)
		return
	}

	pending, err := registry.ListPending(p.manualDir)
	if err != nil {
		p.log.Warn("pending list unavailable, batch prompts not refreshed", "error", err)
		return
	}
	for i := 0; i < len(pending); i += 3 {
		batch := pending[i:min(i+3, len(pending))]
		names := make([]string, len(batch))
		for j, b := range batch {
			names[j] = b.DocName
		}
		batchNum := i/3 + 1
		prompt := oracle.BuildBatchPrompt(basePrompt, names, batchNum)
		path := filepath.Join(p.manualDir, fmt.Sprintf("batch_%d_prompt.txt", batchNum))
		if err := os.WriteFile(path, []byte(prompt), 0o644); err != nil {
			p.log.Warn("batch prompt write failed", "path", path, "error", err)
		}
	}
	p.log.Warn("manual review required", "packet", packetPDF, "doc", p.opts.DocName)
}

func vocabFromEntry(e registry.Entry) rulebook.StructuralVocabulary {
	return rulebook.StructuralVocabulary{
		PrimaryMarker: e.PrimaryMarker,
		Source:        e.Source,
		Confidence:    e.Confidence,
	}
}
