package oracle

import (
	"fmt"
	"sort"
	"strings"
)

// ClusterStat summarizes one font cluster for the prompt.
type ClusterStat struct {
	Size       float64
	AvgPerPage float64
}

// BuildBasePrompt renders the layout-classification request. The attached PDF
// holds the representative pages; the prompt carries the statistical context
// the oracle cannot see in the rendered pages alone.
func BuildBasePrompt(totalPages int, clusters []ClusterStat, nTemplates int) string {
	sorted := make([]ClusterStat, len(clusters))
	copy(sorted, clusters)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Size > sorted[j].Size })

	var stats strings.Builder
	for i, c := range sorted {
		if i > 0 {
			stats.WriteString(", ")
		}
		fmt.Fprintf(&stats, "%.1fpt: %.2f/page", c.Size, c.AvgPerPage)
	}

	var b strings.Builder
	b.WriteString("You are a document layout analyst. The attached PDF contains representative pages\n")
	b.WriteString("sampled from a larger document; each sampled page exemplifies one recurring layout.\n\n")
	fmt.Fprintf(&b, "Document statistics: %d total pages. Font clusters (size: avg occurrences per page): %s.\n", totalPages, stats.String())
	fmt.Fprintf(&b, "Distinct layout templates found by page clustering: %d.\n\n", nTemplates)
	b.WriteString("Identify the document's structural grammar and answer with a single JSON object\n")
	b.WriteString("(no prose, no markdown fences) with exactly these fields:\n\n")
	b.WriteString(`{
  "primary_marker": "the word that labels top-level divisions, e.g. Chapter, Theme, Unit",
  "chapter_count": <integer: how many top-level divisions the full document likely has>,
  "layout_templates": [
    {
      "template_id": "short identifier",
      "is_chapter_opener": <true if this layout starts a top-level division>,
      "elements": [
        {
          "role": "chapter_number | chapter_title | body | caption | page_number | running_header",
          "relative_size": "giant | large | medium | small",
          "position": "top | middle | bottom",
          "repeats_on_page": <integer>,
          "example_text": "verbatim sample from the page"
        }
      ]
    }
  ],
  "non_chapter_markers": [
    {"text_pattern": "...", "reason": "...", "appears_in_same_cluster_as": "..."}
  ],
  "compound_titles": [{"marker": "Theme 1", "title": "Origins"}],
  "font_role_map": [{"font_size_approx": 24.0, "role": "chapter_title"}]
}` + "\n\n")
	b.WriteString("Rules: primary_marker must be a single word as printed in the document.\n")
	b.WriteString("Every sampled layout must appear in layout_templates. Mark exactly the layouts\n")
	b.WriteString("that open a top-level division with is_chapter_opener=true. If headings that\n")
	b.WriteString("share the division font are NOT divisions (timelines, appendices), list them in\n")
	b.WriteString("non_chapter_markers instead of counting them.\n")
	return b.String()
}

// RetryAmendment is appended to the base prompt when the first response failed
// structural validation.
const RetryAmendment = "\n\nIMPORTANT: your previous answer was not valid JSON matching the schema above. " +
	"Respond again with ONLY the JSON object. Do not wrap it in markdown fences, do not add " +
	"commentary, and make sure chapter_count is an integer and layout_templates is a non-empty array."

// BuildPacketPrompt renders the human-readable instructions written alongside
// a manual review packet for one document.
func BuildPacketPrompt(basePrompt, docName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "MANUAL REVIEW REQUIRED: %s\n", docName)
	b.WriteString(strings.Repeat("=", 60) + "\n\n")
	b.WriteString("The automatic oracle was unavailable or declined this document.\n")
	b.WriteString("Open pages.pdf next to this file, then paste the prompt below into any\n")
	b.WriteString("capable model (attach pages.pdf) and save the JSON answer as\n")
	fmt.Fprintf(&b, "%s_response.json in this directory.\n\n", docName)
	b.WriteString(strings.Repeat("-", 60) + "\n\n")
	b.WriteString(basePrompt)
	return b.String()
}

// BuildBatchPrompt renders a combined prompt covering several pending
// documents so a reviewer can process them in one sitting. Responses come back
// as a JSON array with one object per document, each carrying doc_name.
func BuildBatchPrompt(basePrompt string, docNames []string, batchNum int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You will be given %d PDF files, one per document. Analyze each INDEPENDENTLY.\n", len(docNames))
	b.WriteString("Return ONLY a JSON array, one object per document, in the SAME ORDER as the files.\n")
	b.WriteString("Each object must include a \"doc_name\" field matching the filename exactly.\n\n")
	b.WriteString("Use the following schema for each document object:\n\n")
	b.WriteString(basePrompt)
	b.WriteString("\n\nFiles to attach for this batch: ")
	for i, name := range docNames {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(name + "_pages.pdf")
	}
	fmt.Fprintf(&b, "\nSave your response as batch_%d_response.json in the review directory, then rerun the pipeline.\n", batchNum)
	return b.String()
}
