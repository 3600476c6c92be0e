// Package oracle talks to the external layout-classification service. The
// oracle is a hint source only: its responses pass a three-tier correction
// pipeline before anything downstream may read them, and every failure path
// degrades to registry/statistical fallbacks instead of failing the document.
package oracle

import "errors"

// ErrSchemaUnrecoverable marks an oracle response that cannot be salvaged by
// structural defaulting; the caller may retry with an amended prompt.
var ErrSchemaUnrecoverable = errors.New("oracle schema unrecoverable: no usable layout templates")

// LayoutSchema is the validated intermediate form of an oracle response.
type LayoutSchema struct {
	PrimaryMarker     string             `json:"primary_marker"`
	ChapterCount      int                `json:"chapter_count"`
	LayoutTemplates   []LayoutTemplate   `json:"layout_templates"`
	NonChapterMarkers []NonChapterMarker `json:"non_chapter_markers"`
	CompoundTitles    []CompoundTitle    `json:"compound_titles"`
	FontRoleMap       []FontRole         `json:"font_role_map"`
}

// LayoutTemplate describes one distinct page layout the document uses.
type LayoutTemplate struct {
	TemplateID      string            `json:"template_id"`
	IsChapterOpener bool              `json:"is_chapter_opener"`
	Elements        []TemplateElement `json:"elements"`
}

// TemplateElement is one visual element within a layout template.
type TemplateElement struct {
	Role          string `json:"role"`
	RelativeSize  string `json:"relative_size"`
	Position      string `json:"position"`
	RepeatsOnPage int    `json:"repeats_on_page"`
	ExampleText   string `json:"example_text"`
}

// NonChapterMarker flags text that shares the chapter marker's font cluster
// without opening a chapter (e.g. TIMELINE, APPENDIX).
type NonChapterMarker struct {
	TextPattern            string `json:"text_pattern"`
	Reason                 string `json:"reason"`
	AppearsInSameClusterAs string `json:"appears_in_same_cluster_as"`
}

// CompoundTitle pairs a division marker with its named title.
type CompoundTitle struct {
	Marker string `json:"marker"`
	Title  string `json:"title"`
}

// FontRole maps an approximate font size to a structural role.
type FontRole struct {
	FontSizeApprox float64 `json:"font_size_approx"`
	Role           string  `json:"role"`
}
