package oracle

import (
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestValidateEmptyTemplatesUnrecoverable(t *testing.T) {
	s := &LayoutSchema{PrimaryMarker: "Chapter"}
	if err := ValidateAndCorrect(s, discard()); !errors.Is(err, ErrSchemaUnrecoverable) {
		t.Fatalf("err = %v, want ErrSchemaUnrecoverable", err)
	}
}

func TestValidateFieldDefaults(t *testing.T) {
	s := &LayoutSchema{
		ChapterCount: -3,
		LayoutTemplates: []LayoutTemplate{{
			TemplateID: "opener",
			Elements: []TemplateElement{
				{Role: "", RelativeSize: "ENORMOUS", Position: "sideways", RepeatsOnPage: 0},
			},
		}},
	}
	if err := ValidateAndCorrect(s, discard()); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if s.PrimaryMarker != "Chapter" {
		t.Errorf("primary_marker = %q, want Chapter default", s.PrimaryMarker)
	}
	if s.ChapterCount != 0 {
		t.Errorf("chapter_count = %d, want 0", s.ChapterCount)
	}
	e := s.LayoutTemplates[0].Elements[0]
	if e.Role != "unknown" || e.RelativeSize != "medium" || e.Position != "middle" || e.RepeatsOnPage != 1 {
		t.Errorf("element defaults not applied: %+v", e)
	}
}

func TestValidateInfersOpenerFromRoles(t *testing.T) {
	s := &LayoutSchema{
		PrimaryMarker: "Theme",
		LayoutTemplates: []LayoutTemplate{
			{TemplateID: "body", Elements: []TemplateElement{{Role: "body", RelativeSize: "medium", Position: "middle", RepeatsOnPage: 1}}},
			{TemplateID: "opener", Elements: []TemplateElement{{Role: "chapter_title", RelativeSize: "giant", Position: "top", RepeatsOnPage: 1}}},
		},
	}
	if err := ValidateAndCorrect(s, discard()); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if s.LayoutTemplates[0].IsChapterOpener || !s.LayoutTemplates[1].IsChapterOpener {
		t.Errorf("opener inference wrong: %+v", s.LayoutTemplates)
	}
}

func TestValidateMultipleOpenersKeepFirst(t *testing.T) {
	s := &LayoutSchema{
		PrimaryMarker: "Theme",
		LayoutTemplates: []LayoutTemplate{
			{TemplateID: "a", IsChapterOpener: true, Elements: []TemplateElement{{Role: "chapter_title", RelativeSize: "giant", Position: "top", RepeatsOnPage: 1}}},
			{TemplateID: "b", IsChapterOpener: true, Elements: []TemplateElement{{Role: "body", RelativeSize: "medium", Position: "middle", RepeatsOnPage: 1}}},
			{TemplateID: "c", IsChapterOpener: true, Elements: []TemplateElement{{Role: "caption", RelativeSize: "small", Position: "bottom", RepeatsOnPage: 2}}},
		},
	}
	if err := ValidateAndCorrect(s, discard()); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !s.LayoutTemplates[0].IsChapterOpener || s.LayoutTemplates[1].IsChapterOpener || s.LayoutTemplates[2].IsChapterOpener {
		t.Errorf("exactly the first opener should survive: %+v", s.LayoutTemplates)
	}
}

func TestDecodeResponseStripsFences(t *testing.T) {
	raw := "```json\n{\"primary_marker\":\"Theme\",\"chapter_count\":9,\"layout_templates\":[{\"template_id\":\"t\"}]}\n```"
	s, err := DecodeResponse(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.PrimaryMarker != "Theme" || s.ChapterCount != 9 {
		t.Errorf("decoded = %+v", s)
	}
}

func TestDecodeResponseRejectsProse(t *testing.T) {
	if _, err := DecodeResponse("Sure! Here is the layout analysis you asked for."); err == nil {
		t.Fatal("prose response must fail decoding")
	}
}

func TestBuildBasePromptMentionsClusters(t *testing.T) {
	p := BuildBasePrompt(312, []ClusterStat{{Size: 9.5, AvgPerPage: 22.1}, {Size: 24, AvgPerPage: 0.4}}, 5)
	if !strings.Contains(p, "312 total pages") {
		t.Error("prompt missing page count")
	}
	// Clusters are rendered largest first.
	if strings.Index(p, "24.0pt") > strings.Index(p, "9.5pt") {
		t.Error("clusters not sorted by size descending")
	}
}
