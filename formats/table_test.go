package formats

import (
	"strings"
	"testing"

	"filealchemy/models"
)

func TestTargetsFor_KnownSourcesHaveUppercaseTargets(t *testing.T) {
	for src := range compatibility {
		targets := TargetsFor(string(src))
		if len(targets) == 0 {
			t.Fatalf("%s has no targets", src)
		}
		for _, tgt := range targets {
			if tgt == "" || string(tgt) != strings.ToUpper(string(tgt)) {
				t.Fatalf("%s -> %q is not an uppercase format", src, tgt)
			}
			if !Known(string(tgt)) {
				t.Fatalf("%s -> %s targets a format no category declares", src, tgt)
			}
		}
	}
}

func TestTargetsFor_NormalizesAndHandlesUnknown(t *testing.T) {
	if got := TargetsFor(" png "); len(got) == 0 || got[0] != "JPEG" {
		t.Fatalf("TargetsFor(png) = %v", got)
	}
	if got := TargetsFor("UNKNOWNFMT"); len(got) != 0 {
		t.Fatalf("TargetsFor(UNKNOWNFMT) = %v, want empty", got)
	}
	if got := TargetsFor(""); len(got) != 0 {
		t.Fatalf("TargetsFor(\"\") = %v, want empty", got)
	}
}

func TestTargetsFor_ReturnsCopy(t *testing.T) {
	got := TargetsFor("PNG")
	got[0] = "MUTATED"
	if TargetsFor("PNG")[0] == "MUTATED" {
		t.Fatal("table was mutated through returned slice")
	}
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		format string
		want   models.Category
	}{
		{"PNG", models.CategoryImages},
		{"pdf", models.CategoryDocuments},
		{"MKV", models.CategoryVideo},
		{"flac", models.CategoryAudio},
		{"RAR", models.CategoryArchives},
		{"JSON", models.CategoryOther},
		{"UNKNOWNFMT", models.CategoryOther},
	}
	for _, tt := range tests {
		if got := CategoryOf(tt.format); got != tt.want {
			t.Errorf("CategoryOf(%q) = %s, want %s", tt.format, got, tt.want)
		}
	}
}

func TestIsMultiOutputConversion(t *testing.T) {
	tests := []struct {
		source, target string
		want           bool
	}{
		{"PDF", "PNG", true},
		{"PDF", "JPEG", true},
		{"PDF", "JPG", true},
		{"pdf", "jpg", true},
		{"pdf", "png", true},
		{"PDF", "DOCX", false},
		{"JPEG", "PNG", false},
	}
	for _, tt := range tests {
		if got := IsMultiOutputConversion(tt.source, tt.target); got != tt.want {
			t.Errorf("IsMultiOutputConversion(%s, %s) = %v, want %v", tt.source, tt.target, got, tt.want)
		}
	}
}

func TestCompatibilityIsNotSymmetric(t *testing.T) {
	if !IsSupported("RAR", "ZIP") {
		t.Fatal("expected RAR -> ZIP")
	}
	if IsSupported("ZIP", "RAR") {
		t.Fatal("RAR must never be an output")
	}
}

func TestOutputFileName(t *testing.T) {
	if got := OutputFileName("a.jpg", "JPEG", "PNG"); got != "a.png" {
		t.Fatalf("got %q", got)
	}
	if got := OutputFileName("report.v2.pdf", "PDF", "PNG"); got != "report.v2_pages.zip" {
		t.Fatalf("got %q", got)
	}
	if got := OutputFileName("scan.pdf", "PDF", "JPG"); got != "scan_pages.zip" {
		t.Fatalf("got %q", got)
	}
	if got := OutputFileName("noext", "TXT", "PDF"); got != "noext.pdf" {
		t.Fatalf("got %q", got)
	}
}

func TestCategories(t *testing.T) {
	cats := Categories()
	if len(cats) != 6 {
		t.Fatalf("got %d categories", len(cats))
	}
	if cats[0].ID != models.CategoryImages || cats[0].Name != "Images" {
		t.Fatalf("first category = %+v", cats[0])
	}
	for _, c := range cats {
		if len(c.Formats) == 0 || c.Icon == "" || c.Color == "" {
			t.Fatalf("incomplete category %+v", c)
		}
	}
}
