// Package formats holds the static format compatibility table: which
// categories exist, which formats belong to them and which conversions a
// source format can be asked for.
package formats

import (
	"path/filepath"
	"strings"

	"filealchemy/models"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type CategoryInfo struct {
	ID      models.Category
	Name    string
	Icon    string
	Color   string
	Formats []models.Format
}

var categoryOrder = []models.Category{
	models.CategoryImages,
	models.CategoryDocuments,
	models.CategoryVideo,
	models.CategoryAudio,
	models.CategoryArchives,
	models.CategoryOther,
}

var categoryMembers = map[models.Category][]models.Format{
	models.CategoryImages:    {"JPEG", "PNG", "GIF", "BMP", "TIFF", "WEBP", "HEIC", "ICO", "SVG"},
	models.CategoryDocuments: {"PDF", "DOCX", "TXT", "HTML", "RTF", "XLSX", "CSV", "PPTX", "ODT", "ODS", "ODP"},
	models.CategoryVideo:     {"MP4", "AVI", "MOV", "MKV", "WMV", "WEBM", "FLV"},
	models.CategoryAudio:     {"MP3", "WAV", "FLAC", "AAC", "OGG"},
	models.CategoryArchives:  {"ZIP", "RAR", "7Z", "TAR", "GZ"},
	models.CategoryOther:     {"JSON", "XML", "YAML"},
}

var categoryStyle = map[models.Category][2]string{
	models.CategoryImages:    {"image", "blue"},
	models.CategoryDocuments: {"file-text", "green"},
	models.CategoryVideo:     {"video", "purple"},
	models.CategoryAudio:     {"music", "orange"},
	models.CategoryArchives:  {"archive", "yellow"},
	models.CategoryOther:     {"file", "gray"},
}

// compatibility is directed: RAR -> ZIP exists, nothing converts to RAR.
var compatibility = map[models.Format][]models.Format{
	// images
	"JPEG": {"PNG", "WEBP", "GIF", "BMP", "TIFF", "ICO", "PDF"},
	"PNG":  {"JPEG", "WEBP", "GIF", "BMP", "TIFF", "ICO", "PDF"},
	"GIF":  {"PNG", "JPEG", "WEBP", "MP4"},
	"BMP":  {"PNG", "JPEG", "WEBP", "TIFF"},
	"TIFF": {"PNG", "JPEG", "PDF"},
	"WEBP": {"PNG", "JPEG", "GIF"},
	"HEIC": {"JPEG", "PNG", "WEBP"},
	"ICO":  {"PNG"},
	"SVG":  {"PNG", "JPEG", "PDF"},

	// documents
	"PDF":  {"DOCX", "TXT", "HTML", "JPEG", "PNG"},
	"DOCX": {"PDF", "TXT", "HTML", "ODT"},
	"TXT":  {"PDF", "DOCX", "HTML"},
	"HTML": {"PDF", "TXT", "DOCX"},
	"RTF":  {"PDF", "DOCX", "TXT"},
	"XLSX": {"CSV", "PDF", "ODS"},
	"CSV":  {"XLSX", "JSON"},
	"PPTX": {"PDF", "ODP"},
	"ODT":  {"DOCX", "PDF"},
	"ODS":  {"XLSX", "CSV", "PDF"},
	"ODP":  {"PPTX", "PDF"},

	// video
	"MP4":  {"AVI", "MOV", "MKV", "WEBM", "GIF", "MP3"},
	"AVI":  {"MP4", "MOV", "MKV", "WEBM"},
	"MOV":  {"MP4", "AVI", "MKV", "WEBM"},
	"MKV":  {"MP4", "AVI", "MOV", "WEBM"},
	"WMV":  {"MP4", "AVI", "MOV"},
	"WEBM": {"MP4", "AVI", "MOV", "GIF"},
	"FLV":  {"MP4", "AVI", "MOV"},

	// audio
	"MP3":  {"WAV", "FLAC", "AAC", "OGG"},
	"WAV":  {"MP3", "FLAC", "AAC", "OGG"},
	"FLAC": {"MP3", "WAV", "AAC", "OGG"},
	"AAC":  {"MP3", "WAV", "FLAC", "OGG"},
	"OGG":  {"MP3", "WAV", "FLAC", "AAC"},

	// archives
	"ZIP": {"7Z", "TAR", "GZ"},
	"RAR": {"ZIP", "7Z", "TAR"},
	"7Z":  {"ZIP", "TAR"},
	"TAR": {"ZIP", "GZ", "7Z"},
	"GZ":  {"ZIP", "TAR"},

	// other
	"JSON": {"XML", "YAML", "CSV"},
	"XML":  {"JSON", "YAML"},
	"YAML": {"JSON", "XML"},
}

var formatCategory = func() map[models.Format]models.Category {
	index := make(map[models.Format]models.Category)
	for _, c := range categoryOrder {
		for _, f := range categoryMembers[c] {
			index[f] = c
		}
	}
	return index
}()

// TargetsFor returns the declared targets for source, or an empty slice when
// the format is unknown. The returned slice is a copy.
func TargetsFor(source string) []models.Format {
	targets := compatibility[models.NormalizeFormat(source)]
	out := make([]models.Format, len(targets))
	copy(out, targets)
	return out
}

// CategoryOf returns the owning category. Unknown formats fall into "other"
// instead of being rejected.
func CategoryOf(format string) models.Category {
	if c, ok := formatCategory[models.NormalizeFormat(format)]; ok {
		return c
	}
	return models.CategoryOther
}

// IsMultiOutputConversion reports whether the conversion yields one output
// per page, packaged as a zip.
func IsMultiOutputConversion(source, target string) bool {
	if models.NormalizeFormat(source) != "PDF" {
		return false
	}
	switch models.NormalizeFormat(target) {
	case "JPEG", "JPG", "PNG":
		return true
	}
	return false
}

// Known reports whether any category declares format.
func Known(format string) bool {
	_, ok := formatCategory[models.NormalizeFormat(format)]
	return ok
}

// IsSupported reports whether source -> target is a declared edge. RAR is
// never offered as an output.
func IsSupported(source, target string) bool {
	tgt := models.NormalizeFormat(target)
	if tgt == "RAR" {
		return false
	}
	for _, t := range compatibility[models.NormalizeFormat(source)] {
		if t == tgt {
			return true
		}
	}
	return false
}

// OutputFileName derives the converted file name: the extension swapped for
// the target, or "<stem>_pages.zip" for multi-output conversions.
func OutputFileName(name, source, target string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if IsMultiOutputConversion(source, target) {
		return stem + "_pages.zip"
	}
	return stem + "." + models.NormalizeFormat(target).Lower()
}

func Lookup(c models.Category) (CategoryInfo, bool) {
	members, ok := categoryMembers[c]
	if !ok {
		return CategoryInfo{}, false
	}
	style := categoryStyle[c]
	fs := make([]models.Format, len(members))
	copy(fs, members)
	return CategoryInfo{
		ID:      c,
		Name:    cases.Title(language.English).String(string(c)),
		Icon:    style[0],
		Color:   style[1],
		Formats: fs,
	}, true
}

// Categories lists every category in display order.
func Categories() []CategoryInfo {
	out := make([]CategoryInfo, 0, len(categoryOrder))
	for _, c := range categoryOrder {
		info, _ := Lookup(c)
		out = append(out, info)
	}
	return out
}

// Table returns a copy of the full adjacency table, keyed by source format.
func Table() map[models.Format][]models.Format {
	out := make(map[models.Format][]models.Format, len(compatibility))
	for src := range compatibility {
		out[src] = TargetsFor(string(src))
	}
	return out
}
