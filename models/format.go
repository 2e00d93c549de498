package models

import "strings"

// Format is an uppercase file-type identifier such as "PNG" or "MP4".
type Format string

// NormalizeFormat trims and uppercases a user or wire supplied format.
func NormalizeFormat(s string) Format {
	return Format(strings.ToUpper(strings.TrimSpace(s)))
}

// Lower returns the format as a file extension, without the dot.
func (f Format) Lower() string {
	return strings.ToLower(string(f))
}

func (f Format) String() string {
	return string(f)
}

type Category string

const (
	CategoryImages    Category = "images"
	CategoryDocuments Category = "documents"
	CategoryVideo     Category = "video"
	CategoryAudio     Category = "audio"
	CategoryArchives  Category = "archives"
	CategoryOther     Category = "other"
)
