package detection

import (
	exif "github.com/dsoprea/go-exif/v3"
)

// exifTags are the EXIF tags copied onto ImageInfo.Metadata.
var exifTags = map[string]bool{
	"Make":               true,
	"Model":              true,
	"Software":           true,
	"ProcessingSoftware": true,
	"DateTimeOriginal":   true,
	"Artist":             true,
}

// readEXIF returns the interesting EXIF tags in data, or nil when the
// image carries none or the block cannot be parsed.
func readEXIF(data []byte) map[string]string {
	raw, err := exif.SearchAndExtractExif(data)
	if err != nil || raw == nil {
		return nil
	}
	entries, _, err := exif.GetFlatExifData(raw, nil)
	if err != nil {
		return nil
	}

	var meta map[string]string
	for _, entry := range entries {
		if !exifTags[entry.TagName] || entry.Formatted == "" {
			continue
		}
		if meta == nil {
			meta = make(map[string]string)
		}
		if _, seen := meta[entry.TagName]; !seen {
			meta[entry.TagName] = entry.Formatted
		}
	}
	return meta
}
