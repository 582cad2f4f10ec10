package detection

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"net/http"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// ImageInfo is what the client knows about a submitted image.
// Width and Height are zero when the format has no registered decoder.
// Metadata holds selected EXIF tags, if any.
type ImageInfo struct {
	ContentType string            `json:"content_type"`
	Format      string            `json:"format,omitempty"`
	Width       int               `json:"width,omitempty"`
	Height      int               `json:"height,omitempty"`
	Size        int               `json:"size"`
	SHA256      string            `json:"sha256"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Inspect sniffs data and checks it is an image. declared is the
// content type the uploader claimed; it is only trusted when sniffing
// is inconclusive and it names an image type.
func Inspect(data []byte, declared string) (ImageInfo, error) {
	if len(data) == 0 {
		return ImageInfo{}, ErrEmptyImage
	}
	sum := sha256.Sum256(data)
	info := ImageInfo{
		ContentType: http.DetectContentType(data),
		Size:        len(data),
		SHA256:      hex.EncodeToString(sum[:]),
		Metadata:    readEXIF(data),
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err == nil {
		info.Format = format
		info.Width = cfg.Width
		info.Height = cfg.Height
		if !isImageType(info.ContentType) {
			info.ContentType = "image/" + format
		}
		return info, nil
	}

	switch {
	case isImageType(info.ContentType):
	case isImageType(declared) && info.ContentType == "application/octet-stream":
		info.ContentType = declared
	default:
		return ImageInfo{}, ErrNotImage
	}
	return info, nil
}

// NewScanRequest validates image and builds a request for mode.
func NewScanRequest(image []byte, filename, declaredType string, mode ScanMode) (ScanRequest, error) {
	info, err := Inspect(image, declaredType)
	if err != nil {
		return ScanRequest{}, err
	}
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "image" + extensionFor(info.ContentType)
	}
	return ScanRequest{
		Image:       image,
		Filename:    name,
		ContentType: info.ContentType,
		Mode:        mode,
		Info:        info,
	}, nil
}

// Extension returns a file extension for the request's content type.
func (r ScanRequest) Extension() string {
	return extensionFor(r.ContentType)
}

func isImageType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return strings.HasPrefix(ct, "image/")
}

func extensionFor(ct string) string {
	switch strings.ToLower(ct) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	case "image/tiff":
		return ".tiff"
	}
	return ".img"
}
