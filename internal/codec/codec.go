// Package codec decodes source images and encodes output variants.
//
// JPEG and PNG go through disintegration/imaging; WebP is produced by the
// external cwebp encoder.
package codec

import (
	"context"
	"errors"
	"image"
	"net/url"
	"path"
	"strings"
)

// Format names an output encoding.
type Format string

const (
	JPEG Format = "jpg"
	PNG  Format = "png"
	WebP Format = "webp"
)

// ErrUnsupported marks sources or targets the codec cannot handle.
var ErrUnsupported = errors.New("unsupported image type")

// Codec is the decode/encode capability used by the optimizer.
type Codec interface {
	Decode(ctx context.Context, source string) (image.Image, error)
	Encode(ctx context.Context, img image.Image, format Format) ([]byte, error)
}

// Extension returns the lowercased suffix after the last dot of the URL path.
// Query strings and fragments are ignored.
func Extension(source string) string {
	p := source
	if u, err := url.Parse(source); err == nil && u.Path != "" {
		p = u.Path
	}
	ext := path.Ext(p)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// OutputFormats lists the variants produced for a source extension.
func OutputFormats(ext string) []Format {
	switch strings.ToLower(ext) {
	case "jpg", "jpeg":
		return []Format{JPEG, WebP}
	case "png":
		return []Format{PNG, WebP}
	default:
		return nil
	}
}

func decodable(ext string) bool {
	return len(OutputFormats(ext)) > 0
}
