package imagelayer

import (
	"github.com/h2non/filetype"
)

// ImageFormat names the container of an opaque payload. Payloads are never
// decoded here; the format is only carried so transports can label bytes.
type ImageFormat struct {
	MIME      string `json:"mime"`
	Extension string `json:"extension"`
}

// UnknownFormat is reported for empty or unrecognised payloads.
var UnknownFormat = ImageFormat{MIME: "application/octet-stream"}

// DetectImageFormat sniffs the container format from the payload header.
func DetectImageFormat(data []byte) ImageFormat {
	if len(data) == 0 {
		return UnknownFormat
	}
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return UnknownFormat
	}
	return ImageFormat{MIME: kind.MIME.Value, Extension: kind.Extension}
}

// IsImage reports whether the bytes carry a known image container.
func (f ImageFormat) IsImage() bool {
	return len(f.MIME) > 6 && f.MIME[:6] == "image/"
}

// IsVideo reports whether the bytes carry a known video container.
func (f ImageFormat) IsVideo() bool {
	return len(f.MIME) > 6 && f.MIME[:6] == "video/"
}
