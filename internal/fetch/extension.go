package fetch

import (
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultExtension is used when nothing else identifies the payload.
const DefaultExtension = "mp4"

var contentTypeExtensions = map[string]string{
	"video/mp4":        "mp4",
	"video/quicktime":  "mov",
	"video/webm":       "webm",
	"video/x-matroska": "mkv",
	"video/x-msvideo":  "avi",
	"audio/mpeg":       "mp3",
	"audio/mp3":        "mp3",
	"audio/wav":        "wav",
	"audio/wave":       "wav",
	"audio/x-wav":      "wav",
	"audio/mp4":        "m4a",
	"audio/x-m4a":      "m4a",
	"audio/aac":        "aac",
	"audio/ogg":        "ogg",
}

var urlExtensions = map[string]bool{
	"mp4": true, "avi": true, "mov": true, "mkv": true, "webm": true,
	"mp3": true, "wav": true, "m4a": true, "aac": true, "ogg": true,
}

// mediaType returns the lower-cased media type of a Content-Type header
// without parameters.
func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// InferExtension picks a file extension (without dot) from the response
// content type, falling back to the URL suffix and then to sniffed payload
// bytes. Returns DefaultExtension when nothing matches.
func InferExtension(contentType, rawURL string, head []byte) string {
	mt := mediaType(contentType)
	if ext, ok := contentTypeExtensions[mt]; ok {
		return ext
	}
	if ext := knownExtension(mt); ext != "" {
		return ext
	}

	if u, err := url.Parse(rawURL); err == nil {
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
		if urlExtensions[ext] {
			return ext
		}
	}

	if len(head) > 0 {
		if ext := strings.TrimPrefix(mimetype.Detect(head).Extension(), "."); urlExtensions[ext] {
			return ext
		}
	}

	return DefaultExtension
}

// knownExtension consults the mimetype registry for audio and video types.
func knownExtension(mt string) string {
	if !strings.HasPrefix(mt, "video/") && !strings.HasPrefix(mt, "audio/") {
		return ""
	}
	m := mimetype.Lookup(mt)
	if m == nil {
		return ""
	}
	return strings.TrimPrefix(m.Extension(), ".")
}
