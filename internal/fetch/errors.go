package fetch

import (
	"errors"
	"fmt"
)

// Static errors for asset downloads.
var (
	// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs.
	ErrInvalidURL = errors.New("invalid URL")
	// ErrHTTPStatus is returned when the server answers with a non-2xx status.
	ErrHTTPStatus = errors.New("unexpected HTTP status")
	// ErrTooSmall is returned when the downloaded payload is below the sanity threshold.
	ErrTooSmall = errors.New("downloaded file is too small to be media")
	// ErrTruncated is returned when fewer bytes than the declared Content-Length arrived.
	ErrTruncated = errors.New("downloaded file is shorter than its content length")
	// ErrNotAccessible is returned when the written file cannot be read back.
	ErrNotAccessible = errors.New("downloaded file is not accessible")
	// ErrNoMediaLink is returned when an HTML page carries no usable media link.
	ErrNoMediaLink = errors.New("no media link found in page")
)

// DownloadError wraps any failure to retrieve a remote asset.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}
