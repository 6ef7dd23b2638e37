package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	// MinSize is the smallest payload accepted as real media.
	MinSize = 1024
	// markerProbeShort and markerProbeLong bound the container marker search.
	markerProbeShort = 64
	markerProbeLong  = 1024
	// readBackLen is the number of bytes read back after writing.
	readBackLen = 1024
)

// Structural markers of the containers the pipeline decodes: ISO BMFF boxes,
// the Matroska/WebM EBML magic and the RIFF header of AVI.
var containerMarkers = [][]byte{
	[]byte("ftyp"),
	[]byte("moov"),
	[]byte("mdat"),
	[]byte("wide"),
	[]byte("free"),
	{0x1A, 0x45, 0xDF, 0xA3},
	[]byte("RIFF"),
}

// verifySize checks the written size against the declared content length and
// the minimum size. A shortfall is re-checked once after delay.
func (f *Fetcher) verifySize(ctx context.Context, path string, contentLength int64) (int64, error) {
	size, err := fileSize(path)
	if err != nil {
		return 0, err
	}

	if contentLength > 0 && size != contentLength {
		f.logger.Warn("download size mismatch",
			"path", path,
			"expected", humanize.Bytes(uint64(contentLength)),
			"actual", humanize.Bytes(uint64(size)),
		)

		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("context cancelled: %w", ctx.Err())
		case <-time.After(f.recheckDelay):
		}

		if size, err = fileSize(path); err != nil {
			return 0, err
		}
		if size < contentLength {
			return size, fmt.Errorf("%w: got %d of %d bytes", ErrTruncated, size, contentLength)
		}
	}

	if size < MinSize {
		return size, fmt.Errorf("%w: %d bytes", ErrTooSmall, size)
	}
	return size, nil
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNotAccessible, err)
	}
	return info.Size(), nil
}

// hasContainerMarker looks for a known container marker in the first 64
// bytes and then in the first kilobyte of the file.
func hasContainerMarker(path string) (bool, error) {
	file, err := os.Open(path) // #nosec G304 - path is created by the fetcher
	if err != nil {
		return false, err
	}
	defer func() { _ = file.Close() }()

	head := make([]byte, markerProbeLong)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	head = head[:n]

	for _, limit := range []int{markerProbeShort, markerProbeLong} {
		if containsMarker(head[:min(limit, len(head))]) {
			return true, nil
		}
	}
	return false, nil
}

func containsMarker(b []byte) bool {
	for _, m := range containerMarkers {
		if bytes.Contains(b, m) {
			return true
		}
	}
	return false
}

// readBack confirms that the first kilobyte of the file can be read.
func readBack(path string) error {
	file, err := os.Open(path) // #nosec G304 - path is created by the fetcher
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotAccessible, err)
	}
	defer func() { _ = file.Close() }()

	buf := make([]byte, readBackLen)
	if _, err := io.ReadFull(file, buf); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", ErrNotAccessible, err)
	}
	return nil
}
