//go:build !unix

package storage

// FreeSpace is not available on this platform.
func FreeSpace(_ string) (uint64, error) {
	return 0, ErrFreeSpaceUnsupported
}
