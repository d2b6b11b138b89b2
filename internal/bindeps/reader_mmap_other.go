//go:build !(linux || darwin || freebsd)

package bindeps

import (
	"errors"
	"os"
)

const mmapSupported = false

var errMmapUnsupported = errors.New("mmap not supported on this platform")

func mmapFile(f *os.File, size int) ([]byte, error) {
	return nil, errMmapUnsupported
}

func munmapFile(b []byte) error {
	return nil
}
