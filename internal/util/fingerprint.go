package util

import (
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

const fingerprintTail = 2048

// CalculateFingerprint returns a CRC32 over the last 2KB of each file, in the
// given order. CTF streams are append-only, so the tail changes whenever a
// stream grows or is rewritten.
func CalculateFingerprint(paths []string) (string, error) {
	h := crc32.NewIEEE()
	for _, path := range paths {
		if err := hashTail(h, path); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%08x", h.Sum32()), nil
}

func hashTail(w io.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return err
	}

	readSize := int64(fingerprintTail)
	if stat.Size() < readSize {
		readSize = stat.Size()
	}
	if _, err := file.Seek(-readSize, io.SeekEnd); err != nil {
		return err
	}

	_, err = io.CopyN(w, file, readSize)
	return err
}
