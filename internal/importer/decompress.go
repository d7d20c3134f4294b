package importer

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadSeedFile returns the contents of a seed file, transparently
// decompressing files ending in .gz.
func ReadSeedFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gzip %s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}
	return io.ReadAll(r)
}
