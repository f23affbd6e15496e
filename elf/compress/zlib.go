package compress

import (
	"bytes"
	"compress/zlib"
	"io"
)

func newZlibReader(data []byte) (io.Reader, error) {
	return zlib.NewReader(bytes.NewReader(data))
}
