package httpio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// compressThreshold is the minimum payload size worth compressing; objects
// shorter than this are stored raw per spec.md §4.4.
const compressThreshold = 256

func deflate(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("httpio: flate.NewWriter: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("httpio: flate write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("httpio: flate close: %w", err)
	}
	return buf.Bytes(), nil
}

func inflate(data []byte, originalLen int) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	out := make([]byte, originalLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("httpio: flate decompress: %w", err)
	}
	return out, nil
}
