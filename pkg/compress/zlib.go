package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Compress deflates data into a zlib stream at the given level
// (zlib.BestCompression when level is 0).
func Compress(data []byte, level int) ([]byte, error) {
	if level == 0 {
		level = zlib.BestCompression
	}

	var buf bytes.Buffer
	writer, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("failed to create zlib writer: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to compress content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish compressed stream: %w", err)
	}

	return buf.Bytes(), nil
}

// Decompress inflates a zlib stream. A truncated or corrupt stream is an error.
func Decompress(data []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open compressed stream: %w", err)
	}
	defer reader.Close()

	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress content: %w", err)
	}
	return out, nil
}
