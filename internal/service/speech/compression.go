package speech

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

func compress(data []byte, method compression) ([]byte, error) {
	switch method {
	case compressNone:
		return data, nil
	case compressGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			w.Close()
			return nil, fmt.Errorf("gzip write failed: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("gzip close failed: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", method)
	}
}

func decompress(data []byte, method compression) ([]byte, error) {
	switch method {
	case compressNone:
		return data, nil
	case compressGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip reader creation failed: %w", err)
		}
		defer r.Close()

		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("gzip read failed: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", method)
	}
}

// encodeFrame compresses payload and serializes the frame in one step.
func encodeFrame(f *frame) ([]byte, error) {
	payload, err := compress(f.Payload, f.Compression)
	if err != nil {
		return nil, err
	}
	out := *f
	out.Payload = payload
	return out.MarshalBinary()
}
