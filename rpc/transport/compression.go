package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ValentinKolb/dTransport/rpc/common"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// ErrResponseTooLarge is returned when a response body exceeds the configured limit
var ErrResponseTooLarge = errors.New("transport: response body exceeds the maximum allowed size")

// gzipBody compresses a request body
func gzipBody(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// readBody reads (and decompresses) a response body. A limit <= 0 means unlimited.
// A payload that cannot be decompressed is reported as *common.DeserializationError.
func readBody(r io.Reader, contentEncoding string, limit int64) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))
	switch encoding {
	case "gzip":
		zr, err := gzip.NewReader(r)
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, decodeError(encoding, err)
		}
		defer zr.Close()
		r = zr
	case "deflate":
		zr, err := zlib.NewReader(r)
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, decodeError(encoding, err)
		}
		defer zr.Close()
		r = zr
	}

	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, decodeError(encoding, err)
	}
	if limit <= 0 {
		return data, nil
	}
	if int64(len(data)) > limit {
		return nil, ErrResponseTooLarge
	}
	return data, nil
}

// decodeError tags errors of a corrupt compressed stream. Everything else
// (resets, timeouts, truncated bodies) is left as a read failure.
func decodeError(encoding string, err error) error {
	var corrupt flate.CorruptInputError
	switch {
	case errors.Is(err, gzip.ErrHeader), errors.Is(err, gzip.ErrChecksum),
		errors.Is(err, zlib.ErrHeader), errors.Is(err, zlib.ErrChecksum), errors.Is(err, zlib.ErrDictionary),
		errors.As(err, &corrupt):
		return &common.DeserializationError{Err: fmt.Errorf("failed to read %s response: %w", encoding, err)}
	case encoding != "":
		return fmt.Errorf("failed to read %s response: %w", encoding, err)
	default:
		return err
	}
}
